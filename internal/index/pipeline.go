package index

import (
	"context"
	"os"
	"sync"

	"codebased/internal/embed"
	"codebased/internal/extract"
	"codebased/internal/fingerprint"
	"codebased/internal/logging"
	"codebased/internal/store"
)

// Stats reports the outcome of a one-shot run.
type Stats struct {
	FilesTotal   int
	FilesIndexed int
	FilesSkipped int
	FilesRemoved int
	ObjectsTotal int
	Quarantined  int
}

// runOnce walks the tree, diffs it against the catalog, and commits
// every added/modified path through the extract/embed/store stages
// using a worker pool, mirroring the teacher's staged channel
// pipeline (walk -> hash/diff -> chunk -> embed -> store) but driven
// by internal/fingerprint's cheap-first diff instead of a per-file
// hash comparison inlined into the walker.
func runOnce(ctx context.Context, idx *Indexer) (Stats, error) {
	logger := logging.From(ctx)

	filesCh, walkErrCh := sourceWalk(idx.cfg.Root)

	var candidates []fingerprint.Candidate
	for f := range filesCh {
		info, err := os.Stat(f.AbsPath)
		if err != nil {
			continue
		}
		candidates = append(candidates, fingerprint.Candidate{
			Path:        f.RelPath,
			Size:        info.Size(),
			ModTimeNano: info.ModTime().UnixNano(),
		})
	}
	if err := <-walkErrCh; err != nil {
		return Stats{}, err
	}

	scan, err := fingerprint.Scan(ctx, idx.store, candidates, func(path string) ([]byte, error) {
		return os.ReadFile(absPath(idx.cfg.Root, path))
	})
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	stats.FilesTotal = len(candidates)
	stats.FilesSkipped = len(scan.Unchanged)

	work := make(chan fingerprint.Fingerprint, idx.cfg.Workers)
	go func() {
		defer close(work)
		for _, fp := range scan.Added {
			work <- fp
		}
		for _, fp := range scan.Modified {
			work <- fp
		}
	}()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < idx.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fp := range work {
				if failureCapped(ctx, idx, fp) {
					continue
				}
				n, quarantinedCount, err := idx.commitPath(ctx, fp)
				mu.Lock()
				if err != nil {
					logger.Error("index path failed", "path", fp.Path, "error", err)
					recordFailure(ctx, idx, fp)
				} else {
					stats.FilesIndexed++
					stats.ObjectsTotal += n
					stats.Quarantined += quarantinedCount
					clearFailure(ctx, idx, fp)
					idx.events <- IndexEvent{Kind: EventCommitted, Path: fp.Path}
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, path := range scan.Removed {
		if err := idx.store.RemoveFile(ctx, path); err != nil {
			logger.Error("remove stale path failed", "path", path, "error", err)
			continue
		}
		stats.FilesRemoved++
		idx.events <- IndexEvent{Kind: EventRemoved, Path: path}
	}

	logger.Info("index run complete",
		"files_total", stats.FilesTotal, "files_indexed", stats.FilesIndexed,
		"files_skipped", stats.FilesSkipped, "files_removed", stats.FilesRemoved,
		"objects_total", stats.ObjectsTotal, "quarantined", stats.Quarantined)
	return stats, nil
}

// indexOnePath performs the extract/embed/store stages for a single
// path already known to have changed (the live-mode entry point, which
// skips the fingerprint diff since the watcher already told us this
// path is dirty).
func (idx *Indexer) indexOnePath(ctx context.Context, path string, info os.FileInfo) error {
	fp := fingerprint.Fingerprint{
		Path:        path,
		Size:        info.Size(),
		ModTimeNano: info.ModTime().UnixNano(),
	}
	src, err := os.ReadFile(absPath(idx.cfg.Root, path))
	if err != nil {
		return err
	}
	fp.ContentHash = hashBytes(src)

	if _, _, err := idx.commitPathWithSrc(ctx, fp, src); err != nil {
		recordFailure(ctx, idx, fp)
		return err
	}
	clearFailure(ctx, idx, fp)
	idx.events <- IndexEvent{Kind: EventCommitted, Path: path}
	return nil
}

// commitPath reads path's bytes and runs it through commitPathWithSrc.
func (idx *Indexer) commitPath(ctx context.Context, fp fingerprint.Fingerprint) (objectCount, quarantinedCount int, err error) {
	src, err := os.ReadFile(absPath(idx.cfg.Root, fp.Path))
	if err != nil {
		return 0, 0, err
	}
	return idx.commitPathWithSrc(ctx, fp, src)
}

// commitPathWithSrc runs extraction, cache-first embedding, and a
// single atomic store revision for one path, matching the write
// protocol in spec.md §4.5.
func (idx *Indexer) commitPathWithSrc(ctx context.Context, fp fingerprint.Fingerprint, src []byte) (objectCount, quarantinedCount int, err error) {
	objs, extractErr := idx.extractor.Extract(fp.Path, src)
	if extractErr != nil {
		logging.WithPath(logging.From(ctx), fp.Path).Warn("extraction failed, keeping fingerprint only", "error", extractErr)
		objs = nil
	}

	records := make([]store.ObjectRecord, len(objs))
	items := make([]embed.Item, 0, len(objs))
	seenHash := make(map[string]bool, len(objs))
	for i, o := range objs {
		records[i] = store.ObjectRecord{
			Path:          fp.Path,
			Name:          o.Name,
			Language:      o.Language,
			Kind:          string(o.Kind),
			ByteStart:     o.ByteStart,
			ByteEnd:       o.ByteEnd,
			Coordinates:   store.Coordinates(o.Coordinates),
			ContextBefore: o.ContextBefore,
			ContextAfter:  o.ContextAfter,
			ContentHash:   o.ContentHash,
			Body:          o.Body,
		}
		if !seenHash[o.ContentHash] {
			seenHash[o.ContentHash] = true
			items = append(items, embed.Item{ContentHash: o.ContentHash, Text: embedText(o)})
		}
	}

	var vectors map[string][]float32
	if len(items) > 0 {
		var quarantined []string
		vectors, quarantined, err = idx.embedder.Embed(ctx, items)
		if err != nil {
			return 0, 0, err
		}
		quarantinedCount = len(quarantined)
	}

	rev := store.Revision{File: fp, Objects: records, Embeddings: vectors}
	if err := idx.store.WriteRevision(ctx, rev); err != nil {
		return 0, 0, err
	}
	return len(records), quarantinedCount, nil
}

// embedText is the text sent to the embedding endpoint: the object's
// context and body concatenated, matching the same bytes hashed into
// its content fingerprint.
func embedText(o extract.Object) string {
	return o.ContextBefore + o.Body + o.ContextAfter
}
