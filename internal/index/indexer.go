// Package index implements the Indexer: one-shot and live indexing
// pipelines wiring PathSource, FingerprintCatalog, ObjectExtractor,
// EmbeddingService, and IndexStore together. Grounded on the teacher's
// internal/index (Config/New/Index shape, runPipeline's staged
// goroutine/channel pipeline), generalized from a single hash→chunk→
// embed→store chain to the spec's fingerprint-diff-driven revision
// protocol, with live-mode watch subscription and per-path failure
// quarantine added per spec.md §4.6/§5.
package index

import (
	"context"
	"runtime"
	"time"

	"codebased/internal/embed"
	"codebased/internal/extract"
	"codebased/internal/logging"
	"codebased/internal/store"
	"codebased/internal/watch"
)

// EventKind classifies an IndexEvent.
type EventKind int

const (
	EventCommitted EventKind = iota
	EventRemoved
	EventResynced
)

// IndexEvent is published on the Indexer's notification channel after
// each commit, replacing the teacher's ad hoc UI progress callback with
// a channel any subscriber (TUI, tests) can read independently.
type IndexEvent struct {
	Kind      EventKind
	Path      string
	ObjectIDs []int64
}

// Config controls one Indexer's behavior.
type Config struct {
	Root        string
	Workers     int           // default min(NumCPU(), 8)
	Coalesce    time.Duration // live-mode per-path debounce, default 100ms
	MaxFailures int           // per-path quarantine cap, default 3
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
		if c.Workers > 8 {
			c.Workers = 8
		}
	}
	if c.Coalesce <= 0 {
		c.Coalesce = 100 * time.Millisecond
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	return c
}

// Indexer is the public entry point: one-shot Run, or live-mode Watch.
type Indexer struct {
	cfg       Config
	store     *store.Store
	extractor *extract.Extractor
	embedder  *embed.Service
	events    chan IndexEvent
}

// New creates an Indexer over an already-open store and configured
// extractor/embedder.
func New(cfg Config, st *store.Store, ex *extract.Extractor, em *embed.Service) *Indexer {
	return &Indexer{
		cfg:       cfg.withDefaults(),
		store:     st,
		extractor: ex,
		embedder:  em,
		events:    make(chan IndexEvent, 256),
	}
}

// Events returns the channel index-changed notifications are published
// on. Sends block once its 256-entry buffer is full, so callers must
// keep draining it.
func (idx *Indexer) Events() <-chan IndexEvent { return idx.events }

// Run performs a one-shot index of cfg.Root: walk, diff, extract,
// embed, and commit every changed path, then remove catalog entries
// for paths no longer on disk.
func (idx *Indexer) Run(ctx context.Context) (Stats, error) {
	return runOnce(ctx, idx)
}

// Watch performs a one-shot index, then subscribes to filesystem
// changes and keeps the index current until ctx is cancelled.
func (idx *Indexer) Watch(ctx context.Context) error {
	if _, err := idx.Run(ctx); err != nil {
		return err
	}

	w, err := watch.New(idx.cfg.Root)
	if err != nil {
		return err
	}
	defer w.Close()

	return idx.watchLoop(ctx, w)
}

func (idx *Indexer) watchLoop(ctx context.Context, w *watch.Watcher) error {
	logger := logging.From(ctx)
	pending := newCoalescer(idx.cfg.Coalesce)
	defer pending.stop()

	for {
		select {
		case <-ctx.Done():
			return idx.drain(pending)
		case ev, ok := <-w.Events():
			if !ok {
				return idx.drain(pending)
			}
			if ev.Kind == watch.Resync {
				logger.Warn("watch overflow, resyncing full tree")
				idx.events <- IndexEvent{Kind: EventResynced}
				if _, err := idx.Run(ctx); err != nil {
					logger.Error("resync failed", "error", err)
				}
				continue
			}
			pending.touch(ev.Path, func(path string) {
				idx.handlePathChange(ctx, path)
			})
		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			logger.Error("watch error", "error", err)
		}
	}
}

// drain waits up to 5s for the coalescer's in-flight timers to fire
// before abandoning them, per the spec's graceful-shutdown rule: any
// path whose debounce hadn't fired yet is left unindexed until the next
// run, without touching its fingerprint.
func (idx *Indexer) drain(pending *coalescer) error {
	done := make(chan struct{})
	go func() {
		pending.wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	return nil
}

func (idx *Indexer) handlePathChange(ctx context.Context, path string) {
	logger := logging.WithPath(logging.From(ctx), path)

	info, err := statPath(absPath(idx.cfg.Root, path))
	if err != nil {
		if err := idx.store.RemoveFile(ctx, path); err != nil {
			logger.Error("remove deleted path", "error", err)
		} else {
			idx.events <- IndexEvent{Kind: EventRemoved, Path: path}
		}
		return
	}

	if err := idx.indexOnePath(ctx, path, info); err != nil {
		logger.Error("index changed path", "error", err)
	}
}
