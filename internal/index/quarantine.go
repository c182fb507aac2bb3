package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codebased/internal/fingerprint"
	"codebased/internal/logging"
	"codebased/internal/source"
)

// failureCapped reports whether path has already failed MaxFailures
// times at its current content hash, in which case it is skipped until
// the hash changes — the spec's per-path quarantine policy.
func failureCapped(ctx context.Context, idx *Indexer, fp fingerprint.Fingerprint) bool {
	count, hash, err := idx.store.FailureCount(ctx, fp.Path)
	if err != nil {
		return false
	}
	return hash == fp.ContentHash && count >= idx.cfg.MaxFailures
}

func recordFailure(ctx context.Context, idx *Indexer, fp fingerprint.Fingerprint) {
	if err := idx.store.RecordFailure(ctx, fp.Path, fp.ContentHash); err != nil {
		logging.WithPath(logging.From(ctx), fp.Path).Error("record failure bookkeeping failed", "error", err)
	}
}

func clearFailure(ctx context.Context, idx *Indexer, fp fingerprint.Fingerprint) {
	if err := idx.store.ClearFailure(ctx, fp.Path); err != nil {
		logging.WithPath(logging.From(ctx), fp.Path).Error("clear failure bookkeeping failed", "error", err)
	}
}

func sourceWalk(root string) (<-chan source.File, <-chan error) {
	return source.Walk(root)
}

func absPath(root, relPath string) string {
	return filepath.Join(root, filepath.FromSlash(relPath))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func statPath(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// coalescer debounces per-path change notifications by window,
// grounded on the debounce timer-keyed-map pattern used by fsnotify-
// based watch supervisors in the retrieved pack (tinker495-grepai's
// watch supervisor), so a burst of writes to one file (an editor's
// save-then-rename sequence, for instance) triggers one re-index
// instead of several.
type coalescer struct {
	window time.Duration
	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

func newCoalescer(window time.Duration) *coalescer {
	return &coalescer{window: window, timers: make(map[string]*time.Timer)}
}

func (c *coalescer) touch(path string, fire func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[path]; ok && t.Stop() {
		c.wg.Done() // the superseded timer will never fire
	}
	c.wg.Add(1)
	c.timers[path] = time.AfterFunc(c.window, func() {
		defer c.wg.Done()
		c.mu.Lock()
		delete(c.timers, path)
		c.mu.Unlock()
		fire(path)
	})
}

func (c *coalescer) wait() {
	c.wg.Wait()
}

func (c *coalescer) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		t.Stop()
	}
}
