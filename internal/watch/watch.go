// Package watch implements the Watcher: recursive filesystem
// notification with ignore-rule filtering and overflow-triggered
// resync. Grounded on fsnotify usage in the retrieved pack
// (jeranaias-rigrun's go.mod dependency; tinker495-grepai's watch-
// supervisor pattern of one fsnotify.Watcher plus a bounded translated-
// event channel), since the teacher itself has no live-watch mode.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"codebased/internal/source"
)

// Kind classifies a translated filesystem event.
type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
	Moved
	Resync
)

// Event is one filesystem change translated from fsnotify's raw op
// codes into the spec's {Created, Modified, Deleted, Moved} taxonomy,
// or a Resync signal when the internal event channel would have
// overflowed.
type Event struct {
	Kind Kind
	Path string // slash-separated, relative to the watch root; empty for Resync
}

// eventBuffer is how many translated events can queue before a
// non-blocking send fails and a Resync is emitted instead.
const eventBuffer = 1024

// Watcher recursively watches a directory tree. fsnotify has no native
// recursive mode, so every discovered directory is registered
// individually, and newly created directories are registered as they
// appear.
type Watcher struct {
	root   string
	fsw    *fsnotify.Watcher
	events chan Event
	errors chan error
	done   chan struct{}
}

// New creates a Watcher rooted at root and registers every non-hidden
// directory under it; ignore rules are applied to events in handle.
func New(root string) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:   absRoot,
		fsw:    fsw,
		events: make(chan Event, eventBuffer),
		errors: make(chan error, 16),
		done:   make(chan struct{}),
	}

	if err := w.addTree(absRoot); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Events returns the translated event stream.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the underlying fsnotify error stream.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops watching and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

// addTree registers dir and every non-hidden subdirectory beneath it
// (skipping .git and symlinks) with the underlying fsnotify watcher.
// Ignore files are not consulted here.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return filepath.SkipDir
		}
		name := d.Name()
		if name == ".git" {
			return filepath.SkipDir
		}
		if path != dir && len(name) > 1 && name[0] == '.' {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if source.IsIgnoredPath(w.root, rel) {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := statDir(ev.Name); statErr == nil && info {
			if err := w.addTree(ev.Name); err != nil {
				w.emit(Event{Kind: Resync})
				return
			}
			w.enumerateDescendants(ev.Name)
			return
		}
		w.emit(Event{Kind: Created, Path: rel})
		return
	}
	if ev.Op&fsnotify.Write != 0 {
		w.emit(Event{Kind: Modified, Path: rel})
	}
	if ev.Op&fsnotify.Remove != 0 {
		w.emit(Event{Kind: Deleted, Path: rel})
	}
	if ev.Op&fsnotify.Rename != 0 {
		w.emit(Event{Kind: Moved, Path: rel})
	}
}

// enumerateDescendants walks a newly created directory and emits a
// Created event for every file already inside it (a directory can be
// moved in with content already present, in which case fsnotify only
// reports the top-level Create).
func (w *Watcher) enumerateDescendants(dir string) {
	files, errs := source.Walk(dir)
	go func() {
		for range errs {
		}
	}()
	for f := range files {
		rel, err := filepath.Rel(w.root, f.AbsPath)
		if err != nil {
			continue
		}
		w.emit(Event{Kind: Created, Path: filepath.ToSlash(rel)})
	}
}

// emit performs a non-blocking send, degrading to a Resync signal if
// the event buffer is full — the spec's overflow-detection rule.
func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	default:
		select {
		case w.events <- Event{Kind: Resync}:
		default:
		}
	}
}

func statDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
