// Package logging builds the structured logger used across the engine.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// New returns a slog.Logger writing structured text records to w
// (typically os.Stderr). Level is Info by default; set debug to enable
// Debug records for the parse/embed/store hot paths.
func New(w io.Writer, debug bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// WithPath returns a child logger annotated with the repo-relative path
// under indexing, so per-file diagnostics can be filtered downstream.
func WithPath(logger *slog.Logger, path string) *slog.Logger {
	return logger.With(slog.String("path", path))
}

// ctxKey is unexported so only this package can stash a logger in a
// context.Context.
type ctxKey struct{}

// Into attaches logger to ctx.
func Into(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From retrieves the logger attached with Into, falling back to
// slog.Default() when none is present.
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
