// Package errs defines the sentinel error kinds shared across the engine,
// so callers can classify a failure with errors.Is instead of parsing
// message text.
package errs

import "errors"

var (
	// ErrConfig marks a bad or missing configuration value. Fatal at startup.
	ErrConfig = errors.New("config error")

	// ErrIO marks a path read or store-open failure. Non-fatal per path,
	// fatal when it prevents the store itself from opening.
	ErrIO = errors.New("io error")

	// ErrParse marks a grammar parse failure. Never fatal: the file
	// contributes zero objects and its fingerprint is still recorded.
	ErrParse = errors.New("parse error")

	// ErrEmbeddingTransient marks a retryable embedding call failure.
	ErrEmbeddingTransient = errors.New("embedding transient error")

	// ErrEmbeddingPermanent marks a batch item that will not be retried
	// again within the run.
	ErrEmbeddingPermanent = errors.New("embedding permanent error")

	// ErrConsistency marks an invariant violation during a commit. The
	// transaction is aborted and the fingerprint is not updated.
	ErrConsistency = errors.New("consistency error")
)
