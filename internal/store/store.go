// Package store implements IndexStore: the catalog + FTS + ANN
// triple-store kept in lockstep behind a single write protocol.
// Grounded on the teacher's internal/store package (SQLite via
// mattn/go-sqlite3 for the relational catalog), generalized from a
// two-table catalog+vector schema to the catalog/FTS/ANN design the
// spec requires. The teacher additionally used sqlite-vec for its
// durable vector table; this repo's ANN needs a full in-memory,
// copy-on-publish snapshot for lock-free concurrent reads regardless
// (spec.md §4.4), so the embedding BLOB column plus ann.bin already
// cover durability and sqlite-vec would only add a second copy of the
// same vectors behind a second query surface never exercised by
// Searcher. See DESIGN.md for the full account of dropping it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"codebased/internal/fingerprint"
)

// Store is the single logical IndexStore. Writes (WriteRevision,
// RemoveFile, ResetAll, failure and meta bookkeeping) hold mu
// exclusively; catalog reads hold mu's read lock for the duration of
// one query, so a commit waits for in-progress reads to finish. The
// ANN is read through its own atomic snapshot pointer without mu.
type Store struct {
	db  *sql.DB
	ann *ANN

	// mu enforces single-writer/multi-reader at the Go level in
	// addition to SQLite's own locking, so a caller can tell "no writer
	// is mid-revision" without inspecting transaction state.
	mu sync.RWMutex
}

// Open creates or opens the SQLite database at dbPath and initializes
// the schema. annPath is the sibling ann.bin snapshot file; pass "" to
// disable ANN persistence (used by in-memory tests).
func Open(dbPath, annPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db, ann: NewANN(annPath)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ANN exposes the read-copy ANN snapshot for the searcher.
func (s *Store) ANN() *ANN { return s.ann }

// EmbeddingDim returns the dimension declared in meta.toml's mirror
// inside the catalog (0 if never set).
func (s *Store) EmbeddingDim(ctx context.Context) (int, error) {
	v, err := s.GetMeta(ctx, "embedding_dimension")
	if err != nil || v == "" {
		return 0, err
	}
	var dim int
	_, err = fmt.Sscanf(v, "%d", &dim)
	return dim, err
}

// Fingerprint implements fingerprint.Store.
func (s *Store) Fingerprint(ctx context.Context, path string) (fingerprint.Fingerprint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fp fingerprint.Fingerprint
	fp.Path = path
	err := s.db.QueryRowContext(ctx, `SELECT size, mtime_ns, hash FROM file WHERE path = ?`, path).
		Scan(&fp.Size, &fp.ModTimeNano, &fp.ContentHash)
	if err == sql.ErrNoRows {
		return fingerprint.Fingerprint{}, false, nil
	}
	if err != nil {
		return fingerprint.Fingerprint{}, false, err
	}
	return fp, true, nil
}

// AllPaths implements fingerprint.Store.
func (s *Store) AllPaths(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM file`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// GetMeta returns a metadata value, or "" if unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMeta sets a metadata key/value pair.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// FailureCount returns the recorded per-path failure count and the hash
// it was quarantined at, used by the Indexer's retry-cap policy.
func (s *Store) FailureCount(ctx context.Context, path string) (int, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT count, hash FROM failure WHERE path = ?`, path).Scan(&count, &hash)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	return count, hash, err
}

// RecordFailure increments the failure counter for path, resetting it
// if hash (the file's current content hash) has changed since the last
// failure.
func (s *Store) RecordFailure(ctx context.Context, path, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var priorHash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM failure WHERE path = ?`, path).Scan(&priorHash)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, `INSERT INTO failure (path, count, hash) VALUES (?, 1, ?)`, path, hash)
		return err
	case err != nil:
		return err
	case priorHash != hash:
		_, err = s.db.ExecContext(ctx, `UPDATE failure SET count = 1, hash = ? WHERE path = ?`, hash, path)
		return err
	default:
		_, err = s.db.ExecContext(ctx, `UPDATE failure SET count = count + 1 WHERE path = ?`, path)
		return err
	}
}

// ClearFailure removes the failure record for path (a successful commit).
func (s *Store) ClearFailure(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM failure WHERE path = ?`, path)
	return err
}

// RemoveFile deletes a file, its objects, FTS rows, and embeddings, and
// applies the corresponding ANN removal. Used when a path disappears
// from disk.
func (s *Store) RemoveFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ids, err := objectIDsForPath(ctx, tx, path)
	if err != nil {
		return err
	}
	if err := deleteObjectsAndFTS(ctx, tx, ids); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM file WHERE path = ?`, path); err != nil {
		return err
	}
	gcIDs, err := gcOrphanEmbeddings(ctx, tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.ann.ApplyRevision(append(ids, gcIDs...), nil)
	return nil
}

// ResetAll wipes every file, object, FTS row, embedding, and failure
// record, keeping meta, and resets the ANN to empty. Used for the
// guided full rebuild triggered by a meta.toml mismatch (a changed
// embedding model or dimension invalidates every cached vector).
func (s *Store) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM object_fts`,
		`DELETE FROM embedding`,
		`DELETE FROM object`,
		`DELETE FROM file`,
		`DELETE FROM failure`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.ann.RebuildFrom(nil, s.ann.Dim())
	return nil
}
