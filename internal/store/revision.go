package store

import (
	"context"
	"database/sql"
	"fmt"

	"codebased/internal/errs"
	"codebased/internal/fingerprint"
)

// Revision is everything that must land atomically for one path: its
// new fingerprint, its freshly extracted objects, and any embeddings
// resolved for their content fingerprints (a nil vector means "still a
// cache miss" and the object gets no ANN entry, matching the spec's
// note that a path can commit before every embedding resolves — the
// GC pass will not touch it since it has no live embedding row yet).
type Revision struct {
	File       fingerprint.Fingerprint
	Objects    []ObjectRecord
	Embeddings map[string][]float32 // content hash -> vector, for hashes needed by Objects
}

// WriteRevision executes the six-step write protocol from spec.md
// §4.5: delete the path's prior objects/FTS/ANN, insert the new
// objects and FTS rows, attach embeddings (reusing cached vectors by
// content hash), update the file fingerprint, and commit — publishing
// the ANN snapshot only after the SQL transaction is durable.
func (s *Store) WriteRevision(ctx context.Context, rev Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revision tx: %w", err)
	}
	defer tx.Rollback()

	priorIDs, err := objectIDsForPath(ctx, tx, rev.File.Path)
	if err != nil {
		return fmt.Errorf("%w: list prior objects: %w", errs.ErrConsistency, err)
	}
	if err := deleteObjectsAndFTS(ctx, tx, priorIDs); err != nil {
		return fmt.Errorf("%w: delete prior objects: %w", errs.ErrConsistency, err)
	}

	if err := upsertFile(ctx, tx, rev.File); err != nil {
		return fmt.Errorf("%w: upsert file: %w", errs.ErrConsistency, err)
	}

	newIDs := make([]int64, len(rev.Objects))
	var annAdd []EmbeddingEntry
	for i, obj := range rev.Objects {
		id, err := insertObject(ctx, tx, obj)
		if err != nil {
			return fmt.Errorf("%w: insert object %s: %w", errs.ErrConsistency, obj.Name, err)
		}
		newIDs[i] = id

		if err := insertFTS(ctx, tx, id, obj); err != nil {
			return fmt.Errorf("%w: insert fts row: %w", errs.ErrConsistency, err)
		}

		vector, ok := rev.Embeddings[obj.ContentHash]
		if !ok {
			// Try to reuse any existing embedding for this content hash
			// before treating it as unresolved.
			vector, ok, err = embeddingByContentHash(ctx, tx, obj.ContentHash)
			if err != nil {
				return fmt.Errorf("%w: lookup cached embedding: %w", errs.ErrConsistency, err)
			}
		}
		if !ok {
			continue
		}
		if err := insertEmbedding(ctx, tx, id, obj.ContentHash, vector); err != nil {
			return fmt.Errorf("%w: insert embedding: %w", errs.ErrConsistency, err)
		}
		annAdd = append(annAdd, EmbeddingEntry{ObjectID: id, Vector: vector})
	}

	gcIDs, err := gcOrphanEmbeddings(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: gc orphan embeddings: %w", errs.ErrConsistency, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revision: %w", err)
	}

	remove := append(priorIDs, gcIDs...)
	needsRebuild := s.ann.ApplyRevision(remove, annAdd)
	if needsRebuild {
		s.rebuildANNLocked(ctx)
	}
	return nil
}

func objectIDsForPath(ctx context.Context, tx *sql.Tx, path string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM object WHERE path = ?`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func deleteObjectsAndFTS(ctx context.Context, tx *sql.Tx, ids []int64) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM object_fts WHERE rowid = ?`, id); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM object WHERE id IN (`+placeholders(len(ids))+`)`, int64Args(ids)...); err != nil {
			return err
		}
	}
	return nil
}

func upsertFile(ctx context.Context, tx *sql.Tx, fp fingerprint.Fingerprint) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO file (path, size, mtime_ns, hash) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET size = excluded.size, mtime_ns = excluded.mtime_ns, hash = excluded.hash
	`, fp.Path, fp.Size, fp.ModTimeNano, fp.ContentHash)
	return err
}

func insertObject(ctx context.Context, tx *sql.Tx, obj ObjectRecord) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO object (
			path, name, language, kind, byte_start, byte_end,
			start_line, start_col, end_line, end_col,
			context_before, context_after, content_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		obj.Path, obj.Name, obj.Language, obj.Kind, obj.ByteStart, obj.ByteEnd,
		obj.Coordinates.StartLine, obj.Coordinates.StartCol, obj.Coordinates.EndLine, obj.Coordinates.EndCol,
		obj.ContextBefore, obj.ContextAfter, obj.ContentHash,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertFTS(ctx context.Context, tx *sql.Tx, id int64, obj ObjectRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO object_fts (rowid, name, path, body) VALUES (?, ?, ?, ?)`,
		id, obj.Name, obj.Path, obj.Body)
	return err
}

func embeddingByContentHash(ctx context.Context, tx *sql.Tx, contentHash string) ([]float32, bool, error) {
	var blob []byte
	var dim int
	err := tx.QueryRowContext(ctx,
		`SELECT vector, dim FROM embedding WHERE content_hash = ? LIMIT 1`, contentHash).Scan(&blob, &dim)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return decodeVector(blob, dim), true, nil
}

func insertEmbedding(ctx context.Context, tx *sql.Tx, objectID int64, contentHash string, vector []float32) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO embedding (object_id, vector, dim, content_hash) VALUES (?, ?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET vector = excluded.vector, dim = excluded.dim, content_hash = excluded.content_hash
	`, objectID, encodeVector(vector), len(vector), contentHash)
	return err
}

// gcOrphanEmbeddings deletes embedding rows whose content_hash no
// object references any longer, per the spec's embedding GC rule, and
// returns the object ids whose ANN entries must be removed alongside.
func gcOrphanEmbeddings(ctx context.Context, tx *sql.Tx) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT e.object_id FROM embedding e
		WHERE NOT EXISTS (SELECT 1 FROM object o WHERE o.content_hash = e.content_hash)
	`)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM embedding WHERE object_id IN (`+placeholders(len(ids))+`)`, int64Args(ids)...); err != nil {
		return nil, err
	}
	return ids, nil
}

// rebuildANNLocked reconstructs the ANN snapshot from every live
// embedding row. Callers must hold s.mu.
func (s *Store) rebuildANNLocked(ctx context.Context) {
	entries, dim, err := s.liveEmbeddings(ctx)
	if err != nil {
		return
	}
	s.ann.RebuildFrom(entries, dim)
}

// liveEmbeddings reads every embedding row (object_id, vector) from the
// catalog — the authority the spec designates for rebuilding the ANN
// on a startup mismatch or a tombstone-ratio trigger.
func (s *Store) liveEmbeddings(ctx context.Context) ([]EmbeddingEntry, int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT object_id, vector, dim FROM embedding`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []EmbeddingEntry
	dim := 0
	for rows.Next() {
		var id int64
		var blob []byte
		var d int
		if err := rows.Scan(&id, &blob, &d); err != nil {
			return nil, 0, err
		}
		dim = d
		entries = append(entries, EmbeddingEntry{ObjectID: id, Vector: decodeVector(blob, d)})
	}
	return entries, dim, rows.Err()
}

// liveEmbeddingCountLocked reports how many embedding rows currently
// exist, used to detect an ann.bin/catalog mismatch on startup.
// Callers must hold s.mu.
func (s *Store) liveEmbeddingCountLocked(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding`).Scan(&count)
	return count, err
}

// LoadOrRebuildANN loads the persisted ann.bin snapshot if its header
// agrees with dim and the catalog's current live embedding count,
// otherwise reconstructs the snapshot from the embedding table and
// rewrites ann.bin — the startup fast-path/guided-rebuild choice
// spec.md §4.5 and §8 scenario 5 describe. Called once per Store
// lifetime, after any meta.toml-triggered ResetAll.
func (s *Store) LoadOrRebuildANN(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wantCount, err := s.liveEmbeddingCountLocked(ctx)
	if err != nil {
		return err
	}
	return s.ann.LoadOrRebuild(dim, wantCount, func() []EmbeddingEntry {
		entries, _, err := s.liveEmbeddings(ctx)
		if err != nil {
			return nil
		}
		return entries
	})
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
