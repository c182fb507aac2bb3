package store

import (
	"context"
	"strings"
)

// LookupEmbeddings resolves as many hashes as already have a stored
// vector, satisfying the EmbeddingService's cache-first contract: the
// caller only needs to request the miss set remotely.
func (s *Store) LookupEmbeddings(ctx context.Context, hashes []string) (map[string][]float32, error) {
	if len(hashes) == 0 {
		return map[string][]float32{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	unique := dedupe(hashes)
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT content_hash, vector, dim FROM embedding
		WHERE content_hash IN (`+placeholders(len(unique))+`)
	`, stringArgs(unique)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]float32, len(unique))
	for rows.Next() {
		var hash string
		var blob []byte
		var dim int
		if err := rows.Scan(&hash, &blob, &dim); err != nil {
			return nil, err
		}
		if _, ok := out[hash]; !ok {
			out[hash] = decodeVector(blob, dim)
		}
	}
	return out, rows.Err()
}

// FTSQuery runs a trigram BM25 query over name/path/body and returns up
// to limit candidates ordered best-first (lowest bm25 score first —
// SQLite's bm25() returns negative-is-better scores).
func (s *Store) FTSQuery(ctx context.Context, query string, limit int) ([]SearchCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, bm25(object_fts) AS score
		FROM object_fts
		WHERE object_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, ftsMatchExpr(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchCandidate
	for rows.Next() {
		var c SearchCandidate
		if err := rows.Scan(&c.ObjectID, &c.Score); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ftsMatchExpr quotes the raw query as a single FTS phrase-or-term
// expression so punctuation in identifiers (e.g. "foo_bar") doesn't
// trip the MATCH parser.
func ftsMatchExpr(query string) string {
	escaped := strings.ReplaceAll(query, `"`, `""`)
	return `"` + escaped + `"`
}

// ObjectsByIDs hydrates full Object rows for a set of ids, preserving
// no particular order — callers re-sort by their own ranking.
func (s *Store) ObjectsByIDs(ctx context.Context, ids []int64) (map[int64]Object, error) {
	if len(ids) == 0 {
		return map[int64]Object{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, name, language, kind, byte_start, byte_end,
		       start_line, start_col, end_line, end_col,
		       context_before, context_after, content_hash
		FROM object WHERE id IN (`+placeholders(len(ids))+`)
	`, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]Object, len(ids))
	for rows.Next() {
		var o Object
		if err := rows.Scan(
			&o.ID, &o.Path, &o.Name, &o.Language, &o.Kind, &o.ByteStart, &o.ByteEnd,
			&o.Coordinates.StartLine, &o.Coordinates.StartCol, &o.Coordinates.EndLine, &o.Coordinates.EndCol,
			&o.ContextBefore, &o.ContextAfter, &o.ContentHash,
		); err != nil {
			return nil, err
		}
		out[o.ID] = o
	}
	return out, rows.Err()
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func stringArgs(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
