// Package search implements the Searcher: concurrent lexical (FTS5
// BM25) and semantic (ANN cosine) subqueries fused with Reciprocal
// Rank Fusion. The teacher has no fusion of its own — it only vector
// searches — so this is grounded on dshills-gocontext-mcp's
// internal/searcher package (dual-subquery fan-out via a result
// channel per branch, an RRF combine keyed by candidate id, a query
// LRU cache) reworked onto this repository's store/ANN types, per the
// explicit REDESIGN FLAG replacing the teacher's would-be simple merge
// with RRF.
package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"codebased/internal/embed"
	"codebased/internal/store"
)

// rrfK is the Reciprocal Rank Fusion constant, per spec.md.
const rrfK = 60.0

// candidatePoolMultiplier sets the per-branch (lexical/semantic) candidate cap
// fed into fusion, 3x the requested result count.
const candidatePoolMultiplier = 3

// Result is one fused, hydrated search hit ready for display.
type Result struct {
	Object        store.Object
	Body          string
	FusedScore    float64
	SemanticScore float64
	LexicalScore  float64
}

// Embedder is the subset of internal/embed.Service the Searcher needs
// to vectorize a query.
type Embedder interface {
	Embed(ctx context.Context, items []embed.Item) (map[string][]float32, []string, error)
}

// Store is the subset of internal/store.Store the Searcher reads.
type Store interface {
	FTSQuery(ctx context.Context, query string, limit int) ([]store.SearchCandidate, error)
	ObjectsByIDs(ctx context.Context, ids []int64) (map[int64]store.Object, error)
	ANN() *store.ANN
}

// Searcher answers queries by fusing FTS5 and ANN subqueries.
type Searcher struct {
	store    Store
	embedder Embedder
	root     string
	cache    *lru.Cache[[32]byte, []float32]
}

// New creates a Searcher rooted at repoRoot, used to resolve object
// bodies on demand.
func New(st Store, embedder Embedder, repoRoot string) (*Searcher, error) {
	cache, err := lru.New[[32]byte, []float32](128)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return &Searcher{store: st, embedder: embedder, root: repoRoot, cache: cache}, nil
}

// Search runs the lexical and semantic subqueries concurrently, fuses
// them with RRF (k=60), hydrates the top limit results, and drops any
// candidate whose byte range no longer fits its file's current size,
// promoting the next candidate in its place.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	pool := limit * candidatePoolMultiplier

	var lexical []store.SearchCandidate
	var semanticIDs []int64
	var semanticScores []float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexical, err = s.store.FTSQuery(gctx, query, pool)
		return err
	})
	g.Go(func() error {
		vec, err := s.embedQuery(gctx, query)
		if err != nil {
			return err
		}
		semanticIDs, semanticScores = s.store.ANN().Query(vec, pool)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(lexical, semanticIDs, semanticScores)

	return s.hydrate(ctx, fused, limit)
}

// embedQuery vectorizes query, checking the process-local LRU before
// calling the EmbeddingService.
func (s *Searcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := sha256.Sum256([]byte(query))
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	hash := fmt.Sprintf("%x", key)
	out, _, err := s.embedder.Embed(ctx, []embed.Item{{ContentHash: hash, Text: query}})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vec, ok := out[hash]
	if !ok {
		return nil, fmt.Errorf("embedding service returned no vector for query")
	}
	s.cache.Add(key, vec)
	return vec, nil
}

type fusedCandidate struct {
	id            int64
	fused         float64
	lexicalScore  float64
	semanticScore float64
	hasLexical    bool
	hasSemantic   bool
}

// fuse combines the lexical (BM25, lower is better) and semantic
// (cosine, higher is better) candidate lists via Reciprocal Rank
// Fusion: score(d) = sum over branches of 1/(k + rank(d)), rank 1-based.
// The result is ordered by fused score then semantic score only; the
// full tie-break (byte_range length, path) needs hydrated Objects and
// is applied in hydrate.
func fuse(lexical []store.SearchCandidate, semanticIDs []int64, semanticScores []float64) []fusedCandidate {
	byID := make(map[int64]*fusedCandidate)

	for rank, c := range lexical {
		fc := byID[c.ObjectID]
		if fc == nil {
			fc = &fusedCandidate{id: c.ObjectID}
			byID[c.ObjectID] = fc
		}
		fc.fused += 1.0 / (rrfK + float64(rank+1))
		fc.lexicalScore = c.Score
		fc.hasLexical = true
	}
	for rank, id := range semanticIDs {
		fc := byID[id]
		if fc == nil {
			fc = &fusedCandidate{id: id}
			byID[id] = fc
		}
		fc.fused += 1.0 / (rrfK + float64(rank+1))
		fc.semanticScore = semanticScores[rank]
		fc.hasSemantic = true
	}

	out := make([]fusedCandidate, 0, len(byID))
	for _, fc := range byID {
		out = append(out, *fc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].fused != out[j].fused {
			return out[i].fused > out[j].fused
		}
		return out[i].semanticScore > out[j].semanticScore
	})
	return out
}

// hydrate resolves fused candidates to full Objects and reads their
// body text from disk, skipping (and not counting toward limit) any
// candidate whose byte range no longer fits its file's current size —
// promoting the next candidate to fill the slot, per spec.md's stale-
// range handling. Final ordering breaks ties in fused/semantic score
// by (a) higher semantic similarity, (b) shorter byte_range, (c) path
// lexicographic order, per spec.md §4.7 — (b) and (c) need the
// hydrated Object, so the sort runs here rather than in fuse.
func (s *Searcher) hydrate(ctx context.Context, fused []fusedCandidate, limit int) ([]Result, error) {
	ids := make([]int64, len(fused))
	for i, fc := range fused {
		ids[i] = fc.id
	}
	objects, err := s.store.ObjectsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	type hydrated struct {
		fc  fusedCandidate
		obj store.Object
	}
	rows := make([]hydrated, 0, len(fused))
	for _, fc := range fused {
		if obj, ok := objects[fc.id]; ok {
			rows = append(rows, hydrated{fc: fc, obj: obj})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.fc.fused != b.fc.fused {
			return a.fc.fused > b.fc.fused
		}
		if a.fc.semanticScore != b.fc.semanticScore {
			return a.fc.semanticScore > b.fc.semanticScore
		}
		ra, rb := a.obj.ByteEnd-a.obj.ByteStart, b.obj.ByteEnd-b.obj.ByteStart
		if ra != rb {
			return ra < rb
		}
		return a.obj.Path < b.obj.Path
	})

	results := make([]Result, 0, limit)
	for _, row := range rows {
		if len(results) >= limit {
			break
		}
		body, ok := s.readBody(row.obj)
		if !ok {
			continue
		}
		results = append(results, Result{
			Object:        row.obj,
			Body:          body,
			FusedScore:    row.fc.fused,
			SemanticScore: row.fc.semanticScore,
			LexicalScore:  row.fc.lexicalScore,
		})
	}
	return results, nil
}

// readBody reads an object's byte range from disk, validating that the
// range still fits the file's current size (the file may have been
// truncated since the object was indexed).
func (s *Searcher) readBody(obj store.Object) (string, bool) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(obj.Path)))
	if err != nil {
		return "", false
	}
	if obj.ByteEnd > len(data) || obj.ByteStart < 0 || obj.ByteStart > obj.ByteEnd {
		return "", false
	}
	return string(data[obj.ByteStart:obj.ByteEnd]), true
}
