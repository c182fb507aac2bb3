package search_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codebased/internal/embed"
	"codebased/internal/search"
	"codebased/internal/store"
)

type fakeStore struct {
	lexical []store.SearchCandidate
	objects map[int64]store.Object
	ann     *store.ANN
}

func (f *fakeStore) FTSQuery(ctx context.Context, query string, limit int) ([]store.SearchCandidate, error) {
	return f.lexical, nil
}

func (f *fakeStore) ObjectsByIDs(ctx context.Context, ids []int64) (map[int64]store.Object, error) {
	out := make(map[int64]store.Object, len(ids))
	for _, id := range ids {
		if o, ok := f.objects[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func (f *fakeStore) ANN() *store.ANN { return f.ann }

type fakeEmbedder struct {
	vector []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, items []embed.Item) (map[string][]float32, []string, error) {
	out := make(map[string][]float32, len(items))
	for _, it := range items {
		out[it.ContentHash] = f.vector
	}
	return out, nil, nil
}

func writeObjectFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestSearchFusesLexicalAndSemanticHits(t *testing.T) {
	root := t.TempDir()
	writeObjectFile(t, root, "a.go", "func Foo() {}\n")
	writeObjectFile(t, root, "b.go", "func Bar() {}\n")

	ann := store.NewANN("")
	ann.RebuildFrom([]store.EmbeddingEntry{
		{ObjectID: 2, Vector: []float32{1, 0}},
		{ObjectID: 1, Vector: []float32{0, 1}},
	}, 2)

	fs := &fakeStore{
		lexical: []store.SearchCandidate{{ObjectID: 1, Score: -5}},
		objects: map[int64]store.Object{
			1: {ID: 1, Path: "a.go", Name: "Foo", ByteStart: 0, ByteEnd: 13},
			2: {ID: 2, Path: "b.go", Name: "Bar", ByteStart: 0, ByteEnd: 13},
		},
		ann: ann,
	}
	searcher, err := search.New(fs, &fakeEmbedder{vector: []float32{1, 0}}, root)
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "foo", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Object 1 is ranked by both branches (lexical rank 1, semantic rank
	// 2); object 2 only by the semantic branch (rank 1) — RRF should
	// still place object 1 first since it accumulates two branch scores.
	assert.Equal(t, int64(1), results[0].Object.ID)
	assert.Equal(t, "func Foo() {}", results[0].Body)
}

func TestSearchPopulatesLexicalScore(t *testing.T) {
	root := t.TempDir()
	writeObjectFile(t, root, "a.go", "func Foo() {}\n")

	ann := store.NewANN("")
	fs := &fakeStore{
		lexical: []store.SearchCandidate{{ObjectID: 1, Score: -3.5}},
		objects: map[int64]store.Object{
			1: {ID: 1, Path: "a.go", Name: "Foo", ByteStart: 0, ByteEnd: 13},
		},
		ann: ann,
	}
	searcher, err := search.New(fs, &fakeEmbedder{vector: nil}, root)
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "foo", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, -3.5, results[0].LexicalScore)
}

func TestSearchOrdersByFusedRankWhenSemanticEmpty(t *testing.T) {
	root := t.TempDir()
	writeObjectFile(t, root, "a.go", "func First() {}\n")
	writeObjectFile(t, root, "b.go", "func Second() {}\n")

	ann := store.NewANN("")
	fs := &fakeStore{
		lexical: []store.SearchCandidate{
			{ObjectID: 1, Score: -5},
			{ObjectID: 2, Score: -1},
		},
		objects: map[int64]store.Object{
			1: {ID: 1, Path: "a.go", Name: "First", ByteStart: 0, ByteEnd: 16},
			2: {ID: 2, Path: "b.go", Name: "Second", ByteStart: 0, ByteEnd: 17},
		},
		ann: ann,
	}
	searcher, err := search.New(fs, &fakeEmbedder{vector: nil}, root)
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "x", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Object 1 leads the lexical result list (better BM25 rank), so it
	// gets the larger RRF contribution and ranks first; the semantic
	// branch is empty, so no other score enters the fusion.
	assert.Equal(t, int64(1), results[0].Object.ID)
	assert.Equal(t, int64(2), results[1].Object.ID)
}

func TestSearchSkipsStaleByteRange(t *testing.T) {
	root := t.TempDir()
	writeObjectFile(t, root, "a.go", "short\n")

	ann := store.NewANN("")
	fs := &fakeStore{
		lexical: []store.SearchCandidate{{ObjectID: 1, Score: -1}},
		objects: map[int64]store.Object{
			1: {ID: 1, Path: "a.go", Name: "Stale", ByteStart: 0, ByteEnd: 999},
		},
		ann: ann,
	}
	searcher, err := search.New(fs, &fakeEmbedder{vector: nil}, root)
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "stale", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchCachesQueryEmbedding(t *testing.T) {
	root := t.TempDir()
	ann := store.NewANN("")
	calls := 0
	embedder := &countingEmbedder{fakeEmbedder: fakeEmbedder{vector: []float32{1}}, calls: &calls}

	fs := &fakeStore{ann: ann, objects: map[int64]store.Object{}}
	searcher, err := search.New(fs, embedder, root)
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "repeat", 5)
	require.NoError(t, err)
	_, err = searcher.Search(context.Background(), "repeat", 5)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

type countingEmbedder struct {
	fakeEmbedder
	calls *int
}

func (c *countingEmbedder) Embed(ctx context.Context, items []embed.Item) (map[string][]float32, []string, error) {
	*c.calls++
	return c.fakeEmbedder.Embed(ctx, items)
}
