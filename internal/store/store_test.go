package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codebased/internal/fingerprint"
	"codebased/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "index.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestWriteRevisionThenFTSQueryFindsObject(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	rev := store.Revision{
		File: fingerprint.Fingerprint{Path: "a.go", Size: 10, ModTimeNano: 1, ContentHash: "filehash"},
		Objects: []store.ObjectRecord{
			{Path: "a.go", Name: "Widget", Language: "go", Kind: "struct", ByteStart: 0, ByteEnd: 20,
				ContentHash: "objhash1", Body: "type Widget struct{}"},
		},
	}
	require.NoError(t, st.WriteRevision(ctx, rev))

	candidates, err := st.FTSQuery(ctx, "Widget", 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	objs, err := st.ObjectsByIDs(ctx, []int64{candidates[0].ObjectID})
	require.NoError(t, err)
	require.Contains(t, objs, candidates[0].ObjectID)
	assert.Equal(t, "Widget", objs[candidates[0].ObjectID].Name)
}

func TestWriteRevisionAttachesEmbeddingAndPublishesANN(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	rev := store.Revision{
		File: fingerprint.Fingerprint{Path: "b.go", Size: 5, ModTimeNano: 1, ContentHash: "filehash2"},
		Objects: []store.ObjectRecord{
			{Path: "b.go", Name: "Do", Language: "go", Kind: "function", ContentHash: "objhash2", Body: "func Do(){}"},
		},
		Embeddings: map[string][]float32{"objhash2": {1, 0, 0}},
	}
	require.NoError(t, st.WriteRevision(ctx, rev))

	assert.Equal(t, 1, st.ANN().Count())
	ids, scores := st.ANN().Query([]float32{1, 0, 0}, 5)
	require.Len(t, ids, 1)
	assert.InDelta(t, 1.0, scores[0], 1e-6)
}

func TestWriteRevisionReusesCachedEmbeddingByContentHash(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	first := store.Revision{
		File: fingerprint.Fingerprint{Path: "c.go", Size: 5, ModTimeNano: 1, ContentHash: "fh"},
		Objects: []store.ObjectRecord{
			{Path: "c.go", Name: "Shared", Language: "go", Kind: "function", ContentHash: "shared-hash", Body: "func Shared(){}"},
		},
		Embeddings: map[string][]float32{"shared-hash": {0.5, 0.5}},
	}
	require.NoError(t, st.WriteRevision(ctx, first))

	// A second file whose object has the identical content hash should
	// reuse the cached vector without the caller resupplying it.
	second := store.Revision{
		File: fingerprint.Fingerprint{Path: "d.go", Size: 5, ModTimeNano: 1, ContentHash: "fh2"},
		Objects: []store.ObjectRecord{
			{Path: "d.go", Name: "SharedCopy", Language: "go", Kind: "function", ContentHash: "shared-hash", Body: "func Shared(){}"},
		},
	}
	require.NoError(t, st.WriteRevision(ctx, second))

	assert.Equal(t, 2, st.ANN().Count())
}

func TestRemoveFileDeletesObjectsAndANNEntries(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	rev := store.Revision{
		File: fingerprint.Fingerprint{Path: "e.go", Size: 5, ModTimeNano: 1, ContentHash: "fh"},
		Objects: []store.ObjectRecord{
			{Path: "e.go", Name: "Gone", Language: "go", Kind: "function", ContentHash: "gone-hash", Body: "func Gone(){}"},
		},
		Embeddings: map[string][]float32{"gone-hash": {1, 1}},
	}
	require.NoError(t, st.WriteRevision(ctx, rev))
	require.Equal(t, 1, st.ANN().Count())

	require.NoError(t, st.RemoveFile(ctx, "e.go"))
	assert.Equal(t, 0, st.ANN().Count())

	paths, err := st.AllPaths(ctx)
	require.NoError(t, err)
	assert.NotContains(t, paths, "e.go")
}

func TestResetAllClearsCatalogAndANN(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	rev := store.Revision{
		File: fingerprint.Fingerprint{Path: "f.go", Size: 5, ModTimeNano: 1, ContentHash: "fh"},
		Objects: []store.ObjectRecord{
			{Path: "f.go", Name: "X", Language: "go", Kind: "function", ContentHash: "xh", Body: "func X(){}"},
		},
		Embeddings: map[string][]float32{"xh": {1}},
	}
	require.NoError(t, st.WriteRevision(ctx, rev))

	require.NoError(t, st.ResetAll(ctx))

	paths, err := st.AllPaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Equal(t, 0, st.ANN().Count())
}

func TestFailureCountLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	count, hash, err := st.FailureCount(ctx, "g.go")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, hash)

	require.NoError(t, st.RecordFailure(ctx, "g.go", "h1"))
	require.NoError(t, st.RecordFailure(ctx, "g.go", "h1"))
	count, hash, err = st.FailureCount(ctx, "g.go")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, "h1", hash)

	require.NoError(t, st.ClearFailure(ctx, "g.go"))
	count, _, err = st.FailureCount(ctx, "g.go")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLoadOrRebuildANNLoadsPersistedSnapshotOnReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "index.db")
	annPath := filepath.Join(dir, "ann.bin")
	ctx := context.Background()

	st, err := store.Open(dbPath, annPath)
	require.NoError(t, err)
	rev := store.Revision{
		File: fingerprint.Fingerprint{Path: "a.go", Size: 5, ModTimeNano: 1, ContentHash: "fh"},
		Objects: []store.ObjectRecord{
			{Path: "a.go", Name: "X", Language: "go", Kind: "function", ContentHash: "xh", Body: "func X(){}"},
		},
		Embeddings: map[string][]float32{"xh": {1, 0, 0}},
	}
	require.NoError(t, st.WriteRevision(ctx, rev))
	require.NoError(t, st.Close())

	reopened, err := store.Open(dbPath, annPath)
	require.NoError(t, err)
	defer reopened.Close()

	// ann.bin was persisted on the prior write, so this should load the
	// snapshot straight off disk rather than rescanning the embedding
	// table — the fast path spec.md §4.5 describes.
	require.NoError(t, reopened.LoadOrRebuildANN(ctx, 3))
	assert.Equal(t, 1, reopened.ANN().Count())

	ids, scores := reopened.ANN().Query([]float32{1, 0, 0}, 5)
	require.Len(t, ids, 1)
	assert.InDelta(t, 1.0, scores[0], 1e-6)
}

func TestLoadOrRebuildANNRebuildsOnCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "index.db")
	annPath := filepath.Join(dir, "ann.bin")
	ctx := context.Background()

	st, err := store.Open(dbPath, annPath)
	require.NoError(t, err)
	rev := store.Revision{
		File: fingerprint.Fingerprint{Path: "b.go", Size: 5, ModTimeNano: 1, ContentHash: "fh2"},
		Objects: []store.ObjectRecord{
			{Path: "b.go", Name: "Y", Language: "go", Kind: "function", ContentHash: "yh", Body: "func Y(){}"},
		},
		Embeddings: map[string][]float32{"yh": {0, 1, 0}},
	}
	require.NoError(t, st.WriteRevision(ctx, rev))
	require.NoError(t, st.Close())

	// Simulate a corrupt/truncated ann.bin — the magic header no longer
	// parses.
	require.NoError(t, os.WriteFile(annPath, []byte("not an ann snapshot"), 0o644))

	reopened, err := store.Open(dbPath, annPath)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.LoadOrRebuildANN(ctx, 3))
	assert.Equal(t, 1, reopened.ANN().Count())
}

func TestLoadOrRebuildANNRebuildsOnDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "index.db")
	annPath := filepath.Join(dir, "ann.bin")
	ctx := context.Background()

	st, err := store.Open(dbPath, annPath)
	require.NoError(t, err)
	rev := store.Revision{
		File: fingerprint.Fingerprint{Path: "c.go", Size: 5, ModTimeNano: 1, ContentHash: "fh3"},
		Objects: []store.ObjectRecord{
			{Path: "c.go", Name: "Z", Language: "go", Kind: "function", ContentHash: "zh", Body: "func Z(){}"},
		},
		Embeddings: map[string][]float32{"zh": {1, 1, 1}},
	}
	require.NoError(t, st.WriteRevision(ctx, rev))
	require.NoError(t, st.Close())

	reopened, err := store.Open(dbPath, annPath)
	require.NoError(t, err)
	defer reopened.Close()

	// Asking for a different dimension than the persisted snapshot's
	// header records forces the guided rebuild even though ann.bin
	// parses cleanly.
	require.NoError(t, reopened.LoadOrRebuildANN(ctx, 4))
	assert.Equal(t, 1, reopened.ANN().Count())
}

func TestMetaSaveLoadRoundTripAndMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.toml")

	_, ok, err := store.LoadMeta(path)
	require.NoError(t, err)
	assert.False(t, ok)

	m := store.PersistedMeta{SchemaVersion: store.SchemaVersion, EmbeddingModel: "m1", EmbeddingDimension: 8}
	require.NoError(t, store.SaveMeta(path, m))

	loaded, ok, err := store.LoadMeta(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, loaded.Matches("m1", 8))
	assert.False(t, loaded.Matches("m2", 8))
}
