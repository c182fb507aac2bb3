package fingerprint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	byPath map[string]Fingerprint
	all    []string
}

func (f *fakeStore) Fingerprint(ctx context.Context, path string) (Fingerprint, bool, error) {
	fp, ok := f.byPath[path]
	return fp, ok, nil
}

func (f *fakeStore) AllPaths(ctx context.Context) ([]string, error) {
	return f.all, nil
}

func readFrom(contents map[string][]byte) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		return contents[path], nil
	}
}

func TestScanClassifiesAddedModifiedUnchangedRemoved(t *testing.T) {
	store := &fakeStore{
		byPath: map[string]Fingerprint{
			"unchanged.go": {Path: "unchanged.go", Size: 10, ModTimeNano: 100, ContentHash: "deadbeef"},
			"modified.go":  {Path: "modified.go", Size: 10, ModTimeNano: 100, ContentHash: "oldhash"},
		},
		all: []string{"unchanged.go", "modified.go", "removed.go"},
	}
	candidates := []Candidate{
		{Path: "unchanged.go", Size: 10, ModTimeNano: 100},
		{Path: "modified.go", Size: 20, ModTimeNano: 200},
		{Path: "added.go", Size: 5, ModTimeNano: 50},
	}
	contents := map[string][]byte{
		"modified.go": []byte("new content"),
		"added.go":    []byte("added content"),
	}

	result, err := Scan(context.Background(), store, candidates, readFrom(contents))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"unchanged.go"}, result.Unchanged)
	assert.ElementsMatch(t, []string{"removed.go"}, result.Removed)
	require.Len(t, result.Modified, 1)
	assert.Equal(t, "modified.go", result.Modified[0].Path)
	require.Len(t, result.Added, 1)
	assert.Equal(t, "added.go", result.Added[0].Path)
}

func TestScanTreatsMetadataOnlyChangeAsUnchanged(t *testing.T) {
	content := []byte("same bytes")
	sameHash := hashFor(t, content)
	store := &fakeStore{
		byPath: map[string]Fingerprint{
			"touched.go": {Path: "touched.go", Size: 10, ModTimeNano: 100, ContentHash: sameHash},
		},
		all: []string{"touched.go"},
	}
	candidates := []Candidate{{Path: "touched.go", Size: 10, ModTimeNano: 999}}
	contents := map[string][]byte{"touched.go": content}

	result, err := Scan(context.Background(), store, candidates, readFrom(contents))
	require.NoError(t, err)

	assert.Equal(t, []string{"touched.go"}, result.Unchanged)
	assert.Empty(t, result.Modified)
}

func TestScanNeverSeenPathIsAdded(t *testing.T) {
	store := &fakeStore{byPath: map[string]Fingerprint{}}
	candidates := []Candidate{{Path: "brand-new.go", Size: 1, ModTimeNano: 1}}
	contents := map[string][]byte{"brand-new.go": []byte("x")}

	result, err := Scan(context.Background(), store, candidates, readFrom(contents))
	require.NoError(t, err)
	require.Len(t, result.Added, 1)
	assert.Equal(t, "brand-new.go", result.Added[0].Path)
}

func hashFor(t *testing.T, b []byte) string {
	t.Helper()
	h, err := hashFile("ignored", func(string) ([]byte, error) { return b, nil })
	require.NoError(t, err)
	return h
}
