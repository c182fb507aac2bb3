package embed_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codebased/internal/embed"
)

type fakeCache struct {
	stored map[string][]float32
}

func (c *fakeCache) LookupEmbeddings(ctx context.Context, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32)
	for _, h := range hashes {
		if v, ok := c.stored[h]; ok {
			out[h] = v
		}
	}
	return out, nil
}

func newService(t *testing.T, baseURL string) *embed.Service {
	t.Helper()
	svc, err := embed.New(embed.Config{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: baseURL,
	}, &fakeCache{stored: map[string][]float32{}})
	require.NoError(t, err)
	return svc
}

func echoEmbeddingsServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dim)
			for j := range vec {
				vec[j] = float32(i + 1)
			}
			data[i] = map[string]any{"embedding": vec, "index": i}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestEmbedReturnsVectorPerItem(t *testing.T) {
	server := echoEmbeddingsServer(t, 4)
	defer server.Close()

	svc := newService(t, server.URL)
	items := []embed.Item{
		{ContentHash: "h1", Text: "hello world"},
		{ContentHash: "h2", Text: "goodbye world"},
	}

	vecs, quarantined, err := svc.Embed(context.Background(), items)
	require.NoError(t, err)
	assert.Empty(t, quarantined)
	assert.Len(t, vecs, 2)
	assert.Len(t, vecs["h1"], 4)
	assert.Len(t, vecs["h2"], 4)
}

func TestEmbedSkipsRemoteCallOnFullCacheHit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	svc, err := embed.New(embed.Config{APIKey: "k", Model: "m", BaseURL: server.URL},
		&fakeCache{stored: map[string][]float32{"cached": {1, 2, 3}}})
	require.NoError(t, err)

	vecs, _, err := svc.Embed(context.Background(), []embed.Item{{ContentHash: "cached", Text: "x"}})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vecs["cached"])
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestEmbedQuarantinesPermanentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad input"}`))
	}))
	defer server.Close()

	svc := newService(t, server.URL)
	vecs, quarantined, err := svc.Embed(context.Background(), []embed.Item{{ContentHash: "bad", Text: "x"}})
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Equal(t, []string{"bad"}, quarantined)
}

func TestEmbedRetriesOnRateLimitThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limited"}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"embedding": []float32{1, 2}, "index": i}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer server.Close()

	svc := newService(t, server.URL)
	vecs, quarantined, err := svc.Embed(context.Background(), []embed.Item{{ContentHash: "h1", Text: "x"}})
	require.NoError(t, err)
	assert.Empty(t, quarantined)
	assert.Equal(t, []float32{1, 2}, vecs["h1"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEmbedEmptyInputReturnsEmptyMap(t *testing.T) {
	svc := newService(t, "http://unused")
	vecs, quarantined, err := svc.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Empty(t, quarantined)
}
