// Package embed implements EmbeddingService: cache-first, batched,
// retrying text-to-vector calls against an OpenAI-compatible embedding
// endpoint. Grounded on the teacher's internal/embedder.OllamaEmbedder
// (batched HTTP POST, JSON in/out), generalized to the spec's
// cache/batch/retry/backpressure contract.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"codebased/internal/errs"
	"codebased/internal/logging"
)

// Config controls batching, concurrency, and retry behavior.
type Config struct {
	APIKey      string
	Model       string
	Dimension   int
	BaseURL     string // defaults to https://api.openai.com/v1
	MaxBatch    int    // B_MAX, item count per remote batch
	MaxTokens   int    // T_MAX, token budget per remote batch
	MaxInput    int    // per-item max input tokens before truncation
	Concurrent  int    // C_CONCURRENT, in-flight batch cap
	BatchWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 96
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 250_000
	}
	if c.MaxInput <= 0 {
		c.MaxInput = 8_000
	}
	if c.Concurrent <= 0 {
		c.Concurrent = 4
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = 200 * time.Millisecond
	}
	return c
}

// Cache is the subset of internal/store.Store the service needs for
// cache-first lookups, kept as an interface so tests can fake it.
type Cache interface {
	LookupEmbeddings(ctx context.Context, hashes []string) (map[string][]float32, error)
}

// Item is one piece of text to embed, keyed by its content fingerprint.
type Item struct {
	ContentHash string
	Text        string
}

// Service is the EmbeddingService: cache-first lookup, token-budgeted
// batching, retrying HTTP calls, and bounded concurrency.
type Service struct {
	cfg    Config
	cache  Cache
	client *http.Client
	sem    *semaphore.Weighted
	enc    *tiktoken.Tiktoken
}

// New creates a Service, loading the cl100k_base tokenizer up front;
// it fails if the tokenizer cannot be loaded.
func New(cfg Config, cache Cache) (*Service, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding api key is required", errs.ErrConfig)
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &Service{
		cfg:    cfg,
		cache:  cache,
		client: &http.Client{Timeout: 60 * time.Second},
		sem:    semaphore.NewWeighted(int64(cfg.Concurrent)),
		enc:    enc,
	}, nil
}

// Embed resolves a vector for every item, checking the cache first and
// only calling the remote endpoint for the miss set. The returned map
// is keyed by content hash; an item whose remote call permanently
// failed (a non-retryable 4xx) is simply absent from the result, and
// its hash is returned in the quarantined slice.
func (s *Service) Embed(ctx context.Context, items []Item) (vectors map[string][]float32, quarantined []string, err error) {
	if len(items) == 0 {
		return map[string][]float32{}, nil, nil
	}

	hashes := make([]string, len(items))
	byHash := make(map[string]Item, len(items))
	for i, it := range items {
		hashes[i] = it.ContentHash
		byHash[it.ContentHash] = it
	}

	cached, err := s.cache.LookupEmbeddings(ctx, hashes)
	if err != nil {
		return nil, nil, fmt.Errorf("cache lookup: %w", err)
	}

	var miss []Item
	for _, it := range items {
		if _, ok := cached[it.ContentHash]; !ok {
			miss = append(miss, it)
		}
	}
	if len(miss) == 0 {
		return cached, nil, nil
	}

	batches := s.batch(miss)

	g, gctx := errgroup.WithContext(ctx)
	results := make([]map[string][]float32, len(batches))
	failures := make([][]string, len(batches))
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			if err := s.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer s.sem.Release(1)

			vecs, bad, err := s.embedBatchWithRetry(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = vecs
			failures[i] = bad
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := cached
	for _, m := range results {
		for h, v := range m {
			out[h] = v
		}
	}
	for _, bad := range failures {
		quarantined = append(quarantined, bad...)
	}
	return out, quarantined, nil
}

// batch groups items into remote calls bounded by MaxBatch items and
// MaxTokens total tokens, truncating any single item that alone
// exceeds MaxInput tokens.
func (s *Service) batch(items []Item) [][]Item {
	var batches [][]Item
	var cur []Item
	curTokens := 0

	for _, it := range items {
		it.Text = s.truncate(it.Text)
		n := len(s.enc.Encode(it.Text, nil, nil))

		if len(cur) > 0 && (len(cur) >= s.cfg.MaxBatch || curTokens+n > s.cfg.MaxTokens) {
			batches = append(batches, cur)
			cur = nil
			curTokens = 0
		}
		cur = append(cur, it)
		curTokens += n
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// truncate cuts text to at most MaxInput tokens at a line boundary,
// preferring to drop trailing partial context over the object body.
func (s *Service) truncate(text string) string {
	toks := s.enc.Encode(text, nil, nil)
	if len(toks) <= s.cfg.MaxInput {
		return text
	}
	limited := s.enc.Decode(toks[:s.cfg.MaxInput])
	if nl := lastNewline(limited); nl > 0 {
		return limited[:nl]
	}
	return limited
}

func lastNewline(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponseItem struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embedResponse struct {
	Data []embedResponseItem `json:"data"`
}

// embedBatchWithRetry calls the remote endpoint with exponential
// backoff, splitting the batch and quarantining offenders on a
// permanent (non-408/429) 4xx.
func (s *Service) embedBatchWithRetry(ctx context.Context, batch []Item) (map[string][]float32, []string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.RandomizationFactor = 0.25
	boCtx := backoff.WithContext(backoff.WithMaxRetries(bo, 5), ctx)

	var vecs [][]float32
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		got, permErr, transientErr := s.callOnce(callCtx, batch)
		if permErr != nil {
			return backoff.Permanent(permErr)
		}
		if transientErr != nil {
			return transientErr
		}
		vecs = got
		return nil
	}

	if err := backoff.Retry(op, boCtx); err != nil {
		var permErr *permanentBatchError
		if asPermanent(err, &permErr) {
			return s.splitAndQuarantine(ctx, batch, permErr)
		}
		return nil, nil, fmt.Errorf("%w: %v", errs.ErrEmbeddingTransient, err)
	}

	out := make(map[string][]float32, len(batch))
	for i, it := range batch {
		out[it.ContentHash] = vecs[i]
	}
	return out, nil, nil
}

type permanentBatchError struct {
	statusCode int
	body       string
}

func (e *permanentBatchError) Error() string {
	return fmt.Sprintf("embedding endpoint returned %d: %s", e.statusCode, e.body)
}

func asPermanent(err error, target **permanentBatchError) bool {
	for err != nil {
		if pe, ok := err.(*permanentBatchError); ok {
			*target = pe
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// callOnce performs a single HTTP round trip. A retryable failure
// (network error, 5xx, 408, 429) is returned as transientErr; a
// non-retryable 4xx is returned as permErr.
func (s *Service) callOnce(ctx context.Context, batch []Item) (vecs [][]float32, permErr, transientErr error) {
	texts := make([]string, len(batch))
	for i, it := range batch {
		texts[i] = it.Text
	}

	body, err := json.Marshal(embedRequest{Model: s.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, nil, fmt.Errorf("embedding endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &permanentBatchError{statusCode: resp.StatusCode, body: string(respBody)}, nil
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil, nil
}

// splitAndQuarantine bisects the batch on a permanent failure, so a
// single malformed item doesn't sink the rest of the batch: singleton
// batches that still fail are quarantined outright.
func (s *Service) splitAndQuarantine(ctx context.Context, batch []Item, cause *permanentBatchError) (map[string][]float32, []string, error) {
	logger := logging.From(ctx)
	if len(batch) == 1 {
		logger.Warn("quarantining item after permanent embedding failure",
			"content_hash", batch[0].ContentHash, "status", cause.statusCode)
		return map[string][]float32{}, []string{batch[0].ContentHash}, nil
	}

	mid := len(batch) / 2
	left, leftBad, err := s.embedBatchWithRetry(ctx, batch[:mid])
	if err != nil {
		return nil, nil, err
	}
	right, rightBad, err := s.embedBatchWithRetry(ctx, batch[mid:])
	if err != nil {
		return nil, nil, err
	}
	for h, v := range right {
		left[h] = v
	}
	return left, append(leftBad, rightBad...), nil
}
