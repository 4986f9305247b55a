// Package embedclient wraps an [embeddings.Provider] with the concurrency
// bound, batching, and (model, text) memoisation the pipeline relies on for
// its dense-vector retrieval passes (spec 4.2, C2).
package embedclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hieromt/hieromt/internal/retry"
	"github.com/hieromt/hieromt/internal/telemetry"
	"github.com/hieromt/hieromt/pkg/provider/embeddings"
)

// Option configures a [Client].
type Option func(*Client)

// WithMaxConcurrent bounds the number of in-flight embedding calls. Default: 10.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = make(chan struct{}, n)
		}
	}
}

// WithRetryPolicy overrides the retry policy used for transient failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithMetrics overrides the [telemetry.Metrics] instance. Defaults to
// [telemetry.DefaultMetrics].
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithProviderName tags recorded metrics with a provider label.
func WithProviderName(name string) Option {
	return func(c *Client) { c.providerName = name }
}

// WithCache enables an in-memory (model, text) -> vector cache. Disabled by
// default; enable for preprocessing and termbase ingest workloads that
// re-embed the same strings repeatedly across a run.
func WithCache() Option {
	return func(c *Client) { c.cacheEnabled = true }
}

// Client adapts an [embeddings.Provider] with concurrency bounding, retry,
// and optional memoisation.
type Client struct {
	backend      embeddings.Provider
	sem          chan struct{}
	policy       retry.Policy
	metrics      *telemetry.Metrics
	providerName string

	cacheEnabled bool
	cacheMu      sync.RWMutex
	cache        map[string][]float32
}

// New wraps backend with the pipeline's embedding client contract.
func New(backend embeddings.Provider, opts ...Option) *Client {
	c := &Client{
		backend:      backend,
		sem:          make(chan struct{}, 10),
		policy:       retry.Policy{MaxAttempts: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second},
		metrics:      telemetry.DefaultMetrics(),
		providerName: "unknown",
		cache:        make(map[string][]float32),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) cacheKey(text string) string {
	return c.backend.ModelID() + "\x00" + text
}

// Embed computes the embedding for a single string, consulting the cache
// first when enabled.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.cacheEnabled {
		if v, ok := c.cacheGet(text); ok {
			return v, nil
		}
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	start := time.Now()
	var vec []float32
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var innerErr error
		vec, innerErr = c.backend.Embed(ctx, text)
		return innerErr
	})
	c.metrics.EmbedDuration.Record(ctx, time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		c.metrics.RecordProviderError(ctx, c.providerName, "embeddings")
	}
	c.metrics.RecordProviderRequest(ctx, c.providerName, "embeddings", status)

	if err != nil {
		return nil, fmt.Errorf("embedclient: embed: %w", err)
	}
	if c.cacheEnabled {
		c.cacheSet(text, vec)
	}
	return vec, nil
}

// EmbedBatch computes embeddings for texts, splitting cache hits from
// misses and issuing a single backend call for the misses.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missIdx []int
	var missTexts []string
	if c.cacheEnabled {
		for i, t := range texts {
			if v, ok := c.cacheGet(t); ok {
				out[i] = v
			} else {
				missIdx = append(missIdx, i)
				missTexts = append(missTexts, t)
			}
		}
	} else {
		missIdx = make([]int, len(texts))
		for i := range texts {
			missIdx[i] = i
		}
		missTexts = texts
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	start := time.Now()
	var vecs [][]float32
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var innerErr error
		vecs, innerErr = c.backend.EmbedBatch(ctx, missTexts)
		return innerErr
	})
	c.metrics.EmbedDuration.Record(ctx, time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		c.metrics.RecordProviderError(ctx, c.providerName, "embeddings")
	}
	c.metrics.RecordProviderRequest(ctx, c.providerName, "embeddings", status)

	if err != nil {
		return nil, fmt.Errorf("embedclient: embed batch: %w", err)
	}

	for i, idx := range missIdx {
		out[idx] = vecs[i]
		if c.cacheEnabled {
			c.cacheSet(missTexts[i], vecs[i])
		}
	}
	return out, nil
}

// Dimensions delegates to the backend.
func (c *Client) Dimensions() int { return c.backend.Dimensions() }

// ModelID delegates to the backend.
func (c *Client) ModelID() string { return c.backend.ModelID() }

func (c *Client) cacheGet(text string) ([]float32, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	v, ok := c.cache[c.cacheKey(text)]
	return v, ok
}

func (c *Client) cacheSet(text string, vec []float32) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[c.cacheKey(text)] = vec
}

var _ embeddings.Provider = (*Client)(nil)
