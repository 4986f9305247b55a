// Package llmclient wraps an [llm.Provider] with the concurrency, retry, and
// structured-output contract every pipeline component depends on (spec 4.1,
// C1): a bounded number of in-flight calls, exponential-backoff retry on
// transient failure escalating to [pipelineerr.UpstreamUnavailable], and a
// single JSON-repair retry for agents that require structured output.
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hieromt/hieromt/internal/pipelineerr"
	"github.com/hieromt/hieromt/internal/retry"
	"github.com/hieromt/hieromt/internal/telemetry"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/types"
)

// Option configures a [Client].
type Option func(*Client)

// WithMaxConcurrent bounds the number of in-flight Complete/CompleteJSON
// calls. Default: 10.
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

// WithMetrics overrides the [telemetry.Metrics] instance used to record
// provider call latency and outcome. Defaults to [telemetry.DefaultMetrics].
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithProviderName tags recorded metrics with a provider label (e.g., "openai").
func WithProviderName(name string) Option {
	return func(c *Client) { c.providerName = name }
}

// WithLogger overrides the client's logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client adapts an [llm.Provider] for use by the refinement layers: every
// call is concurrency-bounded and retried per policy.
type Client struct {
	backend      llm.Provider
	sem          chan struct{}
	policy       retry.Policy
	metrics      *telemetry.Metrics
	providerName string
	log          *slog.Logger
}

// New wraps backend with the pipeline's concurrency/retry/observability
// contract.
func New(backend llm.Provider, opts ...Option) *Client {
	c := &Client{
		backend:      backend,
		sem:          make(chan struct{}, 10),
		policy:       retry.Policy{MaxAttempts: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second},
		metrics:      telemetry.DefaultMetrics(),
		providerName: "unknown",
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// acquire blocks until a concurrency slot is free or ctx is cancelled.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() { <-c.sem }

// Complete sends req to the backend, retrying transient failures per policy.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	c.metrics.InFlightLLMCalls.Add(ctx, 1)
	defer c.metrics.InFlightLLMCalls.Add(ctx, -1)

	start := time.Now()
	var resp *llm.CompletionResponse
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var innerErr error
		resp, innerErr = c.backend.Complete(ctx, req)
		return innerErr
	})
	c.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		c.metrics.RecordProviderError(ctx, c.providerName, "llm")
	}
	c.metrics.RecordProviderRequest(ctx, c.providerName, "llm", status)

	if err != nil {
		return nil, fmt.Errorf("llmclient: complete: %w", err)
	}
	return resp, nil
}

// CompleteJSON sends req (req.SystemPrompt should instruct the model to
// respond with JSON matching target's shape) and unmarshals the response
// content into target. If the first response fails to parse, exactly one
// repair attempt is made: the malformed output and the parse error are
// appended to the conversation and the model is asked to emit corrected
// JSON. A second failure is reported as [pipelineerr.MalformedModelOutput].
func (c *Client) CompleteJSON(ctx context.Context, req llm.CompletionRequest, target any) error {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return err
	}

	perr := unmarshalJSON(resp.Content, target)
	if perr == nil {
		return nil
	}

	c.log.WarnContext(ctx, "llmclient: model output failed to parse as JSON, attempting one repair retry", "error", perr)

	repairReq := req
	repairReq.Messages = append(append([]types.Message{}, req.Messages...),
		types.Message{Role: "assistant", Content: resp.Content},
		types.Message{Role: "user", Content: fmt.Sprintf(
			"Your previous response was not valid JSON. Error: %s. Respond again with only corrected, valid JSON matching the requested shape.",
			perr.Error(),
		)},
	)

	repairResp, rerr := c.Complete(ctx, repairReq)
	if rerr != nil {
		return rerr
	}
	if perr2 := unmarshalJSON(repairResp.Content, target); perr2 != nil {
		return fmt.Errorf("llmclient: %w: %w", pipelineerr.MalformedModelOutput, perr2)
	}
	return nil
}

// CountTokens delegates to the backend's token counter.
func (c *Client) CountTokens(messages []types.Message) (int, error) {
	return c.backend.CountTokens(messages)
}

// Capabilities delegates to the backend.
func (c *Client) Capabilities() types.ModelCapabilities {
	return c.backend.Capabilities()
}

// unmarshalJSON trims common markdown code-fence wrapping before decoding,
// since models frequently wrap JSON output in ```json fences despite
// instructions not to.
func unmarshalJSON(s string, target any) error {
	return json.Unmarshal([]byte(stripCodeFence(s)), target)
}

func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	const fence = "```"
	if !strings.HasPrefix(trimmed, fence) {
		return trimmed
	}
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	}
	if end := strings.LastIndex(trimmed, fence); end >= 0 {
		trimmed = trimmed[:end]
	}
	return strings.TrimSpace(trimmed)
}
