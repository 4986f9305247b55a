// Package retry wraps github.com/cenkalti/backoff/v4 with the policy the
// pipeline applies to every upstream LLM and embedding call: a bounded number
// of exponential-backoff-with-jitter attempts, escalating to
// [pipelineerr.UpstreamUnavailable] once attempts are exhausted.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hieromt/hieromt/internal/pipelineerr"
)

// Policy configures [Do]'s retry behaviour.
type Policy struct {
	// MaxAttempts caps the total number of calls to fn, including the first.
	// Default: 3.
	MaxAttempts int

	// InitialInterval is the backoff delay before the second attempt.
	// Default: 500ms.
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay between attempts. Default: 10s.
	MaxInterval time.Duration
}

// defaultPolicy mirrors spec 6's default retry_max_attempts of 3.
var defaultPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

// Permanent wraps err so [Do] stops retrying immediately and returns err
// unwrapped from its UpstreamUnavailable escalation. Use this for errors that
// retrying cannot fix, such as a 4xx from a malformed request.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls fn, retrying on transient failure per policy. If policy is the
// zero value, [defaultPolicy] is used. Once attempts are exhausted, the last
// error is wrapped with [pipelineerr.UpstreamUnavailable]. A context
// cancellation is propagated without the UpstreamUnavailable wrap, since it
// reflects caller intent rather than an unreachable upstream.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy = defaultPolicy
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.MaxElapsedTime = 0 // bounded by MaxAttempts, not wall time

	bounded := backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))
	withCtx := backoff.WithContext(bounded, ctx)

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = fn(ctx)
		return lastErr
	}, withCtx)

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var permanent *backoff.PermanentError
	if errors.As(lastErr, &permanent) {
		return err
	}
	return fmt.Errorf("retry: attempts exhausted: %w: %w", pipelineerr.UpstreamUnavailable, lastErr)
}
