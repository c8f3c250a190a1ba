package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/parleylabs/parley/internal/logger"
)

// RetryPolicy controls exponential backoff for transient provider
// failures.
type RetryPolicy struct {
	// InitialWait is the delay before the first retry.
	InitialWait time.Duration
	// Factor multiplies the wait after every attempt.
	Factor float64
	// MaxWait caps the backoff delay.
	MaxWait time.Duration
	// MaxAttempts bounds total attempts (including the first). Zero
	// means retry forever; unbounded retry is a deliberate opt-in, not
	// the default.
	MaxAttempts int
}

// DefaultRetryPolicy matches the backoff the provider backends expect:
// waits grow by 1.5x from one second up to a minute, giving up after
// ten attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialWait: time.Second,
		Factor:      1.5,
		MaxWait:     60 * time.Second,
		MaxAttempts: 10,
	}
}

type retryClient struct {
	next   Client
	policy RetryPolicy
}

// WithRetry wraps next so that transient provider errors (rate limit,
// connection, timeout, server) are retried with exponential backoff.
// Every other error passes through untouched on the first attempt.
func WithRetry(next Client, policy RetryPolicy) Client {
	if policy.Factor <= 1 {
		policy.Factor = DefaultRetryPolicy().Factor
	}
	if policy.InitialWait <= 0 {
		policy.InitialWait = DefaultRetryPolicy().InitialWait
	}
	if policy.MaxWait <= 0 {
		policy.MaxWait = DefaultRetryPolicy().MaxWait
	}
	return &retryClient{next: next, policy: policy}
}

func (c *retryClient) Complete(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error) {
	wait := c.policy.InitialWait
	for attempt := 1; ; attempt++ {
		resp, err := c.next.Complete(ctx, model, prompt, params)
		if err == nil {
			return resp, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		if c.policy.MaxAttempts > 0 && attempt >= c.policy.MaxAttempts {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		// Connection drops happen in bulk and carry no signal, so they
		// back off silently; everything else is logged with its detail.
		if kind, ok := ErrKind(err); !ok || kind != KindConnection {
			logger.Warn("retrying after transient provider error",
				"model", model,
				"attempt", attempt,
				"wait", wait,
				"error", err)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		wait = time.Duration(float64(wait) * c.policy.Factor)
		if wait > c.policy.MaxWait {
			wait = c.policy.MaxWait
		}
	}
}
