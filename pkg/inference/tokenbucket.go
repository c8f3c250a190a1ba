package inference

import (
	"context"
	"sync"
	"time"
)

// tokenBucketPollInterval is how often a blocked caller re-checks for
// an available token.
const tokenBucketPollInterval = 100 * time.Millisecond

// tokenBucketClient is the token-bucket variant of the rate limiter:
// a token count refills proportionally to elapsed time up to a maximum
// capacity, and callers poll until a token is available. It guarantees
// the same external contract as the sliding-window limiter: no more
// than maxTokens calls start within any trailing window.
type tokenBucketClient struct {
	next      Client
	maxTokens int
	window    time.Duration

	mu         sync.Mutex
	tokens     int
	lastUpdate time.Time

	now func() time.Time
}

// WithTokenBucket wraps next with a token-bucket rate limiter allowing
// at most maxRequests calls per window.
func WithTokenBucket(next Client, maxRequests int, window time.Duration) Client {
	return &tokenBucketClient{
		next:      next,
		maxTokens: maxRequests,
		window:    window,
		tokens:    maxRequests,
		now:       time.Now,
	}
}

func (c *tokenBucketClient) Complete(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.Complete(ctx, model, prompt, params)
}

// refill must be called with the lock held.
func (c *tokenBucketClient) refill() {
	now := c.now()
	if c.lastUpdate.IsZero() {
		c.lastUpdate = now
		return
	}
	elapsed := now.Sub(c.lastUpdate)
	refilled := int(float64(elapsed) * float64(c.maxTokens) / float64(c.window))
	if refilled > 0 {
		c.tokens += refilled
		if c.tokens > c.maxTokens {
			c.tokens = c.maxTokens
		}
		c.lastUpdate = now
	}
}

func (c *tokenBucketClient) acquire(ctx context.Context) error {
	for {
		c.mu.Lock()
		c.refill()
		if c.tokens > 0 {
			c.tokens--
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		select {
		case <-time.After(tokenBucketPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
