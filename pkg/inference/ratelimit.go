package inference

import (
	"context"
	"sync"
	"time"
)

// rateLimitedClient caps the number of wrapped calls started within any
// trailing window of length period. It keeps a FIFO queue of start
// timestamps; a call that would exceed the cap sleeps until the oldest
// timestamp ages out of the window. Bursts are smoothed rather than
// released in batches at period boundaries.
type rateLimitedClient struct {
	next        Client
	maxRequests int
	period      time.Duration

	mu     sync.Mutex
	stamps []time.Time

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// WithRateLimit wraps next with a sliding-window rate limiter allowing
// at most maxRequests calls to start within any trailing period.
func WithRateLimit(next Client, maxRequests int, period time.Duration) Client {
	return &rateLimitedClient{
		next:        next,
		maxRequests: maxRequests,
		period:      period,
		now:         time.Now,
		after:       time.After,
	}
}

func (c *rateLimitedClient) Complete(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.Complete(ctx, model, prompt, params)
}

// acquire blocks until the caller may start a request, then records its
// start timestamp. The prune/check/record sequence runs under one lock
// so concurrent callers cannot both observe room and overshoot the cap;
// the wait itself happens outside the lock and the state is re-checked
// after waking.
func (c *rateLimitedClient) acquire(ctx context.Context) error {
	for {
		c.mu.Lock()
		now := c.now()

		// Drop timestamps that have aged out of the window.
		cutoff := now.Add(-c.period)
		i := 0
		for i < len(c.stamps) && !c.stamps[i].After(cutoff) {
			i++
		}
		if i > 0 {
			c.stamps = append(c.stamps[:0], c.stamps[i:]...)
		}

		if len(c.stamps) < c.maxRequests {
			c.stamps = append(c.stamps, now)
			c.mu.Unlock()
			return nil
		}

		wait := c.stamps[0].Add(c.period).Sub(now)
		c.mu.Unlock()

		if wait <= 0 {
			continue
		}
		select {
		case <-c.after(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
