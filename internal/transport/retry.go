package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/rs/zerolog"
)

const (
	defaultAttempts = 4
	defaultDelay    = 500 * time.Millisecond
	defaultMaxDelay = 8 * time.Second
	backoffFactor   = 2.0
)

// Caller runs remote calls under the shared retry policy: transient failures
// back off exponentially with jitter up to a fixed attempt budget, an
// auth-classified failure gets one session refresh followed by one more
// (again budgeted) try, validation failures surface immediately.
type Caller struct {
	// Attempts is the total number of tries per call for transient
	// failures. Zero selects the default.
	Attempts int

	// Delay and MaxDelay bound the backoff between tries.
	Delay    time.Duration
	MaxDelay time.Duration

	// Clock schedules the waits; tests inject a fake. Nil means wall clock.
	Clock clock.Clock

	// Refresh re-opens the session after an auth-classified failure. When
	// nil, auth failures are fatal.
	Refresh func(ctx context.Context) error

	// Log receives retry notifications at debug level.
	Log zerolog.Logger
}

// Call invokes f under the retry policy. The error returned after exhausted
// retries is the last error f produced, not a budget marker, so callers can
// still inspect the real cause.
func (c *Caller) Call(ctx context.Context, op string, f func(context.Context) error) error {
	err := c.callTransient(ctx, op, f)
	if err == nil {
		return nil
	}

	if Classify(err) == ClassAuth && c.Refresh != nil {
		c.Log.Debug().Str("op", op).Msg("session rejected, re-authenticating")
		if rerr := c.Refresh(ctx); rerr != nil {
			return fmt.Errorf("%s: re-authenticate: %w", op, rerr)
		}
		return c.callTransient(ctx, op, f)
	}
	return err
}

func (c *Caller) callTransient(ctx context.Context, op string, f func(context.Context) error) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			lastErr = f(ctx)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return Classify(err) != ClassTransient
		},
		NotifyFunc: func(err error, attempt int) {
			c.Log.Debug().Str("op", op).Int("attempt", attempt).Err(err).Msg("transient failure, backing off")
		},
		Attempts:    c.attempts(),
		Delay:       c.delay(),
		MaxDelay:    c.maxDelay(),
		BackoffFunc: retry.ExpBackoff(c.delay(), c.maxDelay(), backoffFactor, true),
		Clock:       c.clock(),
		Stop:        ctx.Done(),
	})

	// Surface what actually went wrong rather than the retry bookkeeping.
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		return lastErr
	}
	return err
}

func (c *Caller) attempts() int {
	if c.Attempts > 0 {
		return c.Attempts
	}
	return defaultAttempts
}

func (c *Caller) delay() time.Duration {
	if c.Delay > 0 {
		return c.Delay
	}
	return defaultDelay
}

func (c *Caller) maxDelay() time.Duration {
	if c.MaxDelay > 0 {
		return c.MaxDelay
	}
	return defaultMaxDelay
}

func (c *Caller) clock() clock.Clock {
	if c.Clock != nil {
		return c.Clock
	}
	return clock.WallClock
}
