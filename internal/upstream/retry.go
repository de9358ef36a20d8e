package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// ErrAllAttemptsFailed is returned when every retry attempt failed
var ErrAllAttemptsFailed = errors.New("all retry attempts failed")

// RetryPolicy holds retry configuration
type RetryPolicy struct {
	Enabled     bool
	MaxAttempts int
	BaseDelay   time.Duration // first backoff delay, doubled per attempt
	MaxDelay    time.Duration // backoff ceiling
}

// doWithRetry runs fn with exponential backoff plus jitter.
// Only transient failures (network errors, 429, 5xx) are retried.
func (c *Client) doWithRetry(ctx context.Context, fn func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if !c.retry.Enabled {
		return fn(ctx)
	}

	maxAttempts := c.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Warn().
				Int("attempt", attempt+1).
				Int("maxAttempts", maxAttempts).
				Dur("delay", delay).
				Err(lastErr).
				Msg("request failed, retrying")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := fn(ctx)
		if err == nil {
			return body, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", ErrAllAttemptsFailed, lastErr)
}

// backoff computes the delay before the given attempt (1-based), with jitter
// in the upper half of the exponential window
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.retry.BaseDelay << (attempt - 1)
	if delay > c.retry.MaxDelay || delay <= 0 {
		delay = c.retry.MaxDelay
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// isRetryable reports whether an upstream failure is worth another attempt
func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	// Network-level failures are retryable
	return true
}
