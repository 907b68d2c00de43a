package providers

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// HTTPError wraps a non-2xx response from a provider's HTTP API.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // 0 if the response didn't carry a Retry-After header
}

func (e *HTTPError) Error() string {
	return "http " + strconv.Itoa(e.Status) + ": " + e.Body
}

// Retryable reports whether the status code is worth retrying: rate limits
// and transient server errors, never 4xx client errors other than 429.
func (e *HTTPError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// ParseRetryAfter parses a Retry-After header value (seconds, the only form
// providers in this package send). Returns 0 on empty or unparseable input.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// RetryConfig controls RetryDo's backoff schedule.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first (default 4)
	BaseDelay   time.Duration // delay before the first retry (default 500ms)
	MaxDelay    time.Duration // cap on backoff delay (default 20s)
}

// DefaultRetryConfig is the backoff schedule used by all providers unless
// overridden.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    20 * time.Second,
	}
}

// RetryDo runs fn, retrying on transient HTTP errors (429/5xx) and context
// deadline-safe network errors with exponential backoff plus jitter. It
// honors an HTTPError's RetryAfter hint when present, and gives up
// immediately on errors that aren't retryable or once ctx is done.
//
// The retry hook attached to ctx via WithRetryHook, if any, is invoked
// before each retry so callers can surface retry progress to the user.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	hook, _ := RetryHookFromContext(ctx)

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts || !isRetryable(err) {
			return zero, lastErr
		}

		delay := backoffDelay(cfg, attempt)
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
			delay = httpErr.RetryAfter
		}

		if hook != nil {
			hook(attempt, cfg.MaxAttempts, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	// Network-level errors (connection reset, timeout, etc.) are worth a retry.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2 + 1))
	return delay/2 + jitter
}
