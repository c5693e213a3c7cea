// Package retry wraps model calls with exponential backoff and client-side rate limiting.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	clog "github.com/xrsl/jobprep/pkg/log"
)

// Config holds retry configuration
type Config struct {
	MaxRetries  int           // Maximum number of retry attempts
	BaseDelay   time.Duration // Initial delay between retries
	MaxDelay    time.Duration // Maximum delay between retries
	Multiplier  float64       // Multiplier for exponential backoff
	JitterRatio float64       // Jitter ratio (0-1) to add randomness
}

// DefaultConfig returns defaults tuned for LLM API calls
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		JitterRatio: 0.1,
	}
}

// RetryableError wraps an error that should trigger a retry
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// Retryable wraps an error to indicate it should be retried
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// retry budget runs out. The final error is returned unwrapped.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !IsRetryable(err) {
			clog.Debug("non-retryable error", "error", err)
			return zero, err
		}

		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.calculateDelay(attempt)

		clog.Debug("retrying after error",
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	var retryable *RetryableError
	if errors.As(lastErr, &retryable) {
		return zero, retryable.Err
	}
	return zero, lastErr
}

// calculateDelay computes the delay for a given attempt with jitter
func (c Config) calculateDelay(attempt int) time.Duration {
	delay := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))

	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.JitterRatio > 0 {
		jitter := delay * c.JitterRatio * (rand.Float64()*2 - 1) // -jitter to +jitter
		delay += jitter
	}

	return time.Duration(delay)
}

// RateLimiter is a token bucket that starts full and refills at perSecond.
type RateLimiter struct {
	limiter    *rate.Limiter
	maxTokens  float64
	refillRate float64
}

// NewRateLimiter allows bursts of up to perSecond requests, refilled at perSecond.
func NewRateLimiter(perSecond float64) *RateLimiter {
	burst := int(math.Ceil(perSecond))
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
		maxTokens:  float64(burst),
		refillRate: perSecond,
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		// rate.Limiter reports "would exceed context deadline" as a plain error
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}
