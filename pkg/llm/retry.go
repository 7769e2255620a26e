package llm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrMaxRetriesExceeded is returned when all retry attempts have been
// exhausted. The last underlying error is wrapped alongside it.
var ErrMaxRetriesExceeded = errors.New("llm: max retries exceeded")

// RetryConfig defines retry behavior for model calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which backoff grows.
	BackoffMultiplier float64
	// Jitter randomizes backoff to avoid thundering herds.
	Jitter bool
}

// DefaultRetryConfig returns the defaults used for model calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryPolicy executes operations with exponential backoff.
type RetryPolicy struct {
	cfg RetryConfig
}

// NewRetryPolicy creates a retry policy, filling unset fields with defaults.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig()
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	return &RetryPolicy{cfg: cfg}
}

// Do runs op until it succeeds, reports a non-retryable error, or attempts
// run out. op returns (retryable, err); a nil error stops immediately.
func (rp *RetryPolicy) Do(ctx context.Context, op func() (bool, error)) error {
	var lastErr error
	for attempt := 0; attempt <= rp.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rp.backoff(attempt)):
			}
		}

		retryable, err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return errors.Join(ErrMaxRetriesExceeded, lastErr)
}

func (rp *RetryPolicy) backoff(attempt int) time.Duration {
	backoff := float64(rp.cfg.InitialBackoff) * math.Pow(rp.cfg.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(rp.cfg.MaxBackoff) {
		backoff = float64(rp.cfg.MaxBackoff)
	}
	if rp.cfg.Jitter {
		backoff *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(backoff)
}
