// internal/retry/retry.go

// Package retry implements the bounded retry-with-backoff policy applied to
// every remote call and to the markdown build step.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/config"
)

// ErrRetriesExhausted is wrapped by the error returned once every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy describes how an operation is retried. The zero value runs the
// operation exactly once.
type Policy struct {
	Enabled bool
	// MaxAttempts counts invocations, not retries. Values below 1 are treated as 1.
	MaxAttempts int
	// The wait before retry n (1-based) is BaseDelay * BackoffFactor^n.
	BackoffFactor float64
	BaseDelay     time.Duration
	// Retryable reports whether a failure is worth another attempt. Nil means
	// every error is retryable.
	Retryable func(error) bool
	Logger    *zap.Logger
}

// FromConfig builds a policy from the retry section of the configuration.
func FromConfig(cfg config.RetryConfig, logger *zap.Logger) Policy {
	return Policy{
		Enabled:       cfg.Enabled,
		MaxAttempts:   cfg.MaxAttempts,
		BackoffFactor: cfg.BackoffFactor,
		BaseDelay:     cfg.BaseDelay,
		Logger:        logger,
	}
}

// WithAttempts returns a copy of p limited to n invocations.
func (p Policy) WithAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// WithRetryable returns a copy of p using the given predicate.
func (p Policy) WithRetryable(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

func (p Policy) attempts() int {
	if !p.Enabled || p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// powerBackOff yields BaseDelay * factor^n for the n-th retry.
type powerBackOff struct {
	base    time.Duration
	factor  float64
	attempt int
}

func (b *powerBackOff) NextBackOff() time.Duration {
	b.attempt++
	delay := float64(b.base) * math.Pow(b.factor, float64(b.attempt))
	if delay > float64(math.MaxInt64) || math.IsNaN(delay) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

func (b *powerBackOff) Reset() { b.attempt = 0 }

// Do runs op under the policy. A disabled policy runs op once and returns its
// error unchanged. Errors the Retryable predicate rejects are returned as-is
// without further attempts. When every attempt fails the last error is wrapped
// in an EnvError of kind retries_exhausted. The name identifies the operation
// in logs and errors.
func Do[T any](ctx context.Context, p Policy, name string, op func(context.Context) (T, error)) (T, error) {
	if !p.Enabled {
		return op(ctx)
	}

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := p.attempts()

	var (
		attempts  int
		lastErr   error
		permanent bool
	)
	operation := func() (T, error) {
		attempts++
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			permanent = true
			return result, backoff.Permanent(err)
		}
		return result, err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Operation failed, retrying.",
			zap.String("operation", name),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	var b backoff.BackOff = &powerBackOff{base: p.BaseDelay, factor: p.BackoffFactor}
	b = backoff.WithMaxRetries(b, uint64(maxAttempts-1))
	result, err := backoff.RetryNotifyWithData(operation, backoff.WithContext(b, ctx), notify)
	if err == nil {
		return result, nil
	}

	var zero T
	switch {
	case permanent:
		return zero, lastErr
	case ctx.Err() != nil:
		if lastErr != nil {
			return zero, fmt.Errorf("%s aborted after %d attempts: %w (last error: %v)", name, attempts, ctx.Err(), lastErr)
		}
		return zero, ctx.Err()
	}
	logger.Error("Operation failed after all attempts.",
		zap.String("operation", name),
		zap.Int("attempts", attempts),
		zap.Error(lastErr))
	return zero, schemas.NewEnvError(schemas.KindRetriesExhausted, name,
		fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr))
}
