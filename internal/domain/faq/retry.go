package faq

import (
	"context"
	"log/slog"
	"time"

	"github.com/yanqian/faq-assistant/pkg/metrics"
)

// RetryPolicy bounds how often and how patiently an outbound call is retried.
type RetryPolicy struct {
	MaxAttempts int
	Multiplier  time.Duration
	Floor       time.Duration
	Ceiling     time.Duration
	// CallTimeout caps each individual attempt; zero leaves the caller's deadline alone.
	CallTimeout time.Duration
}

// DefaultRetryPolicy is three attempts with 2s..10s exponential waits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Multiplier:  time.Second,
		Floor:       2 * time.Second,
		Ceiling:     10 * time.Second,
		CallTimeout: 30 * time.Second,
	}
}

// Backoff returns the wait after the given failed attempt (1-based):
// min(ceiling, max(floor, multiplier*2^(attempt-1))).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := p.Multiplier
	for i := 1; i < attempt; i++ {
		if p.Ceiling > 0 && wait >= p.Ceiling {
			break
		}
		wait *= 2
	}
	if wait < p.Floor {
		wait = p.Floor
	}
	if p.Ceiling > 0 && wait > p.Ceiling {
		wait = p.Ceiling
	}
	return wait
}

// Retrier applies a RetryPolicy to individual outbound calls.
type Retrier struct {
	policy   RetryPolicy
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
	recorder *metrics.Recorder
}

// NewRetrier constructs a retrier that waits on the wall clock.
func NewRetrier(policy RetryPolicy, recorder *metrics.Recorder, logger *slog.Logger) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Retrier{
		policy:   policy,
		sleep:    sleepContext,
		logger:   logger.With("component", "faq.retry"),
		recorder: recorder,
	}
}

// Policy exposes the configured policy.
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Retry runs fn until it succeeds or the attempts run out. The error of the
// last attempt is returned unchanged. Cancelling ctx during a wait stops the
// loop and also returns the last attempt's error.
func Retry[T any](ctx context.Context, r *Retrier, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		value, err := callWithTimeout(ctx, r.policy.CallTimeout, fn)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if attempt == r.policy.MaxAttempts {
			break
		}
		wait := r.policy.Backoff(attempt)
		r.logger.Warn("outbound call failed, retrying", "operation", operation, "attempt", attempt, "wait_ms", wait.Milliseconds(), "error", err)
		r.recorder.ObserveRetry(operation)
		if sleepErr := r.sleep(ctx, wait); sleepErr != nil {
			break
		}
	}
	return zero, lastErr
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WithRetry decorates an Embedder so every Embed call follows the policy.
func WithRetry(embedder Embedder, retrier *Retrier) Embedder {
	return &retryingEmbedder{next: embedder, retrier: retrier}
}

type retryingEmbedder struct {
	next    Embedder
	retrier *Retrier
}

func (e *retryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return Retry(ctx, e.retrier, "embed", func(ctx context.Context) ([]float32, error) {
		return e.next.Embed(ctx, text)
	})
}
