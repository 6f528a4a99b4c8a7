// Package external adapts mail transports (SMTP, AWS SES) to the
// EmailProvider interface. Every provider built by the registry is wrapped
// in a ResilientProvider that adds circuit breaking and bounded retries.
package external

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sony/gobreaker/v2"

	"emailer/internal/types"
)

// RetryPolicy configures the retry behavior of a ResilientProvider.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the defaults for immediate delivery. Retries are
// kept short because sending runs on the request goroutine.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    200 * time.Millisecond,
		MaxWait:    2 * time.Second,
	}
}

// ResilientProvider decorates an EmailProvider with a circuit breaker and
// exponential backoff on transient failures.
type ResilientProvider struct {
	next        EmailProvider
	breaker     *gobreaker.CircuitBreaker[string]
	retryPolicy RetryPolicy
	sleepFn     func(context.Context, time.Duration) error
}

// ResilientOption configures a ResilientProvider.
type ResilientOption func(*ResilientProvider)

// WithSleepFunc overrides the wait between retries. Tests use it to avoid
// real delays.
func WithSleepFunc(fn func(context.Context, time.Duration) error) ResilientOption {
	return func(p *ResilientProvider) {
		p.sleepFn = fn
	}
}

// WithBreaker shares a caller-provided breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[string]) ResilientOption {
	return func(p *ResilientProvider) {
		p.breaker = cb
	}
}

// NewResilientProvider wraps next. The breaker opens after five consecutive
// failures and half-opens after 30 seconds.
func NewResilientProvider(next EmailProvider, policy RetryPolicy, opts ...ResilientOption) *ResilientProvider {
	p := &ResilientProvider{
		next:        next,
		retryPolicy: policy,
		sleepFn:     sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.breaker == nil {
		p.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        next.Name(),
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			// A rejected recipient is not an outage.
			IsSuccessful: func(err error) bool {
				return err == nil || !isTransient(err)
			},
		})
	}
	return p
}

// Name returns the wrapped provider's name.
func (p *ResilientProvider) Name() string {
	return p.next.Name()
}

// Send delivers msg, retrying transient failures. An open breaker fails fast
// with upstream_unavailable.
func (p *ResilientProvider) Send(ctx context.Context, msg types.Message) (string, error) {
	var lastErr error
	maxAttempts := 1 + p.retryPolicy.MaxRetries
	for attempt := range maxAttempts {
		id, err := p.breaker.Execute(func() (string, error) {
			return p.next.Send(ctx, msg)
		})
		if err == nil {
			return id, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				"circuit breaker is open; mail provider unavailable",
				err,
			)
		}
		if !isTransient(err) {
			return "", err
		}
		if attempt < maxAttempts-1 {
			if err := p.sleepFn(ctx, p.computeBackoff(attempt)); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

// computeBackoff returns a jittered wait in [MinWait, min(MaxWait, MinWait*2^attempt)].
func (p *ResilientProvider) computeBackoff(attempt int) time.Duration {
	base := float64(p.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	if maxWait := float64(p.retryPolicy.MaxWait); base > maxWait {
		base = maxWait
	}
	minWait := float64(p.retryPolicy.MinWait)
	if base <= minWait {
		return p.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

// isTransient reports whether err is worth another attempt.
func isTransient(err error) bool {
	switch types.ErrorCodeOf(err) {
	case types.ErrCodeUpstreamRateLimited,
		types.ErrCodeUpstreamUnavailable,
		types.ErrCodeUpstreamEmailProvider:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ EmailProvider = (*ResilientProvider)(nil)
