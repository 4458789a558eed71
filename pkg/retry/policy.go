package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy defines the retry policy configuration
type Policy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
	MaximumAttempts    int32
}

// Option represents a retry policy option
type Option func(*Policy)

// WithInitialInterval sets the initial interval for retries
func WithInitialInterval(interval time.Duration) Option {
	return func(p *Policy) {
		p.InitialInterval = interval
	}
}

// WithBackoffCoefficient sets the backoff coefficient
func WithBackoffCoefficient(coefficient float64) Option {
	return func(p *Policy) {
		p.BackoffCoefficient = coefficient
	}
}

// WithMaximumInterval sets the maximum interval between retries
func WithMaximumInterval(interval time.Duration) Option {
	return func(p *Policy) {
		p.MaximumInterval = interval
	}
}

// WithMaxAttempts sets the maximum number of attempts, the first one included
func WithMaxAttempts(attempts int32) Option {
	return func(p *Policy) {
		p.MaximumAttempts = attempts
	}
}

// NewPolicy creates a new retry policy with default values
func NewPolicy(opts ...Option) *Policy {
	policy := &Policy{
		InitialInterval:    100 * time.Millisecond, // Default 100ms
		BackoffCoefficient: 2.0,                    // Default exponential backoff
		MaximumInterval:    2 * time.Second,        // Default 2s
		MaximumAttempts:    3,                      // Default 3 attempts
	}

	for _, opt := range opts {
		opt(policy)
	}

	return policy
}

// BackOff builds an exponential backoff bound to ctx that gives up after
// MaximumAttempts attempts
func (p *Policy) BackOff(ctx context.Context) backoff.BackOff {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = p.InitialInterval
	exponentialBackoff.Multiplier = p.BackoffCoefficient
	exponentialBackoff.MaxInterval = p.MaximumInterval
	exponentialBackoff.MaxElapsedTime = 0

	var b backoff.BackOff = exponentialBackoff
	if p.MaximumAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaximumAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Do runs fn until it succeeds, returns a permanent error, or the policy
// gives up. Wrap an error with Permanent to stop retrying immediately.
func Do(ctx context.Context, policy *Policy, fn func() error) error {
	if policy == nil {
		policy = NewPolicy()
	}
	return backoff.Retry(fn, policy.BackOff(ctx))
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}
