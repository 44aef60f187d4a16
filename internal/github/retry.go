package github

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions configures a RetryGateway. Zero values fall back to the
// package defaults.
type RetryOptions struct {
	MaxAttempts     int           // total attempts including the first (default MaxRetries+1)
	InitialInterval time.Duration // first backoff interval (default RetryDelay)
	MaxInterval     time.Duration // cap for a single interval (default MaxRetryDelay)
}

// RetryGateway decorates a Gateway with exponential backoff. Rate limits,
// 5xx responses and transport failures are retried; anything else is
// returned after the first attempt. A mutation that failed in transport is
// not retried, since the server may already have applied it.
type RetryGateway struct {
	next Gateway
	opts RetryOptions

	// OnRetry, if set, is called before each wait.
	OnRetry func(err error, wait time.Duration)
}

// NewRetryGateway wraps next with the given retry policy.
func NewRetryGateway(next Gateway, opts RetryOptions) *RetryGateway {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = MaxRetries + 1
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = RetryDelay
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = MaxRetryDelay
	}
	return &RetryGateway{next: next, opts: opts}
}

// Options returns the effective retry policy.
func (g *RetryGateway) Options() RetryOptions {
	return g.opts
}

// Execute runs the wrapped Execute until it succeeds, fails permanently, the
// attempt budget is spent, or ctx is done.
func (g *RetryGateway) Execute(ctx context.Context, query string, variables map[string]interface{}) (json.RawMessage, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = g.opts.InitialInterval
	exp.MaxInterval = g.opts.MaxInterval
	exp.MaxElapsedTime = 0

	hinted := &retryAfterBackOff{BackOff: exp}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(hinted, uint64(g.opts.MaxAttempts-1)),
		ctx,
	)

	_, mutation := OperationName(query)
	var data json.RawMessage
	op := func() error {
		d, err := g.next.Execute(ctx, query, variables)
		if err == nil {
			data = d
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		var te *TransportError
		if mutation && errors.As(err, &te) {
			return backoff.Permanent(err)
		}
		var rl *RateLimitError
		if errors.As(err, &rl) {
			hinted.hint = rl.RetryAfter
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if g.OnRetry != nil {
			g.OnRetry(err, wait)
		}
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return data, nil
}

// retryAfterBackOff stretches the next interval to honour a Retry-After hint.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if b.hint > d {
		d = b.hint
	}
	b.hint = 0
	return d
}
