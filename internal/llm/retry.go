package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/jonathan/studyforge/internal/logger"
)

// Retrying retries transient failures of another Completer with exponential
// backoff. Non-retryable failures are returned after the first attempt.
type Retrying struct {
	inner  Completer
	policy RetryPolicy
	log    *logger.Logger
}

// NewRetrying wraps inner with policy.
func NewRetrying(inner Completer, policy RetryPolicy, log *logger.Logger) *Retrying {
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Retrying{inner: inner, policy: policy, log: log}
}

// Complete implements Completer. The returned error is always a *ModelError.
func (r *Retrying) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	attempts := 0
	op := func() (string, error) {
		attempts++
		text, err := r.inner.Complete(ctx, prompt, maxTokens)
		if err == nil {
			return text, nil
		}
		err = Classify(err)
		var me *ModelError
		if !errors.As(err, &me) {
			return "", err
		}
		if !me.Retryable {
			return "", backoff.Permanent(me)
		}
		if me.RetryAfter > 0 {
			return "", &delayedError{err: me, after: &backoff.RetryAfterError{Duration: r.capDelay(me.RetryAfter)}}
		}
		return "", me
	}

	b := backoff.NewExponentialBackOff()
	if r.policy.InitialDelay > 0 {
		b.InitialInterval = r.policy.InitialDelay
	}
	if r.policy.MaxDelay > 0 {
		b.MaxInterval = r.policy.MaxDelay
	}

	text, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.policy.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Warn("model call failed, retrying", "attempt", attempts, "next_delay", next.String(), "error", err)
		}),
	)
	if err == nil {
		return text, nil
	}

	err = Classify(err)
	var me *ModelError
	if errors.As(err, &me) {
		me.Attempts = attempts
		return "", me
	}
	return "", err
}

func (r *Retrying) capDelay(d time.Duration) time.Duration {
	if r.policy.MaxDelay > 0 && d > r.policy.MaxDelay {
		return r.policy.MaxDelay
	}
	return d
}

// delayedError carries a model error together with the delay the provider
// asked for, so backoff waits that long and the model error survives the last
// attempt.
type delayedError struct {
	err   *ModelError
	after *backoff.RetryAfterError
}

func (e *delayedError) Error() string   { return e.err.Error() }
func (e *delayedError) Unwrap() []error { return []error{e.err, e.after} }
