package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Retrier calls an operation until it succeeds, backing off
// exponentially between attempts.
type Retrier struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	// MaxTries bounds the number of calls, the first one included.
	// Zero means no bound other than MaxElapsedTime.
	MaxTries int
	// Retryable reports whether an error is worth another attempt.
	// A nil Retryable retries every error.
	Retryable func(err error) bool
}

// NewRetrier returns a Retrier making at most tries calls.
func NewRetrier(tries int) *Retrier {
	return &Retrier{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     time.Minute,
		MaxElapsedTime:  15 * time.Minute,
		MaxTries:        tries,
	}
}

// Retry calls f until it returns nil, returns an error Retryable rejects,
// the attempts run out or ctx is done. The last error is returned.
func (r *Retrier) Retry(ctx context.Context, f func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.InitialInterval
	exp.MaxInterval = r.MaxInterval
	exp.MaxElapsedTime = r.MaxElapsedTime

	var b backoff.BackOff = exp
	if r.MaxTries > 0 {
		b = backoff.WithMaxRetries(b, uint64(r.MaxTries-1))
	}

	op := func() error {
		err := f()
		if err != nil && r.Retryable != nil && !r.Retryable(err) {
			return &backoff.PermanentError{Err: err}
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
