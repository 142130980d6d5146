// Package retry provides the explicit retry policy used by every external call
// in the pipeline (model backend, Notion, Drive, filesystem).
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/logging"
)

// Policy bounds the retries of one external call.
type Policy struct {
	// MaxAttempts counts the first try. Values below 1 mean one attempt.
	MaxAttempts int
	// InitialInterval is the first backoff delay, doubled on every retry.
	InitialInterval time.Duration
	// MaxInterval caps a single backoff delay.
	MaxInterval time.Duration
}

// Default budgets per destination type.
var (
	RateLimited = Policy{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: 30 * time.Second}
	Standard    = Policy{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: 10 * time.Second}
)

// Do runs op until it succeeds, returns a non-transient error, exhausts the
// attempt budget or ctx is done. Only errors categorized as transient are retried.
func (p Policy) Do(ctx context.Context, name string, op func() error) error {
	_, err := Value(ctx, p, name, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p Policy, name string, op func() (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}

	wrapped := func() (T, error) {
		res, err := op()
		if err != nil && !gist.IsTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, next time.Duration) {
		slog.Debug("retrying external call",
			logging.Operation(name),
			slog.Duration("backoff", next),
			logging.Err(err),
		)
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}
