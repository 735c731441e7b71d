// Package backoffutil wraps cenkalti/backoff/v4 with the one retry policy
// the coordinator needs: bounded exponential backoff for StorageTransient
// errors (§7 "Transient storage errors are retried locally").
package backoffutil

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures the retry bound. A zero Policy uses sensible defaults
// (initial interval 50ms, max elapsed 5s) — small enough that a stuck
// storage provider doesn't stall an actor's single-threaded turn for long.
type Policy struct {
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

func (p Policy) backoffFor(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	} else {
		eb.InitialInterval = 50 * time.Millisecond
	}
	eb.MaxElapsedTime = p.MaxElapsedTime
	if eb.MaxElapsedTime == 0 {
		eb.MaxElapsedTime = 5 * time.Second
	}
	return backoff.WithContext(eb, ctx)
}

// Retry runs op until it succeeds, returns a non-retryable error (wrapped
// in backoff.Permanent by the caller), or the policy's elapsed bound is
// exceeded — whichever comes first.
func Retry(ctx context.Context, policy Policy, op func() error) error {
	return backoff.Retry(op, policy.backoffFor(ctx))
}
