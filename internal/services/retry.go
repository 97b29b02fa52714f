package services

import (
	"context"
	"time"
)

// retryPolicy is the bounded backoff applied to the ledger store-call sites
// (the rebase read and the idempotent side-effect write). Nothing else in the
// pipeline retries; the graph apply surfaces its failure to the caller.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func newRetryPolicy(attempts int, backoff time.Duration) retryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return retryPolicy{attempts: attempts, backoff: backoff}
}

func (p retryPolicy) Do(ctx context.Context, fn func() error) error {
	delay := p.backoff
	var err error
	for i := 0; i < p.attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == p.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
