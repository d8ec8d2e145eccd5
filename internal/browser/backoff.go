package browser

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits step*n before the n-th retry, capped at limit.
type linearBackOff struct {
	step  time.Duration
	limit time.Duration
	n     int
}

func newLinearBackOff(step, limit time.Duration) *linearBackOff {
	return &linearBackOff{step: step, limit: limit}
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++

	next := b.step * time.Duration(b.n)
	if b.limit > 0 && next > b.limit {
		return b.limit
	}

	return next
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// retry runs operation at most attempts times, waiting on policy between
// attempts. It stops early when ctx ends or operation returns a
// backoff.Permanent error.
func (d *Dispatcher) retry(
	ctx context.Context,
	operation backoff.Operation,
	policy backoff.BackOff,
	attempts int,
	notify backoff.Notify,
) error {
	var timer backoff.Timer
	if d.newTimer != nil {
		timer = d.newTimer()
	}

	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)

	return backoff.RetryNotifyWithTimer(operation, bounded, notify, timer)
}
