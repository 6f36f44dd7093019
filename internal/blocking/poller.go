// Package blocking implements the adaptive poller (B in spec.md §4.4) that
// backs BLPOP/BRPOP/BLMOVE/BRPOPLPUSH. XREAD does not use it: its BLOCK
// option is ignored and XREAD always returns at once. The wait/retry state
// machine — try the op, then select on a wakeup channel or a timer, with a
// bounded grace/backoff — is grounded on the teacher's
// internal/infrastructure/processmgr/process.go supervise() loop, which waits
// on a "done" channel or a grace timer before escalating. Here the "done"
// channel is the notification bus and "escalating" is retrying the
// non-blocking operation rather than sending SIGKILL.
package blocking

import (
	"context"
	"math/rand"
	"time"

	"github.com/redlite/redlite/internal/notify"
)

// PollConfig drives the backoff curve between retries, per spec.md §4.4.
type PollConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	GrowthFactor    float64
	JitterFraction  float64
}

// Preset configs named in spec.md §4.4.
var (
	Aggressive = PollConfig{InitialInterval: time.Millisecond, MaxInterval: 20 * time.Millisecond, GrowthFactor: 1.5, JitterFraction: 0.2}
	Default    = PollConfig{InitialInterval: 5 * time.Millisecond, MaxInterval: 100 * time.Millisecond, GrowthFactor: 2.0, JitterFraction: 0.2}
	Relaxed    = PollConfig{InitialInterval: 20 * time.Millisecond, MaxInterval: 500 * time.Millisecond, GrowthFactor: 2.5, JitterFraction: 0.2}
)

func (c PollConfig) next(interval time.Duration) time.Duration {
	grown := time.Duration(float64(interval) * c.GrowthFactor)
	if grown > c.MaxInterval {
		grown = c.MaxInterval
	}
	if grown <= 0 {
		grown = c.InitialInterval
	}
	if c.JitterFraction <= 0 {
		return grown
	}
	jitter := (rand.Float64()*2 - 1) * c.JitterFraction * float64(grown)
	result := time.Duration(float64(grown) + jitter)
	if result < 0 {
		result = 0
	}
	return result
}

// Attempt is the non-blocking operation a blocking command polls. It reports
// ok=true on success; result is only meaningful when ok is true.
type Attempt[T any] func() (result T, ok bool, err error)

// Outcome distinguishes why Wait returned, per the exit conditions in
// spec.md §4.4.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeCanceled
)

// Wait runs attempt immediately; on a miss it enters the adaptive poll loop
// described in spec.md §4.4, waking on either a bus notification or the
// current backoff interval, until attempt succeeds, ctx is canceled, or
// timeout elapses. timeout == 0 means wait forever.
//
// sub should already be subscribed with a filter covering every key this
// waiter cares about; Wait only reads from it, it does not manage its
// lifecycle (callers Subscribe/Unsubscribe around Wait so multi-key BLPOP
// can share one subscriber across the whole key list).
func Wait[T any](ctx context.Context, sub *notify.Subscriber, cfg PollConfig, timeout time.Duration, attempt Attempt[T]) (T, Outcome, error) {
	var zero T

	if result, ok, err := attempt(); err != nil {
		return zero, OutcomeCanceled, err
	} else if ok {
		return result, OutcomeSuccess, nil
	}

	var deadlineC <-chan time.Time
	if timeout > 0 {
		deadlineTimer := time.NewTimer(timeout)
		defer deadlineTimer.Stop()
		deadlineC = deadlineTimer.C
	}

	interval := cfg.InitialInterval
	for {
		waitTimer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			waitTimer.Stop()
			return zero, OutcomeCanceled, nil

		case <-deadlineC:
			waitTimer.Stop()
			return zero, OutcomeTimeout, nil

		case <-sub.Events():
			waitTimer.Stop()
			// Drain any further already-queued events so the next retry sees
			// the most current state without looping once per queued event.
			drainNonBlocking(sub)

		case <-waitTimer.C:
		}

		result, ok, err := attempt()
		if err != nil {
			return zero, OutcomeCanceled, err
		}
		if ok {
			return result, OutcomeSuccess, nil
		}
		interval = cfg.next(interval)
	}
}

func drainNonBlocking(sub *notify.Subscriber) {
	for {
		select {
		case <-sub.Events():
		default:
			return
		}
	}
}
