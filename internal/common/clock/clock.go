// Package clock abstracts wall time so the scheduler can be driven by a fake
// clock in tests.
package clock

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the subset of the time package the scheduler depends on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return clockwork.NewRealClock() }

type fakeClock interface {
	Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, n int) error
}

// Fake is a manually advanced Clock.
type Fake struct {
	fakeClock
}

// NewFake returns a Fake clock set to now.
func NewFake(now time.Time) *Fake {
	return &Fake{fakeClock: clockwork.NewFakeClockAt(now)}
}

// BlockUntil waits until at least n callers are blocked in After, or the
// timeout elapses.
func (f *Fake) BlockUntil(n int, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return f.BlockUntilContext(ctx, n) == nil
}
