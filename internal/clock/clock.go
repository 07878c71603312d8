// Package clock abstracts the time operations of the capture loop so
// tests can run multi-hour sessions instantly.
package clock

import (
	"sync"
	"time"
)

// Clock is the subset of the time package the runtime depends on.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives once d has elapsed. If
	// d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fake is a deterministic Clock. Time only moves through Advance or
// through After, which jumps the clock to the deadline and fires at once.
// It is safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	waits   []time.Duration
}

// NewFake returns a Fake clock set to initial.
func NewFake(initial time.Time) *Fake {
	return &Fake{current: initial}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, d)
	if d > 0 {
		f.current = f.current.Add(d)
	}
	ch := make(chan time.Time, 1)
	ch <- f.current
	return ch
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Waits returns every duration passed to After, in call order.
func (f *Fake) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}
