package runtime

import "sync"

// StopSignal asks a running capture loop to finish gracefully. The loop
// checks it before each iteration and between iterations; the iteration
// in flight always completes. Stop is safe to call from any goroutine,
// any number of times.
type StopSignal struct {
	once sync.Once
	ch   chan struct{}
}

func NewStopSignal() *StopSignal {
	return &StopSignal{ch: make(chan struct{})}
}

// Stop raises the signal.
func (s *StopSignal) Stop() {
	s.once.Do(func() { close(s.ch) })
}

// Stopped reports whether Stop has been called.
func (s *StopSignal) Stopped() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done is closed once Stop is called.
func (s *StopSignal) Done() <-chan struct{} {
	return s.ch
}
