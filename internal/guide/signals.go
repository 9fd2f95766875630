package guide

import (
	"context"
	"sync"
)

// signals carries the skip and cancel requests for the step in flight. Each channel is
// closed at most once, so any number of racers can observe it. A cancel also aborts the
// step's context, so resolution and rendering stop as soon as it arrives.
type signals struct {
	skippable bool
	abort     context.CancelFunc

	skip       chan struct{}
	cancel     chan struct{}
	skipOnce   sync.Once
	cancelOnce sync.Once
}

func newSignals(skippable bool, abort context.CancelFunc) *signals {
	return &signals{
		skippable: skippable,
		abort:     abort,
		skip:      make(chan struct{}),
		cancel:    make(chan struct{}),
	}
}

// fireSkip reports whether the skip was accepted.
func (s *signals) fireSkip() bool {
	if !s.skippable {
		return false
	}
	s.skipOnce.Do(func() { close(s.skip) })
	return true
}

func (s *signals) fireCancel() {
	s.cancelOnce.Do(func() {
		close(s.cancel)
		if s.abort != nil {
			s.abort()
		}
	})
}
