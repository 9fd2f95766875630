package guide

import (
	"context"
	"sync"

	"github.com/xkilldash9x/stepwise/internal/detect"
)

// stepFeedback sits between the detectors and the highlight. Detectors arm before the
// step's callout exists, so while the step is held the latest feedback is kept and
// replayed onto the callout once it is mounted.
type stepFeedback struct {
	target detect.Feedback

	mu      sync.Mutex
	held    bool
	pending func(context.Context)
}

func newStepFeedback(target detect.Feedback) *stepFeedback {
	return &stepFeedback{target: target}
}

// hold starts buffering for a new step.
func (f *stepFeedback) hold() {
	f.mu.Lock()
	f.held = true
	f.pending = nil
	f.mu.Unlock()
}

// release applies the buffered feedback, if any, and stops buffering.
func (f *stepFeedback) release(ctx context.Context) {
	f.mu.Lock()
	apply := f.pending
	f.held = false
	f.pending = nil
	f.mu.Unlock()
	if apply != nil {
		apply(ctx)
	}
}

// drop discards anything buffered for a step that never rendered.
func (f *stepFeedback) drop() {
	f.mu.Lock()
	f.held = false
	f.pending = nil
	f.mu.Unlock()
}

func (f *stepFeedback) ShowHint(ctx context.Context, hint string) {
	f.deliver(ctx, func(ctx context.Context) { f.target.ShowHint(ctx, hint) })
}

func (f *stepFeedback) ClearHint(ctx context.Context) {
	f.deliver(ctx, f.target.ClearHint)
}

func (f *stepFeedback) FlashValid(ctx context.Context) {
	f.deliver(ctx, f.target.FlashValid)
}

func (f *stepFeedback) deliver(ctx context.Context, apply func(context.Context)) {
	f.mu.Lock()
	if f.held {
		f.pending = apply
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	apply(ctx)
}
