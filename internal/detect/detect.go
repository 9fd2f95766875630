// Package detect decides whether the user actually performed a step's action. Each
// detector is armed on a resolved element and delivers exactly one step.Outcome on the
// returned channel. Every listener and timer it creates goes through the step's shared
// dom.Registry and is released the moment the outcome is known, including on context
// cancellation.
package detect

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/step"
)

// Detector waits for one action kind.
type Detector interface {
	// Arm attaches listeners for desc's action on el. The channel receives one outcome
	// and is then closed. Cancelling ctx settles it as step.Cancelled.
	Arm(ctx context.Context, el dom.ElementID, desc step.Descriptor) (<-chan step.Outcome, error)
}

// Feedback is the inline validation surface next to the callout.
type Feedback interface {
	ShowHint(ctx context.Context, hint string)
	ClearHint(ctx context.Context)
	FlashValid(ctx context.Context)
}

// Env carries what every detector needs.
type Env struct {
	Page     dom.Page
	Registry *dom.Registry
	Logger   *zap.Logger
	Feedback Feedback
}

// Options holds the detector timings.
type Options struct {
	HoverDwell time.Duration
	// ClickMargin is the forgiveness, in pixels, around the target's box.
	ClickMargin  float64
	FormDebounce time.Duration
	ValidFlash   time.Duration
}

// DefaultOptions returns the stock detector timings.
func DefaultOptions() Options {
	return Options{
		HoverDwell:   time.Second,
		ClickMargin:  10,
		FormDebounce: 2 * time.Second,
		ValidFlash:   600 * time.Millisecond,
	}
}

// Set holds one detector per action kind that needs one.
type Set struct {
	Hover       *Hover
	Click       *Click
	FormFill    *FormFill
	Acknowledge *Acknowledge
}

// NewSet builds every detector over env.
func NewSet(env Env, opts Options) *Set {
	if env.Feedback == nil {
		env.Feedback = noFeedback{}
	}
	return &Set{
		Hover:       &Hover{env: env, dwell: opts.HoverDwell},
		Click:       &Click{env: env, margin: opts.ClickMargin},
		FormFill:    &FormFill{env: env, debounce: opts.FormDebounce, flash: opts.ValidFlash},
		Acknowledge: &Acknowledge{env: env},
	}
}

// For returns the detector for an action kind.
func (s *Set) For(kind step.ActionKind) (Detector, error) {
	switch kind {
	case step.ActionHover:
		return s.Hover, nil
	case step.ActionClick:
		return s.Click, nil
	case step.ActionFormFill:
		return s.FormFill, nil
	case step.ActionHighlight, step.ActionNoop:
		return s.Acknowledge, nil
	default:
		return nil, fmt.Errorf("no detector for action %q", kind)
	}
}

type noFeedback struct{}

func (noFeedback) ShowHint(context.Context, string) {}
func (noFeedback) ClearHint(context.Context)        {}
func (noFeedback) FlashValid(context.Context)       {}
