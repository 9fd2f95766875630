package detect

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/step"
)

const (
	debounceTimer = "debounce"
	flashTimer    = "flash"

	defaultHint = "That value does not match what this step expects yet."
)

// FormFill completes once the field holds an acceptable value and the user has stopped
// typing for the debounce window.
type FormFill struct {
	env      Env
	debounce time.Duration
	flash    time.Duration
}

func (d *FormFill) Arm(ctx context.Context, el dom.ElementID, desc step.Descriptor) (<-chan step.Outcome, error) {
	logger := d.env.Logger.Named("formfill")

	matcher, err := ParseExpected(desc.Expected)
	if err != nil {
		return nil, err
	}
	hint := desc.Hint
	if hint == "" {
		hint = defaultHint
	}

	w := newWaiter(ctx, d.env.Registry)
	f := &fill{d: d, w: w, el: el, desc: desc, matcher: matcher, hint: hint, logger: logger}

	// 1. Focus is a courtesy. A field that refuses it is still fillable.
	if err := d.env.Page.Focus(ctx, el); err != nil {
		logger.Warn("Failed to focus form field.", zap.String("element", string(el)), zap.Error(err))
	}

	// 2. Every keystroke clears feedback and restarts the debounce.
	for _, typ := range []dom.EventType{dom.EventInput, dom.EventChange} {
		if err := w.listen(dom.OnElement(el), typ, dom.ListenerOptions{Passive: true}, f.onInput); err != nil {
			w.abort()
			return nil, err
		}
	}

	// 3. A prefilled value (autocomplete) is checked right away but never nags.
	info, err := d.env.Page.Inspect(ctx, el)
	if err != nil {
		logger.Debug("Failed to read initial value.", zap.Error(err))
	} else if info.Value != "" {
		f.validate(info.Value, false)
	}
	return w.out, nil
}

type fill struct {
	d       *FormFill
	w       *waiter
	el      dom.ElementID
	desc    step.Descriptor
	matcher Matcher
	hint    string
	logger  *zap.Logger
}

func (f *fill) onInput(ev dom.Event) {
	f.d.env.Feedback.ClearHint(f.ctx())
	f.w.cancelTimer(flashTimer)
	f.w.restart(debounceTimer, f.d.debounce, func() {
		value := ev.Value
		if info, err := f.d.env.Page.Inspect(f.ctx(), f.el); err == nil {
			value = info.Value
		}
		f.validate(value, true)
	})
}

// validate settles the step for an acceptable value. Negative feedback is only shown
// when the user has interacted.
func (f *fill) validate(value string, interactive bool) {
	if !f.desc.Strict {
		if value != "" {
			f.w.settle(step.Completed)
		}
		return
	}

	if f.matcher.Match(value) {
		f.d.env.Feedback.FlashValid(f.ctx())
		f.w.restart(flashTimer, f.d.flash, func() { f.w.settle(step.Completed) })
		return
	}
	if interactive {
		f.logger.Debug("Form value rejected.", zap.String("element", string(f.el)))
		f.d.env.Feedback.ShowHint(f.ctx(), f.hint)
	}
}

func (f *fill) ctx() context.Context {
	return context.WithoutCancel(f.w.ctx)
}
