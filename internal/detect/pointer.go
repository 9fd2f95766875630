package detect

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/geometry"
	"github.com/xkilldash9x/stepwise/internal/step"
)

const dwellTimer = "dwell"

// Hover completes once the pointer has rested on the target for the dwell time.
type Hover struct {
	env   Env
	dwell time.Duration
}

func (d *Hover) Arm(ctx context.Context, el dom.ElementID, _ step.Descriptor) (<-chan step.Outcome, error) {
	logger := d.env.Logger.Named("hover")
	w := newWaiter(ctx, d.env.Registry)
	startDwell := func() {
		w.restart(dwellTimer, d.dwell, func() { w.settle(step.Completed) })
	}

	// 1. Listeners first, so an enter racing the hover query below is not lost.
	if err := w.listen(dom.OnElement(el), dom.EventMouseEnter, dom.ListenerOptions{Passive: true}, func(dom.Event) {
		startDwell()
	}); err != nil {
		w.abort()
		return nil, err
	}
	if err := w.listen(dom.OnElement(el), dom.EventMouseLeave, dom.ListenerOptions{Passive: true}, func(dom.Event) {
		w.cancelTimer(dwellTimer)
	}); err != nil {
		w.abort()
		return nil, err
	}

	// 2. A pointer already resting on the target starts the dwell now.
	info, err := d.env.Page.Inspect(ctx, el)
	if err != nil {
		logger.Debug("Failed to read hover state.", zap.Error(err))
	} else if info.Hovered && !w.running(dwellTimer) {
		logger.Debug("Pointer already on target, starting dwell.")
		startDwell()
	}
	return w.out, nil
}

// Click completes on a click on the target or its descendants, or close enough to it.
type Click struct {
	env    Env
	margin float64
}

func (d *Click) Arm(ctx context.Context, el dom.ElementID, _ step.Descriptor) (<-chan step.Outcome, error) {
	logger := d.env.Logger.Named("click")
	w := newWaiter(ctx, d.env.Registry)

	// Capture phase on the document: overlapping elements that stop propagation cannot
	// swallow the click. The event is never prevented.
	err := w.listen(dom.Document, dom.EventClick, dom.ListenerOptions{Capture: true}, func(ev dom.Event) {
		d.handle(w, logger, el, ev)
	})
	if err != nil {
		w.abort()
		return nil, err
	}
	return w.out, nil
}

func (d *Click) handle(w *waiter, logger *zap.Logger, el dom.ElementID, ev dom.Event) {
	ctx := context.WithoutCancel(w.ctx)

	if ev.Target != "" {
		if ev.Target == el {
			w.settle(step.Completed)
			return
		}
		inside, err := d.env.Page.Contains(ctx, el, ev.Target)
		if err != nil {
			logger.Debug("Failed to test click target.", zap.Error(err))
		}
		if inside {
			w.settle(step.Completed)
			return
		}
	}

	info, err := d.env.Page.Inspect(ctx, el)
	if err != nil || !info.Connected {
		return
	}
	pt := geometry.Point{X: ev.X, Y: ev.Y}
	if !info.Rect.Expand(d.margin).Contains(pt) {
		return
	}

	// Near miss: the click landed on something covering or next to the target.
	logger.Debug("Accepting click near target.",
		zap.String("element", string(el)),
		zap.Float64("x", ev.X), zap.Float64("y", ev.Y))
	w.settle(step.Completed)
	if err := d.env.Page.Click(ctx, el); err != nil {
		logger.Warn("Failed to forward click to target.", zap.String("element", string(el)), zap.Error(err))
	}
}

// Acknowledge completes when the user presses Continue.
type Acknowledge struct {
	env Env
}

func (d *Acknowledge) Arm(ctx context.Context, _ dom.ElementID, _ step.Descriptor) (<-chan step.Outcome, error) {
	w := newWaiter(ctx, d.env.Registry)
	if err := w.listen(dom.Document, dom.SignalContinue, dom.ListenerOptions{}, func(dom.Event) {
		w.settle(step.Completed)
	}); err != nil {
		w.abort()
		return nil, err
	}
	return w.out, nil
}
