package detect

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/step"
)

// waiter is the settle guard shared by every detector. It owns the detector's
// listeners and timers and releases all of them the moment the first outcome lands,
// whichever signal source produced it.
type waiter struct {
	ctx  context.Context
	reg  *dom.Registry
	out  chan step.Outcome
	once sync.Once
	stop func() bool

	mu        sync.Mutex
	settled   bool
	listeners []dom.ListenerID
	timers    map[string]*time.Timer
}

func newWaiter(ctx context.Context, reg *dom.Registry) *waiter {
	w := &waiter{
		ctx:    ctx,
		reg:    reg,
		out:    make(chan step.Outcome, 1),
		timers: make(map[string]*time.Timer),
	}
	w.stop = context.AfterFunc(ctx, func() { w.settle(step.Cancelled) })
	return w
}

// listen attaches a listener owned by this waiter. Events arriving after settlement are
// dropped.
func (w *waiter) listen(target dom.Target, typ dom.EventType, opts dom.ListenerOptions, h dom.Handler) error {
	id, err := w.reg.Add(w.ctx, target, typ, opts, func(ev dom.Event) {
		if w.done() {
			return
		}
		h(ev)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.settled {
		// Settled while attaching; nothing else will release it.
		w.mu.Unlock()
		w.reg.Release(context.WithoutCancel(w.ctx), id)
		return nil
	}
	w.listeners = append(w.listeners, id)
	w.mu.Unlock()
	return nil
}

// restart (re)arms the named timer.
func (w *waiter) restart(name string, d time.Duration, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.settled {
		return
	}
	if t, ok := w.timers[name]; ok {
		t.Stop()
	}
	w.timers[name] = time.AfterFunc(d, func() {
		if !w.done() {
			fn()
		}
	})
}

// cancelTimer stops the named timer without settling.
func (w *waiter) cancelTimer(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[name]; ok {
		t.Stop()
		delete(w.timers, name)
	}
}

func (w *waiter) running(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.timers[name]
	return ok
}

func (w *waiter) done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settled
}

// settle delivers the first outcome and tears everything down. Later calls are no-ops.
func (w *waiter) settle(o step.Outcome) { w.finish(&o) }

// abort tears the waiter down after a failed arm. Nothing is delivered.
func (w *waiter) abort() { w.finish(nil) }

func (w *waiter) finish(o *step.Outcome) {
	w.once.Do(func() {
		w.mu.Lock()
		w.settled = true
		for name, t := range w.timers {
			t.Stop()
			delete(w.timers, name)
		}
		ids := w.listeners
		w.listeners = nil
		w.mu.Unlock()

		w.stop()
		w.reg.Release(context.WithoutCancel(w.ctx), ids...)
		if o != nil {
			w.out <- *o
		}
		close(w.out)
	})
}
