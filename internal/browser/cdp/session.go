// Package cdp implements dom.Page on a live Chromium tab driven over the Chrome
// DevTools Protocol. An injected page agent owns element handles, listeners and the
// overlay layer; the Session forwards calls to it and pumps its events back into Go.
package cdp

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/geometry"
)

var _ dom.Page = (*Session)(nil)

// Session is one browser tab prepared for guided steps.
type Session struct {
	// ctx carries the chromedp target. Every command derives from it.
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig
	events *queue

	mu       sync.Mutex
	handlers map[dom.ListenerID]dom.Handler

	closeOnce sync.Once
	done      chan struct{}
	pumpDone  chan struct{}
}

// NewAllocator starts the browser process described by cfg.
func NewAllocator(parent context.Context, cfg config.BrowserConfig) (context.Context, context.CancelFunc) {
	return chromedp.NewExecAllocator(parent, AllocatorOptions(cfg)...)
}

// Open creates a tab on allocCtx and installs the page agent.
func Open(allocCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	ctx, cancel := chromedp.NewContext(allocCtx)
	s := &Session{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.Named("cdp"),
		cfg:      cfg,
		events:   newQueue(),
		handlers: make(map[dom.ListenerID]dom.Handler),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}

	// 1. Start the browser and tab.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser tab: %w", err)
	}

	// 2. Route events before the binding exists so none are missed.
	chromedp.ListenTarget(ctx, s.onTargetEvent)
	go s.pump()

	// 3. Install the binding and the agent for every future document.
	if err := chromedp.Run(ctx, s.install()); err != nil {
		s.shutdown()
		return nil, fmt.Errorf("failed to install page agent: %w", err)
	}
	s.logger.Debug("Page session ready.")
	return s, nil
}

func (s *Session) install() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := cdpruntime.AddBinding(bindingName).Do(ctx); err != nil {
			return fmt.Errorf("failed to add binding %s: %w", bindingName, err)
		}
		scriptID, err := page.AddScriptToEvaluateOnNewDocument(agentScript).Do(ctx)
		if err != nil {
			return fmt.Errorf("could not inject page agent persistently: %w", err)
		}
		s.logger.Debug("Injected page agent.", zap.String("scriptID", string(scriptID)))
		// The current document predates the persistent script.
		return chromedp.Evaluate(agentScript, nil).Do(ctx)
	})
}

// Navigate loads url and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	runCtx, cancelTimeout := context.WithTimeout(runCtx, timeout)
	defer cancelTimeout()

	s.logger.Info("Navigating.", zap.String("url", url))
	if err := chromedp.Run(runCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Done is closed when the tab goes away, for instance because the user closed the
// browser window.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close shuts the tab down and stops event delivery.
func (s *Session) Close() error {
	s.shutdown()
	<-s.pumpDone
	return nil
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.events.close()
		s.cancel()
	})
}

func (s *Session) onTargetEvent(ev any) {
	switch ev := ev.(type) {
	case *cdpruntime.EventBindingCalled:
		if ev.Name == bindingName {
			s.events.push(ev.Payload)
		}
	case *inspector.EventDetached:
		s.logger.Info("Browser tab detached.", zap.String("reason", string(ev.Reason)))
		go s.shutdown()
	}
}

// pump delivers page events one at a time, in arrival order.
func (s *Session) pump() {
	defer close(s.pumpDone)
	for {
		payload, ok := s.events.pop()
		if !ok {
			return
		}
		ev, err := decodeEvent(payload)
		if err != nil {
			s.logger.Warn("Dropped malformed page event.", zap.Error(err), zap.String("payload", payload))
			continue
		}
		s.mu.Lock()
		h := s.handlers[ev.Listener]
		s.mu.Unlock()
		if h == nil {
			// Removed while the event was in flight.
			continue
		}
		s.deliver(h, ev)
	}
}

func (s *Session) deliver(h dom.Handler, ev dom.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in page event handler.",
				zap.String("type", string(ev.Type)),
				zap.Any("panic_reason", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()
	h(ev)
}

// call invokes an agent method and decodes its result into out.
func (s *Session) call(ctx context.Context, out any, method string, args ...any) error {
	expr, err := agentExpression(method, args...)
	if err != nil {
		return err
	}
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	if t := s.cfg.CommandTimeout; t > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, t)
		defer cancelTimeout()
	}

	var raw string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, &raw)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to call page agent %s: %w", method, err)
	}
	return decodeReply(method, raw, out)
}

// -- Queries --

func (s *Session) Query(ctx context.Context, selector string) ([]dom.ElementID, error) {
	var ids []dom.ElementID
	err := s.call(ctx, &ids, "query", selector)
	return ids, err
}

func (s *Session) QueryWithin(ctx context.Context, container dom.ElementID, selector string) ([]dom.ElementID, error) {
	var ids []dom.ElementID
	err := s.call(ctx, &ids, "queryWithin", container, selector)
	return ids, err
}

func (s *Session) QueryText(ctx context.Context, text string) ([]dom.ElementID, error) {
	var ids []dom.ElementID
	err := s.call(ctx, &ids, "queryText", text)
	return ids, err
}

func (s *Session) Inspect(ctx context.Context, el dom.ElementID) (dom.ElementInfo, error) {
	var info dom.ElementInfo
	err := s.call(ctx, &info, "inspect", el)
	return info, err
}

func (s *Session) ScrollParent(ctx context.Context, el dom.ElementID) (dom.Target, error) {
	var t dom.Target
	if err := s.call(ctx, &t, "scrollParent", el); err != nil {
		return dom.Target{}, err
	}
	return t, nil
}

func (s *Session) Contains(ctx context.Context, ancestor, node dom.ElementID) (bool, error) {
	var ok bool
	err := s.call(ctx, &ok, "contains", ancestor, node)
	return ok, err
}

func (s *Session) Viewport(ctx context.Context) (geometry.Viewport, error) {
	var vp geometry.Viewport
	err := s.call(ctx, &vp, "viewport")
	return vp, err
}

// -- Listeners --

// Listen registers h before the page side is attached so early events are not lost.
func (s *Session) Listen(ctx context.Context, target dom.Target, typ dom.EventType, opts dom.ListenerOptions, h dom.Handler) (dom.ListenerID, error) {
	id := dom.ListenerID(uuid.NewString())
	s.mu.Lock()
	s.handlers[id] = h
	s.mu.Unlock()

	if err := s.call(ctx, nil, "listen", id, target, typ, opts); err != nil {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
		return "", err
	}
	return id, nil
}

func (s *Session) Unlisten(ctx context.Context, id dom.ListenerID) error {
	s.mu.Lock()
	_, known := s.handlers[id]
	delete(s.handlers, id)
	s.mu.Unlock()
	if !known {
		return fmt.Errorf("unknown listener %s", id)
	}

	var removed bool
	if err := s.call(ctx, &removed, "unlisten", id); err != nil {
		return err
	}
	if !removed {
		// The document that held it is gone.
		s.logger.Debug("Listener was already gone from the page.", zap.String("listener", string(id)))
	}
	return nil
}

// -- Overlay --

func (s *Session) Mount(ctx context.Context, spec dom.NodeSpec) (dom.NodeID, error) {
	id := dom.NodeID(uuid.NewString())
	if err := s.call(ctx, nil, "mount", id, spec); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Session) Update(ctx context.Context, id dom.NodeID, spec dom.NodeSpec) error {
	return s.call(ctx, nil, "update", id, spec)
}

func (s *Session) Measure(ctx context.Context, id dom.NodeID) (geometry.Rect, error) {
	var r geometry.Rect
	err := s.call(ctx, &r, "measure", id)
	return r, err
}

func (s *Session) Unmount(ctx context.Context, id dom.NodeID) error {
	return s.call(ctx, nil, "unmount", id)
}

func (s *Session) SetActive(ctx context.Context, el dom.ElementID, active bool) error {
	return s.call(ctx, nil, "setActive", el, active)
}

func (s *Session) ClearActive(ctx context.Context) error {
	return s.call(ctx, nil, "clearActive")
}

// -- Actions --

func (s *Session) Focus(ctx context.Context, el dom.ElementID) error {
	return s.call(ctx, nil, "focus", el)
}

func (s *Session) Click(ctx context.Context, el dom.ElementID) error {
	return s.call(ctx, nil, "click", el)
}

func (s *Session) Dispatch(ctx context.Context, signal dom.EventType) error {
	return s.call(ctx, nil, "dispatch", signal)
}
