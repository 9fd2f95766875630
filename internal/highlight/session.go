package highlight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/geometry"
)

// session is one rendered highlight. Its target is held weakly: the session only
// watches whether the element is still connected.
type session struct {
	id     string
	c      *Controller
	target dom.ElementID
	opts   ShowOptions

	ctx    context.Context
	cancel context.CancelFunc
	// done is closed when the drift loop exits.
	done         chan struct{}
	driftRunning bool
	listeners    *dom.Registry

	mu          sync.Mutex
	closed      bool
	hidden      bool
	dot         bool
	card        bool
	marker      dom.NodeID
	markerSpec  dom.NodeSpec
	callout     dom.NodeID
	calloutSpec dom.NodeSpec
	debounce    *time.Timer
	expiry      *time.Timer
}

func (s *session) page() dom.Page { return s.c.page }

// mount inserts the marker and, when there is anything to say, the callout.
func (s *session) mount(ctx context.Context, info dom.ElementInfo, vp geometry.Viewport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.page().SetActive(ctx, s.target, true); err != nil {
		s.c.logger.Debug("Failed to mark target active.", zap.String("element", string(s.target)), zap.Error(err))
	}

	s.markerSpec = dom.NodeSpec{Kind: dom.NodeOutline, Rect: s.markerRect(info.Rect)}
	if s.dot {
		s.markerSpec.Kind = dom.NodeDot
	}
	id, err := s.page().Mount(ctx, s.markerSpec)
	if err != nil {
		return fmt.Errorf("failed to mount highlight: %w", err)
	}
	s.marker = id

	text := strings.TrimSpace(s.opts.Message)
	if s.hidden {
		text = strings.TrimSpace(hiddenWarning + " " + text)
	}
	if text == "" && s.opts.Step == nil && len(s.opts.Buttons) == 0 {
		return nil
	}

	buttons := append([]dom.Button(nil), s.opts.Buttons...)
	if s.opts.AutoCleanup {
		buttons = append(buttons, dom.Button{Label: "Dismiss", Signal: dom.SignalDismiss})
	}
	s.calloutSpec = dom.NodeSpec{
		Kind:    dom.NodeCallout,
		Rect:    geometry.Rect{X: offscreen, Y: offscreen},
		Text:    text,
		Buttons: buttons,
	}
	if st := s.opts.Step; st != nil {
		s.calloutSpec.Title = st.Title
		s.calloutSpec.Progress = st.Progress()
		s.calloutSpec.Checklist = st.Checklist
	}
	if id, err = s.page().Mount(ctx, s.calloutSpec); err != nil {
		return fmt.Errorf("failed to mount callout: %w", err)
	}
	s.callout = id
	return s.placeCalloutLocked(ctx, vp)
}

func (s *session) mountCard(ctx context.Context, spec dom.NodeSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calloutSpec = spec
	id, err := s.page().Mount(ctx, spec)
	if err != nil {
		return fmt.Errorf("failed to mount card: %w", err)
	}
	s.callout = id
	vp, err := s.page().Viewport(ctx)
	if err != nil {
		return fmt.Errorf("failed to read viewport: %w", err)
	}
	return s.centerCardLocked(ctx, vp)
}

// observe wires the three repositioning triggers: the element's own resize observer,
// window resize and scroll on the element's scroll parent.
func (s *session) observe(ctx context.Context) error {
	s.listeners = dom.NewRegistry(s.page(), s.c.logger)
	schedule := func(dom.Event) { s.scheduleReposition() }

	if _, err := s.listeners.Add(ctx, dom.OnElement(s.target), dom.EventElementResize, dom.ListenerOptions{}, schedule); err != nil {
		return err
	}
	if err := s.observeWindow(ctx); err != nil {
		return err
	}

	scroller, err := s.page().ScrollParent(ctx, s.target)
	if err != nil {
		return fmt.Errorf("failed to find scroll parent: %w", err)
	}
	opts := dom.ListenerOptions{Passive: true, Capture: scroller.Kind == dom.TargetDocument}
	if _, err := s.listeners.Add(ctx, scroller, dom.EventScroll, opts, schedule); err != nil {
		return err
	}

	if s.opts.AutoCleanup {
		dismiss := func(dom.Event) { s.c.expire(s, "dismissed", s.opts.Callbacks.OnDismiss) }
		if _, err := s.listeners.Add(ctx, dom.Document, dom.SignalDismiss, dom.ListenerOptions{}, dismiss); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) observeWindow(ctx context.Context) error {
	if s.listeners == nil {
		s.listeners = dom.NewRegistry(s.page(), s.c.logger)
	}
	_, err := s.listeners.Add(ctx, dom.Window, dom.EventResize, dom.ListenerOptions{Passive: true},
		func(dom.Event) { s.scheduleReposition() })
	return err
}

func (s *session) scheduleReposition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.c.opts.RepositionDebounce, s.reposition)
}

func (s *session) reposition() {
	if gone := s.refresh(); gone {
		s.c.expire(s, "target detached", s.opts.Callbacks.OnExpire)
	}
}

// refresh re-renders against the current layout. It reports whether the target is gone.
func (s *session) refresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	vp, err := s.page().Viewport(s.ctx)
	if err != nil {
		s.c.logger.Debug("Failed to read viewport.", zap.Error(err))
		return false
	}
	if s.card {
		if err := s.centerCardLocked(s.ctx, vp); err != nil {
			s.c.logger.Debug("Failed to recenter card.", zap.Error(err))
		}
		return false
	}

	info, err := s.page().Inspect(s.ctx, s.target)
	switch {
	case errors.Is(err, dom.ErrDetached):
		return true
	case err != nil:
		s.c.logger.Debug("Failed to inspect target.", zap.Error(err))
		return false
	case !info.Connected:
		return true
	}
	if err := s.renderLocked(s.ctx, info, vp); err != nil {
		s.c.logger.Debug("Failed to reposition highlight.", zap.String("session", s.id), zap.Error(err))
	}
	return false
}

func (s *session) startExpiry(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry = time.AfterFunc(delay, func() {
		s.c.expire(s, "auto cleanup", s.opts.Callbacks.OnExpire)
	})
}

func (s *session) startDrift() {
	s.driftRunning = true
	go s.driftLoop()
}

// driftLoop runs once per frame and measures at most once per DriftInterval, catching
// re-layouts that fire neither resize nor scroll events.
func (s *session) driftLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.c.opts.FrameInterval)
	defer ticker.Stop()
	limiter := rate.NewLimiter(rate.Every(s.c.opts.DriftInterval), 1)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !limiter.Allow() {
				continue
			}
			if gone := s.checkDrift(); gone {
				// Clear may be waiting on this loop while holding the controller.
				go s.c.expire(s, "target detached", s.opts.Callbacks.OnExpire)
				return
			}
		}
	}
}

func (s *session) checkDrift() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	info, err := s.page().Inspect(s.ctx, s.target)
	switch {
	case errors.Is(err, dom.ErrDetached):
		return true
	case err != nil:
		if s.ctx.Err() == nil {
			s.c.logger.Debug("Drift check failed.", zap.Error(err))
		}
		return false
	case !info.Connected:
		return true
	}

	rendered, err := s.page().Measure(s.ctx, s.marker)
	if err != nil {
		return false
	}
	drift := geometry.Distance(rendered.Center(), info.Rect.Center())
	if drift <= s.c.opts.DriftThreshold {
		return false
	}

	vp, err := s.page().Viewport(s.ctx)
	if err != nil {
		return false
	}
	s.c.logger.Debug("Highlight drifted, snapping to target.",
		zap.String("session", s.id), zap.Float64("distance", drift))
	if err := s.renderLocked(s.ctx, info, vp); err != nil {
		s.c.logger.Debug("Failed to snap highlight.", zap.Error(err))
	}
	return false
}

func (s *session) renderLocked(ctx context.Context, info dom.ElementInfo, vp geometry.Viewport) error {
	s.markerSpec.Rect = s.markerRect(info.Rect)
	if err := s.page().Update(ctx, s.marker, s.markerSpec); err != nil {
		return err
	}
	if s.callout == "" {
		return nil
	}
	return s.placeCalloutLocked(ctx, vp)
}

// placeCalloutLocked positions the callout using its rendered size.
func (s *session) placeCalloutLocked(ctx context.Context, vp geometry.Viewport) error {
	measured, err := s.page().Measure(ctx, s.callout)
	if err != nil {
		return fmt.Errorf("failed to measure callout: %w", err)
	}
	size := geometry.Size{Width: measured.Width, Height: measured.Height}
	p := geometry.PlaceCallout(s.markerSpec.Rect, size, vp, s.c.opts.CalloutGap, s.c.opts.ViewportPadding)
	s.calloutSpec.Rect = p.Rect
	return s.page().Update(ctx, s.callout, s.calloutSpec)
}

func (s *session) centerCardLocked(ctx context.Context, vp geometry.Viewport) error {
	measured, err := s.page().Measure(ctx, s.callout)
	if err != nil {
		return fmt.Errorf("failed to measure card: %w", err)
	}
	s.calloutSpec.Rect = geometry.CenterIn(geometry.Size{Width: measured.Width, Height: measured.Height}, vp)
	return s.page().Update(ctx, s.callout, s.calloutSpec)
}

func (s *session) editCallout(ctx context.Context, edit func(*dom.NodeSpec)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.callout == "" {
		return nil
	}
	edit(&s.calloutSpec)
	return s.page().Update(ctx, s.callout, s.calloutSpec)
}

// markerRect is the outline box around the target, or a dot on its centre.
func (s *session) markerRect(r geometry.Rect) geometry.Rect {
	if !s.dot {
		return r.Expand(outlinePadding)
	}
	c := r.Center()
	return geometry.Rect{X: c.X - dotSize/2, Y: c.Y - dotSize/2, Width: dotSize, Height: dotSize}
}

// teardown stops every trigger, then removes the nodes and the active styling. With
// wait set it also blocks until the drift loop has exited.
func (s *session) teardown(ctx context.Context, wait bool) {
	s.cancel()
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.debounce != nil {
		s.debounce.Stop()
	}
	if s.expiry != nil {
		s.expiry.Stop()
	}
	nodes := []dom.NodeID{s.callout, s.marker}
	s.mu.Unlock()

	if s.listeners != nil {
		s.listeners.ReleaseAll(ctx)
	}
	for _, id := range nodes {
		if id == "" {
			continue
		}
		if err := s.page().Unmount(ctx, id); err != nil && !errors.Is(err, dom.ErrDetached) {
			s.c.logger.Debug("Failed to unmount overlay node.", zap.String("node", string(id)), zap.Error(err))
		}
	}
	if s.target != "" {
		if err := s.page().SetActive(ctx, s.target, false); err != nil && !errors.Is(err, dom.ErrDetached) {
			s.c.logger.Debug("Failed to clear active styling.", zap.Error(err))
		}
	}
	if wait && s.driftRunning {
		<-s.done
	}
}
