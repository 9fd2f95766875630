// Package highlight renders the overlay that points the user at a live element: an
// outline (or a compact dot for tiny and hidden targets) plus an instructional callout.
// The overlay is kept glued to its target through resize and scroll observation and,
// in guided mode, an active drift check.
//
// A Controller owns at most one highlight session at a time. Show always tears the
// previous session down before mounting new nodes, and Clear is the single teardown path.
package highlight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/geometry"
	"github.com/xkilldash9x/stepwise/internal/step"
)

// ErrInvalidGeometry is returned by Show when the target has no usable position.
var ErrInvalidGeometry = errors.New("element has no usable geometry")

const (
	outlinePadding = 4.0
	dotSize        = 14.0
	// offscreen is where the callout is mounted before it has been measured.
	offscreen = -10000.0

	hiddenWarning = "This element is hidden right now. It may be inside a collapsed menu or panel."
)

// Options tunes rendering and repositioning.
type Options struct {
	// MinSize is the smallest width or height that still gets an outline.
	MinSize         float64
	ViewportPadding float64
	CalloutGap      float64
	// RepositionDebounce coalesces bursts of resize and scroll events.
	RepositionDebounce time.Duration
	// FrameInterval is the drift loop's tick, one animation frame by default.
	FrameInterval time.Duration
	// DriftInterval throttles drift measurements.
	DriftInterval  time.Duration
	DriftThreshold float64
	// AutoCleanupDelay is how long a non-guided highlight stays up.
	AutoCleanupDelay time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		MinSize:            12,
		ViewportPadding:    12,
		CalloutGap:         12,
		RepositionDebounce: 120 * time.Millisecond,
		FrameInterval:      16 * time.Millisecond,
		DriftInterval:      250 * time.Millisecond,
		DriftThreshold:     5,
		AutoCleanupDelay:   5 * time.Second,
	}
}

// StepInfo is the progress snapshot rendered in the callout.
type StepInfo struct {
	Position  step.Position
	Title     string
	Checklist []dom.ChecklistItem
}

// Progress renders "Step n of m".
func (s StepInfo) Progress() string {
	if s.Position.Total == 0 {
		return ""
	}
	return fmt.Sprintf("Step %d of %d", s.Position.Index+1, s.Position.Total)
}

// Callbacks lets callers observe a session the controller ends on its own.
type Callbacks struct {
	// OnDismiss runs after the user dismissed the highlight.
	OnDismiss func()
	// OnExpire runs after auto cleanup or after the target left the document.
	OnExpire func()
}

// ShowOptions describes one highlight.
type ShowOptions struct {
	Message string
	// AutoCleanup removes the highlight after a delay and offers a dismiss button.
	// Guided steps disable it and get the drift loop instead.
	AutoCleanup bool
	Step        *StepInfo
	// Buttons are rendered in the callout.
	Buttons   []dom.Button
	Callbacks Callbacks
}

// Controller owns the single active highlight session for one page.
type Controller struct {
	page   dom.Page
	logger *zap.Logger
	opts   Options

	mu      sync.Mutex
	current *session
}

// NewController creates a controller for page.
func NewController(page dom.Page, logger *zap.Logger, opts Options) *Controller {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultOptions().FrameInterval
	}
	return &Controller{
		page:   page,
		logger: logger.Named("highlight"),
		opts:   opts,
	}
}

// Show highlights el. Any previous session is cleared first, even when Show fails.
func (c *Controller) Show(ctx context.Context, el dom.ElementID, opts ShowOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 1. Tear down whatever is on screen before anything new is inserted.
	c.clearLocked(ctx)

	// 2. Validate geometry.
	info, err := c.page.Inspect(ctx, el)
	if err != nil {
		return fmt.Errorf("failed to inspect highlight target: %w", err)
	}
	if !info.Connected {
		return fmt.Errorf("highlight target %s: %w", el, dom.ErrDetached)
	}
	vp, err := c.page.Viewport(ctx)
	if err != nil {
		return fmt.Errorf("failed to read viewport: %w", err)
	}
	if geometry.IsPhantom(info.Rect, vp) {
		c.logger.Debug("Skipping highlight for element without layout.", zap.String("element", string(el)))
		return ErrInvalidGeometry
	}

	s := newSession(c, el, opts)
	s.hidden = !info.Visible()
	s.dot = s.hidden || info.Rect.Width < c.opts.MinSize || info.Rect.Height < c.opts.MinSize

	// 3. Render, then observe. A failure part way leaves nothing behind.
	if err := s.mount(ctx, info, vp); err != nil {
		s.teardown(ctx, true)
		return err
	}
	if err := s.observe(ctx); err != nil {
		s.teardown(ctx, true)
		return err
	}

	// 4. Guided mode tracks drift; otherwise the highlight expires on its own.
	if opts.AutoCleanup {
		s.startExpiry(c.opts.AutoCleanupDelay)
	} else {
		s.startDrift()
	}

	c.current = s
	c.logger.Debug("Highlight shown.",
		zap.String("session", s.id),
		zap.String("element", string(el)),
		zap.Bool("dot", s.dot),
		zap.Bool("hidden", s.hidden),
		zap.Bool("auto_cleanup", opts.AutoCleanup))
	return nil
}

// CardOptions describes a centred instructional card for steps without a target.
type CardOptions struct {
	Title     string
	Text      string
	Step      *StepInfo
	Buttons   []dom.Button
	Checklist []dom.ChecklistItem
}

// ShowCard clears the current session and renders a card centred in the viewport.
func (c *Controller) ShowCard(ctx context.Context, opts CardOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked(ctx)

	s := newSession(c, "", ShowOptions{Message: opts.Text, Step: opts.Step, Buttons: opts.Buttons})
	s.card = true
	spec := dom.NodeSpec{
		Kind:      dom.NodeCard,
		Rect:      geometry.Rect{X: offscreen, Y: offscreen},
		Title:     opts.Title,
		Text:      opts.Text,
		Buttons:   opts.Buttons,
		Checklist: opts.Checklist,
	}
	if opts.Step != nil {
		spec.Progress = opts.Step.Progress()
		if spec.Title == "" {
			spec.Title = opts.Step.Title
		}
		if spec.Checklist == nil {
			spec.Checklist = opts.Step.Checklist
		}
	}
	if err := s.mountCard(ctx, spec); err != nil {
		s.teardown(ctx, true)
		return err
	}
	if err := s.observeWindow(ctx); err != nil {
		s.teardown(ctx, true)
		return err
	}
	c.current = s
	return nil
}

// Clear removes the current highlight, its observers and the active styling. It is
// safe to call at any time and any number of times.
func (c *Controller) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked(ctx)
}

func (c *Controller) clearLocked(ctx context.Context) {
	if s := c.current; s != nil {
		c.current = nil
		s.teardown(ctx, true)
		c.logger.Debug("Highlight cleared.", zap.String("session", s.id))
	}
	if err := c.page.ClearActive(context.WithoutCancel(ctx)); err != nil {
		c.logger.Debug("Failed to strip active styling.", zap.Error(err))
	}
}

// expire ends s if it is still the current session. It is used by the controller's own
// timers and observers.
func (c *Controller) expire(s *session, reason string, notify func()) {
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	c.current = nil
	s.teardown(context.Background(), false)
	c.mu.Unlock()

	c.logger.Debug("Highlight ended.", zap.String("session", s.id), zap.String("reason", reason))
	if notify != nil {
		notify()
	}
}

// Active reports the highlighted element, if a target highlight is on screen.
func (c *Controller) Active() (dom.ElementID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.card {
		return "", false
	}
	return c.current.target, true
}

// Showing reports whether any session, highlight or card, is on screen.
func (c *Controller) Showing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// ShowHint surfaces a validation hint in the current callout.
func (c *Controller) ShowHint(ctx context.Context, hint string) {
	c.withCallout(ctx, func(spec *dom.NodeSpec) {
		spec.Hint = hint
		spec.Valid = false
	})
}

// ClearHint removes validation feedback from the current callout.
func (c *Controller) ClearHint(ctx context.Context) {
	c.withCallout(ctx, func(spec *dom.NodeSpec) {
		spec.Hint = ""
		spec.Valid = false
	})
}

// FlashValid marks the current callout as successfully validated.
func (c *Controller) FlashValid(ctx context.Context) {
	c.withCallout(ctx, func(spec *dom.NodeSpec) {
		spec.Hint = ""
		spec.Valid = true
	})
}

func (c *Controller) withCallout(ctx context.Context, edit func(*dom.NodeSpec)) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.editCallout(ctx, edit); err != nil {
		c.logger.Debug("Failed to update callout.", zap.String("session", s.id), zap.Error(err))
	}
}

func newSession(c *Controller, target dom.ElementID, opts ShowOptions) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:     uuid.NewString(),
		c:      c,
		target: target,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}
