// Package guide is the step orchestrator. A Handler executes one step descriptor at a
// time: it resolves the target, arms the completion detector, renders the highlight and
// races the user's action against skip, cancel and the step timeout. Whatever wins, every
// listener attached for the step is released before Execute returns, and no error or
// panic escapes it; failures become the cancelled outcome.
package guide

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/detect"
	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/highlight"
	"github.com/xkilldash9x/stepwise/internal/resolve"
	"github.com/xkilldash9x/stepwise/internal/step"
)

// StateSink receives step transitions. Calls are synchronous.
type StateSink interface {
	SetState(desc step.Descriptor, state step.State)
	HandleError(err error, label string, desc step.Descriptor, rethrow bool)
}

// Navigator prepares the host application's navigation so targets inside it can be
// reached.
type Navigator interface {
	EnsureOpen(ctx context.Context) error
}

// Deps are the collaborators a Handler needs.
type Deps struct {
	Page   dom.Page
	Sink   StateSink
	Logger *zap.Logger
	// Navigator is optional.
	Navigator Navigator
}

// Handler executes guided steps against one page.
type Handler struct {
	page      dom.Page
	sink      StateSink
	nav       Navigator
	logger    *zap.Logger
	opts      Options
	registry  *dom.Registry
	resolver  *resolve.Resolver
	highlight *highlight.Controller
	detectors *detect.Set
	feedback  *stepFeedback
	progress  *Progress

	// stepMu serialises Execute.
	stepMu sync.Mutex

	mu      sync.Mutex
	current *signals
	labels  []string
}

// NewHandler wires the engine components over deps.Page.
func NewHandler(deps Deps, opts Options) *Handler {
	logger := deps.Logger.Named("guide")
	registry := dom.NewRegistry(deps.Page, logger)
	hl := highlight.NewController(deps.Page, logger, opts.Highlight)
	feedback := newStepFeedback(hl)
	return &Handler{
		page:      deps.Page,
		sink:      deps.Sink,
		nav:       deps.Navigator,
		logger:    logger,
		opts:      opts,
		registry:  registry,
		resolver:  resolve.New(deps.Page, logger, opts.Resolve),
		highlight: hl,
		detectors: detect.NewSet(detect.Env{
			Page:     deps.Page,
			Registry: registry,
			Logger:   logger.Named("detect"),
			Feedback: feedback,
		}, opts.Detect),
		feedback: feedback,
		progress: NewProgress(),
	}
}

// Begin starts a new sequence: progress is reset and labels feed the checklist.
func (h *Handler) Begin(labels []string) {
	h.progress.Reset()
	h.mu.Lock()
	h.labels = append([]string(nil), labels...)
	h.mu.Unlock()
}

// Progress exposes the completed-steps set.
func (h *Handler) Progress() *Progress { return h.progress }

// Listeners returns how many step listeners are attached right now. It is zero
// whenever no step is executing.
func (h *Handler) Listeners() int { return h.registry.Len() }

// Highlight exposes the controller that owns the on-screen highlight.
func (h *Handler) Highlight() *highlight.Controller { return h.highlight }

// Skip asks the running step to resolve as skipped. It reports false when no step is
// running or the step is not skippable.
func (h *Handler) Skip() bool {
	h.mu.Lock()
	sig := h.current
	h.mu.Unlock()
	return sig != nil && sig.fireSkip()
}

// Cancel asks the running step to resolve as cancelled. It reports false when no step is
// running.
func (h *Handler) Cancel() bool {
	h.mu.Lock()
	sig := h.current
	h.mu.Unlock()
	if sig == nil {
		return false
	}
	sig.fireCancel()
	return true
}

// Close removes any remaining highlight and listener.
func (h *Handler) Close(ctx context.Context) {
	h.highlight.Clear(ctx)
	h.registry.ReleaseAll(ctx)
}

// Execute runs one step to a terminal outcome.
func (h *Handler) Execute(ctx context.Context, desc step.Descriptor, pos step.Position) (outcome step.Outcome) {
	h.stepMu.Lock()
	defer h.stepMu.Unlock()

	logger := h.logger.With(zap.String("step", desc.Label()), zap.Int("index", pos.Index), zap.String("action", string(desc.Action)))
	stepCtx, cancel := context.WithCancel(ctx)
	sig := newSignals(desc.Skippable, cancel)
	h.setCurrent(sig)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("step pipeline panicked: %v", r)
			logger.Error("Recovered from panic in step pipeline.",
				zap.Any("panic", r), zap.String("stack", string(debug.Stack())))
			h.reportError(logger, err, "step pipeline", desc)
			outcome = step.Cancelled
		}
		cancel()
		h.setCurrent(nil)
		outcome = h.settleSafely(ctx, desc, pos, outcome, logger)
		logger.Info("Step finished.", zap.String("outcome", string(outcome)), zap.Duration("duration", time.Since(start)))
	}()

	h.setState(logger, desc, step.StateRunning)
	logger.Debug("Step started.")
	return h.run(stepCtx, desc, pos, sig, logger)
}

func (h *Handler) run(ctx context.Context, desc step.Descriptor, pos step.Position, sig *signals, logger *zap.Logger) step.Outcome {
	if desc.Action == step.ActionNoop {
		return h.runInfo(ctx, desc, pos, sig, logger)
	}
	if !desc.Action.Valid() {
		h.reportError(logger, fmt.Errorf("unknown action %q", desc.Action), "validate step", desc)
		return step.Cancelled
	}

	// 1. Open the host navigation when the target lives inside it.
	if desc.InNavigation && h.nav != nil {
		if err := h.nav.EnsureOpen(ctx); err != nil {
			logger.Warn("Failed to open navigation, resolving anyway.", zap.Error(err))
		}
	}

	// 2. Resolve.
	el, err := h.resolver.Resolve(ctx, desc.Target, desc.Action)
	if err != nil {
		if h.aborted(ctx, logger, "resolve target") {
			return step.Cancelled
		}
		h.reportError(logger, err, "resolve target", desc)
		return step.Cancelled
	}

	// 3. Arm the detector before anything is rendered so a fast user is not missed.
	det, err := h.detectors.For(desc.Action)
	if err != nil {
		h.reportError(logger, err, "select detector", desc)
		return step.Cancelled
	}
	h.feedback.hold()
	done, err := det.Arm(ctx, el, desc)
	if err != nil {
		if h.aborted(ctx, logger, "arm detector") {
			return step.Cancelled
		}
		h.reportError(logger, err, "arm detector", desc)
		return step.Cancelled
	}
	if err := h.listenSignals(ctx, sig); err != nil {
		if h.aborted(ctx, logger, "listen for step signals") {
			return step.Cancelled
		}
		h.reportError(logger, err, "listen for step signals", desc)
		return step.Cancelled
	}
	if h.aborted(ctx, logger, "render highlight") {
		return step.Cancelled
	}

	// 4. Render in persistent mode.
	err = h.highlight.Show(ctx, el, highlight.ShowOptions{
		Message: desc.Comment,
		Step:    h.stepInfo(desc, pos),
		Buttons: stepButtons(desc),
	})
	switch {
	case errors.Is(err, highlight.ErrInvalidGeometry):
		logger.Warn("Target has no usable geometry, continuing without a highlight.")
	case err != nil:
		logger.Warn("Failed to render highlight, continuing without it.", zap.Error(err))
	}
	// Feedback the detector produced while arming, such as a prefilled value that is
	// already accepted, belongs on the callout that now exists.
	h.feedback.release(ctx)

	// 5. Race.
	return h.race(ctx, done, sig)
}

// runInfo shows a centred card for a step without a target.
func (h *Handler) runInfo(ctx context.Context, desc step.Descriptor, pos step.Position, sig *signals, logger *zap.Logger) step.Outcome {
	done, err := h.detectors.Acknowledge.Arm(ctx, "", desc)
	if err != nil {
		if h.aborted(ctx, logger, "arm detector") {
			return step.Cancelled
		}
		h.reportError(logger, err, "arm detector", desc)
		return step.Cancelled
	}
	if err := h.listenSignals(ctx, sig); err != nil {
		if h.aborted(ctx, logger, "listen for step signals") {
			return step.Cancelled
		}
		h.reportError(logger, err, "listen for step signals", desc)
		return step.Cancelled
	}
	if h.aborted(ctx, logger, "render card") {
		return step.Cancelled
	}

	buttons := append([]dom.Button{{Label: "Continue", Signal: dom.SignalContinue}}, stepButtons(desc)...)
	info := h.stepInfo(desc, pos)
	if err := h.highlight.ShowCard(ctx, highlight.CardOptions{
		Title:   desc.Title,
		Text:    desc.Comment,
		Step:    info,
		Buttons: buttons,
	}); err != nil {
		logger.Warn("Failed to render instruction card.", zap.Error(err))
	}
	return h.race(ctx, done, sig)
}

// race waits for the first of completion, skip, cancel or timeout. A completion that is
// already available wins over a signal that arrived at the same moment.
func (h *Handler) race(ctx context.Context, done <-chan step.Outcome, sig *signals) step.Outcome {
	timer := time.NewTimer(h.opts.StepTimeout)
	defer timer.Stop()

	gaveUp := false
	select {
	case o, ok := <-done:
		if ok && o == step.Completed {
			return o
		}
		// The detector only gives up when the step context ends. Find out why below.
		gaveUp = true
	case <-sig.skip:
	case <-sig.cancel:
	case <-timer.C:
	case <-ctx.Done():
	}

	select {
	case o, ok := <-done:
		if ok && o == step.Completed {
			return o
		}
	default:
	}
	select {
	case <-sig.skip:
		return step.Skipped
	default:
	}
	select {
	case <-sig.cancel:
		return step.Cancelled
	default:
	}
	if ctx.Err() != nil || gaveUp {
		return step.Cancelled
	}
	return step.Timeout
}

// listenSignals routes the callout's skip and cancel buttons into the step's signals.
func (h *Handler) listenSignals(ctx context.Context, sig *signals) error {
	if sig.skippable {
		if _, err := h.registry.Add(ctx, dom.Document, dom.SignalSkip, dom.ListenerOptions{}, func(dom.Event) {
			sig.fireSkip()
		}); err != nil {
			return err
		}
	}
	_, err := h.registry.Add(ctx, dom.Document, dom.SignalCancel, dom.ListenerOptions{}, func(dom.Event) {
		sig.fireCancel()
	})
	return err
}

// aborted reports whether the step context has ended, through Cancel, a cancel signal or
// the caller. An aborted step stops where it is without reporting an error.
func (h *Handler) aborted(ctx context.Context, logger *zap.Logger, stage string) bool {
	if ctx.Err() == nil {
		return false
	}
	logger.Debug("Step aborted.", zap.String("stage", stage))
	return true
}

// settleSafely runs settle and turns a panic during cleanup into the cancelled outcome.
func (h *Handler) settleSafely(ctx context.Context, desc step.Descriptor, pos step.Position, outcome step.Outcome, logger *zap.Logger) (result step.Outcome) {
	result = outcome
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in step cleanup.",
				zap.Any("panic", r), zap.String("stack", string(debug.Stack())))
			h.reportError(logger, fmt.Errorf("step cleanup panicked: %v", r), "step cleanup", desc)
			result = step.Cancelled
			h.setState(logger, desc, step.StateError)
		}
	}()
	h.settle(ctx, desc, pos, outcome, logger)
	return result
}

// settle is the single cleanup path, run for every outcome.
func (h *Handler) settle(ctx context.Context, desc step.Descriptor, pos step.Position, outcome step.Outcome, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)

	h.feedback.drop()
	if n := h.registry.ReleaseAll(ctx); n > 0 {
		logger.Debug("Released step listeners.", zap.Int("count", n))
	}
	// A completed highlight stays up until the next one replaces it.
	if !outcome.Advances() || desc.Action == step.ActionNoop {
		h.highlight.Clear(ctx)
	}
	if outcome.Advances() {
		h.progress.Add(pos.Index)
	}
	h.setState(logger, desc, step.StateFor(outcome))
}

func (h *Handler) stepInfo(desc step.Descriptor, pos step.Position) *highlight.StepInfo {
	h.mu.Lock()
	labels := h.labels
	h.mu.Unlock()
	return &highlight.StepInfo{
		Position:  pos,
		Title:     desc.Title,
		Checklist: h.progress.Checklist(labels, pos.Total, pos.Index),
	}
}

func stepButtons(desc step.Descriptor) []dom.Button {
	var buttons []dom.Button
	if desc.Action == step.ActionHighlight {
		buttons = append(buttons, dom.Button{Label: "Continue", Signal: dom.SignalContinue})
	}
	if desc.Skippable {
		buttons = append(buttons, dom.Button{Label: "Skip", Signal: dom.SignalSkip})
	}
	return append(buttons, dom.Button{Label: "Cancel", Signal: dom.SignalCancel})
}

func (h *Handler) setCurrent(sig *signals) {
	h.mu.Lock()
	h.current = sig
	h.mu.Unlock()
}

// setState forwards to the sink. A misbehaving sink cannot break the step.
func (h *Handler) setState(logger *zap.Logger, desc step.Descriptor, state step.State) {
	if h.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("State sink panicked.", zap.Any("panic", r), zap.String("state", string(state)))
		}
	}()
	h.sink.SetState(desc, state)
}

func (h *Handler) reportError(logger *zap.Logger, err error, label string, desc step.Descriptor) {
	var nf *resolve.NotFoundError
	if errors.As(err, &nf) {
		logger.Warn("Step target not found.",
			zap.String("target", nf.Reference),
			zap.Int("attempts", nf.Attempts),
			zap.Duration("elapsed", nf.Elapsed))
	} else {
		logger.Error("Step failed.", zap.String("stage", label), zap.Error(err))
	}
	if h.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("State sink panicked while handling an error.", zap.Any("panic", r))
		}
	}()
	h.sink.HandleError(err, label, desc, false)
}
