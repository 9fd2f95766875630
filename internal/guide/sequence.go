package guide

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/step"
)

// Summary describes a finished sequence run.
type Summary struct {
	Outcomes []step.Outcome
	// Completed lists the indices that completed or were skipped, in order.
	Completed []int
	// Stopped is true when a step ended the run early.
	Stopped  bool
	Duration time.Duration
}

// Finished reports whether every step advanced.
func (s Summary) Finished(total int) bool {
	return !s.Stopped && len(s.Completed) == total
}

// RunSequence executes steps in order. The run stops at the first step that times out or
// is cancelled, leaving the caller free to retry from there.
func (h *Handler) RunSequence(ctx context.Context, steps []step.Descriptor) Summary {
	labels := make([]string, len(steps))
	for i, d := range steps {
		labels[i] = d.Title
	}
	h.Begin(labels)

	start := time.Now()
	var sum Summary
	for i, desc := range steps {
		if ctx.Err() != nil {
			sum.Stopped = true
			break
		}
		o := h.Execute(ctx, desc, step.Position{Index: i, Total: len(steps)})
		sum.Outcomes = append(sum.Outcomes, o)
		if !o.Advances() {
			sum.Stopped = true
			break
		}
	}
	sum.Completed = h.progress.Indices()
	sum.Duration = time.Since(start)

	h.logger.Info("Sequence finished.",
		zap.Int("steps", len(steps)),
		zap.Int("advanced", len(sum.Completed)),
		zap.Bool("stopped", sum.Stopped),
		zap.Duration("duration", sum.Duration))
	return sum
}
