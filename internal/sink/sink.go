// Package sink provides implementations of guide.StateSink: a structured log sink, a
// Prometheus sink and a fan-out that feeds several sinks at once.
package sink

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/guide"
	"github.com/xkilldash9x/stepwise/internal/step"
)

var (
	_ guide.StateSink = (*Log)(nil)
	_ guide.StateSink = (*Metrics)(nil)
	_ guide.StateSink = Multi(nil)
)

// Log writes every transition to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a sink logging under the "sink" name.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("sink")}
}

func (l *Log) SetState(desc step.Descriptor, state step.State) {
	l.logger.Info("Step state changed.",
		zap.String("step", desc.Label()),
		zap.String("action", string(desc.Action)),
		zap.String("state", string(state)))
}

func (l *Log) HandleError(err error, label string, desc step.Descriptor, rethrow bool) {
	l.logger.Error("Step reported an error.",
		zap.String("step", desc.Label()),
		zap.String("stage", label),
		zap.Bool("rethrow", rethrow),
		zap.Error(err))
}

// Multi forwards every call to each sink in order.
type Multi []guide.StateSink

func (m Multi) SetState(desc step.Descriptor, state step.State) {
	for _, s := range m {
		s.SetState(desc, state)
	}
}

func (m Multi) HandleError(err error, label string, desc step.Descriptor, rethrow bool) {
	for _, s := range m {
		s.HandleError(err, label, desc, rethrow)
	}
}

// clock tracks when each running step started so the metrics sink can time it.
type clock struct {
	mu      sync.Mutex
	now     func() time.Time
	started map[string]time.Time
}

func newClock() *clock {
	return &clock{now: time.Now, started: make(map[string]time.Time)}
}

func (c *clock) start(key string) {
	c.mu.Lock()
	c.started[key] = c.now()
	c.mu.Unlock()
}

// stop returns the time since start and forgets the key. ok is false for unknown keys.
func (c *clock) stop(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.started[key]
	if !ok {
		return 0, false
	}
	delete(c.started, key)
	return c.now().Sub(t), true
}
