package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/step"
)

// Metrics counts step transitions and times finished steps.
type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	errors      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	clock       *clock
}

// NewMetrics registers the step collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepwise_step_transitions_total",
				Help: "Step state transitions reported by the guide.",
			},
			[]string{"action", "state"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepwise_step_errors_total",
				Help: "Errors reported while executing steps, by pipeline stage.",
			},
			[]string{"stage"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepwise_step_duration_seconds",
				Help:    "Time from a step starting to its terminal state.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"action", "state"},
		),
		clock: newClock(),
	}
	m.registry.MustRegister(m.transitions, m.errors, m.duration)
	return m
}

// Registry exposes the collectors, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) SetState(desc step.Descriptor, state step.State) {
	action := string(desc.Action)
	m.transitions.WithLabelValues(action, string(state)).Inc()

	key := desc.Label()
	if state == step.StateRunning {
		m.clock.start(key)
		return
	}
	if d, ok := m.clock.stop(key); ok {
		m.duration.WithLabelValues(action, string(state)).Observe(d.Seconds())
	}
}

func (m *Metrics) HandleError(_ error, label string, _ step.Descriptor, _ bool) {
	m.errors.WithLabelValues(label).Inc()
}

// Handler returns the router serving /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts the server down gracefully.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening.", zap.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}
	logger.Info("Metrics server stopped.")
	return nil
}
