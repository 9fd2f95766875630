package sink

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/stepwise/internal/step"
)

var saveStep = step.Descriptor{ID: "save", Action: step.ActionClick, Target: "#save"}

func TestLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewLog(zap.New(core))

	s.SetState(saveStep, step.StateRunning)
	s.HandleError(errors.New("boom"), "resolve target", saveStep, false)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Step state changed.", entries[0].Message)
	assert.Equal(t, "running", entries[0].ContextMap()["state"])
	assert.Equal(t, "save", entries[0].ContextMap()["step"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "resolve target", entries[1].ContextMap()["stage"])
	assert.Equal(t, "sink", entries[1].LoggerName)
}

type recording struct {
	states []step.State
	errs   []string
}

func (r *recording) SetState(_ step.Descriptor, s step.State) { r.states = append(r.states, s) }
func (r *recording) HandleError(_ error, label string, _ step.Descriptor, _ bool) {
	r.errs = append(r.errs, label)
}

func TestMulti(t *testing.T) {
	a, b := &recording{}, &recording{}
	m := Multi{a, b}

	m.SetState(saveStep, step.StateRunning)
	m.SetState(saveStep, step.StateCompleted)
	m.HandleError(errors.New("x"), "arm detector", saveStep, false)

	for _, r := range []*recording{a, b} {
		assert.Equal(t, []step.State{step.StateRunning, step.StateCompleted}, r.states)
		assert.Equal(t, []string{"arm detector"}, r.errs)
	}
}

func TestMetrics_CountsAndTimes(t *testing.T) {
	m := NewMetrics()
	now := time.Unix(0, 0)
	m.clock.now = func() time.Time { return now }

	m.SetState(saveStep, step.StateRunning)
	now = now.Add(3 * time.Second)
	m.SetState(saveStep, step.StateCompleted)
	m.HandleError(errors.New("x"), "resolve target", saveStep, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("click", "running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("click", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("resolve target")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))

	// A terminal state without a matching start is counted but not timed.
	m.SetState(step.Descriptor{ID: "other", Action: step.ActionClick}, step.StateError)
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration, "stepwise_step_duration_seconds"))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.SetState(saveStep, step.StateRunning)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `stepwise_step_transitions_total{action="click",state="running"} 1`)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestMetrics_ServeStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	m := NewMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, addr, zaptest.NewLogger(t)) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestMetrics_ServeReportsListenFailure(t *testing.T) {
	err := NewMetrics().Serve(context.Background(), "not-an-address", zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "metrics server failed"))
}
