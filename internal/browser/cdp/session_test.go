package cdp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/dom"
)

// newPumpSession builds a Session with no browser behind it, enough to exercise event
// delivery.
func newPumpSession(logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		events:   newQueue(),
		handlers: make(map[dom.ListenerID]dom.Handler),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

func TestPump_DeliversInOrder(t *testing.T) {
	s := newPumpSession(zaptest.NewLogger(t))

	var mu sync.Mutex
	var got []string
	s.handlers["a"] = func(ev dom.Event) {
		mu.Lock()
		got = append(got, ev.Value)
		mu.Unlock()
	}
	go s.pump()

	for i := 0; i < 50; i++ {
		s.events.push(fmt.Sprintf(`{"type":"input","listener":"a","value":"%d"}`, i))
	}
	require.NoError(t, s.Close())

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, fmt.Sprint(i), v)
	}
}

func TestPump_SurvivesBadEventsAndPanics(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := newPumpSession(zap.New(core))

	delivered := make(chan dom.Event, 1)
	s.handlers["boom"] = func(dom.Event) { panic("handler exploded") }
	s.handlers["ok"] = func(ev dom.Event) { delivered <- ev }
	go s.pump()

	s.events.push(`garbage`)
	s.events.push(`{"type":"click","listener":"boom"}`)
	s.events.push(`{"type":"click","listener":"removed"}`)
	s.events.push(`{"type":"click","listener":"ok","target":"e1"}`)

	select {
	case ev := <-delivered:
		assert.Equal(t, dom.ElementID("e1"), ev.Target)
	case <-time.After(2 * time.Second):
		t.Fatal("event after a panicking handler was not delivered")
	}
	require.NoError(t, s.Close())

	assert.Equal(t, 1, logs.FilterMessage("Dropped malformed page event.").Len())
	assert.Equal(t, 1, logs.FilterMessage("Panic in page event handler.").Len())
}

func TestOnTargetEvent_DetachClosesSession(t *testing.T) {
	s := newPumpSession(zaptest.NewLogger(t))
	go s.pump()

	s.onTargetEvent(&inspector.EventDetached{Reason: "target_closed"})
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close after detach")
	}
	require.NoError(t, s.Close())
	assert.Error(t, s.ctx.Err())
}

func TestUnlisten_UnknownListener(t *testing.T) {
	s := newPumpSession(zaptest.NewLogger(t))
	defer s.cancel()
	assert.ErrorContains(t, s.Unlisten(context.Background(), "nope"), "unknown listener")
}

// -- Browser integration --

const fixtureHTML = `<!doctype html>
<html><body style="margin:0">
<button id="save" style="position:absolute;left:100px;top:100px;width:80px;height:30px">Save</button>
<div id="box"><input id="email" value="a@b.c"></div>
</body></html>`

func browserSession(t *testing.T) (*Session, string) {
	t.Helper()
	if testing.Short() || os.Getenv("STEPWISE_BROWSER_TESTS") == "" {
		t.Skip("set STEPWISE_BROWSER_TESTS=1 to run tests against a local Chrome")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(fixtureHTML))
	}))
	t.Cleanup(srv.Close)

	cfg := config.NewDefaultConfig().Browser()
	cfg.Headless = true
	allocCtx, cancel := NewAllocator(context.Background(), cfg)
	t.Cleanup(cancel)

	s, err := Open(allocCtx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, srv.URL
}

func TestSession_Browser(t *testing.T) {
	s, url := browserSession(t)
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, url))

	// 1. Queries and inspection.
	ids, err := s.Query(ctx, "#save")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	info, err := s.Inspect(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "button", info.Tag)
	assert.True(t, info.Visible())
	assert.InDelta(t, 100, info.Rect.X, 0.5)

	byText, err := s.QueryText(ctx, "save")
	require.NoError(t, err)
	assert.Equal(t, ids, byText)

	_, err = s.Query(ctx, "button >>> nope")
	assert.ErrorIs(t, err, dom.ErrInvalidSelector)

	// 2. Listeners see programmatic clicks through the binding.
	clicks := make(chan dom.Event, 1)
	lid, err := s.Listen(ctx, dom.Document, dom.EventClick, dom.ListenerOptions{Capture: true}, func(ev dom.Event) { clicks <- ev })
	require.NoError(t, err)
	require.NoError(t, s.Click(ctx, ids[0]))
	select {
	case ev := <-clicks:
		assert.Equal(t, ids[0], ev.Target)
	case <-time.After(5 * time.Second):
		t.Fatal("click event never arrived")
	}
	require.NoError(t, s.Unlisten(ctx, lid))

	// 3. Overlay nodes.
	node, err := s.Mount(ctx, dom.NodeSpec{Kind: dom.NodeCallout, Text: "Click save"})
	require.NoError(t, err)
	r, err := s.Measure(ctx, node)
	require.NoError(t, err)
	assert.Greater(t, r.Width, 0.0)
	require.NoError(t, s.Unmount(ctx, node))
	assert.ErrorIs(t, s.Unmount(ctx, node), dom.ErrDetached)
}
