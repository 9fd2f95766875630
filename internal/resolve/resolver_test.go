package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/dom/domtest"
	"github.com/xkilldash9x/stepwise/internal/geometry"
	"github.com/xkilldash9x/stepwise/internal/poll"
	"github.com/xkilldash9x/stepwise/internal/step"
)

var box = geometry.Rect{X: 10, Y: 10, Width: 100, Height: 30}

func fastOptions() Options {
	return Options{
		Policy:     poll.Policy{Interval: 20 * time.Millisecond, Timeout: 100 * time.Millisecond},
		Shorthands: map[string]string{"framework": `[data-testid="{value}"]`},
	}
}

func toolbar() *domtest.Page {
	return domtest.NewPage().Add(
		domtest.Element{ID: "save-btn", Tag: "button", Text: "Save", Rect: box},
		domtest.Element{ID: "cancel-btn", Tag: "button", Text: "Cancel", Rect: box,
			Attrs: map[string]string{"data-testid": "cancel"}},
		domtest.Element{ID: "field", Tag: "div", Classes: []string{"field"}, Rect: box},
		domtest.Element{ID: "name", Tag: "input", Parent: "field", Rect: box},
		domtest.Element{ID: "notes", Tag: "textarea", Rect: box},
		domtest.Element{ID: "next", Tag: "button", Text: "Next >", Rect: box},
	)
}

func TestResolve_Selector(t *testing.T) {
	r := New(toolbar(), zaptest.NewLogger(t), fastOptions())

	el, err := r.Resolve(context.Background(), "#save-btn", step.ActionClick)
	require.NoError(t, err)
	assert.Equal(t, dom.ElementID("save-btn"), el)
}

func TestResolve_Shorthand(t *testing.T) {
	r := New(toolbar(), zaptest.NewLogger(t), fastOptions())

	el, err := r.Resolve(context.Background(), "framework:cancel", step.ActionClick)
	require.NoError(t, err)
	assert.Equal(t, dom.ElementID("cancel-btn"), el)
}

func TestCandidates_TextFallback(t *testing.T) {
	r := New(toolbar(), zaptest.NewLogger(t), fastOptions())
	ctx := context.Background()

	t.Run("plain text goes straight to text matching", func(t *testing.T) {
		res, err := r.Candidates(ctx, "Cancel", step.ActionClick)
		require.NoError(t, err)
		assert.True(t, res.UsedFallback)
		assert.Equal(t, []dom.ElementID{"cancel-btn"}, res.Elements)
	})

	t.Run("unparseable selector falls back to text", func(t *testing.T) {
		res, err := r.Candidates(ctx, "Next >", step.ActionHover)
		require.NoError(t, err)
		assert.True(t, res.UsedFallback)
		assert.Equal(t, []dom.ElementID{"next"}, res.Elements)
	})

	t.Run("selector hit does not use the fallback", func(t *testing.T) {
		res, err := r.Candidates(ctx, "#cancel-btn", step.ActionHighlight)
		require.NoError(t, err)
		assert.False(t, res.UsedFallback)
	})

	t.Run("formfill never matches by text", func(t *testing.T) {
		res, err := r.Candidates(ctx, "#save-btn", step.ActionFormFill)
		require.NoError(t, err)
		assert.Empty(t, res.Elements)
	})
}

func TestCandidates_FormFillDescendsIntoContainer(t *testing.T) {
	r := New(toolbar(), zaptest.NewLogger(t), fastOptions())
	ctx := context.Background()

	res, err := r.Candidates(ctx, ".field", step.ActionFormFill)
	require.NoError(t, err)
	assert.Equal(t, []dom.ElementID{"name"}, res.Elements)

	res, err = r.Candidates(ctx, "textarea", step.ActionFormFill)
	require.NoError(t, err)
	assert.Equal(t, []dom.ElementID{"notes"}, res.Elements)
}

func TestResolve_RetriesUntilElementAppears(t *testing.T) {
	page := domtest.NewPage()
	opts := fastOptions()
	opts.Policy = poll.Policy{Interval: 50 * time.Millisecond, Timeout: 300 * time.Millisecond}
	r := New(page, zaptest.NewLogger(t), opts)

	// Scaled down from a 1.2s reveal with a 3s budget and 0.5s interval.
	timer := time.AfterFunc(120*time.Millisecond, func() {
		page.Add(domtest.Element{ID: "late", Tag: "button", Text: "Next", Rect: box})
	})
	defer timer.Stop()

	start := time.Now()
	el, err := r.Resolve(context.Background(), "Next", step.ActionClick)
	require.NoError(t, err)
	assert.Equal(t, dom.ElementID("late"), el)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestResolve_NotFound(t *testing.T) {
	r := New(toolbar(), zaptest.NewLogger(t), fastOptions())

	_, err := r.Resolve(context.Background(), "#missing", step.ActionClick)
	require.Error(t, err)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "#missing", nf.Reference)
	assert.GreaterOrEqual(t, nf.Attempts, 2)
	assert.GreaterOrEqual(t, nf.Elapsed, 100*time.Millisecond)
	assert.Contains(t, err.Error(), "not found")
}

func TestResolve_CancelledContext(t *testing.T) {
	r := New(toolbar(), zaptest.NewLogger(t), fastOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, "#missing", step.ActionClick)
	require.Error(t, err)
	var nf *NotFoundError
	assert.False(t, errors.As(err, &nf))
}

func TestResolve_MultipleMatchesWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := New(toolbar(), zap.New(core), fastOptions())

	el, err := r.Resolve(context.Background(), "button", step.ActionClick)
	require.NoError(t, err)
	assert.Equal(t, dom.ElementID("save-btn"), el, "first in document order")

	entries := logs.FilterMessageSnippet("multiple elements").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()["matches"])
}

func TestLooksLikeSelector(t *testing.T) {
	for ref, want := range map[string]bool{
		"#save":             true,
		".btn":              true,
		`[name="email"]`:    true,
		"nav > a":           true,
		"button":            true,
		"Save changes":      false,
		"Open the settings": false,
	} {
		assert.Equal(t, want, LooksLikeSelector(ref), ref)
	}
}
