package domtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/geometry"
)

func fixture() *Page {
	return NewPage().Add(
		Element{ID: "panel", Tag: "div", Classes: []string{"panel"}, Scrollable: true,
			Rect: geometry.Rect{X: 0, Y: 0, Width: 400, Height: 400}},
		Element{ID: "form", Tag: "form", Parent: "panel", Attrs: map[string]string{"data-testid": "signup"},
			Rect: geometry.Rect{X: 10, Y: 10, Width: 300, Height: 200}},
		Element{ID: "email", Tag: "input", InputType: "email", Parent: "form",
			Rect: geometry.Rect{X: 20, Y: 20, Width: 200, Height: 24}},
		Element{ID: "save", Tag: "button", Text: " Save changes ", Classes: []string{"btn", "primary"}, Parent: "form",
			Rect: geometry.Rect{X: 20, Y: 60, Width: 100, Height: 30}},
		Element{ID: "save-draft", Tag: "a", Text: "Save", Attrs: map[string]string{"role": "button"},
			Rect: geometry.Rect{X: 20, Y: 500, Width: 60, Height: 20}},
	)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	p := fixture()

	tests := []struct {
		selector string
		want     []dom.ElementID
	}{
		{"#save", []dom.ElementID{"save"}},
		{"button.btn.primary", []dom.ElementID{"save"}},
		{`[data-testid="signup"]`, []dom.ElementID{"form"}},
		{".panel input", []dom.ElementID{"email"}},
		{"input[type=email]", []dom.ElementID{"email"}},
		{"button, a", []dom.ElementID{"save", "save-draft"}},
		{"#nope", nil},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			got, err := p.Query(ctx, tt.selector)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := p.Query(ctx, "div > span")
	assert.ErrorIs(t, err, dom.ErrInvalidSelector)
}

func TestQueryText(t *testing.T) {
	ctx := context.Background()
	p := fixture()

	got, err := p.QueryText(ctx, "save")
	require.NoError(t, err)
	assert.Equal(t, []dom.ElementID{"save-draft"}, got, "exact matches win over substrings")

	got, err = p.QueryText(ctx, "changes")
	require.NoError(t, err)
	assert.Equal(t, []dom.ElementID{"save"}, got)
}

func TestInspectAndHover(t *testing.T) {
	ctx := context.Background()
	p := fixture()

	info, err := p.Inspect(ctx, "email")
	require.NoError(t, err)
	assert.True(t, info.FormControl)
	assert.True(t, info.Visible())
	assert.False(t, info.Hovered)

	p.Hover("email")
	info, _ = p.Inspect(ctx, "form")
	assert.True(t, info.Hovered, "ancestors of the hovered element are hovered")

	p.Detach("email")
	info, err = p.Inspect(ctx, "email")
	require.NoError(t, err)
	assert.False(t, info.Connected)
}

func TestScrollParentAndContains(t *testing.T) {
	ctx := context.Background()
	p := fixture()

	target, err := p.ScrollParent(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, dom.OnElement("panel"), target)

	target, err = p.ScrollParent(ctx, "save-draft")
	require.NoError(t, err)
	assert.Equal(t, dom.Document, target)

	ok, err := p.Contains(ctx, "form", "email")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = p.Contains(ctx, "form", "save-draft")
	assert.False(t, ok)
}

func TestClickDeliveryOrder(t *testing.T) {
	ctx := context.Background()
	p := fixture()

	var order []string
	_, err := p.Listen(ctx, dom.Document, dom.EventClick, dom.ListenerOptions{}, func(dom.Event) { order = append(order, "bubble") })
	require.NoError(t, err)
	_, err = p.Listen(ctx, dom.OnElement("form"), dom.EventClick, dom.ListenerOptions{}, func(dom.Event) { order = append(order, "form") })
	require.NoError(t, err)
	_, err = p.Listen(ctx, dom.Document, dom.EventClick, dom.ListenerOptions{Capture: true}, func(e dom.Event) {
		order = append(order, "capture")
		assert.Equal(t, dom.ElementID("save"), e.Target)
	})
	require.NoError(t, err)

	p.ClickOn("save")
	assert.Equal(t, []string{"capture", "form", "bubble"}, order)
}

func TestNodesAndSignals(t *testing.T) {
	ctx := context.Background()
	p := fixture()

	id, err := p.Mount(ctx, dom.NodeSpec{Kind: dom.NodeCallout, Rect: geometry.Rect{X: 5, Y: 5}})
	require.NoError(t, err)
	r, err := p.Measure(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, p.CalloutSize.Width, r.Width)

	require.NoError(t, p.Unmount(ctx, id))
	assert.Empty(t, p.Nodes())
	assert.ErrorIs(t, p.Unmount(ctx, id), dom.ErrDetached)

	var got []dom.EventType
	_, err = p.Listen(ctx, dom.Document, dom.SignalSkip, dom.ListenerOptions{}, func(e dom.Event) { got = append(got, e.Type) })
	require.NoError(t, err)
	require.NoError(t, p.Dispatch(ctx, dom.SignalSkip))
	require.NoError(t, p.Dispatch(ctx, dom.SignalCancel))
	assert.Equal(t, []dom.EventType{dom.SignalSkip}, got)
	assert.Equal(t, []dom.EventType{dom.SignalSkip, dom.SignalCancel}, p.Dispatched())
}

const signupFixture = `<!DOCTYPE html>
<html><body>
  <main id="app" data-scroll data-rect="0,0,800,600">
    <form data-testid="signup" data-rect="10,10,300,200">
      <label>Email <input id="email" type="email" value="a@b.c" data-rect="20,20,200,24"></label>
      <button class="btn primary" data-rect="20,60,100,30"><span>Sign</span> up</button>
      <input id="locked" disabled data-rect="20,100,200,24">
    </form>
  </main>
  <a role="button" style="display: none" data-rect="0,700,50,20">Sign up</a>
</body></html>`

func TestFromHTML(t *testing.T) {
	ctx := context.Background()
	p, err := FromHTML(signupFixture)
	require.NoError(t, err)

	// 1. Selectors run against the parsed tree, including ancestors the fixture never
	// named such as body.
	got, err := p.Query(ctx, `body [data-testid="signup"] button.primary`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	button := got[0]

	got, err = p.Query(ctx, "#app input")
	require.NoError(t, err)
	assert.Equal(t, []dom.ElementID{"email", "locked"}, got)

	// 2. Text matching reads the text nodes under the element; the hidden link is skipped.
	got, err = p.QueryText(ctx, "sign up")
	require.NoError(t, err)
	assert.Equal(t, []dom.ElementID{button}, got)

	// 3. Layout and form state come from attributes.
	info, err := p.Inspect(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, geometry.Rect{X: 20, Y: 20, Width: 200, Height: 24}, info.Rect)
	assert.Equal(t, "a@b.c", info.Value)
	assert.Equal(t, "email", info.InputType)
	assert.True(t, info.FormControl)

	target, err := p.ScrollParent(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, dom.OnElement("app"), target)
	assert.Error(t, p.Focus(ctx, "locked"))

	// 4. Detaching a container disconnects everything under it.
	p.Detach("app")
	info, err = p.Inspect(ctx, "email")
	require.NoError(t, err)
	assert.False(t, info.Connected)
	got, err = p.Query(ctx, "input")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotContains(t, p.HTML(), "signup")
}

func TestFromHTML_Errors(t *testing.T) {
	_, err := FromHTML(`<div data-rect="1,2,3"></div>`)
	assert.ErrorContains(t, err, "want x,y,w,h")

	_, err = FromHTML(`<p id="a"></p><p id="a"></p>`)
	assert.ErrorContains(t, err, `duplicate element id "a"`)
}

func TestAddReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	p := fixture()

	p.Add(Element{ID: "form", Tag: "section", Parent: "panel", Rect: geometry.Rect{X: 10, Y: 10, Width: 300, Height: 200}})

	got, err := p.Query(ctx, "section input")
	require.NoError(t, err)
	assert.Equal(t, []dom.ElementID{"email"}, got, "children move to the replacement")
	got, err = p.Query(ctx, "form")
	require.NoError(t, err)
	assert.Empty(t, got)
}
