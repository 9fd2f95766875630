package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRect(t *testing.T) {
	r := Rect{X: 10, Y: 20, Width: 100, Height: 40}

	assert.Equal(t, 110.0, r.Right())
	assert.Equal(t, 60.0, r.Bottom())
	assert.Equal(t, Point{X: 60, Y: 40}, r.Center())
	assert.False(t, r.Empty())
	assert.True(t, Rect{Width: 0, Height: 5}.Empty())

	grown := r.Expand(10)
	assert.Equal(t, Rect{X: 0, Y: 10, Width: 120, Height: 60}, grown)

	assert.True(t, r.Contains(Point{X: 10, Y: 20}), "edges are inside")
	assert.False(t, r.Contains(Point{X: 5, Y: 30}))
	assert.True(t, grown.Contains(Point{X: 5, Y: 30}), "margin catches near misses")
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 5.0, Distance(Point{0, 0}, Point{3, 4}), 1e-9)
	assert.Equal(t, 0.0, Distance(Point{7, 7}, Point{7, 7}))
}

func TestIsPhantom(t *testing.T) {
	vp := Viewport{Width: 800, Height: 600}

	assert.True(t, IsPhantom(Rect{}, vp), "zero box at origin is not really there")
	assert.False(t, IsPhantom(Rect{}, Viewport{Width: 800, Height: 600, ScrollY: 200}),
		"a scrolled document can legitimately place a box at the origin")
	assert.False(t, IsPhantom(Rect{X: 40, Y: 40}, vp), "collapsed element away from origin is positioned")
	assert.False(t, IsPhantom(Rect{Width: 1, Height: 1}, vp))
}

func TestIsVisible(t *testing.T) {
	box := Rect{X: 1, Y: 1, Width: 10, Height: 10}
	shown := Style{Display: "block", Visibility: "visible", Opacity: 1}

	assert.True(t, IsVisible(box, shown))
	assert.False(t, IsVisible(Rect{}, shown))
	assert.False(t, IsVisible(box, Style{Display: "none", Visibility: "visible", Opacity: 1}))
	assert.False(t, IsVisible(box, Style{Display: "block", Visibility: "hidden", Opacity: 1}))
	assert.False(t, IsVisible(box, Style{Display: "block", Visibility: "visible", Opacity: 0}))
}

func TestInViewport(t *testing.T) {
	vp := Viewport{Width: 800, Height: 600}

	assert.True(t, InViewport(Rect{X: 10, Y: 10, Width: 10, Height: 10}, vp))
	assert.True(t, InViewport(Rect{X: -5, Y: 10, Width: 10, Height: 10}, vp), "partially visible")
	assert.False(t, InViewport(Rect{X: 900, Y: 10, Width: 10, Height: 10}, vp))
	assert.False(t, InViewport(Rect{X: 10, Y: -50, Width: 10, Height: 10}, vp))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, Clamp(1, 5, 10))
	assert.Equal(t, 10.0, Clamp(20, 5, 10))
	assert.Equal(t, 7.0, Clamp(7, 5, 10))
	assert.Equal(t, 5.0, Clamp(7, 5, 2), "inverted range favours the lower bound")
}

func TestPlaceCallout(t *testing.T) {
	vp := Viewport{Width: 1000, Height: 800}
	callout := Size{Width: 200, Height: 100}
	const gap, pad = 10.0, 12.0

	t.Run("prefers the right side", func(t *testing.T) {
		target := Rect{X: 100, Y: 300, Width: 50, Height: 50}
		p := PlaceCallout(target, callout, vp, gap, pad)
		assert.Equal(t, SideRight, p.Side)
		assert.True(t, p.Fits)
		assert.Equal(t, 160.0, p.Rect.X)
		assert.Equal(t, 275.0, p.Rect.Y)
	})

	t.Run("falls back to the left near the right edge", func(t *testing.T) {
		target := Rect{X: 900, Y: 300, Width: 50, Height: 50}
		p := PlaceCallout(target, callout, vp, gap, pad)
		assert.Equal(t, SideLeft, p.Side)
		assert.True(t, p.Fits)
	})

	t.Run("uses bottom for full width targets", func(t *testing.T) {
		target := Rect{X: 0, Y: 100, Width: 1000, Height: 40}
		p := PlaceCallout(target, callout, vp, gap, pad)
		assert.Equal(t, SideBottom, p.Side)
	})

	t.Run("uses top when only top has room", func(t *testing.T) {
		target := Rect{X: 0, Y: 600, Width: 1000, Height: 150}
		p := PlaceCallout(target, callout, vp, gap, pad)
		assert.Equal(t, SideTop, p.Side)
	})

	t.Run("measured height matters", func(t *testing.T) {
		// Tall callout cannot sit beside a target near the top edge.
		target := Rect{X: 100, Y: 20, Width: 50, Height: 20}
		p := PlaceCallout(target, Size{Width: 200, Height: 300}, vp, gap, pad)
		assert.Equal(t, SideBottom, p.Side)
	})

	t.Run("nothing fits so roomiest side is clamped", func(t *testing.T) {
		small := Viewport{Width: 300, Height: 200}
		target := Rect{X: 20, Y: 20, Width: 200, Height: 150}
		p := PlaceCallout(target, Size{Width: 250, Height: 150}, small, gap, pad)
		assert.False(t, p.Fits)
		assert.GreaterOrEqual(t, p.Rect.X, pad)
		assert.GreaterOrEqual(t, p.Rect.Y, pad)
	})
}

func TestCenterIn(t *testing.T) {
	r := CenterIn(Size{Width: 400, Height: 200}, Viewport{Width: 1000, Height: 800})
	assert.Equal(t, Rect{X: 300, Y: 300, Width: 400, Height: 200}, r)
}
