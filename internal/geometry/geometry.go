// Package geometry answers the pure questions the guided step engine asks about
// elements on screen: where a box is, whether it is really there, whether it sits
// inside the viewport and where an instructional callout fits next to it.
//
// All coordinates are CSS pixels relative to the viewport (as returned by
// getBoundingClientRect), not the document.
package geometry

import "math"

// Point is a position in viewport coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned box in viewport coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Center returns the midpoint of the box.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Empty reports whether the box has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Expand grows the box by margin on every side.
func (r Rect) Expand(margin float64) Rect {
	return Rect{
		X:      r.X - margin,
		Y:      r.Y - margin,
		Width:  r.Width + 2*margin,
		Height: r.Height + 2*margin,
	}
}

// Contains reports whether p lies inside the box, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// Viewport describes the visible window and how far the document is scrolled.
type Viewport struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
}

// Bounds returns the viewport as a rect anchored at the origin.
func (v Viewport) Bounds() Rect {
	return Rect{Width: v.Width, Height: v.Height}
}

// Scrolled reports whether the document has any scroll offset.
func (v Viewport) Scrolled() bool {
	return v.ScrollX != 0 || v.ScrollY != 0
}

// InViewport reports whether any part of r is visible in v.
func InViewport(r Rect, v Viewport) bool {
	if r.Empty() {
		return false
	}
	return r.Right() > 0 && r.Bottom() > 0 && r.X < v.Width && r.Y < v.Height
}

// FullyInViewport reports whether r lies within v shrunk by padding.
func FullyInViewport(r Rect, v Viewport, padding float64) bool {
	return r.X >= padding && r.Y >= padding &&
		r.Right() <= v.Width-padding && r.Bottom() <= v.Height-padding
}

// IsPhantom reports whether a box describes an element that is not really laid out:
// zero size, sitting exactly at the origin, with the document unscrolled. Highlighting
// such a box would draw a misleading marker in the top-left corner.
func IsPhantom(r Rect, v Viewport) bool {
	return r.Width == 0 && r.Height == 0 && r.X == 0 && r.Y == 0 && !v.Scrolled()
}

// Style carries the computed-style properties that decide visibility.
type Style struct {
	Display    string  `json:"display"`
	Visibility string  `json:"visibility"`
	Opacity    float64 `json:"opacity"`
}

// IsVisible decides whether an element with the given box and computed style can be
// seen by the user.
func IsVisible(r Rect, s Style) bool {
	if r.Empty() {
		return false
	}
	if s.Display == "none" || s.Visibility == "hidden" || s.Visibility == "collapse" {
		return false
	}
	return s.Opacity > 0
}

// Clamp constrains v to [lo, hi]. When the range is inverted lo wins.
func Clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
