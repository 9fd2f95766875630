package geometry

// Side names where a callout sits relative to its target.
type Side string

const (
	SideRight  Side = "right"
	SideLeft   Side = "left"
	SideBottom Side = "bottom"
	SideTop    Side = "top"
)

// placementOrder is the order in which sides are tried.
var placementOrder = []Side{SideRight, SideLeft, SideBottom, SideTop}

// Placement is the outcome of PlaceCallout.
type Placement struct {
	Side Side
	Rect Rect
	// Fits is false when no side could hold the callout and the roomiest side was used.
	Fits bool
}

// PlaceCallout positions a callout of the measured size next to target. Sides are
// tried right, left, bottom, top; the first whose box stays fully inside the padded
// viewport wins. When none fits, the side with the most free space is used. The result
// is always clamped to the padded viewport.
func PlaceCallout(target Rect, callout Size, vp Viewport, gap, padding float64) Placement {
	for _, side := range placementOrder {
		r := calloutRect(side, target, callout, gap)
		if FullyInViewport(r, vp, padding) {
			return Placement{Side: side, Rect: r, Fits: true}
		}
	}

	side := roomiestSide(target, vp)
	return Placement{
		Side: side,
		Rect: clampRect(calloutRect(side, target, callout, gap), vp, padding),
	}
}

// calloutRect places the callout on the given side, centred along the other axis.
func calloutRect(side Side, target Rect, callout Size, gap float64) Rect {
	c := target.Center()
	switch side {
	case SideRight:
		return Rect{X: target.Right() + gap, Y: c.Y - callout.Height/2, Width: callout.Width, Height: callout.Height}
	case SideLeft:
		return Rect{X: target.X - gap - callout.Width, Y: c.Y - callout.Height/2, Width: callout.Width, Height: callout.Height}
	case SideBottom:
		return Rect{X: c.X - callout.Width/2, Y: target.Bottom() + gap, Width: callout.Width, Height: callout.Height}
	default:
		return Rect{X: c.X - callout.Width/2, Y: target.Y - gap - callout.Height, Width: callout.Width, Height: callout.Height}
	}
}

func roomiestSide(target Rect, vp Viewport) Side {
	space := map[Side]float64{
		SideRight:  vp.Width - target.Right(),
		SideLeft:   target.X,
		SideBottom: vp.Height - target.Bottom(),
		SideTop:    target.Y,
	}
	best := SideRight
	for _, side := range placementOrder {
		if space[side] > space[best] {
			best = side
		}
	}
	return best
}

func clampRect(r Rect, vp Viewport, padding float64) Rect {
	r.X = Clamp(r.X, padding, vp.Width-padding-r.Width)
	r.Y = Clamp(r.Y, padding, vp.Height-padding-r.Height)
	return r
}

// CenterIn returns a box of the given size centred in the viewport.
func CenterIn(size Size, vp Viewport) Rect {
	return Rect{
		X:      (vp.Width - size.Width) / 2,
		Y:      (vp.Height - size.Height) / 2,
		Width:  size.Width,
		Height: size.Height,
	}
}
