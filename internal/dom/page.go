// Package dom defines the narrow view of a live web page that the guided step engine
// works against, together with the registry that tracks every event listener the
// engine attaches to it.
//
// Elements are referred to by opaque handles (ElementID) handed out by the page. The
// engine never owns an element; it only observes whether the handle is still
// connected to the document.
package dom

import (
	"context"
	"errors"

	"github.com/xkilldash9x/stepwise/internal/geometry"
)

// ElementID is an opaque handle for a page element.
type ElementID string

// NodeID is an opaque handle for an overlay node mounted by the engine.
type NodeID string

// ListenerID identifies one attached event listener.
type ListenerID string

var (
	// ErrDetached is returned when a handle no longer refers to a live element or node.
	ErrDetached = errors.New("element is detached from the document")
	// ErrInvalidSelector is returned when the page rejects a selector's syntax.
	ErrInvalidSelector = errors.New("invalid selector")
)

// TargetKind selects what an event listener is attached to.
type TargetKind string

const (
	TargetElement  TargetKind = "element"
	TargetDocument TargetKind = "document"
	TargetWindow   TargetKind = "window"
)

// Target is the object a listener is attached to.
type Target struct {
	Kind    TargetKind `json:"kind"`
	Element ElementID  `json:"element,omitempty"`
}

var (
	Document = Target{Kind: TargetDocument}
	Window   = Target{Kind: TargetWindow}
)

// OnElement targets a single element.
func OnElement(id ElementID) Target {
	return Target{Kind: TargetElement, Element: id}
}

// EventType names a DOM event or one of the engine's own signal events.
type EventType string

const (
	EventMouseEnter EventType = "mouseenter"
	EventMouseLeave EventType = "mouseleave"
	EventClick      EventType = "click"
	EventInput      EventType = "input"
	EventChange     EventType = "change"
	EventScroll     EventType = "scroll"
	// EventResize is the window resize event.
	EventResize EventType = "resize"
	// EventElementResize is delivered by a resize observer on an element target.
	EventElementResize EventType = "elementresize"

	// Signal events dispatched on the document by the engine's own overlay buttons.
	SignalSkip     EventType = "step-skipped"
	SignalCancel   EventType = "step-cancelled"
	SignalContinue EventType = "step-continue"
	SignalDismiss  EventType = "highlight-dismissed"
)

// ListenerOptions mirrors the addEventListener options the engine uses.
type ListenerOptions struct {
	Capture bool `json:"capture,omitempty"`
	Passive bool `json:"passive,omitempty"`
}

// Event is the engine-side view of a delivered page event.
type Event struct {
	Type     EventType  `json:"type"`
	Listener ListenerID `json:"listener"`
	// Target is the element the event was dispatched to, when it has a handle.
	Target ElementID `json:"target,omitempty"`
	// X and Y are client coordinates for pointer events.
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
	Value string  `json:"value,omitempty"`
}

// Handler receives events for one listener. Pages deliver events for a page in order,
// one at a time, and never while holding page-internal locks.
type Handler func(Event)

// ElementInfo is a point-in-time snapshot of an element.
type ElementInfo struct {
	ID        ElementID      `json:"id"`
	Tag       string         `json:"tag"`
	InputType string         `json:"inputType,omitempty"`
	Text      string         `json:"text,omitempty"`
	Connected bool           `json:"connected"`
	Rect      geometry.Rect  `json:"rect"`
	Style     geometry.Style `json:"style"`
	Hovered   bool           `json:"hovered"`
	Value     string         `json:"value,omitempty"`
	// FormControl is true for input, textarea and select elements.
	FormControl bool `json:"formControl"`
}

// Visible reports whether the user can currently see the element.
func (i ElementInfo) Visible() bool {
	return i.Connected && geometry.IsVisible(i.Rect, i.Style)
}

// NodeKind is the kind of overlay node the engine renders.
type NodeKind string

const (
	NodeOutline NodeKind = "outline"
	NodeDot     NodeKind = "dot"
	NodeCallout NodeKind = "callout"
	NodeCard    NodeKind = "card"
)

// Button is an overlay button that dispatches a signal event when pressed.
type Button struct {
	Label  string    `json:"label"`
	Signal EventType `json:"signal"`
}

// ChecklistItem is one row of the step checklist rendered in cards and callouts.
type ChecklistItem struct {
	Label   string `json:"label"`
	Done    bool   `json:"done,omitempty"`
	Current bool   `json:"current,omitempty"`
}

// NodeSpec describes an overlay node completely; updates replace the whole spec.
type NodeSpec struct {
	Kind      NodeKind        `json:"kind"`
	Rect      geometry.Rect   `json:"rect"`
	Title     string          `json:"title,omitempty"`
	Text      string          `json:"text,omitempty"`
	Progress  string          `json:"progress,omitempty"`
	Hint      string          `json:"hint,omitempty"`
	Valid     bool            `json:"valid,omitempty"`
	Buttons   []Button        `json:"buttons,omitempty"`
	Checklist []ChecklistItem `json:"checklist,omitempty"`
}

// Page is the live document the engine guides the user through.
type Page interface {
	// Query returns the elements matching a CSS selector in document order.
	Query(ctx context.Context, selector string) ([]ElementID, error)
	// QueryWithin returns descendants of container matching selector in document order.
	QueryWithin(ctx context.Context, container ElementID, selector string) ([]ElementID, error)
	// QueryText returns visible button-like elements whose text matches, exact
	// (case-insensitive) matches first, substring matches only when there is none.
	QueryText(ctx context.Context, text string) ([]ElementID, error)
	Inspect(ctx context.Context, el ElementID) (ElementInfo, error)
	// ScrollParent returns the nearest scrollable ancestor, or Document.
	ScrollParent(ctx context.Context, el ElementID) (Target, error)
	// Contains reports whether node is ancestor or a descendant of it.
	Contains(ctx context.Context, ancestor, node ElementID) (bool, error)
	Viewport(ctx context.Context) (geometry.Viewport, error)

	Listen(ctx context.Context, target Target, typ EventType, opts ListenerOptions, h Handler) (ListenerID, error)
	Unlisten(ctx context.Context, id ListenerID) error

	Mount(ctx context.Context, spec NodeSpec) (NodeID, error)
	Update(ctx context.Context, id NodeID, spec NodeSpec) error
	// Measure returns the rendered box of a mounted node.
	Measure(ctx context.Context, id NodeID) (geometry.Rect, error)
	Unmount(ctx context.Context, id NodeID) error
	// SetActive toggles the "active" styling class on an element.
	SetActive(ctx context.Context, el ElementID, active bool) error
	// ClearActive strips the "active" styling class from every element.
	ClearActive(ctx context.Context) error

	Focus(ctx context.Context, el ElementID) error
	// Click programmatically clicks the element.
	Click(ctx context.Context, el ElementID) error
	// Dispatch fires a signal event on the document.
	Dispatch(ctx context.Context, signal EventType) error
}
