// Package domtest provides an in-memory dom.Page for exercising the guided step engine
// without a browser. The document is an x/net/html node tree built either from Element
// literals or from an HTML fixture; layout (boxes, computed style) rides alongside each
// node. Tests drive it with Hover, ClickAt, Type, Scroll and friends; every attached
// listener and mounted overlay node is observable.
package domtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/geometry"
)

// Element is one node of the fake document.
type Element struct {
	ID        dom.ElementID
	Tag       string
	InputType string
	Classes   []string
	Attrs     map[string]string
	Text      string
	Value     string
	Rect      geometry.Rect
	// Style defaults to a fully visible block when left zero.
	Style geometry.Style
	// Parent must already be on the page; an unknown parent means the body.
	Parent dom.ElementID
	// Scrollable marks the element as a scroll container.
	Scrollable bool
	// Unfocusable makes Focus fail, as it would for a disabled control.
	Unfocusable bool

	node   *html.Node
	active bool
}

// Node is an overlay node mounted by the engine.
type Node struct {
	ID   dom.NodeID
	Spec dom.NodeSpec
}

type listener struct {
	id      dom.ListenerID
	target  dom.Target
	typ     dom.EventType
	opts    dom.ListenerOptions
	handler dom.Handler
}

// Page is a goroutine-safe in-memory dom.Page.
type Page struct {
	mu sync.Mutex

	doc      *html.Node
	body     *html.Node
	elements map[dom.ElementID]*Element
	handles  map[*html.Node]dom.ElementID
	viewport geometry.Viewport

	listeners map[dom.ListenerID]*listener
	lorder    []dom.ListenerID
	nodes     map[dom.NodeID]*Node
	norder    []dom.NodeID
	seq       int

	hovered dom.ElementID
	focused dom.ElementID

	clicks     []dom.ElementID
	dispatched []dom.EventType
	mountLog   []dom.NodeKind
	unmountLog []dom.NodeKind

	// CalloutSize is what Measure reports for callout and card nodes.
	CalloutSize geometry.Size
	// OnMount, when set, runs after every Mount with the lock released.
	OnMount func(Node)
}

var _ dom.Page = (*Page)(nil)

const emptyDocument = "<!DOCTYPE html><html><head></head><body></body></html>"

// NewPage returns an empty page with an unscrolled 1280x800 viewport.
func NewPage() *Page {
	p := &Page{
		elements:    make(map[dom.ElementID]*Element),
		handles:     make(map[*html.Node]dom.ElementID),
		listeners:   make(map[dom.ListenerID]*listener),
		nodes:       make(map[dom.NodeID]*Node),
		viewport:    geometry.Viewport{Width: 1280, Height: 800},
		CalloutSize: geometry.Size{Width: 240, Height: 120},
	}
	doc, err := html.Parse(strings.NewReader(emptyDocument))
	if err != nil {
		panic(fmt.Sprintf("domtest: parse empty document: %v", err))
	}
	p.setDocument(doc)
	return p
}

// FromHTML builds a page from an HTML fixture. Every element inside the body gets a
// handle: its id attribute, or "e<n>" in document order. Layout comes from attributes:
// data-rect="x,y,w,h", data-scroll marks a scroll container, and an inline style may set
// display, visibility and opacity. A disabled attribute makes the element unfocusable.
func FromHTML(src string) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	p := NewPage()
	p.setDocument(doc)
	if p.body == nil {
		return nil, fmt.Errorf("fixture has no body")
	}

	n := 0
	var walk func(*html.Node) error
	walk = func(node *html.Node) error {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			n++
			e, err := elementFromNode(c, n)
			if err != nil {
				return err
			}
			if _, dup := p.elements[e.ID]; dup {
				return fmt.Errorf("duplicate element id %q", e.ID)
			}
			e.Parent = p.handles[c.Parent]
			p.elements[e.ID] = e
			p.handles[c] = e.ID
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(p.body); err != nil {
		return nil, err
	}
	return p, nil
}

// MustFromHTML is FromHTML for fixtures known to be valid.
func MustFromHTML(src string) *Page {
	p, err := FromHTML(src)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Page) setDocument(doc *html.Node) {
	p.doc = doc
	p.body = findElement(doc, atom.Body)
}

func elementFromNode(node *html.Node, n int) (*Element, error) {
	e := &Element{
		Tag:   node.Data,
		Style: geometry.Style{Display: "block", Visibility: "visible", Opacity: 1},
		Text:  textContent(node),
		node:  node,
	}
	e.ID = dom.ElementID("e" + strconv.Itoa(n))
	for _, a := range node.Attr {
		switch a.Key {
		case "id":
			e.ID = dom.ElementID(a.Val)
		case "class":
			e.Classes = strings.Fields(a.Val)
		case "type":
			e.InputType = a.Val
		case "value":
			e.Value = a.Val
		case "data-scroll":
			e.Scrollable = true
		case "disabled":
			e.Unfocusable = true
		case "data-rect":
			r, err := parseRect(a.Val)
			if err != nil {
				return nil, fmt.Errorf("element %d (%s): %w", n, node.Data, err)
			}
			e.Rect = r
		case "style":
			applyInlineStyle(&e.Style, a.Val)
		}
	}
	return e, nil
}

func parseRect(v string) (geometry.Rect, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return geometry.Rect{}, fmt.Errorf("data-rect %q: want x,y,w,h", v)
	}
	var f [4]float64
	for i, part := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return geometry.Rect{}, fmt.Errorf("data-rect %q: %w", v, err)
		}
		f[i] = x
	}
	return geometry.Rect{X: f[0], Y: f[1], Width: f[2], Height: f[3]}, nil
}

func applyInlineStyle(s *geometry.Style, decl string) {
	for _, d := range strings.Split(decl, ";") {
		name, value, ok := strings.Cut(d, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "display":
			s.Display = value
		case "visibility":
			s.Visibility = value
		case "opacity":
			if o, err := strconv.ParseFloat(value, 64); err == nil {
				s.Opacity = o
			}
		}
	}
}

// Add inserts elements in document order. Elements with no style are fully visible.
// Adding an ID that already exists replaces that element in place.
func (p *Page) Add(elements ...Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range elements {
		e := elements[i]
		if e.Style == (geometry.Style{}) {
			e.Style = geometry.Style{Display: "block", Visibility: "visible", Opacity: 1}
		}
		e.Tag = strings.ToLower(e.Tag)
		e.node = buildNode(&e)

		if old, exists := p.elements[e.ID]; exists {
			replaceNode(old.node, e.node)
			delete(p.handles, old.node)
		} else {
			parent := p.body
			if pe, ok := p.elements[e.Parent]; ok {
				parent = pe.node
			}
			parent.AppendChild(e.node)
		}
		p.handles[e.node] = e.ID
		p.elements[e.ID] = &e
	}
	return p
}

// buildNode renders an Element literal as an html element node.
func buildNode(e *Element) *html.Node {
	node := &html.Node{Type: html.ElementNode, Data: e.Tag, DataAtom: atom.Lookup([]byte(e.Tag))}
	if _, ok := e.Attrs["id"]; !ok {
		node.Attr = append(node.Attr, html.Attribute{Key: "id", Val: string(e.ID)})
	}
	if len(e.Classes) > 0 {
		node.Attr = append(node.Attr, html.Attribute{Key: "class", Val: strings.Join(e.Classes, " ")})
	}
	if e.InputType != "" {
		node.Attr = append(node.Attr, html.Attribute{Key: "type", Val: e.InputType})
	}
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		node.Attr = append(node.Attr, html.Attribute{Key: k, Val: e.Attrs[k]})
	}
	if e.Text != "" {
		node.AppendChild(&html.Node{Type: html.TextNode, Data: e.Text})
	}
	return node
}

// replaceNode swaps old for replacement, handing over old's element children.
func replaceNode(old, replacement *html.Node) {
	for c := old.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode {
			old.RemoveChild(c)
			replacement.AppendChild(c)
		}
		c = next
	}
	if parent := old.Parent; parent != nil {
		parent.InsertBefore(replacement, old)
		parent.RemoveChild(old)
	}
}

// SetViewport replaces the viewport.
func (p *Page) SetViewport(vp geometry.Viewport) {
	p.mu.Lock()
	p.viewport = vp
	p.mu.Unlock()
}

// Element returns a copy of the element, if present.
func (p *Page) Element(id dom.ElementID) (Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[id]
	if !ok {
		return Element{}, false
	}
	return *e, true
}

// HTML renders the current document, overlay excluded.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b strings.Builder
	if err := html.Render(&b, p.doc); err != nil {
		return ""
	}
	return b.String()
}

// ---- dom.Page: queries ----

func (p *Page) Query(ctx context.Context, selector string) ([]dom.ElementID, error) {
	sel, err := parseSelector(selector)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collectLocked(p.body, sel.matches), nil
}

func (p *Page) QueryWithin(ctx context.Context, container dom.ElementID, selector string) ([]dom.ElementID, error) {
	sel, err := parseSelector(selector)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.elements[container]
	if !ok || !p.connectedLocked(c) {
		return nil, dom.ErrDetached
	}
	return p.collectLocked(c.node, sel.matches), nil
}

func (p *Page) QueryText(ctx context.Context, text string) ([]dom.ElementID, error) {
	want := strings.ToLower(strings.TrimSpace(text))
	if want == "" {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var exact, partial []dom.ElementID
	for _, id := range p.collectLocked(p.body, buttonLike) {
		e := p.elements[id]
		if !geometry.IsVisible(e.Rect, e.Style) {
			continue
		}
		got := strings.ToLower(strings.TrimSpace(textContent(e.node)))
		switch {
		case got == want:
			exact = append(exact, id)
		case strings.Contains(got, want):
			partial = append(partial, id)
		}
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return partial, nil
}

// collectLocked walks the subtree under root in document order, root excluded, and
// returns the handles of the element nodes match accepts.
func (p *Page) collectLocked(root *html.Node, match func(*html.Node) bool) []dom.ElementID {
	var out []dom.ElementID
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if id, ok := p.handles[c]; ok && match(c) {
				out = append(out, id)
			}
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

func (p *Page) Inspect(ctx context.Context, el dom.ElementID) (dom.ElementInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[el]
	if !ok {
		return dom.ElementInfo{}, dom.ErrDetached
	}
	return dom.ElementInfo{
		ID:          e.ID,
		Tag:         e.Tag,
		InputType:   e.InputType,
		Text:        textContent(e.node),
		Connected:   p.connectedLocked(e),
		Rect:        e.Rect,
		Style:       e.Style,
		Hovered:     p.hovered != "" && p.descendsLocked(el, p.hovered),
		Value:       e.Value,
		FormControl: isFormControl(e.node),
	}, nil
}

func (p *Page) ScrollParent(ctx context.Context, el dom.ElementID) (dom.Target, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[el]
	if !ok {
		return dom.Target{}, dom.ErrDetached
	}
	for n := e.node.Parent; n != nil; n = n.Parent {
		id, ok := p.handles[n]
		if !ok {
			continue
		}
		if p.elements[id].Scrollable {
			return dom.OnElement(id), nil
		}
	}
	return dom.Document, nil
}

func (p *Page) Contains(ctx context.Context, ancestor, node dom.ElementID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.elements[ancestor]; !ok {
		return false, dom.ErrDetached
	}
	return p.descendsLocked(ancestor, node), nil
}

func (p *Page) Viewport(ctx context.Context) (geometry.Viewport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport, nil
}

// ---- dom.Page: listeners ----

func (p *Page) Listen(ctx context.Context, target dom.Target, typ dom.EventType, opts dom.ListenerOptions, h dom.Handler) (dom.ListenerID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if target.Kind == dom.TargetElement {
		if e, ok := p.elements[target.Element]; !ok || !p.connectedLocked(e) {
			return "", dom.ErrDetached
		}
	}
	p.seq++
	id := dom.ListenerID(fmt.Sprintf("l%d", p.seq))
	p.listeners[id] = &listener{id: id, target: target, typ: typ, opts: opts, handler: h}
	p.lorder = append(p.lorder, id)
	return id, nil
}

func (p *Page) Unlisten(ctx context.Context, id dom.ListenerID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.listeners[id]; !ok {
		return fmt.Errorf("unknown listener %s", id)
	}
	delete(p.listeners, id)
	return nil
}

// ListenerCount returns how many listeners are attached to the page.
func (p *Page) ListenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Listening reports whether any listener for typ is attached to target.
func (p *Page) Listening(target dom.Target, typ dom.EventType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.listeners {
		if l.target == target && l.typ == typ {
			return true
		}
	}
	return false
}

// ---- dom.Page: overlay nodes ----

func (p *Page) Mount(ctx context.Context, spec dom.NodeSpec) (dom.NodeID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	p.seq++
	n := &Node{ID: dom.NodeID(fmt.Sprintf("n%d", p.seq)), Spec: spec}
	p.nodes[n.ID] = n
	p.norder = append(p.norder, n.ID)
	p.mountLog = append(p.mountLog, spec.Kind)
	hook := p.OnMount
	snapshot := *n
	p.mu.Unlock()

	if hook != nil {
		hook(snapshot)
	}
	return n.ID, nil
}

func (p *Page) Update(ctx context.Context, id dom.NodeID, spec dom.NodeSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[id]
	if !ok {
		return dom.ErrDetached
	}
	n.Spec = spec
	return nil
}

func (p *Page) Measure(ctx context.Context, id dom.NodeID) (geometry.Rect, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[id]
	if !ok {
		return geometry.Rect{}, dom.ErrDetached
	}
	r := n.Spec.Rect
	if n.Spec.Kind == dom.NodeCallout || n.Spec.Kind == dom.NodeCard {
		r.Width, r.Height = p.CalloutSize.Width, p.CalloutSize.Height
	}
	return r, nil
}

func (p *Page) Unmount(ctx context.Context, id dom.NodeID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[id]
	if !ok {
		return dom.ErrDetached
	}
	delete(p.nodes, id)
	p.unmountLog = append(p.unmountLog, n.Spec.Kind)
	return nil
}

// Nodes returns the mounted overlay nodes in mount order.
func (p *Page) Nodes() []Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Node, 0, len(p.nodes))
	for _, id := range p.norder {
		if n, ok := p.nodes[id]; ok {
			out = append(out, *n)
		}
	}
	return out
}

// NodesOf returns the mounted nodes of one kind.
func (p *Page) NodesOf(kind dom.NodeKind) []Node {
	var out []Node
	for _, n := range p.Nodes() {
		if n.Spec.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// MountLog returns the kinds of every node ever mounted, in order.
func (p *Page) MountLog() []dom.NodeKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dom.NodeKind(nil), p.mountLog...)
}

func (p *Page) SetActive(ctx context.Context, el dom.ElementID, active bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[el]
	if !ok {
		return dom.ErrDetached
	}
	e.active = active
	return nil
}

func (p *Page) ClearActive(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.elements {
		e.active = false
	}
	return nil
}

// Active returns the elements currently carrying the active class, sorted.
func (p *Page) Active() []dom.ElementID {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []dom.ElementID
	for id, e := range p.elements {
		if e.active {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ---- dom.Page: actions ----

func (p *Page) Focus(ctx context.Context, el dom.ElementID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[el]
	if !ok || !p.connectedLocked(e) {
		return dom.ErrDetached
	}
	if e.Unfocusable {
		return fmt.Errorf("element %s is not focusable", el)
	}
	p.focused = el
	return nil
}

// Focused returns the element that last received focus.
func (p *Page) Focused() dom.ElementID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.focused
}

func (p *Page) Click(ctx context.Context, el dom.ElementID) error {
	p.mu.Lock()
	e, ok := p.elements[el]
	if !ok || !p.connectedLocked(e) {
		p.mu.Unlock()
		return dom.ErrDetached
	}
	p.clicks = append(p.clicks, el)
	c := e.Rect.Center()
	p.mu.Unlock()

	p.deliverClick(el, c.X, c.Y)
	return nil
}

// Clicks returns the elements clicked programmatically through Click.
func (p *Page) Clicks() []dom.ElementID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dom.ElementID(nil), p.clicks...)
}

func (p *Page) Dispatch(ctx context.Context, signal dom.EventType) error {
	p.mu.Lock()
	p.dispatched = append(p.dispatched, signal)
	p.mu.Unlock()
	p.deliver(dom.Event{Type: signal}, func(l *listener) bool {
		return l.target.Kind == dom.TargetDocument
	})
	return nil
}

// Dispatched returns the signals fired through Dispatch.
func (p *Page) Dispatched() []dom.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dom.EventType(nil), p.dispatched...)
}

// ---- user simulation ----

// Hover moves the pointer onto el, firing mouseleave on the previous element.
func (p *Page) Hover(el dom.ElementID) {
	p.mu.Lock()
	prev := p.hovered
	p.hovered = el
	p.mu.Unlock()
	if prev != "" && prev != el {
		p.deliverTo(prev, dom.Event{Type: dom.EventMouseLeave, Target: prev})
	}
	if el != "" && prev != el {
		p.deliverTo(el, dom.Event{Type: dom.EventMouseEnter, Target: el})
	}
}

// Unhover moves the pointer off every element.
func (p *Page) Unhover() { p.Hover("") }

// ClickAt simulates a user click on target at client coordinates (x, y). target may be
// empty for clicks on overlay or unrelated content.
func (p *Page) ClickAt(target dom.ElementID, x, y float64) {
	p.deliverClick(target, x, y)
}

// ClickOn simulates a user click at the centre of el.
func (p *Page) ClickOn(el dom.ElementID) {
	e, ok := p.Element(el)
	if !ok {
		return
	}
	c := e.Rect.Center()
	p.deliverClick(el, c.X, c.Y)
}

// Type sets the value of el and fires an input event.
func (p *Page) Type(el dom.ElementID, value string) {
	p.setValue(el, value, dom.EventInput)
}

// Change sets the value of el and fires a change event.
func (p *Page) Change(el dom.ElementID, value string) {
	p.setValue(el, value, dom.EventChange)
}

func (p *Page) setValue(el dom.ElementID, value string, typ dom.EventType) {
	p.mu.Lock()
	if e, ok := p.elements[el]; ok {
		e.Value = value
	}
	p.mu.Unlock()
	p.deliverTo(el, dom.Event{Type: typ, Target: el, Value: value})
}

// Move relocates el without firing any event, as a silent re-layout would.
func (p *Page) Move(el dom.ElementID, r geometry.Rect) {
	p.mu.Lock()
	if e, ok := p.elements[el]; ok {
		e.Rect = r
	}
	p.mu.Unlock()
}

// Resize relocates el and fires its element resize observers.
func (p *Page) Resize(el dom.ElementID, r geometry.Rect) {
	p.Move(el, r)
	p.deliverTo(el, dom.Event{Type: dom.EventElementResize, Target: el})
}

// ResizeWindow replaces the viewport and fires window resize listeners.
func (p *Page) ResizeWindow(vp geometry.Viewport) {
	p.SetViewport(vp)
	p.deliver(dom.Event{Type: dom.EventResize}, func(l *listener) bool {
		return l.target.Kind == dom.TargetWindow
	})
}

// Scroll fires scroll listeners attached to target.
func (p *Page) Scroll(target dom.Target) {
	p.deliver(dom.Event{Type: dom.EventScroll, Target: target.Element}, func(l *listener) bool {
		return l.target == target
	})
}

// Detach removes el and its subtree from the document; their handles stay known but
// disconnected.
func (p *Page) Detach(el dom.ElementID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.elements[el]; ok && e.node.Parent != nil {
		e.node.Parent.RemoveChild(e.node)
	}
}

// ---- delivery ----

func (p *Page) deliverClick(target dom.ElementID, x, y float64) {
	ev := dom.Event{Type: dom.EventClick, Target: target, X: x, Y: y}
	// Capture phase on the document, then the target and its ancestors.
	p.deliver(ev, func(l *listener) bool {
		return l.target.Kind == dom.TargetDocument && l.opts.Capture
	})
	if target != "" {
		p.deliverTo(target, ev)
	}
	p.deliver(ev, func(l *listener) bool {
		return l.target.Kind == dom.TargetDocument && !l.opts.Capture
	})
}

// deliverTo fires ev on el and bubbles it through its ancestors. mouseenter/leave and
// element resize do not bubble.
func (p *Page) deliverTo(el dom.ElementID, ev dom.Event) {
	bubbles := ev.Type != dom.EventMouseEnter && ev.Type != dom.EventMouseLeave && ev.Type != dom.EventElementResize

	p.mu.Lock()
	chain := []dom.ElementID{el}
	if e, ok := p.elements[el]; ok && bubbles {
		for n := e.node.Parent; n != nil; n = n.Parent {
			if id, ok := p.handles[n]; ok {
				chain = append(chain, id)
			}
		}
	}
	p.mu.Unlock()

	for _, id := range chain {
		target := dom.OnElement(id)
		p.deliver(ev, func(l *listener) bool { return l.target == target })
	}
}

// deliver invokes matching handlers in attach order with the lock released. A listener
// removed by an earlier handler in the same dispatch is not invoked.
func (p *Page) deliver(ev dom.Event, match func(*listener) bool) {
	p.mu.Lock()
	var picked []*listener
	for _, id := range p.lorder {
		l, ok := p.listeners[id]
		if ok && l.typ == ev.Type && match(l) {
			picked = append(picked, l)
		}
	}
	p.compactLocked()
	p.mu.Unlock()

	for _, l := range picked {
		p.mu.Lock()
		_, live := p.listeners[l.id]
		p.mu.Unlock()
		if !live {
			continue
		}
		e := ev
		e.Listener = l.id
		l.handler(e)
	}
}

func (p *Page) compactLocked() {
	kept := p.lorder[:0]
	for _, id := range p.lorder {
		if _, ok := p.listeners[id]; ok {
			kept = append(kept, id)
		}
	}
	p.lorder = kept
}

// descendsLocked reports whether node is ancestor or inside it.
func (p *Page) descendsLocked(ancestor, node dom.ElementID) bool {
	a, ok := p.elements[ancestor]
	if !ok {
		return false
	}
	e, ok := p.elements[node]
	if !ok {
		return false
	}
	for n := e.node; n != nil; n = n.Parent {
		if n == a.node {
			return true
		}
	}
	return false
}

// connectedLocked reports whether e is still reachable from the document root.
func (p *Page) connectedLocked(e *Element) bool {
	for n := e.node; n != nil; n = n.Parent {
		if n == p.doc {
			return true
		}
	}
	return false
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// textContent concatenates the text nodes under n, as the DOM property does.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func isFormControl(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Input, atom.Textarea, atom.Select:
		return true
	}
	return false
}

func buttonLike(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Button, atom.A:
		return true
	case atom.Input:
		t, _ := getAttr(n, "type")
		return t == "button" || t == "submit"
	}
	role, _ := getAttr(n, "role")
	return role == "button"
}
