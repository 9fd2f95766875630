package domtest

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/stepwise/internal/dom"
)

// selector is the subset of CSS the fake page matches against html nodes: comma
// separated groups of descendant-combined compounds built from tag, #id, .class and
// [attr] / [attr=value].
type selector [][]compound

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	name     string
	value    string
	hasValue bool
}

func parseSelector(s string) (selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty selector", dom.ErrInvalidSelector)
	}
	var sel selector
	for _, group := range strings.Split(s, ",") {
		fields := strings.Fields(group)
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: empty group in %q", dom.ErrInvalidSelector, s)
		}
		var chain []compound
		for _, f := range fields {
			c, err := parseCompound(f)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", dom.ErrInvalidSelector, s, err)
			}
			chain = append(chain, c)
		}
		sel = append(sel, chain)
	}
	return sel, nil
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0
	readName := func() string {
		start := i
		for i < len(s) && isNameChar(s[i]) {
			i++
		}
		return s[start:i]
	}

	if i < len(s) && (isNameChar(s[i]) || s[i] == '*') {
		if s[i] == '*' {
			i++
		} else {
			c.tag = strings.ToLower(readName())
		}
	}
	for i < len(s) {
		switch s[i] {
		case '#':
			i++
			c.id = readName()
			if c.id == "" {
				return c, fmt.Errorf("missing id")
			}
		case '.':
			i++
			cls := readName()
			if cls == "" {
				return c, fmt.Errorf("missing class")
			}
			c.classes = append(c.classes, cls)
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return c, fmt.Errorf("unterminated attribute")
			}
			body := s[i+1 : i+end]
			i += end + 1
			name, value, hasValue := strings.Cut(body, "=")
			value = strings.Trim(value, `"'`)
			if name == "" {
				return c, fmt.Errorf("missing attribute name")
			}
			c.attrs = append(c.attrs, attrMatch{name: name, value: value, hasValue: hasValue})
		default:
			return c, fmt.Errorf("unsupported character %q", s[i])
		}
	}
	return c, nil
}

func isNameChar(b byte) bool {
	return b == '-' || b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != n.Data {
		return false
	}
	if c.id != "" {
		if id, _ := getAttr(n, "id"); id != c.id {
			return false
		}
	}
	if len(c.classes) > 0 {
		class, _ := getAttr(n, "class")
		have := strings.Fields(class)
		for _, cls := range c.classes {
			if !slices.Contains(have, cls) {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		got, ok := getAttr(n, a.name)
		if !ok || (a.hasValue && got != a.value) {
			return false
		}
	}
	return true
}

func (s selector) matches(n *html.Node) bool {
	for _, chain := range s {
		if matchChain(n, chain) {
			return true
		}
	}
	return false
}

// matchChain matches the last compound against n and the rest against its ancestors.
func matchChain(n *html.Node, chain []compound) bool {
	last := len(chain) - 1
	if !chain[last].matches(n) {
		return false
	}
	cur := n
	for i := last - 1; i >= 0; i-- {
		found := false
		for cur = cur.Parent; cur != nil; cur = cur.Parent {
			if chain[i].matches(cur) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
