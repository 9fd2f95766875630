package resolve

import "strings"

// selectorChars are characters that never appear in a plain button label but are common
// in CSS selectors.
const selectorChars = "#.[]>:=*~+"

var knownTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true, "textarea": true,
	"form": true, "label": true, "nav": true, "header": true, "footer": true,
	"main": true, "aside": true, "section": true, "article": true, "div": true,
	"span": true, "ul": true, "ol": true, "li": true, "table": true, "img": true,
	"svg": true, "dialog": true, "details": true, "summary": true, "h1": true,
	"h2": true, "h3": true, "p": true,
}

// LooksLikeSelector guesses whether reference is meant as a CSS selector rather than
// visible text.
func LooksLikeSelector(reference string) bool {
	if strings.ContainsAny(reference, selectorChars) {
		return true
	}
	return knownTags[strings.ToLower(strings.TrimSpace(reference))]
}
