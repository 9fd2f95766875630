package detect

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher checks a form value against a step's expected value. Expected values written
// as /pattern/flags are regular expressions (flags i, m and s are honoured); anything
// else is compared literally after trimming surrounding whitespace.
type Matcher struct {
	literal string
	re      *regexp.Regexp
}

// ParseExpected builds a Matcher. An empty expected value accepts any non-empty input.
func ParseExpected(expected string) (Matcher, error) {
	pattern, flags, ok := splitPattern(expected)
	if !ok {
		return Matcher{literal: strings.TrimSpace(expected)}, nil
	}

	var prefix strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			prefix.WriteRune(f)
		case 'g', 'u', 'y':
			// Meaningless for a single whole-value test.
		default:
			return Matcher{}, fmt.Errorf("unsupported pattern flag %q in %q", f, expected)
		}
	}
	if prefix.Len() > 0 {
		pattern = "(?" + prefix.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Matcher{}, fmt.Errorf("invalid expected pattern %q: %w", expected, err)
	}
	return Matcher{re: re}, nil
}

// Match reports whether value satisfies the expectation.
func (m Matcher) Match(value string) bool {
	if m.re != nil {
		return m.re.MatchString(value)
	}
	value = strings.TrimSpace(value)
	if m.literal == "" {
		return value != ""
	}
	return value == m.literal
}

// IsPattern reports whether the expectation is a regular expression.
func (m Matcher) IsPattern() bool { return m.re != nil }

func splitPattern(s string) (pattern, flags string, ok bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '/' {
		return "", "", false
	}
	end := strings.LastIndexByte(s, '/')
	if end == 0 {
		return "", "", false
	}
	return s[1:end], s[end+1:], true
}
