// Package step holds the data model shared by every part of the guided step engine:
// the declarative step descriptor authored outside the engine, the terminal outcome
// of a step execution and the coarse state reported to the state sink.
package step

import "fmt"

// ActionKind names what the user is asked to do with the target.
type ActionKind string

const (
	ActionHover     ActionKind = "hover"
	ActionClick     ActionKind = "click"
	ActionHighlight ActionKind = "highlight"
	ActionFormFill  ActionKind = "formfill"
	// ActionNoop is an informational step with no target.
	ActionNoop ActionKind = "noop"
)

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionHover, ActionClick, ActionHighlight, ActionFormFill, ActionNoop:
		return true
	}
	return false
}

// ClickLike reports whether resolution should fall back to matching button text.
func (k ActionKind) ClickLike() bool {
	return k == ActionClick || k == ActionHover || k == ActionHighlight
}

// Descriptor is one authored step. The engine never mutates it.
type Descriptor struct {
	// ID is an optional stable identifier used in logs and metrics.
	ID     string     `json:"id,omitempty" yaml:"id,omitempty"`
	Title  string     `json:"title,omitempty" yaml:"title,omitempty"`
	Action ActionKind `json:"action" yaml:"action"`
	// Target is a selector, a "prefix:value" shorthand or visible button text.
	Target  string `json:"target,omitempty" yaml:"target,omitempty"`
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
	// Expected is a literal value or a /pattern/flags regular expression.
	Expected  string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Hint      string `json:"hint,omitempty" yaml:"hint,omitempty"`
	Skippable bool   `json:"skippable,omitempty" yaml:"skippable,omitempty"`
	Strict    bool   `json:"strict,omitempty" yaml:"strict,omitempty"`
	// InNavigation asks for the host navigation to be opened before resolving.
	InNavigation bool `json:"in_navigation,omitempty" yaml:"in_navigation,omitempty"`
}

// Label returns a short human readable name for logs.
func (d Descriptor) Label() string {
	switch {
	case d.ID != "":
		return d.ID
	case d.Target != "":
		return fmt.Sprintf("%s %s", d.Action, d.Target)
	default:
		return string(d.Action)
	}
}

// Outcome is the terminal result of executing one step.
type Outcome string

const (
	Completed Outcome = "completed"
	Timeout   Outcome = "timeout"
	Cancelled Outcome = "cancelled"
	Skipped   Outcome = "skipped"
)

// Advances reports whether the outcome counts towards progress.
func (o Outcome) Advances() bool {
	return o == Completed || o == Skipped
}

// State is the coarse transition reported to a state sink.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// StateFor maps a terminal outcome to the state a sink should see.
func StateFor(o Outcome) State {
	if o.Advances() {
		return StateCompleted
	}
	return StateError
}

// Position locates a step inside its sequence.
type Position struct {
	Index int
	Total int
}
