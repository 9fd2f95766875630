package cdp

import (
	_ "embed"
	"errors"
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/stepwise/internal/dom"
)

//go:embed agent.js
var agentScript string

// bindingName is the runtime binding the agent reports events through.
const bindingName = "__stepwiseEvent"

// errAgentMissing is returned when the current document has no agent, typically
// while a navigation is in flight.
var errAgentMissing = errors.New("page agent is not installed in the current document")

// reply is the envelope every agent call returns.
type reply struct {
	OK    bool            `json:"ok"`
	Code  string          `json:"code"`
	Error string          `json:"error"`
	Value json.RawMessage `json:"value"`
}

// agentExpression builds the expression that invokes method with args inside the page.
// The result is serialised to a string so decoding stays on the Go side.
func agentExpression(method string, args ...any) (string, error) {
	if args == nil {
		args = []any{}
	}
	m, err := json.Marshal(method)
	if err != nil {
		return "", fmt.Errorf("failed to encode agent method: %w", err)
	}
	a, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode arguments for %s: %w", method, err)
	}
	return fmt.Sprintf(
		`JSON.stringify(window.__stepwise ? window.__stepwise.call(%s, %s) : {ok: false, code: "missing", error: "agent missing"})`,
		m, a), nil
}

// decodeReply unpacks a raw agent reply into out, mapping agent error codes onto the
// dom package's sentinel errors.
func decodeReply(method, raw string, out any) error {
	var r reply
	if err := json.UnmarshalFromString(raw, &r); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", method, err)
	}
	if !r.OK {
		switch r.Code {
		case "detached":
			return fmt.Errorf("%s: %w", method, dom.ErrDetached)
		case "selector":
			return fmt.Errorf("%s: %w: %s", method, dom.ErrInvalidSelector, r.Error)
		case "missing":
			return fmt.Errorf("%s: %w", method, errAgentMissing)
		default:
			return fmt.Errorf("%s failed in page: %s", method, r.Error)
		}
	}
	if out == nil || len(r.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Value, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// decodeEvent parses a binding payload.
func decodeEvent(payload string) (dom.Event, error) {
	var ev dom.Event
	if err := json.UnmarshalFromString(payload, &ev); err != nil {
		return dom.Event{}, fmt.Errorf("failed to decode page event: %w", err)
	}
	if ev.Listener == "" {
		return dom.Event{}, errors.New("page event carries no listener id")
	}
	return ev, nil
}
