// Package resolve maps a step's declarative target reference to a live page element,
// retrying on a fixed interval while the element has not been rendered yet.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/poll"
	"github.com/xkilldash9x/stepwise/internal/step"
)

// formControlSelector finds the controls a formfill step may target inside a container.
const formControlSelector = "input, textarea, select"

// NotFoundError reports that resolution exhausted its retry budget.
type NotFoundError struct {
	Reference string
	Action    step.ActionKind
	Attempts  int
	Elapsed   time.Duration
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("target %q for %s not found after %d attempts in %s",
		e.Reference, e.Action, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

// Resolution is the outcome of a single resolution attempt.
type Resolution struct {
	Elements []dom.ElementID
	// UsedFallback is true when elements were matched by visible text.
	UsedFallback bool
}

// Options configures a Resolver.
type Options struct {
	Policy poll.Policy
	// Shorthands maps a reference prefix to a selector template containing "{value}".
	Shorthands map[string]string
}

// Resolver turns target references into elements.
type Resolver struct {
	page   dom.Page
	logger *zap.Logger
	opts   Options
}

// New creates a resolver for page.
func New(page dom.Page, logger *zap.Logger, opts Options) *Resolver {
	return &Resolver{
		page:   page,
		logger: logger.Named("resolver"),
		opts:   opts,
	}
}

// Resolve finds the element for reference, polling until the policy's timeout. When
// several elements match, a warning is logged and the first in document order wins.
func (r *Resolver) Resolve(ctx context.Context, reference string, action step.ActionKind) (dom.ElementID, error) {
	var last Resolution
	res, err := poll.Until(ctx, r.opts.Policy, func(ctx context.Context) (bool, error) {
		found, err := r.Candidates(ctx, reference, action)
		if err != nil {
			return false, err
		}
		last = found
		return len(found.Elements) > 0, nil
	})
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			return "", &NotFoundError{Reference: reference, Action: action, Attempts: res.Attempts, Elapsed: res.Elapsed}
		}
		return "", fmt.Errorf("failed to resolve %q: %w", reference, err)
	}

	if len(last.Elements) > 1 {
		r.logger.Warn("Target matched multiple elements, using the first.",
			zap.String("reference", reference),
			zap.Int("matches", len(last.Elements)),
			zap.Bool("text_fallback", last.UsedFallback))
	}
	r.logger.Debug("Target resolved.",
		zap.String("reference", reference),
		zap.String("element", string(last.Elements[0])),
		zap.Int("attempts", res.Attempts),
		zap.Duration("elapsed", res.Elapsed))
	return last.Elements[0], nil
}

// Candidates performs one resolution attempt without retrying.
func (r *Resolver) Candidates(ctx context.Context, reference string, action step.ActionKind) (Resolution, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Resolution{}, errors.New("empty target reference")
	}
	selector := r.expand(reference)

	switch {
	case action == step.ActionFormFill:
		return r.formControls(ctx, selector)
	case action.ClickLike():
		return r.clickable(ctx, reference, selector)
	default:
		els, err := r.page.Query(ctx, selector)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Elements: els}, nil
	}
}

// clickable tries the reference as a selector when it looks like one and falls back to
// visible button text.
func (r *Resolver) clickable(ctx context.Context, reference, selector string) (Resolution, error) {
	if LooksLikeSelector(selector) {
		els, err := r.page.Query(ctx, selector)
		switch {
		case errors.Is(err, dom.ErrInvalidSelector):
			r.logger.Debug("Reference is not a valid selector, matching by text.", zap.String("reference", reference))
		case err != nil:
			return Resolution{}, err
		case len(els) > 0:
			return Resolution{Elements: els}, nil
		}
	}

	els, err := r.page.QueryText(ctx, reference)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Elements: els, UsedFallback: true}, nil
}

// formControls restricts matches to input-like elements. A matched container that is not
// itself a control contributes its first contained control.
func (r *Resolver) formControls(ctx context.Context, selector string) (Resolution, error) {
	els, err := r.page.Query(ctx, selector)
	if err != nil {
		return Resolution{}, err
	}

	seen := make(map[dom.ElementID]bool, len(els))
	var out []dom.ElementID
	add := func(id dom.ElementID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, el := range els {
		info, err := r.page.Inspect(ctx, el)
		if err != nil {
			if errors.Is(err, dom.ErrDetached) {
				continue
			}
			return Resolution{}, err
		}
		if info.FormControl {
			add(el)
			continue
		}
		inner, err := r.page.QueryWithin(ctx, el, formControlSelector)
		if err != nil {
			if errors.Is(err, dom.ErrDetached) {
				continue
			}
			return Resolution{}, err
		}
		if len(inner) > 0 {
			add(inner[0])
		}
	}
	return Resolution{Elements: out}, nil
}

// expand rewrites "prefix:value" shorthands into selectors.
func (r *Resolver) expand(reference string) string {
	prefix, value, ok := strings.Cut(reference, ":")
	if !ok {
		return reference
	}
	tmpl, known := r.opts.Shorthands[strings.ToLower(strings.TrimSpace(prefix))]
	if !known {
		return reference
	}
	return strings.ReplaceAll(tmpl, "{value}", strings.TrimSpace(value))
}
