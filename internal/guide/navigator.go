package guide

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/poll"
)

// SelectorNavigator opens a collapsible navigation by clicking its toggle until a
// "docked" marker element is visible.
type SelectorNavigator struct {
	page   dom.Page
	logger *zap.Logger
	toggle string
	docked string
	policy poll.Policy
}

// NewSelectorNavigator returns nil when the configuration names no docked marker, so
// that steps flagged for the navigation resolve as usual.
func NewSelectorNavigator(page dom.Page, logger *zap.Logger, cfg config.NavigationConfig, policy poll.Policy) *SelectorNavigator {
	if cfg.DockedSelector == "" {
		return nil
	}
	return &SelectorNavigator{
		page:   page,
		logger: logger.Named("navigator"),
		toggle: cfg.ToggleSelector,
		docked: cfg.DockedSelector,
		policy: policy,
	}
}

// EnsureOpen clicks the toggle if the navigation is not docked and waits for it to dock.
func (n *SelectorNavigator) EnsureOpen(ctx context.Context) error {
	if n == nil {
		return nil
	}
	docked, err := n.isDocked(ctx)
	if err != nil {
		return err
	}
	if docked {
		return nil
	}
	if n.toggle == "" {
		return errors.New("navigation is collapsed and no toggle selector is configured")
	}

	toggles, err := n.page.Query(ctx, n.toggle)
	if err != nil {
		return fmt.Errorf("failed to query navigation toggle: %w", err)
	}
	if len(toggles) == 0 {
		return fmt.Errorf("navigation toggle %q not found", n.toggle)
	}
	n.logger.Debug("Opening navigation.", zap.String("toggle", n.toggle))
	if err := n.page.Click(ctx, toggles[0]); err != nil {
		return fmt.Errorf("failed to click navigation toggle: %w", err)
	}

	if _, err := poll.Until(ctx, n.policy, n.isDocked); err != nil {
		return fmt.Errorf("navigation did not dock: %w", err)
	}
	return nil
}

func (n *SelectorNavigator) isDocked(ctx context.Context) (bool, error) {
	els, err := n.page.Query(ctx, n.docked)
	if err != nil {
		return false, fmt.Errorf("failed to query docked navigation: %w", err)
	}
	for _, el := range els {
		info, err := n.page.Inspect(ctx, el)
		if err == nil && info.Visible() {
			return true, nil
		}
	}
	return false, nil
}
