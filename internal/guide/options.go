package guide

import (
	"time"

	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/detect"
	"github.com/xkilldash9x/stepwise/internal/highlight"
	"github.com/xkilldash9x/stepwise/internal/poll"
	"github.com/xkilldash9x/stepwise/internal/resolve"
)

// Options gathers the tuning of every engine component.
type Options struct {
	// StepTimeout bounds one step, from resolution to the user's action.
	StepTimeout time.Duration
	Resolve     resolve.Options
	Highlight   highlight.Options
	Detect      detect.Options
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return OptionsFromConfig(config.NewDefaultConfig().Guide())
}

// OptionsFromConfig maps the guide configuration section onto component options.
func OptionsFromConfig(cfg config.GuideConfig) Options {
	hl := highlight.DefaultOptions()
	hl.MinSize = cfg.MinHighlightSize
	hl.ViewportPadding = cfg.ViewportPadding
	hl.CalloutGap = cfg.CalloutGap
	hl.RepositionDebounce = cfg.RepositionDebounce
	hl.DriftInterval = cfg.DriftInterval
	hl.DriftThreshold = cfg.DriftThreshold
	hl.AutoCleanupDelay = cfg.AutoCleanupDelay

	return Options{
		StepTimeout: cfg.StepTimeout,
		Resolve: resolve.Options{
			Policy:     poll.Policy{Interval: cfg.ResolveInterval, Timeout: cfg.ResolveTimeout},
			Shorthands: cfg.Shorthands,
		},
		Highlight: hl,
		Detect: detect.Options{
			HoverDwell:   cfg.HoverDwell,
			ClickMargin:  cfg.ClickMargin,
			FormDebounce: cfg.FormDebounce,
			ValidFlash:   cfg.ValidFlash,
		},
	}
}
