// -- cmd/run.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/stepwise/internal/browser/cdp"
	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/dom"
	"github.com/xkilldash9x/stepwise/internal/guide"
	"github.com/xkilldash9x/stepwise/internal/observability"
	"github.com/xkilldash9x/stepwise/internal/poll"
	"github.com/xkilldash9x/stepwise/internal/sink"
	"github.com/xkilldash9x/stepwise/internal/step"
	"github.com/xkilldash9x/stepwise/internal/steps"
)

// guidePage is the page the run command drives.
type guidePage interface {
	dom.Page
	Navigate(ctx context.Context, url string) error
	// Done is closed when the page goes away underneath the run.
	Done() <-chan struct{}
	Close() error
}

// pageOpener starts a page. Tests substitute an in-memory page.
type pageOpener func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (guidePage, error)

// browserPage owns the browser process as well as the tab.
type browserPage struct {
	*cdp.Session
	cancelAlloc context.CancelFunc
}

func (b *browserPage) Close() error {
	err := b.Session.Close()
	b.cancelAlloc()
	return err
}

func openBrowserPage(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (guidePage, error) {
	allocCtx, cancel := cdp.NewAllocator(ctx, cfg)
	s, err := cdp.Open(allocCtx, cfg, logger)
	if err != nil {
		cancel()
		return nil, err
	}
	return &browserPage{Session: s, cancelAlloc: cancel}, nil
}

type runOptions struct {
	url         string
	stepsFile   string
	headless    bool
	stepTimeout time.Duration
	metrics     bool
	metricsAddr string
}

func newRunCmd(open pageOpener) *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Opens the application and guides the user through a step file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			applyRunFlagOverrides(cmd, cfg, &opts)
			return runGuide(cmd, cfg, opts, open)
		},
	}

	runCmd.Flags().StringVarP(&opts.url, "url", "u", "", "URL of the application (overrides the step file)")
	runCmd.Flags().StringVarP(&opts.stepsFile, "steps", "s", "", "YAML or JSON step file")
	runCmd.Flags().BoolVar(&opts.headless, "headless", false, "run the browser without a window")
	runCmd.Flags().DurationVar(&opts.stepTimeout, "step-timeout", 0, "time allowed for each step")
	runCmd.Flags().BoolVar(&opts.metrics, "metrics", false, "serve Prometheus metrics while the run is active")
	runCmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "listen address for --metrics")
	_ = runCmd.MarkFlagRequired("steps")
	return runCmd
}

// applyRunFlagOverrides lets explicitly set flags win over file and environment values.
func applyRunFlagOverrides(cmd *cobra.Command, cfg *config.Config, opts *runOptions) {
	flags := cmd.Flags()
	if flags.Changed("headless") {
		cfg.SetBrowserHeadless(opts.headless)
	}
	if flags.Changed("step-timeout") && opts.stepTimeout > 0 {
		cfg.SetGuideStepTimeout(opts.stepTimeout)
	}
	if flags.Changed("metrics") {
		cfg.MetricsCfg.Enabled = opts.metrics
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsCfg.Address = opts.metricsAddr
	}
}

func runGuide(cmd *cobra.Command, cfg *config.Config, opts runOptions, open pageOpener) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	// 1. Load the exercise.
	seq, err := steps.Load(opts.stepsFile)
	if err != nil {
		return err
	}
	url := opts.url
	if url == "" {
		url = seq.URL
	}
	if url == "" {
		return errors.New("no URL given: pass --url or set url in the step file")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// 2. Open the page.
	page, err := open(ctx, cfg.Browser(), logger)
	if err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn("Failed to close page.", zap.Error(err))
		}
	}()
	if err := page.Navigate(ctx, url); err != nil {
		return err
	}

	// 3. Wire the guide.
	sinks := sink.Multi{sink.NewLog(logger)}
	var metrics *sink.Metrics
	if cfg.Metrics().Enabled {
		metrics = sink.NewMetrics()
		sinks = append(sinks, metrics)
	}
	guideCfg := cfg.Guide()
	deps := guide.Deps{Page: page, Sink: sinks, Logger: logger}
	if nav := guide.NewSelectorNavigator(page, logger, guideCfg.Navigation,
		poll.Policy{Interval: guideCfg.ResolveInterval, Timeout: guideCfg.ResolveTimeout}); nav != nil {
		deps.Navigator = nav
	}
	handler := guide.NewHandler(deps, guide.OptionsFromConfig(guideCfg))

	// 4. Run the sequence alongside the metrics endpoint.
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	if metrics != nil {
		g.Go(func() error {
			return metrics.Serve(runCtx, cfg.Metrics().Address, logger)
		})
	}

	var summary guide.Summary
	g.Go(func() error {
		defer cancelRun()
		go func() {
			select {
			case <-page.Done():
				logger.Info("Page closed, stopping the run.")
				cancelRun()
			case <-runCtx.Done():
			}
		}()
		summary = handler.RunSequence(runCtx, seq.Steps)
		handler.Close(context.WithoutCancel(ctx))
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	return report(cmd, seq, summary)
}

func report(cmd *cobra.Command, seq *steps.Sequence, summary guide.Summary) error {
	total := len(seq.Steps)
	cmd.Printf("Completed %d of %d steps in %s.\n", len(summary.Completed), total, summary.Duration.Round(time.Millisecond))
	if summary.Finished(total) {
		return nil
	}
	at := len(summary.Outcomes) - 1
	if at < 0 {
		return errors.New("sequence stopped before the first step")
	}
	outcome := summary.Outcomes[at]
	d := seq.Steps[at]
	label := d.Title
	if label == "" {
		label = d.Label()
	}
	return fmt.Errorf("sequence stopped at step %d (%s): %s", at+1, label, outcomeText(outcome))
}

func outcomeText(o step.Outcome) string {
	switch o {
	case step.Timeout:
		return "timed out"
	case step.Cancelled:
		return "cancelled"
	default:
		return string(o)
	}
}
