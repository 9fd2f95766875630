package cdp

import (
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/stepwise/internal/config"
)

// flag is one command line switch handed to the browser.
type flag struct {
	name  string
	value any
}

// browserFlags derives launch switches from the browser configuration.
func browserFlags(cfg config.BrowserConfig) []flag {
	flags := []flag{
		{"headless", cfg.Headless},
		{"disable-gpu", cfg.Headless},
		{"hide-scrollbars", cfg.Headless},
		{"mute-audio", cfg.Headless},
		{"disable-extensions", true},
	}
	if cfg.IgnoreTLSErrors {
		flags = append(flags,
			flag{"ignore-certificate-errors", true},
			flag{"allow-insecure-localhost", true})
	}

	// Custom arguments, given as "--name" or "--name=value".
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags = append(flags, flag{name, parts[1]})
		} else {
			flags = append(flags, flag{name, true})
		}
	}

	// Required inside containers.
	if runtime.GOOS == "linux" {
		flags = append(flags,
			flag{"no-sandbox", true},
			flag{"disable-dev-shm-usage", true})
	}
	return flags
}

// viewportSize returns the configured window size, or false when none is set.
func viewportSize(cfg config.BrowserConfig) (int, int, bool) {
	w, h := cfg.Viewport["width"], cfg.Viewport["height"]
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// AllocatorOptions builds the exec allocator options for a guided session. The
// "enable-automation" switch is dropped so the page shows no automation banner to the
// person being guided.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("enable-automation", false))

	for _, f := range browserFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	if w, h, ok := viewportSize(cfg); ok {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
