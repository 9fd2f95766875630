package cdp

import "context"

// CombineContext returns a context derived from primary (so it keeps the chromedp
// target values) that is also cancelled when secondary is done. Callers must call the
// returned cancel function.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
