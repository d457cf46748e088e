// internal/browser/cdp/context.go
package cdp

import (
	"context"
)

// combineContext derives a context from tab, which carries the chromedp target,
// that is also canceled when op is done. op normally carries the caller's deadline.
func combineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(op, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
