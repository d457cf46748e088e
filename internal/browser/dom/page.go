// internal/browser/dom/page.go
package dom

import (
	"context"
	"time"

	"github.com/xkilldash9x/docketpilot/internal/locator"
)

// Page is the live browsing context a session drives. Implementations must be
// safe for sequential use by one session; they are not shared between sessions.
type Page interface {
	// Navigate loads url in the page.
	Navigate(ctx context.Context, url string) error
	// WaitReady waits up to timeout for the document to finish loading.
	WaitReady(ctx context.Context, timeout time.Duration) error

	// Find returns every element matching the candidate, in document order.
	// An empty result is not an error.
	Find(ctx context.Context, c locator.Candidate) ([]Element, error)
	// Enumerate returns every interactive element inside scope, in document order.
	Enumerate(ctx context.Context, scope Element) ([]Element, error)

	ScrollIntoView(ctx context.Context, el Element) error
	// WaitInteractable waits up to timeout for el to sit inside the viewport
	// with a stable, non-empty box.
	WaitInteractable(ctx context.Context, el Element, timeout time.Duration) error
	// Click performs a native (input-dispatched) click.
	Click(ctx context.Context, el Element) error
	// ScriptClick activates el through the page's scripting interface.
	ScriptClick(ctx context.Context, el Element) error

	Clear(ctx context.Context, el Element) error
	SendText(ctx context.Context, el Element, text string) error
	PressEnter(ctx context.Context, el Element) error
	SelectOption(ctx context.Context, el Element, value string) error
	ReadValue(ctx context.Context, el Element) (string, error)
	// WaitForValue waits up to timeout for el's value to equal want.
	WaitForValue(ctx context.Context, el Element, want string, timeout time.Duration) error

	Screenshot(ctx context.Context) ([]byte, error)
	Source(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
}
