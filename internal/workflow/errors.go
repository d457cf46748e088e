// internal/workflow/errors.go
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/docketpilot/internal/interaction"
	"github.com/xkilldash9x/docketpilot/internal/locator"
	"github.com/xkilldash9x/docketpilot/internal/resolver"
)

// ErrorKind classifies why a phase did not advance.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindNotFound          ErrorKind = "NotFound"
	KindMismatch          ErrorKind = "Mismatch"
	KindActivation        ErrorKind = "Activation"
	KindNavigation        ErrorKind = "Navigation"
	KindInvalidTransition ErrorKind = "InvalidTransition"
	KindInvalidInput      ErrorKind = "InvalidInput"
	KindInternal          ErrorKind = "Internal"
)

// ErrInvalidTransition is returned when a trigger is not allowed from the current phase.
var ErrInvalidTransition = errors.New("invalid transition")

// NavigationError reports that the page state a step depends on never appeared.
type NavigationError struct {
	Step string
	URL  string
	Err  error
}

func (e *NavigationError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("navigation failed at step '%s' (%s): %v", e.Step, e.URL, e.Err)
	}
	return fmt.Sprintf("navigation failed at step '%s': %v", e.Step, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// Classify maps an error from a phase to its kind.
func Classify(err error) ErrorKind {
	var (
		nf  *resolver.NotFoundError
		mm  *interaction.MismatchError
		ae  *interaction.ActivationError
		nav *NavigationError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &nav):
		return KindNavigation
	case errors.As(err, &nf):
		return KindNotFound
	case errors.As(err, &mm):
		return KindMismatch
	case errors.As(err, &ae):
		return KindActivation
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrInvalidInput), errors.Is(err, locator.ErrInvalidCandidate):
		return KindInvalidInput
	case errors.Is(err, context.DeadlineExceeded):
		return KindNavigation
	default:
		return KindInternal
	}
}
