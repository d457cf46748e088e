// internal/interaction/interactor.go
package interaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
)

// Default timings for the interaction primitives.
const (
	DefaultSettleTimeout = 500 * time.Millisecond
	DefaultCharDelay     = 80 * time.Millisecond
	DefaultActionTimeout = 5 * time.Second
)

// Options tunes the bounded waits of the interactor.
type Options struct {
	// SettleTimeout bounds every wait-for-condition used to let the page catch up.
	SettleTimeout time.Duration
	// CharDelay is the pause between characters on the slow entry path.
	CharDelay time.Duration
	// ActionTimeout bounds a single click or script activation.
	ActionTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = DefaultSettleTimeout
	}
	if o.CharDelay <= 0 {
		o.CharDelay = DefaultCharDelay
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = DefaultActionTimeout
	}
	return o
}

// Interactor performs verified text entry and element activation on one page.
type Interactor struct {
	page   dom.Page
	clock  dom.Clock
	opts   Options
	logger *zap.Logger
}

// NewInteractor creates an interactor bound to a page.
func NewInteractor(page dom.Page, clock dom.Clock, opts Options, logger *zap.Logger) *Interactor {
	if clock == nil {
		clock = dom.RealClock{}
	}
	return &Interactor{
		page:   page,
		clock:  clock,
		opts:   opts.withDefaults(),
		logger: logger.Named("interactor"),
	}
}

// settle waits briefly for the field to hold want. Timing out is not an error here,
// the read-back that follows decides the outcome.
func (i *Interactor) settle(ctx context.Context, field dom.Element, want string) error {
	err := i.page.WaitForValue(ctx, field, want, i.opts.SettleTimeout)
	if err == nil || errors.Is(err, dom.ErrWaitTimeout) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	i.logger.Debug("Settle wait failed, continuing to read-back.", zap.String("field", field.Describe()), zap.Error(err))
	return nil
}

// withActionTimeout derives a context for one browser action.
func (i *Interactor) withActionTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, i.opts.ActionTimeout)
}

// ActivationError reports that both the native click and the script fallback failed.
type ActivationError struct {
	Element  dom.Element
	Primary  error
	Fallback error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("failed to activate %s: click: %v; script click: %v", e.Element.Describe(), e.Primary, e.Fallback)
}

// Unwrap exposes both causes.
func (e *ActivationError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// Activate scrolls el into view, lets layout settle, then clicks it. If the native
// click fails it makes exactly one script-driven attempt before giving up.
func (i *Interactor) Activate(ctx context.Context, el dom.Element) error {
	log := i.logger.With(zap.String("element", el.Describe()))

	if err := i.page.ScrollIntoView(ctx, el); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("Scroll into view failed, attempting activation anyway.", zap.Error(err))
	}
	if err := i.page.WaitInteractable(ctx, el, i.opts.SettleTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("Element did not settle in time.", zap.Error(err))
	}

	opCtx, cancel := i.withActionTimeout(ctx)
	primary := i.page.Click(opCtx, el)
	cancel()
	if primary == nil {
		log.Debug("Element activated.")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Warn("Native click failed, falling back to script click.", zap.Error(primary))

	opCtx, cancel = i.withActionTimeout(ctx)
	fallback := i.page.ScriptClick(opCtx, el)
	cancel()
	if fallback == nil {
		log.Info("Element activated by script click.")
		return nil
	}

	log.Error("Activation failed with both mechanisms.", zap.NamedError("primary", primary), zap.NamedError("fallback", fallback))
	return &ActivationError{Element: el, Primary: primary, Fallback: fallback}
}
