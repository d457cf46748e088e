package interaction

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
)

// VerifiedOutcome describes a successful verified entry.
type VerifiedOutcome struct {
	Value string
	// Recovered is true when the value only stuck on the character-by-character path.
	Recovered bool
	// ReadBacks counts the read-backs performed, 1 on the fast path and 2 after recovery.
	ReadBacks int
}

// MismatchError reports a field that still disagrees with the intended value after
// the single recovery attempt.
type MismatchError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("field %s holds %q, expected %q", e.Field, e.Actual, e.Expected)
}

// EnterVerified writes value into field and confirms it by reading it back. On a
// mismatch it clears the field once more and types the value one character at a
// time. A second mismatch is returned as a *MismatchError; there are no further retries.
func (i *Interactor) EnterVerified(ctx context.Context, field dom.Element, value string) (VerifiedOutcome, error) {
	return i.enter(ctx, field, value, true)
}

// EnterSecret is EnterVerified for values that must never reach the logs or a
// MismatchError.
func (i *Interactor) EnterSecret(ctx context.Context, field dom.Element, value string) (VerifiedOutcome, error) {
	return i.enter(ctx, field, value, false)
}

func (i *Interactor) enter(ctx context.Context, field dom.Element, value string, loggable bool) (VerifiedOutcome, error) {
	log := i.logger.With(zap.String("field", field.Describe()))
	shown := func(s string) string {
		if loggable {
			return s
		}
		return fmt.Sprintf("<%d chars>", len([]rune(s)))
	}

	if err := i.clearAndSettle(ctx, field); err != nil {
		return VerifiedOutcome{}, err
	}
	if err := i.page.SendText(ctx, field, value); err != nil {
		return VerifiedOutcome{}, fmt.Errorf("failed to write into %s: %w", field.Describe(), err)
	}
	if err := i.settle(ctx, field, value); err != nil {
		return VerifiedOutcome{}, err
	}

	actual, err := i.page.ReadValue(ctx, field)
	if err != nil {
		return VerifiedOutcome{}, fmt.Errorf("failed to read back %s: %w", field.Describe(), err)
	}
	if actual == value {
		log.Debug("Value verified on first write.", zap.String("value", shown(value)))
		return VerifiedOutcome{Value: actual, ReadBacks: 1}, nil
	}

	log.Warn("Read-back mismatch, retrying character by character.",
		zap.String("expected", shown(value)), zap.String("actual", shown(actual)))

	if err := i.clearAndSettle(ctx, field); err != nil {
		return VerifiedOutcome{}, err
	}
	for _, r := range value {
		if err := i.page.SendText(ctx, field, string(r)); err != nil {
			return VerifiedOutcome{}, fmt.Errorf("failed to type into %s: %w", field.Describe(), err)
		}
		if err := i.clock.Sleep(ctx, i.opts.CharDelay); err != nil {
			return VerifiedOutcome{}, err
		}
	}
	if err := i.settle(ctx, field, value); err != nil {
		return VerifiedOutcome{}, err
	}

	actual, err = i.page.ReadValue(ctx, field)
	if err != nil {
		return VerifiedOutcome{}, fmt.Errorf("failed to read back %s: %w", field.Describe(), err)
	}
	if actual == value {
		log.Info("Value verified after slow entry.", zap.String("value", shown(value)))
		return VerifiedOutcome{Value: actual, Recovered: true, ReadBacks: 2}, nil
	}

	log.Error("Value still mismatched after recovery.", zap.String("expected", shown(value)), zap.String("actual", shown(actual)))
	return VerifiedOutcome{}, &MismatchError{Field: field.Describe(), Expected: shown(value), Actual: shown(actual)}
}

func (i *Interactor) clearAndSettle(ctx context.Context, field dom.Element) error {
	if err := i.page.Clear(ctx, field); err != nil {
		return fmt.Errorf("failed to clear %s: %w", field.Describe(), err)
	}
	return i.settle(ctx, field, "")
}
