package workflow

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/locator"
)

// CompleteFollowUp fills and saves the docket alert form. Settings are
// validated before the first interaction.
func (d *PageDriver) CompleteFollowUp(ctx context.Context, j *Journal, a AlertSettings) error {
	if err := a.Validate(); err != nil {
		return err
	}
	times := make([]locator.Set, 0, len(a.Times))
	for _, t := range a.Times {
		set, err := locator.AlertTimeCheckbox(t)
		if err != nil {
			return err
		}
		times = append(times, set)
	}

	// Basics
	if err := d.enter(ctx, j, locator.AlertName, a.Name, false); err != nil {
		return err
	}
	if a.Description != "" {
		if err := d.enter(ctx, j, locator.AlertDescription, a.Description, false); err != nil {
			return err
		}
	}
	if err := d.click(ctx, j, locator.BasicsContinue, nil); err != nil {
		return err
	}

	// Content and search
	for _, set := range []locator.Set{locator.AllContentTab, locator.ContentContinue, locator.NewFilingsOption, locator.SearchContinue} {
		if err := d.click(ctx, j, set, nil); err != nil {
			return err
		}
	}

	// Delivery
	if err := d.click(ctx, j, locator.ContactsWidget, nil); err != nil {
		return err
	}
	if err := d.addContact(ctx, j, a.Email); err != nil {
		return err
	}
	if err := d.click(ctx, j, locator.DeliveryContinue, nil); err != nil {
		return err
	}

	// Schedule
	if err := d.choose(ctx, j, locator.FrequencySelect, strings.ToLower(a.Frequency)); err != nil {
		return err
	}
	for _, set := range times {
		if err := d.click(ctx, j, set, nil); err != nil {
			return err
		}
	}
	if err := d.click(ctx, j, locator.SaveAlert, nil); err != nil {
		return err
	}
	d.logger.Info("Docket alert saved.",
		zap.String("alert_name", a.Name),
		zap.String("frequency", a.Frequency),
		zap.Strings("times", a.Times))
	return nil
}

// addContact types the address into the autosuggest input and confirms it with Enter.
func (d *PageDriver) addContact(ctx context.Context, j *Journal, email string) error {
	if err := d.enter(ctx, j, locator.ContactsInput, email, false); err != nil {
		return err
	}
	el, err := d.resolve(ctx, j, locator.ContactsInput, nil)
	if err != nil {
		return err
	}
	if err := d.page.PressEnter(ctx, el); err != nil {
		d.capture(ctx, j, locator.ContactsInput.Target+"_error")
		return err
	}
	return nil
}
