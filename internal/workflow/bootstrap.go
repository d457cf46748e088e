package workflow

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/locator"
)

// DefaultIACValues are written to the IAC field when none are configured.
var DefaultIACValues = []string{
	"IAC-RAS-DOCKET-VALIDATION",
	"IAC-RAS-DOCKET-LIST",
	"IAC-RAS-DOCKET-TRACK-ALERTS",
}

// Credentials configure the sign-in bootstrap that precedes the workflow.
type Credentials struct {
	URL      string
	Username string
	Password string
	// ClientID defaults to Username when empty.
	ClientID string
	// Gateway selects the gateway environment after sign-in when true.
	Gateway bool
	// IACValues, when non-empty, are saved to the IAC settings page.
	IACValues []string
}

// SignIn loads the target site and completes the sign-in pages. Every failure
// is reported as a NavigationError for the "sign_in" step.
func (d *PageDriver) SignIn(ctx context.Context, j *Journal, creds Credentials) error {
	if err := d.signIn(ctx, j, creds); err != nil {
		var nav *NavigationError
		if errors.As(err, &nav) || ctx.Err() != nil {
			return err
		}
		return &NavigationError{Step: "sign_in", URL: creds.URL, Err: err}
	}
	return nil
}

func (d *PageDriver) signIn(ctx context.Context, j *Journal, creds Credentials) error {
	if err := d.page.Navigate(ctx, creds.URL); err != nil {
		d.capture(ctx, j, "navigate_error")
		return &NavigationError{Step: "navigate", URL: creds.URL, Err: err}
	}
	if err := d.waitReady(ctx, j, "sign_in_page"); err != nil {
		return err
	}

	if err := d.enter(ctx, j, locator.Username, creds.Username, true); err != nil {
		return err
	}
	if err := d.enter(ctx, j, locator.Password, creds.Password, true); err != nil {
		return err
	}
	if err := d.click(ctx, j, locator.SignIn, nil); err != nil {
		return err
	}
	if err := d.waitReady(ctx, j, "client_id_page"); err != nil {
		return err
	}

	clientID := creds.ClientID
	if clientID == "" {
		clientID = creds.Username
	}
	if err := d.enter(ctx, j, locator.ClientID, clientID, true); err != nil {
		return err
	}
	if err := d.click(ctx, j, locator.ClientIDContinue, nil); err != nil {
		return err
	}
	if err := d.waitReady(ctx, j, "home_page"); err != nil {
		return err
	}

	if creds.Gateway {
		if err := d.choose(ctx, j, locator.GatewaySelect, "true"); err != nil {
			return err
		}
	}
	if len(creds.IACValues) > 0 {
		if err := d.enter(ctx, j, locator.IACField, strings.Join(creds.IACValues, ", "), false); err != nil {
			return err
		}
		if err := d.click(ctx, j, locator.IACSave, nil); err != nil {
			return err
		}
		if err := d.waitReady(ctx, j, "iac_saved"); err != nil {
			return err
		}
	}
	d.logger.Info("Sign-in completed.", zap.Bool("gateway", creds.Gateway), zap.Int("iac_values", len(creds.IACValues)))
	return nil
}
