package workflow

import (
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"github.com/xkilldash9x/docketpilot/internal/locator"
)

// ErrInvalidInput is wrapped by every rejected trigger input.
var ErrInvalidInput = errors.New("invalid input")

// Selection accumulates the user's choices across phases.
type Selection struct {
	Category        string `json:"category,omitempty"`
	SubJurisdiction string `json:"sub_jurisdiction,omitempty"`
	SubRegion       string `json:"sub_region,omitempty"`
	Identifier      string `json:"identifier,omitempty"`
}

// IsEmpty reports whether nothing has been chosen.
func (s Selection) IsEmpty() bool {
	return s == Selection{}
}

// Input carries the values attached to a trigger.
type Input struct {
	Category        string         `json:"category,omitempty"`
	SubJurisdiction string         `json:"sub_jurisdiction,omitempty"`
	SubRegion       string         `json:"sub_region,omitempty"`
	Identifier      string         `json:"identifier,omitempty"`
	Alert           *AlertSettings `json:"alert,omitempty"`
}

// AlertSettings are the values submitted on the alert setup form.
type AlertSettings struct {
	Name        string   `json:"alert_name"`
	Description string   `json:"alert_description,omitempty"`
	Email       string   `json:"user_email"`
	Frequency   string   `json:"frequency"`
	Times       []string `json:"alert_times"`
}

// Validate rejects settings the form cannot accept before any interaction starts.
func (a AlertSettings) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: alert name is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return fmt.Errorf("%w: user email '%s' is not a valid address", ErrInvalidInput, a.Email)
	}
	if !slices.Contains(locator.AlertFrequencies, strings.ToLower(a.Frequency)) {
		return fmt.Errorf("%w: frequency must be one of %s", ErrInvalidInput, strings.Join(locator.AlertFrequencies, ", "))
	}
	if len(a.Times) == 0 {
		return fmt.Errorf("%w: at least one alert time is required", ErrInvalidInput)
	}
	for _, t := range a.Times {
		if _, ok := locator.AlertTimeCheckboxes[strings.ToLower(t)]; !ok {
			return fmt.Errorf("%w: unknown alert time '%s'", ErrInvalidInput, t)
		}
	}
	return nil
}

func require(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	return nil
}
