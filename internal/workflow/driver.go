// internal/workflow/driver.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/checkpoint"
	"github.com/xkilldash9x/docketpilot/internal/interaction"
	"github.com/xkilldash9x/docketpilot/internal/locator"
	"github.com/xkilldash9x/docketpilot/internal/resolver"
)

// Driver performs the page work behind each trigger. A Session calls at most one
// Driver method at a time.
type Driver interface {
	SignIn(ctx context.Context, j *Journal, creds Credentials) error
	ChooseCategory(ctx context.Context, j *Journal, category string) error
	ChooseSubJurisdiction(ctx context.Context, j *Journal, subJurisdiction string) error
	ChooseSubRegion(ctx context.Context, j *Journal, subJurisdiction, subRegion string) error
	EnterIdentifier(ctx context.Context, j *Journal, identifier string) error
	TriggerFollowUp(ctx context.Context, j *Journal) error
	CompleteFollowUp(ctx context.Context, j *Journal, alert AlertSettings) error
}

// Timing bounds the waits a PageDriver performs.
type Timing struct {
	// ResolutionBudget is the total time one target may spend across its candidates.
	ResolutionBudget time.Duration
	// NavigationTimeout bounds each wait for a page to finish loading.
	NavigationTimeout time.Duration
	// MaxOverlays caps how many dismissible overlays are closed before a submit.
	MaxOverlays int
}

const (
	defaultResolutionBudget  = 10 * time.Second
	defaultNavigationTimeout = 20 * time.Second
	defaultMaxOverlays       = 3
)

func (t Timing) withDefaults() Timing {
	if t.ResolutionBudget <= 0 {
		t.ResolutionBudget = defaultResolutionBudget
	}
	if t.NavigationTimeout <= 0 {
		t.NavigationTimeout = defaultNavigationTimeout
	}
	if t.MaxOverlays <= 0 {
		t.MaxOverlays = defaultMaxOverlays
	}
	return t
}

// PageDriver implements Driver against a live dom.Page.
type PageDriver struct {
	page       dom.Page
	resolver   *resolver.Resolver
	interactor *interaction.Interactor
	recorder   checkpoint.Recorder
	timing     Timing
	logger     *zap.Logger
}

// NewPageDriver wires the resolution and interaction layers for one page.
func NewPageDriver(page dom.Page, res *resolver.Resolver, inter *interaction.Interactor, rec checkpoint.Recorder, timing Timing, logger *zap.Logger) *PageDriver {
	if rec == nil {
		rec = checkpoint.Nop{}
	}
	return &PageDriver{
		page:       page,
		resolver:   res,
		interactor: inter,
		recorder:   rec,
		timing:     timing.withDefaults(),
		logger:     logger.Named("driver"),
	}
}

// ChooseCategory opens the content type menu and picks a docket category.
func (d *PageDriver) ChooseCategory(ctx context.Context, j *Journal, category string) error {
	link, err := locator.CategoryLink(category)
	if err != nil {
		return err
	}
	if err := d.waitReady(ctx, j, "content_types"); err != nil {
		return err
	}
	for _, set := range []locator.Set{locator.ContentTypesTab, locator.DocketsOption, link} {
		if err := d.click(ctx, j, set, nil); err != nil {
			return err
		}
	}
	return d.waitReady(ctx, j, link.Target)
}

// ChooseSubJurisdiction picks the state link on the category page.
func (d *PageDriver) ChooseSubJurisdiction(ctx context.Context, j *Journal, subJurisdiction string) error {
	link, err := locator.SubJurisdictionLink(subJurisdiction)
	if err != nil {
		return err
	}
	if err := d.click(ctx, j, link, nil); err != nil {
		return err
	}
	return d.waitReady(ctx, j, link.Target)
}

// ChooseSubRegion picks the district link on the state page.
func (d *PageDriver) ChooseSubRegion(ctx context.Context, j *Journal, subJurisdiction, subRegion string) error {
	link, err := locator.SubRegionLink(subJurisdiction, subRegion)
	if err != nil {
		return err
	}
	if err := d.click(ctx, j, link, nil); err != nil {
		return err
	}
	return d.waitReady(ctx, j, link.Target)
}

// EnterIdentifier types the docket number, verifies it and submits the search.
// The submit control is resolved with decoy exclusion, falling back to scoring
// the controls in the page header.
func (d *PageDriver) EnterIdentifier(ctx context.Context, j *Journal, identifier string) error {
	if err := d.enter(ctx, j, locator.IdentifierInput, identifier, false); err != nil {
		return err
	}
	d.dismissOverlays(ctx, j)

	fb := resolver.Fallback{Scope: locator.SearchScope, Keywords: locator.SearchKeywords}
	submit, trail, err := d.resolver.ResolveOrEnumerate(ctx, locator.SearchSubmit, dom.ExcludeTokens(locator.DecoyTokens), d.timing.ResolutionBudget, fb)
	j.addTrail(trail)
	if err != nil {
		d.capture(ctx, j, locator.SearchSubmit.Target+"_not_found")
		return err
	}
	if err := d.activate(ctx, j, locator.SearchSubmit.Target, submit); err != nil {
		return err
	}
	return d.waitReady(ctx, j, "search_results")
}

// TriggerFollowUp opens the alert creation form from the results page.
func (d *PageDriver) TriggerFollowUp(ctx context.Context, j *Journal) error {
	for _, set := range []locator.Set{locator.AlertMenu, locator.CreateAlert} {
		if err := d.click(ctx, j, set, nil); err != nil {
			return err
		}
	}
	return d.waitReady(ctx, j, "alert_form")
}

// -- shared step helpers --

// resolve runs the resolver and records a not-found checkpoint on failure.
func (d *PageDriver) resolve(ctx context.Context, j *Journal, set locator.Set, exclude dom.Exclusion) (dom.Element, error) {
	el, trail, err := d.resolver.Resolve(ctx, set, exclude, d.timing.ResolutionBudget)
	j.addTrail(trail)
	if err != nil {
		d.capture(ctx, j, set.Target+"_not_found")
		return dom.Element{}, err
	}
	return el, nil
}

func (d *PageDriver) click(ctx context.Context, j *Journal, set locator.Set, exclude dom.Exclusion) error {
	el, err := d.resolve(ctx, j, set, exclude)
	if err != nil {
		return err
	}
	return d.activate(ctx, j, set.Target, el)
}

func (d *PageDriver) activate(ctx context.Context, j *Journal, step string, el dom.Element) error {
	d.capture(ctx, j, "before_"+step)
	if err := d.interactor.Activate(ctx, el); err != nil {
		d.capture(ctx, j, step+"_error")
		return err
	}
	d.capture(ctx, j, "after_"+step)
	return nil
}

// enter resolves a field and writes value into it with read-back verification.
func (d *PageDriver) enter(ctx context.Context, j *Journal, set locator.Set, value string, secret bool) error {
	el, err := d.resolve(ctx, j, set, nil)
	if err != nil {
		return err
	}
	d.capture(ctx, j, "before_"+set.Target)
	if secret {
		_, err = d.interactor.EnterSecret(ctx, el, value)
	} else {
		_, err = d.interactor.EnterVerified(ctx, el, value)
	}
	if err != nil {
		d.capture(ctx, j, set.Target+"_error")
		return err
	}
	d.capture(ctx, j, "after_"+set.Target)
	return nil
}

// choose resolves a select control and picks value.
func (d *PageDriver) choose(ctx context.Context, j *Journal, set locator.Set, value string) error {
	el, err := d.resolve(ctx, j, set, nil)
	if err != nil {
		return err
	}
	d.capture(ctx, j, "before_"+set.Target)
	if err := d.page.SelectOption(ctx, el, value); err != nil {
		d.capture(ctx, j, set.Target+"_error")
		return fmt.Errorf("failed to select '%s' on %s: %w", value, set.Target, err)
	}
	d.capture(ctx, j, "after_"+set.Target)
	return nil
}

func (d *PageDriver) waitReady(ctx context.Context, j *Journal, step string) error {
	err := d.page.WaitReady(ctx, d.timing.NavigationTimeout)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	d.capture(ctx, j, step+"_error")
	url, _ := d.page.URL(ctx)
	return &NavigationError{Step: step, URL: url, Err: err}
}

// dismissOverlays closes interstitials that would intercept the next click.
// Absence of an overlay is the normal case and is not recorded as a failure.
func (d *PageDriver) dismissOverlays(ctx context.Context, j *Journal) {
	for i := 0; i < d.timing.MaxOverlays; i++ {
		el, _, err := d.resolver.Resolve(ctx, locator.OverlayClose, nil, 0)
		if err != nil {
			var nf *resolver.NotFoundError
			if !errors.As(err, &nf) {
				d.logger.Debug("Overlay probe failed.", zap.Error(err))
			}
			return
		}
		d.logger.Info("Dismissing overlay.", zap.String("element", el.Describe()))
		if err := d.activate(ctx, j, locator.OverlayClose.Target, el); err != nil {
			d.logger.Warn("Could not dismiss overlay.", zap.Error(err))
			return
		}
	}
}

func (d *PageDriver) capture(ctx context.Context, j *Journal, label string) {
	d.recorder.Capture(ctx, label)
	j.addCheckpoint(label)
}
