// internal/resolver/resolver.go
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/locator"
)

const (
	DefaultCandidateTimeout = 2 * time.Second
	DefaultPollInterval     = 100 * time.Millisecond
)

// Options tunes the resolver's bounded waits.
type Options struct {
	// CandidateTimeout caps the time spent waiting on any single candidate.
	CandidateTimeout time.Duration
	// PollInterval is the delay between probes of the same candidate.
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.CandidateTimeout <= 0 {
		o.CandidateTimeout = DefaultCandidateTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Resolver locates target elements on a page from ordered candidate sets.
type Resolver struct {
	page   dom.Page
	clock  dom.Clock
	opts   Options
	logger *zap.Logger
}

// New creates a resolver bound to one page.
func New(page dom.Page, clock dom.Clock, opts Options, logger *zap.Logger) *Resolver {
	if clock == nil {
		clock = dom.RealClock{}
	}
	return &Resolver{
		page:   page,
		clock:  clock,
		opts:   opts.withDefaults(),
		logger: logger.Named("resolver"),
	}
}

// Resolve tries the set's candidates in priority order and returns the first
// usable, non-excluded match. A match rejected by exclude is recorded and the
// resolver moves on to the next candidate without retrying the same one.
//
// Each candidate waits at most CandidateTimeout, clamped to what is left of budget.
// Once budget is spent the remaining candidates still get one immediate probe, so
// the total time is bounded by budget plus one probe per candidate.
func (r *Resolver) Resolve(ctx context.Context, set locator.Set, exclude dom.Exclusion, budget time.Duration) (dom.Element, *Trail, error) {
	trail := &Trail{Target: set.Target}
	log := r.logger.With(zap.String("target", set.Target))
	deadline := r.clock.Now().Add(budget)

	for _, c := range set.Candidates() {
		cand := c
		wait := r.opts.CandidateTimeout
		if remaining := deadline.Sub(r.clock.Now()); remaining < wait {
			wait = max(remaining, 0)
		}

		var (
			match   dom.Element
			findErr error
		)
		err := dom.WaitFor(ctx, r.clock, wait, r.opts.PollInterval, func(ctx context.Context) (bool, error) {
			els, err := r.page.Find(ctx, cand)
			if err != nil {
				// Stale handles and transient script errors are expected while the page settles.
				findErr = err
				return false, nil
			}
			for _, el := range els {
				if el.Usable() {
					match = el
					return true, nil
				}
			}
			return false, nil
		})

		attempt := Attempt{Source: cand.String(), Candidate: &cand, Timestamp: r.clock.Now()}
		switch {
		case err == nil && dom.Excluded(exclude, match):
			attempt.Outcome = OutcomeExcluded
			attempt.Detail = "matched excluded element " + match.Describe()
			trail.add(attempt)
			log.Info("Candidate matched an excluded element, moving on.",
				zap.Stringer("candidate", cand), zap.String("element", match.Describe()))
			continue

		case err == nil:
			attempt.Outcome = OutcomeFound
			attempt.Detail = match.Describe()
			trail.add(attempt)
			log.Debug("Resolved element.", zap.Stringer("candidate", cand), zap.String("element", match.Describe()))
			return match, trail, nil

		case ctx.Err() != nil:
			attempt.Outcome = OutcomeNotFound
			attempt.Detail = ctx.Err().Error()
			trail.add(attempt)
			return dom.Element{}, trail, fmt.Errorf("resolution of '%s' interrupted: %w", set.Target, ctx.Err())

		default:
			attempt.Outcome = OutcomeNotFound
			attempt.Detail = fmt.Sprintf("no usable match within %s", wait)
			if findErr != nil {
				attempt.Detail += ": " + findErr.Error()
			}
			trail.add(attempt)
			log.Debug("Candidate produced no usable match.", zap.Stringer("candidate", cand), zap.Duration("waited", wait))
		}
	}

	log.Warn("All candidates exhausted.", zap.Int("attempts", len(trail.Attempts)))
	return dom.Element{}, trail, &NotFoundError{Target: set.Target, Attempts: trail.Attempts}
}

// Fallback describes the scoped scan used when a set is exhausted.
type Fallback struct {
	Scope    locator.Set
	Keywords []string
}

// ResolveOrEnumerate runs Resolve and, if every candidate is exhausted, resolves the
// fallback scope and scores the interactive elements inside it. The same exclusion
// applies to both stages. Enumerated elements are appended to the returned trail.
func (r *Resolver) ResolveOrEnumerate(ctx context.Context, set locator.Set, exclude dom.Exclusion, budget time.Duration, fb Fallback) (dom.Element, *Trail, error) {
	el, trail, err := r.Resolve(ctx, set, exclude, budget)
	var nf *NotFoundError
	if err == nil || !errors.As(err, &nf) {
		return el, trail, err
	}

	r.logger.Info("Falling back to scoped enumeration.", zap.String("target", set.Target), zap.String("scope", fb.Scope.Target))
	scope, scopeTrail, err := r.Resolve(ctx, fb.Scope, nil, budget)
	trail.Attempts = append(trail.Attempts, scopeTrail.Attempts...)
	if err != nil {
		if errors.As(err, &nf) {
			return dom.Element{}, trail, &NotFoundError{Target: set.Target, Attempts: trail.Attempts}
		}
		return dom.Element{}, trail, err
	}

	enum, err := r.EnumerateAndScore(ctx, scope, exclude, fb.Keywords)
	if enum != nil {
		trail.Attempts = append(trail.Attempts, enumerationAttempts(enum, r.clock.Now())...)
	}
	if err != nil {
		if errors.As(err, &nf) {
			nf.Target = set.Target
			nf.Attempts = trail.Attempts
		}
		return dom.Element{}, trail, err
	}
	return enum.Winner.Element, trail, nil
}

func enumerationAttempts(e *Enumeration, at time.Time) []Attempt {
	out := make([]Attempt, 0, len(e.Records))
	for _, rec := range e.Records {
		a := Attempt{
			Source:    fmt.Sprintf("enumerated:%d", rec.Element.Index),
			Outcome:   OutcomeNotFound,
			Detail:    fmt.Sprintf("%s score=%d", rec.Element.Describe(), rec.Score),
			Timestamp: at,
		}
		switch {
		case rec.Skipped:
			a.Outcome = OutcomeExcluded
		case e.Winner != nil && rec.Element.Handle == e.Winner.Element.Handle:
			a.Outcome = OutcomeFound
		}
		out = append(out, a)
	}
	return out
}
