// internal/browser/snapshot/inspect.go
package snapshot

import (
	"context"
	"sort"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/locator"
)

// CandidateReport describes what one candidate matches on a page.
type CandidateReport struct {
	Candidate locator.Candidate `json:"candidate" yaml:"candidate"`
	Matches   int               `json:"matches" yaml:"matches"`
	Usable    int               `json:"usable" yaml:"usable"`
	Excluded  int               `json:"excluded" yaml:"excluded"`
	// First is the first usable, non-excluded match.
	First *dom.Element `json:"first,omitempty" yaml:"first,omitempty"`
	Error string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// TargetReport covers every candidate of one target.
type TargetReport struct {
	Target     string            `json:"target" yaml:"target"`
	Candidates []CandidateReport `json:"candidates" yaml:"candidates"`
	// Winner is the candidate resolution would pick, if any.
	Winner *locator.Candidate `json:"winner,omitempty" yaml:"winner,omitempty"`
}

// Resolved reports whether any candidate would win.
func (r TargetReport) Resolved() bool { return r.Winner != nil }

// Inspect probes every candidate of every set once, without waiting. exclusions
// maps a target name to the exclusion applied when resolving it. Reports are
// sorted by target name.
func Inspect(ctx context.Context, page dom.Page, sets []locator.Set, exclusions map[string]dom.Exclusion) ([]TargetReport, error) {
	reports := make([]TargetReport, 0, len(sets))
	for _, set := range sets {
		exclude := exclusions[set.Target]
		report := TargetReport{Target: set.Target}
		for _, c := range set.Candidates() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			cr := CandidateReport{Candidate: c}
			found, err := page.Find(ctx, c)
			if err != nil {
				cr.Error = err.Error()
				report.Candidates = append(report.Candidates, cr)
				continue
			}
			cr.Matches = len(found)
			for _, el := range found {
				if dom.Excluded(exclude, el) {
					cr.Excluded++
					continue
				}
				if !el.Usable() {
					continue
				}
				cr.Usable++
				if cr.First == nil {
					el := el
					cr.First = &el
				}
			}
			if cr.First != nil && report.Winner == nil {
				winner := c
				report.Winner = &winner
			}
			report.Candidates = append(report.Candidates, cr)
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Target < reports[j].Target })
	return reports, nil
}
