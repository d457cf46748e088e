// internal/resolver/trail.go
package resolver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/locator"
)

// Outcome is the result of trying one candidate or enumerated element.
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "notFound"
	OutcomeExcluded Outcome = "excluded"
)

// ErrUnscopedEnumeration is returned when fallback enumeration is asked to scan
// without a bounding scope element.
var ErrUnscopedEnumeration = errors.New("fallback enumeration requires a scope element")

// Attempt is one entry of the diagnostic trail of a resolution call.
type Attempt struct {
	// Source is the candidate description, or "enumerated:<index>" for fallback elements.
	Source    string             `json:"source"`
	Candidate *locator.Candidate `json:"candidate,omitempty"`
	Outcome   Outcome            `json:"outcome"`
	Detail    string             `json:"detail,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Trail is the ordered attempt history of one resolution call.
type Trail struct {
	Target   string    `json:"target"`
	Attempts []Attempt `json:"attempts"`
}

func (t *Trail) add(a Attempt) {
	t.Attempts = append(t.Attempts, a)
}

// Outcomes lists the outcome of every attempt in order.
func (t *Trail) Outcomes() []Outcome {
	if t == nil {
		return nil
	}
	out := make([]Outcome, len(t.Attempts))
	for i, a := range t.Attempts {
		out[i] = a.Outcome
	}
	return out
}

// Scored is one enumerated element with its keyword score.
type Scored struct {
	Element dom.Element `json:"element"`
	Score   int         `json:"score"`
	// Skipped marks excluded elements, which are never scored.
	Skipped bool `json:"skipped"`
}

// Enumeration is the full record of a fallback scan.
type Enumeration struct {
	Scope    dom.Element `json:"scope"`
	Keywords []string    `json:"keywords"`
	Records  []Scored    `json:"records"`
	Winner   *Scored     `json:"winner,omitempty"`
}

// NotFoundError reports that no candidate or enumerated element could be used.
type NotFoundError struct {
	Target      string
	Attempts    []Attempt
	Enumeration *Enumeration
}

func (e *NotFoundError) Error() string {
	if e.Enumeration != nil {
		return fmt.Sprintf("no element for '%s' scored above zero among %d enumerated elements",
			e.Target, len(e.Enumeration.Records))
	}
	var excluded int
	for _, a := range e.Attempts {
		if a.Outcome == OutcomeExcluded {
			excluded++
		}
	}
	return fmt.Sprintf("element '%s' not found after %d candidates (%d excluded): %s",
		e.Target, len(e.Attempts), excluded, summarize(e.Attempts))
}

func summarize(attempts []Attempt) string {
	parts := make([]string, len(attempts))
	for i, a := range attempts {
		parts[i] = a.Source + "=" + string(a.Outcome)
	}
	return strings.Join(parts, ", ")
}
