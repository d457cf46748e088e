// internal/locator/candidate.go
package locator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Strategy names the mechanism used to find an element on the live page.
type Strategy string

const (
	// ByIdentifier matches the element whose id attribute equals the expression.
	ByIdentifier Strategy = "byIdentifier"
	// ByName matches elements whose name attribute equals the expression.
	ByName Strategy = "byName"
	// ByAttributeMatch treats the expression as a CSS selector.
	ByAttributeMatch Strategy = "byAttributeMatch"
	// ByTextContent matches elements by their own text. The expression accepts an
	// optional "tag::" prefix and a leading "=" for exact matching.
	ByTextContent Strategy = "byTextContent"
	// ByStructuralPath treats the expression as an XPath.
	ByStructuralPath Strategy = "byStructuralPath"
)

// IsValid reports whether s is one of the known strategies.
func (s Strategy) IsValid() bool {
	switch s {
	case ByIdentifier, ByName, ByAttributeMatch, ByTextContent, ByStructuralPath:
		return true
	}
	return false
}

// AllStrategies returns every known strategy.
func AllStrategies() []Strategy {
	return []Strategy{ByIdentifier, ByName, ByAttributeMatch, ByTextContent, ByStructuralPath}
}

var (
	// ErrInvalidCandidate is wrapped by every candidate validation failure.
	ErrInvalidCandidate = errors.New("invalid locator candidate")
	// ErrEmptySet is returned when a set is built without candidates.
	ErrEmptySet = errors.New("locator set has no candidates")
)

// Candidate is one way of describing a target element.
type Candidate struct {
	Strategy   Strategy `json:"strategy" yaml:"strategy"`
	Expression string   `json:"expression" yaml:"expression"`
	Priority   int      `json:"priority" yaml:"priority"`
}

// String renders the candidate in the form used by logs and attempt trails.
func (c Candidate) String() string {
	return fmt.Sprintf("%d:%s=%s", c.Priority, c.Strategy, c.Expression)
}

// Validate checks the candidate in isolation.
func (c Candidate) Validate() error {
	if !c.Strategy.IsValid() {
		return fmt.Errorf("%w: unknown strategy '%s'", ErrInvalidCandidate, c.Strategy)
	}
	expr := c.Expression
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("%w: empty expression for strategy %s", ErrInvalidCandidate, c.Strategy)
	}
	if strings.TrimSpace(expr) != expr {
		return fmt.Errorf("%w: expression '%s' has surrounding whitespace", ErrInvalidCandidate, expr)
	}
	if c.Priority <= 0 {
		return fmt.Errorf("%w: priority must be positive, got %d", ErrInvalidCandidate, c.Priority)
	}

	switch c.Strategy {
	case ByIdentifier, ByName:
		if strings.ContainsAny(expr, " \t\n#") {
			return fmt.Errorf("%w: %s expression '%s' must be a bare attribute value", ErrInvalidCandidate, c.Strategy, expr)
		}
	case ByStructuralPath:
		if !strings.HasPrefix(expr, "/") && !strings.HasPrefix(expr, "(") {
			return fmt.Errorf("%w: structural path '%s' must be an absolute XPath", ErrInvalidCandidate, expr)
		}
	case ByTextContent:
		_, text, _ := ParseTextExpression(expr)
		if text == "" {
			return fmt.Errorf("%w: text expression '%s' has no text to match", ErrInvalidCandidate, expr)
		}
	}
	return nil
}

// ParseTextExpression splits a ByTextContent expression into its optional tag,
// the text to match and whether the match is exact.
func ParseTextExpression(expr string) (tag, text string, exact bool) {
	text = expr
	if i := strings.Index(text, "::"); i > 0 {
		tag = strings.ToLower(text[:i])
		text = text[i+2:]
	}
	if strings.HasPrefix(text, "=") {
		exact = true
		text = text[1:]
	}
	return tag, strings.TrimSpace(text), exact
}

// Set is an ordered, validated list of candidates for one logical target.
type Set struct {
	Target     string
	candidates []Candidate
}

// NewSet validates the candidates and orders them by priority. Priorities must be
// unique so that resolution order is a total order.
func NewSet(target string, candidates ...Candidate) (Set, error) {
	if strings.TrimSpace(target) == "" {
		return Set{}, fmt.Errorf("%w: target name is required", ErrInvalidCandidate)
	}
	if len(candidates) == 0 {
		return Set{}, fmt.Errorf("%w: %s", ErrEmptySet, target)
	}

	seen := make(map[int]Candidate, len(candidates))
	ordered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			return Set{}, fmt.Errorf("target '%s': %w", target, err)
		}
		if prev, dup := seen[c.Priority]; dup {
			return Set{}, fmt.Errorf("%w: target '%s' has duplicate priority %d (%s and %s)",
				ErrInvalidCandidate, target, c.Priority, prev, c)
		}
		seen[c.Priority] = c
		ordered = append(ordered, c)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return Set{Target: target, candidates: ordered}, nil
}

// Ordered builds a set whose priorities follow argument order, starting at 1.
func Ordered(target string, candidates ...Candidate) (Set, error) {
	numbered := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Priority = i + 1
		numbered[i] = c
	}
	return NewSet(target, numbered...)
}

// Candidates returns a copy of the ordered candidates.
func (s Set) Candidates() []Candidate {
	out := make([]Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Len returns the number of candidates in the set.
func (s Set) Len() int { return len(s.candidates) }

// Shorthand constructors for table literals. Priority is assigned by Ordered.

func ID(v string) Candidate    { return Candidate{Strategy: ByIdentifier, Expression: v} }
func Name(v string) Candidate  { return Candidate{Strategy: ByName, Expression: v} }
func CSS(v string) Candidate   { return Candidate{Strategy: ByAttributeMatch, Expression: v} }
func Text(v string) Candidate  { return Candidate{Strategy: ByTextContent, Expression: v} }
func XPath(v string) Candidate { return Candidate{Strategy: ByStructuralPath, Expression: v} }
