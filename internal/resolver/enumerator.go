package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
)

// EnumerateAndScore lists every interactive element inside scope and returns the one
// whose attribute text contains the most keywords. Excluded elements are recorded but
// never scored. Ties go to the earlier element in document order, only usable elements
// can win, and a best score of zero is a NotFoundError. The returned Enumeration holds
// every element seen, whatever the outcome.
func (r *Resolver) EnumerateAndScore(ctx context.Context, scope dom.Element, exclude dom.Exclusion, keywords []string) (*Enumeration, error) {
	if scope.IsZero() {
		return nil, ErrUnscopedEnumeration
	}

	elements, err := r.page.Enumerate(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate elements in %s: %w", scope.Describe(), err)
	}

	kws := normalizeKeywords(keywords)
	enum := &Enumeration{Scope: scope, Keywords: kws, Records: make([]Scored, 0, len(elements))}
	log := r.logger.With(zap.String("scope", scope.Describe()))

	best := -1
	for _, el := range elements {
		if dom.Excluded(exclude, el) {
			enum.Records = append(enum.Records, Scored{Element: el, Skipped: true})
			log.Debug("Skipped excluded element, not scored.", zap.String("element", el.Describe()))
			continue
		}

		score := Score(el.AttributeText(), kws)
		enum.Records = append(enum.Records, Scored{Element: el, Score: score})
		if score > 0 && el.Usable() && (best < 0 || score > enum.Records[best].Score) {
			best = len(enum.Records) - 1
		}
	}

	if best < 0 {
		log.Warn("No enumerated element scored above zero.", zap.Int("enumerated", len(enum.Records)))
		return enum, &NotFoundError{Target: "enumeration", Enumeration: enum}
	}

	winner := enum.Records[best]
	enum.Winner = &winner
	log.Info("Selected element by keyword score.",
		zap.String("element", winner.Element.Describe()),
		zap.Int("score", winner.Score),
		zap.Int("enumerated", len(enum.Records)))
	return enum, nil
}

// Score counts how many keywords occur in text. Keywords must already be lowercased.
func Score(text string, keywords []string) int {
	score := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			score++
		}
	}
	return score
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}
