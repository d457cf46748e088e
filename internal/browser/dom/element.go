// internal/browser/dom/element.go
package dom

import (
	"fmt"
	"strings"
)

// Element is a transient reference to a live element plus the attributes observed
// when it was located. It is valid only until the page navigates and must not be
// kept across phases.
type Element struct {
	// Handle is the page-specific reference used for follow-up actions.
	Handle    string `json:"handle"`
	Tag       string `json:"tag"`
	ID        string `json:"id,omitempty"`
	Class     string `json:"class,omitempty"`
	Name      string `json:"name,omitempty"`
	AriaLabel string `json:"ariaLabel,omitempty"`
	Text      string `json:"text,omitempty"`
	Href      string `json:"href,omitempty"`
	Type      string `json:"type,omitempty"`
	Visible   bool   `json:"visible"`
	Enabled   bool   `json:"enabled"`
	// Index is the element's position in document order within its query.
	Index int `json:"index"`
}

// IsZero reports whether e refers to no element.
func (e Element) IsZero() bool { return e.Handle == "" }

// Usable reports whether the element can be interacted with.
func (e Element) Usable() bool { return e.Visible && e.Enabled }

// AttributeText joins the identifying attributes used for scoring and exclusion:
// identifier, class list, accessible label and visible text, lowercased.
func (e Element) AttributeText() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{e.ID, e.Class, e.AriaLabel, e.Text} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Describe renders a short, log-friendly description of the element.
func (e Element) Describe() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(e.Tag))
	if e.ID != "" {
		b.WriteString("#" + e.ID)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, "[name=%s]", e.Name)
	}
	if e.AriaLabel != "" {
		fmt.Fprintf(&b, "[aria-label=%s]", e.AriaLabel)
	}
	if t := truncate(e.Text, 40); t != "" {
		fmt.Fprintf(&b, " %q", t)
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := 0
	for i := range s {
		if runes == n {
			return s[:i] + "..."
		}
		runes++
	}
	return s
}

// Exclusion disqualifies an element that otherwise matches.
type Exclusion interface {
	Excludes(el Element) bool
}

// ExclusionFunc adapts a function to Exclusion.
type ExclusionFunc func(el Element) bool

// Excludes calls f.
func (f ExclusionFunc) Excludes(el Element) bool { return f(el) }

// ExcludeTokens excludes elements whose attribute text contains any of the tokens,
// compared case-insensitively.
type ExcludeTokens []string

// Excludes implements Exclusion.
func (t ExcludeTokens) Excludes(el Element) bool {
	text := el.AttributeText()
	for _, tok := range t {
		if tok = strings.ToLower(strings.TrimSpace(tok)); tok != "" && strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

// Excluded applies an optional exclusion.
func Excluded(ex Exclusion, el Element) bool {
	return ex != nil && ex.Excludes(el)
}
