// internal/browser/snapshot/css.go
package snapshot

import (
	"fmt"
	"strings"
)

// cssToXPath translates the CSS subset used by locator tables into XPath 1.0:
// type, universal, id, class and attribute selectors (=, *=, ^=, $=, ~=, |=),
// descendant and child combinators, and selector groups.
func cssToXPath(css string) (string, error) {
	css = strings.TrimSpace(css)
	if css == "" {
		return "", fmt.Errorf("empty selector")
	}
	groups, err := splitOutside(css, ',')
	if err != nil {
		return "", err
	}
	paths := make([]string, 0, len(groups))
	for _, g := range groups {
		p, err := complexToXPath(strings.TrimSpace(g))
		if err != nil {
			return "", fmt.Errorf("selector %q: %w", css, err)
		}
		paths = append(paths, p)
	}
	return strings.Join(paths, " | "), nil
}

// complexToXPath handles one comma-free selector.
func complexToXPath(sel string) (string, error) {
	if sel == "" {
		return "", fmt.Errorf("empty selector in group")
	}
	var (
		b    strings.Builder
		axis = "//"
	)
	for i := 0; i < len(sel); {
		switch c := sel[i]; {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '>':
			if axis == "/" || b.Len() == 0 {
				return "", fmt.Errorf("unexpected '>'")
			}
			axis = "/"
			i++
		default:
			end, err := compoundEnd(sel, i)
			if err != nil {
				return "", err
			}
			step, err := compoundToStep(sel[i:end])
			if err != nil {
				return "", err
			}
			b.WriteString(axis)
			b.WriteString(step)
			axis = "//"
			i = end
		}
	}
	if axis == "/" {
		return "", fmt.Errorf("dangling '>'")
	}
	return b.String(), nil
}

// compoundEnd returns the index just past the compound selector starting at i.
func compoundEnd(sel string, i int) (int, error) {
	depth, quote := 0, byte(0)
	for ; i < len(sel); i++ {
		c := sel[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case depth == 0 && (c == ' ' || c == '\t' || c == '\n' || c == '>'):
			return i, nil
		}
	}
	if depth != 0 || quote != 0 {
		return 0, fmt.Errorf("unbalanced brackets or quotes")
	}
	return i, nil
}

func compoundToStep(compound string) (string, error) {
	tag := "*"
	var predicates []string

	i := 0
	if n := identLen(compound); n > 0 {
		tag = strings.ToLower(compound[:n])
		i = n
	} else if strings.HasPrefix(compound, "*") {
		i = 1
	}

	for i < len(compound) {
		switch compound[i] {
		case '#':
			n := identLen(compound[i+1:])
			if n == 0 {
				return "", fmt.Errorf("empty id in %q", compound)
			}
			predicates = append(predicates, "@id="+xpathLiteral(compound[i+1:i+1+n]))
			i += 1 + n
		case '.':
			n := identLen(compound[i+1:])
			if n == 0 {
				return "", fmt.Errorf("empty class in %q", compound)
			}
			predicates = append(predicates, wordMatch("class", compound[i+1:i+1+n]))
			i += 1 + n
		case '[':
			end := attributeEnd(compound, i)
			if end < 0 {
				return "", fmt.Errorf("unterminated attribute selector in %q", compound)
			}
			pred, err := attributePredicate(compound[i+1 : end])
			if err != nil {
				return "", err
			}
			predicates = append(predicates, pred)
			i = end + 1
		default:
			return "", fmt.Errorf("unsupported syntax %q", compound[i:])
		}
	}

	if len(predicates) == 0 {
		return tag, nil
	}
	return tag + "[" + strings.Join(predicates, " and ") + "]", nil
}

// attributeEnd returns the index of the ']' closing the attribute selector at open.
func attributeEnd(s string, open int) int {
	var quote byte
	for j := open + 1; j < len(s); j++ {
		switch c := s[j]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ']':
			return j
		}
	}
	return -1
}

func attributePredicate(body string) (string, error) {
	body = strings.TrimSpace(body)
	opAt := strings.IndexAny(body, "=*^$~|")
	if opAt < 0 {
		if identLen(body) != len(body) || body == "" {
			return "", fmt.Errorf("invalid attribute name %q", body)
		}
		return "@" + strings.ToLower(body), nil
	}

	name := strings.ToLower(strings.TrimSpace(body[:opAt]))
	if name == "" || identLen(name) != len(name) {
		return "", fmt.Errorf("invalid attribute name %q", name)
	}
	op := body[opAt : opAt+1]
	rest := body[opAt+1:]
	if op != "=" {
		if !strings.HasPrefix(rest, "=") {
			return "", fmt.Errorf("invalid attribute operator in %q", body)
		}
		rest = rest[1:]
	}
	value := unquote(strings.TrimSpace(rest))
	attr, lit := "@"+name, xpathLiteral(value)

	switch op {
	case "=":
		return attr + "=" + lit, nil
	case "*":
		return "contains(" + attr + "," + lit + ")", nil
	case "^":
		return "starts-with(" + attr + "," + lit + ")", nil
	case "$":
		return fmt.Sprintf("substring(%s,string-length(%s)-%d)=%s", attr, attr, len(value)-1, lit), nil
	case "~":
		return wordMatch(name, value), nil
	default: // "|"
		return fmt.Sprintf("(%s=%s or starts-with(%s,%s))", attr, lit, attr, xpathLiteral(value+"-")), nil
	}
}

func wordMatch(attr, word string) string {
	return fmt.Sprintf("contains(concat(' ',normalize-space(@%s),' '),%s)", attr, xpathLiteral(" "+word+" "))
}

// identLen returns the length of the CSS identifier at the start of s.
func identLen(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '-' || c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80 {
			continue
		}
		return i
	}
	return len(s)
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

// splitOutside splits s on sep where sep is not inside brackets or quotes.
func splitOutside(s string, sep byte) ([]string, error) {
	var (
		out          []string
		start, depth int
		quote        byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			depth--
		case c == sep && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if depth != 0 || quote != 0 {
		return nil, fmt.Errorf("unbalanced brackets or quotes in %q", s)
	}
	return append(out, s[start:]), nil
}
