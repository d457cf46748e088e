package checkpoint

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

const redacted = "***"

// RedactPageSource removes script bodies and masks password values and hidden
// token inputs so a page dump can be kept alongside the logs.
func RedactPageSource(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("failed to parse page source: %w", err)
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script":
				for c := n.FirstChild; c != nil; {
					next := c.NextSibling
					n.RemoveChild(c)
					c = next
				}
			case "input":
				if shouldMask(n) {
					setAttr(n, "value", redacted)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		return "", fmt.Errorf("failed to render page source: %w", err)
	}
	return b.String(), nil
}

func shouldMask(n *html.Node) bool {
	typ := strings.ToLower(attr(n, "type"))
	if typ == "password" {
		return true
	}
	if typ == "hidden" {
		name := strings.ToLower(attr(n, "name"))
		return strings.Contains(name, "token") || strings.Contains(name, "csrf")
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// setAttr overwrites an existing attribute. A missing attribute has nothing to leak
// and is left absent.
func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
}
