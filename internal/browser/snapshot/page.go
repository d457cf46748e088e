// internal/browser/snapshot/page.go
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/locator"
)

// ErrReadOnly is returned by every operation that would change a snapshot.
var ErrReadOnly = errors.New("snapshot pages are read-only")

const maxTextLen = 200

// Matches the live page helper's interactive element list.
const interactiveXPath = `.//a[@href] | .//button[not(@disabled)] | .//*[@onclick] |
	.//*[@role='button' or @role='link'] |
	.//input[not(@disabled) and not(@readonly) and not(@type='hidden')] |
	.//textarea | .//select | .//summary | .//details | .//*[@tabindex]`

// Page is a dom.Page over a saved HTML document, typically a page-source dump
// written by the checkpoint recorder. Element handles are structural XPaths.
type Page struct {
	url string
	doc *html.Node

	mu    sync.Mutex
	nodes map[string]*html.Node
}

var _ dom.Page = (*Page)(nil)

// Parse reads an HTML document. url is what URL reports.
func Parse(r io.Reader, url string) (*Page, error) {
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Page{url: url, doc: doc, nodes: make(map[string]*html.Node)}, nil
}

// Load parses the HTML file at path.
func Load(path string) (*Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return Parse(f, "file://"+filepath.ToSlash(abs))
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return fmt.Errorf("%w: cannot navigate to %s", ErrReadOnly, url)
}

func (p *Page) WaitReady(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func (p *Page) Find(ctx context.Context, c locator.Candidate) ([]dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nodes, err := p.query(c)
	if err != nil {
		return nil, err
	}
	return p.describeAll(nodes), nil
}

func (p *Page) query(c locator.Candidate) ([]*html.Node, error) {
	switch c.Strategy {
	case locator.ByIdentifier:
		if n := htmlquery.FindOne(p.doc, "//*[@id="+xpathLiteral(c.Expression)+"]"); n != nil {
			return []*html.Node{n}, nil
		}
		return nil, nil
	case locator.ByName:
		return htmlquery.Find(p.doc, "//*[@name="+xpathLiteral(c.Expression)+"]"), nil
	case locator.ByAttributeMatch:
		expr, err := cssToXPath(c.Expression)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", locator.ErrInvalidCandidate, err)
		}
		return p.xpath(expr)
	case locator.ByStructuralPath:
		return p.xpath(c.Expression)
	case locator.ByTextContent:
		tag, text, exact := locator.ParseTextExpression(c.Expression)
		return p.byText(tag, text, exact), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy '%s'", locator.ErrInvalidCandidate, c.Strategy)
	}
}

func (p *Page) xpath(expr string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(p.doc, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", locator.ErrInvalidCandidate, err)
	}
	return documentOrder(p.doc, elementsOnly(nodes)), nil
}

// byText mirrors the live helper: own text for contains matches; exact matches
// also accept the squashed text of an element with at most one child element.
func (p *Page) byText(tag, text string, exact bool) []*html.Node {
	var out []*html.Node
	walk(p.doc, func(n *html.Node) {
		if tag != "" && n.Data != tag {
			return
		}
		own := ownText(n)
		if exact {
			if own == text || (childElements(n) <= 1 && squash(htmlquery.InnerText(n)) == text) {
				out = append(out, n)
			}
			return
		}
		if strings.Contains(own, text) {
			out = append(out, n)
		}
	})
	return out
}

func (p *Page) Enumerate(ctx context.Context, scope dom.Element) ([]dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := p.node(scope)
	if err != nil {
		return nil, err
	}
	nodes, err := htmlquery.QueryAll(root, interactiveXPath)
	if err != nil {
		return nil, err
	}
	return p.describeAll(documentOrder(root, elementsOnly(nodes))), nil
}

func (p *Page) ScrollIntoView(context.Context, dom.Element) error { return nil }

func (p *Page) WaitInteractable(ctx context.Context, el dom.Element, _ time.Duration) error {
	n, err := p.node(el)
	if err != nil {
		return err
	}
	if !visible(n) {
		return dom.ErrWaitTimeout
	}
	return ctx.Err()
}

func (p *Page) Click(_ context.Context, el dom.Element) error { return p.readOnly("click", el) }

func (p *Page) ScriptClick(_ context.Context, el dom.Element) error {
	return p.readOnly("click", el)
}

func (p *Page) Clear(_ context.Context, el dom.Element) error { return p.readOnly("clear", el) }

func (p *Page) SendText(_ context.Context, el dom.Element, _ string) error {
	return p.readOnly("type into", el)
}

func (p *Page) PressEnter(_ context.Context, el dom.Element) error {
	return p.readOnly("press enter on", el)
}

func (p *Page) SelectOption(_ context.Context, el dom.Element, _ string) error {
	return p.readOnly("select on", el)
}

func (p *Page) ReadValue(ctx context.Context, el dom.Element) (string, error) {
	n, err := p.node(el)
	if err != nil {
		return "", err
	}
	return value(n), ctx.Err()
}

func (p *Page) WaitForValue(ctx context.Context, el dom.Element, want string, _ time.Duration) error {
	got, err := p.ReadValue(ctx, el)
	if err != nil {
		return err
	}
	if got != want {
		return dom.ErrWaitTimeout
	}
	return nil
}

func (p *Page) Screenshot(context.Context) ([]byte, error) {
	return nil, fmt.Errorf("%w: snapshots cannot be rendered", ErrReadOnly)
}

func (p *Page) Source(ctx context.Context) (string, error) {
	return htmlquery.OutputHTML(p.doc, true), ctx.Err()
}

func (p *Page) URL(ctx context.Context) (string, error) { return p.url, ctx.Err() }

func (p *Page) readOnly(action string, el dom.Element) error {
	return fmt.Errorf("%w: cannot %s %s", ErrReadOnly, action, el.Describe())
}

func (p *Page) node(el dom.Element) (*html.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[el.Handle]
	if !ok {
		return nil, fmt.Errorf("stale element reference %q", el.Handle)
	}
	return n, nil
}

func (p *Page) describeAll(nodes []*html.Node) []dom.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]dom.Element, 0, len(nodes))
	for i, n := range nodes {
		handle := nodePath(n)
		p.nodes[handle] = n
		out = append(out, describe(n, handle, i))
	}
	return out
}

func describe(n *html.Node, handle string, index int) dom.Element {
	text := squash(htmlquery.InnerText(n))
	if text == "" {
		text = htmlquery.SelectAttr(n, "value")
	}
	if len(text) > maxTextLen {
		text = text[:maxTextLen]
	}
	return dom.Element{
		Handle:    handle,
		Tag:       n.Data,
		ID:        htmlquery.SelectAttr(n, "id"),
		Class:     htmlquery.SelectAttr(n, "class"),
		Name:      htmlquery.SelectAttr(n, "name"),
		AriaLabel: htmlquery.SelectAttr(n, "aria-label"),
		Text:      text,
		Href:      htmlquery.SelectAttr(n, "href"),
		Type:      htmlquery.SelectAttr(n, "type"),
		Visible:   visible(n),
		Enabled:   enabled(n),
		Index:     index,
	}
}

// visible approximates rendering from markup alone: hidden attributes, inline
// display/visibility styles, hidden inputs and non-rendered containers.
func visible(n *html.Node) bool {
	if n.Data == "input" && strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden") {
		return false
	}
	for a := n; a != nil && a.Type == html.ElementNode; a = a.Parent {
		switch a.Data {
		case "head", "script", "style", "template", "noscript":
			return false
		}
		if hasAttr(a, "hidden") || htmlquery.SelectAttr(a, "aria-hidden") == "true" {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(htmlquery.SelectAttr(a, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func enabled(n *html.Node) bool {
	return !hasAttr(n, "disabled") && htmlquery.SelectAttr(n, "aria-disabled") != "true"
}

func value(n *html.Node) string {
	switch n.Data {
	case "input":
		return htmlquery.SelectAttr(n, "value")
	case "textarea":
		return htmlquery.InnerText(n)
	case "select":
		options := htmlquery.Find(n, ".//option")
		for _, o := range options {
			if hasAttr(o, "selected") {
				return optionValue(o)
			}
		}
		if len(options) > 0 {
			return optionValue(options[0])
		}
		return ""
	}
	return squash(htmlquery.InnerText(n))
}

func optionValue(o *html.Node) string {
	if v, ok := attr(o, "value"); ok {
		return v
	}
	return strings.TrimSpace(htmlquery.InnerText(o))
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, name string) bool {
	_, ok := attr(n, name)
	return ok
}

func ownText(n *html.Node) string {
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			parts = append(parts, c.Data)
		}
	}
	return squash(strings.Join(parts, " "))
}

func childElements(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			count++
		}
	}
	return count
}

func squash(s string) string { return strings.Join(strings.Fields(s), " ") }

// walk visits every element under root in document order.
func walk(root *html.Node, visit func(*html.Node)) {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			visit(c)
		}
		walk(c, visit)
	}
}

func elementsOnly(nodes []*html.Node) []*html.Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
	}
	return out
}

// documentOrder sorts nodes under root into document order and drops duplicates.
func documentOrder(root *html.Node, nodes []*html.Node) []*html.Node {
	if len(nodes) < 2 {
		return nodes
	}
	want := make(map[*html.Node]bool, len(nodes))
	for _, n := range nodes {
		want[n] = true
	}
	out := make([]*html.Node, 0, len(want))
	walk(root, func(n *html.Node) {
		if want[n] {
			out = append(out, n)
		}
	})
	return out
}

// nodePath builds an absolute, index-qualified XPath for n. It anchors on the
// nearest ancestor id when that id is unique in the document.
func nodePath(n *html.Node) string {
	var path []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id := htmlquery.SelectAttr(cur, "id"); id != "" && uniqueID(cur, id) {
			path = append(path, "//*[@id="+xpathLiteral(id)+"]")
			break
		}
		index := 1
		for prev := cur.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && prev.Data == cur.Data {
				index++
			}
		}
		path = append(path, fmt.Sprintf("%s[%d]", cur.Data, index))
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	xp := strings.Join(path, "/")
	if !strings.HasPrefix(xp, "//") {
		xp = "/" + xp
	}
	return xp
}

func uniqueID(n *html.Node, id string) bool {
	root := n
	for root.Parent != nil {
		root = root.Parent
	}
	return len(htmlquery.Find(root, "//*[@id="+xpathLiteral(id)+"]")) == 1
}
