// internal/browser/cdp/page.go
package cdp

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/locator"
)

//go:embed page.js
var pageScript string

const (
	refAttribute        = "data-dp-ref"
	defaultPollInterval = 100 * time.Millisecond
)

// Page drives one browser tab through the DevTools protocol.
type Page struct {
	ctx          context.Context
	cancel       context.CancelFunc
	pollInterval time.Duration
	logger       *zap.Logger

	closeOnce sync.Once
	onClose   func()
}

var _ dom.Page = (*Page)(nil)

// newPage wraps an already allocated tab context.
func newPage(tabCtx context.Context, cancel context.CancelFunc, pollInterval time.Duration, logger *zap.Logger, onClose func()) *Page {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Page{
		ctx:          tabCtx,
		cancel:       cancel,
		pollInterval: pollInterval,
		logger:       logger.Named("page"),
		onClose:      onClose,
	}
}

// Close closes the tab. It is safe to call more than once; only the first call
// reports an error.
func (p *Page) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = chromedp.Cancel(p.ctx)
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
	})
	return err
}

// run executes actions on the tab, bounded by ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

// call invokes a method of the embedded page helper and decodes its result into out.
func (p *Page) call(ctx context.Context, out any, method string, args ...any) error {
	var raw []byte
	err := p.run(ctx, chromedp.Evaluate(helperExpression(method, args...), &raw, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
	if err != nil {
		return fmt.Errorf("page helper %s failed: %w", method, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w (payload: %s)", method, err, string(raw))
	}
	return nil
}

// poll waits until the helper method returns a truthy value.
func (p *Page) poll(ctx context.Context, timeout time.Duration, method string, args ...any) error {
	err := p.run(ctx, chromedp.Poll(helperExpression(method, args...), nil,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(p.pollInterval),
	))
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return fmt.Errorf("%s after %v: %w", method, timeout, dom.ErrWaitTimeout)
	}
	return err
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *Page) WaitReady(ctx context.Context, timeout time.Duration) error {
	return p.poll(ctx, timeout, "ready")
}

func (p *Page) Find(ctx context.Context, c locator.Candidate) ([]dom.Element, error) {
	var found []dom.Element
	if err := p.call(ctx, &found, "find", newQuery(c)); err != nil {
		return nil, err
	}
	return found, nil
}

func (p *Page) Enumerate(ctx context.Context, scope dom.Element) ([]dom.Element, error) {
	var found []dom.Element
	if err := p.call(ctx, &found, "enumerate", scope.Handle); err != nil {
		return nil, err
	}
	return found, nil
}

func (p *Page) ScrollIntoView(ctx context.Context, el dom.Element) error {
	return p.run(ctx, chromedp.ScrollIntoView(refSelector(el), chromedp.ByQuery))
}

func (p *Page) WaitInteractable(ctx context.Context, el dom.Element, timeout time.Duration) error {
	return p.poll(ctx, timeout, "interactable", el.Handle)
}

func (p *Page) Click(ctx context.Context, el dom.Element) error {
	return p.run(ctx, chromedp.Click(refSelector(el), chromedp.ByQuery))
}

func (p *Page) ScriptClick(ctx context.Context, el dom.Element) error {
	return p.call(ctx, nil, "scriptClick", el.Handle)
}

func (p *Page) Clear(ctx context.Context, el dom.Element) error {
	return p.call(ctx, nil, "clear", el.Handle)
}

func (p *Page) SendText(ctx context.Context, el dom.Element, text string) error {
	return p.run(ctx, chromedp.SendKeys(refSelector(el), text, chromedp.ByQuery))
}

func (p *Page) PressEnter(ctx context.Context, el dom.Element) error {
	return p.run(ctx, chromedp.SendKeys(refSelector(el), kb.Enter, chromedp.ByQuery))
}

func (p *Page) SelectOption(ctx context.Context, el dom.Element, value string) error {
	var applied bool
	if err := p.call(ctx, &applied, "select", el.Handle, value); err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("option %q is not available on %s", value, el.Describe())
	}
	return nil
}

func (p *Page) ReadValue(ctx context.Context, el dom.Element) (string, error) {
	var value string
	if err := p.call(ctx, &value, "value", el.Handle); err != nil {
		return "", err
	}
	return value, nil
}

func (p *Page) WaitForValue(ctx context.Context, el dom.Element, want string, timeout time.Duration) error {
	return p.poll(ctx, timeout, "hasValue", el.Handle, want)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

func (p *Page) Source(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page source failed: %w", err)
	}
	return html, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// query is the helper's view of a locator candidate.
type query struct {
	Strategy   string `json:"strategy"`
	Expression string `json:"expression"`
	Tag        string `json:"tag,omitempty"`
	Text       string `json:"text,omitempty"`
	Exact      bool   `json:"exact,omitempty"`
}

func newQuery(c locator.Candidate) query {
	q := query{Strategy: string(c.Strategy), Expression: c.Expression}
	if c.Strategy == locator.ByTextContent {
		q.Tag, q.Text, q.Exact = locator.ParseTextExpression(c.Expression)
	}
	return q
}

// refSelector addresses an element by the reference the helper stamped on it.
func refSelector(el dom.Element) string {
	return "[" + refAttribute + "=" + strconv.Quote(el.Handle) + "]"
}

// helperExpression builds "(<helper>).method(args...)" with JSON-encoded arguments.
func helperExpression(method string, args ...any) string {
	encoded := make([]byte, 0, 64)
	for i, a := range args {
		if i > 0 {
			encoded = append(encoded, ',')
		}
		encoded = append(encoded, jsonEncode(a)...)
	}
	return "(" + pageScript + ")." + method + "(" + string(encoded) + ")"
}

// jsonEncode is a helper to safely encode a value for JS injection.
func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
