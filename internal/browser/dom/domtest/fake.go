// Package domtest provides in-memory fakes of the dom contracts for tests.
package domtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/locator"
)

// ErrNoSuchElement is returned for actions on unknown handles.
var ErrNoSuchElement = errors.New("no such element")

// Clock is a dom.Clock whose Sleep advances time instantly.
type Clock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

// NewClock starts a fake clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

// Advance moves the clock forward without recording a sleep.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Slept returns every delay passed to Sleep.
func (c *Clock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.slept))
	copy(out, c.slept)
	return out
}

// Field is the mutable state behind a fake element.
type Field struct {
	dom.Element
	Value string
	// TruncateAt keeps only the first TruncateAt runes of any multi-rune write.
	TruncateAt int
	// IgnoreClear leaves the value untouched when Clear is called.
	IgnoreClear    bool
	ClickErr       error
	ScriptClickErr error
	ScrollErr      error
}

// Page is a scriptable dom.Page. Elements are exposed under candidate expressions.
type Page struct {
	mu sync.Mutex

	fields  map[string]*Field
	exposed map[string][]string
	delay   map[string]int
	scopes  map[string][]string
	hooks   map[string]func(p *Page)
	calls   []string
	seq     int

	FindErr     map[string]error
	NavigateErr error
	ReadyErr    error
	Shot        []byte
	ShotErr     error
	HTML        string
	CurrentURL  string
}

// NewPage returns an empty fake page.
func NewPage() *Page {
	return &Page{
		fields:  make(map[string]*Field),
		exposed: make(map[string][]string),
		delay:   make(map[string]int),
		scopes:  make(map[string][]string),
		hooks:   make(map[string]func(p *Page)),
		FindErr: make(map[string]error),
		Shot:    []byte("\x89PNG fake"),
		HTML:    "<html><body></body></html>",
	}
}

// Add registers an element and exposes it under the given candidate expressions.
// A blank handle gets a generated one; Visible and Enabled default to true unless
// the element says otherwise via AddHidden.
func (p *Page) Add(el dom.Element, expressions ...string) *Field {
	el.Visible, el.Enabled = true, true
	return p.add(el, expressions...)
}

// AddHidden registers an element that is present but not usable.
func (p *Page) AddHidden(el dom.Element, expressions ...string) *Field {
	return p.add(el, expressions...)
}

func (p *Page) add(el dom.Element, expressions ...string) *Field {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	if el.Handle == "" {
		el.Handle = fmt.Sprintf("h%d", p.seq)
	}
	f := &Field{Element: el}
	p.fields[el.Handle] = f
	for _, expr := range expressions {
		p.exposed[expr] = append(p.exposed[expr], el.Handle)
	}
	return f
}

// Expose makes an existing element match an additional expression.
func (p *Page) Expose(handle string, expressions ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, expr := range expressions {
		p.exposed[expr] = append(p.exposed[expr], handle)
	}
}

// Hide removes every match for an expression.
func (p *Page) Hide(expression string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.exposed, expression)
}

// AppearAfter makes an expression match only after n unsuccessful Find calls.
func (p *Page) AppearAfter(expression string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay[expression] = n
}

// SetScope lists the handles Enumerate returns for a scope element.
func (p *Page) SetScope(scopeHandle string, handles ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scopes[scopeHandle] = handles
}

// OnActivate runs hook after a successful Click or ScriptClick on handle.
func (p *Page) OnActivate(handle string, hook func(p *Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks[handle] = hook
}

// Field returns the state behind a handle.
func (p *Page) Field(handle string) *Field {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fields[handle]
}

// Calls returns the recorded action log, e.g. "Click:h3".
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// Count returns how many times an action was recorded.
func (p *Page) Count(call string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (p *Page) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *Page) lookup(el dom.Element) (*Field, error) {
	f, ok := p.fields[el.Handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchElement, el.Handle)
	}
	return f, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Navigate:%s", url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.CurrentURL = url
	return nil
}

func (p *Page) WaitReady(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("WaitReady")
	return p.ReadyErr
}

func (p *Page) Find(ctx context.Context, c locator.Candidate) ([]dom.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Find:%s", c.Expression)
	if err := p.FindErr[c.Expression]; err != nil {
		return nil, err
	}
	if n := p.delay[c.Expression]; n > 0 {
		p.delay[c.Expression] = n - 1
		return nil, nil
	}
	var out []dom.Element
	for i, h := range p.exposed[c.Expression] {
		el := p.fields[h].Element
		el.Index = i
		out = append(out, el)
	}
	return out, nil
}

func (p *Page) Enumerate(ctx context.Context, scope dom.Element) ([]dom.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Enumerate:%s", scope.Handle)
	var out []dom.Element
	for i, h := range p.scopes[scope.Handle] {
		el := p.fields[h].Element
		el.Index = i
		out = append(out, el)
	}
	return out, nil
}

func (p *Page) ScrollIntoView(ctx context.Context, el dom.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Scroll:%s", el.Handle)
	f, err := p.lookup(el)
	if err != nil {
		return err
	}
	return f.ScrollErr
}

func (p *Page) WaitInteractable(ctx context.Context, el dom.Element, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("WaitInteractable:%s", el.Handle)
	_, err := p.lookup(el)
	return err
}

func (p *Page) Click(ctx context.Context, el dom.Element) error {
	return p.activate("Click", el, func(f *Field) error { return f.ClickErr })
}

func (p *Page) ScriptClick(ctx context.Context, el dom.Element) error {
	return p.activate("ScriptClick", el, func(f *Field) error { return f.ScriptClickErr })
}

func (p *Page) activate(kind string, el dom.Element, failure func(*Field) error) error {
	p.mu.Lock()
	p.record("%s:%s", kind, el.Handle)
	f, err := p.lookup(el)
	if err == nil {
		err = failure(f)
	}
	hook := p.hooks[el.Handle]
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Clear(ctx context.Context, el dom.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Clear:%s", el.Handle)
	f, err := p.lookup(el)
	if err != nil {
		return err
	}
	if !f.IgnoreClear {
		f.Value = ""
	}
	return nil
}

func (p *Page) SendText(ctx context.Context, el dom.Element, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("SendText:%s", el.Handle)
	f, err := p.lookup(el)
	if err != nil {
		return err
	}
	runes := []rune(text)
	if f.TruncateAt > 0 && len(runes) > 1 && len(runes) > f.TruncateAt {
		runes = runes[:f.TruncateAt]
	}
	f.Value += string(runes)
	return nil
}

func (p *Page) PressEnter(ctx context.Context, el dom.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("PressEnter:%s", el.Handle)
	_, err := p.lookup(el)
	return err
}

func (p *Page) SelectOption(ctx context.Context, el dom.Element, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Select:%s=%s", el.Handle, value)
	f, err := p.lookup(el)
	if err != nil {
		return err
	}
	f.Value = value
	return nil
}

func (p *Page) ReadValue(ctx context.Context, el dom.Element) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("ReadValue:%s", el.Handle)
	f, err := p.lookup(el)
	if err != nil {
		return "", err
	}
	return f.Value, nil
}

func (p *Page) WaitForValue(ctx context.Context, el dom.Element, want string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("WaitForValue:%s", el.Handle)
	f, err := p.lookup(el)
	if err != nil {
		return err
	}
	if f.Value != want {
		return dom.ErrWaitTimeout
	}
	return nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Shot, p.ShotErr
}

func (p *Page) Source(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HTML, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL, nil
}

var _ dom.Page = (*Page)(nil)
var _ dom.Clock = (*Clock)(nil)
