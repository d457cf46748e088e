// internal/browser/cdp/cdp_test.go
package cdp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/config"
	"github.com/xkilldash9x/docketpilot/internal/locator"
)

func flagValue(flags []flag, name string) (any, bool) {
	var (
		v     any
		found bool
	)
	for _, f := range flags {
		if f.name == name {
			v, found = f.value, true
		}
	}
	return v, found
}

func TestBrowserFlags(t *testing.T) {
	t.Run("Headless defaults", func(t *testing.T) {
		flags := browserFlags(config.BrowserConfig{Headless: true})

		v, ok := flagValue(flags, "headless")
		require.True(t, ok)
		assert.Equal(t, true, v)
		v, _ = flagValue(flags, "disable-blink-features")
		assert.Equal(t, "AutomationControlled", v)
		_, ok = flagValue(flags, "enable-automation")
		assert.False(t, ok)
	})

	t.Run("Custom args", func(t *testing.T) {
		flags := browserFlags(config.BrowserConfig{Args: []string{"--lang=en-US", "--mute-audio", "--"}})

		v, ok := flagValue(flags, "lang")
		require.True(t, ok)
		assert.Equal(t, "en-US", v)
		v, ok = flagValue(flags, "mute-audio")
		require.True(t, ok)
		assert.Equal(t, true, v)
		_, ok = flagValue(flags, "")
		assert.False(t, ok, "a bare -- is ignored")
	})

	t.Run("Viewport sets the window size", func(t *testing.T) {
		flags := browserFlags(config.BrowserConfig{Viewport: map[string]int{"width": 1280, "height": 800}})
		v, ok := flagValue(flags, "window-size")
		require.True(t, ok)
		assert.Equal(t, "1280,800", v)

		_, ok = flagValue(browserFlags(config.BrowserConfig{}), "window-size")
		assert.False(t, ok)
	})

	t.Run("Container flags on linux", func(t *testing.T) {
		_, ok := flagValue(browserFlags(config.BrowserConfig{}), "no-sandbox")
		assert.Equal(t, runtime.GOOS == "linux", ok)
	})

	t.Run("Options include every flag", func(t *testing.T) {
		cfg := config.BrowserConfig{UserAgent: "docketpilot-test"}
		opts := buildAllocatorOptions(cfg)
		// defaults + flags + enable-automation override + user agent
		assert.Len(t, opts, len(chromedp.DefaultExecAllocatorOptions)+len(browserFlags(cfg))+2)
	})
}

func TestNewQuery(t *testing.T) {
	q := newQuery(locator.Text("a::=California"))
	assert.Equal(t, query{
		Strategy:   "byTextContent",
		Expression: "a::=California",
		Tag:        "a",
		Text:       "California",
		Exact:      true,
	}, q)

	q = newQuery(locator.ID("docketNumber"))
	assert.Equal(t, query{Strategy: "byIdentifier", Expression: "docketNumber"}, q)
}

func TestHelperExpression(t *testing.T) {
	expr := helperExpression("select", "7", `say "hi"`)
	assert.True(t, strings.HasPrefix(expr, "(("), "the helper is wrapped in parentheses")
	assert.True(t, strings.HasSuffix(expr, `).select("7","say \"hi\"")`))

	assert.True(t, strings.HasSuffix(helperExpression("ready"), ").ready()"))
}

func TestRefSelector(t *testing.T) {
	assert.Equal(t, `[data-dp-ref="12"]`, refSelector(dom.Element{Handle: "12"}))
}

func TestCombineContext(t *testing.T) {
	t.Run("Canceled by the operation context", func(t *testing.T) {
		type key struct{}
		tab := context.WithValue(context.Background(), key{}, "tab")
		op, cancelOp := context.WithCancel(context.Background())

		combined, cancel := combineContext(tab, op)
		defer cancel()
		assert.Equal(t, "tab", combined.Value(key{}))

		cancelOp()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled")
		}
	})

	t.Run("Canceled by the tab context", func(t *testing.T) {
		tab, cancelTab := context.WithCancel(context.Background())
		combined, cancel := combineContext(tab, context.Background())
		defer cancel()

		cancelTab()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

const fixtureHTML = `<!doctype html>
<html><body>
<form>
  <input id="docketNumber" name="docketNumber" type="text">
  <select id="frequency"><option value="daily">Daily</option><option value="weekly">Weekly</option></select>
  <button id="searchButton" type="button" onclick="document.title='clicked'">Search</button>
  <a href="/states/ca">California</a>
</form>
</body></html>`

// TestPageAgainstBrowser drives a real browser. Set DOCKETPILOT_BROWSER_TESTS=1 to run it.
func TestPageAgainstBrowser(t *testing.T) {
	if os.Getenv("DOCKETPILOT_BROWSER_TESTS") == "" {
		t.Skip("set DOCKETPILOT_BROWSER_TESTS=1 to run browser tests")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, fixtureHTML)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	m, err := NewManager(ctx, zaptest.NewLogger(t), config.BrowserConfig{Headless: true, StartupTimeout: 30 * time.Second})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	page, err := m.NewPage(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	defer page.Close()

	require.NoError(t, page.Navigate(ctx, srv.URL))
	require.NoError(t, page.WaitReady(ctx, 5*time.Second))

	inputs, err := page.Find(ctx, locator.ID("docketNumber"))
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.True(t, inputs[0].Usable())

	require.NoError(t, page.SendText(ctx, inputs[0], "1:24-cv-00042"))
	require.NoError(t, page.WaitForValue(ctx, inputs[0], "1:24-cv-00042", 2*time.Second))
	require.NoError(t, page.Clear(ctx, inputs[0]))
	value, err := page.ReadValue(ctx, inputs[0])
	require.NoError(t, err)
	assert.Empty(t, value)

	selects, err := page.Find(ctx, locator.ID("frequency"))
	require.NoError(t, err)
	require.NoError(t, page.SelectOption(ctx, selects[0], "weekly"))
	assert.Error(t, page.SelectOption(ctx, selects[0], "hourly"))

	links, err := page.Find(ctx, locator.Text("a::=California"))
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "/states/ca", links[0].Href)

	buttons, err := page.Find(ctx, locator.ID("searchButton"))
	require.NoError(t, err)
	require.NoError(t, page.ScrollIntoView(ctx, buttons[0]))
	require.NoError(t, page.WaitInteractable(ctx, buttons[0], 2*time.Second))
	require.NoError(t, page.Click(ctx, buttons[0]))

	src, err := page.Source(ctx)
	require.NoError(t, err)
	assert.Contains(t, src, "<title>clicked</title>")

	shot, err := page.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)
}
