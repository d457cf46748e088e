package dom_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/browser/dom/domtest"
)

func TestElementAttributeText(t *testing.T) {
	el := dom.Element{
		ID:        "searchButton",
		Class:     "co_btn  Primary",
		AriaLabel: "Search",
		Text:      "  Search Westlaw Precision ",
		Name:      "ignored",
	}
	assert.Equal(t, "searchbutton co_btn  primary search search westlaw precision", el.AttributeText())
	assert.Empty(t, dom.Element{}.AttributeText())
}

func TestExcludeTokens(t *testing.T) {
	ex := dom.ExcludeTokens{"KNOS"}

	t.Run("should match case-insensitively on any attribute", func(t *testing.T) {
		assert.True(t, ex.Excludes(dom.Element{ID: "knosSearchButton"}))
		assert.True(t, ex.Excludes(dom.Element{Class: "header-KNOS-submit"}))
		assert.True(t, ex.Excludes(dom.Element{AriaLabel: "Search Knos"}))
	})

	t.Run("should ignore the name attribute", func(t *testing.T) {
		assert.False(t, ex.Excludes(dom.Element{Name: "knos"}))
	})

	t.Run("should ignore blank tokens", func(t *testing.T) {
		assert.False(t, dom.ExcludeTokens{" ", ""}.Excludes(dom.Element{ID: "anything"}))
	})

	t.Run("should treat a nil exclusion as never excluding", func(t *testing.T) {
		assert.False(t, dom.Excluded(nil, dom.Element{ID: "knos"}))
		assert.True(t, dom.Excluded(dom.ExclusionFunc(func(dom.Element) bool { return true }), dom.Element{}))
	})
}

func TestElementDescribe(t *testing.T) {
	el := dom.Element{Tag: "BUTTON", ID: "searchButton", AriaLabel: "Search", Text: "Search\n  Westlaw"}
	assert.Equal(t, `button#searchButton[aria-label=Search] "Search Westlaw"`, el.Describe())

	t.Run("should cut long text on a rune boundary", func(t *testing.T) {
		el := dom.Element{Tag: "a", Text: strings.Repeat("a", 39) + "§ Dockets by State"}
		got := el.Describe()
		assert.True(t, utf8.ValidString(got), got)
		assert.Equal(t, `a "`+strings.Repeat("a", 39)+`§..."`, got)
	})
}

func TestWaitFor(t *testing.T) {
	ctx := context.Background()

	t.Run("should probe once with a zero timeout", func(t *testing.T) {
		clk := domtest.NewClock()
		calls := 0
		err := dom.WaitFor(ctx, clk, 0, 100*time.Millisecond, func(context.Context) (bool, error) {
			calls++
			return false, nil
		})
		assert.ErrorIs(t, err, dom.ErrWaitTimeout)
		assert.Equal(t, 1, calls)
		assert.Empty(t, clk.Slept())
	})

	t.Run("should stop as soon as the condition holds", func(t *testing.T) {
		clk := domtest.NewClock()
		calls := 0
		err := dom.WaitFor(ctx, clk, time.Second, 100*time.Millisecond, func(context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Len(t, clk.Slept(), 2)
	})

	t.Run("should never sleep past the deadline", func(t *testing.T) {
		clk := domtest.NewClock()
		start := clk.Now()
		err := dom.WaitFor(ctx, clk, 250*time.Millisecond, 100*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, dom.ErrWaitTimeout)
		assert.Equal(t, 250*time.Millisecond, clk.Now().Sub(start))
	})

	t.Run("should propagate condition errors", func(t *testing.T) {
		boom := errors.New("boom")
		err := dom.WaitFor(ctx, domtest.NewClock(), time.Second, 0, func(context.Context) (bool, error) {
			return false, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("should honor a cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := dom.WaitFor(cctx, domtest.NewClock(), time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
