// internal/interaction/interaction_test.go
package interaction_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/browser/dom/domtest"
	"github.com/xkilldash9x/docketpilot/internal/interaction"
	"github.com/xkilldash9x/docketpilot/internal/mocks"
)

const docketNumber = "1:25-CV-01815"

func newInteractor(page dom.Page, clock dom.Clock) *interaction.Interactor {
	return interaction.NewInteractor(page, clock, interaction.Options{
		SettleTimeout: 200 * time.Millisecond,
		CharDelay:     50 * time.Millisecond,
		ActionTimeout: time.Second,
	}, zap.NewNop())
}

func TestEnterVerified(t *testing.T) {
	ctx := context.Background()

	t.Run("should do exactly one read-back and one clear when the first write sticks", func(t *testing.T) {
		page := new(mocks.MockPage)
		field := dom.Element{Handle: "h1", Tag: "input", ID: "co_search_advancedSearch_DN"}

		page.On("Clear", mock.Anything, field).Return(nil).Once()
		page.On("WaitForValue", mock.Anything, field, mock.Anything, 200*time.Millisecond).Return(nil)
		page.On("SendText", mock.Anything, field, docketNumber).Return(nil).Once()
		page.On("ReadValue", mock.Anything, field).Return(docketNumber, nil).Once()

		out, err := newInteractor(page, domtest.NewClock()).EnterVerified(ctx, field, docketNumber)
		require.NoError(t, err)
		assert.Equal(t, docketNumber, out.Value)
		assert.False(t, out.Recovered)
		assert.Equal(t, 1, out.ReadBacks)

		page.AssertNumberOfCalls(t, "ReadValue", 1)
		page.AssertNumberOfCalls(t, "Clear", 1)
		page.AssertNumberOfCalls(t, "SendText", 1)
		page.AssertExpectations(t)
	})

	t.Run("should recover a field that truncates single-shot writes", func(t *testing.T) {
		page := domtest.NewPage()
		clock := domtest.NewClock()
		field := page.Add(dom.Element{Tag: "input", ID: "co_search_advancedSearch_DN"})
		field.TruncateAt = 10

		out, err := newInteractor(page, clock).EnterVerified(ctx, field.Element, docketNumber)
		require.NoError(t, err)
		assert.Equal(t, docketNumber, out.Value)
		assert.True(t, out.Recovered)
		assert.Equal(t, 2, out.ReadBacks)
		assert.Equal(t, docketNumber, field.Value)

		assert.Equal(t, 2, page.Count("Clear:"+field.Handle))
		assert.Equal(t, 2, page.Count("ReadValue:"+field.Handle))
		assert.Equal(t, 1+len(docketNumber), page.Count("SendText:"+field.Handle))

		var charDelays int
		for _, d := range clock.Slept() {
			if d == 50*time.Millisecond {
				charDelays++
			}
		}
		assert.Equal(t, len(docketNumber), charDelays)
	})

	t.Run("should fail with a mismatch after one recovery attempt", func(t *testing.T) {
		page := domtest.NewPage()
		field := page.Add(dom.Element{Tag: "input", ID: "stubborn"})
		field.Value = "prefilled"
		field.IgnoreClear = true

		_, err := newInteractor(page, domtest.NewClock()).EnterVerified(ctx, field.Element, "abc")
		var mm *interaction.MismatchError
		require.ErrorAs(t, err, &mm)
		assert.Equal(t, "abc", mm.Expected)
		assert.Equal(t, "prefilledabcabc", mm.Actual)
		assert.Equal(t, 2, page.Count("Clear:"+field.Handle), "no retries past the single recovery")
	})

	t.Run("should keep secrets out of mismatch errors", func(t *testing.T) {
		page := domtest.NewPage()
		field := page.Add(dom.Element{Tag: "input", ID: "Password"})
		field.IgnoreClear = true
		field.Value = "x"

		_, err := newInteractor(page, domtest.NewClock()).EnterSecret(ctx, field.Element, "hunter2")
		require.Error(t, err)
		assert.False(t, strings.Contains(err.Error(), "hunter2"))
		assert.Contains(t, err.Error(), "<7 chars>")
	})

	t.Run("should surface driver errors", func(t *testing.T) {
		page := new(mocks.MockPage)
		field := dom.Element{Handle: "gone", Tag: "input"}
		page.On("Clear", mock.Anything, field).Return(errors.New("node detached"))

		_, err := newInteractor(page, domtest.NewClock()).EnterVerified(ctx, field, "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "node detached")
		var mm *interaction.MismatchError
		assert.False(t, errors.As(err, &mm))
	})
}

func TestActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("should click after scrolling and settling", func(t *testing.T) {
		page := domtest.NewPage()
		btn := page.Add(dom.Element{Tag: "button", ID: "searchButton"})

		require.NoError(t, newInteractor(page, domtest.NewClock()).Activate(ctx, btn.Element))
		assert.Equal(t, []string{
			"Scroll:" + btn.Handle,
			"WaitInteractable:" + btn.Handle,
			"Click:" + btn.Handle,
		}, page.Calls())
	})

	t.Run("should fall back to a script click once", func(t *testing.T) {
		page := domtest.NewPage()
		btn := page.Add(dom.Element{Tag: "button", ID: "obscured"})
		btn.ClickErr = errors.New("element click intercepted")

		require.NoError(t, newInteractor(page, domtest.NewClock()).Activate(ctx, btn.Element))
		assert.Equal(t, 1, page.Count("Click:"+btn.Handle))
		assert.Equal(t, 1, page.Count("ScriptClick:"+btn.Handle))
	})

	t.Run("should return an activation error when both mechanisms fail", func(t *testing.T) {
		page := domtest.NewPage()
		btn := page.Add(dom.Element{Tag: "button", ID: "dead"})
		primary := errors.New("not interactable")
		fallback := errors.New("script blocked")
		btn.ClickErr, btn.ScriptClickErr = primary, fallback

		err := newInteractor(page, domtest.NewClock()).Activate(ctx, btn.Element)
		var ae *interaction.ActivationError
		require.ErrorAs(t, err, &ae)
		assert.ErrorIs(t, err, primary)
		assert.ErrorIs(t, err, fallback)
		assert.Equal(t, 1, page.Count("Click:"+btn.Handle))
		assert.Equal(t, 1, page.Count("ScriptClick:"+btn.Handle))
	})

	t.Run("should still activate when scrolling fails", func(t *testing.T) {
		page := domtest.NewPage()
		btn := page.Add(dom.Element{Tag: "a", Text: "California"})
		btn.ScrollErr = errors.New("scroll failed")

		assert.NoError(t, newInteractor(page, domtest.NewClock()).Activate(ctx, btn.Element))
	})
}
