// internal/workflow/session_test.go
package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom/domtest"
	"github.com/xkilldash9x/docketpilot/internal/locator"
	"github.com/xkilldash9x/docketpilot/internal/mocks"
	"github.com/xkilldash9x/docketpilot/internal/resolver"
	"github.com/xkilldash9x/docketpilot/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var alert = workflow.AlertSettings{
	Name:      "Acme v. Widget",
	Email:     "paralegal@example.com",
	Frequency: "daily",
	Times:     []string{"5am", "3pm"},
}

// happyDriver returns a driver mock on which every step succeeds.
func happyDriver() *mocks.MockDriver {
	d := new(mocks.MockDriver)
	d.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d.On("ChooseCategory", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d.On("ChooseSubJurisdiction", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d.On("ChooseSubRegion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d.On("EnterIdentifier", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d.On("TriggerFollowUp", mock.Anything, mock.Anything).Return(nil)
	d.On("CompleteFollowUp", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return d
}

func newSession(t *testing.T, d workflow.Driver, opts ...workflow.SessionOption) *workflow.Session {
	t.Helper()
	opts = append([]workflow.SessionOption{workflow.WithClock(domtest.NewClock())}, opts...)
	return workflow.NewSession("s-1", d, zaptest.NewLogger(t), opts...)
}

// assertExclusive checks that exactly the expected view is visible.
func assertExclusive(t *testing.T, s *workflow.Session, want workflow.Phase) {
	t.Helper()
	visible := 0
	for p, on := range s.Flags() {
		if on {
			visible++
			assert.Equal(t, want, p, "unexpected visible view")
		}
	}
	assert.Equal(t, 1, visible, "exactly one view must be visible")
	assert.Equal(t, want, s.ActiveView())
}

func step(t *testing.T, s *workflow.Session, trig workflow.Trigger, in workflow.Input, want workflow.Phase) workflow.PhaseResult {
	t.Helper()
	res := s.StartPhase(context.Background(), trig, in)
	require.True(t, res.OK(), "trigger %s failed: %s", trig, res.Message)
	require.Equal(t, want, res.Phase)
	assertExclusive(t, s, want)
	return res
}

func TestSessionFullWalk(t *testing.T) {
	s := newSession(t, happyDriver())
	assert.Equal(t, workflow.PhaseIdle, s.ActivePhase())
	assertExclusive(t, s, workflow.PhaseIdle)

	step(t, s, workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State"}, workflow.PhaseCategoryChosen)
	step(t, s, workflow.TriggerChooseSubJurisdiction, workflow.Input{SubJurisdiction: "California"}, workflow.PhaseSubJurisdictionChosen)
	step(t, s, workflow.TriggerChooseSubRegion, workflow.Input{SubRegion: "Central District"}, workflow.PhaseSubRegionChosen)
	step(t, s, workflow.TriggerSubmitIdentifier, workflow.Input{Identifier: "1:25-CV-01815"}, workflow.PhaseIdentifierEntered)
	step(t, s, workflow.TriggerRequestFollowUp, workflow.Input{}, workflow.PhaseFollowUpTriggered)
	res := step(t, s, workflow.TriggerCompleteFollowUp, workflow.Input{Alert: &alert}, workflow.PhaseCompleted)

	assert.Equal(t, workflow.Selection{
		Category:        "Dockets by State",
		SubJurisdiction: "California",
		SubRegion:       "Central District",
		Identifier:      "1:25-CV-01815",
	}, res.Selection)

	// Walk all the way back; every step must leave exactly one view visible.
	for _, want := range []workflow.Phase{
		workflow.PhaseFollowUpTriggered,
		workflow.PhaseIdentifierEntered,
		workflow.PhaseSubRegionChosen,
		workflow.PhaseSubJurisdictionChosen,
		workflow.PhaseCategoryChosen,
		workflow.PhaseIdle,
	} {
		res := s.GoBack(context.Background())
		require.True(t, res.OK(), res.Message)
		assertExclusive(t, s, want)
	}
	assert.True(t, s.Selection().IsEmpty())
}

func TestSessionSkipAhead(t *testing.T) {
	t.Run("should commit both phases when a sub-jurisdiction is supplied", func(t *testing.T) {
		d := happyDriver()
		s := newSession(t, d)

		res := s.StartPhase(context.Background(), workflow.TriggerChooseCategory,
			workflow.Input{Category: "Dockets by State", SubJurisdiction: "California"})

		require.True(t, res.OK())
		assert.Equal(t, workflow.PhaseSubJurisdictionChosen, res.Phase)
		assert.Equal(t, "California", res.Selection.SubJurisdiction)
		assertExclusive(t, s, workflow.PhaseSubJurisdictionChosen)
		d.AssertCalled(t, "ChooseSubJurisdiction", mock.Anything, mock.Anything, "California")
	})

	t.Run("should keep the category when the sub-jurisdiction step fails", func(t *testing.T) {
		d := new(mocks.MockDriver)
		d.On("ChooseCategory", mock.Anything, mock.Anything, "Dockets by State").Return(nil)
		d.On("ChooseSubJurisdiction", mock.Anything, mock.Anything, "Atlantis").
			Return(&resolver.NotFoundError{Target: "sub_jurisdiction_link"})
		s := newSession(t, d)

		res := s.StartPhase(context.Background(), workflow.TriggerChooseCategory,
			workflow.Input{Category: "Dockets by State", SubJurisdiction: "Atlantis"})

		assert.False(t, res.OK())
		assert.Equal(t, workflow.KindNotFound, res.ErrorKind)
		assert.Equal(t, workflow.PhaseFailed, res.Phase)
		assert.Equal(t, workflow.PhaseCategoryChosen, res.View)
		assert.Equal(t, workflow.Selection{Category: "Dockets by State"}, res.Selection)
		assertExclusive(t, s, workflow.PhaseCategoryChosen)
	})
}

func TestSessionGoBack(t *testing.T) {
	t.Run("should discard the sub-region when leaving SubRegionChosen", func(t *testing.T) {
		s := newSession(t, happyDriver())
		step(t, s, workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State", SubJurisdiction: "California"}, workflow.PhaseSubJurisdictionChosen)
		step(t, s, workflow.TriggerChooseSubRegion, workflow.Input{SubRegion: "Central District"}, workflow.PhaseSubRegionChosen)

		res := s.GoBack(context.Background())

		require.True(t, res.OK())
		assert.Equal(t, workflow.PhaseSubJurisdictionChosen, res.Phase)
		assert.Empty(t, res.Selection.SubRegion)
		assert.Equal(t, "California", res.Selection.SubJurisdiction)
		assertExclusive(t, s, workflow.PhaseSubJurisdictionChosen)
	})

	t.Run("should return to the sub-jurisdiction when no sub-region was chosen", func(t *testing.T) {
		s := newSession(t, happyDriver())
		step(t, s, workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State", SubJurisdiction: "Texas"}, workflow.PhaseSubJurisdictionChosen)
		step(t, s, workflow.TriggerSubmitIdentifier, workflow.Input{Identifier: "4:24-cv-00012"}, workflow.PhaseIdentifierEntered)

		res := s.GoBack(context.Background())

		assert.Equal(t, workflow.PhaseSubJurisdictionChosen, res.Phase)
		assert.Empty(t, res.Selection.Identifier)
	})

	t.Run("should reject going back from Idle", func(t *testing.T) {
		s := newSession(t, happyDriver())
		res := s.GoBack(context.Background())
		assert.Equal(t, workflow.KindInvalidTransition, res.ErrorKind)
		assert.Equal(t, workflow.PhaseIdle, s.ActivePhase())
	})

	t.Run("should clear a failure marker", func(t *testing.T) {
		d := new(mocks.MockDriver)
		d.On("ChooseCategory", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		d.On("ChooseSubJurisdiction", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))
		s := newSession(t, d)
		step(t, s, workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State"}, workflow.PhaseCategoryChosen)
		s.StartPhase(context.Background(), workflow.TriggerChooseSubJurisdiction, workflow.Input{SubJurisdiction: "Texas"})
		require.Equal(t, workflow.PhaseFailed, s.ActivePhase())

		s.GoBack(context.Background())
		assert.Equal(t, workflow.PhaseIdle, s.ActivePhase())
	})
}

func TestSessionInvalidTransitions(t *testing.T) {
	cases := []struct {
		name string
		trig workflow.Trigger
	}{
		{"sub-jurisdiction before category", workflow.TriggerChooseSubJurisdiction},
		{"sub-region before category", workflow.TriggerChooseSubRegion},
		{"identifier before category", workflow.TriggerSubmitIdentifier},
		{"follow-up before identifier", workflow.TriggerRequestFollowUp},
		{"complete before follow-up", workflow.TriggerCompleteFollowUp},
		{"unknown trigger", workflow.Trigger("teleport")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := new(mocks.MockDriver)
			s := newSession(t, d)

			res := s.StartPhase(context.Background(), tc.trig, workflow.Input{
				SubJurisdiction: "California", SubRegion: "Central District", Identifier: "x", Alert: &alert,
			})

			assert.False(t, res.OK())
			assert.Equal(t, workflow.KindInvalidTransition, res.ErrorKind)
			assert.Equal(t, workflow.PhaseIdle, res.Phase, "a rejected trigger is not a phase failure")
			assertExclusive(t, s, workflow.PhaseIdle)
			d.AssertExpectations(t)
			assert.Empty(t, d.Calls, "the page must not be touched")
		})
	}

	t.Run("should reject a missing category as invalid input", func(t *testing.T) {
		s := newSession(t, new(mocks.MockDriver))
		res := s.StartPhase(context.Background(), workflow.TriggerChooseCategory, workflow.Input{})
		assert.Equal(t, workflow.KindInvalidInput, res.ErrorKind)
		assert.Equal(t, workflow.PhaseIdle, s.ActivePhase())
	})

	t.Run("should validate alert settings before touching the page", func(t *testing.T) {
		d := happyDriver()
		s := newSession(t, d)
		step(t, s, workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State", SubJurisdiction: "California"}, workflow.PhaseSubJurisdictionChosen)
		step(t, s, workflow.TriggerSubmitIdentifier, workflow.Input{Identifier: "1:25-CV-01815"}, workflow.PhaseIdentifierEntered)
		step(t, s, workflow.TriggerRequestFollowUp, workflow.Input{}, workflow.PhaseFollowUpTriggered)

		bad := alert
		bad.Times = []string{"midnight"}
		res := s.StartPhase(context.Background(), workflow.TriggerCompleteFollowUp, workflow.Input{Alert: &bad})

		assert.Equal(t, workflow.KindInvalidInput, res.ErrorKind)
		d.AssertNotCalled(t, "CompleteFollowUp", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSessionFailureAndRetry(t *testing.T) {
	d := new(mocks.MockDriver)
	d.On("ChooseCategory", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d.On("ChooseSubJurisdiction", mock.Anything, mock.Anything, mock.Anything).
		Return(&workflow.NavigationError{Step: "sub_jurisdiction_link", Err: errors.New("timeout")}).Once()
	d.On("ChooseSubJurisdiction", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	s := newSession(t, d)
	step(t, s, workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State"}, workflow.PhaseCategoryChosen)

	res := s.StartPhase(context.Background(), workflow.TriggerChooseSubJurisdiction, workflow.Input{SubJurisdiction: "California"})
	assert.Equal(t, workflow.KindNavigation, res.ErrorKind)
	assert.Equal(t, workflow.PhaseFailed, s.ActivePhase())
	assertExclusive(t, s, workflow.PhaseCategoryChosen)

	snap := s.Snapshot()
	require.NotNil(t, snap.Failure)
	assert.Equal(t, workflow.TriggerChooseSubJurisdiction, snap.Failure.Trigger)
	assert.Contains(t, snap.Allowed, workflow.TriggerChooseSubJurisdiction)

	// The failed phase can be retried from the kept view.
	step(t, s, workflow.TriggerChooseSubJurisdiction, workflow.Input{SubJurisdiction: "California"}, workflow.PhaseSubJurisdictionChosen)
	assert.Nil(t, s.Snapshot().Failure)
}

func TestSessionReset(t *testing.T) {
	s := newSession(t, happyDriver())
	step(t, s, workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State", SubJurisdiction: "California"}, workflow.PhaseSubJurisdictionChosen)
	step(t, s, workflow.TriggerSubmitIdentifier, workflow.Input{Identifier: "1:25-CV-01815"}, workflow.PhaseIdentifierEntered)
	step(t, s, workflow.TriggerRequestFollowUp, workflow.Input{}, workflow.PhaseFollowUpTriggered)
	step(t, s, workflow.TriggerCompleteFollowUp, workflow.Input{Alert: &alert}, workflow.PhaseCompleted)

	res := s.ResetSession(context.Background())

	require.True(t, res.OK())
	assert.Equal(t, workflow.PhaseIdle, res.Phase)
	assert.True(t, res.Selection.IsEmpty())
	assertExclusive(t, s, workflow.PhaseIdle)
}

func TestSessionAudit(t *testing.T) {
	t.Run("should record every trigger with its trails", func(t *testing.T) {
		trail := &resolver.Trail{Target: "category_link"}
		d := new(mocks.MockDriver)
		d.On("ChooseCategory", mock.Anything, mock.Anything, "Dockets by State").
			Run(func(args mock.Arguments) {
				j := args.Get(1).(*workflow.Journal)
				j.Trails = append(j.Trails, trail)
			}).Return(nil)

		auditor := new(mocks.MockAuditor)
		auditor.On("RecordTransition", mock.Anything, mock.MatchedBy(func(r workflow.TransitionRecord) bool {
			return r.Trigger == workflow.TriggerChooseCategory &&
				r.From == workflow.PhaseIdle &&
				r.To == workflow.PhaseCategoryChosen &&
				r.Status == workflow.StatusSuccess &&
				r.SessionID == "s-1" &&
				len(r.Trails) == 1
		})).Return(nil).Once()

		s := newSession(t, d, workflow.WithAuditor(auditor))
		step(t, s, workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State"}, workflow.PhaseCategoryChosen)
		auditor.AssertExpectations(t)
	})

	t.Run("should not fail the phase when the audit write fails", func(t *testing.T) {
		auditor := new(mocks.MockAuditor)
		auditor.On("RecordTransition", mock.Anything, mock.Anything).Return(errors.New("db down"))

		s := newSession(t, happyDriver(), workflow.WithAuditor(auditor))
		step(t, s, workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State"}, workflow.PhaseCategoryChosen)
	})

	t.Run("should capture a checkpoint for a phase failure", func(t *testing.T) {
		d := new(mocks.MockDriver)
		d.On("ChooseCategory", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("tab crashed"))
		rec := new(mocks.MockRecorder)
		rec.On("Ref").Return("/tmp/checkpoints/s-1")
		rec.On("Capture", mock.Anything, "phase_choose_category_error").Return().Once()

		s := newSession(t, d, workflow.WithRecorder(rec))
		res := s.StartPhase(context.Background(), workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State"})

		assert.Equal(t, workflow.KindInternal, res.ErrorKind)
		assert.Equal(t, "/tmp/checkpoints/s-1", res.DiagnosticsRef)
		rec.AssertExpectations(t)
	})
}

func TestSessionSerializesTriggers(t *testing.T) {
	s := newSession(t, happyDriver())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.StartPhase(context.Background(), workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State"})
			_ = s.Flags()
		}()
	}
	wg.Wait()
	assertExclusive(t, s, workflow.PhaseCategoryChosen)
}

func TestBootstrap(t *testing.T) {
	d := new(mocks.MockDriver)
	d.On("SignIn", mock.Anything, mock.Anything, mock.MatchedBy(func(c workflow.Credentials) bool {
		return c.Username == "jdoe"
	})).Return(nil)
	d.On("ChooseCategory", mock.Anything, mock.Anything, "Dockets by State").Return(nil)
	s := newSession(t, d)

	res := s.Bootstrap(context.Background(), workflow.Credentials{URL: "https://example.test", Username: "jdoe"})

	require.True(t, res.OK())
	assertExclusive(t, s, workflow.PhaseIdle)

	step(t, s, workflow.TriggerChooseCategory, workflow.Input{Category: "Dockets by State"}, workflow.PhaseCategoryChosen)
	res = s.Bootstrap(context.Background(), workflow.Credentials{})
	assert.Equal(t, workflow.KindInvalidTransition, res.ErrorKind)
	d.AssertExpectations(t)
}

func TestAllowedTriggers(t *testing.T) {
	assert.Equal(t, []workflow.Trigger{workflow.TriggerChooseCategory}, workflow.AllowedTriggers(workflow.PhaseIdle))
	assert.ElementsMatch(t,
		[]workflow.Trigger{workflow.TriggerChooseSubRegion, workflow.TriggerSubmitIdentifier},
		workflow.AllowedTriggers(workflow.PhaseSubJurisdictionChosen))
	assert.Empty(t, workflow.AllowedTriggers(workflow.PhaseCompleted))
	assert.Empty(t, workflow.AllowedTriggers(workflow.Phase("Bogus")))
	assert.True(t, workflow.PhaseCompleted.IsTerminal())
	assert.False(t, workflow.PhaseFollowUpTriggered.IsTerminal())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, workflow.KindNone, workflow.Classify(nil))
	assert.Equal(t, workflow.KindNotFound, workflow.Classify(&resolver.NotFoundError{Target: "x"}))
	assert.Equal(t, workflow.KindNavigation, workflow.Classify(&workflow.NavigationError{Step: "x", Err: context.DeadlineExceeded}))
	assert.Equal(t, workflow.KindInvalidInput, workflow.Classify(locator.ErrInvalidCandidate))
	assert.Equal(t, workflow.KindInternal, workflow.Classify(errors.New("?")))
}
