// internal/workflow/session.go
package workflow

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/checkpoint"
)

// Status is the outcome of a trigger.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// PhaseResult is returned for every trigger, successful or not.
type PhaseResult struct {
	Status         Status    `json:"status"`
	Phase          Phase     `json:"phase"`
	View           Phase     `json:"view"`
	Selection      Selection `json:"selection"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	Message        string    `json:"message,omitempty"`
	DiagnosticsRef string    `json:"diagnostics_ref,omitempty"`
}

// OK reports whether the trigger succeeded.
func (r PhaseResult) OK() bool { return r.Status == StatusSuccess }

// Failure describes the last failed trigger. It is cleared by the next success,
// a step back or a reset.
type Failure struct {
	Trigger Trigger   `json:"trigger"`
	From    Phase     `json:"from"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// State is a point-in-time copy of a session.
type State struct {
	ID        string         `json:"id"`
	Phase     Phase          `json:"phase"`
	View      Phase          `json:"view"`
	Flags     map[Phase]bool `json:"flags"`
	Selection Selection      `json:"selection"`
	// Allowed lists the forward triggers the current view accepts.
	Allowed   []Trigger      `json:"allowed_triggers"`
	Failure   *Failure       `json:"failure,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Session is one user's walk through the workflow. All triggers are
// serialized; a trigger arriving while another runs waits for it.
type Session struct {
	ID string

	mu        sync.Mutex
	view      Phase
	flags     viewFlags
	selection Selection
	failure   *Failure
	created   time.Time
	updated   time.Time

	driver   Driver
	recorder checkpoint.Recorder
	auditor  Auditor
	clock    dom.Clock
	logger   *zap.Logger
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithAuditor persists every transition through a.
func WithAuditor(a Auditor) SessionOption {
	return func(s *Session) { s.auditor = a }
}

// WithRecorder sets the checkpoint recorder used for phase failures and reported as the diagnostics reference.
func WithRecorder(r checkpoint.Recorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(c dom.Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// NewSession creates a session in the Idle phase.
func NewSession(id string, driver Driver, logger *zap.Logger, opts ...SessionOption) *Session {
	s := &Session{
		ID:       id,
		driver:   driver,
		recorder: checkpoint.Nop{},
		auditor:  NopAuditor{},
		clock:    dom.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Named("session").With(zap.String("session_id", id))
	s.created = s.clock.Now()
	s.commit(PhaseIdle, Selection{})
	return s
}

// transition describes one forward trigger: the phases it may start from and
// the work it performs. run commits every phase it reaches.
type transition struct {
	from []Phase
	run  func(s *Session, ctx context.Context, j *Journal, in Input) error
}

var transitions = map[Trigger]transition{
	TriggerChooseCategory: {
		from: []Phase{PhaseIdle, PhaseCategoryChosen},
		run:  (*Session).runChooseCategory,
	},
	TriggerChooseSubJurisdiction: {
		from: []Phase{PhaseCategoryChosen},
		run:  (*Session).runChooseSubJurisdiction,
	},
	TriggerChooseSubRegion: {
		from: []Phase{PhaseSubJurisdictionChosen},
		run:  (*Session).runChooseSubRegion,
	},
	TriggerSubmitIdentifier: {
		from: []Phase{PhaseSubJurisdictionChosen, PhaseSubRegionChosen},
		run:  (*Session).runSubmitIdentifier,
	},
	TriggerRequestFollowUp: {
		from: []Phase{PhaseIdentifierEntered},
		run:  (*Session).runRequestFollowUp,
	},
	TriggerCompleteFollowUp: {
		from: []Phase{PhaseFollowUpTriggered},
		run:  (*Session).runCompleteFollowUp,
	},
}

// AllowedTriggers returns the forward triggers accepted from p.
func AllowedTriggers(p Phase) []Trigger {
	if !p.IsValid() || p.IsTerminal() {
		return nil
	}
	var out []Trigger
	for trig, t := range transitions {
		if slices.Contains(t.from, p) {
			out = append(out, trig)
		}
	}
	slices.Sort(out)
	return out
}

// StartPhase handles a forward trigger. On success the session has advanced
// and exactly the new phase's view is visible. On failure the last committed
// phase and its view are kept and ActivePhase reports Failed.
func (s *Session) StartPhase(ctx context.Context, trig Trigger, in Input) PhaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.view
	if err := s.checkFlags(); err != nil {
		return s.finish(ctx, trig, from, nil, err)
	}
	t, ok := transitions[trig]
	if !ok {
		return s.finish(ctx, trig, from, nil, fmt.Errorf("%w: unknown trigger '%s'", ErrInvalidTransition, trig))
	}
	if !slices.Contains(t.from, s.view) {
		return s.finish(ctx, trig, from, nil, fmt.Errorf("%w: '%s' is not allowed from %s", ErrInvalidTransition, trig, s.view))
	}

	s.logger.Info("Starting phase.", zap.String("trigger", string(trig)), zap.String("from", string(from)))
	j := &Journal{}
	err := t.run(s, ctx, j, in)
	return s.finish(ctx, trig, from, j, err)
}

func (s *Session) runChooseCategory(ctx context.Context, j *Journal, in Input) error {
	if err := require("category", in.Category); err != nil {
		return err
	}
	if err := s.driver.ChooseCategory(ctx, j, in.Category); err != nil {
		return err
	}
	s.commit(PhaseCategoryChosen, Selection{Category: in.Category})

	// A sub-jurisdiction supplied with the category skips ahead. A failure
	// there leaves the committed category in place.
	if in.SubJurisdiction != "" {
		return s.runChooseSubJurisdiction(ctx, j, in)
	}
	return nil
}

func (s *Session) runChooseSubJurisdiction(ctx context.Context, j *Journal, in Input) error {
	if err := require("sub_jurisdiction", in.SubJurisdiction); err != nil {
		return err
	}
	if err := s.driver.ChooseSubJurisdiction(ctx, j, in.SubJurisdiction); err != nil {
		return err
	}
	sel := s.selection
	sel.SubJurisdiction = in.SubJurisdiction
	s.commit(PhaseSubJurisdictionChosen, sel)
	return nil
}

func (s *Session) runChooseSubRegion(ctx context.Context, j *Journal, in Input) error {
	if err := require("sub_region", in.SubRegion); err != nil {
		return err
	}
	if err := s.driver.ChooseSubRegion(ctx, j, s.selection.SubJurisdiction, in.SubRegion); err != nil {
		return err
	}
	sel := s.selection
	sel.SubRegion = in.SubRegion
	s.commit(PhaseSubRegionChosen, sel)
	return nil
}

func (s *Session) runSubmitIdentifier(ctx context.Context, j *Journal, in Input) error {
	if err := require("identifier", in.Identifier); err != nil {
		return err
	}
	if err := s.driver.EnterIdentifier(ctx, j, in.Identifier); err != nil {
		return err
	}
	sel := s.selection
	sel.Identifier = in.Identifier
	s.commit(PhaseIdentifierEntered, sel)
	return nil
}

func (s *Session) runRequestFollowUp(ctx context.Context, j *Journal, _ Input) error {
	if err := s.driver.TriggerFollowUp(ctx, j); err != nil {
		return err
	}
	s.commit(PhaseFollowUpTriggered, s.selection)
	return nil
}

func (s *Session) runCompleteFollowUp(ctx context.Context, j *Journal, in Input) error {
	if in.Alert == nil {
		return fmt.Errorf("%w: alert settings are required", ErrInvalidInput)
	}
	if err := in.Alert.Validate(); err != nil {
		return err
	}
	if err := s.driver.CompleteFollowUp(ctx, j, *in.Alert); err != nil {
		return err
	}
	s.commit(PhaseCompleted, s.selection)
	return nil
}

// GoBack steps to the previous phase and discards the choice made in the
// phase being left. It performs no page interaction.
func (s *Session) GoBack(ctx context.Context) PhaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.view
	sel := s.selection
	var to Phase
	switch s.view {
	case PhaseCategoryChosen:
		to, sel = PhaseIdle, Selection{}
	case PhaseSubJurisdictionChosen:
		to, sel.SubJurisdiction = PhaseCategoryChosen, ""
	case PhaseSubRegionChosen:
		to, sel.SubRegion = PhaseSubJurisdictionChosen, ""
	case PhaseIdentifierEntered:
		to, sel.Identifier = PhaseSubJurisdictionChosen, ""
		if sel.SubRegion != "" {
			to = PhaseSubRegionChosen
		}
	case PhaseFollowUpTriggered:
		to = PhaseIdentifierEntered
	case PhaseCompleted:
		to = PhaseFollowUpTriggered
	default:
		return s.finish(ctx, TriggerBack, from, nil, fmt.Errorf("%w: nothing to go back to from %s", ErrInvalidTransition, s.view))
	}
	s.commit(to, sel)
	s.logger.Info("Stepped back.", zap.String("from", string(from)), zap.String("to", string(to)))
	return s.finish(ctx, TriggerBack, from, nil, nil)
}

// ResetSession returns to Idle with an empty selection from any phase.
func (s *Session) ResetSession(ctx context.Context) PhaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.view
	s.commit(PhaseIdle, Selection{})
	s.logger.Info("Session reset.", zap.String("from", string(from)))
	return s.finish(ctx, TriggerReset, from, nil, nil)
}

// Bootstrap runs the sign-in flow. The session stays Idle either way.
func (s *Session) Bootstrap(ctx context.Context, creds Credentials) PhaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.view
	if from != PhaseIdle {
		return s.finish(ctx, TriggerSignIn, from, nil, fmt.Errorf("%w: sign-in is only allowed from %s", ErrInvalidTransition, PhaseIdle))
	}
	j := &Journal{}
	err := s.driver.SignIn(ctx, j, creds)
	if err == nil {
		s.commit(PhaseIdle, Selection{})
	}
	return s.finish(ctx, TriggerSignIn, from, j, err)
}

// ActivePhase is the phase a caller should display. It is Failed after a
// failed trigger until the next success, step back or reset.
func (s *Session) ActivePhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePhase()
}

// ActiveView is the last successfully committed phase.
func (s *Session) ActiveView() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Flags returns a copy of the view flags.
func (s *Session) Flags() map[Phase]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags.asMap()
}

// Selection returns a copy of the accumulated choices.
func (s *Session) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Snapshot returns a consistent copy of the whole session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		ID:        s.ID,
		Phase:     s.activePhase(),
		View:      s.view,
		Flags:     s.flags.asMap(),
		Selection: s.selection,
		Allowed:   AllowedTriggers(s.view),
		CreatedAt: s.created,
		UpdatedAt: s.updated,
	}
	if s.failure != nil {
		f := *s.failure
		st.Failure = &f
	}
	return st
}

// DiagnosticsRef points at the session's checkpoint artifacts.
func (s *Session) DiagnosticsRef() string {
	return s.recorder.Ref()
}

func (s *Session) activePhase() Phase {
	if s.failure != nil {
		return PhaseFailed
	}
	return s.view
}

// commit is the only writer of view, flags and selection.
func (s *Session) commit(p Phase, sel Selection) {
	s.view = p
	s.flags = flagsFor(p)
	s.selection = sel
	s.failure = nil
	s.updated = s.clock.Now()
}

func (s *Session) checkFlags() error {
	active, err := s.flags.active()
	if err != nil {
		return err
	}
	if active != s.view {
		return fmt.Errorf("visible view %s does not match phase %s", active, s.view)
	}
	return nil
}

// finish builds the result, records failures and emits the audit record.
func (s *Session) finish(ctx context.Context, trig Trigger, from Phase, j *Journal, err error) PhaseResult {
	res := PhaseResult{
		Status:         StatusSuccess,
		DiagnosticsRef: s.recorder.Ref(),
	}
	if err != nil {
		kind := Classify(err)
		res.Status = StatusFailure
		res.ErrorKind = kind
		res.Message = err.Error()
		// Rejected triggers never touched the page, so there is nothing to capture.
		if kind != KindInvalidTransition && kind != KindInvalidInput {
			s.failure = &Failure{Trigger: trig, From: from, Kind: kind, Message: err.Error(), At: s.clock.Now()}
			s.recorder.Capture(context.WithoutCancel(ctx), "phase_"+string(trig)+"_error")
		}
		s.logger.Warn("Phase failed.",
			zap.String("trigger", string(trig)),
			zap.String("from", string(from)),
			zap.String("kind", string(kind)),
			zap.Error(err))
	} else {
		s.logger.Info("Phase completed.",
			zap.String("trigger", string(trig)),
			zap.String("from", string(from)),
			zap.String("to", string(s.view)))
	}
	res.Phase = s.activePhase()
	res.View = s.view
	res.Selection = s.selection

	rec := TransitionRecord{
		ID:             uuid.New(),
		SessionID:      s.ID,
		Trigger:        trig,
		From:           from,
		To:             res.Phase,
		Status:         res.Status,
		ErrorKind:      res.ErrorKind,
		Message:        res.Message,
		Selection:      res.Selection,
		DiagnosticsRef: res.DiagnosticsRef,
		OccurredAt:     s.clock.Now(),
	}
	if j != nil {
		rec.Trails = j.Trails
	}
	if aerr := s.auditor.RecordTransition(context.WithoutCancel(ctx), rec); aerr != nil {
		s.logger.Error("Failed to record transition.", zap.Error(aerr))
	}
	return res
}
