// File: internal/service/sessions.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/checkpoint"
	"github.com/xkilldash9x/docketpilot/internal/config"
	"github.com/xkilldash9x/docketpilot/internal/interaction"
	"github.com/xkilldash9x/docketpilot/internal/resolver"
	"github.com/xkilldash9x/docketpilot/internal/workflow"
)

var (
	// ErrSessionNotFound is returned for unknown or already closed session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCapacity is returned when the configured number of sessions is open.
	ErrCapacity = errors.New("session capacity reached")
	// ErrBootstrapFailed is returned when sign-in did not complete.
	ErrBootstrapFailed = errors.New("sign-in bootstrap failed")
	// ErrManagerClosed is returned by Start after CloseAll.
	ErrManagerClosed = errors.New("session manager is closed")
)

// Tab is a browser tab owned by exactly one session.
type Tab interface {
	dom.Page
	Close() error
}

// TabOpener opens isolated browser tabs.
type TabOpener interface {
	OpenTab(ctx context.Context) (Tab, error)
}

// DriverFactory builds the page driver for a new session.
type DriverFactory func(tab Tab, rec checkpoint.Recorder, logger *zap.Logger) workflow.Driver

type managedSession struct {
	session  *workflow.Session
	tab      Tab
	lastUsed time.Time
}

// SessionManager owns every live workflow session and the tab behind it.
type SessionManager struct {
	opener    TabOpener
	cfg       config.Interface
	auditor   workflow.Auditor
	newDriver DriverFactory
	clock     dom.Clock
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*managedSession
	starting int
	closed   bool
}

// ManagerOption customizes a SessionManager.
type ManagerOption func(*SessionManager)

// WithAuditor persists the transitions of every session through a.
func WithAuditor(a workflow.Auditor) ManagerOption {
	return func(m *SessionManager) { m.auditor = a }
}

// WithDriverFactory replaces the default page driver.
func WithDriverFactory(f DriverFactory) ManagerOption {
	return func(m *SessionManager) { m.newDriver = f }
}

// WithClock overrides the clock used for idle tracking and timestamps.
func WithClock(c dom.Clock) ManagerOption {
	return func(m *SessionManager) { m.clock = c }
}

// NewSessionManager creates an empty registry.
func NewSessionManager(opener TabOpener, cfg config.Interface, logger *zap.Logger, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		opener:   opener,
		cfg:      cfg,
		auditor:  workflow.NopAuditor{},
		clock:    dom.RealClock{},
		logger:   logger.Named("session_manager"),
		sessions: make(map[string]*managedSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.newDriver == nil {
		m.newDriver = m.pageDriver
	}
	return m
}

// pageDriver is the production DriverFactory: resolver, interactor and driver over one tab.
func (m *SessionManager) pageDriver(tab Tab, rec checkpoint.Recorder, logger *zap.Logger) workflow.Driver {
	timing := m.cfg.Timing()
	res := resolver.New(tab, m.clock, resolver.Options{
		CandidateTimeout: timing.CandidateTimeout,
		PollInterval:     timing.PollInterval,
	}, logger)
	inter := interaction.NewInteractor(tab, m.clock, interaction.Options{
		SettleTimeout: timing.SettleTimeout,
		CharDelay:     timing.CharDelay,
		ActionTimeout: timing.ActionTimeout,
	}, logger)
	return workflow.NewPageDriver(tab, res, inter, rec, workflow.Timing{
		ResolutionBudget:  timing.ResolutionBudget,
		NavigationTimeout: timing.NavigationTimeout,
	}, logger)
}

// Credentials builds the sign-in credentials from the target configuration.
func Credentials(t config.TargetConfig) workflow.Credentials {
	return workflow.Credentials{
		URL:       t.URL,
		Username:  t.Username,
		Password:  t.Password,
		ClientID:  t.ClientID,
		Gateway:   t.ConfigureGateway,
		IACValues: iacValues(t),
	}
}

func iacValues(t config.TargetConfig) []string {
	if !t.ConfigureIAC {
		return nil
	}
	if len(t.IACValues) > 0 {
		return t.IACValues
	}
	return workflow.DefaultIACValues
}

// Start opens a tab, runs the sign-in bootstrap and registers the session. On a
// failed bootstrap the tab is closed and the result is returned with
// ErrBootstrapFailed.
func (m *SessionManager) Start(ctx context.Context) (*workflow.Session, workflow.PhaseResult, error) {
	if err := m.reserve(); err != nil {
		return nil, workflow.PhaseResult{}, err
	}
	defer m.release()

	id := uuid.NewString()
	log := m.logger.With(zap.String("session_id", id))

	tab, err := m.opener.OpenTab(ctx)
	if err != nil {
		return nil, workflow.PhaseResult{}, fmt.Errorf("failed to open tab for session %s: %w", id, err)
	}

	cpCfg := m.cfg.Checkpoint()
	var rec checkpoint.Recorder = checkpoint.Nop{}
	fileRec, err := checkpoint.NewFileRecorder(cpCfg.Dir, id, tab, m.clock, checkpoint.Options{
		CaptureTimeout: cpCfg.CaptureTimeout,
		DumpPageSource: cpCfg.DumpPageSource,
	}, m.logger)
	if err != nil {
		log.Warn("Checkpoint recorder unavailable, continuing without diagnostics.", zap.Error(err))
	} else {
		rec = fileRec
	}

	session := workflow.NewSession(id, m.newDriver(tab, rec, m.logger), m.logger,
		workflow.WithAuditor(m.auditor),
		workflow.WithRecorder(rec),
		workflow.WithClock(m.clock),
	)

	target := m.cfg.Target()
	log.Info("Starting session.", zap.String("username", config.MaskUsername(target.Username)))
	res := session.Bootstrap(ctx, Credentials(target))
	if !res.OK() {
		if cerr := tab.Close(); cerr != nil {
			log.Warn("Failed to close tab after sign-in failure.", zap.Error(cerr))
		}
		return nil, res, fmt.Errorf("%w: %s", ErrBootstrapFailed, res.Message)
	}

	m.mu.Lock()
	closed := m.closed
	if !closed {
		m.sessions[id] = &managedSession{session: session, tab: tab, lastUsed: m.clock.Now()}
	}
	m.mu.Unlock()
	if closed {
		_ = tab.Close()
		return nil, res, ErrManagerClosed
	}

	log.Info("Session started.")
	return session, res, nil
}

func (m *SessionManager) reserve() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if limit := m.cfg.API().MaxSessions; limit > 0 && len(m.sessions)+m.starting >= limit {
		return fmt.Errorf("%w (%d)", ErrCapacity, limit)
	}
	m.starting++
	return nil
}

func (m *SessionManager) release() {
	m.mu.Lock()
	m.starting--
	m.mu.Unlock()
}

// Get returns a live session and marks it as used.
func (m *SessionManager) Get(id string) (*workflow.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	ms.lastUsed = m.clock.Now()
	return ms.session, nil
}

// List returns a snapshot of every session, oldest first.
func (m *SessionManager) List() []workflow.State {
	m.mu.Lock()
	sessions := make([]*workflow.Session, 0, len(m.sessions))
	for _, ms := range m.sessions {
		sessions = append(sessions, ms.session)
	}
	m.mu.Unlock()

	states := make([]workflow.State, 0, len(sessions))
	for _, s := range sessions {
		states = append(states, s.Snapshot())
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].CreatedAt.Equal(states[j].CreatedAt) {
			return states[i].ID < states[j].ID
		}
		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})
	return states
}

// Len reports how many sessions are registered.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close unregisters a session and closes its tab.
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := ms.tab.Close(); err != nil {
		m.logger.Warn("Tab did not close cleanly.", zap.String("session_id", id), zap.Error(err))
	}
	m.logger.Info("Session closed.", zap.String("session_id", id))
	return nil
}

// CleanupIdle closes sessions unused for longer than the configured idle timeout
// and returns how many were closed.
func (m *SessionManager) CleanupIdle() int {
	timeout := m.cfg.API().SessionIdleTimeout
	if timeout <= 0 {
		return 0
	}
	now := m.clock.Now()

	m.mu.Lock()
	var idle []string
	for id, ms := range m.sessions {
		if now.Sub(ms.lastUsed) > timeout {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	closed := 0
	for _, id := range idle {
		if err := m.Close(id); err == nil {
			closed++
		}
	}
	if closed > 0 {
		m.logger.Info("Closed idle sessions.", zap.Int("count", closed), zap.Duration("idle_timeout", timeout))
	}
	return closed
}

// RunJanitor calls CleanupIdle every interval until ctx is done.
func (m *SessionManager) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CleanupIdle()
		}
	}
}

// CloseAll closes every session concurrently and refuses new ones. Tab close
// errors are joined.
func (m *SessionManager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*managedSession)
	m.closed = true
	m.mu.Unlock()

	if len(all) == 0 {
		return nil
	}
	m.logger.Info("Closing all sessions.", zap.Int("count", len(all)))

	var (
		g     errgroup.Group
		errMu sync.Mutex
		errs  []error
		done  = make(chan struct{})
	)
	g.SetLimit(4)
	// Every tab is closed even when ctx expires; the deadline only bounds the wait.
	go func() {
		defer close(done)
		for id, ms := range all {
			g.Go(func() error {
				if err := ms.tab.Close(); err != nil {
					errMu.Lock()
					errs = append(errs, fmt.Errorf("session %s: %w", id, err))
					errMu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline reached before every tab closed. Remaining tabs close in the background.")
		return ctx.Err()
	}

	errMu.Lock()
	defer errMu.Unlock()
	return errors.Join(errs...)
}
