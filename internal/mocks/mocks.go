// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
	"github.com/xkilldash9x/docketpilot/internal/locator"
	"github.com/xkilldash9x/docketpilot/internal/workflow"
)

// -- Page Mock --

// MockPage mocks dom.Page.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) WaitReady(ctx context.Context, timeout time.Duration) error {
	return m.Called(ctx, timeout).Error(0)
}

func (m *MockPage) Find(ctx context.Context, c locator.Candidate) ([]dom.Element, error) {
	args := m.Called(ctx, c)
	els, _ := args.Get(0).([]dom.Element)
	return els, args.Error(1)
}

func (m *MockPage) Enumerate(ctx context.Context, scope dom.Element) ([]dom.Element, error) {
	args := m.Called(ctx, scope)
	els, _ := args.Get(0).([]dom.Element)
	return els, args.Error(1)
}

func (m *MockPage) ScrollIntoView(ctx context.Context, el dom.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPage) WaitInteractable(ctx context.Context, el dom.Element, timeout time.Duration) error {
	return m.Called(ctx, el, timeout).Error(0)
}

func (m *MockPage) Click(ctx context.Context, el dom.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPage) ScriptClick(ctx context.Context, el dom.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPage) Clear(ctx context.Context, el dom.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPage) SendText(ctx context.Context, el dom.Element, text string) error {
	return m.Called(ctx, el, text).Error(0)
}

func (m *MockPage) PressEnter(ctx context.Context, el dom.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPage) SelectOption(ctx context.Context, el dom.Element, value string) error {
	return m.Called(ctx, el, value).Error(0)
}

func (m *MockPage) ReadValue(ctx context.Context, el dom.Element) (string, error) {
	args := m.Called(ctx, el)
	return args.String(0), args.Error(1)
}

func (m *MockPage) WaitForValue(ctx context.Context, el dom.Element, want string, timeout time.Duration) error {
	return m.Called(ctx, el, want, timeout).Error(0)
}

func (m *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *MockPage) Source(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// -- Checkpoint Mock --

// MockRecorder mocks checkpoint.Recorder.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Capture(ctx context.Context, label string) {
	m.Called(ctx, label)
}

func (m *MockRecorder) Ref() string {
	return m.Called().String(0)
}

// -- Audit Mock --

// MockAuditor mocks workflow.Auditor.
type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) RecordTransition(ctx context.Context, rec workflow.TransitionRecord) error {
	return m.Called(ctx, rec).Error(0)
}

// -- Driver Mock --

// MockDriver mocks workflow.Driver.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) SignIn(ctx context.Context, j *workflow.Journal, creds workflow.Credentials) error {
	return m.Called(ctx, j, creds).Error(0)
}

func (m *MockDriver) ChooseCategory(ctx context.Context, j *workflow.Journal, category string) error {
	return m.Called(ctx, j, category).Error(0)
}

func (m *MockDriver) ChooseSubJurisdiction(ctx context.Context, j *workflow.Journal, subJurisdiction string) error {
	return m.Called(ctx, j, subJurisdiction).Error(0)
}

func (m *MockDriver) ChooseSubRegion(ctx context.Context, j *workflow.Journal, subJurisdiction, subRegion string) error {
	return m.Called(ctx, j, subJurisdiction, subRegion).Error(0)
}

func (m *MockDriver) EnterIdentifier(ctx context.Context, j *workflow.Journal, identifier string) error {
	return m.Called(ctx, j, identifier).Error(0)
}

func (m *MockDriver) TriggerFollowUp(ctx context.Context, j *workflow.Journal) error {
	return m.Called(ctx, j).Error(0)
}

func (m *MockDriver) CompleteFollowUp(ctx context.Context, j *workflow.Journal, alert workflow.AlertSettings) error {
	return m.Called(ctx, j, alert).Error(0)
}

var (
	_ dom.Page         = (*MockPage)(nil)
	_ workflow.Auditor = (*MockAuditor)(nil)
	_ workflow.Driver  = (*MockDriver)(nil)
)
