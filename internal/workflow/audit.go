package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/docketpilot/internal/resolver"
)

// TransitionRecord is the durable account of one trigger handled by a session.
type TransitionRecord struct {
	ID             uuid.UUID         `json:"id"`
	SessionID      string            `json:"session_id"`
	Trigger        Trigger           `json:"trigger"`
	From           Phase             `json:"from"`
	To             Phase             `json:"to"`
	Status         Status            `json:"status"`
	ErrorKind      ErrorKind         `json:"error_kind,omitempty"`
	Message        string            `json:"message,omitempty"`
	Selection      Selection         `json:"selection"`
	DiagnosticsRef string            `json:"diagnostics_ref,omitempty"`
	Trails         []*resolver.Trail `json:"trails,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

// Auditor persists transition records. Implementations must be safe for concurrent use.
type Auditor interface {
	RecordTransition(ctx context.Context, rec TransitionRecord) error
}

// NopAuditor discards every record.
type NopAuditor struct{}

func (NopAuditor) RecordTransition(context.Context, TransitionRecord) error { return nil }

// Journal collects what a driver did while executing one trigger.
type Journal struct {
	Trails      []*resolver.Trail
	Checkpoints []string
}

func (j *Journal) addTrail(t *resolver.Trail) {
	if j == nil || t == nil {
		return
	}
	j.Trails = append(j.Trails, t)
}

func (j *Journal) addCheckpoint(label string) {
	if j == nil {
		return
	}
	j.Checkpoints = append(j.Checkpoints, label)
}
