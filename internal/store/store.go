package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/resolver"
	"github.com/xkilldash9x/docketpilot/internal/workflow"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the audit tables. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS phase_transitions (
    id              UUID PRIMARY KEY,
    session_id      TEXT NOT NULL,
    trigger         TEXT NOT NULL,
    from_phase      TEXT NOT NULL,
    to_phase        TEXT NOT NULL,
    status          TEXT NOT NULL,
    error_kind      TEXT NOT NULL DEFAULT '',
    message         TEXT NOT NULL DEFAULT '',
    selection       JSONB NOT NULL DEFAULT '{}',
    diagnostics_ref TEXT NOT NULL DEFAULT '',
    occurred_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS phase_transitions_session_idx ON phase_transitions (session_id, occurred_at);
CREATE TABLE IF NOT EXISTS resolution_attempts (
    transition_id UUID NOT NULL REFERENCES phase_transitions (id) ON DELETE CASCADE,
    seq           INTEGER NOT NULL,
    target        TEXT NOT NULL,
    source        TEXT NOT NULL,
    outcome       TEXT NOT NULL,
    detail        TEXT NOT NULL DEFAULT '',
    attempted_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (transition_id, seq)
);`

const (
	sqlInsertTransition = `
        INSERT INTO phase_transitions (id, session_id, trigger, from_phase, to_phase, status, error_kind, message, selection, diagnostics_ref, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
    `
	sqlSelectTransitions = `
        SELECT id, trigger, from_phase, to_phase, status, error_kind, message, selection, diagnostics_ref, occurred_at
        FROM phase_transitions
        WHERE session_id = $1
        ORDER BY occurred_at ASC;
    `
	sqlSelectAttempts = `
        SELECT transition_id, target, source, outcome, detail, attempted_at
        FROM resolution_attempts
        WHERE transition_id = ANY($1)
        ORDER BY transition_id, seq ASC;
    `
)

var attemptColumns = []string{"transition_id", "seq", "target", "source", "outcome", "detail", "attempted_at"}

// Store persists the phase transition audit in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ workflow.Auditor = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// RecordTransition writes the transition and its resolution attempts in one transaction.
func (s *Store) RecordTransition(ctx context.Context, rec workflow.TransitionRecord) error {
	return s.RecordTransitions(ctx, []workflow.TransitionRecord{rec})
}

// RecordTransitions writes a batch of transitions and all of their resolution
// attempts in one transaction. Either the whole batch is stored or none of it.
func (s *Store) RecordTransitions(ctx context.Context, recs []workflow.TransitionRecord) error {
	if len(recs) == 0 {
		return nil
	}

	selections := make([][]byte, len(recs))
	for i, rec := range recs {
		selection, err := json.Marshal(rec.Selection)
		if err != nil {
			return fmt.Errorf("failed to encode selection: %w", err)
		}
		selections[i] = selection
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rollbackErr))
		}
	}()

	var rows [][]any
	for i, rec := range recs {
		_, err = tx.Exec(ctx, sqlInsertTransition,
			rec.ID, rec.SessionID, string(rec.Trigger), string(rec.From), string(rec.To),
			string(rec.Status), string(rec.ErrorKind), rec.Message, selections[i],
			rec.DiagnosticsRef, rec.OccurredAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert transition: %w", err)
		}
		rows = append(rows, attemptRows(rec)...)
	}

	if len(rows) > 0 {
		copied, err := tx.CopyFrom(ctx, pgx.Identifier{"resolution_attempts"}, attemptColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy resolution attempts: %w", err)
		}
		if int(copied) != len(rows) {
			return fmt.Errorf("mismatch in copied attempts count: expected %d, got %d", len(rows), copied)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	if len(recs) > 1 {
		s.log.Debug("Persisted transition batch.", zap.Int("transitions", len(recs)), zap.Int("attempts", len(rows)))
	}
	return nil
}

// attemptRows flattens every trail into rows numbered in the order they happened.
func attemptRows(rec workflow.TransitionRecord) [][]any {
	var rows [][]any
	for _, trail := range rec.Trails {
		if trail == nil {
			continue
		}
		for _, a := range trail.Attempts {
			rows = append(rows, []any{
				rec.ID, len(rows), trail.Target, a.Source, string(a.Outcome), a.Detail, a.Timestamp.UTC(),
			})
		}
	}
	return rows
}

// TransitionsBySession returns a session's history, oldest first, with trails attached.
func (s *Store) TransitionsBySession(ctx context.Context, sessionID string) ([]workflow.TransitionRecord, error) {
	rows, err := s.pool.Query(ctx, sqlSelectTransitions, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var (
		records []workflow.TransitionRecord
		ids     []uuid.UUID
	)
	for rows.Next() {
		var (
			rec                             workflow.TransitionRecord
			trigger, from, to, status, kind string
			selection                       []byte
		)
		err := rows.Scan(&rec.ID, &trigger, &from, &to, &status, &kind, &rec.Message, &selection, &rec.DiagnosticsRef, &rec.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %w", err)
		}
		if len(selection) > 0 {
			if err := json.Unmarshal(selection, &rec.Selection); err != nil {
				return nil, fmt.Errorf("failed to decode selection of %s: %w", rec.ID, err)
			}
		}
		rec.SessionID = sessionID
		rec.Trigger = workflow.Trigger(trigger)
		rec.From, rec.To = workflow.Phase(from), workflow.Phase(to)
		rec.Status = workflow.Status(status)
		rec.ErrorKind = workflow.ErrorKind(kind)
		records = append(records, rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	if len(records) == 0 {
		return records, nil
	}

	trails, err := s.trailsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Trails = trails[records[i].ID]
	}
	return records, nil
}

// trailsFor regroups attempt rows into trails. Consecutive attempts with the same
// target belong to one trail.
func (s *Store) trailsFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]*resolver.Trail, error) {
	rows, err := s.pool.Query(ctx, sqlSelectAttempts, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolution attempts: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]*resolver.Trail)
	for rows.Next() {
		var (
			id                              uuid.UUID
			target, source, outcome, detail string
			at                              time.Time
		)
		if err := rows.Scan(&id, &target, &source, &outcome, &detail, &at); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		trails := out[id]
		if len(trails) == 0 || trails[len(trails)-1].Target != target {
			trails = append(trails, &resolver.Trail{Target: target})
			out[id] = trails
		}
		last := trails[len(trails)-1]
		last.Attempts = append(last.Attempts, resolver.Attempt{
			Source:    source,
			Outcome:   resolver.Outcome(outcome),
			Detail:    detail,
			Timestamp: at,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
