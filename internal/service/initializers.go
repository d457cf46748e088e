// File: internal/service/initializers.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/config"
	"github.com/xkilldash9x/docketpilot/internal/store"
	"github.com/xkilldash9x/docketpilot/internal/workflow"
)

// ErrAuditClosed is returned when a record arrives after the queue was closed.
var ErrAuditClosed = errors.New("audit queue is closed")

const (
	auditQueueSize      = 256
	auditBatchSize      = 64
	auditPersistTimeout = 30 * time.Second
)

// BatchAuditor persists several transitions in one write.
type BatchAuditor interface {
	RecordTransitions(ctx context.Context, recs []workflow.TransitionRecord) error
}

var _ BatchAuditor = (*store.Store)(nil)

// InitializeStore connects to PostgreSQL, applies the schema and returns the
// audit store with a cleanup function that closes the pool.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, func(), error) {
	if !cfg.Enabled() {
		return nil, nil, fmt.Errorf("database URL is not configured (hint: check DOCKETPILOT_DATABASE_URL)")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		logger.Info("Closing PostgreSQL connection pool.")
		pool.Close()
	}
	return s, cleanup, nil
}

// AuditQueue decouples sessions from audit persistence. Records are handed to a
// single consumer goroutine which writes whatever is buffered as one batch when
// the sink is a BatchAuditor, and record by record otherwise.
type AuditQueue struct {
	sink   workflow.Auditor
	logger *zap.Logger

	mu      sync.RWMutex
	closed  bool
	records chan workflow.TransitionRecord
	done    chan struct{}
	wg      sync.WaitGroup
}

var _ workflow.Auditor = (*AuditQueue)(nil)

// StartAuditQueue launches the consumer. It runs until Close is called or ctx is
// canceled, draining whatever is buffered either way.
func StartAuditQueue(ctx context.Context, sink workflow.Auditor, logger *zap.Logger) *AuditQueue {
	q := &AuditQueue{
		sink:    sink,
		logger:  logger.Named("audit"),
		records: make(chan workflow.TransitionRecord, auditQueueSize),
		done:    make(chan struct{}),
	}
	q.wg.Add(1)
	go q.consume(ctx)
	return q
}

// RecordTransition enqueues rec. It blocks only while the buffer is full.
func (q *AuditQueue) RecordTransition(ctx context.Context, rec workflow.TransitionRecord) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrAuditClosed
	}
	select {
	case q.records <- rec:
		return nil
	case <-q.done:
		return ErrAuditClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits for the consumer to persist the rest.
func (q *AuditQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.records)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *AuditQueue) consume(ctx context.Context) {
	defer q.wg.Done()
	defer close(q.done)
	q.logger.Debug("Audit consumer started.")
	defer q.logger.Debug("Audit consumer shut down.")

	for {
		select {
		case rec, ok := <-q.records:
			if !ok {
				return
			}
			batch, open := nextBatch(q.records, []workflow.TransitionRecord{rec}, auditBatchSize)
			q.persist(batch)
			if !open {
				return
			}
		case <-ctx.Done():
			q.logger.Warn("Audit consumer context canceled, draining buffered records.")
			var pending []workflow.TransitionRecord
			drainChannel(q.records, &pending)
			for len(pending) > 0 {
				n := min(len(pending), auditBatchSize)
				q.persist(pending[:n])
				pending = pending[n:]
			}
			return
		}
	}
}

// persist uses its own deadline so buffered records survive a canceled parent context.
func (q *AuditQueue) persist(batch []workflow.TransitionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), auditPersistTimeout)
	defer cancel()

	if b, ok := q.sink.(BatchAuditor); ok {
		if err := b.RecordTransitions(ctx, batch); err != nil {
			sessions := make([]string, len(batch))
			for i, rec := range batch {
				sessions[i] = rec.SessionID
			}
			q.logger.Error("Failed to persist transition batch. Audit records lost.",
				zap.Int("count", len(batch)),
				zap.Strings("session_ids", sessions),
				zap.Error(err))
		}
		return
	}

	for _, rec := range batch {
		if err := q.sink.RecordTransition(ctx, rec); err != nil {
			q.logger.Error("Failed to persist transition. Audit record lost.",
				zap.String("session_id", rec.SessionID),
				zap.String("trigger", string(rec.Trigger)),
				zap.Error(err))
		}
	}
}

// nextBatch appends buffered records to batch without blocking, up to limit.
// It reports false once ch has been closed.
func nextBatch(ch <-chan workflow.TransitionRecord, batch []workflow.TransitionRecord, limit int) ([]workflow.TransitionRecord, bool) {
	for len(batch) < limit {
		select {
		case rec, ok := <-ch:
			if !ok {
				return batch, false
			}
			batch = append(batch, rec)
		default:
			return batch, true
		}
	}
	return batch, true
}

// drainChannel reads whatever is buffered without blocking.
func drainChannel(ch <-chan workflow.TransitionRecord, batch *[]workflow.TransitionRecord) {
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			*batch = append(*batch, rec)
		default:
			return
		}
	}
}
