package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/docketpilot/internal/config"
	"github.com/xkilldash9x/docketpilot/internal/mocks"
	"github.com/xkilldash9x/docketpilot/internal/workflow"
)

// recordingAuditor collects records in arrival order.
type recordingAuditor struct {
	mu      sync.Mutex
	records []workflow.TransitionRecord
	block   chan struct{}
}

func (r *recordingAuditor) RecordTransition(ctx context.Context, rec workflow.TransitionRecord) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingAuditor) sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.SessionID
	}
	return out
}

// batchingAuditor records each batch it receives. The first call parks until
// release is closed so callers can queue behind it.
type batchingAuditor struct {
	mu      sync.Mutex
	batches [][]string
	entered chan struct{}
	release chan struct{}
	err     error
}

func newBatchingAuditor() *batchingAuditor {
	return &batchingAuditor{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *batchingAuditor) RecordTransition(ctx context.Context, rec workflow.TransitionRecord) error {
	return b.RecordTransitions(ctx, []workflow.TransitionRecord{rec})
}

func (b *batchingAuditor) RecordTransitions(ctx context.Context, recs []workflow.TransitionRecord) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.SessionID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, ids)
	return b.err
}

func (b *batchingAuditor) recorded() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.batches...)
}

func TestDrainChannel(t *testing.T) {
	ch := make(chan workflow.TransitionRecord, 3)
	ch <- workflow.TransitionRecord{SessionID: "1"}
	ch <- workflow.TransitionRecord{SessionID: "2"}
	close(ch)

	var batch []workflow.TransitionRecord
	drainChannel(ch, &batch)

	require.Len(t, batch, 2)
	assert.Equal(t, "1", batch[0].SessionID)
	assert.Equal(t, "2", batch[1].SessionID)
}

func TestAuditQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("should persist records in order and drain on close", func(t *testing.T) {
		sink := &recordingAuditor{}
		q := StartAuditQueue(context.Background(), sink, zap.NewNop())

		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, q.RecordTransition(context.Background(), workflow.TransitionRecord{SessionID: id}))
		}
		q.Close()

		assert.Equal(t, []string{"a", "b", "c"}, sink.sessions())
		assert.ErrorIs(t, q.RecordTransition(context.Background(), workflow.TransitionRecord{}), ErrAuditClosed)
		q.Close()
	})

	t.Run("should drain buffered records when its context is canceled", func(t *testing.T) {
		sink := &recordingAuditor{block: make(chan struct{})}
		ctx, cancel := context.WithCancel(context.Background())
		q := StartAuditQueue(ctx, sink, zap.NewNop())

		// The first record parks the consumer inside the sink.
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, q.RecordTransition(context.Background(), workflow.TransitionRecord{SessionID: id}))
		}
		cancel()
		close(sink.block)
		q.Close()

		assert.ElementsMatch(t, []string{"a", "b", "c"}, sink.sessions())
	})

	t.Run("should log sink failures and keep going", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		sink := new(mocks.MockAuditor)
		sink.On("RecordTransition", mock.Anything, mock.MatchedBy(func(rec workflow.TransitionRecord) bool {
			return rec.SessionID == "bad"
		})).Return(errors.New("connection refused"))
		sink.On("RecordTransition", mock.Anything, mock.MatchedBy(func(rec workflow.TransitionRecord) bool {
			return rec.SessionID == "good"
		})).Return(nil)

		q := StartAuditQueue(context.Background(), sink, zap.New(core))
		require.NoError(t, q.RecordTransition(context.Background(), workflow.TransitionRecord{SessionID: "bad", Trigger: workflow.TriggerReset}))
		require.NoError(t, q.RecordTransition(context.Background(), workflow.TransitionRecord{SessionID: "good"}))
		q.Close()

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "Failed to persist transition. Audit record lost.", entry.Message)
		assert.Equal(t, "bad", entry.ContextMap()["session_id"])
		sink.AssertNumberOfCalls(t, "RecordTransition", 2)
	})

	t.Run("should honor the caller's context while the buffer is full", func(t *testing.T) {
		sink := &recordingAuditor{block: make(chan struct{})}
		q := StartAuditQueue(context.Background(), sink, zap.NewNop())

		// One record parked in the sink plus a full buffer.
		for i := 0; i <= auditQueueSize; i++ {
			require.NoError(t, q.RecordTransition(context.Background(), workflow.TransitionRecord{}))
		}
		require.Len(t, q.records, auditQueueSize)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, q.RecordTransition(ctx, workflow.TransitionRecord{}), context.DeadlineExceeded)

		close(sink.block)
		q.Close()
	})
}

func TestAuditQueueBatching(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("should write records buffered behind a slow write as one batch", func(t *testing.T) {
		sink := newBatchingAuditor()
		q := StartAuditQueue(context.Background(), sink, zap.NewNop())

		require.NoError(t, q.RecordTransition(context.Background(), workflow.TransitionRecord{SessionID: "a"}))
		<-sink.entered
		for _, id := range []string{"b", "c", "d"} {
			require.NoError(t, q.RecordTransition(context.Background(), workflow.TransitionRecord{SessionID: id}))
		}
		close(sink.release)
		q.Close()

		assert.Equal(t, [][]string{{"a"}, {"b", "c", "d"}}, sink.recorded())
	})

	t.Run("should cap batches at the batch size", func(t *testing.T) {
		sink := newBatchingAuditor()
		q := StartAuditQueue(context.Background(), sink, zap.NewNop())

		require.NoError(t, q.RecordTransition(context.Background(), workflow.TransitionRecord{SessionID: "first"}))
		<-sink.entered
		for i := 0; i < auditBatchSize+1; i++ {
			require.NoError(t, q.RecordTransition(context.Background(), workflow.TransitionRecord{SessionID: "x"}))
		}
		close(sink.release)
		q.Close()

		batches := sink.recorded()
		require.Len(t, batches, 3)
		assert.Len(t, batches[1], auditBatchSize)
		assert.Len(t, batches[2], 1)
	})

	t.Run("should log a failed batch once", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		sink := newBatchingAuditor()
		sink.err = errors.New("connection refused")
		close(sink.release)

		q := StartAuditQueue(context.Background(), sink, zap.New(core))
		require.NoError(t, q.RecordTransition(context.Background(), workflow.TransitionRecord{SessionID: "a"}))
		q.Close()

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "Failed to persist transition batch. Audit records lost.", entry.Message)
		assert.EqualValues(t, 1, entry.ContextMap()["count"])
	})
}

func TestNextBatch(t *testing.T) {
	ch := make(chan workflow.TransitionRecord, 4)
	for _, id := range []string{"2", "3", "4"} {
		ch <- workflow.TransitionRecord{SessionID: id}
	}

	batch, open := nextBatch(ch, []workflow.TransitionRecord{{SessionID: "1"}}, 3)
	assert.True(t, open)
	require.Len(t, batch, 3)
	assert.Equal(t, "3", batch[2].SessionID)

	close(ch)
	batch, open = nextBatch(ch, nil, 3)
	assert.False(t, open)
	require.Len(t, batch, 1)
	assert.Equal(t, "4", batch[0].SessionID)
}

func TestInitializeStore(t *testing.T) {
	t.Run("should require a database URL", func(t *testing.T) {
		_, _, err := InitializeStore(context.Background(), config.DatabaseConfig{}, zap.NewNop())
		assert.ErrorContains(t, err, "DOCKETPILOT_DATABASE_URL")
	})

	t.Run("should reject a malformed URL", func(t *testing.T) {
		_, _, err := InitializeStore(context.Background(), config.DatabaseConfig{URL: "postgres://%zz"}, zap.NewNop())
		assert.ErrorContains(t, err, "unable to parse PGX pool config")
	})
}

func TestComponentsShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingAuditor{}
	browser := &shutdownRecorder{}
	dbClosed := false
	opener := &fakeOpener{}
	factory, _ := signInDriver(nil)

	c := &Components{
		Sessions: NewSessionManager(opener, testConfig(t), zap.NewNop(), WithDriverFactory(factory)),
		Browser:  browser,
		Audit:    StartAuditQueue(context.Background(), sink, zap.NewNop()),
		closeDB:  func() { dbClosed = true },
		logger:   zap.NewNop(),
	}
	_, _, err := c.Sessions.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Audit.RecordTransition(context.Background(), workflow.TransitionRecord{SessionID: "s"}))

	c.Shutdown()

	assert.Equal(t, int32(1), opener.opened()[0].closes.Load())
	assert.True(t, browser.called)
	assert.Equal(t, []string{"s"}, sink.sessions())
	assert.True(t, dbClosed)
}

type shutdownRecorder struct{ called bool }

func (s *shutdownRecorder) Shutdown(ctx context.Context) error {
	s.called = true
	return nil
}
