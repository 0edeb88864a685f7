package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenaeum-app/athenaeum/internal/shared"
	_ "github.com/athenaeum-app/athenaeum/internal/testing/guard"
)

type stubMarker struct {
	flagged int64
	err     error
	calls   int
}

func (s *stubMarker) MarkOverdue(ctx context.Context) (int64, error) {
	s.calls++
	return s.flagged, s.err
}

type stubPruner struct {
	pruned int
	err    error
	calls  int
}

func (s *stubPruner) PruneIndexes(ctx context.Context) (int, error) {
	s.calls++
	return s.pruned, s.err
}

type stubMirror struct {
	expired int64
	err     error
	calls   int
}

func (s *stubMirror) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	s.calls++
	return s.expired, s.err
}

type stubSweeper struct {
	swept     int64
	err       error
	olderThan time.Duration
}

func (s *stubSweeper) Sweep(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return s.swept, s.err
}

type stubAuditor struct {
	entries []shared.AuditLog
}

func (s *stubAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	s.entries = append(s.entries, log)
	return nil
}

func TestOverdueScanHandle(t *testing.T) {
	marker := &stubMarker{flagged: 3}
	audit := &stubAuditor{}
	job := NewOverdueScanJob(marker, audit, slog.Default(), nil)
	task, err := NewOverdueScanTask(time.Now())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, marker.calls)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "catalog.loans_marked_overdue", audit.entries[0].Action)
}

func TestOverdueScanSkipsAuditWhenNothingFlagged(t *testing.T) {
	marker := &stubMarker{flagged: 0}
	audit := &stubAuditor{}
	job := NewOverdueScanJob(marker, audit, slog.Default(), nil)
	task, err := NewOverdueScanTask(time.Now())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.NoError(t, err)
	assert.Empty(t, audit.entries)
}

func TestOverdueScanPropagatesFailure(t *testing.T) {
	marker := &stubMarker{err: errors.New("pool closed")}
	job := NewOverdueScanJob(marker, nil, slog.Default(), nil)
	task, err := NewOverdueScanTask(time.Now())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	assert.Error(t, err)
}

func TestOverdueScanSkipsRetryOnBadPayload(t *testing.T) {
	marker := &stubMarker{}
	job := NewOverdueScanJob(marker, nil, slog.Default(), nil)
	task := asynq.NewTask(TaskLoansOverdueScan, []byte("not json"))

	err := job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, marker.calls)
}

func TestSessionPruneHandle(t *testing.T) {
	pruner := &stubPruner{pruned: 12}
	mirror := &stubMirror{expired: 5}
	sweeper := &stubSweeper{swept: 3}
	job := NewSessionPruneJob(pruner, mirror, sweeper, slog.Default(), nil)
	task, err := NewSessionsPruneTask(time.Now())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, 1, mirror.calls)
	assert.Equal(t, idempotencyRetention, sweeper.olderThan)
}

func TestSessionPruneWithIndexesOnly(t *testing.T) {
	pruner := &stubPruner{pruned: 2}
	job := NewSessionPruneJob(pruner, nil, nil, slog.Default(), nil)
	task, err := NewSessionsPruneTask(time.Now())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.NoError(t, err)
}

func TestSessionPrunePropagatesFailure(t *testing.T) {
	pruner := &stubPruner{err: errors.New("redis down")}
	job := NewSessionPruneJob(pruner, nil, nil, slog.Default(), nil)
	task, err := NewSessionsPruneTask(time.Now())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	assert.Error(t, err)
}

func TestSessionPrunePropagatesMirrorFailure(t *testing.T) {
	pruner := &stubPruner{pruned: 1}
	mirror := &stubMirror{err: errors.New("pg down")}
	job := NewSessionPruneJob(pruner, mirror, nil, slog.Default(), nil)
	task, err := NewSessionsPruneTask(time.Now())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	assert.Error(t, err)
}

func TestSessionPrunePropagatesSweepFailure(t *testing.T) {
	pruner := &stubPruner{pruned: 1}
	sweeper := &stubSweeper{err: errors.New("pg down")}
	job := NewSessionPruneJob(pruner, nil, sweeper, slog.Default(), nil)
	task, err := NewSessionsPruneTask(time.Now())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	assert.Error(t, err)
}
