package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/athenaeum-app/athenaeum/internal/jobs"
	"github.com/athenaeum-app/athenaeum/internal/shared"
)

// OverdueMarker is the slice of the catalog service the scan needs.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context) (int64, error)
}

// Auditor records job outcomes in the audit trail.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// OverdueScanJob marks open loans whose due date has passed.
type OverdueScanJob struct {
	Catalog OverdueMarker
	Audit   Auditor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverdueScanJob initialises the overdue scan handler.
func NewOverdueScanJob(svc OverdueMarker, audit Auditor, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{Catalog: svc, Audit: audit, Logger: logger, Metrics: metrics}
}

// Handle executes the scan. Marking is idempotent, so retries are safe.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Catalog == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLoansOverdueScan)
	flagged, err := j.Catalog.MarkOverdue(ctx)
	if err != nil {
		j.logger().Error("overdue scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.AddFlagged(TaskLoansOverdueScan, flagged)
	if flagged > 0 && j.Audit != nil {
		entry := shared.AuditLog{Action: "catalog.loans_marked_overdue", Entity: "loan", EntityID: "batch", Meta: map[string]any{"flagged": flagged}}
		if err := j.Audit.Record(ctx, entry); err != nil {
			j.logger().Warn("record audit entry failed", slog.Any("error", err))
		}
	}
	j.logger().Info("overdue scan finished", slog.Int64("flagged", flagged))
	return tracker.End(nil)
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
