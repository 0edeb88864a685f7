package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/athenaeum-app/athenaeum/internal/jobs"
)

// Idempotency claims older than this no longer protect anything a client
// would still retry.
const idempotencyRetention = 24 * time.Hour

// IndexPruner is the slice of the session manager the prune needs.
type IndexPruner interface {
	PruneIndexes(ctx context.Context) (int, error)
}

// MirrorCleaner is the slice of the auth repository the prune needs.
type MirrorCleaner interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// KeySweeper is the slice of the idempotency store the prune needs.
type KeySweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SessionPruneJob removes expired members from the per-user session
// indexes in redis, deletes expired rows from the postgres session mirror,
// and drops idempotency claims past retention. The redis session keys
// themselves expire on their own; everything else needs sweeping.
type SessionPruneJob struct {
	Sessions IndexPruner
	Mirror   MirrorCleaner
	Keys     KeySweeper
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewSessionPruneJob initialises the session prune handler.
func NewSessionPruneJob(sessions IndexPruner, mirror MirrorCleaner, keys KeySweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPruneJob {
	return &SessionPruneJob{Sessions: sessions, Mirror: mirror, Keys: keys, Logger: logger, Metrics: metrics}
}

// Handle executes the prune.
func (j *SessionPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("session prune: handler not configured")
	}
	var payload SessionsPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskSessionsPrune)
	pruned, err := j.Sessions.PruneIndexes(ctx)
	if err != nil {
		j.logger().Error("session prune failed", slog.Any("error", err))
		return tracker.End(err)
	}
	var expired int64
	if j.Mirror != nil {
		expired, err = j.Mirror.DeleteExpiredSessions(ctx)
		if err != nil {
			j.logger().Error("session mirror sweep failed", slog.Any("error", err))
			return tracker.End(err)
		}
	}
	var swept int64
	if j.Keys != nil {
		swept, err = j.Keys.Sweep(ctx, idempotencyRetention)
		if err != nil {
			j.logger().Error("idempotency sweep failed", slog.Any("error", err))
			return tracker.End(err)
		}
	}
	j.Metrics.AddFlagged(TaskSessionsPrune, int64(pruned)+expired+swept)
	j.logger().Info("session prune finished",
		slog.Int("pruned", pruned),
		slog.Int64("rows_expired", expired),
		slog.Int64("keys_swept", swept))
	return tracker.End(nil)
}

func (j *SessionPruneJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
