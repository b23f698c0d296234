package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/smartportal/smartportal/internal/jobs"
)

// SessionPruneJob deletes session audit rows whose expiry has passed.
// Live session validity is never decided by this job: expired tokens
// already fail validation lazily, this only keeps the table from growing
// without bound.
type SessionPruneJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionPruneJob initialises the prune handler.
func NewSessionPruneJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPruneJob {
	return &SessionPruneJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle removes expired rows.
func (j *SessionPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("session prune: handler not configured")
	}
	tracker := j.Metrics.Track(TaskSessionPrune)
	tag, err := j.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, j.clock())
	if err != nil {
		return tracker.End(err)
	}
	if tag.RowsAffected() > 0 {
		j.Metrics.AddPrunedSessions(tag.RowsAffected())
		j.Logger.Info("pruned expired sessions", slog.Int64("rows", tag.RowsAffected()))
	}
	return tracker.End(nil)
}
