package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/gatehouse-io/gatehouse/internal/jobs"
)

// AuditRetentionJob deletes audit rows past the retention window.
type AuditRetentionJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAuditRetentionJob initialises the retention handler.
func NewAuditRetentionJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetentionJob {
	return &AuditRetentionJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep. Rows are removed in batches so a long backlog
// never holds one transaction open.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("audit retention: handler not configured")
	}
	var payload AuditRetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = 90 * 24 * time.Hour
	}
	cutoff := j.clock().Add(-payload.Retention)

	tracker := j.Metrics.Track(TaskAuditRetention)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	const batch = 5000
	var total int64
	for {
		tag, err := j.Pool.Exec(ctx, `
			DELETE FROM audit_logs
			WHERE id IN (
				SELECT id FROM audit_logs WHERE occurred_at < $1 LIMIT $2
			)`, cutoff, batch)
		if err != nil {
			resultErr = err
			return resultErr
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < batch {
			break
		}
	}
	j.Metrics.AddSwept(TaskAuditRetention, total)
	if j.Logger != nil {
		j.Logger.Info("audit retention sweep complete",
			slog.Time("cutoff", cutoff),
			slog.Int64("rows", total))
	}
	return nil
}
