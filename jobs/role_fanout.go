package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gatehouse-io/gatehouse/internal/jobs"
)

// MemberSource lists the user IDs holding a role.
type MemberSource interface {
	Members(ctx context.Context, roleID int64) ([]int64, error)
}

// Invalidator drops cached verdicts for one user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// RoleFanoutJob invalidates every member of a role. The admin surface
// invalidates synchronously before acknowledging a mutation; this job is the
// asynchronous backstop for very large roles and for operators replaying a
// fan-out after a cache outage.
type RoleFanoutJob struct {
	Members MemberSource
	Cache   Invalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRoleFanoutJob initialises the fan-out handler.
func NewRoleFanoutJob(members MemberSource, cache Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *RoleFanoutJob {
	return &RoleFanoutJob{Members: members, Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle executes the fan-out.
func (j *RoleFanoutJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Members == nil || j.Cache == nil {
		return errors.New("role fanout: handler not configured")
	}
	var payload RoleFanoutPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskRoleFanout)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	members, err := j.Members.Members(ctx, payload.RoleID)
	if err != nil {
		resultErr = err
		return resultErr
	}
	for _, userID := range members {
		if err := j.Cache.Invalidate(ctx, userID); err != nil {
			resultErr = err
			return resultErr
		}
	}
	if j.Logger != nil {
		j.Logger.Info("role fanout complete", slog.Int64("role_id", payload.RoleID), slog.Int("members", len(members)))
	}
	return nil
}
