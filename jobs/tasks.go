package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRoleFanout drops cached verdicts for every member of a role.
	TaskRoleFanout = "authz:role_fanout"
	// TaskAuditRetention sweeps audit rows older than the retention window.
	TaskAuditRetention = "audit:retention"
)

// RoleFanoutPayload names the role whose members need invalidation.
type RoleFanoutPayload struct {
	RoleID int64 `json:"role_id"`
}

// NewRoleFanoutTask constructs an Asynq task for role-wide invalidation.
func NewRoleFanoutTask(roleID int64) (*asynq.Task, error) {
	body, err := json.Marshal(RoleFanoutPayload{RoleID: roleID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoleFanout, body, asynq.Queue(QueueDefault)), nil
}

// AuditRetentionPayload carries the retention cutoff configuration.
type AuditRetentionPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditRetentionTask constructs an Asynq task for the audit sweep.
func NewAuditRetentionTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(AuditRetentionPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, body, asynq.Queue(QueueDefault)), nil
}
