// Package jobs hosts the Asynq background worker, its task handlers and the
// HTTP observability surface.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskExpirySweep deactivates assignments whose expiry has passed.
	TaskExpirySweep = "authz:expiry_sweep"
)

// ExpirySweepPayload contains options for the expiry sweep job.
type ExpirySweepPayload struct {
	DryRun bool `json:"dry_run"`
}

// NewExpirySweepTask builds a new expiry sweep task.
func NewExpirySweepTask(dryRun bool) (*asynq.Task, error) {
	body, err := json.Marshal(ExpirySweepPayload{DryRun: dryRun})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpirySweep, body, asynq.Queue(QueueDefault)), nil
}
