package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/keystone-erp/keystone-erp/internal/jobs"
)

// Sweeper deactivates expired assignments and reports how many users were
// affected.
type Sweeper interface {
	ExpireSweep(ctx context.Context) (int, error)
}

// ExpirySweepJob wires the assignment sweeper into the worker.
type ExpirySweepJob struct {
	sweeper Sweeper
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewExpirySweepJob constructs the job.
func NewExpirySweepJob(sweeper Sweeper, metrics *jobmetrics.Metrics, logger *slog.Logger) *ExpirySweepJob {
	return &ExpirySweepJob{sweeper: sweeper, metrics: metrics, logger: logger}
}

// Handle processes TaskExpirySweep tasks. Resolution is already
// expiry-correct without the sweep; it keeps listings tidy and reclaims
// cache versions for users whose grants lapsed.
func (j *ExpirySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ExpirySweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track("expiry_sweep")
	if payload.DryRun {
		j.logger.Info("expiry sweep dry run, skipping")
		return tracker.End(nil)
	}
	count, err := j.sweeper.ExpireSweep(ctx)
	if err != nil {
		j.logger.Error("expiry sweep", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddExpiredAssignments(count)
	if count > 0 {
		j.logger.Info("expiry sweep complete", slog.Int("users", count))
	}
	return tracker.End(nil)
}
