package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/tradeops/backend/internal/artifact"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// Pruner plans and applies artifact retention
type Pruner interface {
	Plan(policy artifact.RetentionPolicy, now time.Time) ([]artifact.PlanItem, error)
	Apply(items []artifact.PlanItem) (int, error)
}

// RetentionJob prunes old run directories and alert/report files
type RetentionJob struct {
	pruner   Pruner
	policy   artifact.RetentionPolicy
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewRetentionJob creates a new retention job
func NewRetentionJob(pruner Pruner, policy artifact.RetentionPolicy, schedule string, log *logger.Logger) *RetentionJob {
	return &RetentionJob{
		pruner:   pruner,
		policy:   policy,
		schedule: schedule,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "artifacts_retention"
}

// Schedule returns the cron schedule
func (j *RetentionJob) Schedule() string {
	return j.schedule
}

// Run plans and applies retention
func (j *RetentionJob) Run(ctx context.Context) error {
	items, err := j.pruner.Plan(j.policy, j.now())
	if err != nil {
		return fmt.Errorf("retention plan: %w", err)
	}
	if len(items) == 0 {
		j.logger.Debug("Nothing to prune")
		return nil
	}

	removed, err := j.pruner.Apply(items)
	if err != nil {
		return fmt.Errorf("retention apply: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"planned": len(items),
		"removed": removed,
	}).Info("Artifact retention completed")
	return nil
}
