package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/tradeops/backend/internal/pipeline"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// Runner executes one ops run
type Runner interface {
	Run(ctx context.Context, cfg pipeline.RunConfig) (*pipeline.RunResult, error)
}

// OpsRunJob runs allocate → riskguard → ticket on schedule
// Schedule: weekdays 14:00 (before the UK execution window)
type OpsRunJob struct {
	runner   Runner
	schedule string
	base     pipeline.RunConfig
	logger   *logger.Logger
}

// NewOpsRunJob creates a new ops run job. base is copied for every run
// with a fresh run id.
func NewOpsRunJob(runner Runner, schedule string, base pipeline.RunConfig, log *logger.Logger) *OpsRunJob {
	return &OpsRunJob{
		runner:   runner,
		schedule: schedule,
		base:     base,
		logger:   log,
	}
}

// Name returns the job name
func (j *OpsRunJob) Name() string {
	return "ops_run"
}

// Schedule returns the cron schedule
func (j *OpsRunJob) Schedule() string {
	return j.schedule
}

// Run executes one ops run. A blocked decision is not a job failure.
func (j *OpsRunJob) Run(ctx context.Context) error {
	cfg := j.base
	cfg.RunID = ""
	if cfg.Notes == "" {
		cfg.Notes = "scheduled"
	}

	result, err := j.runner.Run(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ops run: %w", err)
	}

	fields := map[string]interface{}{
		"run_id": result.RunID,
		"status": result.Status,
	}
	if result.Evaluation != nil {
		fields["decision_type"] = result.Evaluation.Decision.DecisionType
	}
	j.logger.WithFields(fields).Info("Scheduled ops run finished")
	return nil
}
