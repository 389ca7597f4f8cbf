package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/tradeops/backend/internal/confirmation"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// DeadlineChecker evaluates the confirmation deadline gate
type DeadlineChecker interface {
	Deadline(ctx context.Context, runID string) (*confirmation.DeadlineResult, error)
}

// ConfirmationDeadlineJob checks that the previous TRADE ticket was confirmed
// before the next ops run starts. A missing confirmation is alerted by the
// checker itself and does not fail the job.
type ConfirmationDeadlineJob struct {
	checker  DeadlineChecker
	schedule string
	logger   *logger.Logger
}

// NewConfirmationDeadlineJob creates a new confirmation deadline job
func NewConfirmationDeadlineJob(checker DeadlineChecker, schedule string, log *logger.Logger) *ConfirmationDeadlineJob {
	return &ConfirmationDeadlineJob{
		checker:  checker,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *ConfirmationDeadlineJob) Name() string {
	return "confirmation_deadline"
}

// Schedule returns the cron schedule
func (j *ConfirmationDeadlineJob) Schedule() string {
	return j.schedule
}

// Run executes the deadline check (not tied to a run)
func (j *ConfirmationDeadlineJob) Run(ctx context.Context) error {
	result, err := j.checker.Deadline(ctx, "")
	if err != nil {
		return fmt.Errorf("confirmation deadline: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"status":             result.Status,
		"passed":             result.Passed,
		"previous_ticket_id": result.PreviousTicketID,
	}).Debug("Scheduled confirmation deadline checked")
	return nil
}
