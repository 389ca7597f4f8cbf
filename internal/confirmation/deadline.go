package confirmation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// Deadline statuses
const (
	DeadlineNoPreviousTicket = "no_previous_trade_ticket"
	DeadlineConfirmed        = "confirmed"
	DeadlineMissing          = "missing"
)

// DeadlineArtifact is written under runs/<run_id>/ when Deadline runs for a run
const DeadlineArtifact = "confirmation_deadline.json"

const deadlineRule = "previous TRADE ticket must have >=1 confirmation by start of the next ops run"

// DeadlineNotifier is told when the previous TRADE ticket was never confirmed
type DeadlineNotifier interface {
	NotifyConfirmationMissing(ctx context.Context, runID string, result *DeadlineResult) error
}

// DeadlineResult is the outcome of the confirmation deadline gate
type DeadlineResult struct {
	Passed             bool      `json:"passed"`
	Status             string    `json:"status"`
	PreviousTicketID   string    `json:"previous_ticket_id,omitempty"`
	PreviousRunID      string    `json:"previous_run_id,omitempty"`
	PreviousStatus     string    `json:"previous_ticket_status,omitempty"`
	PreviousCreatedUTC string    `json:"previous_ticket_created_utc,omitempty"`
	ConfirmationsCount int       `json:"confirmations_count"`
	Rule               string    `json:"rule"`
	EvaluatedAt        time.Time `json:"evaluated_at_utc"`
	ArtifactPath       string    `json:"-"`
}

// Deadline checks that the latest TRADE ticket (excluding runID) has at least one confirmation.
// With a non-empty runID the outcome is written as the run's confirmation_deadline.json.
// It never goes into risk_checks, which holds the decision check set only.
func (r *Reconciler) Deadline(ctx context.Context, runID string) (*DeadlineResult, error) {
	result := &DeadlineResult{
		Passed:      true,
		Status:      DeadlineNoPreviousTicket,
		Rule:        deadlineRule,
		EvaluatedAt: r.now(),
	}

	ticket, err := r.store.LatestTradeTicket(ctx, runID)
	switch {
	case errors.Is(err, contracts.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load latest trade ticket: %w", err)
	default:
		count, err := r.store.CountConfirmations(ctx, ticket.TicketID)
		if err != nil {
			return nil, fmt.Errorf("failed to count confirmations: %w", err)
		}
		result.PreviousTicketID = ticket.TicketID
		result.PreviousRunID = ticket.RunID
		result.PreviousStatus = string(ticket.Status)
		result.PreviousCreatedUTC = ticket.CreatedAt.UTC().Format(time.RFC3339)
		result.ConfirmationsCount = count
		result.Passed = count > 0
		result.Status = DeadlineConfirmed
		if !result.Passed {
			result.Status = DeadlineMissing
		}
	}

	if runID != "" {
		path, err := r.artifacts.WriteRunJSON(runID, DeadlineArtifact, result)
		if err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", DeadlineArtifact, err)
		}
		result.ArtifactPath = path
	}

	log := r.logger.WithFields(map[string]interface{}{
		"run_id":             runID,
		"status":             result.Status,
		"previous_ticket_id": result.PreviousTicketID,
		"confirmations":      result.ConfirmationsCount,
	})
	if result.Passed {
		log.Info("Confirmation deadline passed")
		return result, nil
	}
	log.Warn("Confirmation deadline missed")

	if r.notifier != nil {
		if err := r.notifier.NotifyConfirmationMissing(ctx, runID, result); err != nil {
			r.logger.WithError(err).Warn("Failed to emit confirmation missing alert")
		}
	}
	return result, nil
}
