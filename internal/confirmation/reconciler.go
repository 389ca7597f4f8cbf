package confirmation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// AuditActionSubmitted is the audit action of every accepted submission
const AuditActionSubmitted = "CONFIRMATION_SUBMITTED"

// ArtifactWriter persists confirmation documents next to the ticket
type ArtifactWriter interface {
	WriteTicketJSON(ticketID, name string, v any) (string, error)
	WriteRunJSON(runID, name string, v any) (string, error)
}

// Submission is one operator confirmation request
type Submission struct {
	TicketID      string // TicketID 또는 RunID 중 하나
	RunID         string
	Type          contracts.ConfirmationType
	Fills         []FillInput
	SubmittedBy   string
	Notes         string
	AllowNonTrade bool // 테스트 전용: TRADE 가 아닌 티켓에 체결 제출 허용
}

// Receipt is the result of an accepted submission
type Receipt struct {
	ConfirmationID string                     `json:"confirmation_id"`
	TicketID       string                     `json:"ticket_id"`
	RunID          string                     `json:"run_id"`
	Type           contracts.ConfirmationType `json:"confirmation_type"`
	FillsCount     int                        `json:"fills_count"`
	ArtifactPath   string                     `json:"artifact_path"`
	CreatedAt      time.Time                  `json:"created_at"`
}

// Reconciler validates and records operator confirmations
// ⭐ SSOT: 체결 확인 기록은 여기서만
type Reconciler struct {
	store     contracts.Store
	artifacts ArtifactWriter
	notifier  DeadlineNotifier
	logger    *logger.Logger
	now       func() time.Time
}

// NewReconciler creates a new confirmation reconciler. notifier may be nil.
func NewReconciler(store contracts.Store, artifacts ArtifactWriter, notifier DeadlineNotifier, log *logger.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		artifacts: artifacts,
		notifier:  notifier,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates sub against its ticket and persists it
func (r *Reconciler) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	ticket, err := r.resolveTicket(ctx, sub)
	if err != nil {
		return nil, err
	}

	fills, err := r.validate(ticket, sub)
	if err != nil {
		return nil, err
	}

	submittedBy := sub.SubmittedBy
	if submittedBy == "" {
		submittedBy = "operator"
	}

	conf := &contracts.Confirmation{
		ConfirmationID: uuid.New().String(),
		TicketID:       ticket.TicketID,
		Type:           sub.Type,
		SubmittedBy:    submittedBy,
		Notes:          sub.Notes,
		FillsCount:     len(fills),
		CreatedAt:      r.now(),
	}

	path, err := r.artifacts.WriteTicketJSON(ticket.TicketID, "confirmation_"+conf.ConfirmationID+".json", confirmationDocument{
		Confirmation: conf,
		RunID:        ticket.RunID,
		Acknowledged: true,
		Fills:        fills,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write confirmation artifact: %w", err)
	}

	if err := r.store.SaveConfirmation(ctx, conf, fills); err != nil {
		return nil, fmt.Errorf("failed to save confirmation: %w", err)
	}
	if err := r.store.AppendAudit(ctx, contracts.AuditEvent{
		Actor:      submittedBy,
		Action:     AuditActionSubmitted,
		ObjectType: "confirmation",
		ObjectID:   conf.ConfirmationID,
		Details: map[string]any{
			"ticket_id":         ticket.TicketID,
			"confirmation_type": string(conf.Type),
			"fills_count":       len(fills),
			"artifact_path":     path,
		},
		CreatedAt: conf.CreatedAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}
	if err := r.store.UpdateTicketStatus(ctx, ticket.TicketID, contracts.TicketStatusConfirmed); err != nil {
		return nil, fmt.Errorf("failed to update ticket status: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"ticket_id":         ticket.TicketID,
		"run_id":            ticket.RunID,
		"confirmation_id":   conf.ConfirmationID,
		"confirmation_type": conf.Type,
		"fills":             len(fills),
	}).Info("Confirmation submitted")

	return &Receipt{
		ConfirmationID: conf.ConfirmationID,
		TicketID:       ticket.TicketID,
		RunID:          ticket.RunID,
		Type:           conf.Type,
		FillsCount:     len(fills),
		ArtifactPath:   path,
		CreatedAt:      conf.CreatedAt,
	}, nil
}

type confirmationDocument struct {
	*contracts.Confirmation
	RunID        string                    `json:"run_id"`
	Acknowledged bool                      `json:"acknowledged"`
	Fills        []contracts.ConfirmedFill `json:"fills"`
}

func (r *Reconciler) resolveTicket(ctx context.Context, sub Submission) (*contracts.Ticket, error) {
	var (
		ticket *contracts.Ticket
		err    error
	)
	switch {
	case sub.TicketID != "":
		ticket, err = r.store.GetTicket(ctx, sub.TicketID)
	case sub.RunID != "":
		ticket, err = r.store.GetTicketByRun(ctx, sub.RunID)
	default:
		return nil, invalid("ticket_id", "ticket_id or run_id is required")
	}

	if errors.Is(err, contracts.ErrNotFound) {
		return nil, fmt.Errorf("%w: ticket_id=%q run_id=%q", ErrTicketNotFound, sub.TicketID, sub.RunID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket: %w", err)
	}
	return ticket, nil
}

func (r *Reconciler) validate(ticket *contracts.Ticket, sub Submission) ([]contracts.ConfirmedFill, error) {
	switch sub.Type {
	case contracts.ConfirmationAckNoTrade:
		if ticket.DecisionType != contracts.DecisionNoTrade {
			return nil, fmt.Errorf("%w: %s requires decision_type=NO_TRADE (got %s)", ErrTicketTypeMismatch, sub.Type, ticket.DecisionType)
		}
		if len(sub.Fills) > 0 {
			return nil, invalid("fills", "must be empty for %s", sub.Type)
		}
		return []contracts.ConfirmedFill{}, nil

	case contracts.ConfirmationFills:
		if ticket.DecisionType != contracts.DecisionTrade && !sub.AllowNonTrade {
			return nil, fmt.Errorf("%w: %s requires decision_type=TRADE (got %s)", ErrTicketTypeMismatch, sub.Type, ticket.DecisionType)
		}
		return ValidateFills(ticket.TicketID, sub.Fills)

	default:
		return nil, invalid("confirmation_type", "must be %s or %s", contracts.ConfirmationAckNoTrade, contracts.ConfirmationFills)
	}
}
