package confirmation

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// CompletenessStore is the read side needed to measure fill completeness
type CompletenessStore interface {
	LatestTradeTicket(ctx context.Context, excludeRunID string) (*contracts.Ticket, error)
	CountIntendedByTicket(ctx context.Context, ticketID string) (int, error)
	CountFills(ctx context.Context, ticketID string) (int, error)
}

// Completeness compares intended trades with recorded fills of the latest TRADE ticket
type Completeness struct {
	Found    bool   `json:"found"`
	TicketID string `json:"ticket_id,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Intended int    `json:"intended_count"`
	Fills    int    `json:"fills_count"`
}

// Complete is false only when a previous TRADE ticket has fewer fills than intents
func (c Completeness) Complete() bool {
	return !(c.Found && c.Intended > 0 && c.Fills < c.Intended)
}

// CheckCompleteness looks at the newest TRADE ticket whose run is not excludeRunID
func CheckCompleteness(ctx context.Context, store CompletenessStore, excludeRunID string) (Completeness, error) {
	ticket, err := store.LatestTradeTicket(ctx, excludeRunID)
	if errors.Is(err, contracts.ErrNotFound) {
		return Completeness{}, nil
	}
	if err != nil {
		return Completeness{}, fmt.Errorf("failed to load latest trade ticket: %w", err)
	}

	intended, err := store.CountIntendedByTicket(ctx, ticket.TicketID)
	if err != nil {
		return Completeness{}, fmt.Errorf("failed to count intended trades: %w", err)
	}
	fills, err := store.CountFills(ctx, ticket.TicketID)
	if err != nil {
		return Completeness{}, fmt.Errorf("failed to count fills: %w", err)
	}

	return Completeness{
		Found:    true,
		TicketID: ticket.TicketID,
		RunID:    ticket.RunID,
		Intended: intended,
		Fills:    fills,
	}, nil
}
