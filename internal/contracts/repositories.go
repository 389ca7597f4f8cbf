package contracts

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repositories when a keyed row does not exist
var ErrNotFound = errors.New("not found")

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// RunRepository manages RunContext rows
type RunRepository interface {
	CreateRun(ctx context.Context, run *RunContext) error
	GetRun(ctx context.Context, runID string) (*RunContext, error)
	FinishRun(ctx context.Context, runID string, status RunStatus, notes string) error
	LatestRun(ctx context.Context, cadence string) (*RunContext, error)
}

// RiskRepository manages risk checks (upsert by run+name) and decisions (upsert by run)
type RiskRepository interface {
	UpsertRiskChecks(ctx context.Context, checks []RiskCheck) error
	ListRiskChecks(ctx context.Context, runID string) ([]RiskCheck, error)
	UpsertDecision(ctx context.Context, decision *Decision) error
	GetDecision(ctx context.Context, runID string) (*Decision, error)
}

// TargetRepository manages portfolio targets (replace-all per run)
type TargetRepository interface {
	ReplaceTargets(ctx context.Context, runID string, targets []PortfolioTarget) error
	ListTargets(ctx context.Context, runID string) ([]PortfolioTarget, error)
}

// TradeRepository manages intended trades (replace-all per run)
type TradeRepository interface {
	ReplaceIntendedTrades(ctx context.Context, runID string, trades []IntendedTrade) error
	ListIntendedTrades(ctx context.Context, runID string) ([]IntendedTrade, error)
	LinkTradesToTicket(ctx context.Context, runID, ticketID string) error
	CountIntendedByTicket(ctx context.Context, ticketID string) (int, error)
}

// TicketRepository manages tickets (upsert by run)
type TicketRepository interface {
	UpsertTicket(ctx context.Context, ticket *Ticket) error
	GetTicket(ctx context.Context, ticketID string) (*Ticket, error)
	GetTicketByRun(ctx context.Context, runID string) (*Ticket, error)
	// LatestTradeTicket returns the newest TRADE ticket not belonging to excludeRunID
	LatestTradeTicket(ctx context.Context, excludeRunID string) (*Ticket, error)
	ListTickets(ctx context.Context, limit int) ([]Ticket, error)
	UpdateTicketStatus(ctx context.Context, ticketID string, status TicketStatus) error
}

// ConfirmationRepository manages confirmations and fills (upsert by ticket+sequence)
type ConfirmationRepository interface {
	SaveConfirmation(ctx context.Context, confirmation *Confirmation, fills []ConfirmedFill) error
	ListFills(ctx context.Context, ticketID string) ([]ConfirmedFill, error)
	CountFills(ctx context.Context, ticketID string) (int, error)
	CountConfirmations(ctx context.Context, ticketID string) (int, error)
}

// AuditRepository appends audit events
type AuditRepository interface {
	AppendAudit(ctx context.Context, event AuditEvent) error
}

// Store is the full persistence API
type Store interface {
	RunRepository
	RiskRepository
	TargetRepository
	TradeRepository
	TicketRepository
	ConfirmationRepository
	AuditRepository
}
