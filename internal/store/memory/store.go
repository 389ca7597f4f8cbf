// Package memory is an in-process Store and Facts implementation.
// It backs engine tests and dry runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

type reconciliation struct {
	record   contracts.ReconciliationRecord
	passed   bool
	snapshot *contracts.PositionSnapshot
}

// Store keeps every entity in maps guarded by one mutex
type Store struct {
	mu sync.RWMutex

	runs          map[string]contracts.RunContext
	checks        map[string]map[contracts.CheckName]contracts.RiskCheck
	decisions     map[string]contracts.Decision
	targets       map[string][]contracts.PortfolioTarget
	trades        map[string][]contracts.IntendedTrade
	tickets       map[string]contracts.Ticket // ticket_id →
	confirmations []contracts.Confirmation
	fills         map[string]map[int]contracts.ConfirmedFill
	audit         []contracts.AuditEvent

	// facts
	dataQuality     map[string]contracts.DataQualityFact
	reconciliations []reconciliation
	universe        []contracts.UniverseMember
	ledgerCash      decimal.Decimal
	ledgerHoldings  map[string]decimal.Decimal
	cashMovements   int
	ledgerFills     int
	prices          map[string]map[string]decimal.Decimal // date → symbol → close
	signals         map[string][]contracts.Signal

	now func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		runs:           make(map[string]contracts.RunContext),
		checks:         make(map[string]map[contracts.CheckName]contracts.RiskCheck),
		decisions:      make(map[string]contracts.Decision),
		targets:        make(map[string][]contracts.PortfolioTarget),
		trades:         make(map[string][]contracts.IntendedTrade),
		tickets:        make(map[string]contracts.Ticket),
		fills:          make(map[string]map[int]contracts.ConfirmedFill),
		dataQuality:    make(map[string]contracts.DataQualityFact),
		ledgerHoldings: make(map[string]decimal.Decimal),
		prices:         make(map[string]map[string]decimal.Decimal),
		signals:        make(map[string][]contracts.Signal),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for finish/audit timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ============================================================================
// Runs
// ============================================================================

func (s *Store) CreateRun(ctx context.Context, run *contracts.RunContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.RunID]; ok {
		return fmt.Errorf("run %s already exists", run.RunID)
	}
	s.runs[run.RunID] = *run
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (*contracts.RunContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return &run, nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, status contracts.RunStatus, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return contracts.ErrNotFound
	}
	finished := s.now()
	run.Status = status
	run.Notes = notes
	run.FinishedAt = &finished
	s.runs[runID] = run
	return nil
}

func (s *Store) LatestRun(ctx context.Context, cadence string) (*contracts.RunContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *contracts.RunContext
	for _, run := range s.runs {
		if cadence != "" && run.Cadence != cadence {
			continue
		}
		if latest == nil || run.StartedAt.After(latest.StartedAt) {
			r := run
			latest = &r
		}
	}
	if latest == nil {
		return nil, contracts.ErrNotFound
	}
	return latest, nil
}

// ============================================================================
// Risk checks / decisions
// ============================================================================

func (s *Store) UpsertRiskChecks(ctx context.Context, checks []contracts.RiskCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range checks {
		byName, ok := s.checks[c.RunID]
		if !ok {
			byName = make(map[contracts.CheckName]contracts.RiskCheck)
			s.checks[c.RunID] = byName
		}
		byName[c.Name] = c
	}
	return nil
}

func (s *Store) ListRiskChecks(ctx context.Context, runID string) ([]contracts.RiskCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.RiskCheck, 0, len(s.checks[runID]))
	for _, c := range s.checks[runID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := out[i].Name.Order(), out[j].Name.Order()
		if oi == 0 {
			oi = 999
		}
		if oj == 0 {
			oj = 999
		}
		if oi != oj {
			return oi < oj
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) UpsertDecision(ctx context.Context, decision *contracts.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := *decision
	d.Reasons = append([]contracts.Reason(nil), decision.Reasons...)
	s.decisions[decision.RunID] = d
	return nil
}

func (s *Store) GetDecision(ctx context.Context, runID string) (*contracts.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.decisions[runID]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return &d, nil
}

// ============================================================================
// Targets / intended trades (replace-all per run)
// ============================================================================

func (s *Store) ReplaceTargets(ctx context.Context, runID string, targets []contracts.PortfolioTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]contracts.PortfolioTarget, len(targets))
	copy(rows, targets)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
	s.targets[runID] = rows
	return nil
}

func (s *Store) ListTargets(ctx context.Context, runID string) ([]contracts.PortfolioTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]contracts.PortfolioTarget, len(s.targets[runID]))
	copy(rows, s.targets[runID])
	return rows, nil
}

func (s *Store) ReplaceIntendedTrades(ctx context.Context, runID string, trades []contracts.IntendedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]contracts.IntendedTrade, len(trades))
	copy(rows, trades)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Sequence < rows[j].Sequence })
	s.trades[runID] = rows
	return nil
}

func (s *Store) ListIntendedTrades(ctx context.Context, runID string) ([]contracts.IntendedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]contracts.IntendedTrade, len(s.trades[runID]))
	copy(rows, s.trades[runID])
	return rows, nil
}

func (s *Store) LinkTradesToTicket(ctx context.Context, runID, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.trades[runID] {
		s.trades[runID][i].TicketID = ticketID
	}
	return nil
}

func (s *Store) CountIntendedByTicket(ctx context.Context, ticketID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rows := range s.trades {
		for _, t := range rows {
			if t.TicketID == ticketID {
				n++
			}
		}
	}
	return n, nil
}

// ============================================================================
// Tickets (upsert by run)
// ============================================================================

// UpsertTicket keeps the first ticket_id and created_at of a run and writes them back into ticket
func (s *Store) UpsertTicket(ctx context.Context, ticket *contracts.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.tickets {
		if existing.RunID != ticket.RunID {
			continue
		}
		ticket.TicketID = existing.TicketID
		ticket.CreatedAt = existing.CreatedAt
		if existing.Status == contracts.TicketStatusConfirmed {
			ticket.Status = existing.Status
		}
		s.tickets[id] = *ticket
		return nil
	}

	s.tickets[ticket.TicketID] = *ticket
	return nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (*contracts.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return &t, nil
}

func (s *Store) GetTicketByRun(ctx context.Context, runID string) (*contracts.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tickets {
		if t.RunID == runID {
			tc := t
			return &tc, nil
		}
	}
	return nil, contracts.ErrNotFound
}

func (s *Store) LatestTradeTicket(ctx context.Context, excludeRunID string) (*contracts.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *contracts.Ticket
	for _, t := range s.tickets {
		if t.DecisionType != contracts.DecisionTrade || t.RunID == excludeRunID {
			continue
		}
		if latest == nil || newerTicket(t, *latest) {
			tc := t
			latest = &tc
		}
	}
	if latest == nil {
		return nil, contracts.ErrNotFound
	}
	return latest, nil
}

// newerTicket orders by created_at DESC, ticket_id DESC (same as the SQL stores)
func newerTicket(a, b contracts.Ticket) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.TicketID > b.TicketID
}

func (s *Store) ListTickets(ctx context.Context, limit int) ([]contracts.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return newerTicket(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateTicketStatus(ctx context.Context, ticketID string, status contracts.TicketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return contracts.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = s.now()
	s.tickets[ticketID] = t
	return nil
}

// ============================================================================
// Confirmations / fills / audit
// ============================================================================

func (s *Store) SaveConfirmation(ctx context.Context, confirmation *contracts.Confirmation, fills []contracts.ConfirmedFill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.confirmations = append(s.confirmations, *confirmation)
	if len(fills) == 0 {
		return nil
	}

	bySeq, ok := s.fills[confirmation.TicketID]
	if !ok {
		bySeq = make(map[int]contracts.ConfirmedFill)
		s.fills[confirmation.TicketID] = bySeq
	}
	for _, f := range fills {
		bySeq[f.Sequence] = f
	}
	return nil
}

func (s *Store) ListFills(ctx context.Context, ticketID string) ([]contracts.ConfirmedFill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.ConfirmedFill, 0, len(s.fills[ticketID]))
	for _, f := range s.fills[ticketID] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *Store) CountFills(ctx context.Context, ticketID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fills[ticketID]), nil
}

func (s *Store) CountConfirmations(ctx context.Context, ticketID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.confirmations {
		if c.TicketID == ticketID {
			n++
		}
	}
	return n, nil
}

func (s *Store) AppendAudit(ctx context.Context, event contracts.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	s.audit = append(s.audit, event)
	return nil
}

// AuditEvents returns a copy of the audit log
func (s *Store) AuditEvents() []contracts.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.AuditEvent(nil), s.audit...)
}

// Confirmations returns a copy of every stored confirmation
func (s *Store) Confirmations() []contracts.Confirmation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.Confirmation(nil), s.confirmations...)
}
