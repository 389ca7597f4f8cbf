package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// ============================================================================
// Fact setters (test/dry-run fixtures)
// ============================================================================

// SetDataQuality records the latest data-quality report of a run
func (s *Store) SetDataQuality(runID string, fact contracts.DataQualityFact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fact.Found = true
	s.dataQuality[runID] = fact
}

// AddReconciliation appends a reconciliation result with its optional position snapshot
func (s *Store) AddReconciliation(record contracts.ReconciliationRecord, passed bool, snapshot *contracts.PositionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconciliations = append(s.reconciliations, reconciliation{record: record, passed: passed, snapshot: snapshot})
}

// SetUniverse replaces the configured universe
func (s *Store) SetUniverse(members []contracts.UniverseMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.universe = append([]contracts.UniverseMember(nil), members...)
}

// SetLedger sets ledger-derived cash and holdings and the number of cash movements behind them
func (s *Store) SetLedger(cash decimal.Decimal, holdings map[string]decimal.Decimal, cashMovements int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgerCash = cash
	s.ledgerHoldings = make(map[string]decimal.Decimal, len(holdings))
	for k, v := range holdings {
		s.ledgerHoldings[k] = v
	}
	s.cashMovements = cashMovements
}

// AddLedgerFills counts fills recorded outside ticket confirmations (imports, baselines)
func (s *Store) AddLedgerFills(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgerFills += n
}

// SetClosePrice records an end-of-day close
func (s *Store) SetClosePrice(asof time.Time, symbol string, close decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := asof.Format(contracts.DateLayout)
	bySymbol, ok := s.prices[day]
	if !ok {
		bySymbol = make(map[string]decimal.Decimal)
		s.prices[day] = bySymbol
	}
	bySymbol[symbol] = close
}

// SetSignals sets the ranked signals of a run
func (s *Store) SetSignals(runID string, signals []contracts.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[runID] = append([]contracts.Signal(nil), signals...)
}

// ============================================================================
// contracts.Facts
// ============================================================================

func (s *Store) ResolveAsOf(ctx context.Context, runID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if dq, ok := s.dataQuality[runID]; ok && dq.AsOfDate != nil {
		d := *dq.AsOfDate
		return &d, nil
	}
	if run, ok := s.runs[runID]; ok && run.AsOfDate != nil {
		d := *run.AsOfDate
		return &d, nil
	}
	return nil, nil
}

func (s *Store) DataQuality(ctx context.Context, runID string) (contracts.DataQualityFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataQuality[runID], nil
}

func (s *Store) Reconciliation(ctx context.Context, asof time.Time, maxAgeDays int) (contracts.ReconciliationFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := contracts.DateOnly(asof)
	from := day.AddDate(0, 0, -maxAgeDays)

	var fact contracts.ReconciliationFact
	for _, r := range s.reconciliations {
		if !r.passed {
			continue
		}
		rec := r.record
		if fact.LatestPass == nil || rec.EvaluatedAt.After(fact.LatestPass.EvaluatedAt) {
			lp := rec
			fact.LatestPass = &lp
		}
		snap := contracts.DateOnly(rec.SnapshotDate)
		if snap.Before(from) || snap.After(day) {
			continue
		}
		if fact.InWindow == nil || rec.EvaluatedAt.After(fact.InWindow.EvaluatedAt) {
			iw := rec
			fact.InWindow = &iw
		}
	}
	return fact, nil
}

func (s *Store) Universe(ctx context.Context) ([]contracts.UniverseMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]contracts.UniverseMember(nil), s.universe...)
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Store) LedgerActivity(ctx context.Context) (contracts.LedgerActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fills := s.ledgerFills
	for _, bySeq := range s.fills {
		fills += len(bySeq)
	}
	return contracts.LedgerActivity{CashMovements: s.cashMovements, Fills: fills}, nil
}

func (s *Store) ReconciledPositions(ctx context.Context) (*contracts.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *reconciliation
	for i := range s.reconciliations {
		r := &s.reconciliations[i]
		if latest == nil || r.record.EvaluatedAt.After(latest.record.EvaluatedAt) {
			latest = r
		}
	}
	if latest == nil || !latest.passed || latest.snapshot == nil {
		return nil, nil
	}

	snap := copySnapshot(*latest.snapshot)
	snap.Source = contracts.PositionSourceReconciliation
	if snap.SnapshotDate == nil {
		d := latest.record.SnapshotDate
		snap.SnapshotDate = &d
	}
	return &snap, nil
}

func (s *Store) LedgerPositions(ctx context.Context) (contracts.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copySnapshot(contracts.PositionSnapshot{
		Source:   contracts.PositionSourceLedger,
		Cash:     s.ledgerCash,
		Holdings: s.ledgerHoldings,
	}), nil
}

func (s *Store) ClosePrices(ctx context.Context, asof time.Time, symbols []string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySymbol := s.prices[asof.Format(contracts.DateLayout)]
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		if px, ok := bySymbol[sym]; ok {
			out[sym] = px
		}
	}
	return out, nil
}

func (s *Store) Signals(ctx context.Context, runID string) ([]contracts.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.Signal(nil), s.signals[runID]...), nil
}

func copySnapshot(in contracts.PositionSnapshot) contracts.PositionSnapshot {
	out := in
	out.Holdings = make(map[string]decimal.Decimal, len(in.Holdings))
	for k, v := range in.Holdings {
		out.Holdings[k] = v
	}
	return out
}

var (
	_ contracts.Store = (*Store)(nil)
	_ contracts.Facts = (*Store)(nil)
)
