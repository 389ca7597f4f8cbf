package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// ============================================================================
// contracts.Facts
// ============================================================================

func (s *Store) ResolveAsOf(ctx context.Context, runID string) (*time.Time, error) {
	var asof *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT asof_date FROM data_quality_reports
		WHERE run_id = $1 AND asof_date IS NOT NULL
		ORDER BY generated_at DESC
		LIMIT 1`, runID,
	).Scan(&asof)
	if err == nil {
		return asof, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve data-quality asof: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT asof_date FROM runs WHERE run_id = $1`, runID).Scan(&asof)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run asof: %w", err)
	}
	return asof, nil
}

func (s *Store) DataQuality(ctx context.Context, runID string) (contracts.DataQualityFact, error) {
	var fact contracts.DataQualityFact
	err := s.pool.QueryRow(ctx, `
		SELECT coalesce(passed, false), asof_date FROM data_quality_reports
		WHERE run_id = $1
		ORDER BY generated_at DESC
		LIMIT 1`, runID,
	).Scan(&fact.Passed, &fact.AsOfDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return contracts.DataQualityFact{}, nil
	}
	if err != nil {
		return fact, fmt.Errorf("failed to query data quality: %w", err)
	}
	fact.Found = true
	return fact, nil
}

const reconciliationBase = `
	SELECT r.snapshot_id::text, s.snapshot_date, r.evaluated_at, coalesce(r.report_path, '')
	FROM reconciliation_results r
	JOIN reconciliation_snapshots s ON s.snapshot_id = r.snapshot_id
	WHERE r.passed = true
`

func (s *Store) Reconciliation(ctx context.Context, asof time.Time, maxAgeDays int) (contracts.ReconciliationFact, error) {
	var fact contracts.ReconciliationFact

	day := contracts.DateOnly(asof)
	inWindow, err := s.queryReconciliation(ctx, reconciliationBase+`
		AND s.snapshot_date BETWEEN $1 AND $2
		ORDER BY r.evaluated_at DESC
		LIMIT 1`,
		day.AddDate(0, 0, -maxAgeDays), day,
	)
	if err != nil {
		return fact, err
	}
	latest, err := s.queryReconciliation(ctx, reconciliationBase+`
		ORDER BY r.evaluated_at DESC
		LIMIT 1`)
	if err != nil {
		return fact, err
	}

	fact.InWindow = inWindow
	fact.LatestPass = latest
	return fact, nil
}

func (s *Store) queryReconciliation(ctx context.Context, query string, args ...interface{}) (*contracts.ReconciliationRecord, error) {
	var rec contracts.ReconciliationRecord
	err := s.pool.QueryRow(ctx, query, args...).Scan(&rec.SnapshotID, &rec.SnapshotDate, &rec.EvaluatedAt, &rec.ReportPath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation: %w", err)
	}
	rec.EvaluatedAt = rec.EvaluatedAt.UTC()
	return &rec, nil
}

func (s *Store) Universe(ctx context.Context) ([]contracts.UniverseMember, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT internal_symbol, enabled, coalesce(instrument_type, ''), coalesce(notes, '')
		FROM config_universe
		ORDER BY internal_symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query universe: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.UniverseMember, 0)
	for rows.Next() {
		var (
			m              contracts.UniverseMember
			instrumentType string
		)
		if err := rows.Scan(&m.Symbol, &m.Enabled, &instrumentType, &m.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan universe member: %w", err)
		}
		switch strings.ToLower(instrumentType) {
		case "benchmark", "index":
			m.Benchmark = true
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) LedgerActivity(ctx context.Context) (contracts.LedgerActivity, error) {
	var activity contracts.LedgerActivity
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM ledger_cash_movements),
			(SELECT count(*) FROM ledger_trades_fills)`,
	).Scan(&activity.CashMovements, &activity.Fills)
	if err != nil {
		return activity, fmt.Errorf("failed to query ledger activity: %w", err)
	}
	return activity, nil
}

func (s *Store) ReconciledPositions(ctx context.Context) (*contracts.PositionSnapshot, error) {
	var (
		snapshotID   string
		passed       bool
		cash         string
		snapshotDate time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT r.snapshot_id::text, r.passed, coalesce(s.cash_base, 0)::text, s.snapshot_date
		FROM reconciliation_results r
		JOIN reconciliation_snapshots s ON s.snapshot_id = r.snapshot_id
		ORDER BY r.evaluated_at DESC
		LIMIT 1`,
	).Scan(&snapshotID, &passed, &cash, &snapshotDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest reconciliation: %w", err)
	}
	if !passed {
		return nil, nil
	}

	snap := &contracts.PositionSnapshot{
		Source:       contracts.PositionSourceReconciliation,
		SnapshotDate: &snapshotDate,
	}
	if snap.Cash, err = mustDecimal(cash); err != nil {
		return nil, err
	}

	snap.Holdings, err = s.queryHoldings(ctx, `
		SELECT internal_symbol, units::text FROM reconciliation_snapshot_positions
		WHERE snapshot_id = $1`, snapshotID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// LedgerPositions reads the ledger's current cash and position views
func (s *Store) LedgerPositions(ctx context.Context) (contracts.PositionSnapshot, error) {
	snap := contracts.PositionSnapshot{Source: contracts.PositionSourceLedger, Cash: decimal.Zero}

	var cash string
	err := s.pool.QueryRow(ctx, `SELECT coalesce(cash_base, 0)::text FROM ledger_cash_current`).Scan(&cash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		cash = "0"
	case err != nil:
		return snap, fmt.Errorf("failed to query ledger cash: %w", err)
	}
	if snap.Cash, err = mustDecimal(cash); err != nil {
		return snap, err
	}

	snap.Holdings, err = s.queryHoldings(ctx, `
		SELECT internal_symbol, units::text FROM ledger_positions_current`)
	if err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *Store) queryHoldings(ctx context.Context, query string, args ...interface{}) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	holdings := make(map[string]decimal.Decimal)
	for rows.Next() {
		var sym, units string
		if err := rows.Scan(&sym, &units); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		u, err := mustDecimal(units)
		if err != nil {
			return nil, err
		}
		holdings[sym] = u
	}
	return holdings, rows.Err()
}

func (s *Store) ClosePrices(ctx context.Context, asof time.Time, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT internal_symbol, close::text FROM market_prices_eod
		WHERE asof_date = $1 AND internal_symbol = ANY($2)`,
		contracts.DateOnly(asof), symbols,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query close prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sym, raw string
		if err := rows.Scan(&sym, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan close price: %w", err)
		}
		px, err := mustDecimal(raw)
		if err != nil {
			return nil, err
		}
		out[sym] = px
	}
	return out, rows.Err()
}

func (s *Store) Signals(ctx context.Context, runID string) ([]contracts.Signal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT internal_symbol, score::float8, rank FROM signals_ranked
		WHERE run_id = $1
		ORDER BY internal_symbol`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.Signal, 0)
	for rows.Next() {
		var (
			sig  contracts.Signal
			rank *int32
		)
		if err := rows.Scan(&sig.Symbol, &sig.Score, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		if rank != nil {
			r := int(*rank)
			sig.Rank = &r
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
