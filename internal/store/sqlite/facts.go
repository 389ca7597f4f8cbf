package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// ============================================================================
// contracts.Facts
// ============================================================================

func (s *Store) ResolveAsOf(ctx context.Context, runID string) (*time.Time, error) {
	var asof sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT asof_date FROM data_quality_reports
		WHERE run_id = ? AND asof_date IS NOT NULL
		ORDER BY generated_at DESC
		LIMIT 1`, runID,
	).Scan(&asof)
	if err == nil {
		return parseNullDate(asof)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve data-quality asof: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT asof_date FROM runs WHERE run_id = ?`, runID).Scan(&asof)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run asof: %w", err)
	}
	return parseNullDate(asof)
}

func (s *Store) DataQuality(ctx context.Context, runID string) (contracts.DataQualityFact, error) {
	var (
		fact contracts.DataQualityFact
		asof sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT passed, asof_date FROM data_quality_reports
		WHERE run_id = ?
		ORDER BY generated_at DESC
		LIMIT 1`, runID,
	).Scan(&fact.Passed, &asof)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.DataQualityFact{}, nil
	}
	if err != nil {
		return fact, fmt.Errorf("failed to query data quality: %w", err)
	}

	fact.Found = true
	if fact.AsOfDate, err = parseNullDate(asof); err != nil {
		return fact, err
	}
	return fact, nil
}

func (s *Store) Reconciliation(ctx context.Context, asof time.Time, maxAgeDays int) (contracts.ReconciliationFact, error) {
	var fact contracts.ReconciliationFact

	day := contracts.DateOnly(asof)
	from := day.AddDate(0, 0, -maxAgeDays)

	const base = `
		SELECT r.snapshot_id, s.snapshot_date, r.evaluated_at, r.report_path
		FROM reconciliation_results r
		JOIN reconciliation_snapshots s ON s.snapshot_id = r.snapshot_id
		WHERE r.passed = 1`

	inWindow, err := s.queryReconciliation(ctx, base+`
		AND s.snapshot_date BETWEEN ? AND ?
		ORDER BY r.evaluated_at DESC
		LIMIT 1`,
		from.Format(contracts.DateLayout), day.Format(contracts.DateLayout),
	)
	if err != nil {
		return fact, err
	}
	latest, err := s.queryReconciliation(ctx, base+`
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
	var (
		rec                       contracts.ReconciliationRecord
		snapshotDate, evaluatedAt string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&rec.SnapshotID, &snapshotDate, &evaluatedAt, &rec.ReportPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation: %w", err)
	}
	if rec.SnapshotDate, err = contracts.ParseDate(snapshotDate); err != nil {
		return nil, err
	}
	if rec.EvaluatedAt, err = parseTime(evaluatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Universe(ctx context.Context) ([]contracts.UniverseMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT internal_symbol, enabled, instrument_type, notes
		FROM config_universe
		ORDER BY internal_symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query universe: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]contracts.UniverseMember, 0)
	for rows.Next() {
		var (
			m              contracts.UniverseMember
			instrumentType string
			notes          sql.NullString
		)
		if err := rows.Scan(&m.Symbol, &m.Enabled, &instrumentType, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan universe member: %w", err)
		}
		m.Benchmark = isBenchmarkType(instrumentType)
		m.Notes = notes.String
		out = append(out, m)
	}
	return out, rows.Err()
}

func isBenchmarkType(instrumentType string) bool {
	switch strings.ToLower(strings.TrimSpace(instrumentType)) {
	case "benchmark", "index":
		return true
	}
	return false
}

func (s *Store) LedgerActivity(ctx context.Context) (contracts.LedgerActivity, error) {
	var (
		activity contracts.LedgerActivity
		err      error
	)
	if activity.CashMovements, err = s.count(ctx, `SELECT COUNT(*) FROM ledger_cash_movements`); err != nil {
		return activity, err
	}
	if activity.Fills, err = s.count(ctx, `SELECT COUNT(*) FROM ledger_trades_fills`); err != nil {
		return activity, err
	}
	return activity, nil
}

func (s *Store) ReconciledPositions(ctx context.Context) (*contracts.PositionSnapshot, error) {
	var (
		snapshotID string
		passed     bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id, passed FROM reconciliation_results
		ORDER BY evaluated_at DESC
		LIMIT 1`,
	).Scan(&snapshotID, &passed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest reconciliation: %w", err)
	}
	if !passed {
		return nil, nil
	}

	var cash, snapshotDate string
	err = s.db.QueryRowContext(ctx, `
		SELECT cash_base, snapshot_date FROM reconciliation_snapshots WHERE snapshot_id = ?`, snapshotID,
	).Scan(&cash, &snapshotDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation snapshot: %w", err)
	}

	snap := contracts.PositionSnapshot{
		Source:   contracts.PositionSourceReconciliation,
		Holdings: make(map[string]decimal.Decimal),
	}
	if snap.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("invalid snapshot cash %q: %w", cash, err)
	}
	date, err := contracts.ParseDate(snapshotDate)
	if err != nil {
		return nil, err
	}
	snap.SnapshotDate = &date

	rows, err := s.db.QueryContext(ctx, `
		SELECT internal_symbol, units FROM reconciliation_snapshot_positions
		WHERE snapshot_id = ?
		ORDER BY internal_symbol`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sym, units string
		if err := rows.Scan(&sym, &units); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot position: %w", err)
		}
		u, err := decimal.NewFromString(units)
		if err != nil {
			return nil, fmt.Errorf("invalid units %q for %s: %w", units, sym, err)
		}
		snap.Holdings[sym] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// LedgerPositions derives cash and holdings from cash movements and executed fills
func (s *Store) LedgerPositions(ctx context.Context) (contracts.PositionSnapshot, error) {
	snap := contracts.PositionSnapshot{
		Source:   contracts.PositionSourceLedger,
		Cash:     decimal.Zero,
		Holdings: make(map[string]decimal.Decimal),
	}

	cashRows, err := s.db.QueryContext(ctx, `SELECT amount_base FROM ledger_cash_movements`)
	if err != nil {
		return snap, fmt.Errorf("failed to query cash movements: %w", err)
	}
	for cashRows.Next() {
		var amount string
		if err := cashRows.Scan(&amount); err != nil {
			_ = cashRows.Close()
			return snap, fmt.Errorf("failed to scan cash movement: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			_ = cashRows.Close()
			return snap, fmt.Errorf("invalid cash amount %q: %w", amount, err)
		}
		snap.Cash = snap.Cash.Add(d)
	}
	if err := cashRows.Err(); err != nil {
		_ = cashRows.Close()
		return snap, err
	}
	_ = cashRows.Close()

	fillRows, err := s.db.QueryContext(ctx, `
		SELECT internal_symbol, side, units, executed_value_base
		FROM ledger_trades_fills
		WHERE executed_status IN (?, ?)`,
		string(contracts.ExecutedDone), string(contracts.ExecutedPartial),
	)
	if err != nil {
		return snap, fmt.Errorf("failed to query fills: %w", err)
	}
	defer func() { _ = fillRows.Close() }()

	for fillRows.Next() {
		var (
			sym, side    string
			units, value sql.NullString
		)
		if err := fillRows.Scan(&sym, &side, &units, &value); err != nil {
			return snap, fmt.Errorf("failed to scan fill: %w", err)
		}
		u, err := parseNullDecimal(units)
		if err != nil {
			return snap, err
		}
		v, err := parseNullDecimal(value)
		if err != nil {
			return snap, err
		}

		sign := decimal.NewFromInt(1)
		if contracts.Side(side) == contracts.SideSell {
			sign = sign.Neg()
		}
		if u != nil {
			snap.Holdings[sym] = snap.Holdings[sym].Add(u.Mul(sign))
		}
		if v != nil {
			snap.Cash = snap.Cash.Sub(v.Mul(sign))
		}
	}
	if err := fillRows.Err(); err != nil {
		return snap, err
	}

	for sym, u := range snap.Holdings {
		if u.IsZero() {
			delete(snap.Holdings, sym)
		}
	}
	return snap, nil
}

func (s *Store) ClosePrices(ctx context.Context, asof time.Time, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	args := make([]interface{}, 0, len(symbols)+1)
	args = append(args, asof.Format(contracts.DateLayout))
	for _, sym := range symbols {
		args = append(args, sym)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")

	rows, err := s.db.QueryContext(ctx, `
		SELECT internal_symbol, close FROM market_prices_eod
		WHERE asof_date = ? AND internal_symbol IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query close prices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sym, raw string
		if err := rows.Scan(&sym, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan close price: %w", err)
		}
		px, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid close %q for %s: %w", raw, sym, err)
		}
		out[sym] = px
	}
	return out, rows.Err()
}

func (s *Store) Signals(ctx context.Context, runID string) ([]contracts.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT internal_symbol, score, rank FROM signals_ranked
		WHERE run_id = ?
		ORDER BY internal_symbol`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]contracts.Signal, 0)
	for rows.Next() {
		var (
			sig  contracts.Signal
			rank sql.NullInt64
		)
		if err := rows.Scan(&sig.Symbol, &sig.Score, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		if rank.Valid {
			r := int(rank.Int64)
			sig.Rank = &r
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
