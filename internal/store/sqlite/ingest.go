package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// ============================================================================
// Fact ingestion (lite mode has no upstream collaborators writing these tables)
// ============================================================================

// RecordDataQuality appends a data-quality report for a run
func (s *Store) RecordDataQuality(ctx context.Context, runID string, asof *time.Time, passed bool, generatedAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO data_quality_reports (run_id, asof_date, passed, generated_at)
		VALUES (?, ?, ?, ?)`,
		runID, nullDate(asof), passed, formatTime(generatedAt),
	); err != nil {
		return fmt.Errorf("failed to record data quality: %w", err)
	}
	return nil
}

// ReconciliationInput is one reconciliation snapshot and its result
type ReconciliationInput struct {
	SnapshotID   string
	SnapshotDate time.Time
	Cash         decimal.Decimal
	Positions    map[string]decimal.Decimal
	Passed       bool
	EvaluatedAt  time.Time
	ReportPath   string
}

// AddReconciliation stores a snapshot with its positions and result
func (s *Store) AddReconciliation(ctx context.Context, in ReconciliationInput) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reconciliation_snapshots (snapshot_id, snapshot_date, cash_base)
			VALUES (?, ?, ?)`,
			in.SnapshotID, in.SnapshotDate.Format(contracts.DateLayout), in.Cash.String(),
		); err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
		for sym, units := range in.Positions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO reconciliation_snapshot_positions (snapshot_id, internal_symbol, units)
				VALUES (?, ?, ?)`,
				in.SnapshotID, sym, units.String(),
			); err != nil {
				return fmt.Errorf("failed to insert snapshot position %s: %w", sym, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reconciliation_results (snapshot_id, passed, evaluated_at, report_path)
			VALUES (?, ?, ?, ?)`,
			in.SnapshotID, in.Passed, formatTime(in.EvaluatedAt), in.ReportPath,
		); err != nil {
			return fmt.Errorf("failed to insert reconciliation result: %w", err)
		}
		return nil
	})
}

// UpsertUniverseMember inserts or replaces one configured instrument
func (s *Store) UpsertUniverseMember(ctx context.Context, m contracts.UniverseMember) error {
	instrumentType := "etf"
	if m.Benchmark {
		instrumentType = "benchmark"
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO config_universe (internal_symbol, enabled, instrument_type, notes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (internal_symbol) DO UPDATE SET
			enabled = excluded.enabled,
			instrument_type = excluded.instrument_type,
			notes = excluded.notes`,
		m.Symbol, m.Enabled, instrumentType, nullString(m.Notes),
	); err != nil {
		return fmt.Errorf("failed to upsert universe member %s: %w", m.Symbol, err)
	}
	return nil
}

// AddCashMovement appends a ledger cash movement (deposits positive)
func (s *Store) AddCashMovement(ctx context.Context, amount decimal.Decimal, occurredAt time.Time, notes string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_cash_movements (amount_base, occurred_at, notes)
		VALUES (?, ?, ?)`,
		amount.String(), formatTime(occurredAt), notes,
	); err != nil {
		return fmt.Errorf("failed to insert cash movement: %w", err)
	}
	return nil
}

// UpsertClosePrice records an end-of-day close
func (s *Store) UpsertClosePrice(ctx context.Context, asof time.Time, symbol string, close decimal.Decimal, source string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO market_prices_eod (asof_date, internal_symbol, close, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (asof_date, internal_symbol) DO UPDATE SET
			close = excluded.close,
			source = excluded.source`,
		asof.Format(contracts.DateLayout), symbol, close.String(), source,
	); err != nil {
		return fmt.Errorf("failed to upsert close price %s: %w", symbol, err)
	}
	return nil
}

// ReplaceSignals replaces the ranked signals of a run
func (s *Store) ReplaceSignals(ctx context.Context, runID string, signals []contracts.Signal) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM signals_ranked WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("failed to clear signals: %w", err)
		}
		for _, sig := range signals {
			var rank sql.NullInt64
			if sig.Rank != nil {
				rank = sql.NullInt64{Int64: int64(*sig.Rank), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO signals_ranked (run_id, internal_symbol, score, rank)
				VALUES (?, ?, ?, ?)`,
				runID, sig.Symbol, sig.Score, rank,
			); err != nil {
				return fmt.Errorf("failed to insert signal %s: %w", sig.Symbol, err)
			}
		}
		return nil
	})
}
