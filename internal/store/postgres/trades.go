package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/pkg/database"
)

// ============================================================================
// Targets / intended trades (replace-all per run, one transaction)
// ============================================================================

func (s *Store) ReplaceTargets(ctx context.Context, runID string, targets []contracts.PortfolioTarget) error {
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM portfolio_targets WHERE run_id = $1`, runID); err != nil {
			return fmt.Errorf("failed to clear targets: %w", err)
		}

		batch := &pgx.Batch{}
		for _, t := range targets {
			batch.Queue(`
				INSERT INTO portfolio_targets (run_id, internal_symbol, target_weight, target_value_base, asof_date, base_currency)
				VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
				runID, t.Symbol, t.TargetWeight, decimalArg(t.TargetValue),
				contracts.DateOnly(t.AsOfDate), t.BaseCurrency,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert targets: %w", err)
		}
		return nil
	})
}

func (s *Store) ListTargets(ctx context.Context, runID string) ([]contracts.PortfolioTarget, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT internal_symbol, target_weight::float8, target_value_base::text, asof_date, base_currency
		FROM portfolio_targets
		WHERE run_id = $1
		ORDER BY internal_symbol`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.PortfolioTarget, 0)
	for rows.Next() {
		var (
			t     = contracts.PortfolioTarget{RunID: runID}
			value *string
		)
		if err := rows.Scan(&t.Symbol, &t.TargetWeight, &value, &t.AsOfDate, &t.BaseCurrency); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		if t.TargetValue, err = parseDecimal(value); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceIntendedTrades(ctx context.Context, runID string, trades []contracts.IntendedTrade) error {
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM ledger_trades_intended WHERE run_id = $1`, runID); err != nil {
			return fmt.Errorf("failed to clear intended trades: %w", err)
		}

		batch := &pgx.Batch{}
		for _, t := range trades {
			batch.Queue(`
				INSERT INTO ledger_trades_intended (
					run_id, sequence, internal_symbol, side, units, notional_value_base,
					order_type, limit_price, reference_price, max_slippage_bps, rationale, ticket_id
				) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8::numeric, $9::numeric, $10, $11, $12)`,
				runID, t.Sequence, t.Symbol, string(t.Side), decimalArg(t.Units), t.NotionalBase.String(),
				t.OrderType, decimalArg(t.LimitPrice), t.ReferencePrice.String(), t.MaxSlippageBps,
				t.Rationale, optionalString(t.TicketID),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert intended trades: %w", err)
		}
		return nil
	})
}

func (s *Store) ListIntendedTrades(ctx context.Context, runID string) ([]contracts.IntendedTrade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sequence, internal_symbol, side, units::text, notional_value_base::text,
			order_type, limit_price::text, reference_price::text, max_slippage_bps,
			coalesce(rationale, ''), ticket_id::text
		FROM ledger_trades_intended
		WHERE run_id = $1
		ORDER BY sequence`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query intended trades: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.IntendedTrade, 0)
	for rows.Next() {
		var (
			t                    = contracts.IntendedTrade{RunID: runID}
			side, notional, ref  string
			units, limit, ticket *string
		)
		if err := rows.Scan(
			&t.Sequence, &t.Symbol, &side, &units, &notional,
			&t.OrderType, &limit, &ref, &t.MaxSlippageBps, &t.Rationale, &ticket,
		); err != nil {
			return nil, fmt.Errorf("failed to scan intended trade: %w", err)
		}
		t.Side = contracts.Side(side)
		if ticket != nil {
			t.TicketID = *ticket
		}
		if t.Units, err = parseDecimal(units); err != nil {
			return nil, err
		}
		if t.LimitPrice, err = parseDecimal(limit); err != nil {
			return nil, err
		}
		if t.NotionalBase, err = mustDecimal(notional); err != nil {
			return nil, err
		}
		if t.ReferencePrice, err = mustDecimal(ref); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) LinkTradesToTicket(ctx context.Context, runID, ticketID string) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE ledger_trades_intended SET ticket_id = $2 WHERE run_id = $1`, runID, ticketID); err != nil {
		return fmt.Errorf("failed to link trades to ticket: %w", err)
	}
	return nil
}

func (s *Store) CountIntendedByTicket(ctx context.Context, ticketID string) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM ledger_trades_intended WHERE ticket_id = $1`, ticketID)
}

func (s *Store) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}
