package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// ============================================================================
// Targets / intended trades (replace-all per run)
// ============================================================================

func (s *Store) ReplaceTargets(ctx context.Context, runID string, targets []contracts.PortfolioTarget) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio_targets WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("failed to clear targets: %w", err)
		}
		for _, t := range targets {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO portfolio_targets (run_id, internal_symbol, target_weight, target_value_base, asof_date, base_currency)
				VALUES (?, ?, ?, ?, ?, ?)`,
				runID, t.Symbol, t.TargetWeight, nullDecimal(t.TargetValue),
				t.AsOfDate.Format(contracts.DateLayout), t.BaseCurrency,
			); err != nil {
				return fmt.Errorf("failed to insert target %s: %w", t.Symbol, err)
			}
		}
		return nil
	})
}

func (s *Store) ListTargets(ctx context.Context, runID string) ([]contracts.PortfolioTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT internal_symbol, target_weight, target_value_base, asof_date, base_currency
		FROM portfolio_targets
		WHERE run_id = ?
		ORDER BY internal_symbol`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]contracts.PortfolioTarget, 0)
	for rows.Next() {
		var (
			t     = contracts.PortfolioTarget{RunID: runID}
			value sql.NullString
			asof  string
		)
		if err := rows.Scan(&t.Symbol, &t.TargetWeight, &value, &asof, &t.BaseCurrency); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		if t.TargetValue, err = parseNullDecimal(value); err != nil {
			return nil, err
		}
		if t.AsOfDate, err = contracts.ParseDate(asof); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceIntendedTrades(ctx context.Context, runID string, trades []contracts.IntendedTrade) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_trades_intended WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("failed to clear intended trades: %w", err)
		}
		for _, t := range trades {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO ledger_trades_intended (
					run_id, sequence, internal_symbol, side, units, notional_value_base,
					order_type, limit_price, reference_price, max_slippage_bps, rationale, ticket_id
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, t.Sequence, t.Symbol, string(t.Side), nullDecimal(t.Units), t.NotionalBase.String(),
				t.OrderType, nullDecimal(t.LimitPrice), t.ReferencePrice.String(), t.MaxSlippageBps,
				t.Rationale, nullString(t.TicketID),
			); err != nil {
				return fmt.Errorf("failed to insert intended trade %d: %w", t.Sequence, err)
			}
		}
		return nil
	})
}

func (s *Store) ListIntendedTrades(ctx context.Context, runID string) ([]contracts.IntendedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, internal_symbol, side, units, notional_value_base,
			order_type, limit_price, reference_price, max_slippage_bps, rationale, ticket_id
		FROM ledger_trades_intended
		WHERE run_id = ?
		ORDER BY sequence`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query intended trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]contracts.IntendedTrade, 0)
	for rows.Next() {
		var (
			t                    = contracts.IntendedTrade{RunID: runID}
			side, notional, ref  string
			units, limit, ticket sql.NullString
		)
		if err := rows.Scan(
			&t.Sequence, &t.Symbol, &side, &units, &notional,
			&t.OrderType, &limit, &ref, &t.MaxSlippageBps, &t.Rationale, &ticket,
		); err != nil {
			return nil, fmt.Errorf("failed to scan intended trade: %w", err)
		}
		t.Side = contracts.Side(side)
		t.TicketID = ticket.String
		if t.Units, err = parseNullDecimal(units); err != nil {
			return nil, err
		}
		if t.LimitPrice, err = parseNullDecimal(limit); err != nil {
			return nil, err
		}
		if t.NotionalBase, err = decimal.NewFromString(notional); err != nil {
			return nil, fmt.Errorf("invalid notional %q: %w", notional, err)
		}
		if t.ReferencePrice, err = decimal.NewFromString(ref); err != nil {
			return nil, fmt.Errorf("invalid reference price %q: %w", ref, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) LinkTradesToTicket(ctx context.Context, runID, ticketID string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE ledger_trades_intended SET ticket_id = ? WHERE run_id = ?`, ticketID, runID); err != nil {
		return fmt.Errorf("failed to link trades to ticket: %w", err)
	}
	return nil
}

func (s *Store) CountIntendedByTicket(ctx context.Context, ticketID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM ledger_trades_intended WHERE ticket_id = ?`, ticketID)
}

func (s *Store) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}
