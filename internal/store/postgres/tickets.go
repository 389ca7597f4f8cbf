package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/pkg/database"
)

// ============================================================================
// Tickets (upsert by run)
// ============================================================================

const ticketColumns = `ticket_id::text, run_id::text, ticket_type, status, coalesce(material_hash, ''), rendered_json, created_at, updated_at`

// UpsertTicket keeps the first ticket_id and created_at of a run and writes them back into ticket
func (s *Store) UpsertTicket(ctx context.Context, ticket *contracts.Ticket) error {
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var existing struct {
			id     string
			status string
		}
		err := tx.QueryRow(ctx, `
			SELECT ticket_id::text, created_at, status FROM tickets
			WHERE run_id = $1
			FOR UPDATE`, ticket.RunID,
		).Scan(&existing.id, &ticket.CreatedAt, &existing.status)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if _, err := tx.Exec(ctx, `
				INSERT INTO tickets (ticket_id, run_id, ticket_type, status, material_hash, rendered_json, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				ticket.TicketID, ticket.RunID, string(ticket.DecisionType), string(ticket.Status),
				ticket.MaterialHash, renderedArg(ticket.Rendered), ticket.CreatedAt.UTC(), ticket.UpdatedAt.UTC(),
			); err != nil {
				return fmt.Errorf("failed to insert ticket: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("failed to load ticket: %w", err)
		}

		ticket.TicketID = existing.id
		if contracts.TicketStatus(existing.status) == contracts.TicketStatusConfirmed {
			ticket.Status = contracts.TicketStatusConfirmed
		}

		if _, err := tx.Exec(ctx, `
			UPDATE tickets SET ticket_type = $2, status = $3, material_hash = $4, rendered_json = $5, updated_at = $6
			WHERE ticket_id = $1`,
			existing.id, string(ticket.DecisionType), string(ticket.Status), ticket.MaterialHash,
			renderedArg(ticket.Rendered), ticket.UpdatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to update ticket: %w", err)
		}
		return nil
	})
}

func renderedArg(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (*contracts.Ticket, error) {
	return s.queryTicket(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1`, ticketID)
}

func (s *Store) GetTicketByRun(ctx context.Context, runID string) (*contracts.Ticket, error) {
	return s.queryTicket(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE run_id = $1`, runID)
}

func (s *Store) LatestTradeTicket(ctx context.Context, excludeRunID string) (*contracts.Ticket, error) {
	return s.queryTicket(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE ticket_type = $1 AND run_id::text <> $2
		ORDER BY created_at DESC, ticket_id DESC
		LIMIT 1`,
		string(contracts.DecisionTrade), excludeRunID,
	)
}

func (s *Store) ListTickets(ctx context.Context, limit int) ([]contracts.Ticket, error) {
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		ORDER BY created_at DESC, ticket_id DESC
		LIMIT $1`, limitArg)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTicketStatus(ctx context.Context, ticketID string, status contracts.TicketStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tickets SET status = $2, updated_at = $3 WHERE ticket_id = $1`,
		ticketID, string(status), s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (s *Store) queryTicket(ctx context.Context, query string, args ...interface{}) (*contracts.Ticket, error) {
	t, err := scanTicket(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func scanTicket(row pgx.Row) (*contracts.Ticket, error) {
	var (
		t                    contracts.Ticket
		decisionType, status string
		rendered             []byte
	)
	if err := row.Scan(
		&t.TicketID, &t.RunID, &decisionType, &status, &t.MaterialHash, &rendered, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.DecisionType = contracts.DecisionType(decisionType)
	t.Status = contracts.TicketStatus(status)
	if len(rendered) > 0 {
		t.Rendered = json.RawMessage(rendered)
	}
	return &t, nil
}

// ============================================================================
// Confirmations / fills / audit
// ============================================================================

func (s *Store) SaveConfirmation(ctx context.Context, confirmation *contracts.Confirmation, fills []contracts.ConfirmedFill) error {
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO confirmations (confirmation_id, ticket_id, confirmation_type, submitted_by, notes, fills_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			confirmation.ConfirmationID, confirmation.TicketID, string(confirmation.Type),
			confirmation.SubmittedBy, confirmation.Notes, confirmation.FillsCount, confirmation.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert confirmation: %w", err)
		}

		batch := &pgx.Batch{}
		for _, f := range fills {
			batch.Queue(`
				INSERT INTO ledger_trades_fills (
					ticket_id, sequence, internal_symbol, side, executed_status,
					units, fill_price, executed_value_base, filled_at, notes
				) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10)
				ON CONFLICT (ticket_id, sequence) DO UPDATE SET
					internal_symbol = EXCLUDED.internal_symbol,
					side = EXCLUDED.side,
					executed_status = EXCLUDED.executed_status,
					units = EXCLUDED.units,
					fill_price = EXCLUDED.fill_price,
					executed_value_base = EXCLUDED.executed_value_base,
					filled_at = EXCLUDED.filled_at,
					notes = EXCLUDED.notes`,
				confirmation.TicketID, f.Sequence, f.Symbol, string(f.Side), string(f.ExecutedStatus),
				decimalArg(f.Units), decimalArg(f.FillPrice), decimalArg(f.ExecutedValueBase),
				utcPtr(f.FilledAt), f.Notes,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert fills: %w", err)
		}
		return nil
	})
}

func (s *Store) ListFills(ctx context.Context, ticketID string) ([]contracts.ConfirmedFill, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sequence, internal_symbol, side, executed_status, units::text, fill_price::text,
			executed_value_base::text, filled_at, coalesce(notes, '')
		FROM ledger_trades_fills
		WHERE ticket_id = $1
		ORDER BY sequence`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.ConfirmedFill, 0)
	for rows.Next() {
		var (
			f                   = contracts.ConfirmedFill{TicketID: ticketID}
			side, status        string
			units, price, value *string
		)
		if err := rows.Scan(&f.Sequence, &f.Symbol, &side, &status, &units, &price, &value, &f.FilledAt, &f.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		f.Side = contracts.Side(side)
		f.ExecutedStatus = contracts.ExecutedStatus(status)
		if f.Units, err = parseDecimal(units); err != nil {
			return nil, err
		}
		if f.FillPrice, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if f.ExecutedValueBase, err = parseDecimal(value); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) CountFills(ctx context.Context, ticketID string) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM ledger_trades_fills WHERE ticket_id = $1`, ticketID)
}

func (s *Store) CountConfirmations(ctx context.Context, ticketID string) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM confirmations WHERE ticket_id = $1`, ticketID)
}

func (s *Store) AppendAudit(ctx context.Context, event contracts.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	var details []byte
	if event.Details != nil {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		details = raw
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (actor, action, object_type, object_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.Actor, event.Action, event.ObjectType, event.ObjectID, details, event.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}
