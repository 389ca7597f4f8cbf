package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// ============================================================================
// Tickets (upsert by run)
// ============================================================================

const ticketColumns = `ticket_id, run_id, ticket_type, status, material_hash, rendered_json, created_at, updated_at`

// UpsertTicket keeps the first ticket_id and created_at of a run and writes them back into ticket
func (s *Store) UpsertTicket(ctx context.Context, ticket *contracts.Ticket) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			existingID, createdAt, status string
		)
		err := tx.QueryRowContext(ctx, `
			SELECT ticket_id, created_at, status FROM tickets WHERE run_id = ?`, ticket.RunID,
		).Scan(&existingID, &createdAt, &status)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tickets (`+ticketColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				ticket.TicketID, ticket.RunID, string(ticket.DecisionType), string(ticket.Status),
				ticket.MaterialHash, nullString(string(ticket.Rendered)),
				formatTime(ticket.CreatedAt), formatTime(ticket.UpdatedAt),
			); err != nil {
				return fmt.Errorf("failed to insert ticket: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("failed to load ticket: %w", err)
		}

		ticket.TicketID = existingID
		if ticket.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		if contracts.TicketStatus(status) == contracts.TicketStatusConfirmed {
			ticket.Status = contracts.TicketStatusConfirmed
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE tickets SET ticket_type = ?, status = ?, material_hash = ?, rendered_json = ?, updated_at = ?
			WHERE ticket_id = ?`,
			string(ticket.DecisionType), string(ticket.Status), ticket.MaterialHash,
			nullString(string(ticket.Rendered)), formatTime(ticket.UpdatedAt), existingID,
		); err != nil {
			return fmt.Errorf("failed to update ticket: %w", err)
		}
		return nil
	})
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (*contracts.Ticket, error) {
	return s.queryTicket(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = ?`, ticketID)
}

func (s *Store) GetTicketByRun(ctx context.Context, runID string) (*contracts.Ticket, error) {
	return s.queryTicket(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE run_id = ?`, runID)
}

func (s *Store) LatestTradeTicket(ctx context.Context, excludeRunID string) (*contracts.Ticket, error) {
	return s.queryTicket(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE ticket_type = ? AND run_id <> ?
		ORDER BY created_at DESC, ticket_id DESC
		LIMIT 1`,
		string(contracts.DecisionTrade), excludeRunID,
	)
}

func (s *Store) ListTickets(ctx context.Context, limit int) ([]contracts.Ticket, error) {
	if limit <= 0 {
		limit = -1 // sqlite: 제한 없음
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		ORDER BY created_at DESC, ticket_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]contracts.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTicketStatus(ctx context.Context, ticketID string, status contracts.TicketStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = ?, updated_at = ? WHERE ticket_id = ?`,
		string(status), formatTime(s.now()), ticketID,
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) queryTicket(ctx context.Context, query string, args ...interface{}) (*contracts.Ticket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row rowScanner) (*contracts.Ticket, error) {
	var (
		t                    contracts.Ticket
		decisionType, status string
		rendered             sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&t.TicketID, &t.RunID, &decisionType, &status, &t.MaterialHash, &rendered, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	t.DecisionType = contracts.DecisionType(decisionType)
	t.Status = contracts.TicketStatus(status)
	if rendered.Valid {
		t.Rendered = json.RawMessage(rendered.String)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// ============================================================================
// Confirmations / fills / audit
// ============================================================================

func (s *Store) SaveConfirmation(ctx context.Context, confirmation *contracts.Confirmation, fills []contracts.ConfirmedFill) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO confirmations (confirmation_id, ticket_id, confirmation_type, submitted_by, notes, fills_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			confirmation.ConfirmationID, confirmation.TicketID, string(confirmation.Type),
			confirmation.SubmittedBy, confirmation.Notes, confirmation.FillsCount,
			formatTime(confirmation.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert confirmation: %w", err)
		}

		for _, f := range fills {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO ledger_trades_fills (
					ticket_id, sequence, internal_symbol, side, executed_status,
					units, fill_price, executed_value_base, filled_at, notes
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (ticket_id, sequence) DO UPDATE SET
					internal_symbol = excluded.internal_symbol,
					side = excluded.side,
					executed_status = excluded.executed_status,
					units = excluded.units,
					fill_price = excluded.fill_price,
					executed_value_base = excluded.executed_value_base,
					filled_at = excluded.filled_at,
					notes = excluded.notes`,
				confirmation.TicketID, f.Sequence, f.Symbol, string(f.Side), string(f.ExecutedStatus),
				nullDecimal(f.Units), nullDecimal(f.FillPrice), nullDecimal(f.ExecutedValueBase),
				nullTime(f.FilledAt), f.Notes,
			); err != nil {
				return fmt.Errorf("failed to upsert fill %d: %w", f.Sequence, err)
			}
		}
		return nil
	})
}

func (s *Store) ListFills(ctx context.Context, ticketID string) ([]contracts.ConfirmedFill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, internal_symbol, side, executed_status, units, fill_price,
			executed_value_base, filled_at, notes
		FROM ledger_trades_fills
		WHERE ticket_id = ?
		ORDER BY sequence`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]contracts.ConfirmedFill, 0)
	for rows.Next() {
		var (
			f                             = contracts.ConfirmedFill{TicketID: ticketID}
			side, status                  string
			units, price, value, filledAt sql.NullString
		)
		if err := rows.Scan(&f.Sequence, &f.Symbol, &side, &status, &units, &price, &value, &filledAt, &f.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		f.Side = contracts.Side(side)
		f.ExecutedStatus = contracts.ExecutedStatus(status)
		if f.Units, err = parseNullDecimal(units); err != nil {
			return nil, err
		}
		if f.FillPrice, err = parseNullDecimal(price); err != nil {
			return nil, err
		}
		if f.ExecutedValueBase, err = parseNullDecimal(value); err != nil {
			return nil, err
		}
		if f.FilledAt, err = parseNullTime(filledAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) CountFills(ctx context.Context, ticketID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM ledger_trades_fills WHERE ticket_id = ?`, ticketID)
}

func (s *Store) CountConfirmations(ctx context.Context, ticketID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM confirmations WHERE ticket_id = ?`, ticketID)
}

func (s *Store) AppendAudit(ctx context.Context, event contracts.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	var details sql.NullString
	if event.Details != nil {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor, action, object_type, object_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.Actor, event.Action, event.ObjectType, event.ObjectID, details, formatTime(event.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// AuditEvents returns every audit event, oldest first
func (s *Store) AuditEvents(ctx context.Context) ([]contracts.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT actor, action, object_type, object_id, details, created_at
		FROM audit_log ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]contracts.AuditEvent, 0)
	for rows.Next() {
		var (
			e         contracts.AuditEvent
			details   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.Actor, &e.Action, &e.ObjectType, &e.ObjectID, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
