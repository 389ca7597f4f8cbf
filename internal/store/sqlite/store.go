// Package sqlite is the lite-mode Store and Facts backed by a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"

	_ "modernc.org/sqlite"
)

// tsLayout is fixed-width so stored timestamps sort lexicographically
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements contracts.Store and contracts.Facts on database/sql
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ contracts.Store = (*Store)(nil)
	_ contracts.Facts = (*Store)(nil)
)

// Open opens (and migrates) the SQLite database at path. ":memory:" is accepted.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite 는 단일 writer; :memory: 는 커넥션마다 별도 DB
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle and creates missing tables
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SetClock overrides the time source used for finish/update/audit timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	asof_date TEXT,
	config_hash TEXT NOT NULL,
	git_commit TEXT NOT NULL DEFAULT '',
	cadence TEXT NOT NULL,
	status TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS risk_checks (
	run_id TEXT NOT NULL,
	check_name TEXT NOT NULL,
	passed INTEGER NOT NULL,
	details TEXT NOT NULL,
	PRIMARY KEY (run_id, check_name)
);

CREATE TABLE IF NOT EXISTS decisions (
	run_id TEXT PRIMARY KEY,
	asof_date TEXT,
	approved INTEGER NOT NULL,
	decision_type TEXT NOT NULL,
	reasons TEXT NOT NULL,
	decided_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio_targets (
	run_id TEXT NOT NULL,
	internal_symbol TEXT NOT NULL,
	target_weight REAL NOT NULL,
	target_value_base TEXT,
	asof_date TEXT NOT NULL,
	base_currency TEXT NOT NULL,
	PRIMARY KEY (run_id, internal_symbol)
);

CREATE TABLE IF NOT EXISTS ledger_trades_intended (
	run_id TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	internal_symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	units TEXT,
	notional_value_base TEXT NOT NULL,
	order_type TEXT NOT NULL,
	limit_price TEXT,
	reference_price TEXT NOT NULL,
	max_slippage_bps INTEGER NOT NULL,
	rationale TEXT NOT NULL DEFAULT '',
	ticket_id TEXT,
	PRIMARY KEY (run_id, sequence)
);

CREATE TABLE IF NOT EXISTS tickets (
	ticket_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL UNIQUE,
	ticket_type TEXT NOT NULL,
	status TEXT NOT NULL,
	material_hash TEXT NOT NULL,
	rendered_json TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS confirmations (
	confirmation_id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL,
	confirmation_type TEXT NOT NULL,
	submitted_by TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	fills_count INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_trades_fills (
	ticket_id TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	internal_symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	executed_status TEXT NOT NULL,
	units TEXT,
	fill_price TEXT,
	executed_value_base TEXT,
	filled_at TEXT,
	notes TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (ticket_id, sequence)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	object_type TEXT NOT NULL,
	object_id TEXT NOT NULL,
	details TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS data_quality_reports (
	run_id TEXT NOT NULL,
	asof_date TEXT,
	passed INTEGER NOT NULL,
	generated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reconciliation_snapshots (
	snapshot_id TEXT PRIMARY KEY,
	snapshot_date TEXT NOT NULL,
	cash_base TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reconciliation_snapshot_positions (
	snapshot_id TEXT NOT NULL,
	internal_symbol TEXT NOT NULL,
	units TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, internal_symbol)
);

CREATE TABLE IF NOT EXISTS reconciliation_results (
	snapshot_id TEXT NOT NULL,
	passed INTEGER NOT NULL,
	evaluated_at TEXT NOT NULL,
	report_path TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS config_universe (
	internal_symbol TEXT PRIMARY KEY,
	enabled INTEGER NOT NULL,
	instrument_type TEXT NOT NULL DEFAULT '',
	notes TEXT
);

CREATE TABLE IF NOT EXISTS ledger_cash_movements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	amount_base TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS market_prices_eod (
	asof_date TEXT NOT NULL,
	internal_symbol TEXT NOT NULL,
	close TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (asof_date, internal_symbol)
);

CREATE TABLE IF NOT EXISTS signals_ranked (
	run_id TEXT NOT NULL,
	internal_symbol TEXT NOT NULL,
	score REAL NOT NULL,
	rank INTEGER,
	PRIMARY KEY (run_id, internal_symbol)
);
`

// ============================================================================
// Column helpers
// ============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(contracts.DateLayout), Valid: true}
}

func parseNullDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := contracts.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", ns.String, err)
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return contracts.ErrNotFound
	}
	return nil
}
