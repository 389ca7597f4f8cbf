// Package postgres is the production Store and Facts on pgx.
// The schema is owned by the ops database migrations; this package only reads and writes it.
package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// Store implements contracts.Store and contracts.Facts
// ⭐ SSOT: 운영 DB 읽기/쓰기는 여기서만
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ contracts.Store = (*Store)(nil)
	_ contracts.Facts = (*Store)(nil)
)

// New creates a new store on an existing pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return contracts.ErrNotFound
	}
	return err
}

// decimalArg renders an optional decimal as a numeric text parameter
func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric %q: %w", *s, err)
	}
	return &d, nil
}

func mustDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid numeric %q: %w", s, err)
	}
	return d, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func dateArg(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := contracts.DateOnly(*t)
	return &d
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
