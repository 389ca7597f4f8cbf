package contracts

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DataQualityFact is the latest data-quality report of a run
type DataQualityFact struct {
	Found    bool
	Passed   bool
	AsOfDate *time.Time
}

// ReconciliationRecord is one passing reconciliation result
type ReconciliationRecord struct {
	SnapshotID   string
	SnapshotDate time.Time
	EvaluatedAt  time.Time
	ReportPath   string
}

// ReconciliationFact carries the latest pass inside the staleness window and overall
type ReconciliationFact struct {
	InWindow   *ReconciliationRecord
	LatestPass *ReconciliationRecord
}

// UniverseMember is one configured instrument
type UniverseMember struct {
	Symbol    string
	Enabled   bool
	Benchmark bool
	Notes     string
}

// LedgerActivity counts what the ledger has ever recorded
type LedgerActivity struct {
	CashMovements int
	Fills         int
}

// PositionSource records where current holdings came from
type PositionSource string

const (
	PositionSourceReconciliation PositionSource = "reconciliation_snapshot"
	PositionSourceLedger         PositionSource = "ledger_views"
)

// PositionSnapshot is current cash and units held
type PositionSnapshot struct {
	Source       PositionSource
	Cash         decimal.Decimal
	Holdings     map[string]decimal.Decimal
	SnapshotDate *time.Time
}

// Facts is the read-only fact API supplied by collaborators
// ⭐ SSOT: 외부 사실(데이터 품질/대사/유니버스/원장/가격) 조회 인터페이스
type Facts interface {
	// ResolveAsOf returns the data-quality as-of date of the run, else the run's own as-of date
	ResolveAsOf(ctx context.Context, runID string) (*time.Time, error)
	DataQuality(ctx context.Context, runID string) (DataQualityFact, error)
	Reconciliation(ctx context.Context, asof time.Time, maxAgeDays int) (ReconciliationFact, error)
	Universe(ctx context.Context) ([]UniverseMember, error)
	LedgerActivity(ctx context.Context) (LedgerActivity, error)
	// ReconciledPositions returns the snapshot of the latest reconciliation when it passed, else nil
	ReconciledPositions(ctx context.Context) (*PositionSnapshot, error)
	LedgerPositions(ctx context.Context) (PositionSnapshot, error)
	ClosePrices(ctx context.Context, asof time.Time, symbols []string) (map[string]decimal.Decimal, error)
	Signals(ctx context.Context, runID string) ([]Signal, error)
}
