package contracts

import "time"

// DetailKind tags which typed payload a CheckDetail carries
type DetailKind string

const (
	DetailDataQuality    DetailKind = "data_quality"
	DetailReconciliation DetailKind = "reconciliation"
	DetailConfirmations  DetailKind = "confirmations"
	DetailUniverse       DetailKind = "universe"
	DetailLedger         DetailKind = "ledger"
	DetailTradeBuilder   DetailKind = "trade_builder"
)

// CheckDetail is a tagged union of the known check payloads.
// Extra is a free-form diagnostics side channel; invariants never read it.
type CheckDetail struct {
	Kind           DetailKind            `json:"kind"`
	DataQuality    *DataQualityDetail    `json:"data_quality,omitempty"`
	Reconciliation *ReconciliationDetail `json:"reconciliation,omitempty"`
	Confirmations  *ConfirmationsDetail  `json:"confirmations,omitempty"`
	Universe       *UniverseDetail       `json:"universe,omitempty"`
	Ledger         *LedgerDetail         `json:"ledger,omitempty"`
	TradeBuilder   *TradeBuilderDetail   `json:"trade_builder,omitempty"`
	Extra          map[string]any        `json:"extra,omitempty"`
}

// DataQualityDetail describes the data_quality check
type DataQualityDetail struct {
	Found    bool   `json:"found"`
	Passed   bool   `json:"passed"`
	AsOfDate string `json:"asof_date,omitempty"`
}

// ReconciliationStatus is the lookup outcome of the reconciliation check
type ReconciliationStatus string

const (
	ReconciliationNotRequired    ReconciliationStatus = "not_required"
	ReconciliationMissingAsOf    ReconciliationStatus = "missing_asof_date"
	ReconciliationStaleOrMissing ReconciliationStatus = "stale_or_missing"
	ReconciliationPresent        ReconciliationStatus = "present"
)

// ReconciliationDetail describes the reconciliation check
type ReconciliationDetail struct {
	Required               bool                 `json:"required"`
	MaxAgeDays             int                  `json:"max_age_days"`
	ExpectedAsOf           string               `json:"expected_asof,omitempty"`
	Status                 ReconciliationStatus `json:"status"`
	SnapshotDate           string               `json:"snapshot_date,omitempty"`
	EvaluatedAt            *time.Time           `json:"evaluated_at_utc,omitempty"`
	ReportPath             string               `json:"report_path,omitempty"`
	LatestPassSnapshotDate string               `json:"latest_pass_snapshot_date,omitempty"`
	LatestPassEvaluatedAt  *time.Time           `json:"latest_pass_evaluated_at_utc,omitempty"`
}

// ConfirmationsDetail describes the confirmations check
type ConfirmationsDetail struct {
	LatestTradeTicketID string `json:"latest_trade_ticket_id,omitempty"`
	IntendedCount       int    `json:"intended_count"`
	FillsCount          int    `json:"fills_count"`
}

// UniverseDetail describes the universe_verified check
type UniverseDetail struct {
	EnabledCount           int      `json:"enabled_count"`
	UnverifiedEnabledCount int      `json:"unverified_enabled_count"`
	Unverified             []string `json:"unverified,omitempty"`
}

// LedgerDetail describes the ledger_ready check
type LedgerDetail struct {
	CashMovements int `json:"cash_movements"`
	Fills         int `json:"fills"`
}

// TradeBuilderDetail describes the trade_builder check
type TradeBuilderDetail struct {
	Enabled        bool           `json:"enabled"`
	Outcome        SizingOutcome  `json:"outcome"`
	IntendedCount  int            `json:"intended_count"`
	PositionSource PositionSource `json:"position_source,omitempty"`
	MissingPrices  []string       `json:"missing_prices,omitempty"`
	ArtifactPath   string         `json:"artifact_path,omitempty"`
}

// NewDataQualityDetail wraps d in a CheckDetail
func NewDataQualityDetail(d DataQualityDetail) CheckDetail {
	return CheckDetail{Kind: DetailDataQuality, DataQuality: &d}
}

// NewReconciliationDetail wraps d in a CheckDetail
func NewReconciliationDetail(d ReconciliationDetail) CheckDetail {
	return CheckDetail{Kind: DetailReconciliation, Reconciliation: &d}
}

// NewConfirmationsDetail wraps d in a CheckDetail
func NewConfirmationsDetail(d ConfirmationsDetail) CheckDetail {
	return CheckDetail{Kind: DetailConfirmations, Confirmations: &d}
}

// NewUniverseDetail wraps d in a CheckDetail
func NewUniverseDetail(d UniverseDetail) CheckDetail {
	return CheckDetail{Kind: DetailUniverse, Universe: &d}
}

// NewLedgerDetail wraps d in a CheckDetail
func NewLedgerDetail(d LedgerDetail) CheckDetail {
	return CheckDetail{Kind: DetailLedger, Ledger: &d}
}

// NewTradeBuilderDetail wraps d in a CheckDetail
func NewTradeBuilderDetail(d TradeBuilderDetail) CheckDetail {
	return CheckDetail{Kind: DetailTradeBuilder, TradeBuilder: &d}
}

// WithExtra attaches a diagnostic key/value
func (c CheckDetail) WithExtra(key string, value any) CheckDetail {
	if c.Extra == nil {
		c.Extra = make(map[string]any)
	}
	c.Extra[key] = value
	return c
}
