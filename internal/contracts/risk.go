package contracts

import (
	"sort"
	"time"
)

// CheckName is one of the fixed RiskGate check names
type CheckName string

const (
	CheckDataQuality      CheckName = "data_quality"
	CheckReconciliation   CheckName = "reconciliation"
	CheckConfirmations    CheckName = "confirmations"
	CheckUniverseVerified CheckName = "universe_verified"
	CheckLedgerReady      CheckName = "ledger_ready"
	CheckTradeBuilder     CheckName = "trade_builder"
)

// CheckNames lists every check in canonical evaluation order
// ⭐ SSOT: 게이트 체크 목록과 순서는 여기서만
var CheckNames = []CheckName{
	CheckDataQuality,
	CheckReconciliation,
	CheckConfirmations,
	CheckUniverseVerified,
	CheckLedgerReady,
	CheckTradeBuilder,
}

// Order returns the canonical position (10, 20, ... 60); unknown names get 0
func (n CheckName) Order() int {
	for i, name := range CheckNames {
		if name == n {
			return (i + 1) * 10
		}
	}
	return 0
}

// Known reports whether n is in the fixed check set
func (n CheckName) Known() bool {
	return n.Order() > 0
}

// ReasonCode is a stable blocking reason identifier
type ReasonCode string

const (
	ReasonDataQualityFail        ReasonCode = "DATA_QUALITY_FAIL"
	ReasonReconciliationRequired ReasonCode = "RECONCILIATION_REQUIRED"
	ReasonConfirmationMissing    ReasonCode = "CONFIRMATION_MISSING"
	ReasonUniverseNotVerified    ReasonCode = "UNIVERSE_NOT_VERIFIED"
	ReasonLedgerEmpty            ReasonCode = "LEDGER_EMPTY"
	ReasonTradesDisabled         ReasonCode = "DRYRUN_TRADES_DISABLED"
	ReasonTradeBuilderBlocked    ReasonCode = "TRADE_BUILDER_BLOCKED"
	ReasonNoRebalance            ReasonCode = "NO_REBALANCE"
)

// Reason is one blocking reason on a Decision
type Reason struct {
	Code   ReasonCode `json:"code"`
	Detail string     `json:"detail"`
}

// RiskCheck is the outcome of one named check for a run
// (run_id, name) 기준 upsert
type RiskCheck struct {
	RunID  string      `json:"run_id"`
	Name   CheckName   `json:"name"`
	Passed bool        `json:"passed"`
	Detail CheckDetail `json:"detail"`
}

// DecisionType is TRADE or NO_TRADE
type DecisionType string

const (
	DecisionTrade   DecisionType = "TRADE"
	DecisionNoTrade DecisionType = "NO_TRADE"
)

// Decision is the single run-level outcome
// ⭐ 불변식: Approved ⇔ 모든 체크 통과 ∧ Reasons 비어있음
type Decision struct {
	RunID        string       `json:"run_id"`
	AsOfDate     *time.Time   `json:"asof_date,omitempty"`
	Approved     bool         `json:"approved"`
	DecisionType DecisionType `json:"decision_type"`
	Reasons      []Reason     `json:"reasons"`
	DecidedAt    time.Time    `json:"decided_at"`
}

// ReasonCodes returns the sorted, de-duplicated reason codes
func (d *Decision) ReasonCodes() []string {
	seen := make(map[string]struct{}, len(d.Reasons))
	codes := make([]string, 0, len(d.Reasons))
	for _, r := range d.Reasons {
		c := string(r.Code)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
