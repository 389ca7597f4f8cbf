package riskgate

import (
	"time"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// CheckOutcome is one evaluated check plus the blocking reason it raised
type CheckOutcome struct {
	Check  contracts.RiskCheck
	Reason *contracts.Reason
}

// defaultReasons is used when a failed check carries no explicit reason
var defaultReasons = map[contracts.CheckName]contracts.Reason{
	contracts.CheckDataQuality:      {Code: contracts.ReasonDataQualityFail, Detail: "Data quality gate missing or failed for run."},
	contracts.CheckReconciliation:   {Code: contracts.ReasonReconciliationRequired, Detail: "Reconciliation required by policy but no passing reconciliation result exists for the run asof_date (or within allowed staleness window)."},
	contracts.CheckConfirmations:    {Code: contracts.ReasonConfirmationMissing, Detail: "Previous TRADE ticket has missing fills."},
	contracts.CheckUniverseVerified: {Code: contracts.ReasonUniverseNotVerified, Detail: "Enabled symbols must be eToro-verified before trading."},
	contracts.CheckLedgerReady:      {Code: contracts.ReasonLedgerEmpty, Detail: "Ledger has no starting cash movements or fills; cannot size trades safely."},
	contracts.CheckTradeBuilder:     {Code: contracts.ReasonTradeBuilderBlocked, Detail: "Trade-builder did not run cleanly."},
}

// Decide folds check outcomes and extra (non-check) reasons into a Decision.
// ⭐ 불변식: Approved ⇔ 모든 체크 통과 ∧ 사유 없음; 실패한 체크마다 사유 정확히 1개
func Decide(runID string, asof *time.Time, outcomes []CheckOutcome, extra []contracts.Reason, now time.Time) contracts.Decision {
	reasons := make([]contracts.Reason, 0, len(outcomes)+len(extra))
	allPassed := true

	for _, o := range outcomes {
		if o.Check.Passed {
			continue
		}
		allPassed = false

		switch {
		case o.Reason != nil:
			reasons = append(reasons, *o.Reason)
		default:
			r, ok := defaultReasons[o.Check.Name]
			if !ok {
				r = contracts.Reason{Code: contracts.ReasonCode(string(o.Check.Name) + "_FAILED"), Detail: "Check failed."}
			}
			reasons = append(reasons, r)
		}
	}
	reasons = append(reasons, extra...)

	approved := allPassed && len(reasons) == 0
	decisionType := contracts.DecisionNoTrade
	if approved {
		decisionType = contracts.DecisionTrade
	}

	return contracts.Decision{
		RunID:        runID,
		AsOfDate:     asof,
		Approved:     approved,
		DecisionType: decisionType,
		Reasons:      reasons,
		DecidedAt:    now,
	}
}
