package riskgate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/tradeops/backend/internal/confirmation"
	"github.com/wonny/tradeops/backend/internal/contracts"
)

// ============================================================================
// Individual checks. Missing facts fail the check; only fact-provider errors return err.
// ============================================================================

func (e *Evaluator) checkDataQuality(ctx context.Context, runID string) (CheckOutcome, error) {
	fact, err := e.facts.DataQuality(ctx, runID)
	if err != nil {
		return CheckOutcome{}, fmt.Errorf("failed to load data quality: %w", err)
	}

	passed := fact.Found && fact.Passed
	out := CheckOutcome{Check: contracts.RiskCheck{
		RunID:  runID,
		Name:   contracts.CheckDataQuality,
		Passed: passed,
		Detail: contracts.NewDataQualityDetail(contracts.DataQualityDetail{
			Found:    fact.Found,
			Passed:   fact.Passed,
			AsOfDate: contracts.FormatDate(fact.AsOfDate),
		}),
	}}
	if !passed {
		out.Reason = reasonFor(contracts.CheckDataQuality)
	}
	return out, nil
}

func (e *Evaluator) checkReconciliation(ctx context.Context, runID string, asof *time.Time) (CheckOutcome, error) {
	detail := contracts.ReconciliationDetail{
		Required:     e.config.ReconcileRequired,
		MaxAgeDays:   e.config.ReconcileMaxAgeDays,
		ExpectedAsOf: contracts.FormatDate(asof),
	}
	passed := true

	switch {
	case !e.config.ReconcileRequired:
		detail.Status = contracts.ReconciliationNotRequired

	case asof == nil:
		passed = false
		detail.Status = contracts.ReconciliationMissingAsOf

	default:
		fact, err := e.facts.Reconciliation(ctx, *asof, e.config.ReconcileMaxAgeDays)
		if err != nil {
			return CheckOutcome{}, fmt.Errorf("failed to load reconciliation: %w", err)
		}

		detail.Status = contracts.ReconciliationStaleOrMissing
		if lp := fact.LatestPass; lp != nil {
			detail.LatestPassSnapshotDate = contracts.FormatDate(&lp.SnapshotDate)
			evaluated := lp.EvaluatedAt
			detail.LatestPassEvaluatedAt = &evaluated
		}

		if fact.InWindow == nil {
			passed = false
			break
		}

		rec := fact.InWindow
		detail.Status = contracts.ReconciliationPresent
		detail.SnapshotDate = contracts.FormatDate(&rec.SnapshotDate)
		evaluated := rec.EvaluatedAt
		detail.EvaluatedAt = &evaluated
		detail.ReportPath = rec.ReportPath
		// max_age 0: 스냅샷이 기준일과 같은 날이어야 함
		passed = e.config.ReconcileMaxAgeDays > 0 || contracts.SameDate(rec.SnapshotDate, *asof)
	}

	out := CheckOutcome{Check: contracts.RiskCheck{
		RunID:  runID,
		Name:   contracts.CheckReconciliation,
		Passed: passed,
		Detail: contracts.NewReconciliationDetail(detail),
	}}
	if !passed {
		out.Reason = reasonFor(contracts.CheckReconciliation)
	}
	return out, nil
}

func (e *Evaluator) checkConfirmations(ctx context.Context, runID string) (CheckOutcome, error) {
	// 현재 run 은 제외 (재실행 시 자기 티켓 참조 방지)
	c, err := confirmation.CheckCompleteness(ctx, e.store, runID)
	if err != nil {
		return CheckOutcome{}, err
	}

	passed := c.Complete()
	out := CheckOutcome{Check: contracts.RiskCheck{
		RunID:  runID,
		Name:   contracts.CheckConfirmations,
		Passed: passed,
		Detail: contracts.NewConfirmationsDetail(contracts.ConfirmationsDetail{
			LatestTradeTicketID: c.TicketID,
			IntendedCount:       c.Intended,
			FillsCount:          c.Fills,
		}),
	}}
	if !passed {
		out.Reason = reasonFor(contracts.CheckConfirmations)
	}
	return out, nil
}

func (e *Evaluator) checkUniverse(ctx context.Context, runID string) (CheckOutcome, error) {
	members, err := e.facts.Universe(ctx)
	if err != nil {
		return CheckOutcome{}, fmt.Errorf("failed to load universe: %w", err)
	}

	detail := contracts.UniverseDetail{}
	for _, m := range members {
		if !m.Enabled {
			continue
		}
		detail.EnabledCount++
		if !strings.Contains(m.Notes, e.config.VerifiedMarker) {
			detail.UnverifiedEnabledCount++
			detail.Unverified = append(detail.Unverified, m.Symbol)
		}
	}

	passed := detail.UnverifiedEnabledCount == 0
	out := CheckOutcome{Check: contracts.RiskCheck{
		RunID:  runID,
		Name:   contracts.CheckUniverseVerified,
		Passed: passed,
		Detail: contracts.NewUniverseDetail(detail),
	}}
	if !passed {
		out.Reason = reasonFor(contracts.CheckUniverseVerified)
	}
	return out, nil
}

func (e *Evaluator) checkLedger(ctx context.Context, runID string) (CheckOutcome, error) {
	activity, err := e.facts.LedgerActivity(ctx)
	if err != nil {
		return CheckOutcome{}, fmt.Errorf("failed to load ledger activity: %w", err)
	}

	passed := activity.CashMovements+activity.Fills > 0
	out := CheckOutcome{Check: contracts.RiskCheck{
		RunID:  runID,
		Name:   contracts.CheckLedgerReady,
		Passed: passed,
		Detail: contracts.NewLedgerDetail(contracts.LedgerDetail{
			CashMovements: activity.CashMovements,
			Fills:         activity.Fills,
		}),
	}}
	if !passed {
		out.Reason = reasonFor(contracts.CheckLedgerReady)
	}
	return out, nil
}

// checkTradeBuilder runs sizing; an OK run with zero intents returns the NO_REBALANCE extra reason
func (e *Evaluator) checkTradeBuilder(ctx context.Context, runID string, asof *time.Time) (CheckOutcome, *contracts.Reason, int, error) {
	res, err := e.sizer.Build(ctx, runID, asof)
	if err != nil {
		return CheckOutcome{}, nil, 0, fmt.Errorf("trade builder failed: %w", err)
	}

	out := CheckOutcome{Check: contracts.RiskCheck{
		RunID:  runID,
		Name:   contracts.CheckTradeBuilder,
		Passed: res.OK(),
		Detail: contracts.NewTradeBuilderDetail(res.Detail()),
	}}

	switch {
	case res.Outcome == contracts.SizingDisabled:
		out.Reason = &contracts.Reason{
			Code:   contracts.ReasonTradesDisabled,
			Detail: "Trade-builder is disabled by default. Set TRADES_ENABLED=true to generate intended trades in dry-run mode.",
		}
	case !res.OK():
		out.Reason = &contracts.Reason{
			Code:   contracts.ReasonTradeBuilderBlocked,
			Detail: fmt.Sprintf("Trade-builder did not run cleanly: %s", res.Outcome),
		}
	case len(res.Trades) == 0:
		return out, &contracts.Reason{
			Code:   contracts.ReasonNoRebalance,
			Detail: "Trade-builder produced 0 intended trades (already at target or below min notional).",
		}, 0, nil
	}

	return out, nil, len(res.Trades), nil
}

func reasonFor(name contracts.CheckName) *contracts.Reason {
	r := defaultReasons[name]
	return &r
}
