package execution

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// IntendedArtifact is the per-run file name of the sizing diagnostic
const IntendedArtifact = "trades_intended.json"

// ArtifactWriter persists per-run JSON diagnostics
type ArtifactWriter interface {
	WriteRunJSON(runID, name string, v any) (string, error)
}

// SizingResult is the outcome of one TradeBuilder.Build
type SizingResult struct {
	Outcome              contracts.SizingOutcome
	Trades               []contracts.IntendedTrade
	PositionSource       contracts.PositionSource
	MissingPrices        []string
	PortfolioValue       decimal.Decimal
	EffectiveMinNotional decimal.Decimal
	ArtifactPath         string
	Enabled              bool
}

// OK reports whether sizing ran cleanly (zero intents is still OK)
func (r *SizingResult) OK() bool {
	return r.Outcome == contracts.SizingOK
}

// Detail converts the result into the trade_builder check payload
func (r *SizingResult) Detail() contracts.TradeBuilderDetail {
	return contracts.TradeBuilderDetail{
		Enabled:        r.Enabled,
		Outcome:        r.Outcome,
		IntendedCount:  len(r.Trades),
		PositionSource: r.PositionSource,
		MissingPrices:  r.MissingPrices,
		ArtifactPath:   r.ArtifactPath,
	}
}

// TradeBuilder loads sizing inputs, runs Size and persists intents
type TradeBuilder struct {
	config    SizingConfig
	facts     contracts.Facts
	targets   contracts.TargetRepository
	trades    contracts.TradeRepository
	artifacts ArtifactWriter
	logger    *logger.Logger
	now       func() time.Time
}

// NewTradeBuilder creates a new trade builder
func NewTradeBuilder(
	config SizingConfig,
	facts contracts.Facts,
	targets contracts.TargetRepository,
	trades contracts.TradeRepository,
	artifacts ArtifactWriter,
	log *logger.Logger,
) *TradeBuilder {
	return &TradeBuilder{
		config:    config,
		facts:     facts,
		targets:   targets,
		trades:    trades,
		artifacts: artifacts,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Build sizes the run. Preconditions that fail yield a non-OK result, never an error;
// errors are infrastructure failures only.
func (b *TradeBuilder) Build(ctx context.Context, runID string, asof *time.Time) (*SizingResult, error) {
	doc := newIntendedDocument(runID, asof, b.config, b.now())
	result := &SizingResult{
		Outcome:              contracts.SizingOK,
		Trades:               []contracts.IntendedTrade{},
		Enabled:              b.config.Enabled,
		EffectiveMinNotional: b.config.MinNotionalBase,
	}

	if err := b.build(ctx, runID, asof, result, doc); err != nil {
		return nil, err
	}

	// 결과와 무관하게 인텐트는 run 단위 교체 (non-OK 이면 비움)
	if err := b.trades.ReplaceIntendedTrades(ctx, runID, result.Trades); err != nil {
		return nil, fmt.Errorf("failed to replace intended trades: %w", err)
	}

	doc.finish(result)
	path, err := b.artifacts.WriteRunJSON(runID, IntendedArtifact, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", IntendedArtifact, err)
	}
	result.ArtifactPath = path

	b.logger.WithFields(map[string]interface{}{
		"run_id":          runID,
		"outcome":         result.Outcome,
		"intended_trades": len(result.Trades),
		"position_source": result.PositionSource,
		"portfolio_value": result.PortfolioValue.String(),
	}).Info("Trade sizing finished")

	return result, nil
}

func (b *TradeBuilder) build(ctx context.Context, runID string, asof *time.Time, result *SizingResult, doc *intendedDocument) error {
	// 1. 활성화 여부
	if !b.config.Enabled {
		result.Outcome = contracts.SizingDisabled
		return nil
	}

	// 2. 목표 비중
	targets, err := b.targets.ListTargets(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}
	if len(targets) == 0 {
		result.Outcome = contracts.SizingTargetsMissing
		return nil
	}
	doc.Prerequisites.TargetsPresent = true

	if asof == nil {
		result.Outcome = contracts.SizingTargetsAsOfMismatch
		return nil
	}
	for _, t := range targets {
		if !contracts.SameDate(t.AsOfDate, *asof) {
			result.Outcome = contracts.SizingTargetsAsOfMismatch
			return nil
		}
	}

	// 3. 현재 보유 (대사 스냅샷 우선, 없으면 원장)
	positions, err := b.currentPositions(ctx, *asof)
	if err != nil {
		return err
	}
	result.PositionSource = positions.Source
	doc.PositionSource = positions.Source
	doc.CashBase = positions.Cash.String()
	doc.Prerequisites.ReconciliationPassed = positions.Source == contracts.PositionSourceReconciliation

	symbols := Symbols(targets, positions.Holdings)
	if len(symbols) == 0 {
		result.Outcome = contracts.SizingNoSymbols
		return nil
	}

	// 4. 종가
	prices, err := b.facts.ClosePrices(ctx, *asof, symbols)
	if err != nil {
		return fmt.Errorf("failed to load close prices: %w", err)
	}
	missing := make([]string, 0)
	for _, sym := range symbols {
		if px, ok := prices[sym]; !ok || !px.IsPositive() {
			missing = append(missing, sym)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		result.Outcome = contracts.SizingPricesMissing
		result.MissingPrices = missing
		doc.Prerequisites.MissingPrices = missing
		return nil
	}
	doc.Prerequisites.PricesPresent = true

	// 5. 사이징
	plan := Size(b.config, SizingInput{
		RunID:     runID,
		Targets:   targets,
		Positions: positions,
		Prices:    prices,
	})
	result.Trades = plan.Trades
	result.PortfolioValue = plan.PortfolioValue
	result.EffectiveMinNotional = plan.EffectiveMinNotional
	doc.PortfolioValueBase = plan.PortfolioValue.String()
	return nil
}

// currentPositions prefers a passing reconciliation snapshot dated within
// [asof - ReconcileMaxAgeDays, asof]; anything older falls back to the ledger.
func (b *TradeBuilder) currentPositions(ctx context.Context, asof time.Time) (contracts.PositionSnapshot, error) {
	snap, err := b.facts.ReconciledPositions(ctx)
	if err != nil {
		return contracts.PositionSnapshot{}, fmt.Errorf("failed to load reconciled positions: %w", err)
	}
	if snap != nil {
		if recentSnapshot(snap.SnapshotDate, asof, b.config.ReconcileMaxAgeDays) {
			snap.Source = contracts.PositionSourceReconciliation
			return *snap, nil
		}
		b.logger.WithFields(map[string]interface{}{
			"snapshot_date": contracts.FormatDate(snap.SnapshotDate),
			"asof":          contracts.FormatDate(&asof),
			"max_age_days":  b.config.ReconcileMaxAgeDays,
		}).Warn("Reconciled snapshot is stale, using ledger positions")
	}

	ledger, err := b.facts.LedgerPositions(ctx)
	if err != nil {
		return contracts.PositionSnapshot{}, fmt.Errorf("failed to load ledger positions: %w", err)
	}
	ledger.Source = contracts.PositionSourceLedger
	return ledger, nil
}

func recentSnapshot(snapshotDate *time.Time, asof time.Time, maxAgeDays int) bool {
	if snapshotDate == nil {
		return false
	}
	day := contracts.DateOnly(*snapshotDate)
	end := contracts.DateOnly(asof)
	start := end.AddDate(0, 0, -maxAgeDays)
	return !day.Before(start) && !day.After(end)
}

// ============================================================================
// trades_intended.json
// ============================================================================

type intendedDocument struct {
	SchemaVersion      string                    `json:"schema_version"`
	RunID              string                    `json:"run_id"`
	AsOfDateUsed       string                    `json:"asof_date_used,omitempty"`
	BaseCurrency       string                    `json:"base_currency"`
	Policy             intendedPolicy            `json:"policy"`
	Prerequisites      intendedPrerequisites     `json:"prerequisites"`
	Result             intendedResult            `json:"result"`
	PositionSource     contracts.PositionSource  `json:"position_source,omitempty"`
	CashBase           string                    `json:"cash_base,omitempty"`
	PortfolioValueBase string                    `json:"portfolio_value_base,omitempty"`
	IntendedTrades     []contracts.IntendedTrade `json:"intended_trades"`
	GeneratedAt        time.Time                 `json:"generated_at_utc"`
}

type intendedPolicy struct {
	MinNotionalBase       string `json:"min_notional_base"`
	MinNotionalPct        string `json:"min_notional_pct"`
	DefaultOrderType      string `json:"default_order_type"`
	DefaultMaxSlippageBps int    `json:"default_max_slippage_bps"`
	AllowFractionalBuys   bool   `json:"allow_fractional_buys"`
}

type intendedPrerequisites struct {
	ReconciliationPassed bool     `json:"reconciliation_passed"`
	TargetsPresent       bool     `json:"targets_present"`
	PricesPresent        bool     `json:"prices_present"`
	MissingPrices        []string `json:"missing_prices"`
}

type intendedResult struct {
	TradeBuilderOK bool   `json:"trade_builder_ok"`
	Reason         string `json:"reason"`
}

func newIntendedDocument(runID string, asof *time.Time, cfg SizingConfig, now time.Time) *intendedDocument {
	return &intendedDocument{
		SchemaVersion: "v1",
		RunID:         runID,
		AsOfDateUsed:  contracts.FormatDate(asof),
		BaseCurrency:  cfg.BaseCurrency,
		Policy: intendedPolicy{
			MinNotionalBase:       cfg.MinNotionalBase.String(),
			MinNotionalPct:        cfg.MinNotionalPct.String(),
			DefaultOrderType:      cfg.OrderType,
			DefaultMaxSlippageBps: cfg.MaxSlippageBps,
			AllowFractionalBuys:   cfg.AllowFractionalBuys,
		},
		Prerequisites:  intendedPrerequisites{MissingPrices: []string{}},
		IntendedTrades: []contracts.IntendedTrade{},
		GeneratedAt:    now,
	}
}

func (d *intendedDocument) finish(r *SizingResult) {
	d.Policy.MinNotionalBase = r.EffectiveMinNotional.String()
	d.IntendedTrades = r.Trades
	d.Result = intendedResult{TradeBuilderOK: r.OK(), Reason: string(r.Outcome)}
	if r.OK() && len(r.Trades) == 0 {
		d.Result.Reason = string(contracts.ReasonNoRebalance)
	}
}
