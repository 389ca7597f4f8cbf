package execution

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/internal/policy"
)

// Rationale is attached to every intent produced by Size
const Rationale = "Deterministic rebalance vs target weights."

// SizingConfig defines trade sizing parameters
type SizingConfig struct {
	Enabled             bool            // false 면 DRYRUN_TRADES_DISABLED
	MinNotionalBase     decimal.Decimal // 최소 주문 금액 (절대값)
	MinNotionalPct      decimal.Decimal // 최소 주문 금액 (포트폴리오 대비 비율)
	OrderType           string          // MKT or LMT
	MaxSlippageBps      int
	AllowFractionalBuys bool // 1주 미만 매수 후보 허용 여부
	BaseCurrency        string
	ReconcileMaxAgeDays int // 대사 스냅샷 사용 가능 기간 (asof 기준, 일)
}

// DefaultSizingConfig returns default configuration (sizing disabled)
func DefaultSizingConfig() SizingConfig {
	return SizingConfigFromPolicy(policy.Default(), false)
}

// SizingConfigFromPolicy maps the policy sizing section
func SizingConfigFromPolicy(p *policy.Policy, enabled bool) SizingConfig {
	return SizingConfig{
		Enabled:             enabled,
		MinNotionalBase:     decimal.NewFromFloat(p.Sizing.MinNotionalBase),
		MinNotionalPct:      decimal.NewFromFloat(p.Sizing.MinNotionalPct),
		OrderType:           p.Sizing.DefaultOrderType,
		MaxSlippageBps:      p.Sizing.MaxSlippageBps,
		AllowFractionalBuys: p.Sizing.AllowFractionalBuys,
		BaseCurrency:        p.Meta.BaseCurrency,
		ReconcileMaxAgeDays: p.Reconcile.MaxAgeDays,
	}
}

// SizingInput is everything Size needs; Prices must cover every symbol
type SizingInput struct {
	RunID     string
	Targets   []contracts.PortfolioTarget
	Positions contracts.PositionSnapshot
	Prices    map[string]decimal.Decimal
}

// SizingPlan is the pure output of Size
type SizingPlan struct {
	Trades               []contracts.IntendedTrade
	PortfolioValue       decimal.Decimal
	EffectiveMinNotional decimal.Decimal
	CashStart            decimal.Decimal
	CashAfterSells       decimal.Decimal
	CashRemaining        decimal.Decimal
}

// EffectiveMinNotional returns min(abs, pv × pct) when both pv and pct are positive, else abs
func EffectiveMinNotional(abs, pct, portfolioValue decimal.Decimal) decimal.Decimal {
	if portfolioValue.IsPositive() && pct.IsPositive() {
		return decimal.Min(abs, portfolioValue.Mul(pct))
	}
	return abs
}

// Symbols returns the sorted union of target symbols and non-zero holdings
func Symbols(targets []contracts.PortfolioTarget, holdings map[string]decimal.Decimal) []string {
	set := make(map[string]struct{}, len(targets)+len(holdings))
	for _, t := range targets {
		set[t.Symbol] = struct{}{}
	}
	for sym, units := range holdings {
		if !units.IsZero() {
			set[sym] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Size diffs targets against current holdings and returns SELL intents then BUY intents.
// ⭐ SSOT: 주문 수량/금액 산출 알고리즘은 여기서만
//
// 매도 먼저 (현금 확보) → 매수. 각 패스는 심볼 오름차순.
func Size(cfg SizingConfig, in SizingInput) SizingPlan {
	symbols := Symbols(in.Targets, in.Positions.Holdings)

	// 1. 포트폴리오 가치
	portfolioValue := in.Positions.Cash
	for sym, units := range in.Positions.Holdings {
		if px, ok := in.Prices[sym]; ok {
			portfolioValue = portfolioValue.Add(units.Mul(px))
		}
	}
	effectiveMin := EffectiveMinNotional(cfg.MinNotionalBase, cfg.MinNotionalPct, portfolioValue)

	// 2. 현재 가치 / 목표 가치
	current := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		current[sym] = in.Positions.Holdings[sym].Mul(in.Prices[sym])
	}
	target := make(map[string]decimal.Decimal, len(in.Targets))
	for _, t := range in.Targets {
		if t.TargetValue != nil {
			target[t.Symbol] = *t.TargetValue
			continue
		}
		target[t.Symbol] = decimal.NewFromFloat(t.TargetWeight).Mul(portfolioValue)
	}

	plan := SizingPlan{
		PortfolioValue:       portfolioValue,
		EffectiveMinNotional: effectiveMin,
		CashStart:            in.Positions.Cash,
	}

	// 3. SELL pass
	sells := make([]contracts.IntendedTrade, 0)
	cash := in.Positions.Cash
	for _, sym := range symbols {
		px := in.Prices[sym]
		delta := target[sym].Sub(current[sym])
		if !delta.IsNegative() || !px.IsPositive() {
			continue
		}

		sellable := decimal.Max(decimal.Zero, in.Positions.Holdings[sym]).Floor()
		units := decimal.Min(sellable, wholeUnits(delta.Abs(), px))
		notional := units.Mul(px)
		if !units.IsPositive() || notional.LessThan(effectiveMin) {
			continue
		}

		sells = append(sells, newIntent(cfg, in.RunID, sym, contracts.SideSell, &units, notional, px))
		cash = cash.Add(notional)
	}
	plan.CashAfterSells = cash

	// 4. BUY pass
	buys := make([]contracts.IntendedTrade, 0)
	for _, sym := range symbols {
		px := in.Prices[sym]
		delta := target[sym].Sub(current[sym])
		if !delta.IsPositive() || !px.IsPositive() {
			continue
		}

		spend := decimal.Max(decimal.Zero, decimal.Min(delta, cash))
		units := wholeUnits(spend, px)

		var unitsPtr *decimal.Decimal
		var notional decimal.Decimal
		if units.IsPositive() {
			unitsPtr = &units
			notional = units.Mul(px)
		} else {
			// 1주 미만: 정책이 허용할 때만 원금액으로 보고
			if !cfg.AllowFractionalBuys {
				continue
			}
			notional = spend
		}
		if !notional.IsPositive() || notional.LessThan(effectiveMin) {
			continue
		}

		buys = append(buys, newIntent(cfg, in.RunID, sym, contracts.SideBuy, unitsPtr, notional, px))
		cash = cash.Sub(notional)
	}
	plan.CashRemaining = cash

	// 5. 시퀀스 부여 (SELL → BUY, 1부터 연속)
	plan.Trades = append(sells, buys...)
	for i := range plan.Trades {
		plan.Trades[i].Sequence = i + 1
	}
	return plan
}

// wholeUnits returns floor(amount/px) computed exactly.
// Div rounds to DivisionPrecision first, which can push a quotient just below N up to N.
func wholeUnits(amount, px decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() || !px.IsPositive() {
		return decimal.Zero
	}
	q, _ := amount.QuoRem(px, 0)
	return q
}

func newIntent(cfg SizingConfig, runID, symbol string, side contracts.Side, units *decimal.Decimal, notional, px decimal.Decimal) contracts.IntendedTrade {
	return contracts.IntendedTrade{
		RunID:          runID,
		Symbol:         symbol,
		Side:           side,
		Units:          units,
		NotionalBase:   notional,
		OrderType:      cfg.OrderType,
		ReferencePrice: px,
		MaxSlippageBps: cfg.MaxSlippageBps,
		Rationale:      Rationale,
	}
}
