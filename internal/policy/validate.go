package policy

import "fmt"

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks every policy bound; the first violation is returned
func Validate(p *Policy) error {
	// === Meta ===
	if p.Meta.PolicyID == "" {
		return ValidationError{"meta.policy_id", "required"}
	}
	if p.Meta.BaseCurrency != "GBP" {
		return ValidationError{"meta.base_currency", "must be GBP"}
	}

	// === Portfolio ===
	if p.Portfolio.MaxPositions < 1 || p.Portfolio.MaxPositions > 50 {
		return ValidationError{"portfolio.max_positions", "must be in [1, 50]"}
	}
	if p.Portfolio.MaxPositionWeight < 0 || p.Portfolio.MaxPositionWeight > 0.10 {
		return ValidationError{"portfolio.max_position_weight", "must be in [0, 0.10]"}
	}
	if p.Portfolio.MinCashBuffer < 0 || p.Portfolio.MinCashBuffer > 0.10 {
		return ValidationError{"portfolio.min_cash_buffer", "must be in [0, 0.10]"}
	}
	if p.Portfolio.MaxTurnover < 0 || p.Portfolio.MaxTurnover > 0.5 {
		return ValidationError{"portfolio.max_turnover", "must be in [0, 0.5]"}
	}

	// === Sizing ===
	if p.Sizing.MinNotionalBase < 0 {
		return ValidationError{"sizing.min_notional_base", "must be >= 0"}
	}
	if p.Sizing.MinNotionalPct < 0 || p.Sizing.MinNotionalPct > 1 {
		return ValidationError{"sizing.min_notional_pct", "must be in [0, 1]"}
	}
	switch p.Sizing.DefaultOrderType {
	case "MKT", "LMT":
	default:
		return ValidationError{"sizing.default_order_type", "must be MKT or LMT"}
	}
	if p.Sizing.MaxSlippageBps < 0 || p.Sizing.MaxSlippageBps > 1000 {
		return ValidationError{"sizing.max_slippage_bps", "must be in [0, 1000]"}
	}

	// === Reconcile ===
	if !p.Reconcile.Required {
		return ValidationError{"reconcile.required", "must be true"}
	}
	if p.Reconcile.MaxAgeDays < 0 || p.Reconcile.MaxAgeDays > 7 {
		return ValidationError{"reconcile.max_age_days", "must be in [0, 7]"}
	}

	return nil
}
