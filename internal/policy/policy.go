package policy

// Policy is the operator-owned trading policy (config/policy.yaml)
// ⭐ SSOT: 배분/사이징/대사 정책 값은 이 구조체에서만
type Policy struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Portfolio Portfolio `yaml:"portfolio" json:"portfolio"`
	Sizing    Sizing    `yaml:"sizing" json:"sizing"`
	Reconcile Reconcile `yaml:"reconcile" json:"reconcile"`
}

// Meta 메타 정보
type Meta struct {
	PolicyID     string `yaml:"policy_id" json:"policy_id"`
	Version      string `yaml:"version" json:"version"`
	BaseCurrency string `yaml:"base_currency" json:"base_currency"`
}

// Portfolio 배분 한도
type Portfolio struct {
	MaxPositions      int     `yaml:"max_positions" json:"max_positions"`
	MaxPositionWeight float64 `yaml:"max_position_weight" json:"max_position_weight"`
	MinCashBuffer     float64 `yaml:"min_cash_buffer" json:"min_cash_buffer"`
	MaxTurnover       float64 `yaml:"max_turnover" json:"max_turnover"`
}

// Sizing 주문 사이징
type Sizing struct {
	MinNotionalBase     float64 `yaml:"min_notional_base" json:"min_notional_base"`
	MinNotionalPct      float64 `yaml:"min_notional_pct" json:"min_notional_pct"`
	DefaultOrderType    string  `yaml:"default_order_type" json:"default_order_type"`
	MaxSlippageBps      int     `yaml:"max_slippage_bps" json:"max_slippage_bps"`
	AllowFractionalBuys bool    `yaml:"allow_fractional_buys" json:"allow_fractional_buys"`
}

// Reconcile 대사 요구사항
type Reconcile struct {
	Required   bool `yaml:"required" json:"required"`
	MaxAgeDays int  `yaml:"max_age_days" json:"max_age_days"`
}

// Default returns the built-in policy used when no file is configured
func Default() *Policy {
	return &Policy{
		Meta: Meta{
			PolicyID:     "default",
			Version:      "1",
			BaseCurrency: "GBP",
		},
		Portfolio: Portfolio{
			MaxPositions:      15,
			MaxPositionWeight: 0.075,
			MinCashBuffer:     0.03,
			MaxTurnover:       0.5,
		},
		Sizing: Sizing{
			MinNotionalBase:  25.0,
			MinNotionalPct:   0.01,
			DefaultOrderType: "MKT",
			MaxSlippageBps:   50,
		},
		Reconcile: Reconcile{
			Required:   true,
			MaxAgeDays: 0,
		},
	}
}
