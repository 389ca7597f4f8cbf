package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is one ranked instrument produced upstream
// ⭐ SSOT: 시그널 → 배분기 입력
type Signal struct {
	Symbol string  `json:"internal_symbol"`
	Score  float64 `json:"score"`
	Rank   *int    `json:"rank,omitempty"` // nil 은 마지막 순위
}

// PortfolioTarget is one target row of a run (replace-all per run)
// ⭐ 계약: Allocator 는 비중만 산출, Sizing 엔진이 금액/수량 계산
type PortfolioTarget struct {
	RunID        string           `json:"run_id"`
	Symbol       string           `json:"internal_symbol"`
	TargetWeight float64          `json:"target_weight"`
	TargetValue  *decimal.Decimal `json:"target_value_base,omitempty"` // 명시 금액 (있으면 비중보다 우선)
	AsOfDate     time.Time        `json:"asof_date"`
	BaseCurrency string           `json:"base_currency"`
}

// TotalWeight returns the sum of target weights
func TotalWeight(targets []PortfolioTarget) float64 {
	total := 0.0
	for _, t := range targets {
		total += t.TargetWeight
	}
	return total
}
