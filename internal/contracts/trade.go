package contracts

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Side represents buy or sell
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a side string (case-insensitive)
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

// SortRank orders SELL before BUY
func (s Side) SortRank() int {
	switch s {
	case SideSell:
		return 0
	case SideBuy:
		return 1
	}
	return 9
}

// SizingOutcome is the result code of the trade sizing engine
type SizingOutcome string

const (
	SizingOK                  SizingOutcome = "OK"
	SizingDisabled            SizingOutcome = "DRYRUN_TRADES_DISABLED"
	SizingTargetsMissing      SizingOutcome = "TARGETS_MISSING"
	SizingTargetsAsOfMismatch SizingOutcome = "TARGETS_ASOF_MISMATCH"
	SizingNoSymbols           SizingOutcome = "NO_SYMBOLS"
	SizingPricesMissing       SizingOutcome = "PRICES_MISSING"
)

// IntendedTrade is one proposed order of a run
// ⭐ 불변식: SELL 시퀀스 < BUY 시퀀스, 시퀀스는 1부터 연속
type IntendedTrade struct {
	RunID          string           `json:"run_id"`
	Sequence       int              `json:"sequence"`
	Symbol         string           `json:"internal_symbol"`
	Side           Side             `json:"side"`
	Units          *decimal.Decimal `json:"units,omitempty"`
	NotionalBase   decimal.Decimal  `json:"notional_value_base"`
	OrderType      string           `json:"order_type"`
	LimitPrice     *decimal.Decimal `json:"limit_price"`
	ReferencePrice decimal.Decimal  `json:"reference_price"`
	MaxSlippageBps int              `json:"max_slippage_bps"`
	Rationale      string           `json:"rationale"`
	TicketID       string           `json:"ticket_id,omitempty"`
}
