package ticket

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// MaterialSchema identifies the field set of Material
const MaterialSchema = "economic_v1"

// Fixed precision of material decimal strings
const (
	unitsPlaces = 6
	moneyPlaces = 2
	pricePlaces = 4
)

// Material is the economically meaningful content of a ticket.
// ⭐ SSOT: 해시 대상 필드는 여기서만 정의 (생성시각/노트 제외)
type Material struct {
	Schema              string           `json:"schema"`
	DecisionType        string           `json:"decision_type"`
	AsOfDate            string           `json:"asof_date"`
	BaseCurrency        string           `json:"base_currency"`
	Universe            MaterialUniverse `json:"universe"`
	RiskChecks          []MaterialCheck  `json:"risk_checks"`
	BlockingReasonCodes []string         `json:"blocking_reason_codes"`
	IntendedTrades      []MaterialTrade  `json:"intended_trades"`
	ConfirmedFills      []MaterialFill   `json:"confirmed_fills"`
}

type MaterialUniverse struct {
	EnabledSymbols   []string `json:"enabled_symbols"`
	BenchmarkSymbols []string `json:"benchmark_symbols"`
}

type MaterialCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

type MaterialTrade struct {
	Symbol         string  `json:"internal_symbol"`
	Side           string  `json:"side"`
	OrderType      *string `json:"order_type"`
	Units          *string `json:"units"`
	NotionalBase   *string `json:"notional_value_base"`
	LimitPrice     *string `json:"limit_price"`
	ReferencePrice *string `json:"reference_price"`
	MaxSlippageBps *int    `json:"max_slippage_bps"`
}

type MaterialFill struct {
	Symbol            string  `json:"internal_symbol"`
	Side              string  `json:"side"`
	ExecutedStatus    string  `json:"executed_status"`
	Units             *string `json:"units"`
	FillPrice         *string `json:"fill_price"`
	ExecutedValueBase *string `json:"executed_value_base"`
}

// MaterialInput is everything the material is derived from
type MaterialInput struct {
	DecisionType   contracts.DecisionType
	AsOfDate       string
	BaseCurrency   string
	Universe       []contracts.UniverseMember
	Checks         []contracts.RiskCheck
	Reasons        []contracts.Reason
	IntendedTrades []contracts.IntendedTrade
	Fills          []contracts.ConfirmedFill
}

// BuildMaterial canonicalizes in into sorted, fixed-precision form
func BuildMaterial(in MaterialInput) Material {
	base := in.BaseCurrency
	if base == "" {
		base = "GBP"
	}

	m := Material{
		Schema:              MaterialSchema,
		DecisionType:        string(in.DecisionType),
		AsOfDate:            in.AsOfDate,
		BaseCurrency:        base,
		Universe:            materialUniverse(in.Universe),
		RiskChecks:          materialChecks(in.Checks),
		BlockingReasonCodes: reasonCodes(in.Reasons),
		IntendedTrades:      make([]MaterialTrade, 0, len(in.IntendedTrades)),
		ConfirmedFills:      make([]MaterialFill, 0, len(in.Fills)),
	}

	for _, t := range in.IntendedTrades {
		sym := strings.TrimSpace(t.Symbol)
		side := strings.ToUpper(strings.TrimSpace(string(t.Side)))
		if sym == "" || side == "" {
			continue
		}
		slippage := t.MaxSlippageBps
		m.IntendedTrades = append(m.IntendedTrades, MaterialTrade{
			Symbol:         sym,
			Side:           side,
			OrderType:      optionalString(t.OrderType),
			Units:          FormatDecimal(t.Units, unitsPlaces),
			NotionalBase:   FormatDecimal(&t.NotionalBase, moneyPlaces),
			LimitPrice:     FormatDecimal(t.LimitPrice, pricePlaces),
			ReferencePrice: FormatDecimal(&t.ReferencePrice, pricePlaces),
			MaxSlippageBps: &slippage,
		})
	}
	sort.SliceStable(m.IntendedTrades, func(i, j int) bool {
		return lessKeys(tradeKey(m.IntendedTrades[i]), tradeKey(m.IntendedTrades[j]))
	})

	for _, f := range in.Fills {
		sym := strings.TrimSpace(f.Symbol)
		side := strings.ToUpper(strings.TrimSpace(string(f.Side)))
		status := strings.TrimSpace(string(f.ExecutedStatus))
		if sym == "" || side == "" || status == "" {
			continue
		}
		m.ConfirmedFills = append(m.ConfirmedFills, MaterialFill{
			Symbol:            sym,
			Side:              side,
			ExecutedStatus:    status,
			Units:             FormatDecimal(f.Units, unitsPlaces),
			FillPrice:         FormatDecimal(f.FillPrice, pricePlaces),
			ExecutedValueBase: FormatDecimal(f.ExecutedValueBase, moneyPlaces),
		})
	}
	sort.SliceStable(m.ConfirmedFills, func(i, j int) bool {
		return lessKeys(fillKey(m.ConfirmedFills[i]), fillKey(m.ConfirmedFills[j]))
	})

	return m
}

// Hash returns the hex SHA-256 of the RFC 8785 canonical JSON of m
func (m Material) Hash() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal material: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize material: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// FormatDecimal rounds half-up to places and trims trailing zeros; nil stays nil
func FormatDecimal(d *decimal.Decimal, places int32) *string {
	if d == nil {
		return nil
	}
	s := d.Round(places).String()
	return &s
}

// ============================================================================
// helpers
// ============================================================================

func materialUniverse(members []contracts.UniverseMember) MaterialUniverse {
	u := MaterialUniverse{EnabledSymbols: []string{}, BenchmarkSymbols: []string{}}
	for _, m := range members {
		if m.Enabled {
			u.EnabledSymbols = append(u.EnabledSymbols, m.Symbol)
		}
		if m.Benchmark {
			u.BenchmarkSymbols = append(u.BenchmarkSymbols, m.Symbol)
		}
	}
	sort.Strings(u.EnabledSymbols)
	sort.Strings(u.BenchmarkSymbols)
	return u
}

func materialChecks(checks []contracts.RiskCheck) []MaterialCheck {
	out := make([]MaterialCheck, 0, len(checks))
	for _, c := range checks {
		if !c.Name.Known() {
			continue
		}
		out = append(out, MaterialCheck{Name: string(c.Name), Passed: c.Passed})
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := contracts.CheckName(out[i].Name).Order(), contracts.CheckName(out[j].Name).Order()
		if oi != oj {
			return oi < oj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func reasonCodes(reasons []contracts.Reason) []string {
	d := contracts.Decision{Reasons: reasons}
	return d.ReasonCodes()
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sideKey(side string) string {
	return fmt.Sprintf("%d", contracts.Side(side).SortRank())
}

func tradeKey(t MaterialTrade) []string {
	slippage := "-1"
	if t.MaxSlippageBps != nil {
		slippage = fmt.Sprintf("%010d", *t.MaxSlippageBps)
	}
	return []string{
		t.Symbol,
		sideKey(t.Side),
		deref(t.OrderType),
		deref(t.Units),
		deref(t.NotionalBase),
		deref(t.LimitPrice),
		deref(t.ReferencePrice),
		slippage,
	}
}

func fillKey(f MaterialFill) []string {
	return []string{
		f.Symbol,
		sideKey(f.Side),
		f.ExecutedStatus,
		deref(f.Units),
		deref(f.FillPrice),
		deref(f.ExecutedValueBase),
	}
}

func lessKeys(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
