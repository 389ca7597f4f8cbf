package ticket

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func baseInput() MaterialInput {
	filledAt := time.Date(2026, 3, 2, 15, 1, 0, 0, time.UTC)
	checks := make([]contracts.RiskCheck, 0, len(contracts.CheckNames))
	for i := len(contracts.CheckNames) - 1; i >= 0; i-- {
		checks = append(checks, contracts.RiskCheck{Name: contracts.CheckNames[i], Passed: true})
	}
	return MaterialInput{
		DecisionType: contracts.DecisionTrade,
		AsOfDate:     "2026-03-02",
		BaseCurrency: "GBP",
		Universe: []contracts.UniverseMember{
			{Symbol: "VUSA", Enabled: true},
			{Symbol: "ISF", Enabled: true},
			{Symbol: "UKX", Benchmark: true},
		},
		Checks: checks,
		IntendedTrades: []contracts.IntendedTrade{
			{Sequence: 2, Symbol: "VUSA", Side: contracts.SideBuy, Units: dec("3"), NotionalBase: *dec("297.5"), OrderType: "MKT", ReferencePrice: *dec("99.1666667"), MaxSlippageBps: 50},
			{Sequence: 1, Symbol: "ISF", Side: contracts.SideSell, Units: dec("10"), NotionalBase: *dec("80"), OrderType: "MKT", ReferencePrice: *dec("8"), MaxSlippageBps: 50},
		},
		Fills: []contracts.ConfirmedFill{
			{Sequence: 1, Symbol: "ISF", Side: contracts.SideSell, ExecutedStatus: contracts.ExecutedDone, Units: dec("10"), FillPrice: dec("8.01"), ExecutedValueBase: dec("80.1"), FilledAt: &filledAt, Notes: "ok"},
		},
	}
}

func hashOf(t *testing.T, in MaterialInput) string {
	t.Helper()
	h, err := BuildMaterial(in).Hash()
	require.NoError(t, err)
	return h
}

func TestFormatDecimal(t *testing.T) {
	tests := []struct {
		in     string
		places int32
		want   string
	}{
		{"7.000000", 6, "7"},
		{"1.2345675", 6, "1.234568"},
		{"0.125", 2, "0.13"},
		{"297.50", 2, "297.5"},
		{"99.16666667", 4, "99.1667"},
		{"-0.005", 2, "-0.01"},
		{"100", 4, "100"},
	}

	for _, tt := range tests {
		got := FormatDecimal(dec(tt.in), tt.places)
		require.NotNil(t, got)
		assert.Equal(t, tt.want, *got, tt.in)
	}
	assert.Nil(t, FormatDecimal(nil, 2))
}

func TestBuildMaterial_Canonical(t *testing.T) {
	m := BuildMaterial(baseInput())

	assert.Equal(t, MaterialSchema, m.Schema)
	assert.Equal(t, []string{"ISF", "VUSA"}, m.Universe.EnabledSymbols)
	assert.Equal(t, []string{"UKX"}, m.Universe.BenchmarkSymbols)

	require.Len(t, m.RiskChecks, 6)
	for i, c := range m.RiskChecks {
		assert.Equal(t, string(contracts.CheckNames[i]), c.Name)
	}

	require.Len(t, m.IntendedTrades, 2)
	assert.Equal(t, "ISF", m.IntendedTrades[0].Symbol)
	assert.Equal(t, "99.1667", *m.IntendedTrades[1].ReferencePrice)
	assert.Equal(t, "297.5", *m.IntendedTrades[1].NotionalBase)
	assert.Nil(t, m.IntendedTrades[0].LimitPrice)

	require.Len(t, m.ConfirmedFills, 1)
	assert.Equal(t, "80.1", *m.ConfirmedFills[0].ExecutedValueBase)
}

func TestBuildMaterial_SellSortsBeforeBuyForSameSymbol(t *testing.T) {
	in := baseInput()
	in.IntendedTrades = []contracts.IntendedTrade{
		{Symbol: "AAA", Side: contracts.SideBuy, NotionalBase: *dec("10")},
		{Symbol: "AAA", Side: contracts.SideSell, NotionalBase: *dec("10")},
	}

	m := BuildMaterial(in)
	assert.Equal(t, "SELL", m.IntendedTrades[0].Side)
	assert.Equal(t, "BUY", m.IntendedTrades[1].Side)
}

func TestBuildMaterial_UnknownChecksAndDuplicateReasonsDropped(t *testing.T) {
	in := baseInput()
	in.Checks = append(in.Checks, contracts.RiskCheck{Name: "custom", Passed: false})
	in.Reasons = []contracts.Reason{
		{Code: contracts.ReasonLedgerEmpty},
		{Code: contracts.ReasonDataQualityFail},
		{Code: contracts.ReasonLedgerEmpty},
	}

	m := BuildMaterial(in)
	assert.Len(t, m.RiskChecks, 6)
	assert.Equal(t, []string{"DATA_QUALITY_FAIL", "LEDGER_EMPTY"}, m.BlockingReasonCodes)
}

func TestMaterialHash_Sensitivity(t *testing.T) {
	base := hashOf(t, baseInput())
	assert.Len(t, base, 64)

	changed := []struct {
		name   string
		mutate func(in *MaterialInput)
	}{
		{"fill value", func(in *MaterialInput) { in.Fills[0].ExecutedValueBase = dec("80.11") }},
		{"intent side", func(in *MaterialInput) { in.IntendedTrades[0].Side = contracts.SideSell }},
		{"check flag", func(in *MaterialInput) { in.Checks[0].Passed = false }},
		{"intent units", func(in *MaterialInput) { in.IntendedTrades[0].Units = dec("4") }},
		{"reason code", func(in *MaterialInput) { in.Reasons = []contracts.Reason{{Code: contracts.ReasonNoRebalance}} }},
		{"decision type", func(in *MaterialInput) { in.DecisionType = contracts.DecisionNoTrade }},
		{"enabled symbol", func(in *MaterialInput) { in.Universe[0].Enabled = false }},
	}
	for _, tt := range changed {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			assert.NotEqual(t, base, hashOf(t, in))
		})
	}

	unchanged := []struct {
		name   string
		mutate func(in *MaterialInput)
	}{
		{"fill timestamp", func(in *MaterialInput) {
			later := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
			in.Fills[0].FilledAt = &later
		}},
		{"fill notes", func(in *MaterialInput) { in.Fills[0].Notes = "different" }},
		{"input order", func(in *MaterialInput) {
			in.IntendedTrades[0], in.IntendedTrades[1] = in.IntendedTrades[1], in.IntendedTrades[0]
			in.Universe[0], in.Universe[1] = in.Universe[1], in.Universe[0]
		}},
		{"sub-precision noise", func(in *MaterialInput) { in.IntendedTrades[0].NotionalBase = *dec("297.5000001") }},
		{"sequence", func(in *MaterialInput) { in.IntendedTrades[0].Sequence = 9 }},
		{"rationale", func(in *MaterialInput) { in.IntendedTrades[0].Rationale = "rebalance" }},
	}
	for _, tt := range unchanged {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			assert.Equal(t, base, hashOf(t, in))
		})
	}
}

func TestMaterialHash_ReasonDetailIgnored(t *testing.T) {
	a := baseInput()
	a.Reasons = []contracts.Reason{{Code: contracts.ReasonLedgerEmpty, Detail: "one"}}
	b := baseInput()
	b.Reasons = []contracts.Reason{{Code: contracts.ReasonLedgerEmpty, Detail: "two"}}
	assert.Equal(t, hashOf(t, a), hashOf(t, b))
}

func TestNewTicketID(t *testing.T) {
	id := NewTicketID("run-1", contracts.DecisionTrade)
	assert.Equal(t, id, NewTicketID("run-1", contracts.DecisionTrade))
	assert.NotEqual(t, id, NewTicketID("run-1", contracts.DecisionNoTrade))
	assert.NotEqual(t, id, NewTicketID("run-2", contracts.DecisionTrade))

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}
