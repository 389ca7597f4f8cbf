package confirmation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestParseFills_ListAndObject(t *testing.T) {
	list := `[{"sequence": 2, "internal_symbol": "VUSA", "side": "buy", "executed_status": "done",
	           "units": 3, "fill_price": "99.10", "filled_at": "2026-03-02T15:01:00Z"}]`
	obj := `{"fills": [{"sequence": 1, "internal_symbol": "ISF", "side": "SELL", "executed_status": "SKIPPED", "notes": "not on broker"}]}`

	fills, err := ParseFills([]byte(list))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, 2, fills[0].Sequence)
	assert.True(t, fills[0].FillPrice.Equal(decimal.RequireFromString("99.1")))

	fills, err = ParseFills([]byte(obj))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "not on broker", fills[0].Notes)
	assert.Nil(t, fills[0].Units)
}

func TestParseFills_SchemaRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{`},
		{"scalar", `42`},
		{"missing fills key", `{"rows": []}`},
		{"sequence zero", `[{"sequence": 0, "internal_symbol": "A", "side": "BUY", "executed_status": "DONE"}]`},
		{"sequence fractional", `[{"sequence": 1.5, "internal_symbol": "A", "side": "BUY", "executed_status": "DONE"}]`},
		{"missing side", `[{"sequence": 1, "internal_symbol": "A", "executed_status": "DONE"}]`},
		{"empty symbol", `[{"sequence": 1, "internal_symbol": "", "side": "BUY", "executed_status": "DONE"}]`},
		{"units bool", `[{"sequence": 1, "internal_symbol": "A", "side": "BUY", "executed_status": "DONE", "units": true}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFills([]byte(tt.payload))
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestValidateFills(t *testing.T) {
	at := "2026-03-02T15:01:00Z"

	t.Run("normalizes and sorts", func(t *testing.T) {
		out, err := ValidateFills("t-1", []FillInput{
			{Sequence: 2, Symbol: " VUSA ", Side: "buy", ExecutedStatus: "partial", Units: d("1.5"), FillPrice: d("10"), FilledAt: at},
			{Sequence: 1, Symbol: "ISF", Side: "Sell", ExecutedStatus: "skipped"},
		})
		require.NoError(t, err)
		require.Len(t, out, 2)

		assert.Equal(t, 1, out[0].Sequence)
		assert.Equal(t, contracts.SideSell, out[0].Side)
		assert.Equal(t, contracts.ExecutedSkipped, out[0].ExecutedStatus)
		assert.Nil(t, out[0].ExecutedValueBase)

		assert.Equal(t, "VUSA", out[1].Symbol)
		assert.Equal(t, "t-1", out[1].TicketID)
		require.NotNil(t, out[1].ExecutedValueBase)
		assert.True(t, out[1].ExecutedValueBase.Equal(decimal.NewFromInt(15)))
		require.NotNil(t, out[1].FilledAt)
	})

	t.Run("explicit value wins", func(t *testing.T) {
		out, err := ValidateFills("t-1", []FillInput{
			{Sequence: 1, Symbol: "A", Side: "BUY", ExecutedStatus: "DONE", Units: d("2"), FillPrice: d("10"), ExecutedValueBase: d("19.5"), FilledAt: at},
		})
		require.NoError(t, err)
		assert.True(t, out[0].ExecutedValueBase.Equal(decimal.RequireFromString("19.5")))
	})

	rejects := []struct {
		name  string
		fill  FillInput
		field string
	}{
		{"sequence", FillInput{Sequence: 0, Symbol: "A", Side: "BUY", ExecutedStatus: "SKIPPED"}, "fills[0].sequence"},
		{"symbol", FillInput{Sequence: 1, Symbol: "  ", Side: "BUY", ExecutedStatus: "SKIPPED"}, "fills[0].internal_symbol"},
		{"side", FillInput{Sequence: 1, Symbol: "A", Side: "HOLD", ExecutedStatus: "SKIPPED"}, "fills[0].side"},
		{"status", FillInput{Sequence: 1, Symbol: "A", Side: "BUY", ExecutedStatus: "CANCELLED"}, "fills[0].executed_status"},
		{"negative value", FillInput{Sequence: 1, Symbol: "A", Side: "BUY", ExecutedStatus: "SKIPPED", ExecutedValueBase: d("-1")}, "fills[0].executed_value_base"},
		{"negative units", FillInput{Sequence: 1, Symbol: "A", Side: "BUY", ExecutedStatus: "SKIPPED", Units: d("-1")}, "fills[0].units"},
		{"negative price", FillInput{Sequence: 1, Symbol: "A", Side: "BUY", ExecutedStatus: "SKIPPED", FillPrice: d("-1")}, "fills[0].fill_price"},
		{"bad timestamp", FillInput{Sequence: 1, Symbol: "A", Side: "BUY", ExecutedStatus: "DONE", FilledAt: "2026-03-02"}, "fills[0].filled_at"},
		{"done without timestamp", FillInput{Sequence: 1, Symbol: "A", Side: "BUY", ExecutedStatus: "DONE"}, "fills[0].filled_at"},
	}
	for _, tt := range rejects {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := ValidateFills("t-1", []FillInput{tt.fill})
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	t.Run("rejects duplicate sequence", func(t *testing.T) {
		_, err := ValidateFills("t-1", []FillInput{
			{Sequence: 1, Symbol: "A", Side: "BUY", ExecutedStatus: "SKIPPED"},
			{Sequence: 1, Symbol: "B", Side: "BUY", ExecutedStatus: "SKIPPED"},
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "fills[1].sequence", verr.Field)
	})
}
