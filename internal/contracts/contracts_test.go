package contracts

import (
	"testing"
	"time"
)

func TestCheckName_Order(t *testing.T) {
	tests := []struct {
		name CheckName
		want int
	}{
		{CheckDataQuality, 10},
		{CheckReconciliation, 20},
		{CheckConfirmations, 30},
		{CheckUniverseVerified, 40},
		{CheckLedgerReady, 50},
		{CheckTradeBuilder, 60},
		{CheckName("confirmation_deadline"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			if got := tt.name.Order(); got != tt.want {
				t.Errorf("Order() = %d, want %d", got, tt.want)
			}
			if got := tt.name.Known(); got != (tt.want > 0) {
				t.Errorf("Known() = %v", got)
			}
		})
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		in     string
		want   Side
		wantOK bool
	}{
		{"BUY", SideBuy, true},
		{" sell ", SideSell, true},
		{"Buy", SideBuy, true},
		{"HOLD", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseSide(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseSide(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}

	if SideSell.SortRank() >= SideBuy.SortRank() {
		t.Error("SELL must sort before BUY")
	}
}

func TestParseExecutedStatus(t *testing.T) {
	for _, s := range []string{"DONE", "skipped", "Failed", "PARTIAL"} {
		if _, ok := ParseExecutedStatus(s); !ok {
			t.Errorf("ParseExecutedStatus(%q) rejected", s)
		}
	}
	if _, ok := ParseExecutedStatus("CANCELLED"); ok {
		t.Error("CANCELLED must be rejected")
	}
	if !ExecutedPartial.Executed() || ExecutedSkipped.Executed() {
		t.Error("Executed() mismatch")
	}
}

func TestDecision_ReasonCodes(t *testing.T) {
	d := Decision{Reasons: []Reason{
		{Code: ReasonLedgerEmpty},
		{Code: ReasonDataQualityFail},
		{Code: ReasonLedgerEmpty},
		{Code: ""},
	}}

	got := d.ReasonCodes()
	want := []string{"DATA_QUALITY_FAIL", "LEDGER_EMPTY"}
	if len(got) != len(want) {
		t.Fatalf("ReasonCodes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ReasonCodes()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDates(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if FormatDate(&d) != "2026-03-02" {
		t.Errorf("FormatDate() = %s", FormatDate(&d))
	}
	if FormatDate(nil) != "" {
		t.Error("FormatDate(nil) should be empty")
	}
	if _, err := ParseDate("02/03/2026"); err == nil {
		t.Error("expected error for bad layout")
	}

	late := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)
	if !SameDate(d, late) {
		t.Error("SameDate() should ignore time of day")
	}
}

func TestCheckDetail_WithExtra(t *testing.T) {
	base := NewLedgerDetail(LedgerDetail{CashMovements: 1})
	withExtra := base.WithExtra("note", "x")

	if withExtra.Kind != DetailLedger || withExtra.Ledger.CashMovements != 1 {
		t.Errorf("typed payload lost: %+v", withExtra)
	}
	if withExtra.Extra["note"] != "x" {
		t.Errorf("Extra = %v", withExtra.Extra)
	}
}
