package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a formatted command header
func PrintHeader(title string, lines ...string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	if len(lines) > 0 {
		PrintSeparator()
		for _, l := range lines {
			fmt.Printf("  %s\n", l)
		}
	}
	PrintDoubleSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Println()
	fmt.Printf("✅ %s\n", message)
}

// PrintJSON pretty-prints v as JSON
func PrintJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// PrintDecision prints a decision with its checks
func PrintDecision(d *contracts.Decision, checks []contracts.RiskCheck) {
	mark := "✅"
	if !d.Approved {
		mark = "⛔"
	}
	fmt.Printf("%s Decision: %s (approved=%t)\n", mark, d.DecisionType, d.Approved)
	if codes := d.ReasonCodes(); len(codes) > 0 {
		fmt.Printf("   Reasons : %s\n", strings.Join(codes, ", "))
	}
	if len(checks) == 0 {
		return
	}
	PrintSeparator()
	for _, c := range checks {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		fmt.Printf("  %-22s %s\n", c.Name, status)
	}
}

// PrintTrades prints intended trades in execution order
func PrintTrades(trades []contracts.IntendedTrade) {
	if len(trades) == 0 {
		fmt.Println("  (no intended trades)")
		return
	}
	for _, t := range trades {
		units := "-"
		if t.Units != nil {
			units = t.Units.String()
		}
		fmt.Printf("  #%-3d %-4s %-10s units=%-10s notional=%s ref=%s\n",
			t.Sequence, t.Side, t.Symbol, units, t.NotionalBase.StringFixed(2), t.ReferencePrice.String())
	}
}
