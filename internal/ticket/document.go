package ticket

import (
	"fmt"
	"strings"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// Ticket artifact file names
const (
	JSONFile         = "ticket.json"
	MarkdownFile     = "ticket.md"
	MaterialHashFile = "material_hash.txt"
)

// Document is the full rendered ticket (ticket.json)
type Document struct {
	TicketID        string                    `json:"ticket_id"`
	RunID           string                    `json:"run_id"`
	AsOfDate        string                    `json:"asof_date"`
	BaseCurrency    string                    `json:"base_currency"`
	CreatedUTC      string                    `json:"created_utc"`
	DecisionType    contracts.DecisionType    `json:"decision_type"`
	ExecutionWindow string                    `json:"execution_window_uk"`
	Universe        UniverseSummary           `json:"universe"`
	GateStatuses    GateStatuses              `json:"gate_statuses"`
	BlockingReasons []contracts.Reason        `json:"blocking_reasons"`
	IntendedTrades  []contracts.IntendedTrade `json:"intended_trades"`
	ConfirmedFills  []contracts.ConfirmedFill `json:"confirmed_fills"`
	GitCommit       string                    `json:"git_commit"`
	ConfigHash      string                    `json:"config_hash"`
	ArtifactPaths   map[string]string         `json:"artifact_paths"`
	Meta            DocumentMeta              `json:"meta"`
}

// UniverseSummary counts and lists the configured instruments
type UniverseSummary struct {
	TotalCount       int      `json:"total_count"`
	EnabledCount     int      `json:"enabled_count"`
	BenchmarkCount   int      `json:"benchmark_count"`
	EnabledSymbols   []string `json:"enabled_symbols"`
	BenchmarkSymbols []string `json:"benchmark_symbols"`
}

type GateStatuses struct {
	RiskChecks []contracts.RiskCheck `json:"risk_checks"`
}

type DocumentMeta struct {
	MaterialHash   string `json:"material_hash"`
	MaterialSchema string `json:"material_schema"`
}

func summarizeUniverse(members []contracts.UniverseMember) UniverseSummary {
	mu := materialUniverse(members)
	total := 0
	for _, m := range members {
		if m.Enabled || m.Benchmark {
			total++
		}
	}
	return UniverseSummary{
		TotalCount:       total,
		EnabledCount:     len(mu.EnabledSymbols),
		BenchmarkCount:   len(mu.BenchmarkSymbols),
		EnabledSymbols:   mu.EnabledSymbols,
		BenchmarkSymbols: mu.BenchmarkSymbols,
	}
}

// RenderMarkdown renders the operator-facing ticket.md
func RenderMarkdown(doc *Document) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# Trade Ticket")
	line("")
	line("## DECISION: %s", doc.DecisionType)
	line("")
	line("- ticket_id: `%s`", doc.TicketID)
	line("- run_id: `%s`", doc.RunID)
	line("- asof_date: `%s`", doc.AsOfDate)
	line("- created_utc: `%s`", doc.CreatedUTC)
	line("- material_hash: `%s`", doc.Meta.MaterialHash)
	line("- execution_window_uk: `%s`", doc.ExecutionWindow)
	line("")

	line("## Universe")
	line("")
	line("- total_count: `%d`", doc.Universe.TotalCount)
	line("- enabled_count: `%d`", doc.Universe.EnabledCount)
	line("- benchmark_count: `%d`", doc.Universe.BenchmarkCount)
	line("- enabled_symbols: `%s`", strings.Join(doc.Universe.EnabledSymbols, ", "))
	line("- benchmark_symbols: `%s`", strings.Join(doc.Universe.BenchmarkSymbols, ", "))
	line("")

	line("## Risk checks")
	line("")
	for _, c := range doc.GateStatuses.RiskChecks {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		line("- %s: `%s`", c.Name, status)
	}
	line("")

	if len(doc.IntendedTrades) > 0 {
		line("## Intended trades (draft)")
		line("")
		line("Do not execute unless DECISION=TRADE and reconciliation is passing.")
		line("Skip a line if the instrument is not available as a stock on the broker and record the reason in the confirmation.")
		line("")
		for _, t := range doc.IntendedTrades {
			parts := []string{fmt.Sprintf("%d.", t.Sequence), string(t.Side), t.Symbol}
			if u := FormatDecimal(t.Units, unitsPlaces); u != nil {
				parts = append(parts, "units="+*u)
			}
			parts = append(parts,
				fmt.Sprintf("~%s%s", doc.BaseCurrency, t.NotionalBase.StringFixed(moneyPlaces)),
				"ref="+t.ReferencePrice.StringFixed(pricePlaces),
				fmt.Sprintf("slip=%dbps", t.MaxSlippageBps),
			)
			line("- %s", strings.Join(parts, " "))
		}
		line("")
	}

	if doc.DecisionType == contracts.DecisionNoTrade {
		line("## NO_TRADE (blocked)")
		line("")
		for _, r := range doc.BlockingReasons {
			line("- `%s`: %s", r.Code, r.Detail)
		}
		line("")
	}

	if len(doc.ConfirmedFills) > 0 {
		line("## Confirmed fills")
		line("")
		if doc.DecisionType == contracts.DecisionNoTrade {
			line("Fills were recorded for a NO_TRADE ticket. Ensure this is intended.")
			line("")
		}
		for _, f := range doc.ConfirmedFills {
			parts := []string{string(f.ExecutedStatus), string(f.Side), f.Symbol}
			if u := FormatDecimal(f.Units, unitsPlaces); u != nil {
				parts = append(parts, "units="+*u)
			}
			if f.ExecutedValueBase != nil {
				parts = append(parts, fmt.Sprintf("value=%s%s", doc.BaseCurrency, f.ExecutedValueBase.StringFixed(moneyPlaces)))
			}
			if f.FillPrice != nil {
				parts = append(parts, "px="+f.FillPrice.StringFixed(pricePlaces))
			}
			if f.FilledAt != nil {
				parts = append(parts, "at="+f.FilledAt.UTC().Format("2006-01-02T15:04:05Z"))
			}
			line("- %s", strings.Join(parts, " "))
		}
		line("")
	}

	line("## Confirmations")
	line("")
	line("Submit fills for TRADE tickets after manual execution, or acknowledge NO_TRADE tickets.")
	line("")
	line("- ticket_id: `%s`", doc.TicketID)
	return b.String()
}
