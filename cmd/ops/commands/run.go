package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "운영 런 실행 (allocate → riskguard → ticket)",
	Long: `운영 런 한 번을 실행합니다.

단계:
  1. 시그널 → 목표 비중 (allocate)
  2. 안전 체크 + 사이징 (riskguard)
  3. 티켓 생성 (ticket)

차단된 결정(NO_TRADE)도 런 자체는 passed 입니다.
같은 --run-id 로 다시 실행하면 같은 티켓이 갱신됩니다.

Example:
  go run ./cmd/ops run
  go run ./cmd/ops run --run-id 3f0c... --asof 2026-03-02`,
	RunE: runOps,
}

var (
	runID      string
	runAsOf    string
	runCadence string
	runNotes   string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runID, "run-id", "", "run id (default: new UUID)")
	runCmd.Flags().StringVar(&runAsOf, "asof", "", "as-of date override (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runCadence, "cadence", "", "cadence label (default OPS_CADENCE)")
	runCmd.Flags().StringVar(&runNotes, "notes", "", "free-form run notes")
}

func runOps(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	cfg := d.runConfig()
	cfg.RunID = runID
	cfg.Notes = runNotes
	if runCadence != "" {
		cfg.Cadence = runCadence
	}
	if runAsOf != "" {
		day, err := contracts.ParseDate(runAsOf)
		if err != nil {
			return fmt.Errorf("invalid --asof: %w", err)
		}
		cfg.AsOfDate = &day
	}

	result, err := d.orchestrator().Run(ctx, cfg)
	if result == nil {
		return err
	}

	PrintHeader("Ops Run",
		fmt.Sprintf("Run ID    : %s", result.RunID),
		fmt.Sprintf("Cadence   : %s", result.Cadence),
		fmt.Sprintf("As-of     : %s", contracts.FormatDate(result.AsOfDate)),
		fmt.Sprintf("Status    : %s (%s)", result.Status, result.Duration.Round(time.Millisecond)),
	)
	for _, st := range result.Stages {
		mark := "✅"
		if !st.OK {
			mark = "❌"
		}
		fmt.Printf("%s %-10s %s%s\n", mark, st.Name, st.ArtifactPath, st.Error)
	}
	if result.Evaluation != nil {
		PrintSeparator()
		PrintDecision(&result.Evaluation.Decision, result.Evaluation.Checks)
	}
	if result.Ticket != nil {
		PrintSeparator()
		fmt.Printf("Ticket    : %s (%s)\n", result.Ticket.Ticket.TicketID, result.Ticket.Ticket.DecisionType)
		fmt.Printf("Hash      : %s\n", result.Ticket.MaterialHash)
	}
	fmt.Printf("Summary   : %s\n", result.SummaryPath)

	return err
}
