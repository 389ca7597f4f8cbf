package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// riskguardCmd evaluates the safety checks of an existing run
var riskguardCmd = &cobra.Command{
	Use:   "riskguard",
	Short: "리스크 게이트 평가 (기존 런)",
	Long: `저장된 목표 비중으로 6개 안전 체크를 평가하고 결정을 기록합니다.

체크: data_quality, reconciliation, confirmations, universe_verified,
      ledger_ready, trade_builder

Example:
  go run ./cmd/ops riskguard --run-id <run_id>`,
	RunE: runRiskguard,
}

var riskguardRunID string

func init() {
	rootCmd.AddCommand(riskguardCmd)

	riskguardCmd.Flags().StringVar(&riskguardRunID, "run-id", "", "run id (required)")
	_ = riskguardCmd.MarkFlagRequired("run-id")
}

func runRiskguard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	asof, err := d.resolveAsOf(ctx, riskguardRunID)
	if err != nil {
		return err
	}
	targets, err := d.store.ListTargets(ctx, riskguardRunID)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}

	eval, err := d.evaluator().Evaluate(ctx, riskguardRunID, asof, targets)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	PrintHeader("RiskGuard", fmt.Sprintf("Run ID    : %s", riskguardRunID))
	PrintDecision(&eval.Decision, eval.Checks)
	fmt.Printf("Intended  : %d\n", eval.IntendedCount)
	fmt.Printf("Artifact  : %s\n", eval.ArtifactPath)
	return nil
}
