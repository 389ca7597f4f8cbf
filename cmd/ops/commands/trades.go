package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// tradesCmd represents the trades command
var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "매매 의도 (intended trades)",
}

var (
	tradesBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "목표 비중과 보유 현황으로 매매 의도 생성",
		Long: `사이징 엔진을 실행해 런의 매매 의도를 교체합니다.
TRADES_ENABLED=false 이면 DRYRUN_TRADES_DISABLED 로 끝납니다.

Example:
  go run ./cmd/ops trades build --run-id <run_id>`,
		RunE: runTradesBuild,
	}

	tradesShowCmd = &cobra.Command{
		Use:   "show",
		Short: "런의 매매 의도 조회",
		RunE:  runTradesShow,
	}

	tradesRunID string
)

func init() {
	rootCmd.AddCommand(tradesCmd)
	tradesCmd.AddCommand(tradesBuildCmd)
	tradesCmd.AddCommand(tradesShowCmd)

	tradesCmd.PersistentFlags().StringVar(&tradesRunID, "run-id", "", "run id (required)")
	_ = tradesCmd.MarkPersistentFlagRequired("run-id")
}

func runTradesBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	asof, err := d.resolveAsOf(ctx, tradesRunID)
	if err != nil {
		return err
	}

	result, err := d.tradeBuilder().Build(ctx, tradesRunID, asof)
	if err != nil {
		return fmt.Errorf("build trades: %w", err)
	}

	PrintHeader("Trade Builder",
		fmt.Sprintf("Run ID    : %s", tradesRunID),
		fmt.Sprintf("Outcome   : %s", result.Outcome),
		fmt.Sprintf("Positions : %s", result.PositionSource),
		fmt.Sprintf("Value     : %s", result.PortfolioValue.StringFixed(2)),
		fmt.Sprintf("Min order : %s", result.EffectiveMinNotional.StringFixed(2)),
	)
	if len(result.MissingPrices) > 0 {
		PrintWarning(fmt.Sprintf("Missing prices: %v", result.MissingPrices))
	}
	PrintTrades(result.Trades)
	fmt.Printf("Artifact  : %s\n", result.ArtifactPath)
	return nil
}

func runTradesShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	trades, err := d.store.ListIntendedTrades(ctx, tradesRunID)
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	PrintHeader("Intended Trades", fmt.Sprintf("Run ID    : %s", tradesRunID))
	PrintTrades(trades)
	return nil
}
