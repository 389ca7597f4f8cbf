package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tradeops/backend/internal/artifact"
	"github.com/wonny/tradeops/backend/pkg/config"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// artifactsCmd represents the artifacts command
var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "아티팩트 관리",
}

var (
	artifactsPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "오래된 런 디렉토리 / 알림 파일 정리",
		Long: `보존 기간이 지난 아티팩트를 정리합니다. 기본은 계획만 출력합니다.

보존 규칙:
  - RETENTION_PRUNE_CADENCE 런 디렉토리: RETENTION_RUN_DAYS 일
  - reports/, alerts/ 파일: RETENTION_REPORT_DAYS 일 (reconcile_* 는 보존)

Example:
  go run ./cmd/ops artifacts prune
  go run ./cmd/ops artifacts prune --apply`,
		RunE: runArtifactsPrune,
	}

	pruneApply bool
)

func init() {
	rootCmd.AddCommand(artifactsCmd)
	artifactsCmd.AddCommand(artifactsPruneCmd)

	artifactsPruneCmd.Flags().BoolVar(&pruneApply, "apply", false, "actually delete (default: dry run)")
}

func runArtifactsPrune(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)
	writer := artifact.NewWriter(cfg.Ops.ArtifactsDir, log)

	items, err := writer.Plan(retentionPolicyFrom(cfg), time.Now().UTC())
	if err != nil {
		return err
	}

	mode := "dry-run"
	if pruneApply {
		mode = "apply"
	}
	PrintHeader("Artifacts Retention",
		fmt.Sprintf("Root      : %s", writer.Root()),
		fmt.Sprintf("Mode      : %s", mode),
		fmt.Sprintf("Planned   : %d", len(items)),
	)
	for _, item := range items {
		fmt.Printf("  %-11s %s (%s)\n", item.Action, item.Path, item.Reason)
	}

	if !pruneApply || len(items) == 0 {
		return nil
	}
	removed, err := writer.Apply(items)
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Removed %d item(s)", removed))
	return nil
}
