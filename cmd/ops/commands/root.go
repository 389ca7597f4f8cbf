package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	policyPath string
	verbose    bool

	// gitCommit is set at build time: -ldflags "-X .../commands.gitCommit=<sha>"
	gitCommit = ""
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ops",
	Short: "TradeOps - 운영 런 / 리스크 게이트 / 티켓 CLI",
	Long: `TradeOps Unified CLI

목표 비중 → 사이징 → 리스크 게이트 → 티켓 → 체결 확인.
모든 주문은 운영자가 티켓을 보고 수동으로 실행합니다.

Usage:
  go run ./cmd/ops [command]

Examples:
  go run ./cmd/ops run
  go run ./cmd/ops ticket show <ticket_id>
  go run ./cmd/ops confirm submit --ticket-id <id> --fills fills.json
  go run ./cmd/ops scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx (cancelled on SIGINT/SIGTERM)
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "policy file (default POLICY_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logs)")
}
