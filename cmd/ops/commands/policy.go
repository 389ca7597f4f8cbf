package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/tradeops/backend/internal/policy"
	"github.com/wonny/tradeops/backend/pkg/config"
)

// policyCmd represents the policy command
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "정책 파일 검증 / 해시",
	Long: `config/policy.yaml 을 검증하거나 config_hash 를 출력합니다.

Example:
  go run ./cmd/ops policy validate
  go run ./cmd/ops policy hash --policy config/policy.yaml`,
}

var (
	policyValidateCmd = &cobra.Command{
		Use:   "validate [path]",
		Short: "정책 파일 검증",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPolicyValidate,
	}

	policyHashCmd = &cobra.Command{
		Use:   "hash [path]",
		Short: "정책 canonical JSON SHA-256",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPolicyHash,
	}
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyValidateCmd)
	policyCmd.AddCommand(policyHashCmd)
}

// resolvePolicyPath picks arg > --policy > POLICY_PATH
func resolvePolicyPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if policyPath != "" {
		return policyPath, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Ops.PolicyPath, nil
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	path, err := resolvePolicyPath(args)
	if err != nil {
		return err
	}

	p, _, err := policy.Load(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	PrintSuccess(fmt.Sprintf("Policy OK: %s", path))
	fmt.Printf("   Policy ID     : %s\n", p.Meta.PolicyID)
	fmt.Printf("   Base currency : %s\n", p.Meta.BaseCurrency)
	fmt.Printf("   Max positions : %d (max weight %.3f, cash buffer %.3f)\n",
		p.Portfolio.MaxPositions, p.Portfolio.MaxPositionWeight, p.Portfolio.MinCashBuffer)
	fmt.Printf("   Reconcile     : required=%t max_age_days=%d\n", p.Reconcile.Required, p.Reconcile.MaxAgeDays)
	return nil
}

func runPolicyHash(cmd *cobra.Command, args []string) error {
	path, err := resolvePolicyPath(args)
	if err != nil {
		return err
	}

	p, _, err := policy.Load(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	hash, err := policy.Hash(p)
	if err != nil {
		return err
	}

	fmt.Println(hash)
	return nil
}
