package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/tradeops/backend/internal/confirmation"
	"github.com/wonny/tradeops/backend/internal/contracts"
)

// confirmCmd represents the confirm command
var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "체결 확인 / NO_TRADE 확인 / 마감 체크",
	Long: `운영자가 실행한 결과를 티켓에 기록합니다.

Subcommands:
  submit   - TRADE 티켓 체결 내역 제출 (fills JSON)
  ack      - NO_TRADE 티켓 확인
  deadline - 직전 TRADE 티켓 확인 여부 체크

Example:
  go run ./cmd/ops confirm submit --ticket-id <id> --fills fills.json
  go run ./cmd/ops confirm ack --run-id <run_id>
  go run ./cmd/ops confirm deadline`,
}

var (
	confirmSubmitCmd = &cobra.Command{
		Use:   "submit",
		Short: "체결 내역 제출",
		RunE:  runConfirmSubmit,
	}

	confirmAckCmd = &cobra.Command{
		Use:   "ack",
		Short: "NO_TRADE 티켓 확인",
		RunE:  runConfirmAck,
	}

	confirmDeadlineCmd = &cobra.Command{
		Use:   "deadline",
		Short: "직전 TRADE 티켓 확인 마감 체크",
		RunE:  runConfirmDeadline,
	}

	confirmTicketID      string
	confirmRunID         string
	confirmFillsPath     string
	confirmSubmittedBy   string
	confirmNotes         string
	confirmAllowNonTrade bool
)

func init() {
	rootCmd.AddCommand(confirmCmd)
	confirmCmd.AddCommand(confirmSubmitCmd)
	confirmCmd.AddCommand(confirmAckCmd)
	confirmCmd.AddCommand(confirmDeadlineCmd)

	for _, c := range []*cobra.Command{confirmSubmitCmd, confirmAckCmd} {
		c.Flags().StringVar(&confirmTicketID, "ticket-id", "", "ticket id")
		c.Flags().StringVar(&confirmRunID, "run-id", "", "run id (alternative to --ticket-id)")
		c.Flags().StringVar(&confirmSubmittedBy, "submitted-by", "operator", "who executed the ticket")
		c.Flags().StringVar(&confirmNotes, "notes", "", "free-form notes")
		c.MarkFlagsOneRequired("ticket-id", "run-id")
		c.MarkFlagsMutuallyExclusive("ticket-id", "run-id")
	}
	confirmSubmitCmd.Flags().StringVar(&confirmFillsPath, "fills", "", "fills JSON file (list or {\"fills\": [...]})")
	_ = confirmSubmitCmd.MarkFlagRequired("fills")
	confirmSubmitCmd.Flags().BoolVar(&confirmAllowNonTrade, "allow-non-trade", false, "allow fills on a non-TRADE ticket (testing only)")
	_ = confirmSubmitCmd.Flags().MarkHidden("allow-non-trade")

	confirmDeadlineCmd.Flags().StringVar(&confirmRunID, "run-id", "", "record the outcome as this run's confirmation_deadline check")
}

func runConfirmSubmit(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(confirmFillsPath)
	if err != nil {
		return fmt.Errorf("read fills: %w", err)
	}
	fills, err := confirmation.ParseFills(data)
	if err != nil {
		return err
	}

	return submitConfirmation(cmd, confirmation.Submission{
		TicketID:      confirmTicketID,
		RunID:         confirmRunID,
		Type:          contracts.ConfirmationFills,
		Fills:         fills,
		SubmittedBy:   confirmSubmittedBy,
		Notes:         confirmNotes,
		AllowNonTrade: confirmAllowNonTrade,
	})
}

func runConfirmAck(cmd *cobra.Command, args []string) error {
	return submitConfirmation(cmd, confirmation.Submission{
		TicketID:    confirmTicketID,
		RunID:       confirmRunID,
		Type:        contracts.ConfirmationAckNoTrade,
		SubmittedBy: confirmSubmittedBy,
		Notes:       confirmNotes,
	})
}

func submitConfirmation(cmd *cobra.Command, sub confirmation.Submission) error {
	ctx := cmd.Context()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	receipt, err := d.reconciler().Submit(ctx, sub)
	var verr *confirmation.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("rejected (nothing written): %w", err)
	}
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Confirmation %s recorded", receipt.ConfirmationID))
	fmt.Printf("   Ticket    : %s (run %s)\n", receipt.TicketID, receipt.RunID)
	fmt.Printf("   Type      : %s\n", receipt.Type)
	fmt.Printf("   Fills     : %d\n", receipt.FillsCount)
	fmt.Printf("   Artifact  : %s\n", receipt.ArtifactPath)
	return nil
}

func runConfirmDeadline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	result, err := d.reconciler().Deadline(ctx, confirmRunID)
	if err != nil {
		return fmt.Errorf("confirmation deadline: %w", err)
	}

	if err := PrintJSON(result); err != nil {
		return err
	}
	if !result.Passed {
		return fmt.Errorf("previous TRADE ticket %s has no confirmation", result.PreviousTicketID)
	}
	return nil
}
