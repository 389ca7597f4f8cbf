package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// ticketCmd represents the ticket command
var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "티켓 생성 / 조회",
	Long: `런의 결정을 하나의 멱등 티켓으로 만들고 조회합니다.

Example:
  go run ./cmd/ops ticket render --run-id <run_id>
  go run ./cmd/ops ticket show <ticket_id>
  go run ./cmd/ops ticket list --limit 10`,
}

var (
	ticketRenderCmd = &cobra.Command{
		Use:   "render",
		Short: "런의 티켓 생성 (재실행 시 같은 ID)",
		RunE:  runTicketRender,
	}

	ticketShowCmd = &cobra.Command{
		Use:   "show [ticket_id]",
		Short: "티켓 조회 (--run-id 로도 가능)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTicketShow,
	}

	ticketListCmd = &cobra.Command{
		Use:   "list",
		Short: "최근 티켓 목록",
		RunE:  runTicketList,
	}

	ticketRunID string
	ticketLimit int
)

func init() {
	rootCmd.AddCommand(ticketCmd)
	ticketCmd.AddCommand(ticketRenderCmd)
	ticketCmd.AddCommand(ticketShowCmd)
	ticketCmd.AddCommand(ticketListCmd)

	ticketRenderCmd.Flags().StringVar(&ticketRunID, "run-id", "", "run id (required)")
	_ = ticketRenderCmd.MarkFlagRequired("run-id")
	ticketShowCmd.Flags().StringVar(&ticketRunID, "run-id", "", "look up the ticket of a run")
	ticketListCmd.Flags().IntVar(&ticketLimit, "limit", 20, "max tickets")
}

func runTicketRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.materializer().Materialize(ctx, ticketRunID)
	if err != nil {
		return fmt.Errorf("render ticket: %w", err)
	}

	state := "updated"
	if res.Created {
		state = "created"
	}
	PrintHeader("Ticket",
		fmt.Sprintf("Ticket ID : %s (%s)", res.Ticket.TicketID, state),
		fmt.Sprintf("Run ID    : %s", res.Ticket.RunID),
		fmt.Sprintf("Decision  : %s", res.Ticket.DecisionType),
		fmt.Sprintf("Window    : %s", res.Document.ExecutionWindow),
		fmt.Sprintf("Hash      : %s", res.MaterialHash),
	)
	PrintTrades(res.Document.IntendedTrades)
	fmt.Printf("Ticket    : %s\n", res.Document.ArtifactPaths["ticket_md"])
	return nil
}

func runTicketShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(args) == 0 && ticketRunID == "" {
		return errors.New("ticket_id argument or --run-id is required")
	}

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	var t *contracts.Ticket
	if len(args) == 1 {
		t, err = d.store.GetTicket(ctx, args[0])
	} else {
		t, err = d.store.GetTicketByRun(ctx, ticketRunID)
	}
	if errors.Is(err, contracts.ErrNotFound) {
		return fmt.Errorf("ticket not found")
	}
	if err != nil {
		return fmt.Errorf("load ticket: %w", err)
	}

	confirmations, err := d.store.CountConfirmations(ctx, t.TicketID)
	if err != nil {
		return fmt.Errorf("count confirmations: %w", err)
	}
	fills, err := d.store.ListFills(ctx, t.TicketID)
	if err != nil {
		return fmt.Errorf("list fills: %w", err)
	}

	header := *t
	header.Rendered = nil

	return PrintJSON(struct {
		Ticket             *contracts.Ticket         `json:"ticket"`
		Document           json.RawMessage           `json:"document,omitempty"`
		ConfirmationsCount int                       `json:"confirmations_count"`
		Fills              []contracts.ConfirmedFill `json:"fills"`
	}{
		Ticket:             &header,
		Document:           t.Rendered,
		ConfirmationsCount: confirmations,
		Fills:              fills,
	})
}

func runTicketList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	tickets, err := d.store.ListTickets(ctx, ticketLimit)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}

	PrintHeader("Tickets", fmt.Sprintf("Count     : %d", len(tickets)))
	for _, t := range tickets {
		fmt.Printf("  %s  %-8s %-9s run=%s  %s\n",
			t.CreatedAt.UTC().Format("2006-01-02 15:04:05"), t.DecisionType, t.Status, t.RunID, t.TicketID)
	}
	return nil
}
