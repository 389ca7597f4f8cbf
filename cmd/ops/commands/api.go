package commands

import (
	"github.com/spf13/cobra"

	"github.com/wonny/tradeops/backend/internal/api"
	"github.com/wonny/tradeops/backend/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "운영자 API 서버 시작",
	Long: `운영자용 REST API 서버를 시작합니다.

Endpoints:
  GET  /health                                 - Health check
  GET  /api/runs/{run_id}/decision             - 결정 + 체크 조회
  GET  /api/runs/{run_id}/trades               - 매매 의도 조회
  GET  /api/tickets                            - 최근 티켓 목록
  GET  /api/tickets/{ticket_id}                - 티켓 + 체결 조회
  POST /api/tickets/{ticket_id}/confirmations  - 체결 / NO_TRADE 확인 제출

Example:
  go run ./cmd/ops api
  go run ./cmd/ops api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if apiPort != "" {
		d.cfg.Port = apiPort
	}

	rc := api.RouterConfig{RateLimit: d.cfg.API.RateLimit, RateBurst: d.cfg.API.RateBurst}
	if d.db != nil {
		rc.Database = d.db
	}

	router := api.NewRouter(
		rc,
		handlers.NewRunHandler(d.store, d.log),
		handlers.NewTicketHandler(d.store, d.reconciler(), d.log),
		d.log,
	)

	return api.New(d.cfg, d.log, router).Run(ctx)
}
