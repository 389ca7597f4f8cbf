package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/wonny/tradeops/backend/cmd/ops/commands"
)

// main is the entry point for the ops CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/ops [command]
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
