package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/canopy-network/hyperboard/app/query"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// loads the points config, connects ClickHouse (and Redis when enabled) and performs
	// the first ledger load before the server comes up
	app := query.Initialize(ctx)
	defer func() { _ = app.Logger.Sync() }()

	if err := query.NewServer(app); err != nil {
		app.Logger.Fatal("Unable to initialize server", zap.Error(err))
	}

	app.Start(ctx)
}
