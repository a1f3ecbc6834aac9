package types

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/canopy-network/hyperboard/pkg/db/clickhouse"
	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/canopy-network/hyperboard/pkg/points/engine"
	"github.com/canopy-network/hyperboard/pkg/points/leaderboard"
	"github.com/canopy-network/hyperboard/pkg/redis"
	"github.com/canopy-network/hyperboard/pkg/retry"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SnapshotLoader reads the ledger. changed is false when nothing moved since the last load.
type SnapshotLoader interface {
	Load(ctx context.Context) (snap *ledger.Snapshot, groups ledger.GroupMap, changed bool, err error)
}

type App struct {
	// LedgerDB is the ClickHouse connection behind Loader; nil when a custom loader is used.
	LedgerDB *clickhouse.Client
	Loader   SnapshotLoader

	// Engine owns the accrual worker pool; Aggregator ranks through a memo over it.
	Engine     *engine.Engine
	Aggregator *leaderboard.Aggregator

	// RedisClient backs the shared leaderboard cache (optional).
	RedisClient *redis.Client

	// Cron refreshes the snapshot according to CronSpec.
	Cron     *cron.Cron
	CronSpec string

	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Refresh loads the ledger and installs the snapshot when it changed.
func (a *App) Refresh(ctx context.Context) error {
	if a.Loader == nil {
		return errors.New("no snapshot loader configured")
	}

	var (
		snap    *ledger.Snapshot
		groups  ledger.GroupMap
		changed bool
	)
	err := retry.WithBackoff(ctx, retry.RefreshConfig(), a.Logger, "ledger_refresh", func() error {
		var loadErr error
		snap, groups, changed, loadErr = a.Loader.Load(ctx)
		return loadErr
	})
	if err != nil {
		return err
	}

	if !changed && a.Aggregator.Snapshot() != nil {
		a.Logger.Debug("Ledger unchanged", zap.Uint64("version", snap.Version()))
		return nil
	}

	a.Aggregator.SetSnapshot(snap, groups)
	a.Logger.Info("Installed ledger snapshot", zap.Uint64("version", snap.Version()))
	return nil
}

// SetupScheduler sets up the cron scheduler that keeps the snapshot fresh.
func (a *App) SetupScheduler(ctx context.Context) error {
	logger := cron.PrintfLogger(zap.NewStdLog(a.Logger.Named("cron")))
	// Seconds field, optional
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	_, err := a.Cron.AddFunc(a.CronSpec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		if err := a.Refresh(rctx); err != nil {
			a.Logger.Error("Ledger refresh failed", zap.Error(err))
		}
	})
	return err
}

// Start serves HTTP and runs the scheduler until ctx is done.
func (a *App) Start(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Start()
		a.Logger.Info("Refresh cron started", zap.String("cronSpec", a.CronSpec))
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)

	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}

	if a.Engine != nil {
		a.Engine.Close()
	}

	if a.LedgerDB != nil {
		if err := a.LedgerDB.Close(); err != nil {
			a.Logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
