package query

import (
	"context"
	"runtime"

	"github.com/canopy-network/hyperboard/app/query/types"
	"github.com/canopy-network/hyperboard/pkg/db/clickhouse"
	"github.com/canopy-network/hyperboard/pkg/logging"
	"github.com/canopy-network/hyperboard/pkg/points/config"
	"github.com/canopy-network/hyperboard/pkg/points/engine"
	"github.com/canopy-network/hyperboard/pkg/points/leaderboard"
	"github.com/canopy-network/hyperboard/pkg/redis"
	"github.com/canopy-network/hyperboard/pkg/utils"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	provider, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("Unable to load points config", zap.Error(err))
	}

	ledgerDb, err := clickhouse.New(ctx, logger, utils.Env("LEDGER_DB", "hyperboard"))
	if err != nil {
		logger.Fatal("Unable to connect to ledger database", zap.Error(err))
	}
	if utils.EnvBool("LEDGER_CREATE_TABLES", false) {
		if err := ledgerDb.EnsureLedgerTables(ctx); err != nil {
			logger.Fatal("Unable to create ledger tables", zap.Error(err))
		}
	}

	eng := engine.New(provider,
		engine.WithWorkers(utils.EnvInt("ACCRUAL_WORKERS", runtime.NumCPU())),
		engine.WithLogger(logger.Named("engine")),
	)
	memo := engine.NewMemo(eng, utils.EnvInt("MEMO_MAX_ENTRIES", engine.DefaultMemoEntries))

	opts := []leaderboard.Option{leaderboard.WithLogger(logger.Named("leaderboard"))}

	// Redis shares computed boards between replicas (optional)
	var redisClient *redis.Client
	if utils.EnvBool("REDIS_ENABLED", false) {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - leaderboards will only be memoized in-process",
				zap.Error(err))
			redisClient = nil
		} else {
			ttl := utils.EnvDuration("LEADERBOARD_CACHE_TTL", redis.DefaultBoardTTL)
			opts = append(opts, leaderboard.WithCache(redis.NewLeaderboardCache(redisClient, ttl)))
			logger.Info("Redis leaderboard cache enabled", zap.Duration("ttl", ttl))
		}
	} else {
		logger.Info("Redis disabled - leaderboards will only be memoized in-process")
	}

	app := &types.App{
		LedgerDB:    ledgerDb,
		Loader:      clickhouse.NewLedgerReader(ledgerDb, logger.Named("ledger")),
		Engine:      eng,
		Aggregator:  leaderboard.New(memo, opts...),
		RedisClient: redisClient,
		CronSpec:    utils.Env("REFRESH_CRON", "*/30 * * * * *"),
		Logger:      logger,
	}

	// when the ledger is unreachable /health reports loading until a scheduled refresh succeeds
	if err := app.Refresh(ctx); err != nil {
		logger.Warn("Initial ledger load failed", zap.Error(err))
	}

	if err := app.SetupScheduler(ctx); err != nil {
		logger.Fatal("Unable to schedule ledger refresh", zap.Error(err))
	}

	return app
}
