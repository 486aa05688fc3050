package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	taskqueue "turnover-rewards/pkg/asynq"
	"turnover-rewards/pkg/config"
	"turnover-rewards/pkg/db"
	"turnover-rewards/pkg/logger"
	"turnover-rewards/pkg/redis"
	"turnover-rewards/services/incentive"
	"turnover-rewards/services/ledger"
	"turnover-rewards/services/rating"
)

// The sweeper consumes the task queue: claim re-syncs, the nightly full
// sweep, and monthly rating snapshots. It serves no HTTP traffic.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		taskqueue.Client,
		taskqueue.Server,
		fx.Provide(provideSnowflakeNode),
		ledger.Module,
		ledger.Worker,
		incentive.Module,
		incentive.Worker,
		rating.Module,
		rating.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
