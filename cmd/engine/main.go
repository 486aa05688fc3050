package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"turnover-rewards/internal/httpapi"
	taskqueue "turnover-rewards/pkg/asynq"
	"turnover-rewards/pkg/config"
	"turnover-rewards/pkg/db"
	"turnover-rewards/pkg/health"
	"turnover-rewards/pkg/logger"
	"turnover-rewards/pkg/redis"
	"turnover-rewards/pkg/server"
	"turnover-rewards/services/bootstrap"
	"turnover-rewards/services/claim"
	"turnover-rewards/services/dispute"
	"turnover-rewards/services/incentive"
	"turnover-rewards/services/ledger"
	"turnover-rewards/services/member"
	"turnover-rewards/services/rating"
	"turnover-rewards/services/turnover"
	"turnover-rewards/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		taskqueue.Client,
		health.Module,
		fx.Provide(
			provideTracerProvider,
			provideMeterProvider,
			provideSnowflakeNode,
		),
		bootstrap.Module,
		member.Module,
		turnover.Module,
		claim.Module,
		dispute.Module,
		ledger.Module,
		incentive.Module,
		withdrawal.Module,
		rating.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
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

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
