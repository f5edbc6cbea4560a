package main

import (
	"log"

	"creatorpay/pkg/config"
	"creatorpay/pkg/db"
	"creatorpay/pkg/featureflags"
	"creatorpay/pkg/gen"
	"creatorpay/pkg/health"
	"creatorpay/pkg/logger"
	"creatorpay/pkg/otelcol"
	"creatorpay/pkg/profiling"
	"creatorpay/pkg/provider"
	"creatorpay/pkg/provider/stripe"
	"creatorpay/pkg/redis"
	"creatorpay/pkg/server"
	"creatorpay/pkg/task"
	"creatorpay/services/account"
	"creatorpay/services/migrate"
	"creatorpay/services/payout"
	"creatorpay/services/scheduler"
	"creatorpay/services/transaction"
	"creatorpay/services/wallet"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// The worker settles payouts from the queue and runs the weekly batch and
// hourly retry schedules. It serves gRPC health only.
func main() {
	opts := []fx.Option{
		config.Options(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		task.Client,
		task.Server,
		stripe.Module,
		provider.Module,
		featureflags.Module,
		health.Module,
		server.ProvideGRPCServer,
		migrate.Module,

		wallet.Module,
		transaction.Module,
		account.Module,
		payout.Module,
		payout.Worker,
		payout.Health,
		scheduler.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})
