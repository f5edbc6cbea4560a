package main

import (
	"log"

	"creatorpay/pkg/config"
	"creatorpay/pkg/db"
	"creatorpay/pkg/gen"
	"creatorpay/pkg/health"
	"creatorpay/pkg/httpapi"
	"creatorpay/pkg/logger"
	"creatorpay/pkg/middleware"
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
	"creatorpay/services/reward"
	"creatorpay/services/transaction"
	"creatorpay/services/wallet"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

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
		stripe.Module,
		provider.Module,
		middleware.AccessControl,
		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
		migrate.Module,

		wallet.Module,
		wallet.HTTP,
		transaction.Module,
		transaction.HTTP,
		account.Module,
		account.HTTP,
		reward.Module,
		reward.HTTP,
		payout.Module,
		payout.HTTP,
		payout.Health,
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
