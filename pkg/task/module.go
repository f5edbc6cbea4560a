package task

import (
	"context"
	"os"

	"creatorpay/pkg/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

var Client = fx.Module("asynq:client",
	fx.Provide(registerClient, NewEnqueuer),
)

func registerClient(lc fx.Lifecycle, rdb *redis.Client) *asynq.Client {
	client := asynq.NewClientFromRedisClient(rdb)

	if err := client.Ping(); err != nil {
		zap.L().Error("[Asynq] Failed to connect to Asynq", zap.Error(err))
		os.Exit(1)
	}

	zap.L().Info("[Asynq] Connected to Asynq")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

var Server = fx.Module("asynq:server",
	fx.Provide(registerServerMux),
	fx.Invoke(registerAsynqServer),
)

func registerServerMux() *asynq.ServeMux {
	return asynq.NewServeMux()
}

type serverParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Mux       *asynq.ServeMux
	Policy    RetryPolicy `optional:"true"`
}

func registerAsynqServer(p serverParams) {
	cfg := p.Config
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency:    cfg.Worker.Concurrency,
			RetryDelayFunc: RetryDelayFunc(p.Policy),
			Queues: map[string]int{
				QueueCritical: 10,
				QueueDefault:  5,
				QueueLow:      3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				if retried >= maxRetry {
					zap.L().Error("asynq task permanently failed", zap.String("task_type", task.Type()), zap.Error(err))
					return
				}
				zap.L().Warn("asynq task failed, will be retried",
					zap.String("task_type", task.Type()),
					zap.Int("retried", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := server.Start(p.Mux); err != nil {
				zap.L().Error("[Asynq] Failed to start Asynq server", zap.Error(err))
				return err
			}
			zap.L().Info("[Asynq] Asynq server started", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}
