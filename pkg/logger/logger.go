package logger

import (
	"creatorpay/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg *config.Config
}

func productionConfig() zap.Config {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"
	config.EncoderConfig.LevelKey = "severity"
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	config.Encoding = "json"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	return config
}

// New builds the process logger and installs it as the zap global, which is
// what services log through.
func New(p ConfigParams) *zap.Logger {
	log := zap.Must(zap.NewDevelopment())
	if p.Cfg != nil && p.Cfg.AppEnv == "production" {
		log = zap.Must(productionConfig().Build())
	}

	if p.Cfg != nil {
		log = log.With(
			zap.String("env", p.Cfg.AppEnv),
			zap.String("service_name", p.Cfg.AppName),
			zap.String("version", p.Cfg.AppVersion),
		)
	}

	zap.ReplaceGlobals(log)

	return log
}
