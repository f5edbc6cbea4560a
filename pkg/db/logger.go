package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// ZapGormLogger implements gorm.io/gorm/logger.Interface
type ZapGormLogger struct {
	Zap           *zap.Logger
	SlowThreshold time.Duration
	LogLevel      logger.LogLevel
	ShowSQL       bool
}

func NewZapGormLogger(z *zap.Logger, logLevel logger.LogLevel, showSQL bool) *ZapGormLogger {
	return &ZapGormLogger{
		Zap:           z,
		LogLevel:      logLevel,
		ShowSQL:       showSQL,
		SlowThreshold: 200 * time.Millisecond,
	}
}

func (l *ZapGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *ZapGormLogger) with(ctx context.Context) *zap.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return l.Zap
	}
	return l.Zap.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

func (l *ZapGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Info {
		l.with(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *ZapGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Warn {
		l.with(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *ZapGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Error {
		l.with(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *ZapGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	log := l.with(ctx)

	switch {
	// duplicate keys are expected on the earning and open-payout guards
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound) && !isDuplicate(err):
		log.Error("gorm.query",
			zap.String("file", utils.FileWithLineNum()),
			zap.Error(err),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
		)
	case elapsed > l.SlowThreshold && l.SlowThreshold != 0:
		log.Warn("gorm.slow_query",
			zap.String("file", utils.FileWithLineNum()),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
			zap.Duration("threshold", l.SlowThreshold),
		)
	case l.LogLevel == logger.Info && l.ShowSQL:
		log.Debug("gorm.query",
			zap.String("file", utils.FileWithLineNum()),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
		)
	}
}
