package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Logger writes one line per request. Probes are skipped.
func Logger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if _, ok := skipped[c.Request.URL.Path]; ok {
			return
		}

		span := trace.SpanFromContext(c.Request.Context())
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
		}
		if uid := CurrentUser(c); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}

		switch {
		case c.Writer.Status() >= 500:
			zap.L().Error("request", fields...)
		case c.Writer.Status() >= 400:
			zap.L().Warn("request", fields...)
		default:
			zap.L().Info("request", fields...)
		}
	}
}
