package httpapi

import (
	"net/http"

	"creatorpay/pkg/config"
	"creatorpay/pkg/health"
	"creatorpay/pkg/middleware"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewEngine,
		NewRouter,
		fx.Annotate(NewHandler, fx.As(new(http.Handler))),
	),
	fx.Invoke(registerProbes),
)

const (
	pathLiveness  = "/healthz"
	pathReadiness = "/readyz"
	pathMetrics   = "/metrics"
)

// Router holds the route groups services register on. User routes require a
// caller identity; admin routes additionally pass the access control policy.
type Router struct {
	User  *gin.RouterGroup
	Admin *gin.RouterGroup
}

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.Logger(pathLiveness, pathReadiness, pathMetrics),
		middleware.Error(),
	)
	return r
}

func NewRouter(r *gin.Engine, e *casbin.Enforcer) Router {
	v1 := r.Group("/v1", middleware.Authenticate())
	return Router{
		User:  v1,
		Admin: v1.Group("/admin", middleware.Authorize(e)),
	}
}

func NewHandler(r *gin.Engine) *gin.Engine {
	return r
}

func registerProbes(r *gin.Engine, h health.HealthService) {
	r.GET(pathLiveness, h.Liveness)
	r.GET(pathReadiness, h.Readiness)
	r.GET(pathMetrics, gin.WrapH(promhttp.Handler()))
}
