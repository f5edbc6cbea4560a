package health

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
	// Check pings every dependency. Used by the gRPC health server as well.
	Check(ctx context.Context) *Health
}

type health struct {
	db    *gorm.DB
	redis *redis.Client
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:    p.DB,
		redis: p.Redis,
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  statusHealthy,
		Message: "OK",
	})
}

func (h *health) Readiness(c *gin.Context) {
	res := h.Check(c.Request.Context())
	code := http.StatusOK
	if res.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, res)
}

func (h *health) Check(ctx context.Context) *Health {
	this := &Health{
		Status:  statusHealthy,
		Message: "OK",
		Deps:    make([]Dependency, 0, 2),
	}

	if h.db != nil {
		dep := Dependency{Name: h.db.Name(), Status: statusHealthy, Message: "OK"}
		sql, err := h.db.DB()
		if err == nil {
			err = sql.PingContext(ctx)
		}
		if err != nil {
			dep.Status = statusUnhealthy
			dep.Message = err.Error()
		}
		this.Deps = append(this.Deps, dep)
	}

	if h.redis != nil {
		dep := Dependency{Name: "redis", Status: statusHealthy, Message: "OK"}
		if err := h.redis.Ping(ctx).Err(); err != nil {
			dep.Status = statusUnhealthy
			dep.Message = err.Error()
		}
		this.Deps = append(this.Deps, dep)
	}

	for _, dep := range this.Deps {
		if dep.Status != statusHealthy {
			this.Status = statusUnhealthy
			this.Message = dep.Name + " is unavailable"
			break
		}
	}

	return this
}
