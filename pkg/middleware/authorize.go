package middleware

import (
	"creatorpay/pkg/config"
	"creatorpay/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var AccessControl = fx.Module("access_control",
	fx.Provide(NewEnforcer),
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// defaultPolicies grant the admin surface to the admin role. Support staff
// may read but not mutate.
var defaultPolicies = [][]string{
	{"admin", "/v1/admin/*", "GET|POST|PUT|DELETE"},
	{"support", "/v1/admin/*", "GET"},
}

var defaultGroupings = [][]string{
	{"super_admin", "admin"},
}

// NewEnforcer loads the model and policy files from config, or the built-in
// role model when none are configured.
func NewEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	if cfg.AccessControl.Model != "" && cfg.AccessControl.Policy != "" {
		return casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
	}

	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	if _, err := e.AddPolicies(defaultPolicies); err != nil {
		return nil, err
	}
	if _, err := e.AddGroupingPolicies(defaultGroupings); err != nil {
		return nil, err
	}

	return e, nil
}

// Authorize checks the caller's role against the route being served. It must
// run after Authenticate.
func Authorize(e *casbin.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(HeaderUserID)
		if !ok {
			_ = c.Error(errutil.Unauthorized("missing caller identity", nil))
			c.Abort()
			return
		}
		id := v.(Identity)

		allowed, err := e.Enforce(id.Role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			zap.L().Error("authorization check failed", zap.String("role", id.Role), zap.Error(err))
			_ = c.Error(errutil.Internal("authorization check failed", err))
			c.Abort()
			return
		}

		if !allowed {
			zap.L().Warn("access denied",
				zap.String("user_id", id.UserID),
				zap.String("role", id.Role),
				zap.String("path", c.Request.URL.Path),
			)
			_ = c.Error(errutil.Forbidden("You do not have access to this resource", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
