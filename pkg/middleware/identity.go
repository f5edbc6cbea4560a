package middleware

import (
	"context"
	"strings"

	"creatorpay/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	RoleUser = "user"
)

type identityKey struct{}

// Identity carries the caller as asserted by the upstream gateway.
type Identity struct {
	UserID string
	Role   string
}

// Authenticate reads the identity headers set by the gateway in front of
// this service and rejects requests without a user id.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			_ = c.Error(errutil.Unauthorized("missing caller identity", nil))
			c.Abort()
			return
		}

		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole)))
		if role == "" {
			role = RoleUser
		}

		id := Identity{UserID: userID, Role: role}
		c.Set(HeaderUserID, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), identityKey{}, id))
		c.Next()
	}
}

// FromContext returns the identity stored by Authenticate.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// CurrentUser returns the caller's user id, or "" outside Authenticate.
func CurrentUser(c *gin.Context) string {
	if v, ok := c.Get(HeaderUserID); ok {
		return v.(Identity).UserID
	}
	return ""
}
