package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"creatorpay/pkg/config"
	"creatorpay/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	e, err := NewEnforcer(config.Default())
	require.NoError(t, err)

	r := gin.New()
	r.Use(Error())
	r.GET("/v1/payouts/me", Authenticate(), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c))
	})
	admin := r.Group("/v1/admin", Authenticate(), Authorize(e))
	admin.GET("/payouts", func(c *gin.Context) { c.Status(http.StatusOK) })
	admin.POST("/payouts/:id/cancel", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errors.New("db down")) })
	r.GET("/missing", func(c *gin.Context) { _ = c.Error(errutil.NotFound("Payout not found", nil)) })
	return r
}

func do(r http.Handler, method, path, user, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodGet, "/v1/payouts/me", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/v1/payouts/me", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user-1", w.Body.String())
}

func TestAuthorize(t *testing.T) {
	r := newRouter(t)

	require.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/v1/admin/payouts", "u", "user").Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/admin/payouts", "u", "admin").Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/v1/admin/payouts/1/cancel", "u", "super_admin").Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/admin/payouts", "u", "support").Code)
	require.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/v1/admin/payouts/1/cancel", "u", "support").Code)
}

func TestErrorRendering(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodGet, "/boom", "", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "db down")

	w = do(r, http.MethodGet, "/missing", "", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "Payout not found")
}
