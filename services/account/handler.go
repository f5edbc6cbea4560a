package account

import (
	"net/http"

	"creatorpay/pkg/errutil"
	"creatorpay/pkg/httpapi"
	"creatorpay/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var HTTP = fx.Module("account.http",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(r httpapi.Router, h *Handler) {
	r.User.GET("/accounts/me/balance", h.MyBalance)

	admin := r.Admin.Group("/accounts")
	admin.PUT("/:userId", h.Link)
	admin.GET("/:userId/balance", h.UserBalance)
	admin.GET("/platform/balance", h.PlatformBalance)
}

type linkRequest struct {
	StripeConnectAccountID string `json:"stripe_connect_account_id" binding:"required"`
}

func (h *Handler) Link(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("stripe_connect_account_id is required", err))
		return
	}

	acct, err := h.svc.Link(c.Request.Context(), c.Param("userId"), req.StripeConnectAccountID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": acct})
}

func (h *Handler) MyBalance(c *gin.Context) {
	b, err := h.svc.Balance(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": b})
}

func (h *Handler) UserBalance(c *gin.Context) {
	b, err := h.svc.Balance(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": b})
}

func (h *Handler) PlatformBalance(c *gin.Context) {
	b, err := h.svc.PlatformBalance(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": b})
}
