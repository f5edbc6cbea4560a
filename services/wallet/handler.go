package wallet

import (
	"net/http"
	"strconv"

	"creatorpay/pkg/errutil"
	"creatorpay/pkg/httpapi"
	"creatorpay/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(r httpapi.Router, h *Handler) {
	r.User.GET("/wallet", h.Me)

	admin := r.Admin.Group("/wallets")
	admin.GET("", h.List)
	admin.POST("/:userId/lock", h.Lock)
	admin.POST("/:userId/unlock", h.Unlock)
}

// Me opens an empty wallet on first visit.
func (h *Handler) Me(c *gin.Context) {
	w, err := h.svc.Create(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": w})
}

func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if v := c.Query("locked"); v != "" {
		locked, err := strconv.ParseBool(v)
		if err != nil {
			_ = c.Error(errutil.BadRequest("locked must be a boolean", err))
			return
		}
		req.Locked = &locked
	}
	req.Limit, _ = strconv.Atoi(c.Query("limit"))
	req.Offset, _ = strconv.Atoi(c.Query("offset"))

	rows, total, err := h.svc.List(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "total": total})
}

type lockRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) Lock(c *gin.Context) {
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("reason is required", err))
		return
	}

	w, err := h.svc.Lock(c.Request.Context(), c.Param("userId"), req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": w})
}

func (h *Handler) Unlock(c *gin.Context) {
	w, err := h.svc.Unlock(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": w})
}
