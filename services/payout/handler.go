package payout

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
	user := r.User.Group("/payouts")
	user.GET("/me", h.Mine)
	user.GET("/:id", h.Get)
	user.GET("/:id/logs", h.Logs)

	admin := r.Admin.Group("/payouts")
	admin.GET("", h.List)
	admin.GET("/stats", h.Stats)
	admin.GET("/logs", h.AllLogs)
	admin.POST("/batches", h.TriggerBatch)
	admin.GET("/batches/:batchId", h.Batch)
	admin.GET("/batches/:batchId/stats", h.BatchStats)
	admin.POST("/retry-failed", h.RetryDue)
	admin.POST("/:id/cancel", h.Cancel)
	admin.POST("/:id/retry", h.Retry)

	r.Admin.GET("/users/:userId/payouts", h.ForUser)
}

func (h *Handler) Mine(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	rows, err := h.svc.ListForUser(c.Request.Context(), middleware.CurrentUser(c), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (h *Handler) Get(c *gin.Context) {
	p, err := h.svc.GetForUser(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}

func (h *Handler) Logs(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.svc.GetForUser(ctx, c.Param("id"), middleware.CurrentUser(c)); err != nil {
		_ = c.Error(err)
		return
	}

	logs, err := h.svc.Logs(ctx, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}

func (h *Handler) List(c *gin.Context) {
	req := ListRequest{Status: Status(c.Query("status"))}
	req.Limit, _ = strconv.Atoi(c.Query("limit"))
	req.Offset, _ = strconv.Atoi(c.Query("offset"))

	rows, total, err := h.svc.List(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "total": total})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (h *Handler) AllLogs(c *gin.Context) {
	f := LogFilter{Level: Level(c.Query("level")), Action: Action(c.Query("action"))}
	f.Limit, _ = strconv.Atoi(c.Query("limit"))

	logs, err := h.svc.audit.List(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}

func (h *Handler) TriggerBatch(c *gin.Context) {
	batchID, err := h.svc.TriggerBatch(c.Request.Context(), "manual")
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"batch_id": batchID}})
}

func (h *Handler) Batch(c *gin.Context) {
	rows, err := h.svc.ListBatch(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (h *Handler) BatchStats(c *gin.Context) {
	stats, err := h.svc.BatchStats(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (h *Handler) RetryDue(c *gin.Context) {
	n, err := h.svc.RetryDuePayouts(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"enqueued": n}})
}

func (h *Handler) Cancel(c *gin.Context) {
	p, err := h.svc.CancelPayout(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}

func (h *Handler) Retry(c *gin.Context) {
	p, err := h.svc.ForceRetry(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}

func (h *Handler) ForUser(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		_ = c.Error(errutil.BadRequest("userId is required", nil))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	rows, err := h.svc.ListForUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}
