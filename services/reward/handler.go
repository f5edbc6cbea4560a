package reward

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
	rewards := r.User.Group("/rewards")
	rewards.POST("/views", h.RecordView)
	rewards.GET("/earnings", h.Earnings)
	rewards.GET("/videos/:videoId/pool", h.VideoPool)
	rewards.GET("/stats", h.Stats)
	rewards.GET("/top-earners", h.TopEarners)

	r.Admin.POST("/rewards/pools", h.FundPool)
}

type RecordViewRequest struct {
	VideoID              string  `json:"video_id" binding:"required"`
	WatchDurationSeconds float64 `json:"watch_duration_seconds" binding:"gte=0"`
}

func (h *Handler) RecordView(c *gin.Context) {
	var req RecordViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	res, err := h.svc.RecordQualifyingView(c.Request.Context(), middleware.CurrentUser(c), req.VideoID, req.WatchDurationSeconds)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) Earnings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := h.svc.GetUserEarnings(c.Request.Context(), middleware.CurrentUser(c), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) VideoPool(c *gin.Context) {
	res, err := h.svc.GetVideoRewardPool(c.Request.Context(), c.Param("videoId"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) Stats(c *gin.Context) {
	res, err := h.svc.GetGlobalStats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) TopEarners(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := h.svc.GetTopEarners(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) FundPool(c *gin.Context) {
	var req FundPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	pool, err := h.svc.FundPool(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": pool})
}
