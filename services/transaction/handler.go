package transaction

import (
	"net/http"

	"creatorpay/pkg/db/pagination"
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
	r.User.GET("/transactions", h.Mine)
	r.Admin.GET("/users/:userId/transactions", h.ForUser)
}

type listQuery struct {
	Type Type `form:"type"`
	pagination.Pagination
}

// Mine lists the caller's own history, newest first.
func (h *Handler) Mine(c *gin.Context) {
	h.list(c, middleware.CurrentUser(c))
}

func (h *Handler) ForUser(c *gin.Context) {
	h.list(c, c.Param("userId"))
}

func (h *Handler) list(c *gin.Context, userID string) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}
	if q.Type != "" && !q.Type.IsValid() {
		_ = c.Error(errutil.BadRequest("invalid transaction type: "+q.Type.String(), nil))
		return
	}

	rows, page, err := h.svc.List(c.Request.Context(), ListRequest{UserID: userID, Type: q.Type, Pagination: q.Pagination})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "page_info": page})
}
