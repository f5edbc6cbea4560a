package middleware

import (
	"errors"
	"net/http"

	"creatorpay/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached by a handler. BaseError values keep
// their status; anything else becomes a 500 without leaking the cause.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var v errutil.BaseError
		if errors.As(last.Err, &v) {
			c.JSON(v.Code.HTTPStatus(), v.JSON())
			return
		}

		zap.L().Error("unhandled request error",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(last.Err),
		)
		c.JSON(http.StatusInternalServerError, errutil.BaseError{
			Code:    errutil.StatusInternal,
			Message: "internal server error",
		}.JSON())
	}
}
