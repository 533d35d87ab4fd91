package middleware

import (
	"errors"
	"net/http"

	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached with c.Error. errutil errors keep
// their status; anything else is a 500 with a generic body.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			if be.Code.Retryable() {
				c.Header("Retry-After", "1")
			}
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		logger.FromContext(c.Request.Context()).Error("unhandled request error",
			zap.String("path", c.FullPath()),
			zap.Error(last.Err),
		)
		c.JSON(http.StatusInternalServerError, errutil.BaseError{
			Code:    errutil.StatusInternal,
			Message: "internal error",
		}.JSON())
	}
}
