package middleware

import (
	"time"

	"smallbiznis-picks/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(RequestIDKey)),
		}

		zapLog := logger.FromContext(c.Request.Context())
		if c.Writer.Status() >= 500 {
			zapLog.Error("http request", fields...)
			return
		}
		zapLog.Info("http request", fields...)
	}
}
