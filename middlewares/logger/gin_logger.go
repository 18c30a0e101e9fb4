package logger_middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joy095/payouts/logger"
	"github.com/sirupsen/logrus"
)

// GinLogger logs one line per request through the shared logrus loggers.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if actorID, ok := c.Get("user_id"); ok {
			fields["actor_id"] = actorID
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.ErrorLogger.WithFields(fields).Error(c.Errors.String())
		case c.Writer.Status() >= 400:
			logger.WarnLogger.WithFields(fields).Warn("request rejected")
		default:
			logger.InfoLogger.WithFields(fields).Info("request served")
		}
	}
}
