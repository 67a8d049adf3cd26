package routes

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/ride-realtime/internal/observability"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags each request with an id, reusing the caller's when present
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Observability records request metrics and logs each request
func Observability(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		elapsed := time.Since(start)

		observability.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		observability.HTTPRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(elapsed.Seconds())

		log.Debug("http_request",
			logger.String("method", c.Request.Method),
			logger.String("route", route),
			logger.Int("status", c.Writer.Status()),
			logger.Int64("duration_ms", elapsed.Milliseconds()),
			logger.String("request_id", c.GetString("request_id")),
		)
	}
}
