package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
)

const requestIDHeader = "X-Request-ID"

// requestContext assigns a request id and puts a request-scoped logger into
// the request context.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		logger := s.logger.With("request_id", id)
		c.Request = c.Request.WithContext(ctxlog.WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}

// observe logs and measures every request after it is handled.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		s.metrics.ObserveRequest(c.FullPath(), c.Request.Method, status, elapsed)
		ctxlog.FromContext(c.Request.Context()).Debug("Request handled.",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed)
	}
}
