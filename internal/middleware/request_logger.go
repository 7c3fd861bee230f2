package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sjperalta/crm-api/pkg/logger"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const ctxRequestID = "requestID"

// maxLoggedQuery bounds the logged query string; filter JSON can be long.
const maxLoggedQuery = 512

var quietPaths = map[string]bool{
	"/api/v1/health": true,
	"/metrics":       true,
}

// RequestLogger tags each request with an id and logs it once it completes.
// Upload requests also log their declared body size.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		if quietPaths[path] {
			return
		}

		if len(query) > maxLoggedQuery {
			query = query[:maxLoggedQuery] + "..."
		}
		if query != "" {
			path += "?" + query
		}

		status := c.Writer.Status()
		attrs := []any{
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.Int("bytes", c.Writer.Size()),
		}
		if strings.HasPrefix(c.ContentType(), "multipart/") {
			attrs = append(attrs, slog.Int64("upload_bytes", c.Request.ContentLength))
		}
		if id := GetUserID(c); id != 0 {
			attrs = append(attrs, slog.Uint64("user_id", uint64(id)))
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			attrs = append(attrs, slog.String("error", errs))
		}

		switch {
		case status >= 500:
			logger.Log.Error("Request completed", attrs...)
		case status >= 400:
			logger.Log.Warn("Request completed", attrs...)
		default:
			logger.Log.Info("Request completed", attrs...)
		}
	}
}

// GetRequestID returns the id RequestLogger assigned to the request.
func GetRequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}
