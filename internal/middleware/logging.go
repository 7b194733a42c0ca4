package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/threatflux/depAuditGoMCP/internal/utils"
)

// RequestIDHeader carries the request identifier in both directions
const RequestIDHeader = "X-Request-ID"

// HTTPRecorder records per-request metrics
type HTTPRecorder interface {
	ObserveHTTPRequest(method, path, status string, duration time.Duration)
}

// LoggingMiddleware logs HTTP requests and responses
type LoggingMiddleware struct {
	logger     *logrus.Logger
	recorder   HTTPRecorder
	logHeaders bool
	skipPaths  map[string]bool
}

// LoggingOption configures the logging middleware
type LoggingOption func(*LoggingMiddleware)

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger *logrus.Logger, opts ...LoggingOption) *LoggingMiddleware {
	m := &LoggingMiddleware{
		logger:    logger,
		skipPaths: make(map[string]bool),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithHeaderLogging enables logging of request headers
func WithHeaderLogging(enabled bool) LoggingOption {
	return func(m *LoggingMiddleware) {
		m.logHeaders = enabled
	}
}

// WithRecorder reports every request to recorder
func WithRecorder(recorder HTTPRecorder) LoggingOption {
	return func(m *LoggingMiddleware) {
		m.recorder = recorder
	}
}

// WithSkipPaths suppresses log lines for noisy paths such as health probes.
// Metrics are still recorded.
func WithSkipPaths(paths ...string) LoggingOption {
	return func(m *LoggingMiddleware) {
		for _, p := range paths {
			m.skipPaths[p] = true
		}
	}
}

// Logger returns a gin middleware function for logging requests
func (m *LoggingMiddleware) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		// Route templates keep label cardinality bounded
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if m.recorder != nil {
			m.recorder.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(statusCode), latency)
		}

		if m.skipPaths[path] {
			return
		}

		fields := logrus.Fields{
			"status":     statusCode,
			"latency":    latency.String(),
			"client_ip":  utils.GetClientIP(c),
			"method":     c.Request.Method,
			"path":       path,
			"route":      route,
			"request_id": c.GetString("request_id"),
			"user_agent": c.Request.UserAgent(),
		}
		if subject := c.GetString(subjectKey); subject != "" {
			fields["subject"] = subject
		}

		if m.logHeaders {
			headers := make(map[string][]string, len(c.Request.Header))
			for k, v := range c.Request.Header {
				if k == "Authorization" || k == "Cookie" {
					headers[k] = []string{"[REDACTED]"}
					continue
				}
				headers[k] = v
			}
			fields["request_headers"] = headers
		}

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			fields["error"] = errorMessage
		}

		entry := m.logger.WithFields(fields)
		switch {
		case statusCode >= 500:
			entry.Error("Request processed with error")
		case statusCode >= 400:
			entry.Warn("Request processed with warning")
		default:
			entry.Info("Request processed")
		}
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = utils.GenerateRequestID()
		}

		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}
