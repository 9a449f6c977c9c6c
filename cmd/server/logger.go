package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tariel-x/affiliates/internal/handlers"
	"github.com/tariel-x/affiliates/internal/telemetry"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/tariel-x/affiliates/cmd/server")

// tracing starts a span per request so spans from the engine nest under it.
func tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
	}
}

// requestLogger logs one line per API request. Failed admin authentication
// is logged at warn level, server errors at error level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := []any{
			"status", status,
			"method", c.Request.Method,
			"route", route,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, "query", q)
		}
		if adminID := c.GetString(handlers.AdminIDKey); adminID != "" {
			fields = append(fields, "admin_id", adminID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}
		if traceID := telemetry.TraceID(c.Request.Context()); traceID != "" {
			fields = append(fields, "trace_id", traceID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("api request", fields...)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			logger.Warn("api request rejected", fields...)
		default:
			logger.Debug("api request", fields...)
		}
	}
}

// newServerErrorLog routes net/http server errors into slog.
func newServerErrorLog(logger *slog.Logger) *log.Logger {
	return log.New(&serverErrorWriter{logger: logger}, "", 0)
}

// serverErrorWriter classifies net/http error lines. Handshakes for hosts
// other than DOMAIN are dropped and other handshake failures only show up
// at debug level.
type serverErrorWriter struct {
	logger *slog.Logger
}

func (w *serverErrorWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" || w.logger == nil {
		return len(p), nil
	}

	level := slog.LevelWarn
	if strings.Contains(msg, "TLS handshake error") {
		if strings.Contains(msg, "not configured") {
			return len(p), nil
		}
		level = slog.LevelDebug
	}
	w.logger.Log(context.Background(), level, "http server", "message", msg)
	return len(p), nil
}
