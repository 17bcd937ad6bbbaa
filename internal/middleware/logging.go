// Package middleware provides request context, identity, tracing and rate
// limiting middleware for the HTTP API.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"pawfeed/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Fiber locals set by this package.
const (
	LocalRequestID = "requestid"
	LocalViewerID  = "viewerID"
	LocalTraceID   = "traceID"
)

// ContextMiddleware copies request id, viewer id and trace id from Fiber locals
// into the request context so the context-aware logger picks them up in the
// service layers.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if rid, ok := c.Locals(LocalRequestID).(string); ok && rid != "" {
			ctx = context.WithValue(ctx, observability.RequestIDKey, rid)
		}
		if vid, ok := c.Locals(LocalViewerID).(string); ok && vid != "" {
			ctx = observability.WithViewerID(ctx, vid)
		}
		if tid, ok := c.Locals(LocalTraceID).(string); ok && tid != "" {
			ctx = context.WithValue(ctx, observability.TraceIDKey, tid)
		}

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger returns a Fiber middleware for logging requests using slog
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		fields := []any{
			slog.Int("status", c.Response().StatusCode()),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Get("User-Agent")),
		}

		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
			observability.Logger.ErrorContext(c.UserContext(), "request failed", fields...)
		} else {
			observability.Logger.InfoContext(c.UserContext(), "request processed", fields...)
		}

		return err
	}
}
