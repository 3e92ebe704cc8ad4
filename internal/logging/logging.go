// Package logging builds the process logger and carries request-scoped
// loggers through contexts.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"schedai/internal/agent"
	"schedai/internal/extract"
	"schedai/internal/gemini"
	"schedai/internal/google"
	"schedai/internal/tasks"
	"schedai/internal/userlock"
)

// New returns a text logger writing to w at the named level.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps debug, warn and error to their slog level; anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type contextKey struct{}

// ContextWithLogger returns a derived context that carries the provided logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a logger previously attached to the context, or
// returns fallback.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
			return logger
		}
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// ErrorKind maps the domain errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		incomplete *extract.IncompleteExtractionError
		malformed  *extract.MalformedResponseError
		planning   *agent.PlanningError
		upstream   *gemini.UpstreamError
		transport  *gemini.TransportError
		calendar   *google.UpstreamError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &incomplete):
		return "incomplete_extraction"
	case errors.As(err, &malformed):
		return "malformed_response"
	case errors.As(err, &planning):
		return "planning"
	case errors.As(err, &upstream):
		return "upstream"
	case errors.As(err, &transport):
		return "transport"
	case errors.As(err, &calendar):
		return "calendar"
	case errors.Is(err, tasks.ErrNotFound):
		return "not_found"
	case errors.Is(err, agent.ErrNoTasks):
		return "no_tasks"
	case errors.Is(err, userlock.ErrInProgress):
		return "in_progress"
	}
	return "unexpected"
}
