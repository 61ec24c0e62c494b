package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	memberIDKey  contextKey = "member_id"
	clubIDKey    contextKey = "club_id"
)

var logger *slog.Logger

// InitLogger initializes the global structured logger writing to stdout
func InitLogger(level, format string) {
	InitLoggerTo(os.Stdout, level, format)
}

// InitLoggerTo is InitLogger with an explicit destination.
func InitLoggerTo(w io.Writer, level, format string) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: level == "debug",
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger = slog.New(handler).With(slog.String("service", "club-chat"))
	slog.SetDefault(logger)
}

// FromContext returns a logger with the request, member and club attached
func FromContext(ctx context.Context) *slog.Logger {
	base := logger
	if base == nil {
		base = slog.Default()
	}

	attrs := make([]any, 0, 3)

	if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}

	if memberID, ok := ctx.Value(memberIDKey).(string); ok && memberID != "" {
		attrs = append(attrs, slog.String("member_id", memberID))
	}

	if clubID, ok := ctx.Value(clubIDKey).(int64); ok {
		attrs = append(attrs, slog.String("club_id", strconv.FormatInt(clubID, 10)))
	}

	if len(attrs) > 0 {
		return base.With(attrs...)
	}
	return base
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithMemberID adds the authenticated member to context
func WithMemberID(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, memberIDKey, memberID)
}

// WithClubID tags context with the club a request operates on
func WithClubID(ctx context.Context, clubID int64) context.Context {
	return context.WithValue(ctx, clubIDKey, clubID)
}

func parseLevel(level string) slog.Level {
	switch level {
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

func current() *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// Info logs at info level
func Info(msg string, args ...any) { current().Info(msg, args...) }

// Error logs at error level
func Error(msg string, args ...any) { current().Error(msg, args...) }

// Warn logs at warn level
func Warn(msg string, args ...any) { current().Warn(msg, args...) }

// Debug logs at debug level
func Debug(msg string, args ...any) { current().Debug(msg, args...) }
