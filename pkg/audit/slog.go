package audit

import (
	"context"
	"errors"
	"log/slog"
)

// ErrQueryUnsupported is returned by loggers that cannot read back events.
var ErrQueryUnsupported = errors.New("audit logger does not support queries")

// SlogLogger writes audit events as structured log records.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a logger that writes to logger, or slog.Default()
// when nil.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// Log writes event at info level, or warn level for failures.
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, "audit",
		slog.String("audit_id", event.ID),
		slog.Time("timestamp", event.Timestamp),
		slog.String("request_id", event.RequestID),
		slog.String("user_id", event.UserID),
		slog.String("backend", event.Backend),
		slog.String("kind", event.Kind),
		slog.String("category", event.Category),
		slog.String("target", event.Target),
		slog.Bool("cached", event.Cached),
		slog.Bool("success", event.Success),
		slog.String("error_type", event.ErrorType),
		slog.Int64("duration_ms", event.DurationMS),
	)
	return nil
}

// Query is not supported; log records are write-only.
func (*SlogLogger) Query(context.Context, QueryFilter) ([]Event, error) {
	return nil, ErrQueryUnsupported
}

// Close is a no-op.
func (*SlogLogger) Close() error { return nil }

// NoopLogger discards events.
type NoopLogger struct{}

// Log discards event.
func (NoopLogger) Log(context.Context, Event) error { return nil }

// Query returns no events.
func (NoopLogger) Query(context.Context, QueryFilter) ([]Event, error) { return []Event{}, nil }

// Close is a no-op.
func (NoopLogger) Close() error { return nil }

var (
	_ Logger = (*SlogLogger)(nil)
	_ Logger = NoopLogger{}
)
