// Package audit records every executed request for later review.
package audit

import (
	"context"
	"time"
)

// Logger defines the interface for audit logging.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event Event) error

	// Query retrieves audit events matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Close releases resources.
	Close() error
}

// Event represents one executed request.
type Event struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	DurationMS   int64          `json:"duration_ms"`
	RequestID    string         `json:"request_id"`
	UserID       string         `json:"user_id"`
	Backend      string         `json:"backend"`
	Kind         string         `json:"kind,omitempty"`
	Category     string         `json:"category,omitempty"`
	Target       string         `json:"target,omitempty"`
	Dialect      string         `json:"dialect,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
	Cached       bool           `json:"cached"`
	Success      bool           `json:"success"`
	ErrorType    string         `json:"error_type,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// QueryFilter defines criteria for querying audit events.
type QueryFilter struct {
	ID        string
	StartTime *time.Time
	EndTime   *time.Time
	RequestID string
	UserID    string
	Backend   string
	Kind      string
	Success   *bool
	Limit     int
	Offset    int
}

// Config configures audit logging.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Store is "log" or "postgres". The postgres store needs the
	// database section.
	Store         string        `yaml:"store"`
	RetentionDays int           `yaml:"retention_days"`
	CleanupEvery  time.Duration `yaml:"cleanup_interval"`
}

// Store names.
const (
	StoreLog      = "log"
	StorePostgres = "postgres"
)
