package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const redacted = "[REDACTED]"

// NewEvent creates an audit event for a request against backendName.
func NewEvent(requestID, backendName string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		RequestID: requestID,
		Backend:   backendName,
	}
}

// WithUser adds the caller's identity to the event.
func (e *Event) WithUser(userID string) *Event {
	e.UserID = userID
	return e
}

// WithOperation adds the extracted statement shape to the event.
func (e *Event) WithOperation(kind, category, target string) *Event {
	e.Kind = kind
	e.Category = category
	e.Target = target
	return e
}

// WithDialect records which dialect accepted the statement.
func (e *Event) WithDialect(dialect string) *Event {
	e.Dialect = dialect
	return e
}

// WithOptions adds request options with sensitive values redacted.
func (e *Event) WithOptions(options map[string]any) *Event {
	e.Options = SanitizeOptions(options)
	return e
}

// WithResult adds the outcome to the event.
func (e *Event) WithResult(success, cached bool, errorType, errorMsg string, durationMS int64) *Event {
	e.Success = success
	e.Cached = cached
	e.ErrorType = errorType
	e.ErrorMessage = errorMsg
	e.DurationMS = durationMS
	return e
}

var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credentials",
}

// SanitizeOptions returns a copy of options with sensitive values replaced.
// Keys match case-insensitively on substrings, so "accessToken" is redacted.
func SanitizeOptions(options map[string]any) map[string]any {
	if options == nil {
		return nil
	}
	sanitized := make(map[string]any, len(options))
	for k, v := range options {
		if isSensitive(k) {
			sanitized[k] = redacted
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
