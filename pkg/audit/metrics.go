package audit

import (
	"context"
	"time"
)

// BreakdownDimension defines valid group-by dimensions.
type BreakdownDimension string

const (
	// BreakdownByBackend groups by backend name.
	BreakdownByBackend BreakdownDimension = "backend"

	// BreakdownByKind groups by statement kind.
	BreakdownByKind BreakdownDimension = "kind"

	// BreakdownByUserID groups by user ID.
	BreakdownByUserID BreakdownDimension = "user_id"

	// BreakdownByErrorType groups by error type.
	BreakdownByErrorType BreakdownDimension = "error_type"
)

// ValidBreakdownDimensions is the set of allowed group-by values.
var ValidBreakdownDimensions = map[BreakdownDimension]bool{
	BreakdownByBackend:   true,
	BreakdownByKind:      true,
	BreakdownByUserID:    true,
	BreakdownByErrorType: true,
}

// BreakdownFilter controls breakdown query parameters.
type BreakdownFilter struct {
	GroupBy   BreakdownDimension
	Limit     int
	StartTime *time.Time
	EndTime   *time.Time
}

// BreakdownEntry holds aggregated stats for a single dimension value.
type BreakdownEntry struct {
	Dimension     string  `json:"dimension"`
	Count         int     `json:"count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Overview holds aggregate statistics for the audit log.
type Overview struct {
	TotalCalls     int     `json:"total_calls"`
	SuccessRate    float64 `json:"success_rate"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	AvgDurationMS  float64 `json:"avg_duration_ms"`
	UniqueUsers    int     `json:"unique_users"`
	UniqueBackends int     `json:"unique_backends"`
	ErrorCount     int     `json:"error_count"`
}

// Reporter aggregates stored events. Loggers that cannot read back their
// events do not implement it.
type Reporter interface {
	Breakdown(ctx context.Context, filter BreakdownFilter) ([]BreakdownEntry, error)
	Overview(ctx context.Context, startTime, endTime *time.Time) (*Overview, error)
}
