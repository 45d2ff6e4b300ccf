package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/sql-gateway/pkg/audit"
)

// defaultMetricsWindow is the default lookback when no time range is specified.
const defaultMetricsWindow = 24 * time.Hour

// defaultBreakdownLimit is the default number of breakdown entries returned.
const defaultBreakdownLimit = 10

// maxBreakdownLimit caps the number of breakdown entries.
const maxBreakdownLimit = 100

const successRateExpr = "CASE WHEN COUNT(*) > 0 THEN CAST(COUNT(*) FILTER (WHERE success = true) AS FLOAT) / COUNT(*) ELSE 0 END"

// clampBreakdownLimit applies default and max bounds to a breakdown limit.
func clampBreakdownLimit(limit int) int {
	if limit <= 0 {
		return defaultBreakdownLimit
	}
	if limit > maxBreakdownLimit {
		return maxBreakdownLimit
	}
	return limit
}

// Breakdown returns audit event counts grouped by a dimension.
func (s *Store) Breakdown(ctx context.Context, filter audit.BreakdownFilter) ([]audit.BreakdownEntry, error) {
	if !audit.ValidBreakdownDimensions[filter.GroupBy] {
		return nil, fmt.Errorf("invalid breakdown dimension: %q", filter.GroupBy)
	}

	start, end := defaultTimeRange(filter.StartTime, filter.EndTime)
	limit := clampBreakdownLimit(filter.Limit)

	// GroupBy is checked against ValidBreakdownDimensions above.
	dimensionExpr := fmt.Sprintf("COALESCE(%s, '') AS dimension", string(filter.GroupBy))

	qb := psq.Select(
		dimensionExpr,
		"COUNT(*) AS count",
		successRateExpr+" AS success_rate",
		"COALESCE(AVG(duration_ms), 0) AS avg_duration_ms",
	).From("audit_logs").
		Where(sq.GtOrEq{"timestamp": start}).
		Where(sq.LtOrEq{"timestamp": end}).
		GroupBy("dimension").
		OrderBy("count DESC").
		Limit(uint64(limit)) // #nosec G115 -- limit is clamped to [1, 100]

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building breakdown query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []audit.BreakdownEntry{}
	for rows.Next() {
		var entry audit.BreakdownEntry
		if err := rows.Scan(
			&entry.Dimension,
			&entry.Count,
			&entry.SuccessRate,
			&entry.AvgDurationMS,
		); err != nil {
			return nil, fmt.Errorf("scanning breakdown row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating breakdown rows: %w", err)
	}
	return entries, nil
}

// Overview returns aggregate statistics for the given time range.
func (s *Store) Overview(ctx context.Context, startTime, endTime *time.Time) (*audit.Overview, error) {
	start, end := defaultTimeRange(startTime, endTime)

	qb := psq.Select(
		"COUNT(*) AS total_calls",
		successRateExpr+" AS success_rate",
		"CASE WHEN COUNT(*) > 0 THEN CAST(COUNT(*) FILTER (WHERE cached = true) AS FLOAT) / COUNT(*) ELSE 0 END AS cache_hit_rate",
		"COALESCE(AVG(duration_ms), 0) AS avg_duration_ms",
		"COUNT(DISTINCT user_id) AS unique_users",
		"COUNT(DISTINCT backend) AS unique_backends",
		"COUNT(*) FILTER (WHERE success = false) AS error_count",
	).From("audit_logs").
		Where(sq.GtOrEq{"timestamp": start}).
		Where(sq.LtOrEq{"timestamp": end})

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building overview query: %w", err)
	}

	var o audit.Overview
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&o.TotalCalls,
		&o.SuccessRate,
		&o.CacheHitRate,
		&o.AvgDurationMS,
		&o.UniqueUsers,
		&o.UniqueBackends,
		&o.ErrorCount,
	)
	if err != nil {
		return nil, fmt.Errorf("querying overview: %w", err)
	}
	return &o, nil
}

// defaultTimeRange returns the start and end times, defaulting to the last 24h.
func defaultTimeRange(start, end *time.Time) (startTime, endTime time.Time) {
	now := time.Now()
	startTime = now.Add(-defaultMetricsWindow)
	endTime = now
	if start != nil {
		startTime = *start
	}
	if end != nil {
		endTime = *end
	}
	return startTime, endTime
}
