package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sql-gateway/pkg/audit"
)

func TestBreakdown_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	now := time.Now()
	start := now.Add(-24 * time.Hour)

	rows := sqlmock.NewRows([]string{"dimension", "count", "success_rate", "avg_duration_ms"}).
		AddRow("main", 50, 0.96, 45.2).
		AddRow("events", 30, 1.0, 20.1)

	mock.ExpectQuery(`SELECT COALESCE\(backend, ''\) AS dimension`).
		WithArgs(start, now).
		WillReturnRows(rows)

	result, err := store.Breakdown(context.Background(), audit.BreakdownFilter{
		GroupBy:   audit.BreakdownByBackend,
		StartTime: &start,
		EndTime:   &now,
	})

	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "main", result[0].Dimension)
	assert.Equal(t, 50, result[0].Count)
	assert.InDelta(t, 0.96, result[0].SuccessRate, 0.01)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBreakdown_InvalidDimension(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = New(db, Config{}).Breakdown(context.Background(), audit.BreakdownFilter{
		GroupBy: "target; DROP TABLE audit_logs",
	})
	assert.ErrorContains(t, err, "invalid breakdown dimension")
}

func TestBreakdown_Limits(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  string
	}{
		{"default", 0, "LIMIT 10"},
		{"custom", 25, "LIMIT 25"},
		{"capped", 1000, "LIMIT 100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			mock.ExpectQuery(tt.want).
				WillReturnRows(sqlmock.NewRows([]string{"dimension", "count", "success_rate", "avg_duration_ms"}))

			entries, err := New(db, Config{}).Breakdown(context.Background(), audit.BreakdownFilter{
				GroupBy: audit.BreakdownByKind,
				Limit:   tt.limit,
			})
			require.NoError(t, err)
			assert.NotNil(t, entries)
			assert.Empty(t, entries)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBreakdown_AllDimensions(t *testing.T) {
	for dim := range audit.ValidBreakdownDimensions {
		t.Run(string(dim), func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			mock.ExpectQuery("COALESCE\\(" + string(dim)).
				WillReturnRows(sqlmock.NewRows([]string{"dimension", "count", "success_rate", "avg_duration_ms"}))

			_, err = New(db, Config{}).Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: dim})
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBreakdown_Errors(t *testing.T) {
	t.Run("query", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery("SELECT").WillReturnError(errors.New("boom"))
		_, err = New(db, Config{}).Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: audit.BreakdownByKind})
		assert.ErrorContains(t, err, "querying breakdown")
	})

	t.Run("scan", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery("SELECT").WillReturnRows(
			sqlmock.NewRows([]string{"dimension", "count", "success_rate", "avg_duration_ms"}).
				AddRow("select", "not-a-number", 1.0, 1.0))
		_, err = New(db, Config{}).Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: audit.BreakdownByKind})
		assert.ErrorContains(t, err, "scanning breakdown row")
	})
}

func TestOverview_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	now := time.Now()
	start := now.Add(-24 * time.Hour)

	rows := sqlmock.NewRows([]string{
		"total_calls", "success_rate", "cache_hit_rate", "avg_duration_ms",
		"unique_users", "unique_backends", "error_count",
	}).AddRow(100, 0.95, 0.4, 35.5, 5, 3, 5)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(start, now).
		WillReturnRows(rows)

	result, err := store.Overview(context.Background(), &start, &now)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 100, result.TotalCalls)
	assert.InDelta(t, 0.95, result.SuccessRate, 0.01)
	assert.InDelta(t, 0.4, result.CacheHitRate, 0.01)
	assert.InDelta(t, 35.5, result.AvgDurationMS, 0.01)
	assert.Equal(t, 5, result.UniqueUsers)
	assert.Equal(t, 3, result.UniqueBackends)
	assert.Equal(t, 5, result.ErrorCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverview_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("boom"))
	_, err = New(db, Config{}).Overview(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "querying overview")
}

func TestDefaultTimeRange(t *testing.T) {
	t.Run("both nil", func(t *testing.T) {
		before := time.Now()
		s, e := defaultTimeRange(nil, nil)
		after := time.Now()

		assert.False(t, e.Before(before))
		assert.False(t, e.After(after))
		assert.WithinDuration(t, before.Add(-defaultMetricsWindow), s, time.Second)
	})

	t.Run("with values", func(t *testing.T) {
		start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

		s, e := defaultTimeRange(&start, &end)
		assert.Equal(t, start, s)
		assert.Equal(t, end, e)
	})
}
