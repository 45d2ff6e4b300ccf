// Package postgres provides PostgreSQL storage for audit logs.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/sql-gateway/pkg/audit"
)

const (
	defaultRetentionDays = 90
	defaultQueryCapacity = 100
	maxQueryCapacity     = 10000
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// auditColumns lists columns in insert and scan order.
var auditColumns = []string{
	"id", "timestamp", "duration_ms", "request_id", "user_id",
	"backend", "kind", "category", "target", "dialect", "options",
	"cached", "success", "error_type", "error_message",
}

// Store implements audit.Logger using PostgreSQL.
type Store struct {
	db            *sql.DB
	retentionDays int
	logger        *slog.Logger
	cancel        context.CancelFunc
	done          chan struct{}
}

// Config configures the PostgreSQL audit store.
type Config struct {
	RetentionDays int
	Logger        *slog.Logger
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB, cfg Config) *Store {
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		db:            db,
		retentionDays: cfg.RetentionDays,
		logger:        cfg.Logger,
	}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event audit.Event) error {
	options, err := json.Marshal(event.Options)
	if err != nil || event.Options == nil {
		options = []byte("{}")
	}

	query, args, err := psq.Insert("audit_logs").
		Columns(auditColumns...).
		Values(
			event.ID,
			event.Timestamp,
			event.DurationMS,
			event.RequestID,
			event.UserID,
			event.Backend,
			event.Kind,
			event.Category,
			event.Target,
			event.Dialect,
			options,
			event.Cached,
			event.Success,
			event.ErrorType,
			event.ErrorMessage,
		).ToSql()
	if err != nil {
		return fmt.Errorf("building audit insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// applyAuditFilter adds filter conditions to a SELECT builder.
func applyAuditFilter(qb sq.SelectBuilder, filter audit.QueryFilter) sq.SelectBuilder {
	if filter.ID != "" {
		qb = qb.Where(sq.Eq{"id": filter.ID})
	}
	if filter.StartTime != nil {
		qb = qb.Where(sq.GtOrEq{"timestamp": *filter.StartTime})
	}
	if filter.EndTime != nil {
		qb = qb.Where(sq.LtOrEq{"timestamp": *filter.EndTime})
	}
	if filter.RequestID != "" {
		qb = qb.Where(sq.Eq{"request_id": filter.RequestID})
	}
	if filter.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Backend != "" {
		qb = qb.Where(sq.Eq{"backend": filter.Backend})
	}
	if filter.Kind != "" {
		qb = qb.Where(sq.Eq{"kind": filter.Kind})
	}
	if filter.Success != nil {
		qb = qb.Where(sq.Eq{"success": *filter.Success})
	}
	return qb
}

// Query retrieves audit events matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	qb := applyAuditFilter(psq.Select(auditColumns...).From("audit_logs"), filter)
	qb = qb.OrderBy("timestamp DESC")
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit)) // #nosec G115 -- checked positive
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset)) // #nosec G115 -- checked positive
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building audit query: %w", err)
	}

	return s.executeQuery(ctx, query, args, filter.Limit)
}

// Count returns the number of audit events matching the filter.
func (s *Store) Count(ctx context.Context, filter audit.QueryFilter) (int, error) {
	qb := applyAuditFilter(psq.Select("COUNT(*)").From("audit_logs"), filter)

	query, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting audit logs: %w", err)
	}
	return count, nil
}

func (s *Store) executeQuery(ctx context.Context, query string, args []any, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	allocCap := defaultQueryCapacity
	if limit > 0 && limit <= maxQueryCapacity {
		allocCap = limit
	}
	events := make([]audit.Event, 0, allocCap)

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log rows: %w", err)
	}

	return events, nil
}

func scanEvent(rows *sql.Rows) (audit.Event, error) {
	var event audit.Event
	var options []byte

	err := rows.Scan(
		&event.ID,
		&event.Timestamp,
		&event.DurationMS,
		&event.RequestID,
		&event.UserID,
		&event.Backend,
		&event.Kind,
		&event.Category,
		&event.Target,
		&event.Dialect,
		&options,
		&event.Cached,
		&event.Success,
		&event.ErrorType,
		&event.ErrorMessage,
	)
	if err != nil {
		return event, fmt.Errorf("scanning audit log row: %w", err)
	}

	if len(options) > 0 {
		_ = json.Unmarshal(options, &event.Options)
	}

	return event, nil
}

// Close cancels the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	return nil
}

// Cleanup removes audit logs older than the retention period and returns
// how many were deleted.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	query, args, err := psq.Delete("audit_logs").Where(sq.Lt{"timestamp": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building cleanup statement: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleaning up audit logs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// StartCleanupRoutine starts a background goroutine that periodically deletes
// old audit logs. The goroutine is stopped when Close is called.
func (s *Store) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Cleanup(ctx)
				if err != nil {
					s.logger.Warn("audit cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					s.logger.Info("audit cleanup removed old events", "count", n)
				}
			}
		}
	}()
}

// Verify interface compliance.
var _ audit.Logger = (*Store)(nil)

var _ audit.Reporter = (*Store)(nil)
