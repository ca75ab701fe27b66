package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/obsrv/monitor/internal/models"
)

// SQLiteCrawlLogRepository implements CrawlLogRepository for SQLite/libsql.
type SQLiteCrawlLogRepository struct {
	db *sql.DB
}

// NewSQLiteCrawlLogRepository creates a new SQLite crawl log repository.
func NewSQLiteCrawlLogRepository(db *sql.DB) *SQLiteCrawlLogRepository {
	return &SQLiteCrawlLogRepository{db: db}
}

const crawlLogColumns = `id, website_id, started_at, completed_at, duration_seconds, status,
	products_processed, changes_detected, errors_count, error_details, retry_count, triggered_by`

func (r *SQLiteCrawlLogRepository) Create(ctx context.Context, l *models.CrawlExecutionLog) error {
	query := `
		INSERT INTO crawl_execution_logs (` + crawlLogColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.WebsiteID, l.StartedAt.Format(time.RFC3339), nullTime(l.CompletedAt),
		nullFloat(l.DurationSeconds), string(l.Status), l.ProductsProcessed, l.ChangesDetected,
		l.ErrorsCount, nullStringPtr(l.ErrorDetails), l.RetryCount, string(l.TriggeredBy),
	)
	if err != nil {
		return fmt.Errorf("failed to create crawl log: %w", err)
	}
	return nil
}

func (r *SQLiteCrawlLogRepository) GetByID(ctx context.Context, id string) (*models.CrawlExecutionLog, error) {
	query := `SELECT ` + crawlLogColumns + ` FROM crawl_execution_logs WHERE id = ?`
	return r.scanCrawlLog(r.db.QueryRowContext(ctx, query, id))
}

// Complete closes out a crawl log with its terminal outcome.
func (r *SQLiteCrawlLogRepository) Complete(ctx context.Context, l *models.CrawlExecutionLog) error {
	query := `
		UPDATE crawl_execution_logs SET completed_at = ?, duration_seconds = ?, status = ?,
			products_processed = ?, changes_detected = ?, errors_count = ?, error_details = ?,
			retry_count = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		nullTime(l.CompletedAt), nullFloat(l.DurationSeconds), string(l.Status),
		l.ProductsProcessed, l.ChangesDetected, l.ErrorsCount, nullStringPtr(l.ErrorDetails),
		l.RetryCount, l.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete crawl log: %w", err)
	}
	return nil
}

func (r *SQLiteCrawlLogRepository) GetByWebsiteID(ctx context.Context, websiteID string, limit, offset int) ([]*models.CrawlExecutionLog, error) {
	query := `SELECT ` + crawlLogColumns + ` FROM crawl_execution_logs
		WHERE website_id = ? ORDER BY started_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, websiteID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawl logs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return r.scanCrawlLogs(rows)
}

// GetStaleRunning returns logs still in running status whose started_at
// is at least maxAge ago, oldest first.
func (r *SQLiteCrawlLogRepository) GetStaleRunning(ctx context.Context, maxAge time.Duration) ([]*models.CrawlExecutionLog, error) {
	cutoff := time.Now().Add(-maxAge).Format(time.RFC3339)
	query := `SELECT ` + crawlLogColumns + ` FROM crawl_execution_logs
		WHERE status = 'running' AND started_at <= ? ORDER BY started_at ASC`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale crawl logs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return r.scanCrawlLogs(rows)
}

func (r *SQLiteCrawlLogRepository) scanCrawlLog(row *sql.Row) (*models.CrawlExecutionLog, error) {
	var l models.CrawlExecutionLog
	var startedAt, status, triggeredBy string
	var completedAt, errorDetails sql.NullString
	var durationSeconds sql.NullFloat64

	err := row.Scan(
		&l.ID, &l.WebsiteID, &startedAt, &completedAt, &durationSeconds, &status,
		&l.ProductsProcessed, &l.ChangesDetected, &l.ErrorsCount, &errorDetails, &l.RetryCount,
		&triggeredBy,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan crawl log: %w", err)
	}
	finishCrawlLogScan(&l, startedAt, status, triggeredBy, completedAt, errorDetails, durationSeconds)
	return &l, nil
}

func (r *SQLiteCrawlLogRepository) scanCrawlLogs(rows *sql.Rows) ([]*models.CrawlExecutionLog, error) {
	var logs []*models.CrawlExecutionLog
	for rows.Next() {
		var l models.CrawlExecutionLog
		var startedAt, status, triggeredBy string
		var completedAt, errorDetails sql.NullString
		var durationSeconds sql.NullFloat64

		err := rows.Scan(
			&l.ID, &l.WebsiteID, &startedAt, &completedAt, &durationSeconds, &status,
			&l.ProductsProcessed, &l.ChangesDetected, &l.ErrorsCount, &errorDetails, &l.RetryCount,
			&triggeredBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl log row: %w", err)
		}
		finishCrawlLogScan(&l, startedAt, status, triggeredBy, completedAt, errorDetails, durationSeconds)
		logs = append(logs, &l)
	}
	return logs, nil
}

func finishCrawlLogScan(l *models.CrawlExecutionLog, startedAt, status, triggeredBy string,
	completedAt, errorDetails sql.NullString, durationSeconds sql.NullFloat64) {
	l.StartedAt = mustParseTime(startedAt)
	l.Status = models.CrawlStatus(status)
	l.TriggeredBy = models.TriggeredBy(triggeredBy)
	l.CompletedAt = timePtrFromNull(completedAt)
	l.ErrorDetails = strPtrFromNull(errorDetails)
	l.DurationSeconds = floatPtrFromNull(durationSeconds)
}
