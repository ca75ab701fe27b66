package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/obsrv/monitor/internal/models"
)

// SQLiteWebhookLogRepository implements WebhookLogRepository for SQLite/libsql.
type SQLiteWebhookLogRepository struct {
	db *sql.DB
}

// NewSQLiteWebhookLogRepository creates a new SQLite webhook log repository.
func NewSQLiteWebhookLogRepository(db *sql.DB) *SQLiteWebhookLogRepository {
	return &SQLiteWebhookLogRepository{db: db}
}

const webhookLogColumns = `id, product_history_id, website_id, target_url, payload, signature,
	timestamp_header, attempt_number, delivery_timestamp, http_status_code, status,
	response_body, error_message, next_retry_at`

func (r *SQLiteWebhookLogRepository) Create(ctx context.Context, d *models.WebhookDeliveryLog) error {
	query := `
		INSERT INTO webhook_delivery_logs (` + webhookLogColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.ProductHistoryID, d.WebsiteID, d.TargetURL, d.Payload, d.Signature,
		d.TimestampHeader, d.AttemptNumber, d.DeliveryTimestamp.Format(time.RFC3339),
		nullInt(d.HTTPStatusCode), string(d.Status), nullStringPtr(d.ResponseBody),
		nullStringPtr(d.ErrorMessage), nullTime(d.NextRetryAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook delivery log: %w", err)
	}
	return nil
}

func (r *SQLiteWebhookLogRepository) Update(ctx context.Context, d *models.WebhookDeliveryLog) error {
	query := `
		UPDATE webhook_delivery_logs SET attempt_number = ?, delivery_timestamp = ?,
			http_status_code = ?, status = ?, response_body = ?, error_message = ?,
			next_retry_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		d.AttemptNumber, d.DeliveryTimestamp.Format(time.RFC3339), nullInt(d.HTTPStatusCode),
		string(d.Status), nullStringPtr(d.ResponseBody), nullStringPtr(d.ErrorMessage),
		nullTime(d.NextRetryAt), d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook delivery log: %w", err)
	}
	return nil
}

func (r *SQLiteWebhookLogRepository) GetByID(ctx context.Context, id string) (*models.WebhookDeliveryLog, error) {
	query := `SELECT ` + webhookLogColumns + ` FROM webhook_delivery_logs WHERE id = ?`
	return r.scanDelivery(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteWebhookLogRepository) GetByProductHistoryID(ctx context.Context, productHistoryID string) ([]*models.WebhookDeliveryLog, error) {
	query := `SELECT ` + webhookLogColumns + ` FROM webhook_delivery_logs
		WHERE product_history_id = ? ORDER BY attempt_number ASC`
	rows, err := r.db.QueryContext(ctx, query, productHistoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook delivery logs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return r.scanDeliveries(rows)
}

// GetPendingRetries returns deliveries in retrying state whose next_retry_at
// has elapsed, grounding the C9 retry sweeper's poll query.
func (r *SQLiteWebhookLogRepository) GetPendingRetries(ctx context.Context, now time.Time, limit int) ([]*models.WebhookDeliveryLog, error) {
	query := `SELECT ` + webhookLogColumns + ` FROM webhook_delivery_logs
		WHERE status = 'retrying' AND next_retry_at <= ? ORDER BY next_retry_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, now.Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending retries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return r.scanDeliveries(rows)
}

// ListByStatus returns recent deliveries in status, newest delivery first,
// grounding the C12 operator triage endpoint.
func (r *SQLiteWebhookLogRepository) ListByStatus(ctx context.Context, status models.DeliveryStatus, limit, offset int) ([]*models.WebhookDeliveryLog, error) {
	query := `SELECT ` + webhookLogColumns + ` FROM webhook_delivery_logs
		WHERE status = ? ORDER BY delivery_timestamp DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook delivery logs by status: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return r.scanDeliveries(rows)
}

func (r *SQLiteWebhookLogRepository) scanDelivery(row *sql.Row) (*models.WebhookDeliveryLog, error) {
	var d models.WebhookDeliveryLog
	var deliveryTimestamp, status string
	var httpStatusCode sql.NullInt64
	var responseBody, errorMessage, nextRetryAt sql.NullString

	err := row.Scan(
		&d.ID, &d.ProductHistoryID, &d.WebsiteID, &d.TargetURL, &d.Payload, &d.Signature,
		&d.TimestampHeader, &d.AttemptNumber, &deliveryTimestamp, &httpStatusCode, &status,
		&responseBody, &errorMessage, &nextRetryAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhook delivery log: %w", err)
	}
	finishDeliveryScan(&d, deliveryTimestamp, status, httpStatusCode, responseBody, errorMessage, nextRetryAt)
	return &d, nil
}

func (r *SQLiteWebhookLogRepository) scanDeliveries(rows *sql.Rows) ([]*models.WebhookDeliveryLog, error) {
	var deliveries []*models.WebhookDeliveryLog
	for rows.Next() {
		var d models.WebhookDeliveryLog
		var deliveryTimestamp, status string
		var httpStatusCode sql.NullInt64
		var responseBody, errorMessage, nextRetryAt sql.NullString

		err := rows.Scan(
			&d.ID, &d.ProductHistoryID, &d.WebsiteID, &d.TargetURL, &d.Payload, &d.Signature,
			&d.TimestampHeader, &d.AttemptNumber, &deliveryTimestamp, &httpStatusCode, &status,
			&responseBody, &errorMessage, &nextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook delivery log row: %w", err)
		}
		finishDeliveryScan(&d, deliveryTimestamp, status, httpStatusCode, responseBody, errorMessage, nextRetryAt)
		deliveries = append(deliveries, &d)
	}
	return deliveries, nil
}

func finishDeliveryScan(d *models.WebhookDeliveryLog, deliveryTimestamp, status string,
	httpStatusCode sql.NullInt64, responseBody, errorMessage, nextRetryAt sql.NullString) {
	d.DeliveryTimestamp = mustParseTime(deliveryTimestamp)
	d.Status = models.DeliveryStatus(status)
	d.HTTPStatusCode = intPtrFromNull(httpStatusCode)
	d.ResponseBody = strPtrFromNull(responseBody)
	d.ErrorMessage = strPtrFromNull(errorMessage)
	d.NextRetryAt = timePtrFromNull(nextRetryAt)
}
