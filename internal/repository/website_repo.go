package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/obsrv/monitor/internal/models"
)

// SQLiteWebsiteRepository implements WebsiteRepository for SQLite/libsql.
type SQLiteWebsiteRepository struct {
	db *sql.DB
}

// NewSQLiteWebsiteRepository creates a new SQLite website repository.
func NewSQLiteWebsiteRepository(db *sql.DB) *SQLiteWebsiteRepository {
	return &SQLiteWebsiteRepository{db: db}
}

func (r *SQLiteWebsiteRepository) Create(ctx context.Context, w *models.MonitoredWebsite) error {
	seedURLs, err := json.Marshal(w.SeedURLs)
	if err != nil {
		return fmt.Errorf("failed to marshal seed urls: %w", err)
	}
	query := `
		INSERT INTO monitored_websites (id, client_id, base_url, seed_urls, status,
			crawl_frequency_minutes, price_change_threshold_pct, retention_days,
			discovered_products_pending, approved_product_count, last_successful_crawl_at,
			last_crawl_status, webhook_endpoint_url, webhook_enabled, consecutive_failures,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	webhookEnabled := 0
	if w.WebhookEnabled {
		webhookEnabled = 1
	}
	var lastCrawlStatus sql.NullString
	if w.LastCrawlStatus != nil {
		lastCrawlStatus = sql.NullString{String: string(*w.LastCrawlStatus), Valid: true}
	}
	_, err = r.db.ExecContext(ctx, query,
		w.ID, w.ClientID, w.BaseURL, string(seedURLs), string(w.Status),
		w.CrawlFrequencyMinutes, w.PriceChangeThresholdPct, w.RetentionDays,
		nullInt(w.DiscoveredProductsPending), w.ApprovedProductCount,
		nullTime(w.LastSuccessfulCrawlAt), lastCrawlStatus,
		nullStringPtr(w.WebhookEndpointURL), webhookEnabled, w.ConsecutiveFailures,
		w.CreatedAt.Format(time.RFC3339), w.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create website: %w", err)
	}
	return nil
}

const websiteColumns = `id, client_id, base_url, seed_urls, status, crawl_frequency_minutes,
	price_change_threshold_pct, retention_days, discovered_products_pending,
	approved_product_count, last_successful_crawl_at, last_crawl_status,
	webhook_endpoint_url, webhook_enabled, consecutive_failures, created_at, updated_at`

func (r *SQLiteWebsiteRepository) GetByID(ctx context.Context, id string) (*models.MonitoredWebsite, error) {
	query := `SELECT ` + websiteColumns + ` FROM monitored_websites WHERE id = ?`
	return r.scanWebsite(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteWebsiteRepository) GetByClientID(ctx context.Context, clientID string) ([]*models.MonitoredWebsite, error) {
	query := `SELECT ` + websiteColumns + ` FROM monitored_websites WHERE client_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query websites: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return r.scanWebsites(rows)
}

func (r *SQLiteWebsiteRepository) ListByStatus(ctx context.Context, status models.WebsiteStatus) ([]*models.MonitoredWebsite, error) {
	query := `SELECT ` + websiteColumns + ` FROM monitored_websites WHERE status = ? ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query websites: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return r.scanWebsites(rows)
}

func (r *SQLiteWebsiteRepository) Update(ctx context.Context, w *models.MonitoredWebsite) error {
	seedURLs, err := json.Marshal(w.SeedURLs)
	if err != nil {
		return fmt.Errorf("failed to marshal seed urls: %w", err)
	}
	query := `
		UPDATE monitored_websites SET base_url = ?, seed_urls = ?, status = ?,
			crawl_frequency_minutes = ?, price_change_threshold_pct = ?, retention_days = ?,
			discovered_products_pending = ?, approved_product_count = ?,
			last_successful_crawl_at = ?, last_crawl_status = ?, webhook_endpoint_url = ?,
			webhook_enabled = ?, consecutive_failures = ?, updated_at = ?
		WHERE id = ?
	`
	webhookEnabled := 0
	if w.WebhookEnabled {
		webhookEnabled = 1
	}
	var lastCrawlStatus sql.NullString
	if w.LastCrawlStatus != nil {
		lastCrawlStatus = sql.NullString{String: string(*w.LastCrawlStatus), Valid: true}
	}
	_, err = r.db.ExecContext(ctx, query,
		w.BaseURL, string(seedURLs), string(w.Status),
		w.CrawlFrequencyMinutes, w.PriceChangeThresholdPct, w.RetentionDays,
		nullInt(w.DiscoveredProductsPending), w.ApprovedProductCount,
		nullTime(w.LastSuccessfulCrawlAt), lastCrawlStatus,
		nullStringPtr(w.WebhookEndpointURL), webhookEnabled, w.ConsecutiveFailures,
		time.Now().Format(time.RFC3339), w.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update website: %w", err)
	}
	return nil
}

// ClaimDueForCrawl atomically selects one active website whose crawl
// interval has elapsed and stamps its last_successful_crawl_at forward to
// now so a concurrent scheduler tick cannot double-claim it. The scheduler
// leaves that stamp in place when the crawl fails and records the failure
// through IncrementConsecutiveFailures.
func (r *SQLiteWebsiteRepository) ClaimDueForCrawl(ctx context.Context, now time.Time) (*models.MonitoredWebsite, error) {
	query := `
		UPDATE monitored_websites
		SET last_successful_crawl_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM monitored_websites
			WHERE status = 'active'
			AND (
				last_successful_crawl_at IS NULL
				OR datetime(last_successful_crawl_at, '+' || crawl_frequency_minutes || ' minutes') <= datetime(?)
			)
			ORDER BY last_successful_crawl_at ASC NULLS FIRST
			LIMIT 1
		)
		RETURNING ` + websiteColumns + `
	`
	nowStr := now.Format(time.RFC3339)
	w, err := r.scanWebsite(r.db.QueryRowContext(ctx, query, nowStr, nowStr, nowStr))
	if err != nil {
		return nil, fmt.Errorf("failed to claim website: %w", err)
	}
	return w, nil
}

func (r *SQLiteWebsiteRepository) IncrementConsecutiveFailures(ctx context.Context, id string, threshold int) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var count int
	err = tx.QueryRowContext(ctx,
		`UPDATE monitored_websites SET consecutive_failures = consecutive_failures + 1, updated_at = ?
		 WHERE id = ? RETURNING consecutive_failures`,
		time.Now().Format(time.RFC3339), id,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment failures: %w", err)
	}

	// Per spec.md §4.10 step 5, a website that exhausts its failure budget
	// is paused (not failed) pending a manual resume; last_crawl_status
	// still records the terminal per-crawl outcome separately.
	if count >= threshold {
		if _, err := tx.ExecContext(ctx,
			`UPDATE monitored_websites SET status = 'paused', last_crawl_status = 'failed', updated_at = ? WHERE id = ?`,
			time.Now().Format(time.RFC3339), id); err != nil {
			return 0, fmt.Errorf("failed to mark website paused: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return count, nil
}

func (r *SQLiteWebsiteRepository) ResetConsecutiveFailures(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE monitored_websites SET consecutive_failures = 0, updated_at = ? WHERE id = ?`,
		time.Now().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to reset failures: %w", err)
	}
	return nil
}

func (r *SQLiteWebsiteRepository) scanWebsite(row *sql.Row) (*models.MonitoredWebsite, error) {
	var w models.MonitoredWebsite
	var seedURLs, createdAt, updatedAt, status string
	var discoveredProductsPending, consecutiveFailures sql.NullInt64
	var lastSuccessfulCrawlAt, lastCrawlStatus, webhookEndpointURL sql.NullString
	var webhookEnabled int

	err := row.Scan(
		&w.ID, &w.ClientID, &w.BaseURL, &seedURLs, &status, &w.CrawlFrequencyMinutes,
		&w.PriceChangeThresholdPct, &w.RetentionDays, &discoveredProductsPending,
		&w.ApprovedProductCount, &lastSuccessfulCrawlAt, &lastCrawlStatus,
		&webhookEndpointURL, &webhookEnabled, &consecutiveFailures, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan website: %w", err)
	}
	website, err := finishWebsiteScan(&w, seedURLs, status, createdAt, updatedAt,
		discoveredProductsPending, lastSuccessfulCrawlAt, lastCrawlStatus,
		webhookEndpointURL, webhookEnabled)
	if err != nil {
		return nil, err
	}
	website.ConsecutiveFailures = int(consecutiveFailures.Int64)
	return website, nil
}

func (r *SQLiteWebsiteRepository) scanWebsites(rows *sql.Rows) ([]*models.MonitoredWebsite, error) {
	var websites []*models.MonitoredWebsite
	for rows.Next() {
		var w models.MonitoredWebsite
		var seedURLs, createdAt, updatedAt, status string
		var discoveredProductsPending, consecutiveFailures sql.NullInt64
		var lastSuccessfulCrawlAt, lastCrawlStatus, webhookEndpointURL sql.NullString
		var webhookEnabled int

		err := rows.Scan(
			&w.ID, &w.ClientID, &w.BaseURL, &seedURLs, &status, &w.CrawlFrequencyMinutes,
			&w.PriceChangeThresholdPct, &w.RetentionDays, &discoveredProductsPending,
			&w.ApprovedProductCount, &lastSuccessfulCrawlAt, &lastCrawlStatus,
			&webhookEndpointURL, &webhookEnabled, &consecutiveFailures, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan website row: %w", err)
		}
		website, err := finishWebsiteScan(&w, seedURLs, status, createdAt, updatedAt,
			discoveredProductsPending, lastSuccessfulCrawlAt, lastCrawlStatus,
			webhookEndpointURL, webhookEnabled)
		if err != nil {
			return nil, err
		}
		website.ConsecutiveFailures = int(consecutiveFailures.Int64)
		websites = append(websites, website)
	}
	return websites, nil
}

func finishWebsiteScan(w *models.MonitoredWebsite, seedURLs, status, createdAt, updatedAt string,
	discoveredProductsPending sql.NullInt64, lastSuccessfulCrawlAt, lastCrawlStatus,
	webhookEndpointURL sql.NullString, webhookEnabled int) (*models.MonitoredWebsite, error) {

	if err := json.Unmarshal([]byte(seedURLs), &w.SeedURLs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal seed urls: %w", err)
	}
	w.Status = models.WebsiteStatus(status)
	w.WebhookEnabled = webhookEnabled == 1
	w.CreatedAt = mustParseTime(createdAt)
	w.UpdatedAt = mustParseTime(updatedAt)
	if discoveredProductsPending.Valid {
		v := int(discoveredProductsPending.Int64)
		w.DiscoveredProductsPending = &v
	}
	w.LastSuccessfulCrawlAt = timePtrFromNull(lastSuccessfulCrawlAt)
	if lastCrawlStatus.Valid {
		cs := models.CrawlStatus(lastCrawlStatus.String)
		w.LastCrawlStatus = &cs
	}
	w.WebhookEndpointURL = strPtrFromNull(webhookEndpointURL)
	return w, nil
}
