package repository

import (
	"database/sql"
	"testing"

	"github.com/obsrv/monitor/internal/database/migrations"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory SQLite database for testing. It runs
// migrations and returns a connection that will be cleaned up when the
// test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// InsertTestClient is a helper to insert a test client directly.
func InsertTestClient(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	query := `
		INSERT INTO clients (id, webhook_secret_current, max_websites, max_products_per_website,
			created_at, updated_at)
		VALUES (?, 'test-secret', 10, 100, datetime('now'), datetime('now'))
	`
	if _, err := db.Exec(query, id); err != nil {
		t.Fatalf("failed to insert test client: %v", err)
	}
}

// InsertTestWebsite is a helper to insert a test monitored website directly.
func InsertTestWebsite(t *testing.T, db *sql.DB, id, clientID, status string) {
	t.Helper()
	query := `
		INSERT INTO monitored_websites (id, client_id, base_url, seed_urls, status,
			crawl_frequency_minutes, price_change_threshold_pct, retention_days,
			approved_product_count, webhook_enabled, consecutive_failures, created_at, updated_at)
		VALUES (?, ?, 'https://example.com', '["https://example.com/shop"]', ?,
			1440, 5.0, 90, 0, 0, 0, datetime('now'), datetime('now'))
	`
	if _, err := db.Exec(query, id, clientID, status); err != nil {
		t.Fatalf("failed to insert test website: %v", err)
	}
}

// InsertTestProduct is a helper to insert a test product directly.
func InsertTestProduct(t *testing.T, db *sql.DB, id, websiteID, normalizedURL string, isActive bool) {
	t.Helper()
	active := 0
	if isActive {
		active = 1
	}
	query := `
		INSERT INTO products (id, website_id, original_url, normalized_url, extraction_method,
			product_name, current_currency, current_stock_status, last_crawled_at, is_active,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, 'none', 'Test Product', 'USD', 'unknown', datetime('now'), ?,
			datetime('now'), datetime('now'))
	`
	if _, err := db.Exec(query, id, websiteID, normalizedURL, normalizedURL, active); err != nil {
		t.Fatalf("failed to insert test product: %v", err)
	}
}

// InsertTestCrawlLog is a helper to insert a test crawl execution log directly.
func InsertTestCrawlLog(t *testing.T, db *sql.DB, id, websiteID, status string) {
	t.Helper()
	query := `
		INSERT INTO crawl_execution_logs (id, website_id, started_at, status, triggered_by)
		VALUES (?, ?, datetime('now'), ?, 'scheduled')
	`
	if _, err := db.Exec(query, id, websiteID, status); err != nil {
		t.Fatalf("failed to insert test crawl log: %v", err)
	}
}

// InsertTestHistory is a helper to insert a test product history record directly.
func InsertTestHistory(t *testing.T, db *sql.DB, id, productID, websiteID, crawlLogID, partitionKey string) {
	t.Helper()
	query := `
		INSERT INTO product_history (id, product_id, website_id, crawl_log_id, crawl_timestamp,
			currency, stock_status, partition_key)
		VALUES (?, ?, ?, ?, datetime('now'), 'USD', 'in_stock', ?)
	`
	if _, err := db.Exec(query, id, productID, websiteID, crawlLogID, partitionKey); err != nil {
		t.Fatalf("failed to insert test history record: %v", err)
	}
}

// InsertTestWebhookLog is a helper to insert a test webhook delivery log directly.
func InsertTestWebhookLog(t *testing.T, db *sql.DB, id, productHistoryID, websiteID, status string) {
	t.Helper()
	query := `
		INSERT INTO webhook_delivery_logs (id, product_history_id, website_id, target_url,
			payload, signature, timestamp_header, attempt_number, delivery_timestamp, status)
		VALUES (?, ?, ?, 'https://client.example.com/webhook', '{}', 'sig', 't=0', 1,
			datetime('now'), ?)
	`
	if _, err := db.Exec(query, id, productHistoryID, websiteID, status); err != nil {
		t.Fatalf("failed to insert test webhook delivery log: %v", err)
	}
}
