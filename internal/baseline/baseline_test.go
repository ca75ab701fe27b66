package baseline

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/obsrv/monitor/internal/database/migrations"
	"github.com/obsrv/monitor/internal/fetch"
	"github.com/obsrv/monitor/internal/models"
	"github.com/obsrv/monitor/internal/repository"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func insertWebsite(t *testing.T, db *sql.DB) *models.MonitoredWebsite {
	t.Helper()
	clientID := ulid.Make().String()
	if _, err := db.Exec(`
		INSERT INTO clients (id, webhook_secret_current, max_websites, max_products_per_website,
			created_at, updated_at)
		VALUES (?, 'secret', 10, 100, datetime('now'), datetime('now'))
	`, clientID); err != nil {
		t.Fatalf("insert client: %v", err)
	}
	websiteID := ulid.Make().String()
	if _, err := db.Exec(`
		INSERT INTO monitored_websites (id, client_id, base_url, seed_urls, status,
			crawl_frequency_minutes, price_change_threshold_pct, retention_days,
			approved_product_count, webhook_enabled, consecutive_failures, created_at, updated_at)
		VALUES (?, ?, 'https://shop.example.com', '[]', 'pending_approval',
			1440, 5.0, 90, 0, 0, 0, datetime('now'), datetime('now'))
	`, websiteID, clientID); err != nil {
		t.Fatalf("insert website: %v", err)
	}
	repos := repository.NewRepositories(db)
	w, err := repos.Website.GetByID(context.Background(), websiteID)
	if err != nil || w == nil {
		t.Fatalf("GetByID() = (%v, %v)", w, err)
	}
	return w
}

func testFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Config{
		RateLimitPerDomainPerMinute: 6000,
		Timeout:                     2 * time.Second,
		RetryAttempts:               1,
		RetryBackoffBase:            time.Millisecond,
		UserAgent:                   "test-agent",
	})
}

func TestRun_AllSucceed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><meta property="og:title" content="Widget"/></head>
			<body><span class="price">$19.99</span><p>In stock, add to cart</p></body></html>`))
	}))
	defer srv.Close()

	db := setupTestDB(t)
	website := insertWebsite(t, db)
	repos := repository.NewRepositories(db)
	c := New(repos, testFetcher(), slog.Default())

	stats, err := c.Run(context.Background(), website, []string{srv.URL + "/p/1", srv.URL + "/p/2"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Successes != 2 || stats.Failures != 0 {
		t.Errorf("stats = %+v, want 2 successes, 0 failures", stats)
	}

	updated, err := repos.Website.GetByID(context.Background(), website.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if updated.ApprovedProductCount != 2 {
		t.Errorf("ApprovedProductCount = %d, want 2", updated.ApprovedProductCount)
	}
	if updated.Status != models.WebsiteStatusActive {
		t.Errorf("Status = %v, want active", updated.Status)
	}

	products, err := repos.Product.ListActiveByWebsiteID(context.Background(), website.ID)
	if err != nil {
		t.Fatalf("ListActiveByWebsiteID() error = %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("len(products) = %d, want 2", len(products))
	}
	if products[0].ProductName != "Widget" {
		t.Errorf("ProductName = %q, want Widget", products[0].ProductName)
	}
}

func TestRun_IsolatesPerURLFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`<html><title>OK Product</title></html>`))
	}))
	defer srv.Close()

	db := setupTestDB(t)
	website := insertWebsite(t, db)
	repos := repository.NewRepositories(db)
	c := New(repos, testFetcher(), slog.Default())

	stats, err := c.Run(context.Background(), website, []string{srv.URL + "/good", srv.URL + "/bad"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Successes != 1 || stats.Failures != 1 {
		t.Errorf("stats = %+v, want 1 success, 1 failure", stats)
	}

	updated, err := repos.Website.GetByID(context.Background(), website.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if updated.ApprovedProductCount != 1 {
		t.Errorf("ApprovedProductCount = %d, want 1", updated.ApprovedProductCount)
	}

	logs, err := repos.CrawlLog.GetByWebsiteID(context.Background(), website.ID, 10, 0)
	if err != nil || len(logs) != 1 {
		t.Fatalf("GetByWebsiteID() = (%v, %v)", logs, err)
	}
	if logs[0].Status != models.CrawlStatusPartialSuccess {
		t.Errorf("CrawlLog.Status = %v, want partial_success", logs[0].Status)
	}
}

func TestRun_AllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	db := setupTestDB(t)
	website := insertWebsite(t, db)
	repos := repository.NewRepositories(db)
	c := New(repos, testFetcher(), slog.Default())

	stats, err := c.Run(context.Background(), website, []string{srv.URL + "/x"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Successes != 0 || stats.Failures != 1 {
		t.Errorf("stats = %+v, want 0 successes, 1 failure", stats)
	}

	updated, err := repos.Website.GetByID(context.Background(), website.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if updated.Status != models.WebsiteStatusPendingApproval {
		t.Errorf("Status = %v, want it left unchanged on total failure", updated.Status)
	}
}
