// Package repository defines data-access interfaces and their SQLite/libsql
// implementations for the monitoring pipeline's persisted entities.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/obsrv/monitor/internal/models"
)

// ClientRepository defines methods for client data access.
type ClientRepository interface {
	Create(ctx context.Context, c *models.Client) error
	GetByID(ctx context.Context, id string) (*models.Client, error)
	Update(ctx context.Context, c *models.Client) error
	// RotateWebhookSecret moves the current secret to previous and installs a
	// new current secret, setting an expiry on the previous one.
	RotateWebhookSecret(ctx context.Context, id, newSecret string, previousExpiresAt time.Time) error
	// ClearExpiredPreviousSecrets nulls out previous secrets whose rotation
	// grace period has elapsed. Returns the number of clients updated.
	ClearExpiredPreviousSecrets(ctx context.Context, now time.Time) (int64, error)
}

// WebsiteRepository defines methods for monitored website data access.
type WebsiteRepository interface {
	Create(ctx context.Context, w *models.MonitoredWebsite) error
	GetByID(ctx context.Context, id string) (*models.MonitoredWebsite, error)
	GetByClientID(ctx context.Context, clientID string) ([]*models.MonitoredWebsite, error)
	Update(ctx context.Context, w *models.MonitoredWebsite) error
	// ClaimDueForCrawl atomically claims one active website whose crawl
	// interval has elapsed, stamping its last_successful_crawl_at to now so
	// it is not claimed again until the next interval. now is compared
	// against last_successful_crawl_at plus crawl_frequency_minutes.
	ClaimDueForCrawl(ctx context.Context, now time.Time) (*models.MonitoredWebsite, error)
	// IncrementConsecutiveFailures bumps the failure counter and, if it
	// reaches threshold, flips status to paused. Returns the new count.
	IncrementConsecutiveFailures(ctx context.Context, id string, threshold int) (int, error)
	ResetConsecutiveFailures(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status models.WebsiteStatus) ([]*models.MonitoredWebsite, error)
}

// ProductRepository defines methods for product data access.
type ProductRepository interface {
	Create(ctx context.Context, p *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetByNormalizedURL(ctx context.Context, websiteID, normalizedURL string) (*models.Product, error)
	Update(ctx context.Context, p *models.Product) error
	ListActiveByWebsiteID(ctx context.Context, websiteID string) ([]*models.Product, error)
	CountActiveByWebsiteID(ctx context.Context, websiteID string) (int, error)
	// MarkDelisted flags products on a website not present in currentURLs as
	// inactive, stamping delisted_at. Returns the number delisted.
	MarkDelisted(ctx context.Context, websiteID string, currentURLs []string, now time.Time) (int64, error)
}

// HistoryRepository defines methods for product history data access.
type HistoryRepository interface {
	Create(ctx context.Context, h *models.ProductHistoryRecord) error
	GetByProductID(ctx context.Context, productID string, limit, offset int) ([]*models.ProductHistoryRecord, error)
	GetLatestByProductID(ctx context.Context, productID string) (*models.ProductHistoryRecord, error)
	// DeleteOlderThan purges history rows past a website's retention window,
	// keyed by partition_key for cheap monthly-bucket pruning.
	DeleteOlderThan(ctx context.Context, websiteID string, cutoff time.Time) (int64, error)
}

// CrawlLogRepository defines methods for crawl execution log data access.
type CrawlLogRepository interface {
	Create(ctx context.Context, l *models.CrawlExecutionLog) error
	GetByID(ctx context.Context, id string) (*models.CrawlExecutionLog, error)
	Complete(ctx context.Context, l *models.CrawlExecutionLog) error
	GetByWebsiteID(ctx context.Context, websiteID string, limit, offset int) ([]*models.CrawlExecutionLog, error)
	// GetStaleRunning returns logs still in running status whose started_at
	// is at least maxAge ago, oldest first.
	GetStaleRunning(ctx context.Context, maxAge time.Duration) ([]*models.CrawlExecutionLog, error)
}

// WebhookLogRepository defines methods for webhook delivery attempt data access.
type WebhookLogRepository interface {
	Create(ctx context.Context, d *models.WebhookDeliveryLog) error
	Update(ctx context.Context, d *models.WebhookDeliveryLog) error
	GetByID(ctx context.Context, id string) (*models.WebhookDeliveryLog, error)
	GetByProductHistoryID(ctx context.Context, productHistoryID string) ([]*models.WebhookDeliveryLog, error)
	// GetPendingRetries returns deliveries in retrying state whose
	// next_retry_at has elapsed, oldest first.
	GetPendingRetries(ctx context.Context, now time.Time, limit int) ([]*models.WebhookDeliveryLog, error)
	// ListByStatus returns recent deliveries in the given status, newest
	// first, for operator triage (C12).
	ListByStatus(ctx context.Context, status models.DeliveryStatus, limit, offset int) ([]*models.WebhookDeliveryLog, error)
}

// Repositories holds all repository instances wired against one *sql.DB.
// db is kept alongside the per-entity interfaces so operations that must
// span multiple tables in one transaction (see WriteCrawlResult) don't
// need a separate cross-repository transaction abstraction.
type Repositories struct {
	db *sql.DB

	Client     ClientRepository
	Website    WebsiteRepository
	Product    ProductRepository
	History    HistoryRepository
	CrawlLog   CrawlLogRepository
	WebhookLog WebhookLogRepository
}

// NewRepositories creates all repository instances against db.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		db:         db,
		Client:     NewSQLiteClientRepository(db),
		Website:    NewSQLiteWebsiteRepository(db),
		Product:    NewSQLiteProductRepository(db),
		History:    NewSQLiteHistoryRepository(db),
		CrawlLog:   NewSQLiteCrawlLogRepository(db),
		WebhookLog: NewSQLiteWebhookLogRepository(db),
	}
}
