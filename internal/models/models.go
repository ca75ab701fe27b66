// Package models defines the domain entities persisted by the monitoring
// pipeline: Client, MonitoredWebsite, Product, ProductHistoryRecord,
// CrawlExecutionLog, and WebhookDeliveryLog.
package models

import "time"

// WebsiteStatus enumerates a MonitoredWebsite's lifecycle state.
type WebsiteStatus string

const (
	WebsiteStatusPendingApproval WebsiteStatus = "pending_approval"
	WebsiteStatusActive          WebsiteStatus = "active"
	WebsiteStatusPaused          WebsiteStatus = "paused"
	WebsiteStatusFailed          WebsiteStatus = "failed"
)

// StockStatus enumerates the observed stock state of a product.
type StockStatus string

const (
	StockStatusInStock            StockStatus = "in_stock"
	StockStatusOutOfStock         StockStatus = "out_of_stock"
	StockStatusLimitedAvailability StockStatus = "limited_availability"
	StockStatusUnknown            StockStatus = "unknown"
)

// CrawlStatus enumerates the terminal and in-flight states of a
// CrawlExecutionLog.
type CrawlStatus string

const (
	CrawlStatusPending        CrawlStatus = "pending"
	CrawlStatusRunning        CrawlStatus = "running"
	CrawlStatusSuccess        CrawlStatus = "success"
	CrawlStatusPartialSuccess CrawlStatus = "partial_success"
	CrawlStatusFailed         CrawlStatus = "failed"
)

// TriggeredBy enumerates what caused a CrawlExecutionLog to be opened.
type TriggeredBy string

const (
	TriggeredByScheduled TriggeredBy = "scheduled"
	TriggeredByManual    TriggeredBy = "manual"
	TriggeredByDiscovery TriggeredBy = "discovery"
	TriggeredByRetry     TriggeredBy = "retry"
)

// DeliveryStatus enumerates a WebhookDeliveryLog's state machine position.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusRetrying  DeliveryStatus = "retrying"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

// Client owns one or more MonitoredWebsites and holds the webhook
// signing secret(s) used to authenticate deliveries on its behalf.
type Client struct {
	ID                       string
	WebhookSecretCurrent     string
	WebhookSecretPrevious    *string
	SecretRotationExpiresAt  *time.Time
	MaxWebsites              int
	MaxProductsPerWebsite    int
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// MonitoredWebsite is a tenant-owned crawl target: a base domain plus a
// set of seed URLs used by the Discovery Engine, and the configuration
// governing how often and how aggressively it is re-crawled.
type MonitoredWebsite struct {
	ID                        string
	ClientID                  string
	BaseURL                   string
	SeedURLs                  []string
	Status                    WebsiteStatus
	CrawlFrequencyMinutes     int
	PriceChangeThresholdPct   float64
	RetentionDays             int
	DiscoveredProductsPending *int
	ApprovedProductCount      int
	LastSuccessfulCrawlAt     *time.Time
	LastCrawlStatus           *CrawlStatus
	WebhookEndpointURL        *string
	WebhookEnabled            bool
	ConsecutiveFailures       int
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// Product is one approved, tracked item on a MonitoredWebsite.
type Product struct {
	ID                  string
	WebsiteID           string
	OriginalURL         string
	NormalizedURL       string
	ExtractedProductID  *string
	ExtractionMethod    string
	ProductName         string
	CurrentPrice        *float64
	CurrentCurrency     string
	CurrentStockStatus  StockStatus
	LastCrawledAt       time.Time
	IsActive            bool
	DelistedAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ProductHistoryRecord is an immutable point-in-time snapshot of a
// Product's observed state, written once by the History Writer and
// never updated afterward.
type ProductHistoryRecord struct {
	ID              string
	ProductID       string
	WebsiteID       string
	CrawlLogID      string
	CrawlTimestamp  time.Time
	Price           *float64
	Currency        string
	StockStatus     StockStatus
	PriceChanged    bool
	StockChanged    bool
	PriceChangePct  *float64
	RawCrawlData    map[string]any
	// PartitionKey is the YYYY-MM emulation of spec.md §6's monthly
	// range partitioning (see DESIGN.md Open Question decision #4).
	PartitionKey string
}

// CrawlExecutionLog is the identity row for one crawl tick over one
// website: opened before work begins, closed with an outcome status.
type CrawlExecutionLog struct {
	ID                string
	WebsiteID         string
	StartedAt         time.Time
	CompletedAt       *time.Time
	DurationSeconds   *float64
	Status            CrawlStatus
	ProductsProcessed int
	ChangesDetected   int
	ErrorsCount       int
	ErrorDetails      *string
	RetryCount        int
	TriggeredBy       TriggeredBy
}

// WebhookDeliveryLog is one attempt (of up to 3) to deliver a signed
// change-event notification to a client's configured endpoint.
type WebhookDeliveryLog struct {
	ID                string
	ProductHistoryID  string
	WebsiteID         string
	TargetURL         string
	Payload           string // full JSON sent, canonical field order
	Signature         string
	TimestampHeader   string
	AttemptNumber     int
	DeliveryTimestamp time.Time
	HTTPStatusCode    *int
	Status            DeliveryStatus
	ResponseBody      *string // truncated to 1024 bytes
	ErrorMessage      *string
	NextRetryAt       *time.Time
}
