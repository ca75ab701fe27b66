// Package constants holds fixed domain values referenced across components:
// env var keys/defaults, tracking-parameter deny-lists, and product-path
// signal patterns used by URL normalization and discovery.
package constants

import "time"

// Environment variable keys recognized by config.Load.
const (
	EnvPort    = "PORT"
	EnvBaseURL = "BASE_URL"

	EnvDatabaseURL = "DATABASE_URL"

	EnvDefaultCrawlTimeout      = "DEFAULT_CRAWL_TIMEOUT"
	EnvMaxConcurrentCrawls      = "MAX_CONCURRENT_CRAWLS"
	EnvCrawlRateLimitPerDomain  = "CRAWL_RATE_LIMIT_PER_DOMAIN"
	EnvCrawlRetryAttempts       = "CRAWL_RETRY_ATTEMPTS"
	EnvCrawlRetryBackoffBase    = "CRAWL_RETRY_BACKOFF_BASE"
	EnvCrawlUserAgent           = "CRAWL_USER_AGENT"

	EnvWebhookTimeout                   = "WEBHOOK_TIMEOUT"
	EnvWebhookMaxRetries                = "WEBHOOK_MAX_RETRIES"
	EnvWebhookRetryBackoffBase           = "WEBHOOK_RETRY_BACKOFF_BASE"
	EnvWebhookSignatureToleranceSeconds = "WEBHOOK_SIGNATURE_TOLERANCE_SECONDS"

	EnvDefaultRetentionDays = "DEFAULT_RETENTION_DAYS"
	EnvMaxRetentionDays     = "MAX_RETENTION_DAYS"

	EnvEnvironment = "ENVIRONMENT"

	EnvStorageEnabled  = "STORAGE_ENABLED"
	EnvAWSEndpointS3   = "AWS_ENDPOINT_URL_S3"
	EnvAWSAccessKeyID  = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretKey    = "AWS_SECRET_ACCESS_KEY"
	EnvAWSRegion       = "AWS_REGION"
	EnvStorageBucket   = "STORAGE_BUCKET"

	EnvOperatorToken     = "OPERATOR_TOKEN"
	EnvOperatorJWTSecret = "OPERATOR_JWT_SECRET"

	EnvEncryptionKey = "ENCRYPTION_KEY"

	EnvLogFormat = "LOG_FORMAT"
	EnvLogLevel  = "LOG_LEVEL"
)

// Defaults for numeric/duration configuration, applied when the
// corresponding env var is unset.
const (
	DefaultPort = 8080

	DefaultCrawlTimeoutSeconds     = 30
	DefaultMaxConcurrentCrawls     = 5
	DefaultCrawlRateLimitPerDomain = 10 // requests/minute
	DefaultCrawlRetryAttempts      = 3
	DefaultCrawlRetryBackoffBase   = 2 * time.Second
	DefaultCrawlUserAgent          = "Obsrv-Monitor/1.0"

	DefaultWebhookTimeoutSeconds            = 10
	DefaultWebhookMaxRetries                = 3
	DefaultWebhookRetryBackoffBase           = 5 * time.Minute
	DefaultWebhookSignatureToleranceSeconds = 300

	DefaultRetentionDays = 90
	MaxRetentionDaysCap  = 365
	MinRetentionDaysCap  = 30

	DefaultEnvironment = "development"
)

// RetrySchedule is the fixed webhook retry delay schedule, indexed by
// attempt_number directly (RetrySchedule[0] is unused — the first attempt
// fires immediately): attempt 1 fails -> wait RetrySchedule[1] (5min)
// before attempt 2; attempt 2 fails -> wait RetrySchedule[2] (30min)
// before attempt 3; attempt 3 is terminal.
var RetrySchedule = []time.Duration{
	0,
	5 * time.Minute,
	30 * time.Minute,
}

// TrackingParamPrefixes and TrackingParamNames together form the
// deny-list of query parameters stripped by the URL normalizer.
var (
	TrackingParamPrefixes = []string{
		"utm_",
		"mc_",
		"pf_rd_",
		"_hsenc",
		"_hsmi",
	}

	TrackingParamNames = map[string]bool{
		"fbclid":  true,
		"gclid":   true,
		"msclkid": true,
		"ref":     true,
		"ref_":    true,
		"mk_tok":  true,
		"igshid":  true,
	}
)

// TwoLevelPublicSuffixes are second-level-domain suffixes requiring the
// last three labels (instead of two) to produce a base domain.
var TwoLevelPublicSuffixes = map[string]bool{
	"co.uk":  true,
	"com.br": true,
	"ac.uk":  true,
	"ac.nz":  true,
	"gov.uk": true,
	"org.uk": true,
}

// ProductPathSignals are regex fragments identifying candidate product
// URLs during discovery.
var ProductPathSignals = []string{
	`/products?/`,
	`/items?/`,
	`/p/`,
	`/dp/`,
	`/gp/product/`,
	`-p-\d+`,
	`/pd/`,
}

// NonProductPathSignals exclude URLs that would otherwise match a
// product path signal but are clearly not product detail pages.
var NonProductPathSignals = []string{
	`/categor(y|ies)/`,
	`/collections?/`,
	`/search`,
	`/cart`,
	`/checkout`,
	`/account`,
	`/login`,
	`/register`,
	`/blog`,
	`/about`,
	`/contact`,
}

// Event type strings used in the webhook wire format.
const (
	EventTypePriceChanged = "product.price_changed"
	EventTypeStockChanged = "product.stock_changed"
)

// Webhook header names.
const (
	HeaderSignature = "X-Obsrv-Signature"
	HeaderEvent     = "X-Obsrv-Event"
	HeaderDeliveryID = "X-Obsrv-Delivery-ID"
	HeaderUserAgent  = "Obsrv-Webhook/1.0"
)
