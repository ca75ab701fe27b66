// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/obsrv/monitor/internal/constants"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Crawl / Fetcher (C3)
	DefaultCrawlTimeout     time.Duration
	MaxConcurrentCrawls     int
	CrawlRateLimitPerDomain int
	CrawlRetryAttempts      int
	CrawlRetryBackoffBase   time.Duration
	CrawlUserAgent          string

	// Webhook (C8/C9)
	WebhookTimeout                   time.Duration
	WebhookMaxRetries                int
	WebhookRetryBackoffBase          time.Duration
	WebhookSignatureToleranceSeconds int

	// Retention
	DefaultRetentionDays int
	MaxRetentionDays     int

	// Environment ("production" enforces https:// webhook URLs)
	Environment string

	// Object storage (optional raw-HTML archival, C7)
	StorageEnabled   bool
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageRegion    string
	StorageBucket    string

	// Operator control surface (C12)
	OperatorToken     string
	OperatorJWTSecret string

	// Encryption for webhook secrets at rest
	EncryptionKey []byte // 32-byte key for AES-256-GCM
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt(constants.EnvPort, constants.DefaultPort),
		BaseURL:     getEnv(constants.EnvBaseURL, "http://localhost:8080"),
		DatabaseURL: getEnv(constants.EnvDatabaseURL, "file:monitor.db?_journal=WAL&_timeout=5000"),

		DefaultCrawlTimeout:     getEnvDuration(constants.EnvDefaultCrawlTimeout, constants.DefaultCrawlTimeoutSeconds*time.Second),
		MaxConcurrentCrawls:     getEnvInt(constants.EnvMaxConcurrentCrawls, constants.DefaultMaxConcurrentCrawls),
		CrawlRateLimitPerDomain: getEnvInt(constants.EnvCrawlRateLimitPerDomain, constants.DefaultCrawlRateLimitPerDomain),
		CrawlRetryAttempts:      getEnvInt(constants.EnvCrawlRetryAttempts, constants.DefaultCrawlRetryAttempts),
		CrawlRetryBackoffBase:   getEnvDuration(constants.EnvCrawlRetryBackoffBase, constants.DefaultCrawlRetryBackoffBase),
		CrawlUserAgent:          getEnv(constants.EnvCrawlUserAgent, constants.DefaultCrawlUserAgent),

		WebhookTimeout:                   getEnvDuration(constants.EnvWebhookTimeout, constants.DefaultWebhookTimeoutSeconds*time.Second),
		WebhookMaxRetries:                getEnvInt(constants.EnvWebhookMaxRetries, constants.DefaultWebhookMaxRetries),
		WebhookRetryBackoffBase:          getEnvDuration(constants.EnvWebhookRetryBackoffBase, constants.DefaultWebhookRetryBackoffBase),
		WebhookSignatureToleranceSeconds: getEnvInt(constants.EnvWebhookSignatureToleranceSeconds, constants.DefaultWebhookSignatureToleranceSeconds),

		DefaultRetentionDays: getEnvInt(constants.EnvDefaultRetentionDays, constants.DefaultRetentionDays),
		MaxRetentionDays:     getEnvInt(constants.EnvMaxRetentionDays, constants.MaxRetentionDaysCap),

		Environment: getEnv(constants.EnvEnvironment, constants.DefaultEnvironment),

		StorageEndpoint:  getEnv(constants.EnvAWSEndpointS3, ""),
		StorageAccessKey: getEnv(constants.EnvAWSAccessKeyID, ""),
		StorageSecretKey: getEnv(constants.EnvAWSSecretKey, ""),
		StorageRegion:    getEnv(constants.EnvAWSRegion, "auto"),
		StorageBucket:    getEnv(constants.EnvStorageBucket, ""),

		OperatorToken:     getEnv(constants.EnvOperatorToken, ""),
		OperatorJWTSecret: getEnv(constants.EnvOperatorJWTSecret, ""),
	}

	cfg.StorageEnabled = getEnvBool(constants.EnvStorageEnabled, false) &&
		cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	// Set up encryption key (if not explicitly set, derive it from the operator
	// JWT secret, or from the operator token when no JWT secret is set).
	encKeyStr := getEnv(constants.EnvEncryptionKey, "")
	if encKeyStr != "" {
		decoded, err := base64.StdEncoding.DecodeString(encKeyStr)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be a base64-encoded 32-byte key")
		}
		cfg.EncryptionKey = decoded
	} else {
		seed := cfg.OperatorJWTSecret
		if seed == "" {
			seed = cfg.OperatorToken
		}
		cfg.EncryptionKey = deriveEncryptionKey(seed)
	}

	if cfg.Environment == "production" && cfg.OperatorToken == "" && cfg.OperatorJWTSecret == "" {
		return nil, fmt.Errorf("OPERATOR_TOKEN or OPERATOR_JWT_SECRET is required in production")
	}

	return cfg, nil
}

// RequireHTTPSWebhooks reports whether webhook endpoint URLs must use
// https:// (enforced only in production, per spec.md §6).
func (c *Config) RequireHTTPSWebhooks() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// Plain integers are treated as seconds (matches spec.md §6's
		// "(seconds)" env vars); otherwise parse as a Go duration string.
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string
// using HKDF. Appropriate for deriving keys from high-entropy secrets;
// for low-entropy passwords a dedicated password-hash KDF would be used
// instead, but operator secrets here are expected to be generated, not
// user-chosen.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("obsrv-monitor-encryption-key-v1")
	info := []byte("aes-256-gcm-encryption")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
