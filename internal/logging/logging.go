// Package logging provides a configured slog logger with:
// - TTY detection for human-readable vs JSON output
// - LOG_FORMAT env var override (text/json)
// - LOG_LEVEL env var (debug/info/warn/error)
// - Context-based website/crawl ID extraction for correlated logs
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// ContextKey is a type for context keys used in logging.
type ContextKey string

const (
	// WebsiteIDKey is the context key for the website being processed.
	WebsiteIDKey ContextKey = "log_website_id"
	// CrawlIDKey is the context key for the running crawl execution log.
	CrawlIDKey ContextKey = "log_crawl_id"
)

// WithWebsiteID adds a website ID to the context for logging.
func WithWebsiteID(ctx context.Context, websiteID string) context.Context {
	return context.WithValue(ctx, WebsiteIDKey, websiteID)
}

// WithCrawlID adds a crawl execution log ID to the context for logging.
func WithCrawlID(ctx context.Context, crawlID string) context.Context {
	return context.WithValue(ctx, CrawlIDKey, crawlID)
}

// GetWebsiteID extracts the website ID from context.
func GetWebsiteID(ctx context.Context) string {
	if v := ctx.Value(WebsiteIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetCrawlID extracts the crawl ID from context.
func GetCrawlID(ctx context.Context) string {
	if v := ctx.Value(CrawlIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FromContext returns a logger with website/crawl IDs from context added as attributes.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}
	if websiteID := GetWebsiteID(ctx); websiteID != "" {
		logger = logger.With("website_id", websiteID)
	}
	if crawlID := GetCrawlID(ctx); crawlID != "" {
		logger = logger.With("crawl_id", crawlID)
	}
	return logger
}

// New creates a new configured logger.
// Format is determined by:
//  1. LOG_FORMAT env var (text/json)
//  2. TTY detection (text for TTY, JSON otherwise)
//
// Level is determined by LOG_LEVEL env var (debug/info/warn/error, default: info).
func New() *slog.Logger {
	logFormat := os.Getenv("LOG_FORMAT")
	format := "json"
	if logFormat == "text" || (logFormat == "" && isatty(os.Stdout)) {
		format = "text"
	}

	level := parseLogLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault creates a new logger and sets it as the default slog logger.
// Returns the created logger for additional use.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

// isatty returns true if the file is a terminal.
func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
