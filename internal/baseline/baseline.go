// Package baseline runs the one-shot fanout over a website's
// newly-approved product URLs: fetch, parse, and create each as a
// tracked Product row, in isolation from its siblings' failures.
package baseline

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/obsrv/monitor/internal/fetch"
	"github.com/obsrv/monitor/internal/models"
	"github.com/obsrv/monitor/internal/parse"
	"github.com/obsrv/monitor/internal/productid"
	"github.com/obsrv/monitor/internal/repository"
	"github.com/obsrv/monitor/internal/urlnorm"
)

// Stats summarizes the outcome of one Run.
type Stats struct {
	Successes int
	Failures  int
}

// Crawler runs the baseline crawl that seeds a website's initial
// Product rows, grounded on worker.go's processCrawlJob/resultCallback
// per-URL error-isolation idiom: one URL's failure never aborts the
// batch.
type Crawler struct {
	repos   *repository.Repositories
	fetcher *fetch.Fetcher
	logger  *slog.Logger
}

// New builds a Crawler.
func New(repos *repository.Repositories, fetcher *fetch.Fetcher, logger *slog.Logger) *Crawler {
	return &Crawler{repos: repos, fetcher: fetcher, logger: logger.With("component", "baseline")}
}

// Run opens a discovery-triggered CrawlExecutionLog, fetches and
// creates a Product for each of productURLs, and on completion updates the
// website's approved_product_count and last_crawl_status, per spec.md
// §4.11. status (to active) and last_successful_crawl_at are updated only
// when at least one URL succeeded.
func (c *Crawler) Run(ctx context.Context, website *models.MonitoredWebsite, productURLs []string) (Stats, error) {
	now := time.Now()
	crawlLog := &models.CrawlExecutionLog{
		ID:          ulid.Make().String(),
		WebsiteID:   website.ID,
		StartedAt:   now,
		Status:      models.CrawlStatusRunning,
		TriggeredBy: models.TriggeredByDiscovery,
	}
	if err := c.repos.CrawlLog.Create(ctx, crawlLog); err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, rawURL := range productURLs {
		if err := c.crawlOne(ctx, website, rawURL); err != nil {
			c.logger.Warn("baseline: url failed", "website_id", website.ID, "url", rawURL, "error", err)
			stats.Failures++
			continue
		}
		stats.Successes++
	}

	completed := time.Now()
	duration := completed.Sub(now).Seconds()
	crawlLog.CompletedAt = &completed
	crawlLog.DurationSeconds = &duration
	crawlLog.ProductsProcessed = stats.Successes
	crawlLog.ErrorsCount = stats.Failures
	if stats.Successes == 0 {
		crawlLog.Status = models.CrawlStatusFailed
	} else if stats.Failures > 0 {
		crawlLog.Status = models.CrawlStatusPartialSuccess
	} else {
		crawlLog.Status = models.CrawlStatusSuccess
	}
	if err := c.repos.CrawlLog.Complete(ctx, crawlLog); err != nil {
		return stats, err
	}

	website.ApprovedProductCount = stats.Successes
	website.LastCrawlStatus = &crawlLog.Status
	if stats.Successes > 0 {
		website.LastSuccessfulCrawlAt = &completed
		website.Status = models.WebsiteStatusActive
	}
	if err := c.repos.Website.Update(ctx, website); err != nil {
		return stats, err
	}

	return stats, nil
}

func (c *Crawler) crawlOne(ctx context.Context, website *models.MonitoredWebsite, rawURL string) error {
	result, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}

	parsed := parse.Parse(result.Body)
	extractedID, method := productid.Extract(result.FinalURL, result.Body)

	name := rawURL
	if parsed.Name != nil && *parsed.Name != "" {
		name = *parsed.Name
	}

	now := time.Now()
	product := &models.Product{
		ID:                 ulid.Make().String(),
		WebsiteID:          website.ID,
		OriginalURL:        rawURL,
		NormalizedURL:      urlnorm.Normalize(result.FinalURL, false),
		ExtractionMethod:   string(method),
		ProductName:        name,
		CurrentPrice:       parsed.Price,
		CurrentCurrency:    parsed.Currency,
		CurrentStockStatus: models.StockStatus(parsed.StockStatus),
		LastCrawledAt:      now,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if extractedID != "" {
		product.ExtractedProductID = &extractedID
	}

	return c.repos.Product.Create(ctx, product)
}
