// Package history orchestrates the single atomic unit of work per
// product-crawl: update the product's current fields and append an
// immutable history row, archiving oversized raw HTML out-of-line first.
package history

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/obsrv/monitor/internal/change"
	"github.com/obsrv/monitor/internal/fetch"
	"github.com/obsrv/monitor/internal/models"
	"github.com/obsrv/monitor/internal/parse"
	"github.com/obsrv/monitor/internal/repository"
	"github.com/obsrv/monitor/internal/storage"
)

// maxInlineHTMLBytes bounds how much of the fetched body is kept inline
// in raw_crawl_data; anything larger is archived and replaced with a
// pointer plus a truncated preview.
const maxInlineHTMLBytes = 8192

// Writer persists the outcome of one product crawl.
type Writer struct {
	repos    *repository.Repositories
	archiver *storage.Archiver
}

// New builds a Writer. archiver may be a disabled Archiver; oversized
// bodies are then simply truncated with no out-of-line copy.
func New(repos *repository.Repositories, archiver *storage.Archiver) *Writer {
	return &Writer{repos: repos, archiver: archiver}
}

// Write updates product's current fields from parsed/fetchResult and
// appends a new ProductHistoryRecord bound to crawlLog, both within one
// transaction (repository.Repositories.WriteCrawlResult). It returns the
// new history record's ID so callers (the Scheduler) can stamp it onto
// any webhook delivery the change triggers.
func (w *Writer) Write(ctx context.Context, product *models.Product, crawlLog *models.CrawlExecutionLog,
	parsed parse.Result, fetchResult *fetch.Result, detected change.Result) (string, error) {

	now := time.Now()

	if parsed.Name != nil && *parsed.Name != "" {
		product.ProductName = *parsed.Name
	}
	product.CurrentPrice = parsed.Price
	product.CurrentCurrency = parsed.Currency
	product.CurrentStockStatus = models.StockStatus(parsed.StockStatus)
	product.LastCrawledAt = now
	product.IsActive = true

	rawCrawlData, err := w.buildRawCrawlData(ctx, crawlLog.ID, product.ID, fetchResult)
	if err != nil {
		return "", err
	}

	recordID := ulid.Make().String()
	record := &models.ProductHistoryRecord{
		ID:             recordID,
		ProductID:      product.ID,
		WebsiteID:      product.WebsiteID,
		CrawlLogID:     crawlLog.ID,
		CrawlTimestamp: now,
		Price:          parsed.Price,
		Currency:       parsed.Currency,
		StockStatus:    models.StockStatus(parsed.StockStatus),
		PriceChanged:   detected.PriceChanged,
		StockChanged:   detected.StockChanged,
		PriceChangePct: detected.PriceChangePct,
		RawCrawlData:   rawCrawlData,
		PartitionKey:   now.Format("2006-01"),
	}

	if err := w.repos.WriteCrawlResult(ctx, product, record); err != nil {
		return "", err
	}
	return recordID, nil
}

func (w *Writer) buildRawCrawlData(ctx context.Context, crawlLogID, productID string, fetchResult *fetch.Result) (map[string]any, error) {
	data := map[string]any{
		"final_url":  fetchResult.FinalURL,
		"status":     fetchResult.Status,
		"fetched_at": fetchResult.FetchedAt.Format(time.RFC3339),
	}

	body := fetchResult.Body
	if len(body) > maxInlineHTMLBytes {
		if w.archiver.Enabled() {
			key, err := w.archiver.ArchiveHTML(ctx, crawlLogID, productID, []byte(body))
			if err != nil {
				return nil, err
			}
			data["archived_html_key"] = key
		}
		data["html_preview"] = body[:maxInlineHTMLBytes]
		data["html_truncated"] = true
	} else {
		data["html_preview"] = body
		data["html_truncated"] = false
	}

	return data, nil
}
