package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/obsrv/monitor/internal/models"
)

// WriteCrawlResult updates a product's current observed fields and
// inserts its new history row in one transaction, per spec.md §4.7: if
// either statement fails, neither persists. Grounded on
// WebsiteRepository.IncrementConsecutiveFailures' BeginTx/defer
// Rollback/commit-once idiom.
func (r *Repositories) WriteCrawlResult(ctx context.Context, p *models.Product, h *models.ProductHistoryRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	isActive := 0
	if p.IsActive {
		isActive = 1
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE products SET product_name = ?, current_price = ?, current_currency = ?,
			current_stock_status = ?, last_crawled_at = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`,
		p.ProductName, nullFloat(p.CurrentPrice), p.CurrentCurrency, string(p.CurrentStockStatus),
		p.LastCrawledAt.Format(time.RFC3339), isActive, time.Now().Format(time.RFC3339), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	var rawCrawlData sql.NullString
	if h.RawCrawlData != nil {
		data, err := json.Marshal(h.RawCrawlData)
		if err != nil {
			return fmt.Errorf("failed to marshal raw crawl data: %w", err)
		}
		rawCrawlData = sql.NullString{String: string(data), Valid: true}
	}
	priceChanged, stockChanged := 0, 0
	if h.PriceChanged {
		priceChanged = 1
	}
	if h.StockChanged {
		stockChanged = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		h.ID, h.ProductID, h.WebsiteID, h.CrawlLogID, h.CrawlTimestamp.Format(time.RFC3339),
		nullFloat(h.Price), h.Currency, string(h.StockStatus), priceChanged, stockChanged,
		nullFloat(h.PriceChangePct), rawCrawlData, h.PartitionKey,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
