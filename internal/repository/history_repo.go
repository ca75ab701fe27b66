package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/obsrv/monitor/internal/models"
)

// SQLiteHistoryRepository implements HistoryRepository for SQLite/libsql.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

const historyColumns = `id, product_id, website_id, crawl_log_id, crawl_timestamp, price,
	currency, stock_status, price_changed, stock_changed, price_change_pct, raw_crawl_data,
	partition_key`

func (r *SQLiteHistoryRepository) Create(ctx context.Context, h *models.ProductHistoryRecord) error {
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
	query := `
		INSERT INTO product_history (` + historyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.ProductID, h.WebsiteID, h.CrawlLogID, h.CrawlTimestamp.Format(time.RFC3339),
		nullFloat(h.Price), h.Currency, string(h.StockStatus), priceChanged, stockChanged,
		nullFloat(h.PriceChangePct), rawCrawlData, h.PartitionKey,
	)
	if err != nil {
		return fmt.Errorf("failed to create history record: %w", err)
	}
	return nil
}

func (r *SQLiteHistoryRepository) GetByProductID(ctx context.Context, productID string, limit, offset int) ([]*models.ProductHistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM product_history
		WHERE product_id = ? ORDER BY crawl_timestamp DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, productID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return r.scanHistories(rows)
}

func (r *SQLiteHistoryRepository) GetLatestByProductID(ctx context.Context, productID string) (*models.ProductHistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM product_history
		WHERE product_id = ? ORDER BY crawl_timestamp DESC LIMIT 1`
	return r.scanHistory(r.db.QueryRowContext(ctx, query, productID))
}

// DeleteOlderThan purges history rows for a website past cutoff, scoped by
// partition_key first to let SQLite prune the index before touching the
// timestamp comparison (see DESIGN.md on monthly-partition emulation).
func (r *SQLiteHistoryRepository) DeleteOlderThan(ctx context.Context, websiteID string, cutoff time.Time) (int64, error) {
	cutoffPartition := cutoff.Format("2006-01")
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM product_history
		 WHERE website_id = ? AND partition_key <= ? AND crawl_timestamp < ?`,
		websiteID, cutoffPartition, cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old history: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteHistoryRepository) scanHistory(row *sql.Row) (*models.ProductHistoryRecord, error) {
	var h models.ProductHistoryRecord
	var crawlTimestamp, currency, stockStatus string
	var price, priceChangePct sql.NullFloat64
	var priceChanged, stockChanged int
	var rawCrawlData sql.NullString

	err := row.Scan(
		&h.ID, &h.ProductID, &h.WebsiteID, &h.CrawlLogID, &crawlTimestamp, &price, &currency,
		&stockStatus, &priceChanged, &stockChanged, &priceChangePct, &rawCrawlData, &h.PartitionKey,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan history record: %w", err)
	}
	if err := finishHistoryScan(&h, crawlTimestamp, currency, stockStatus, priceChanged,
		stockChanged, price, priceChangePct, rawCrawlData); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *SQLiteHistoryRepository) scanHistories(rows *sql.Rows) ([]*models.ProductHistoryRecord, error) {
	var histories []*models.ProductHistoryRecord
	for rows.Next() {
		var h models.ProductHistoryRecord
		var crawlTimestamp, currency, stockStatus string
		var price, priceChangePct sql.NullFloat64
		var priceChanged, stockChanged int
		var rawCrawlData sql.NullString

		err := rows.Scan(
			&h.ID, &h.ProductID, &h.WebsiteID, &h.CrawlLogID, &crawlTimestamp, &price, &currency,
			&stockStatus, &priceChanged, &stockChanged, &priceChangePct, &rawCrawlData, &h.PartitionKey,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if err := finishHistoryScan(&h, crawlTimestamp, currency, stockStatus, priceChanged,
			stockChanged, price, priceChangePct, rawCrawlData); err != nil {
			return nil, err
		}
		histories = append(histories, &h)
	}
	return histories, nil
}

// finishHistoryScan fills in the fields that need parsing/unmarshalling
// after the raw column scan into h.
func finishHistoryScan(h *models.ProductHistoryRecord, crawlTimestamp, currency, stockStatus string,
	priceChanged, stockChanged int, price, priceChangePct sql.NullFloat64, rawCrawlData sql.NullString) error {

	h.CrawlTimestamp = mustParseTime(crawlTimestamp)
	h.Currency = currency
	h.StockStatus = models.StockStatus(stockStatus)
	h.PriceChanged = priceChanged == 1
	h.StockChanged = stockChanged == 1
	h.Price = floatPtrFromNull(price)
	h.PriceChangePct = floatPtrFromNull(priceChangePct)
	if rawCrawlData.Valid && rawCrawlData.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(rawCrawlData.String), &m); err != nil {
			return fmt.Errorf("failed to unmarshal raw crawl data: %w", err)
		}
		h.RawCrawlData = m
	}
	return nil
}
