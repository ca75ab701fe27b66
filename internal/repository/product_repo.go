package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/obsrv/monitor/internal/models"
)

// SQLiteProductRepository implements ProductRepository for SQLite/libsql.
type SQLiteProductRepository struct {
	db *sql.DB
}

// NewSQLiteProductRepository creates a new SQLite product repository.
func NewSQLiteProductRepository(db *sql.DB) *SQLiteProductRepository {
	return &SQLiteProductRepository{db: db}
}

const productColumns = `id, website_id, original_url, normalized_url, extracted_product_id,
	extraction_method, product_name, current_price, current_currency, current_stock_status,
	last_crawled_at, is_active, delisted_at, created_at, updated_at`

func (r *SQLiteProductRepository) Create(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	isActive := 0
	if p.IsActive {
		isActive = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.WebsiteID, p.OriginalURL, p.NormalizedURL, nullStringPtr(p.ExtractedProductID),
		p.ExtractionMethod, p.ProductName, nullFloat(p.CurrentPrice), p.CurrentCurrency,
		string(p.CurrentStockStatus), p.LastCrawledAt.Format(time.RFC3339), isActive,
		nullTime(p.DelistedAt), p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (r *SQLiteProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	return r.scanProduct(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteProductRepository) GetByNormalizedURL(ctx context.Context, websiteID, normalizedURL string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE website_id = ? AND normalized_url = ?`
	return r.scanProduct(r.db.QueryRowContext(ctx, query, websiteID, normalizedURL))
}

func (r *SQLiteProductRepository) Update(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products SET original_url = ?, normalized_url = ?, extracted_product_id = ?,
			extraction_method = ?, product_name = ?, current_price = ?, current_currency = ?,
			current_stock_status = ?, last_crawled_at = ?, is_active = ?, delisted_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	isActive := 0
	if p.IsActive {
		isActive = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		p.OriginalURL, p.NormalizedURL, nullStringPtr(p.ExtractedProductID), p.ExtractionMethod,
		p.ProductName, nullFloat(p.CurrentPrice), p.CurrentCurrency, string(p.CurrentStockStatus),
		p.LastCrawledAt.Format(time.RFC3339), isActive, nullTime(p.DelistedAt),
		time.Now().Format(time.RFC3339), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

func (r *SQLiteProductRepository) ListActiveByWebsiteID(ctx context.Context, websiteID string) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE website_id = ? AND is_active = 1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, websiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return r.scanProducts(rows)
}

func (r *SQLiteProductRepository) CountActiveByWebsiteID(ctx context.Context, websiteID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE website_id = ? AND is_active = 1`, websiteID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// MarkDelisted flags products on websiteID not present in currentURLs as
// inactive, per spec.md §4.5's discovery-driven delisting rule: a product
// absent from a fresh crawl for a full cycle is delisted, not deleted.
func (r *SQLiteProductRepository) MarkDelisted(ctx context.Context, websiteID string, currentURLs []string, now time.Time) (int64, error) {
	if len(currentURLs) == 0 {
		res, err := r.db.ExecContext(ctx,
			`UPDATE products SET is_active = 0, delisted_at = ?, updated_at = ?
			 WHERE website_id = ? AND is_active = 1`,
			now.Format(time.RFC3339), now.Format(time.RFC3339), websiteID)
		if err != nil {
			return 0, fmt.Errorf("failed to mark products delisted: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := make([]string, len(currentURLs))
	args := make([]any, 0, len(currentURLs)+3)
	args = append(args, now.Format(time.RFC3339), now.Format(time.RFC3339), websiteID)
	for i, u := range currentURLs {
		placeholders[i] = "?"
		args = append(args, u)
	}
	query := fmt.Sprintf(`
		UPDATE products SET is_active = 0, delisted_at = ?, updated_at = ?
		WHERE website_id = ? AND is_active = 1 AND normalized_url NOT IN (%s)
	`, strings.Join(placeholders, ", "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark products delisted: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteProductRepository) scanProduct(row *sql.Row) (*models.Product, error) {
	var p models.Product
	var extractedProductID sql.NullString
	var currentPrice sql.NullFloat64
	var currentStockStatus, lastCrawledAt, createdAt, updatedAt string
	var isActive int
	var delistedAt sql.NullString

	err := row.Scan(
		&p.ID, &p.WebsiteID, &p.OriginalURL, &p.NormalizedURL, &extractedProductID,
		&p.ExtractionMethod, &p.ProductName, &currentPrice, &p.CurrentCurrency,
		&currentStockStatus, &lastCrawledAt, &isActive, &delistedAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	finishProductScan(&p, extractedProductID, currentPrice, currentStockStatus, lastCrawledAt,
		isActive, delistedAt, createdAt, updatedAt)
	return &p, nil
}

func (r *SQLiteProductRepository) scanProducts(rows *sql.Rows) ([]*models.Product, error) {
	var products []*models.Product
	for rows.Next() {
		var p models.Product
		var extractedProductID sql.NullString
		var currentPrice sql.NullFloat64
		var currentStockStatus, lastCrawledAt, createdAt, updatedAt string
		var isActive int
		var delistedAt sql.NullString

		err := rows.Scan(
			&p.ID, &p.WebsiteID, &p.OriginalURL, &p.NormalizedURL, &extractedProductID,
			&p.ExtractionMethod, &p.ProductName, &currentPrice, &p.CurrentCurrency,
			&currentStockStatus, &lastCrawledAt, &isActive, &delistedAt, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		finishProductScan(&p, extractedProductID, currentPrice, currentStockStatus, lastCrawledAt,
			isActive, delistedAt, createdAt, updatedAt)
		products = append(products, &p)
	}
	return products, nil
}

func finishProductScan(p *models.Product, extractedProductID sql.NullString, currentPrice sql.NullFloat64,
	currentStockStatus, lastCrawledAt string, isActive int, delistedAt sql.NullString,
	createdAt, updatedAt string) {

	p.ExtractedProductID = strPtrFromNull(extractedProductID)
	p.CurrentPrice = floatPtrFromNull(currentPrice)
	p.CurrentStockStatus = models.StockStatus(currentStockStatus)
	p.LastCrawledAt = mustParseTime(lastCrawledAt)
	p.IsActive = isActive == 1
	p.DelistedAt = timePtrFromNull(delistedAt)
	p.CreatedAt = mustParseTime(createdAt)
	p.UpdatedAt = mustParseTime(updatedAt)
}
