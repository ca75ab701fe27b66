package repository

import (
	"context"
	"testing"
	"time"

	"github.com/obsrv/monitor/internal/models"
	"github.com/oklog/ulid/v2"
)

func TestWriteCrawlResult_CommitsBothStatements(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepositories(db)
	ctx := context.Background()

	clientID := ulid.Make().String()
	InsertTestClient(t, db, clientID)
	websiteID := ulid.Make().String()
	InsertTestWebsite(t, db, websiteID, clientID, string(models.WebsiteStatusActive))
	productID := ulid.Make().String()
	InsertTestProduct(t, db, productID, websiteID, "https://example.com/a", true)
	crawlLogID := ulid.Make().String()
	InsertTestCrawlLog(t, db, crawlLogID, websiteID, string(models.CrawlStatusRunning))

	product, err := repos.Product.GetByID(ctx, productID)
	if err != nil || product == nil {
		t.Fatalf("GetByID() = (%v, %v)", product, err)
	}

	newPrice := 29.99
	product.CurrentPrice = &newPrice
	product.CurrentStockStatus = models.StockStatusInStock
	product.ProductName = "Updated Name"
	product.LastCrawledAt = time.Now()

	record := &models.ProductHistoryRecord{
		ID:             ulid.Make().String(),
		ProductID:      productID,
		WebsiteID:      websiteID,
		CrawlLogID:     crawlLogID,
		CrawlTimestamp: time.Now(),
		Price:          &newPrice,
		Currency:       "USD",
		StockStatus:    models.StockStatusInStock,
		PriceChanged:   true,
		PartitionKey:   time.Now().Format("2006-01"),
	}

	if err := repos.WriteCrawlResult(ctx, product, record); err != nil {
		t.Fatalf("WriteCrawlResult() error = %v", err)
	}

	updated, err := repos.Product.GetByID(ctx, productID)
	if err != nil || updated == nil {
		t.Fatalf("GetByID() after write = (%v, %v)", updated, err)
	}
	if updated.ProductName != "Updated Name" {
		t.Errorf("ProductName = %q, want Updated Name", updated.ProductName)
	}
	if updated.CurrentPrice == nil || *updated.CurrentPrice != newPrice {
		t.Errorf("CurrentPrice = %v, want %v", updated.CurrentPrice, newPrice)
	}

	latest, err := repos.History.GetLatestByProductID(ctx, productID)
	if err != nil || latest == nil {
		t.Fatalf("GetLatestByProductID() = (%v, %v)", latest, err)
	}
	if !latest.PriceChanged {
		t.Error("expected PriceChanged = true on the new history row")
	}
}
