package repository

import (
	"context"
	"testing"
	"time"

	"github.com/obsrv/monitor/internal/models"
	"github.com/oklog/ulid/v2"
)

func TestHistoryRepository_Create(t *testing.T) {
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

	price := 12.50
	pct := 4.2
	record := &models.ProductHistoryRecord{
		ID:             ulid.Make().String(),
		ProductID:      productID,
		WebsiteID:      websiteID,
		CrawlLogID:     crawlLogID,
		CrawlTimestamp: time.Now(),
		Price:          &price,
		Currency:       "USD",
		StockStatus:    models.StockStatusInStock,
		PriceChanged:   true,
		PriceChangePct: &pct,
		RawCrawlData:   map[string]any{"source": "test"},
		PartitionKey:   time.Now().Format("2006-01"),
	}

	if err := repos.History.Create(ctx, record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repos.History.GetLatestByProductID(ctx, productID)
	if err != nil {
		t.Fatalf("GetLatestByProductID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetLatestByProductID() returned nil")
	}
	if !got.PriceChanged {
		t.Error("expected PriceChanged = true")
	}
	if got.RawCrawlData["source"] != "test" {
		t.Errorf("RawCrawlData[source] = %v, want test", got.RawCrawlData["source"])
	}
}

func TestHistoryRepository_GetByProductID(t *testing.T) {
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

	for i := 0; i < 3; i++ {
		InsertTestHistory(t, db, ulid.Make().String(), productID, websiteID, crawlLogID,
			time.Now().Format("2006-01"))
	}

	records, err := repos.History.GetByProductID(ctx, productID, 10, 0)
	if err != nil {
		t.Fatalf("GetByProductID() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("len(records) = %d, want 3", len(records))
	}
}

func TestHistoryRepository_DeleteOlderThan(t *testing.T) {
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

	InsertTestHistory(t, db, ulid.Make().String(), productID, websiteID, crawlLogID, "2020-01")

	n, err := repos.History.DeleteOlderThan(ctx, websiteID, time.Now())
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteOlderThan() = %d, want 1", n)
	}
}
