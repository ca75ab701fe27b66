package repository

import (
	"context"
	"testing"
	"time"

	"github.com/obsrv/monitor/internal/models"
	"github.com/oklog/ulid/v2"
)

func TestWebhookLogRepository_Create(t *testing.T) {
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
	historyID := ulid.Make().String()
	InsertTestHistory(t, db, historyID, productID, websiteID, crawlLogID, time.Now().Format("2006-01"))

	delivery := &models.WebhookDeliveryLog{
		ID:                ulid.Make().String(),
		ProductHistoryID:  historyID,
		WebsiteID:         websiteID,
		TargetURL:         "https://client.example.com/webhook",
		Payload:           `{"event":"product.price_changed"}`,
		Signature:         "t=1,v1=abc",
		TimestampHeader:   "t=1",
		AttemptNumber:     1,
		DeliveryTimestamp: time.Now(),
		Status:            models.DeliveryStatusPending,
	}

	if err := repos.WebhookLog.Create(ctx, delivery); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repos.WebhookLog.GetByID(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByID() returned nil")
	}
	if got.Status != models.DeliveryStatusPending {
		t.Errorf("Status = %s, want %s", got.Status, models.DeliveryStatusPending)
	}
}

func TestWebhookLogRepository_GetByID_NotFound(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	got, err := repos.WebhookLog.GetByID(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent webhook delivery log")
	}
}

func TestWebhookLogRepository_Update(t *testing.T) {
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
	historyID := ulid.Make().String()
	InsertTestHistory(t, db, historyID, productID, websiteID, crawlLogID, time.Now().Format("2006-01"))

	delivery := &models.WebhookDeliveryLog{
		ID:                ulid.Make().String(),
		ProductHistoryID:  historyID,
		WebsiteID:         websiteID,
		TargetURL:         "https://client.example.com/webhook",
		Payload:           `{}`,
		Signature:         "t=1,v1=abc",
		TimestampHeader:   "t=1",
		AttemptNumber:     1,
		DeliveryTimestamp: time.Now(),
		Status:            models.DeliveryStatusPending,
	}
	if err := repos.WebhookLog.Create(ctx, delivery); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	retryAt := time.Now().Add(5 * time.Minute)
	delivery.AttemptNumber = 2
	delivery.Status = models.DeliveryStatusRetrying
	delivery.NextRetryAt = &retryAt
	errMsg := "connection refused"
	delivery.ErrorMessage = &errMsg

	if err := repos.WebhookLog.Update(ctx, delivery); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repos.WebhookLog.GetByID(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.DeliveryStatusRetrying {
		t.Errorf("Status = %s, want %s", got.Status, models.DeliveryStatusRetrying)
	}
	if got.NextRetryAt == nil {
		t.Error("expected NextRetryAt to be set")
	}
}

func TestWebhookLogRepository_GetPendingRetries(t *testing.T) {
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
	historyID := ulid.Make().String()
	InsertTestHistory(t, db, historyID, productID, websiteID, crawlLogID, time.Now().Format("2006-01"))

	due := &models.WebhookDeliveryLog{
		ID:                ulid.Make().String(),
		ProductHistoryID:  historyID,
		WebsiteID:         websiteID,
		TargetURL:         "https://client.example.com/webhook",
		Payload:           `{}`,
		Signature:         "t=1,v1=abc",
		TimestampHeader:   "t=1",
		AttemptNumber:     1,
		DeliveryTimestamp: time.Now(),
		Status:            models.DeliveryStatusRetrying,
		NextRetryAt:       timePtr(time.Now().Add(-1 * time.Minute)),
	}
	if err := repos.WebhookLog.Create(ctx, due); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	notDue := &models.WebhookDeliveryLog{
		ID:                ulid.Make().String(),
		ProductHistoryID:  historyID,
		WebsiteID:         websiteID,
		TargetURL:         "https://client.example.com/webhook",
		Payload:           `{}`,
		Signature:         "t=1,v1=abc",
		TimestampHeader:   "t=1",
		AttemptNumber:     1,
		DeliveryTimestamp: time.Now(),
		Status:            models.DeliveryStatusRetrying,
		NextRetryAt:       timePtr(time.Now().Add(1 * time.Hour)),
	}
	if err := repos.WebhookLog.Create(ctx, notDue); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	pending, err := repos.WebhookLog.GetPendingRetries(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("GetPendingRetries() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != due.ID {
		t.Errorf("GetPendingRetries() = %v, want only %s", pending, due.ID)
	}
}

func TestWebhookLogRepository_ListByStatus(t *testing.T) {
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
	historyID := ulid.Make().String()
	InsertTestHistory(t, db, historyID, productID, websiteID, crawlLogID, time.Now().Format("2006-01"))

	failed := &models.WebhookDeliveryLog{
		ID:                ulid.Make().String(),
		ProductHistoryID:  historyID,
		WebsiteID:         websiteID,
		TargetURL:         "https://client.example.com/webhook",
		Payload:           `{}`,
		Signature:         "t=1,v1=abc",
		TimestampHeader:   "t=1",
		AttemptNumber:     3,
		DeliveryTimestamp: time.Now(),
		Status:            models.DeliveryStatusExhausted,
	}
	if err := repos.WebhookLog.Create(ctx, failed); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	success := &models.WebhookDeliveryLog{
		ID:                ulid.Make().String(),
		ProductHistoryID:  historyID,
		WebsiteID:         websiteID,
		TargetURL:         "https://client.example.com/webhook",
		Payload:           `{}`,
		Signature:         "t=1,v1=abc",
		TimestampHeader:   "t=1",
		AttemptNumber:     1,
		DeliveryTimestamp: time.Now(),
		Status:            models.DeliveryStatusSuccess,
	}
	if err := repos.WebhookLog.Create(ctx, success); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repos.WebhookLog.ListByStatus(ctx, models.DeliveryStatusExhausted, 10, 0)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != failed.ID {
		t.Errorf("ListByStatus(exhausted) = %v, want only %s", got, failed.ID)
	}
}
