package repository

import (
	"context"
	"testing"
	"time"

	"github.com/obsrv/monitor/internal/models"
	"github.com/oklog/ulid/v2"
)

func TestClientRepository_Create(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	client := &models.Client{
		ID:                    ulid.Make().String(),
		WebhookSecretCurrent:  "secret-v1",
		MaxWebsites:           10,
		MaxProductsPerWebsite: 100,
		CreatedAt:             time.Now(),
		UpdatedAt:             time.Now(),
	}

	if err := repos.Client.Create(ctx, client); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repos.Client.GetByID(ctx, client.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByID() returned nil")
	}
	if got.WebhookSecretCurrent != client.WebhookSecretCurrent {
		t.Errorf("WebhookSecretCurrent = %s, want %s", got.WebhookSecretCurrent, client.WebhookSecretCurrent)
	}
	if got.WebhookSecretPrevious != nil {
		t.Error("expected nil WebhookSecretPrevious for a freshly created client")
	}
}

func TestClientRepository_GetByID_NotFound(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	got, err := repos.Client.GetByID(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent client")
	}
}

func TestClientRepository_RotateWebhookSecret(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	client := &models.Client{
		ID:                    ulid.Make().String(),
		WebhookSecretCurrent:  "secret-v1",
		MaxWebsites:           10,
		MaxProductsPerWebsite: 100,
		CreatedAt:             time.Now(),
		UpdatedAt:             time.Now(),
	}
	if err := repos.Client.Create(ctx, client); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	expiry := time.Now().Add(24 * time.Hour)
	if err := repos.Client.RotateWebhookSecret(ctx, client.ID, "secret-v2", expiry); err != nil {
		t.Fatalf("RotateWebhookSecret() error = %v", err)
	}

	got, err := repos.Client.GetByID(ctx, client.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.WebhookSecretCurrent != "secret-v2" {
		t.Errorf("WebhookSecretCurrent = %s, want secret-v2", got.WebhookSecretCurrent)
	}
	if got.WebhookSecretPrevious == nil || *got.WebhookSecretPrevious != "secret-v1" {
		t.Errorf("WebhookSecretPrevious = %v, want secret-v1", got.WebhookSecretPrevious)
	}
	if got.SecretRotationExpiresAt == nil {
		t.Error("expected SecretRotationExpiresAt to be set after rotation")
	}
}

func TestClientRepository_ClearExpiredPreviousSecrets(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	client := &models.Client{
		ID:                    ulid.Make().String(),
		WebhookSecretCurrent:  "secret-v1",
		MaxWebsites:           10,
		MaxProductsPerWebsite: 100,
		CreatedAt:             time.Now(),
		UpdatedAt:             time.Now(),
	}
	if err := repos.Client.Create(ctx, client); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	past := time.Now().Add(-1 * time.Hour)
	if err := repos.Client.RotateWebhookSecret(ctx, client.ID, "secret-v2", past); err != nil {
		t.Fatalf("RotateWebhookSecret() error = %v", err)
	}

	n, err := repos.Client.ClearExpiredPreviousSecrets(ctx, time.Now())
	if err != nil {
		t.Fatalf("ClearExpiredPreviousSecrets() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ClearExpiredPreviousSecrets() = %d, want 1", n)
	}

	got, err := repos.Client.GetByID(ctx, client.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.WebhookSecretPrevious != nil {
		t.Error("expected WebhookSecretPrevious to be cleared")
	}
}
