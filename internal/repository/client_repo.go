package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/obsrv/monitor/internal/models"
)

// SQLiteClientRepository implements ClientRepository for SQLite/libsql.
type SQLiteClientRepository struct {
	db *sql.DB
}

// NewSQLiteClientRepository creates a new SQLite client repository.
func NewSQLiteClientRepository(db *sql.DB) *SQLiteClientRepository {
	return &SQLiteClientRepository{db: db}
}

func (r *SQLiteClientRepository) Create(ctx context.Context, c *models.Client) error {
	query := `
		INSERT INTO clients (id, webhook_secret_current, webhook_secret_previous,
			secret_rotation_expires_at, max_websites, max_products_per_website,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.WebhookSecretCurrent,
		nullStringPtr(c.WebhookSecretPrevious),
		nullTime(c.SecretRotationExpiresAt),
		c.MaxWebsites,
		c.MaxProductsPerWebsite,
		c.CreatedAt.Format(time.RFC3339),
		c.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (r *SQLiteClientRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	query := `
		SELECT id, webhook_secret_current, webhook_secret_previous,
			secret_rotation_expires_at, max_websites, max_products_per_website,
			created_at, updated_at
		FROM clients WHERE id = ?
	`
	return r.scanClient(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteClientRepository) Update(ctx context.Context, c *models.Client) error {
	query := `
		UPDATE clients SET webhook_secret_current = ?, webhook_secret_previous = ?,
			secret_rotation_expires_at = ?, max_websites = ?, max_products_per_website = ?,
			updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		c.WebhookSecretCurrent,
		nullStringPtr(c.WebhookSecretPrevious),
		nullTime(c.SecretRotationExpiresAt),
		c.MaxWebsites,
		c.MaxProductsPerWebsite,
		time.Now().Format(time.RFC3339),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return nil
}

// RotateWebhookSecret moves the current secret to previous and installs a
// new current secret, per spec.md §4.8's rotation grace period.
func (r *SQLiteClientRepository) RotateWebhookSecret(ctx context.Context, id, newSecret string, previousExpiresAt time.Time) error {
	query := `
		UPDATE clients SET webhook_secret_previous = webhook_secret_current,
			webhook_secret_current = ?, secret_rotation_expires_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, newSecret, previousExpiresAt.Format(time.RFC3339),
		time.Now().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to rotate webhook secret: %w", err)
	}
	return nil
}

func (r *SQLiteClientRepository) ClearExpiredPreviousSecrets(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE clients SET webhook_secret_previous = NULL, secret_rotation_expires_at = NULL,
			updated_at = ?
		WHERE webhook_secret_previous IS NOT NULL AND secret_rotation_expires_at <= ?
	`
	res, err := r.db.ExecContext(ctx, query, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired secrets: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteClientRepository) scanClient(row *sql.Row) (*models.Client, error) {
	var c models.Client
	var createdAt, updatedAt string
	var webhookSecretPrevious, secretRotationExpiresAt sql.NullString

	err := row.Scan(
		&c.ID, &c.WebhookSecretCurrent, &webhookSecretPrevious, &secretRotationExpiresAt,
		&c.MaxWebsites, &c.MaxProductsPerWebsite, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan client: %w", err)
	}

	c.WebhookSecretPrevious = strPtrFromNull(webhookSecretPrevious)
	c.SecretRotationExpiresAt = timePtrFromNull(secretRotationExpiresAt)
	c.CreatedAt = mustParseTime(createdAt)
	c.UpdatedAt = mustParseTime(updatedAt)

	return &c, nil
}
