package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glucolink/glucolink/internal/models"
	"github.com/glucolink/glucolink/internal/shared"
)

// TokenRepository persists the single [models.TokenRecord] for the linked account.
//
// Save is an upsert keyed on the fixed identity, so a second authorization
// exchange overwrites the existing row rather than adding one.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new [TokenRepository] with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Save inserts or replaces the token record for its identity.
func (r *TokenRepository) Save(record *models.TokenRecord) error {
	if record.Identity == "" {
		record.Identity = models.Identity
	}

	now := time.Now()
	if record.Created.IsZero() {
		record.Created = now
	}
	record.Updated = now

	if err := record.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO tokens (identity, access_token, refresh_token, token_type, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		record.Identity,
		record.AccessToken,
		record.RefreshToken,
		record.TokenType,
		record.ExpiresAt,
		record.Created,
		record.Updated,
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// Load retrieves the stored token record.
//
// Returns [shared.ErrNotAuthenticated] when no exchange has happened yet.
func (r *TokenRepository) Load() (*models.TokenRecord, error) {
	query := `
		SELECT identity, access_token, refresh_token, token_type, expires_at, created_at, updated_at
		FROM tokens
		WHERE identity = ?
	`

	record := &models.TokenRecord{}
	err := r.db.QueryRow(query, models.Identity).Scan(
		&record.Identity,
		&record.AccessToken,
		&record.RefreshToken,
		&record.TokenType,
		&record.ExpiresAt,
		&record.Created,
		&record.Updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token: %w", err)
	}

	return record, nil
}

// Delete removes the stored token record, unlinking the account.
func (r *TokenRepository) Delete() error {
	if _, err := r.db.Exec("DELETE FROM tokens WHERE identity = ?", models.Identity); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Count returns the number of rows in the token table.
//
// Exists for tests asserting the single-row invariant.
func (r *TokenRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM tokens").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return count, nil
}
