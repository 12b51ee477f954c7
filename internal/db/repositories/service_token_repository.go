// ServiceTokenRepository: lookup by token prefix for authentication, creation,
// revocation, and last-used timestamp updates for machine credentials used by
// collaborating subsystems writing audit records.

package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orgsuite/orgsuite/internal/apperr"
	"github.com/orgsuite/orgsuite/internal/db/models"
)

// ServiceTokenRepository handles service token database operations
type ServiceTokenRepository struct {
	db *sql.DB
}

// NewServiceTokenRepository creates a new ServiceTokenRepository
func NewServiceTokenRepository(db *sql.DB) *ServiceTokenRepository {
	return &ServiceTokenRepository{db: db}
}

// Create creates a new service token
func (r *ServiceTokenRepository) Create(ctx context.Context, token *models.ServiceToken) error {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now().UTC()

	scopesJSON, err := json.Marshal(token.Scopes)
	if err != nil {
		return apperr.Store(fmt.Errorf("marshal scopes: %w", err))
	}

	query := `
		INSERT INTO service_tokens (id, organization_id, name, token_hash, token_prefix, scopes, expires_at, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		token.ID,
		token.OrganizationID,
		token.Name,
		token.TokenHash,
		token.TokenPrefix,
		scopesJSON,
		token.ExpiresAt,
		token.LastUsedAt,
		token.CreatedAt,
	)
	if err != nil {
		return apperr.Store(fmt.Errorf("insert service token: %w", err))
	}
	return nil
}

// GetByPrefix retrieves service tokens matching a prefix (for authentication).
// The prefix narrows the candidate set; the caller still verifies the full
// secret against each candidate's hash.
func (r *ServiceTokenRepository) GetByPrefix(ctx context.Context, tokenPrefix string) ([]*models.ServiceToken, error) {
	query := `
		SELECT id, organization_id, name, token_hash, token_prefix, scopes, expires_at, last_used_at, created_at
		FROM service_tokens
		WHERE token_prefix = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tokenPrefix)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("list service tokens by prefix: %w", err))
	}
	defer rows.Close()

	tokens := make([]*models.ServiceToken, 0)
	for rows.Next() {
		token := &models.ServiceToken{}
		var scopesJSON []byte

		err := rows.Scan(
			&token.ID,
			&token.OrganizationID,
			&token.Name,
			&token.TokenHash,
			&token.TokenPrefix,
			&scopesJSON,
			&token.ExpiresAt,
			&token.LastUsedAt,
			&token.CreatedAt,
		)
		if err != nil {
			return nil, apperr.Store(err)
		}

		if err := json.Unmarshal(scopesJSON, &token.Scopes); err != nil {
			return nil, apperr.Store(err)
		}

		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Store(err)
	}
	return tokens, nil
}

// GetByID retrieves a service token by ID
func (r *ServiceTokenRepository) GetByID(ctx context.Context, tokenID string) (*models.ServiceToken, error) {
	query := `
		SELECT id, organization_id, name, token_hash, token_prefix, scopes, expires_at, last_used_at, created_at
		FROM service_tokens
		WHERE id = $1
	`

	token := &models.ServiceToken{}
	var scopesJSON []byte

	err := r.db.QueryRowContext(ctx, query, tokenID).Scan(
		&token.ID,
		&token.OrganizationID,
		&token.Name,
		&token.TokenHash,
		&token.TokenPrefix,
		&scopesJSON,
		&token.ExpiresAt,
		&token.LastUsedAt,
		&token.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, apperr.Store(fmt.Errorf("get service token: %w", err))
	}

	if err := json.Unmarshal(scopesJSON, &token.Scopes); err != nil {
		return nil, apperr.Store(err)
	}

	return token, nil
}

// UpdateLastUsed updates the last_used_at timestamp for a service token
func (r *ServiceTokenRepository) UpdateLastUsed(ctx context.Context, tokenID string) error {
	query := `
		UPDATE service_tokens
		SET last_used_at = $2
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, tokenID, time.Now().UTC()); err != nil {
		return apperr.Store(fmt.Errorf("update service token last used: %w", err))
	}
	return nil
}

// ListByOrganization retrieves all tokens issued to one organization,
// newest first.
func (r *ServiceTokenRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.ServiceToken, error) {
	query := `
		SELECT id, organization_id, name, token_hash, token_prefix, scopes, expires_at, last_used_at, created_at
		FROM service_tokens
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("list service tokens: %w", err))
	}
	defer rows.Close()

	tokens := make([]*models.ServiceToken, 0)
	for rows.Next() {
		token := &models.ServiceToken{}
		var scopesJSON []byte

		err := rows.Scan(
			&token.ID,
			&token.OrganizationID,
			&token.Name,
			&token.TokenHash,
			&token.TokenPrefix,
			&scopesJSON,
			&token.ExpiresAt,
			&token.LastUsedAt,
			&token.CreatedAt,
		)
		if err != nil {
			return nil, apperr.Store(err)
		}

		if err := json.Unmarshal(scopesJSON, &token.Scopes); err != nil {
			return nil, apperr.Store(err)
		}

		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Store(err)
	}
	return tokens, nil
}

// FindExpiringTokens returns tokens that expire within warningDays and have
// not yet been warned about. Already-expired tokens are excluded.
func (r *ServiceTokenRepository) FindExpiringTokens(ctx context.Context, warningDays int) ([]*models.ServiceToken, error) {
	query := `
		SELECT id, organization_id, name, token_prefix, expires_at
		FROM service_tokens
		WHERE expires_at IS NOT NULL
		  AND expires_at > NOW()
		  AND expires_at <= NOW() + ($1 || ' days')::interval
		  AND expiry_notification_sent_at IS NULL
		ORDER BY expires_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, warningDays)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("find expiring service tokens: %w", err))
	}
	defer rows.Close()

	tokens := make([]*models.ServiceToken, 0)
	for rows.Next() {
		token := &models.ServiceToken{}
		err := rows.Scan(
			&token.ID,
			&token.OrganizationID,
			&token.Name,
			&token.TokenPrefix,
			&token.ExpiresAt,
		)
		if err != nil {
			return nil, apperr.Store(err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Store(err)
	}
	return tokens, nil
}

// MarkExpiryNotificationSent records that the expiry warning for a token went out.
func (r *ServiceTokenRepository) MarkExpiryNotificationSent(ctx context.Context, tokenID string) error {
	query := `
		UPDATE service_tokens
		SET expiry_notification_sent_at = $2
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, tokenID, time.Now().UTC()); err != nil {
		return apperr.Store(fmt.Errorf("mark expiry notification sent: %w", err))
	}
	return nil
}

// Revoke deletes a service token
func (r *ServiceTokenRepository) Revoke(ctx context.Context, tokenID string) error {
	query := `DELETE FROM service_tokens WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, tokenID); err != nil {
		return apperr.Store(fmt.Errorf("revoke service token: %w", err))
	}
	return nil
}
