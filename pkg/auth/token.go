package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies Casetrail tokens
	TokenPrefix = "casetrail_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// ErrInvalidToken is returned when a token is unknown, revoked or expired.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token
// Format: casetrail_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	// SHA256 hash for storage; plaintext is never persisted
	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after the prefix identify the token in listings
	prefix := TokenPrefix
	if len(encodedToken) >= 8 {
		prefix = TokenPrefix + encodedToken[:8]
	}

	return fullToken, hashStr, prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// ExtractPrefix extracts the prefix from a token for display
func (tg *TokenGenerator) ExtractPrefix(token string) string {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ""
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) >= 8 {
		return TokenPrefix + encodedPart[:8]
	}

	return token
}

// TokenManager manages API token lifecycle against the database
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewTokenManager creates a new token manager
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{
		db:        db,
		generator: NewTokenGenerator(),
	}
}

// EnsureSchema creates the token table if it does not exist.
func (tm *TokenManager) EnsureSchema(ctx context.Context) error {
	_, err := tm.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS api_tokens (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			token_prefix TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			revoked_at TIMESTAMP,
			revoked_by BIGINT,
			revoke_reason TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("failed to create api_tokens table: %w", err)
	}
	return nil
}

// CreateToken creates a new API token and returns the plaintext exactly once.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name, description string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		Description: description,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}

	err = tm.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, description, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		apiToken.UserID, apiToken.TokenHash, apiToken.TokenPrefix,
		apiToken.Name, apiToken.Description, apiToken.ExpiresAt, apiToken.CreatedAt,
	).Scan(&apiToken.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken validates a presented token and returns its record.
// Unknown, revoked and expired tokens all return ErrInvalidToken.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrInvalidToken
	}

	tokenHash := tm.generator.HashToken(token)

	t := &APIToken{}
	err := tm.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, token_prefix, name, description,
		       expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason
		FROM api_tokens
		WHERE token_hash = $1`,
		tokenHash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.TokenPrefix, &t.Name, &t.Description,
		&t.ExpiresAt, &t.LastUsedAt, &t.CreatedAt, &t.RevokedAt, &t.RevokedBy, &t.RevokeReason)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if !t.IsValid(time.Now().UTC()) {
		return nil, ErrInvalidToken
	}

	// Best effort; a failed touch must not fail authentication
	now := time.Now().UTC()
	if _, err := tm.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, now, t.ID); err == nil {
		t.LastUsedAt = &now
	}

	return t, nil
}

// RevokeToken revokes a token
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID int64, revokedBy int64, reason string) error {
	res, err := tm.db.ExecContext(ctx, `
		UPDATE api_tokens
		SET revoked_at = $1, revoked_by = $2, revoke_reason = $3
		WHERE id = $4 AND revoked_at IS NULL`,
		time.Now().UTC(), revokedBy, reason, tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revocation result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("token %d not found or already revoked", tokenID)
	}
	return nil
}

// ListUserTokens lists all tokens for a user, newest first.
func (tm *TokenManager) ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	rows, err := tm.db.QueryContext(ctx, `
		SELECT id, user_id, token_hash, token_prefix, name, description,
		       expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		t := &APIToken{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.TokenPrefix, &t.Name, &t.Description,
			&t.ExpiresAt, &t.LastUsedAt, &t.CreatedAt, &t.RevokedAt, &t.RevokedBy, &t.RevokeReason); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// CleanupExpiredTokens deletes tokens past their expiry.
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	res, err := tm.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`,
		time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired tokens: %w", err)
	}
	return res.RowsAffected()
}
