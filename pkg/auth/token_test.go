package auth

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, tokenHash, tokenPrefix, err := tg.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	// Check token format
	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("Token should start with %q, got %q", TokenPrefix, token)
	}

	// Check hash length (SHA256 = 64 hex chars)
	if len(tokenHash) != 64 {
		t.Errorf("TokenHash length = %d, want 64", len(tokenHash))
	}

	// Check prefix format
	if !strings.HasPrefix(tokenPrefix, TokenPrefix) {
		t.Errorf("TokenPrefix should start with %q, got %q", TokenPrefix, tokenPrefix)
	}

	// Token should be long enough
	if len(token) < len(TokenPrefix)+8 {
		t.Errorf("Token too short: %d chars", len(token))
	}
}

func TestTokenGenerator_GenerateToken_Uniqueness(t *testing.T) {
	tg := NewTokenGenerator()

	tokens := make(map[string]bool)
	hashes := make(map[string]bool)

	for i := 0; i < 100; i++ {
		token, tokenHash, _, err := tg.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}

		if tokens[token] {
			t.Errorf("Duplicate token generated: %s", token)
		}
		if hashes[tokenHash] {
			t.Errorf("Duplicate token hash generated: %s", tokenHash)
		}

		tokens[token] = true
		hashes[tokenHash] = true
	}
}

func TestTokenGenerator_HashToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, tokenHash, _, err := tg.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if got := tg.HashToken(token); got != tokenHash {
		t.Errorf("HashToken() = %s, want %s", got, tokenHash)
	}

	// Hashing must be deterministic
	if tg.HashToken(token) != tg.HashToken(token) {
		t.Error("HashToken() is not deterministic")
	}
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid token", TokenPrefix + "YWJjZGVmZ2hpamtsbW5vcA", false},
		{"missing prefix", "YWJjZGVmZ2hpamtsbW5vcA", true},
		{"wrong prefix", "other_YWJjZGVmZ2hpamtsbW5vcA", true},
		{"empty after prefix", TokenPrefix, true},
		{"invalid base64", TokenPrefix + "not!valid!base64!", true},
		{"empty string", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tg.ValidateTokenFormat(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTokenFormat(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
		})
	}
}

func TestTokenGenerator_ExtractPrefix(t *testing.T) {
	tg := NewTokenGenerator()

	token, _, tokenPrefix, err := tg.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if got := tg.ExtractPrefix(token); got != tokenPrefix {
		t.Errorf("ExtractPrefix() = %s, want %s", got, tokenPrefix)
	}

	if got := tg.ExtractPrefix("no-prefix-here"); got != "" {
		t.Errorf("ExtractPrefix() on foreign token = %q, want empty", got)
	}
}

func setupTokenDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE api_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			token_prefix TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			revoked_at TIMESTAMP,
			revoked_by INTEGER,
			revoke_reason TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

func TestTokenManager_CreateAndValidate(t *testing.T) {
	db := setupTokenDB(t)
	tm := NewTokenManager(db)
	ctx := context.Background()

	created, plaintext, err := tm.CreateToken(ctx, 42, "ci-token", "pipeline", nil)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	if created.ID == 0 {
		t.Error("CreateToken() did not assign an id")
	}
	if !strings.HasPrefix(plaintext, TokenPrefix) {
		t.Errorf("plaintext token missing prefix: %q", plaintext)
	}

	got, err := tm.ValidateToken(ctx, plaintext)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if got.UserID != 42 {
		t.Errorf("ValidateToken() UserID = %d, want 42", got.UserID)
	}
	if got.LastUsedAt == nil {
		t.Error("ValidateToken() did not touch last_used_at")
	}
}

func TestTokenManager_ValidateUnknownToken(t *testing.T) {
	db := setupTokenDB(t)
	tm := NewTokenManager(db)

	_, err := tm.ValidateToken(context.Background(), TokenPrefix+"YWJjZGVmZ2hpamtsbW5vcA")
	if err != ErrInvalidToken {
		t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenManager_ValidateExpiredToken(t *testing.T) {
	db := setupTokenDB(t)
	tm := NewTokenManager(db)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	_, plaintext, err := tm.CreateToken(ctx, 7, "expired", "", &past)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	if _, err := tm.ValidateToken(ctx, plaintext); err != ErrInvalidToken {
		t.Errorf("ValidateToken() on expired token error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenManager_RevokeToken(t *testing.T) {
	db := setupTokenDB(t)
	tm := NewTokenManager(db)
	ctx := context.Background()

	created, plaintext, err := tm.CreateToken(ctx, 7, "to-revoke", "", nil)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	if err := tm.RevokeToken(ctx, created.ID, 1, "compromised"); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}

	if _, err := tm.ValidateToken(ctx, plaintext); err != ErrInvalidToken {
		t.Errorf("ValidateToken() on revoked token error = %v, want ErrInvalidToken", err)
	}

	// Revoking twice fails
	if err := tm.RevokeToken(ctx, created.ID, 1, "again"); err == nil {
		t.Error("RevokeToken() on already-revoked token should fail")
	}
}

func TestTokenManager_ListUserTokens(t *testing.T) {
	db := setupTokenDB(t)
	tm := NewTokenManager(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := tm.CreateToken(ctx, 9, "tok", "", nil); err != nil {
			t.Fatalf("CreateToken() error = %v", err)
		}
	}
	if _, _, err := tm.CreateToken(ctx, 10, "other-user", "", nil); err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	tokens, err := tm.ListUserTokens(ctx, 9)
	if err != nil {
		t.Fatalf("ListUserTokens() error = %v", err)
	}
	if len(tokens) != 3 {
		t.Errorf("ListUserTokens() returned %d tokens, want 3", len(tokens))
	}
}

func TestTokenManager_CleanupExpiredTokens(t *testing.T) {
	db := setupTokenDB(t)
	tm := NewTokenManager(db)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	if _, _, err := tm.CreateToken(ctx, 1, "dead", "", &past); err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	if _, _, err := tm.CreateToken(ctx, 1, "alive", "", &future); err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	deleted, err := tm.CleanupExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredTokens() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("CleanupExpiredTokens() deleted = %d, want 1", deleted)
	}
}
