package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrail/casetrail/pkg/auth"
	"github.com/casetrail/casetrail/pkg/directory"
)

type fakeUserSource struct {
	users map[int64]*directory.User
}

func (f *fakeUserSource) GetUser(ctx context.Context, id int64) (*directory.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return user, nil
}

func setupAuthTest(t *testing.T) (*auth.TokenManager, string, int64) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// sqlite needs INTEGER PRIMARY KEY for rowid ids; EnsureSchema's
	// BIGSERIAL DDL is Postgres-only.
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
	require.NoError(t, err)

	tm := auth.NewTokenManager(db)

	token, raw, err := tm.CreateToken(context.Background(), 42, "test-token", "", nil)
	require.NoError(t, err)

	return tm, raw, token.UserID
}

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tm, raw, userID := setupAuthTest(t)
	users := &fakeUserSource{users: map[int64]*directory.User{
		userID: {ID: userID, Username: "alice", IsActive: true},
	}}

	var captured *auth.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromRequest(r)
		w.WriteHeader(http.StatusOK)
	})

	mw := NewAuthMiddleware(tm, users, false)
	req := httptest.NewRequest("GET", "/cases", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()

	mw.Handler(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, userID, captured.UserID)
	assert.Equal(t, "alice", captured.Username)
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	tm, _, _ := setupAuthTest(t)
	next, called := okHandler()

	mw := NewAuthMiddleware(tm, nil, false)
	req := httptest.NewRequest("GET", "/cases", nil)
	rec := httptest.NewRecorder()

	mw.Handler(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *called)
}

func TestAuthMiddleware_OptionalAllowsAnonymous(t *testing.T) {
	tm, _, _ := setupAuthTest(t)
	next, called := okHandler()

	mw := NewAuthMiddleware(tm, nil, true)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	mw.Handler(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *called)
}

func TestAuthMiddleware_BadToken(t *testing.T) {
	tm, _, _ := setupAuthTest(t)
	next, called := okHandler()

	mw := NewAuthMiddleware(tm, nil, false)
	req := httptest.NewRequest("GET", "/cases", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()

	mw.Handler(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *called)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	tm, raw, _ := setupAuthTest(t)
	next, called := okHandler()

	mw := NewAuthMiddleware(tm, nil, false)
	req := httptest.NewRequest("GET", "/cases", nil)
	req.Header.Set("Authorization", "Token "+raw)
	rec := httptest.NewRecorder()

	mw.Handler(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *called)
}

func TestAuthMiddleware_InactiveUser(t *testing.T) {
	tm, raw, userID := setupAuthTest(t)
	users := &fakeUserSource{users: map[int64]*directory.User{
		userID: {ID: userID, Username: "alice", IsActive: false},
	}}
	next, called := okHandler()

	mw := NewAuthMiddleware(tm, users, false)
	req := httptest.NewRequest("GET", "/cases", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()

	mw.Handler(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *called)
}

func TestAuthMiddleware_UnknownUser(t *testing.T) {
	tm, raw, _ := setupAuthTest(t)
	users := &fakeUserSource{users: map[int64]*directory.User{}}
	next, called := okHandler()

	mw := NewAuthMiddleware(tm, users, false)
	req := httptest.NewRequest("GET", "/cases", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()

	mw.Handler(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *called)
}
