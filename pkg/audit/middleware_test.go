package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveThroughMiddleware(t *testing.T, m *Middleware, method, path string, handlerStatus int) {
	t.Helper()
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(handlerStatus)
	}))
	req := httptest.NewRequest(method, path, nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestMiddleware_LogsMutations(t *testing.T) {
	capture := &captureLogger{}
	m := NewMiddleware(capture, false)

	serveThroughMiddleware(t, m, http.MethodPost, "/api/cases", http.StatusCreated)

	events := capture.captured()
	require.Len(t, events, 1)
	assert.Equal(t, http.StatusCreated, events[0].StatusCode)
}

func TestMiddleware_SkipsPlainReads(t *testing.T) {
	capture := &captureLogger{}
	m := NewMiddleware(capture, false)

	serveThroughMiddleware(t, m, http.MethodGet, "/api/cases", http.StatusOK)

	assert.Empty(t, capture.captured())
}

func TestMiddleware_LogsDenials(t *testing.T) {
	capture := &captureLogger{}
	m := NewMiddleware(capture, false)

	serveThroughMiddleware(t, m, http.MethodGet, "/api/cases/7", http.StatusForbidden)

	events := capture.captured()
	require.Len(t, events, 1)
	assert.Equal(t, EventStatusDenied, events[0].Status)
}

func TestMiddleware_LogsSensitiveReads(t *testing.T) {
	capture := &captureLogger{}
	m := NewMiddleware(capture, false)

	tests := []struct {
		path string
		want bool
	}{
		{"/api/auth/tokens", true},
		{"/api/admin/users", true},
		{"/api/audit/events", true},
		{"/api/search", true},
		{"/api/cases/7/evidence/3/download", true},
		{"/api/cases/7/notes", false},
		{"/healthz", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, m.isSensitiveEndpoint(tt.path), "path %s", tt.path)
	}
}

func TestMiddleware_LogAllRequests(t *testing.T) {
	capture := &captureLogger{}
	m := NewMiddleware(capture, true)

	serveThroughMiddleware(t, m, http.MethodGet, "/api/cases", http.StatusOK)

	assert.Len(t, capture.captured(), 1)
}
