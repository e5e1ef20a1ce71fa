package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore serves canned events and records the last filter it saw.
type fakeStore struct {
	events     []*AuditEvent
	lastFilter SearchFilter
}

func (s *fakeStore) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	s.lastFilter = filter
	return s.events, nil
}

func (s *fakeStore) Get(ctx context.Context, id int64) (*AuditEvent, error) {
	for _, e := range s.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	return &AuditStats{TotalEvents: int64(len(s.events))}, nil
}

func (s *fakeStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	s.lastFilter = filter
	return exportNDJSON(s.events)
}

func (s *fakeStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	return 0, nil
}

func newHandlersRouter(store Store) *mux.Router {
	router := mux.NewRouter()
	h := NewHandlers(store)
	h.RegisterRoutes(router)
	h.RegisterCaseRoutes(router)
	return router
}

func TestHandlers_ListEvents(t *testing.T) {
	store := &fakeStore{events: sampleEvents()}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/events?status=denied&limit=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["count"])

	require.NotNil(t, store.lastFilter.Status)
	assert.Equal(t, EventStatusDenied, *store.lastFilter.Status)
	assert.Equal(t, 5, store.lastFilter.Limit)
}

func TestHandlers_GetEvent(t *testing.T) {
	store := &fakeStore{events: sampleEvents()}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/events/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var event AuditEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.Equal(t, EventTypeEvidenceUpload, event.EventType)
}

func TestHandlers_GetEvent_NotFound(t *testing.T) {
	store := &fakeStore{}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/events/999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_ListCaseEvents(t *testing.T) {
	store := &fakeStore{events: sampleEvents()}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/cases/7/activities", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.lastFilter.CaseID)
	assert.Equal(t, int64(7), *store.lastFilter.CaseID)
}

func TestHandlers_ListCaseEvents_BadID(t *testing.T) {
	router := newHandlersRouter(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/cases/abc/activities", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_ExportEvents_CSV(t *testing.T) {
	store := &fakeStore{events: sampleEvents()}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/export?format=csv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
}
