package audit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBLogger_RequiresDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	require.Error(t, err)
}

func TestDBLogger_Log(t *testing.T) {
	logger, mock := setupMockDB(t)

	userID := int64(42)
	caseID := int64(7)
	event := &AuditEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    EventTypeAssetCreate,
		Status:       EventStatusSuccess,
		UserID:       &userID,
		Username:     "analyst",
		CaseID:       &caseID,
		ResourceType: ResourceTypeAsset,
		ResourceID:   "12",
		Message:      "created asset ws-0114",
		Metadata:     map[string]interface{}{"hostname": "ws-0114"},
	}

	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))

	err := logger.Log(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, int64(101), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_LogDataMutation_CarriesCaseID(t *testing.T) {
	logger, mock := setupMockDB(t)

	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	userID := int64(3)
	caseID := int64(9)
	changes := &ChangeDetails{
		Before: map[string]interface{}{"status": "open"},
		After:  map[string]interface{}{"status": "closed"},
	}

	err := logger.LogDataMutation(context.Background(), EventTypeCaseClose, &userID, &caseID,
		ResourceTypeCase, "9", changes, "closed case")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_LogHTTPRequest_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       EventStatus
	}{
		{"success", 200, EventStatusSuccess},
		{"client error", 404, EventStatusFailure},
		{"denied", 403, EventStatusDenied},
		{"server error", 500, EventStatusFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture := &captureLogger{}
			r := httptest.NewRequest("GET", "/api/cases/1", nil)

			err := capture.LogHTTPRequest(context.Background(), r, tt.statusCode, time.Millisecond, nil)
			require.NoError(t, err)

			events := capture.captured()
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0].Status)
			assert.Equal(t, EventTypeHTTPRequest, events[0].EventType)
		})
	}
}

func TestDBLogger_Search_AppliesFilters(t *testing.T) {
	logger, mock := setupMockDB(t)

	caseID := int64(7)
	userID := int64(1)
	filter := SearchFilter{
		UserID: &userID,
		CaseID: &caseID,
		Limit:  10,
	}

	cols := []string{
		"id", "timestamp", "event_type", "status",
		"user_id", "username", "organisation_id", "token_id",
		"case_id", "resource_type", "resource_id", "resource_name",
		"ip_address", "user_agent", "request_id",
		"method", "path", "status_code",
		"message", "error_message", "metadata", "changes",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		5, time.Now().UTC(), string(EventTypeIOCCreate), string(EventStatusSuccess),
		userID, "analyst", nil, nil,
		caseID, string(ResourceTypeIOC), "31", "evil.example.com",
		"10.0.0.5", "curl/8.0", "req-1",
		"POST", "/api/cases/7/iocs", 201,
		"created ioc", "", []byte(`{"ioc_type":"domain"}`), nil,
	)

	mock.ExpectQuery("SELECT(.|\n)+FROM audit_logs").
		WithArgs(userID, caseID, 10).
		WillReturnRows(rows)

	events, err := logger.Search(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, EventTypeIOCCreate, events[0].EventType)
	require.NotNil(t, events[0].CaseID)
	assert.Equal(t, caseID, *events[0].CaseID)
	assert.Equal(t, "domain", events[0].Metadata["ioc_type"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_GetStats(t *testing.T) {
	logger, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery("SELECT event_type, COUNT\\(\\*\\)").
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow(string(EventTypeAuthLogin), 4).
			AddRow(string(EventTypeAuthzAccessDenied), 2))
	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\)").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow(string(EventStatusSuccess), 10).
			AddRow(string(EventStatusDenied), 2))
	mock.ExpectQuery("SELECT COUNT\\(DISTINCT user_id\\)").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT COUNT\\(DISTINCT ip_address\\)").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_logs .*auth").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_logs .*denied").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	stats, err := logger.GetStats(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(12), stats.TotalEvents)
	assert.Equal(t, int64(2), stats.EventsByType[EventTypeAuthzAccessDenied])
	assert.Equal(t, int64(2), stats.AccessDenials)
	assert.Equal(t, int64(1), stats.FailedAuthAttempts)
}
