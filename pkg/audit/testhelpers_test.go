package audit

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// setupMockDB creates a DBLogger backed by sqlmock with the table
// creation already expected.
func setupMockDB(t *testing.T) (*DBLogger, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	return logger, mock
}

// captureLogger records every event it is asked to log.
type captureLogger struct {
	mu     sync.Mutex
	events []*AuditEvent
	err    error
}

func (c *captureLogger) Log(ctx context.Context, event *AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func (c *captureLogger) LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserID = userID
	event.Username = username
	event.Message = message
	return c.Log(ctx, event)
}

func (c *captureLogger) LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return c.Log(ctx, event)
}

func (c *captureLogger) LogDataMutation(ctx context.Context, eventType EventType, userID *int64, caseID *int64, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = userID
	event.CaseID = caseID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return c.Log(ctx, event)
}

func (c *captureLogger) LogConfiguration(ctx context.Context, eventType EventType, userID *int64, resourceID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = userID
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return c.Log(ctx, event)
}

func (c *captureLogger) LogAdminAction(ctx context.Context, eventType EventType, adminUserID *int64, targetUserID *int64, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = adminUserID
	event.Message = message
	return c.Log(ctx, event)
}

func (c *captureLogger) LogAccess(ctx context.Context, eventType EventType, userID *int64, caseID *int64, resourceType ResourceType, resourceID string, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = userID
	event.CaseID = caseID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return c.Log(ctx, event)
}

func (c *captureLogger) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	status := EventStatusSuccess
	if statusCode >= 400 {
		status = EventStatusFailure
	}
	if statusCode == 403 {
		status = EventStatusDenied
	}
	event := buildBaseEvent(ctx, r, EventTypeHTTPRequest, status)
	event.StatusCode = statusCode
	return c.Log(ctx, event)
}

func (c *captureLogger) Close() error {
	return nil
}

func (c *captureLogger) captured() []*AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*AuditEvent, len(c.events))
	copy(out, c.events)
	return out
}
