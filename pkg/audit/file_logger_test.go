package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileLogger(t *testing.T) *FileLogger {
	t.Helper()
	logger, err := NewFileLogger(FileLoggerConfig{
		BasePath: t.TempDir(),
		Rotate:   false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestFileLogger_WriteAndRead(t *testing.T) {
	logger := newTestFileLogger(t)
	ctx := context.Background()

	userID := int64(5)
	caseID := int64(2)
	require.NoError(t, logger.LogDataMutation(ctx, EventTypeNoteCreate, &userID, &caseID,
		ResourceTypeNote, "n-1", nil, "added triage note"))
	require.NoError(t, logger.LogAuthentication(ctx, EventTypeAuthLogin, &userID, "analyst",
		EventStatusSuccess, "login ok"))

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EventTypeNoteCreate, events[0].EventType)
	require.NotNil(t, events[0].CaseID)
	assert.Equal(t, caseID, *events[0].CaseID)
	assert.Equal(t, "analyst", events[1].Username)
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{
		BasePath: dir,
		Rotate:   true,
		MaxSize:  256, // force rotation quickly
		MaxFiles: 3,
	})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		event := &AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeHTTPRequest,
			Status:    EventStatusSuccess,
			Message:   "padding message to push the file past the rotation threshold",
		}
		require.NoError(t, logger.Log(ctx, event))
	}

	// The active file stays small enough to read back
	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}
