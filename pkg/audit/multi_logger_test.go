package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiLogger_FansOut(t *testing.T) {
	a := &captureLogger{}
	b := &captureLogger{}
	multi := NewMultiLogger(a, b)
	multi.SetAsync(false)

	userID := int64(1)
	err := multi.LogAuthentication(context.Background(), EventTypeAuthLogin, &userID, "analyst",
		EventStatusSuccess, "login ok")
	require.NoError(t, err)

	assert.Len(t, a.captured(), 1)
	assert.Len(t, b.captured(), 1)
}

func TestMultiLogger_SyncContinuesPastFailures(t *testing.T) {
	failing := &captureLogger{err: errors.New("disk full")}
	healthy := &captureLogger{}
	multi := NewMultiLogger(failing, healthy)
	multi.SetAsync(false)

	err := multi.Log(context.Background(), &AuditEvent{
		EventType: EventTypeCaseCreate,
		Status:    EventStatusSuccess,
	})

	// First error is surfaced, but the healthy logger still got the event
	require.Error(t, err)
	assert.Len(t, healthy.captured(), 1)
}

func TestMultiLogger_AsyncCollectsErrors(t *testing.T) {
	failing := &captureLogger{err: errors.New("unreachable")}
	multi := NewMultiLogger(failing)

	err := multi.Log(context.Background(), &AuditEvent{
		EventType: EventTypeCaseCreate,
		Status:    EventStatusSuccess,
	})
	require.NoError(t, err)

	multi.Wait()
	assert.NotEmpty(t, multi.GetErrors())
}
