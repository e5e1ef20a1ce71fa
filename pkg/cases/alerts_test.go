package cases

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrg(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow("INSERT INTO organisations (name) VALUES ($1) RETURNING id", name).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestAlertLifecycle(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")
	org := newTestOrg(t, db, "acme")

	alert, err := service.CreateAlert(ctx, CreateAlertRequest{
		OrganisationID: &org,
		Title:          "Suspicious login burst",
		Severity:       "high",
		Source:         "siem",
	}, &alice)
	require.NoError(t, err)
	assert.NotZero(t, alert.ID)
	assert.Equal(t, AlertStatusOpen, alert.Status)
	assert.Equal(t, SeverityHigh, alert.Severity)

	severity := "critical"
	updated, err := service.UpdateAlert(ctx, alert.ID, UpdateAlertRequest{Severity: &severity}, &alice)
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, updated.Severity)

	closed, err := service.CloseAlert(ctx, alert.ID, &alice)
	require.NoError(t, err)
	assert.Equal(t, AlertStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
}

func TestListAlerts_Filters(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")
	acme := newTestOrg(t, db, "acme")
	globex := newTestOrg(t, db, "globex")

	a1, err := service.CreateAlert(ctx, CreateAlertRequest{OrganisationID: &acme, Title: "acme alert"}, &alice)
	require.NoError(t, err)
	_, err = service.CreateAlert(ctx, CreateAlertRequest{OrganisationID: &globex, Title: "globex alert"}, &alice)
	require.NoError(t, err)

	byOrg, err := service.ListAlerts(ctx, &acme, nil)
	require.NoError(t, err)
	require.Len(t, byOrg, 1)
	assert.Equal(t, "acme alert", byOrg[0].Title)

	_, err = service.CloseAlert(ctx, a1.ID, &alice)
	require.NoError(t, err)

	open := AlertStatusOpen
	openAlerts, err := service.ListAlerts(ctx, nil, &open)
	require.NoError(t, err)
	require.Len(t, openAlerts, 1)
	assert.Equal(t, "globex alert", openAlerts[0].Title)
}

func TestUpdateAlert_LinkToCase(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")

	c, err := service.CreateCase(ctx, CreateCaseRequest{Title: "Escalated"}, &alice)
	require.NoError(t, err)
	alert, err := service.CreateAlert(ctx, CreateAlertRequest{Title: "Needs escalation"}, &alice)
	require.NoError(t, err)

	linked, err := service.UpdateAlert(ctx, alert.ID, UpdateAlertRequest{CaseID: &c.ID}, &alice)
	require.NoError(t, err)
	require.NotNil(t, linked.CaseID)
	assert.Equal(t, c.ID, *linked.CaseID)

	// Linking to a missing case fails
	missing := int64(9999)
	_, err = service.UpdateAlert(ctx, alert.ID, UpdateAlertRequest{CaseID: &missing}, &alice)
	assert.Error(t, err)
}
