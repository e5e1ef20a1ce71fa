package cases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetLifecycle(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")

	c, err := service.CreateCase(ctx, CreateCaseRequest{Title: "Intrusion"}, &alice)
	require.NoError(t, err)

	asset, err := service.AddAsset(ctx, c.ID, CreateAssetRequest{
		Name:        "FS-01",
		AssetType:   "server",
		Description: "primary fileserver",
		Compromised: true,
	}, &alice)
	require.NoError(t, err)
	assert.NotZero(t, asset.ID)
	assert.True(t, asset.Compromised)

	assets, err := service.ListAssets(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, assets, 1)

	compromised := false
	updated, err := service.UpdateAsset(ctx, c.ID, asset.ID, UpdateAssetRequest{
		Compromised: &compromised,
	}, &alice)
	require.NoError(t, err)
	assert.False(t, updated.Compromised)
	assert.Equal(t, "FS-01", updated.Name)

	require.NoError(t, service.DeleteAsset(ctx, c.ID, asset.ID, &alice))
	assets, err = service.ListAssets(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestAsset_WrongCaseIsNotFound(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")

	c1, err := service.CreateCase(ctx, CreateCaseRequest{Title: "One"}, &alice)
	require.NoError(t, err)
	c2, err := service.CreateCase(ctx, CreateCaseRequest{Title: "Two"}, &alice)
	require.NoError(t, err)

	asset, err := service.AddAsset(ctx, c1.ID, CreateAssetRequest{Name: "WS-07", AssetType: "workstation"}, &alice)
	require.NoError(t, err)

	// The asset belongs to c1; addressing it through c2 must fail
	err = service.DeleteAsset(ctx, c2.ID, asset.ID, &alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIOCLifecycle(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")

	c, err := service.CreateCase(ctx, CreateCaseRequest{Title: "C2 beaconing"}, &alice)
	require.NoError(t, err)

	ioc, err := service.AddIOC(ctx, c.ID, CreateIOCRequest{
		Value:   "198.51.100.23",
		IOCType: "ip",
	}, &alice)
	require.NoError(t, err)
	assert.NotZero(t, ioc.ID)

	desc := "C2 server observed in netflow"
	updated, err := service.UpdateIOC(ctx, c.ID, ioc.ID, UpdateIOCRequest{Description: &desc}, &alice)
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	assert.Equal(t, "198.51.100.23", updated.Value)

	iocs, err := service.ListIOCs(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, iocs, 1)

	require.NoError(t, service.DeleteIOC(ctx, c.ID, ioc.ID, &alice))
	iocs, err = service.ListIOCs(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, iocs)
}

func TestNoteLifecycle(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")

	c, err := service.CreateCase(ctx, CreateCaseRequest{Title: "Investigation"}, &alice)
	require.NoError(t, err)

	note, err := service.AddNote(ctx, c.ID, CreateNoteRequest{
		Title:   "Timeline",
		Content: "Initial access at 03:14 UTC",
	}, &alice)
	require.NoError(t, err)
	require.NotNil(t, note.CreatedBy)
	assert.Equal(t, alice, *note.CreatedBy)

	content := "Initial access at 03:14 UTC via VPN"
	updated, err := service.UpdateNote(ctx, c.ID, note.ID, UpdateNoteRequest{Content: &content}, &alice)
	require.NoError(t, err)
	assert.Equal(t, content, updated.Content)

	require.NoError(t, service.DeleteNote(ctx, c.ID, note.ID, &alice))
	_, err = service.getNote(ctx, c.ID, note.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskLifecycle(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")
	bob := newTestUser(t, db, "bob")

	c, err := service.CreateCase(ctx, CreateCaseRequest{Title: "Containment"}, &alice)
	require.NoError(t, err)

	task, err := service.AddTask(ctx, c.ID, CreateTaskRequest{
		Title:      "Isolate FS-01",
		AssigneeID: &bob,
	}, &alice)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusTodo, task.Status)
	require.NotNil(t, task.AssigneeID)
	assert.Equal(t, bob, *task.AssigneeID)

	status := string(TaskStatusDone)
	updated, err := service.UpdateTask(ctx, c.ID, task.ID, UpdateTaskRequest{Status: &status}, &bob)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusDone, updated.Status)

	badStatus := "abandoned"
	_, err = service.UpdateTask(ctx, c.ID, task.ID, UpdateTaskRequest{Status: &badStatus}, &bob)
	assert.Error(t, err)

	require.NoError(t, service.DeleteTask(ctx, c.ID, task.ID, &alice))
	tasks, err := service.ListTasks(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestAddArtifact_UnknownCase(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")

	_, err := service.AddAsset(ctx, 9999, CreateAssetRequest{Name: "x", AssetType: "server"}, &alice)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = service.AddNote(ctx, 9999, CreateNoteRequest{Title: "x"}, &alice)
	assert.ErrorIs(t, err, ErrNotFound)
}
