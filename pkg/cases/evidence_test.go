package cases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceLifecycle(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")

	c, err := service.CreateCase(ctx, CreateCaseRequest{Title: "Forensics"}, &alice)
	require.NoError(t, err)

	payload := "memory dump contents"
	item, err := service.UploadEvidence(ctx, c.ID, "mem.dmp", "application/octet-stream",
		"memory capture from FS-01", strings.NewReader(payload), &alice)
	require.NoError(t, err)
	assert.NotZero(t, item.ID)
	assert.Equal(t, int64(len(payload)), item.SizeBytes)

	expected := sha256.Sum256([]byte(payload))
	assert.Equal(t, hex.EncodeToString(expected[:]), item.SHA256)

	items, err := service.ListEvidence(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	fetched, reader, err := service.OpenEvidence(ctx, c.ID, item.ID, &alice)
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, "mem.dmp", fetched.Filename)

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	require.NoError(t, service.DeleteEvidence(ctx, c.ID, item.ID, &alice))
	_, err = service.GetEvidence(ctx, c.ID, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadEvidence_UnknownCase(t *testing.T) {
	service, _, db := setupTestService(t)
	alice := newTestUser(t, db, "alice")

	_, err := service.UploadEvidence(context.Background(), 9999, "a.bin", "", "",
		strings.NewReader("x"), &alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEvidence_WrongCaseIsNotFound(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")

	c1, err := service.CreateCase(ctx, CreateCaseRequest{Title: "One"}, &alice)
	require.NoError(t, err)
	c2, err := service.CreateCase(ctx, CreateCaseRequest{Title: "Two"}, &alice)
	require.NoError(t, err)

	item, err := service.UploadEvidence(ctx, c1.ID, "a.bin", "", "", strings.NewReader("x"), &alice)
	require.NoError(t, err)

	_, _, err = service.OpenEvidence(ctx, c2.ID, item.ID, &alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCase_RemovesEvidenceObjects(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, "alice")

	c, err := service.CreateCase(ctx, CreateCaseRequest{Title: "Doomed"}, &alice)
	require.NoError(t, err)

	item, err := service.UploadEvidence(ctx, c.ID, "a.bin", "", "", strings.NewReader("x"), &alice)
	require.NoError(t, err)

	require.NoError(t, service.DeleteCase(ctx, c.ID, &alice))

	exists, err := service.objects.Exists(ctx, item.StorageKey)
	require.NoError(t, err)
	assert.False(t, exists)
}
