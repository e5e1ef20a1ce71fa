package evidence

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

func newTestStore(t *testing.T) *FilesystemStore {
	t.Helper()
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFilesystemStore_PutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	content := "evidence payload bytes"
	result, err := store.Put(ctx, "cases/7/mem.dmp", strings.NewReader(content), "application/octet-stream")
	require.NoError(t, err)

	expected := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(expected[:]), result.SHA256)
	assert.Equal(t, int64(len(content)), result.SizeBytes)

	reader, err := store.Get(ctx, "cases/7/mem.dmp")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestFilesystemStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "cases/7/missing.bin")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestFilesystemStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "cases/7/disk.img", strings.NewReader("data"), "application/octet-stream")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "cases/7/disk.img"))

	exists, err := store.Exists(ctx, "cases/7/disk.img")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, store.Delete(ctx, "cases/7/disk.img"), ErrObjectNotFound)
}

func TestFilesystemStore_Exists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "cases/1/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Put(ctx, "cases/1/a.txt", strings.NewReader("x"), "text/plain")
	require.NoError(t, err)

	exists, err = store.Exists(ctx, "cases/1/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFilesystemStore_RejectsBadKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "/etc/passwd", "a/../../b"} {
		_, err := store.Put(ctx, key, strings.NewReader("x"), "text/plain")
		assert.Error(t, err, "key %q should be rejected", key)
	}
}
