package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	src := writeFile(t, "hello world")
	objectPath := "snapshots/default/v1-v2.sz"
	require.NoError(t, store.Upload(ctx, src, objectPath))

	exists, err := store.Exists(ctx, objectPath)
	require.NoError(t, err)
	assert.True(t, exists)

	dst := filepath.Join(t.TempDir(), "nested", "out.bin")
	require.NoError(t, store.Download(ctx, objectPath, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	require.NoError(t, store.Delete(ctx, objectPath))
	exists, err = store.Exists(ctx, objectPath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorage_DownloadMissing(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	err = store.Download(context.Background(), "nope", filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorage_DeleteMissingIsNoop(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete(context.Background(), "nope"))
}

func TestLocalStorage_UploadOverwrites(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Upload(ctx, writeFile(t, "first"), "obj"))
	require.NoError(t, store.Upload(ctx, writeFile(t, "second"), "obj"))

	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, store.Download(ctx, "obj", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestLocalStorage_ListObjects(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	src := writeFile(t, "abc")
	for _, p := range []string{"snapshots/b/2.sz", "snapshots/a/1.sz", "snapshots/b/1.sz", "other/x"} {
		require.NoError(t, store.Upload(ctx, src, p))
	}

	objects, err := store.ListObjects(ctx, "snapshots")
	require.NoError(t, err)
	paths := make([]string, len(objects))
	for i, o := range objects {
		paths[i] = o.Path
		assert.Equal(t, int64(3), o.Size)
		assert.False(t, o.ModTime.IsZero())
	}
	assert.Equal(t, []string{"snapshots/a/1.sz", "snapshots/b/1.sz", "snapshots/b/2.sz"}, paths)

	objects, err = store.ListObjects(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Upload(ctx, writeFile(t, "x"), "obj"), context.Canceled)
	_, err = store.ListObjects(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}
