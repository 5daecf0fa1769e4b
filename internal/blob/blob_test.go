package blob

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*FS, func()) {
	tempDir, err := os.MkdirTemp("", "blob-test")
	require.NoError(t, err)

	store, err := NewFS(tempDir)
	require.NoError(t, err)

	return store, func() { os.RemoveAll(tempDir) }
}

func TestStoreAndPromote(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	id, size, err := store.Store(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, int64(11), size)

	key, err := store.MarkPermanent(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bucket/alice/"+id, key)

	rc, err := store.Open(key)
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
}

func TestMarkPermanentIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	id, _, err := store.Store(strings.NewReader("content"))
	require.NoError(t, err)

	key1, err := store.MarkPermanent(id, "alice")
	require.NoError(t, err)

	key2, err := store.MarkPermanent(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
}

func TestMarkPermanentUnknownID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.MarkPermanent("does-not-exist", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkPermanentAnonymousOwner(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	id, _, err := store.Store(strings.NewReader("x"))
	require.NoError(t, err)

	key, err := store.MarkPermanent(id, "")
	require.NoError(t, err)
	assert.Equal(t, "bucket/anonymous/"+id, key)
}

func TestDiscardStaged(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	id, _, err := store.Store(strings.NewReader("abandoned"))
	require.NoError(t, err)

	require.NoError(t, store.DiscardStaged(id))
	assert.ErrorIs(t, store.DiscardStaged(id), ErrNotFound)
}

func TestDiscardStagedAfterPromotion(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	id, _, err := store.Store(strings.NewReader("kept"))
	require.NoError(t, err)
	key, err := store.MarkPermanent(id, "alice")
	require.NoError(t, err)

	// Promotion moved the blob out of staging; discarding the id must
	// not touch the permanent copy.
	assert.ErrorIs(t, store.DiscardStaged(id), ErrNotFound)

	rc, err := store.Open(key)
	require.NoError(t, err)
	rc.Close()
}

func TestDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	id, _, err := store.Store(strings.NewReader("bye"))
	require.NoError(t, err)
	key, err := store.MarkPermanent(id, "alice")
	require.NoError(t, err)

	require.NoError(t, store.Delete(key))

	_, err = store.Open(key)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(key), ErrNotFound)
}

func TestInNamespace(t *testing.T) {
	assert.True(t, InNamespace("bucket/alice/abc"))
	assert.False(t, InNamespace("bucket/"))
	assert.False(t, InNamespace("staging/abc"))
	assert.False(t, InNamespace("bucket/../etc/passwd"))
	assert.False(t, InNamespace("/etc/passwd"))
}
