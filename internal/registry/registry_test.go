package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marianozunino/bucket/internal/model"
)

func setupTestRegistry(t *testing.T) (*Registry, func()) {
	tempDir, err := os.MkdirTemp("", "registry-test")
	require.NoError(t, err)

	reg, err := Open(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)

	cleanup := func() {
		reg.Close()
		os.RemoveAll(tempDir)
	}

	return reg, cleanup
}

func testRecord(id, owner string, createdAt time.Time) model.FileRecord {
	return model.FileRecord{
		ID:          id,
		OwnerID:     owner,
		StorageKey:  "bucket/" + owner + "/" + id,
		DisplayName: id + ".txt",
		ContentType: "text/plain",
		SizeBytes:   42,
		CreatedAt:   createdAt,
	}
}

func TestInsertAndGet(t *testing.T) {
	reg, cleanup := setupTestRegistry(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rec := testRecord("f1", "alice", now)
	require.NoError(t, reg.Insert(ctx, rec))

	got, err := reg.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "f1", got.ID)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, "bucket/alice/f1", got.StorageKey)
	assert.Equal(t, "f1.txt", got.DisplayName)
	assert.Equal(t, int64(42), got.SizeBytes)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.False(t, got.Downloaded)
	assert.Nil(t, got.DownloadedAt)
}

func TestInsertDuplicateID(t *testing.T) {
	reg, cleanup := setupTestRegistry(t)
	defer cleanup()
	ctx := context.Background()

	rec := testRecord("f1", "alice", time.Now())
	require.NoError(t, reg.Insert(ctx, rec))

	err := reg.Insert(ctx, rec)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestGetNotFound(t *testing.T) {
	reg, cleanup := setupTestRegistry(t)
	defer cleanup()

	_, err := reg.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkDownloadedFirstWriteWins(t *testing.T) {
	reg, cleanup := setupTestRegistry(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, reg.Insert(ctx, testRecord("f1", "alice", time.Now())))

	t1 := time.Now().UTC().Truncate(time.Second)
	t2 := t1.Add(1 * time.Hour)

	require.NoError(t, reg.MarkDownloaded(ctx, "f1", t1))
	require.NoError(t, reg.MarkDownloaded(ctx, "f1", t2))

	got, err := reg.Get(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, got.Downloaded)
	require.NotNil(t, got.DownloadedAt)
	assert.True(t, got.DownloadedAt.Equal(t1), "downloaded_at must keep the first timestamp")
}

func TestMarkDownloadedNotFound(t *testing.T) {
	reg, cleanup := setupTestRegistry(t)
	defer cleanup()

	err := reg.MarkDownloaded(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListExpiredByAge(t *testing.T) {
	reg, cleanup := setupTestRegistry(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, reg.Insert(ctx, testRecord("fresh", "alice", now.Add(-47*time.Hour))))
	require.NoError(t, reg.Insert(ctx, testRecord("stale", "alice", now.Add(-49*time.Hour))))

	pol := model.ExpiryPolicy{TTLHours: 48, DeleteOnDownload: false}
	ids, err := reg.ListExpired(ctx, pol, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, ids)
}

func TestListExpiredDeleteOnDownload(t *testing.T) {
	reg, cleanup := setupTestRegistry(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, reg.Insert(ctx, testRecord("downloaded", "alice", now.Add(-1*time.Minute))))
	require.NoError(t, reg.Insert(ctx, testRecord("untouched", "alice", now.Add(-1*time.Minute))))
	require.NoError(t, reg.MarkDownloaded(ctx, "downloaded", now))

	pol := model.ExpiryPolicy{TTLHours: 48, DeleteOnDownload: true}
	ids, err := reg.ListExpired(ctx, pol, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"downloaded"}, ids)

	// Without the flag, a fresh downloaded record is not expired.
	pol.DeleteOnDownload = false
	ids, err = reg.ListExpired(ctx, pol, now)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListByOwnerNewestFirst(t *testing.T) {
	reg, cleanup := setupTestRegistry(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, reg.Insert(ctx, testRecord("old", "alice", now.Add(-3*time.Hour))))
	require.NoError(t, reg.Insert(ctx, testRecord("new", "alice", now.Add(-1*time.Hour))))
	require.NoError(t, reg.Insert(ctx, testRecord("mid", "alice", now.Add(-2*time.Hour))))
	require.NoError(t, reg.Insert(ctx, testRecord("other", "bob", now)))

	records, err := reg.ListByOwner(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "new", records[0].ID)
	assert.Equal(t, "mid", records[1].ID)
	assert.Equal(t, "old", records[2].ID)

	limited, err := reg.ListByOwner(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "new", limited[0].ID)
}

func TestListRecent(t *testing.T) {
	reg, cleanup := setupTestRegistry(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, reg.Insert(ctx, testRecord("a", "alice", now.Add(-2*time.Hour))))
	require.NoError(t, reg.Insert(ctx, testRecord("b", "bob", now.Add(-1*time.Hour))))

	records, err := reg.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, "a", records[1].ID)
}

func TestDelete(t *testing.T) {
	reg, cleanup := setupTestRegistry(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, reg.Insert(ctx, testRecord("f1", "alice", time.Now())))
	require.NoError(t, reg.Delete(ctx, "f1"))

	_, err := reg.Get(ctx, "f1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a safe NotFound, never a fault.
	assert.ErrorIs(t, reg.Delete(ctx, "f1"), ErrNotFound)
}
