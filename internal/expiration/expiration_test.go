package expiration

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marianozunino/bucket/internal/blob"
	"github.com/marianozunino/bucket/internal/model"
	"github.com/marianozunino/bucket/internal/registry"
)

// failingStore injects blob-deletion failures for chosen storage keys.
type failingStore struct {
	inner    blob.Store
	failKeys map[string]bool
}

func (f *failingStore) Store(content io.Reader) (string, int64, error) {
	return f.inner.Store(content)
}

func (f *failingStore) MarkPermanent(id, ownerID string) (string, error) {
	return f.inner.MarkPermanent(id, ownerID)
}

func (f *failingStore) DiscardStaged(id string) error {
	return f.inner.DiscardStaged(id)
}

func (f *failingStore) Open(storageKey string) (io.ReadCloser, error) {
	return f.inner.Open(storageKey)
}

func (f *failingStore) Delete(storageKey string) error {
	if f.failKeys[storageKey] {
		return errors.New("disk on fire")
	}
	return f.inner.Delete(storageKey)
}

func setupTestSweeper(t *testing.T) (*Sweeper, *registry.Registry, *blob.FS, func()) {
	tempDir, err := os.MkdirTemp("", "sweeper-test")
	require.NoError(t, err)

	reg, err := registry.Open(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)

	blobs, err := blob.NewFS(filepath.Join(tempDir, "data"))
	require.NoError(t, err)

	policy := func() model.ExpiryPolicy {
		return model.ExpiryPolicy{TTLHours: 48}
	}
	sweeper := NewSweeper(reg, blobs, policy, time.Hour, zap.NewNop())

	cleanup := func() {
		reg.Close()
		os.RemoveAll(tempDir)
	}

	return sweeper, reg, blobs, cleanup
}

func storeFile(t *testing.T, reg *registry.Registry, blobs *blob.FS, owner, name, content string, createdAt time.Time) model.FileRecord {
	id, size, err := blobs.Store(strings.NewReader(content))
	require.NoError(t, err)

	key, err := blobs.MarkPermanent(id, owner)
	require.NoError(t, err)

	rec := model.FileRecord{
		ID:          id,
		OwnerID:     owner,
		StorageKey:  key,
		DisplayName: name,
		SizeBytes:   size,
		CreatedAt:   createdAt,
	}
	require.NoError(t, reg.Insert(context.Background(), rec))
	return rec
}

func TestSweepRemovesExpiredBlobAndRecord(t *testing.T) {
	sweeper, reg, blobs, cleanup := setupTestSweeper(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	stale := storeFile(t, reg, blobs, "alice", "stale.txt", "old", now.Add(-49*time.Hour))
	fresh := storeFile(t, reg, blobs, "alice", "fresh.txt", "new", now.Add(-1*time.Hour))

	removed, err := sweeper.Sweep(ctx, model.ExpiryPolicy{TTLHours: 48}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = reg.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, registry.ErrNotFound)
	_, err = blobs.Open(stale.StorageKey)
	assert.ErrorIs(t, err, blob.ErrNotFound)

	// The fresh file is untouched.
	_, err = reg.Get(ctx, fresh.ID)
	assert.NoError(t, err)
	rc, err := blobs.Open(fresh.StorageKey)
	require.NoError(t, err)
	rc.Close()
}

func TestSweepDeleteOnDownload(t *testing.T) {
	sweeper, reg, blobs, cleanup := setupTestSweeper(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	rec := storeFile(t, reg, blobs, "alice", "once.txt", "view once", now.Add(-10*time.Second))
	require.NoError(t, reg.MarkDownloaded(ctx, rec.ID, now))

	// Only seconds old, still reclaimed because it has been downloaded.
	removed, err := sweeper.Sweep(ctx, model.ExpiryPolicy{TTLHours: 1, DeleteOnDownload: true}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = reg.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestSweepContinuesPastBlobFailure(t *testing.T) {
	sweeper, reg, blobs, cleanup := setupTestSweeper(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	bad := storeFile(t, reg, blobs, "alice", "bad.txt", "bad", now.Add(-50*time.Hour))
	good := storeFile(t, reg, blobs, "alice", "good.txt", "good", now.Add(-50*time.Hour))

	sweeper.blobs = &failingStore{inner: blobs, failKeys: map[string]bool{bad.StorageKey: true}}

	removed, err := sweeper.Sweep(ctx, model.ExpiryPolicy{TTLHours: 48}, now)
	require.NoError(t, err, "a per-record failure must not abort the sweep")
	assert.Equal(t, 1, removed)

	// The failed record stays for the next cycle, still consistent.
	_, err = reg.Get(ctx, bad.ID)
	assert.NoError(t, err)

	_, err = reg.Get(ctx, good.ID)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestSweepToleratesMissingBlob(t *testing.T) {
	sweeper, reg, blobs, cleanup := setupTestSweeper(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	rec := storeFile(t, reg, blobs, "alice", "orphan.txt", "orphan", now.Add(-49*time.Hour))
	require.NoError(t, blobs.Delete(rec.StorageKey))

	removed, err := sweeper.Sweep(ctx, model.ExpiryPolicy{TTLHours: 48}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "an orphaned record is still reclaimed")
}

func TestOverlappingSweepsAreSafe(t *testing.T) {
	sweeper, reg, blobs, cleanup := setupTestSweeper(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	storeFile(t, reg, blobs, "alice", "stale.txt", "old", now.Add(-49*time.Hour))

	pol := model.ExpiryPolicy{TTLHours: 48}
	removed, err := sweeper.Sweep(ctx, pol, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// A second pass over the same candidates is a clean no-op.
	removed, err = sweeper.Sweep(ctx, pol, now)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestSweeperStartStop(t *testing.T) {
	sweeper, _, _, cleanup := setupTestSweeper(t)
	defer cleanup()

	sweeper.Start()
	time.Sleep(100 * time.Millisecond)
	sweeper.Stop()
	time.Sleep(100 * time.Millisecond)
}

func TestSweepLeavesStreamReadableAfterUnlink(t *testing.T) {
	// The accepted race: on platforms where the blob store tolerates
	// delete-while-open, a stream opened before the sweep keeps working.
	sweeper, reg, blobs, cleanup := setupTestSweeper(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	rec := storeFile(t, reg, blobs, "alice", "racy.txt", "still readable", now.Add(-49*time.Hour))

	rc, err := blobs.Open(rec.StorageKey)
	require.NoError(t, err)
	defer rc.Close()

	removed, err := sweeper.Sweep(ctx, model.ExpiryPolicy{TTLHours: 48}, now)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "still readable", string(content))
}
