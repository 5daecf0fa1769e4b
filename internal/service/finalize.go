package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/marianozunino/bucket/internal/model"
	"github.com/marianozunino/bucket/internal/registry"
)

// PendingFile describes a staged blob awaiting finalization.
type PendingFile struct {
	BlobID      string
	DisplayName string
	ContentType string
	SizeBytes   int64
}

// Finalize turns staged blobs into durable file records. It is idempotent
// under at-least-once delivery: blobs already present in the registry are
// skipped, and a lost insert race counts as someone else's success. The
// returned count is the number of records actually inserted, so callers
// can report accurate "N files uploaded" feedback.
func (s *Service) Finalize(ctx context.Context, files []PendingFile, ownerID string, now time.Time) (int, error) {
	inserted := 0

	// Records inserted before a mid-batch failure are durable, so their
	// owner's cached listing is stale either way.
	defer func() {
		if inserted > 0 {
			s.invalidateOwner(ctx, ownerID)
		}
	}()

	for _, f := range files {
		_, err := s.registry.Get(ctx, f.BlobID)
		if err == nil {
			continue
		}
		if !errors.Is(err, registry.ErrNotFound) {
			return inserted, err
		}

		key, err := s.blobs.MarkPermanent(f.BlobID, ownerID)
		if err != nil {
			return inserted, &StorageError{Op: "mark-permanent", Err: err}
		}

		rec := model.FileRecord{
			ID:          f.BlobID,
			OwnerID:     ownerID,
			StorageKey:  key,
			DisplayName: f.DisplayName,
			ContentType: f.ContentType,
			SizeBytes:   f.SizeBytes,
			CreatedAt:   now,
		}

		err = s.registry.Insert(ctx, rec)
		if errors.Is(err, registry.ErrDuplicateID) {
			// A concurrent delivery of the same request won the insert.
			continue
		}
		if err != nil {
			return inserted, err
		}

		inserted++
		s.logger.Info("file finalized",
			zap.String("id", rec.ID),
			zap.String("owner_id", ownerID),
			zap.Int64("size", rec.SizeBytes),
		)
	}

	return inserted, nil
}
