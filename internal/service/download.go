package service

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/marianozunino/bucket/internal/access"
	"github.com/marianozunino/bucket/internal/blob"
	"github.com/marianozunino/bucket/internal/model"
	"github.com/marianozunino/bucket/internal/registry"
)

// RequestDownload validates a download request and opens the byte
// stream. The record is marked downloaded before the stream opens: if the
// transfer later fails partway, the download-trigger state is already
// recorded, which keeps the sweeper's delete-on-download view
// conservative. The caller must close the returned stream.
func (s *Service) RequestDownload(ctx context.Context, id string, actor access.Actor, now time.Time) (model.FileRecord, io.ReadCloser, error) {
	rec, err := s.registry.Get(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return model.FileRecord{}, nil, ErrNotFound
		}
		return model.FileRecord{}, nil, err
	}

	if !blob.InNamespace(rec.StorageKey) {
		// A record/key mismatch or a forged reference. Reported as
		// NotFound on purpose.
		s.logger.Warn("storage key outside bucket namespace",
			zap.String("id", rec.ID),
			zap.String("storage_key", rec.StorageKey),
		)
		return model.FileRecord{}, nil, ErrNotFound
	}

	if !access.CanDownload(actor, rec) {
		return model.FileRecord{}, nil, ErrForbidden
	}

	err = s.registry.MarkDownloaded(ctx, rec.ID, now)
	if errors.Is(err, registry.ErrNotFound) {
		// Swept between Get and the mark.
		return model.FileRecord{}, nil, ErrNotFound
	}
	if err != nil {
		return model.FileRecord{}, nil, err
	}

	rc, err := s.blobs.Open(rec.StorageKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			// The sweeper won the race; the mark above made the record
			// eligible and the blob is already gone. Non-corrupting, the
			// client simply retries against a 404.
			s.logger.Info("blob swept before download stream opened",
				zap.String("id", rec.ID),
			)
			return model.FileRecord{}, nil, ErrNotFound
		}
		return model.FileRecord{}, nil, &StorageError{Op: "open", Err: err}
	}

	return rec, rc, nil
}
