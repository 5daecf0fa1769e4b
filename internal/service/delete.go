package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/marianozunino/bucket/internal/access"
	"github.com/marianozunino/bucket/internal/blob"
	"github.com/marianozunino/bucket/internal/registry"
)

// Delete removes a file on behalf of an authorized actor. The blob goes
// first, then the record: a crash in between leaves a metadata row
// pointing at a missing blob, which fails closed as NotFound and is
// reclaimed by a later sweep, instead of an undiscoverable orphaned blob.
func (s *Service) Delete(ctx context.Context, id string, actor access.Actor) error {
	rec, err := s.registry.Get(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if !access.CanDelete(actor, rec) {
		return ErrForbidden
	}

	if err := s.blobs.Delete(rec.StorageKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return &StorageError{Op: "delete", Err: err}
	}

	if err := s.registry.Delete(ctx, rec.ID); err != nil && !errors.Is(err, registry.ErrNotFound) {
		return err
	}

	s.logger.Info("file deleted",
		zap.String("id", rec.ID),
		zap.String("owner_id", rec.OwnerID),
		zap.String("actor_id", actor.ID),
	)

	s.invalidateOwner(ctx, rec.OwnerID)
	return nil
}
