package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/marianozunino/bucket/internal/blob"
	"github.com/marianozunino/bucket/internal/registry"
)

var (
	// ErrNotFound covers a missing record, a missing blob, and a
	// storage-key namespace mismatch. The three are deliberately merged
	// so responses never leak whether a file exists.
	ErrNotFound = errors.New("file not found")
	// ErrForbidden is an access-control refusal.
	ErrForbidden = errors.New("forbidden")
)

// StorageError wraps a failed blob operation. Callers may retry; the
// engine itself never does.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Invalidator receives fire-and-forget "listing for owner X is stale"
// signals.
type Invalidator interface {
	InvalidateOwner(ctx context.Context, ownerID string)
}

// Service drives the file lifecycle: finalizing uploads, gating
// downloads, and handling authorized deletion.
type Service struct {
	registry *registry.Registry
	blobs    blob.Store
	cache    Invalidator
	logger   *zap.Logger
}

// New wires the service. cache may be nil when no invalidation sink is
// configured.
func New(reg *registry.Registry, blobs blob.Store, cache Invalidator, logger *zap.Logger) *Service {
	return &Service{
		registry: reg,
		blobs:    blobs,
		cache:    cache,
		logger:   logger,
	}
}

func (s *Service) invalidateOwner(ctx context.Context, ownerID string) {
	if s.cache != nil {
		s.cache.InvalidateOwner(ctx, ownerID)
	}
}
