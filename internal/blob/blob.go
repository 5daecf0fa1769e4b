package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Namespace is the storage-key prefix every finalized blob lives under.
// The download gate refuses keys outside it.
const Namespace = "bucket/"

// stagingDir holds freshly uploaded blobs until finalization marks them
// permanent.
const stagingDir = "staging"

// ErrNotFound is returned when a blob is absent for the given key or id.
var ErrNotFound = errors.New("blob not found")

// Store is the opaque byte-storage backend. The lifecycle engine never
// inspects blob content.
type Store interface {
	// Store writes the content as a staged blob and returns its assigned
	// id and size.
	Store(content io.Reader) (id string, size int64, err error)
	// MarkPermanent promotes a staged blob into the owner's namespace and
	// returns its storage key. Re-promoting an already-permanent blob is
	// a no-op returning the same key.
	MarkPermanent(id, ownerID string) (storageKey string, err error)
	// DiscardStaged removes a staged blob that will not be finalized.
	// Discarding an absent (or already promoted) id returns ErrNotFound.
	DiscardStaged(id string) error
	// Open returns the blob's byte stream.
	Open(storageKey string) (io.ReadCloser, error)
	// Delete removes the blob. Deleting an absent blob returns ErrNotFound.
	Delete(storageKey string) error
}

// InNamespace reports whether a storage key points into the expected
// bucket namespace.
func InNamespace(storageKey string) bool {
	return strings.HasPrefix(storageKey, Namespace) &&
		len(storageKey) > len(Namespace) &&
		!strings.Contains(storageKey, "..")
}

// FS is a filesystem-backed Store rooted at a data directory.
type FS struct {
	root string
}

// NewFS creates the store, ensuring its directories exist.
func NewFS(root string) (*FS, error) {
	for _, dir := range []string{root, filepath.Join(root, stagingDir), filepath.Join(root, "bucket")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create blob dir: %w", err)
		}
	}
	return &FS{root: root}, nil
}

func (s *FS) Store(content io.Reader) (string, int64, error) {
	id := uuid.NewString()
	stagedPath := filepath.Join(s.root, stagingDir, id)

	dst, err := os.OpenFile(stagedPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create staged blob: %w", err)
	}

	size, err := io.Copy(dst, content)
	if err != nil {
		dst.Close()
		os.Remove(stagedPath)
		return "", 0, fmt.Errorf("write staged blob: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(stagedPath)
		return "", 0, fmt.Errorf("close staged blob: %w", err)
	}

	return id, size, nil
}

func (s *FS) MarkPermanent(id, ownerID string) (string, error) {
	if ownerID == "" {
		ownerID = "anonymous"
	}
	key := path.Join("bucket", ownerID, id)
	target := filepath.Join(s.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create owner dir: %w", err)
	}

	err := os.Rename(filepath.Join(s.root, stagingDir, id), target)
	if err != nil {
		if os.IsNotExist(err) {
			// Already promoted by an earlier delivery of the same request.
			if _, statErr := os.Stat(target); statErr == nil {
				return key, nil
			}
			return "", ErrNotFound
		}
		return "", fmt.Errorf("promote blob: %w", err)
	}

	return key, nil
}

func (s *FS) DiscardStaged(id string) error {
	err := os.Remove(filepath.Join(s.root, stagingDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("discard staged blob: %w", err)
	}
	return nil
}

func (s *FS) Open(storageKey string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(storageKey)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *FS) Delete(storageKey string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(storageKey)))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
