package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/marianozunino/bucket/internal/model"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("file record not found")
	// ErrDuplicateID is returned on an insert conflict. Identifiers are
	// never reused, so seeing this outside a finalization race indicates
	// a consistency bug.
	ErrDuplicateID = errors.New("duplicate file record id")
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	storage_key   TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	content_type  TEXT NOT NULL DEFAULT '',
	size_bytes    INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	downloaded    INTEGER NOT NULL DEFAULT 0,
	downloaded_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_files_owner_created ON files(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_files_created ON files(created_at);
`

// Registry is the durable metadata store, one row per uploaded file.
// Mutations are single statements, so they are atomic per id.
type Registry struct {
	db *sqlx.DB
}

// Open opens (and if needed initializes) the SQLite-backed registry.
func Open(path string) (*Registry, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init registry schema: %w", err)
	}

	return &Registry{db: db}, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// fileRow is the storage representation; timestamps are unix seconds.
type fileRow struct {
	ID           string        `db:"id"`
	OwnerID      string        `db:"owner_id"`
	StorageKey   string        `db:"storage_key"`
	DisplayName  string        `db:"display_name"`
	ContentType  string        `db:"content_type"`
	SizeBytes    int64         `db:"size_bytes"`
	CreatedAt    int64         `db:"created_at"`
	Downloaded   bool          `db:"downloaded"`
	DownloadedAt sql.NullInt64 `db:"downloaded_at"`
}

func (row fileRow) record() model.FileRecord {
	rec := model.FileRecord{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		StorageKey:  row.StorageKey,
		DisplayName: row.DisplayName,
		ContentType: row.ContentType,
		SizeBytes:   row.SizeBytes,
		CreatedAt:   time.Unix(row.CreatedAt, 0).UTC(),
		Downloaded:  row.Downloaded,
	}
	if row.DownloadedAt.Valid {
		at := time.Unix(row.DownloadedAt.Int64, 0).UTC()
		rec.DownloadedAt = &at
	}
	return rec
}

// Insert adds a new record. It fails with ErrDuplicateID if the id is
// already present.
func (r *Registry) Insert(ctx context.Context, rec model.FileRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO files (id, owner_id, storage_key, display_name, content_type, size_bytes, created_at, downloaded, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL)`,
		rec.ID, rec.OwnerID, rec.StorageKey, rec.DisplayName, rec.ContentType,
		rec.SizeBytes, rec.CreatedAt.Unix(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

// Get returns the record for the given id.
func (r *Registry) Get(ctx context.Context, id string) (model.FileRecord, error) {
	var row fileRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM files WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.FileRecord{}, ErrNotFound
		}
		return model.FileRecord{}, fmt.Errorf("get file record: %w", err)
	}
	return row.record(), nil
}

// MarkDownloaded records the first successful download. Only the first
// call transitions the record; later calls leave downloaded_at untouched,
// so concurrent first-download races are safe.
func (r *Registry) MarkDownloaded(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE files SET downloaded = 1, downloaded_at = ?
		WHERE id = ? AND downloaded = 0`,
		at.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("mark downloaded: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark downloaded: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Either already downloaded (fine) or missing.
	var exists int
	err = r.db.GetContext(ctx, &exists, `SELECT 1 FROM files WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark downloaded: %w", err)
	}
	return nil
}

// ListExpired returns the ids of records eligible for deletion under the
// policy at the given instant. This query is the single source of truth
// for the expiry predicate: a record is expired once it is at least
// TTLHours old, or, with DeleteOnDownload set, once it has been
// downloaded.
func (r *Registry) ListExpired(ctx context.Context, pol model.ExpiryPolicy, now time.Time) ([]string, error) {
	cutoff := now.Unix() - int64(pol.TTLHours)*3600

	dod := 0
	if pol.DeleteOnDownload {
		dod = 1
	}

	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM files
		WHERE created_at <= ? OR (? = 1 AND downloaded = 1)`,
		cutoff, dod,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	return ids, nil
}

// ListByOwner returns the owner's records, newest first.
func (r *Registry) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.FileRecord, error) {
	var rows []fileRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM files WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}
	return toRecords(rows), nil
}

// ListRecent returns the most recent records across all owners.
func (r *Registry) ListRecent(ctx context.Context, limit int) ([]model.FileRecord, error) {
	var rows []fileRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM files
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	return toRecords(rows), nil
}

// Delete removes the metadata record only; the caller is responsible for
// the blob. Deleting an absent id reports ErrNotFound, which overlapping
// sweeps treat as a harmless no-op.
func (r *Registry) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func toRecords(rows []fileRow) []model.FileRecord {
	records := make([]model.FileRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records
}
