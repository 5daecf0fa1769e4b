package model

import "time"

// FileRecord tracks one uploaded file from finalization until it is
// reclaimed, either by the sweeper or by an explicit deletion.
type FileRecord struct {
	ID           string     `db:"id" json:"id"`
	OwnerID      string     `db:"owner_id" json:"owner_id"`
	StorageKey   string     `db:"storage_key" json:"-"`
	DisplayName  string     `db:"display_name" json:"name"`
	ContentType  string     `db:"content_type" json:"content_type,omitempty"`
	SizeBytes    int64      `db:"size_bytes" json:"size"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	Downloaded   bool       `db:"downloaded" json:"downloaded"`
	DownloadedAt *time.Time `db:"downloaded_at" json:"downloaded_at,omitempty"`
}

// ExpiryPolicy is an immutable configuration snapshot consumed per sweep.
type ExpiryPolicy struct {
	// TTLHours is the age after which a record is eligible for deletion
	// regardless of its download state.
	TTLHours int
	// DeleteOnDownload makes any downloaded record eligible immediately.
	DeleteOnDownload bool
}
