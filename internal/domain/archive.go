package domain

import "time"

// ArchiveVersion is the current note archive document version.
const ArchiveVersion = 1

// Archive is a portable snapshot of one user's notes.
type Archive struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	UserID     string         `json:"user_id,omitempty"`
	Notes      []ArchivedNote `json:"notes"`
}

// ArchivedNote is a note as it appears inside an Archive.
type ArchivedNote struct {
	ID         string    `json:"id"`
	NoteID     string    `json:"note_id,omitempty"`
	Title      string    `json:"note_title"`
	Content    string    `json:"note_content"`
	CreatedOn  time.Time `json:"created_on"`
	LastUpdate time.Time `json:"last_update"`
}

// ExportRecord describes an archive stored in object storage.
type ExportRecord struct {
	Key          string
	Location     string
	Size         int64
	NoteCount    int
	URL          string
	CreatedAt    time.Time
	LastModified *time.Time
}
