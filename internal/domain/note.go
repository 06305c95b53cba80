package domain

import "time"

// MaxNoteTitleLength bounds a note title, counted in characters after trimming.
const MaxNoteTitleLength = 100

// Note is a short text note owned by exactly one user.
type Note struct {
	ID         string
	LegacyID   string
	OwnerID    string
	Title      string
	Body       string
	CreatedAt  time.Time
	LastUpdate time.Time
}
