package repository

import (
	"context"
	"time"

	"notekeeper/internal/domain"
)

// NoteLookup selects a note by system id, legacy id, or either of them.
// Empty fields are ignored; when both are set a system id match wins.
type NoteLookup struct {
	ID       string
	LegacyID string
}

// NoteRepository persists notes. Every read and write is conditioned on the
// owner inside the same statement; callers never fetch first and compare later.
type NoteRepository interface {
	Create(ctx context.Context, note *domain.Note) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Note, error)
	FindOwned(ctx context.Context, ownerID string, lookup NoteLookup) (*domain.Note, error)
	// UpdateOwned replaces title and body of the note matching id and owner and
	// returns the stored result, or ErrNotFound when no such note exists.
	UpdateOwned(ctx context.Context, ownerID, id, title, body string, at time.Time) (*domain.Note, error)
	DeleteOwned(ctx context.Context, ownerID, id string) error
	// ImportOwned inserts notes in one transaction, skipping any whose legacy id
	// already exists for the owner. It returns the number inserted.
	ImportOwned(ctx context.Context, ownerID string, notes []domain.Note) (int, error)
	Ping(ctx context.Context) error
}
