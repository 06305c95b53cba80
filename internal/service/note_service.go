package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"notekeeper/internal/domain"
	"notekeeper/internal/repository"
)

// NoteService mediates every note operation through the caller's principal.
// Anonymous principals are rejected before the store is touched, and notes that
// exist under another owner are reported exactly like notes that do not exist.
type NoteService interface {
	List(ctx context.Context, p domain.Principal) ([]domain.Note, error)
	Get(ctx context.Context, p domain.Principal, id string) (*domain.Note, error)
	Create(ctx context.Context, p domain.Principal, title, body string) (*domain.Note, error)
	Update(ctx context.Context, p domain.Principal, id, title, body string) (*domain.Note, error)
	Delete(ctx context.Context, p domain.Principal, id string) error
}

type noteService struct {
	notes repository.NoteRepository
	now   func() time.Time
}

// NewNoteService returns a NoteService. A nil clock defaults to time.Now in UTC.
func NewNoteService(notes repository.NoteRepository, clock func() time.Time) NoteService {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &noteService{
		notes: notes,
		now:   clock,
	}
}

func (s *noteService) List(ctx context.Context, p domain.Principal) ([]domain.Note, error) {
	if p.Anonymous() {
		return nil, ErrUnauthorized
	}
	return s.notes.ListByOwner(ctx, p.UserID)
}

func (s *noteService) Get(ctx context.Context, p domain.Principal, id string) (*domain.Note, error) {
	if p.Anonymous() {
		return nil, ErrUnauthorized
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNoteNotFound
	}

	lookup := repository.NoteLookup{LegacyID: id}
	if canonical, ok := systemID(id); ok {
		lookup.ID = canonical
	}
	note, err := s.notes.FindOwned(ctx, p.UserID, lookup)
	return note, notFound(err)
}

func (s *noteService) Create(ctx context.Context, p domain.Principal, title, body string) (*domain.Note, error) {
	if p.Anonymous() {
		return nil, ErrUnauthorized
	}
	title, body, err := validateNote(title, body)
	if err != nil {
		return nil, err
	}

	now := s.now()
	note := &domain.Note{
		ID:         uuid.NewString(),
		OwnerID:    p.UserID,
		Title:      title,
		Body:       body,
		CreatedAt:  now,
		LastUpdate: now,
	}
	if err := s.notes.Create(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

func (s *noteService) Update(ctx context.Context, p domain.Principal, id, title, body string) (*domain.Note, error) {
	if p.Anonymous() {
		return nil, ErrUnauthorized
	}
	title, body, err := validateNote(title, body)
	if err != nil {
		return nil, err
	}
	canonical, ok := systemID(id)
	if !ok {
		return nil, ErrNoteNotFound
	}

	note, err := s.notes.UpdateOwned(ctx, p.UserID, canonical, title, body, s.now())
	return note, notFound(err)
}

func (s *noteService) Delete(ctx context.Context, p domain.Principal, id string) error {
	if p.Anonymous() {
		return ErrUnauthorized
	}
	canonical, ok := systemID(id)
	if !ok {
		return ErrNoteNotFound
	}
	return notFound(s.notes.DeleteOwned(ctx, p.UserID, canonical))
}

// validateNote trims both fields and enforces the stored-note invariants.
func validateNote(title, body string) (string, string, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" {
		return "", "", invalid("note_title", "is required")
	}
	if utf8.RuneCountInString(title) > domain.MaxNoteTitleLength {
		return "", "", invalid("note_title", "must be at most 100 characters")
	}
	if body == "" {
		return "", "", invalid("note_content", "is required")
	}
	return title, body, nil
}

// systemID reports whether id is a syntactically valid system identifier and
// returns it in the canonical form the store holds.
func systemID(id string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNoteNotFound
	}
	return err
}
