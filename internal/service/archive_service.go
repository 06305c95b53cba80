package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"notekeeper/internal/domain"
	"notekeeper/internal/repository"
	"notekeeper/internal/storage"
)

const archiveTimeLayout = "20060102T150405.000000000Z"

// ArchiveService exports a principal's notes to object storage and imports archives back.
type ArchiveService interface {
	Export(ctx context.Context, p domain.Principal) (*domain.ExportRecord, error)
	ListExports(ctx context.Context, p domain.Principal) ([]domain.ExportRecord, error)
	PurgeExports(ctx context.Context, p domain.Principal) error
	Import(ctx context.Context, p domain.Principal, archive domain.Archive) (ImportResult, error)
}

// ArchiveConfig locates archives in object storage.
type ArchiveConfig struct {
	Bucket    string
	KeyPrefix string
	URLExpiry time.Duration
}

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

type archiveService struct {
	notes repository.NoteRepository
	store storage.Service
	cfg   ArchiveConfig
	now   func() time.Time
}

// NewArchiveService returns an ArchiveService. Exports are disabled when store is nil
// or no bucket is configured; imports always work.
func NewArchiveService(notes repository.NoteRepository, store storage.Service, cfg ArchiveConfig, clock func() time.Time) ArchiveService {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	return &archiveService{
		notes: notes,
		store: store,
		cfg:   cfg,
		now:   clock,
	}
}

func (s *archiveService) enabled() bool {
	return s.store != nil && s.cfg.Bucket != ""
}

func (s *archiveService) userPrefix(userID string) string {
	return path.Join(s.cfg.KeyPrefix, userID) + "/"
}

func (s *archiveService) Export(ctx context.Context, p domain.Principal) (*domain.ExportRecord, error) {
	if p.Anonymous() {
		return nil, ErrUnauthorized
	}
	if !s.enabled() {
		return nil, ErrStorageDisabled
	}

	notes, err := s.notes.ListByOwner(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	archive := domain.Archive{
		Version:    domain.ArchiveVersion,
		ExportedAt: now,
		UserID:     p.UserID,
		Notes:      make([]domain.ArchivedNote, len(notes)),
	}
	for i, n := range notes {
		archive.Notes[i] = domain.ArchivedNote{
			ID:         n.ID,
			NoteID:     n.LegacyID,
			Title:      n.Title,
			Content:    n.Body,
			CreatedOn:  n.CreatedAt,
			LastUpdate: n.LastUpdate,
		}
	}

	payload, err := json.Marshal(archive)
	if err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}

	key := s.userPrefix(p.UserID) + now.UTC().Format(archiveTimeLayout) + ".json"
	location, err := s.store.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}

	return &domain.ExportRecord{
		Key:       key,
		Location:  location,
		Size:      int64(len(payload)),
		NoteCount: len(notes),
		CreatedAt: now,
	}, nil
}

func (s *archiveService) ListExports(ctx context.Context, p domain.Principal) ([]domain.ExportRecord, error) {
	if p.Anonymous() {
		return nil, ErrUnauthorized
	}
	if !s.enabled() {
		return nil, ErrStorageDisabled
	}

	objects, err := s.store.ListObjects(ctx, s.cfg.Bucket, s.userPrefix(p.UserID))
	if err != nil {
		return nil, err
	}

	records := make([]domain.ExportRecord, 0, len(objects))
	for _, obj := range objects {
		url, err := s.store.GetObjectURL(ctx, s.cfg.Bucket, obj.Key, s.cfg.URLExpiry)
		if err != nil {
			return nil, err
		}
		records = append(records, domain.ExportRecord{
			Key:          obj.Key,
			Location:     fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, obj.Key),
			Size:         obj.Size,
			URL:          url,
			LastModified: obj.LastModified,
		})
	}
	return records, nil
}

func (s *archiveService) PurgeExports(ctx context.Context, p domain.Principal) error {
	if p.Anonymous() {
		return ErrUnauthorized
	}
	if !s.enabled() {
		return ErrStorageDisabled
	}
	return s.store.DeletePrefix(ctx, s.cfg.Bucket, s.userPrefix(p.UserID))
}

func (s *archiveService) Import(ctx context.Context, p domain.Principal, archive domain.Archive) (ImportResult, error) {
	if p.Anonymous() {
		return ImportResult{}, ErrUnauthorized
	}
	if archive.Version != domain.ArchiveVersion {
		return ImportResult{}, invalid("version", fmt.Sprintf("must be %d", domain.ArchiveVersion))
	}

	now := s.now()
	notes := make([]domain.Note, 0, len(archive.Notes))
	for i, entry := range archive.Notes {
		title, body, err := validateNote(entry.Title, entry.Content)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				verr.Field = fmt.Sprintf("notes[%d].%s", i, verr.Field)
			}
			return ImportResult{}, err
		}

		legacyID := strings.TrimSpace(entry.NoteID)
		if legacyID == "" {
			legacyID = strings.TrimSpace(entry.ID)
		}
		created := entry.CreatedOn.UTC()
		if entry.CreatedOn.IsZero() {
			created = now
		}
		updated := entry.LastUpdate.UTC()
		if entry.LastUpdate.IsZero() {
			updated = created
		}

		notes = append(notes, domain.Note{
			ID:         uuid.NewString(),
			LegacyID:   legacyID,
			OwnerID:    p.UserID,
			Title:      title,
			Body:       body,
			CreatedAt:  created,
			LastUpdate: updated,
		})
	}
	if len(notes) == 0 {
		return ImportResult{}, nil
	}

	imported, err := s.notes.ImportOwned(ctx, p.UserID, notes)
	if err != nil {
		return ImportResult{}, err
	}
	return ImportResult{Imported: imported, Skipped: len(notes) - imported}, nil
}
