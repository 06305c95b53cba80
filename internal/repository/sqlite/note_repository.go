package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"notekeeper/internal/domain"
	"notekeeper/internal/repository"
)

const noteColumns = `id, legacy_id, owner_id, title, body, created_at, last_update`

type NoteRepository struct {
	db *sql.DB
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

var _ repository.NoteRepository = (*NoteRepository)(nil)

func (r *NoteRepository) Create(ctx context.Context, note *domain.Note) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO notes (`+noteColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		note.ID,
		nullString(note.LegacyID),
		note.OwnerID,
		note.Title,
		note.Body,
		formatTime(note.CreatedAt),
		formatTime(note.LastUpdate),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert note: %w", repository.ErrConflict)
		}
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (r *NoteRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Note, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+noteColumns+`
FROM notes
WHERE owner_id = ?
ORDER BY last_update DESC, created_at DESC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *note)
	}

	return notes, rows.Err()
}

func (r *NoteRepository) FindOwned(ctx context.Context, ownerID string, lookup repository.NoteLookup) (*domain.Note, error) {
	var (
		conds []string
		args  = []any{ownerID}
	)
	if lookup.ID != "" {
		conds = append(conds, "id = ?")
		args = append(args, lookup.ID)
	}
	if lookup.LegacyID != "" {
		conds = append(conds, "legacy_id = ?")
		args = append(args, lookup.LegacyID)
	}
	if len(conds) == 0 {
		return nil, repository.ErrNotFound
	}
	args = append(args, lookup.ID)

	query := fmt.Sprintf(`
SELECT `+noteColumns+`
FROM notes
WHERE owner_id = ? AND (%s)
ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END
LIMIT 1`, strings.Join(conds, " OR "))

	return scanNote(r.db.QueryRowContext(ctx, query, args...))
}

func (r *NoteRepository) UpdateOwned(ctx context.Context, ownerID, id, title, body string, at time.Time) (*domain.Note, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE notes
SET title = ?, body = ?, last_update = ?
WHERE id = ? AND owner_id = ?
RETURNING `+noteColumns,
		title,
		body,
		formatTime(at),
		id,
		ownerID,
	)
	note, err := scanNote(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update note: %w", err)
	}
	return note, nil
}

func (r *NoteRepository) DeleteOwned(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("note delete rows affected: %w", err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *NoteRepository) ImportOwned(ctx context.Context, ownerID string, notes []domain.Note) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	inserted := 0
	for _, note := range notes {
		res, err := tx.ExecContext(ctx, `
INSERT INTO notes (`+noteColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (owner_id, legacy_id) DO NOTHING`,
			note.ID,
			nullString(note.LegacyID),
			ownerID,
			note.Title,
			note.Body,
			formatTime(note.CreatedAt),
			formatTime(note.LastUpdate),
		)
		if err != nil {
			return 0, fmt.Errorf("import note: %w", err)
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("import rows affected: %w", err)
		}
		inserted += int(aff)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return inserted, nil
}

func (r *NoteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanNote(scanner interface {
	Scan(dest ...any) error
}) (*domain.Note, error) {
	var (
		note       domain.Note
		legacyID   sql.NullString
		createdAt  string
		lastUpdate string
	)
	if err := scanner.Scan(
		&note.ID,
		&legacyID,
		&note.OwnerID,
		&note.Title,
		&note.Body,
		&createdAt,
		&lastUpdate,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan note: %w", err)
	}

	note.LegacyID = legacyID.String
	var err error
	if note.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if note.LastUpdate, err = parseTime(lastUpdate); err != nil {
		return nil, err
	}
	return &note, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
