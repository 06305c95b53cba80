package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notekeeper/internal/domain"
	"notekeeper/internal/repository"
)

const noteColumns = `id::text, legacy_id, owner_id::text, title, body, created_at, last_update`

// NoteRepository stores notes in PostgreSQL.
type NoteRepository struct {
	pool *pgxpool.Pool
}

func NewNoteRepository(pool *pgxpool.Pool) *NoteRepository {
	return &NoteRepository{pool: pool}
}

var _ repository.NoteRepository = (*NoteRepository)(nil)

// Create inserts a note.
func (r *NoteRepository) Create(ctx context.Context, note *domain.Note) error {
	const query = `INSERT INTO notes (id, legacy_id, owner_id, title, body, created_at, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, note.ID, nullString(note.LegacyID), note.OwnerID, note.Title, note.Body, note.CreatedAt, note.LastUpdate)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert note: %w", repository.ErrConflict)
		}
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's notes, most recently updated first.
func (r *NoteRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Note, error) {
	if !validUUID(ownerID) {
		return []domain.Note{}, nil
	}
	const query = `SELECT ` + noteColumns + ` FROM notes
		WHERE owner_id = $1
		ORDER BY last_update DESC, created_at DESC, id ASC`
	rows, err := r.pool.Query(ctx, query, ownerID)
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

// FindOwned looks a note up by system or legacy id, scoped to the owner.
func (r *NoteRepository) FindOwned(ctx context.Context, ownerID string, lookup repository.NoteLookup) (*domain.Note, error) {
	if !validUUID(ownerID) {
		return nil, repository.ErrNotFound
	}
	var (
		conds []string
		args  = []any{ownerID}
	)
	// uuid columns reject malformed input, so an unparsable id simply cannot match
	systemID := ""
	if lookup.ID != "" && validUUID(lookup.ID) {
		systemID = lookup.ID
		args = append(args, systemID)
		conds = append(conds, "id = $"+strconv.Itoa(len(args)))
	}
	if lookup.LegacyID != "" {
		args = append(args, lookup.LegacyID)
		conds = append(conds, "legacy_id = $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return nil, repository.ErrNotFound
	}

	order := ""
	if systemID != "" {
		order = "ORDER BY CASE WHEN id = $2 THEN 0 ELSE 1 END"
	}
	query := fmt.Sprintf(`SELECT %s FROM notes WHERE owner_id = $1 AND (%s) %s LIMIT 1`,
		noteColumns, strings.Join(conds, " OR "), order)
	return scanNote(r.pool.QueryRow(ctx, query, args...))
}

// UpdateOwned rewrites the note only when id and owner match in the same statement.
func (r *NoteRepository) UpdateOwned(ctx context.Context, ownerID, id, title, body string, at time.Time) (*domain.Note, error) {
	if !validUUID(ownerID) || !validUUID(id) {
		return nil, repository.ErrNotFound
	}
	const query = `UPDATE notes SET title = $1, body = $2, last_update = $3
		WHERE id = $4 AND owner_id = $5
		RETURNING ` + noteColumns
	note, err := scanNote(r.pool.QueryRow(ctx, query, title, body, at, id, ownerID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update note: %w", err)
	}
	return note, nil
}

// DeleteOwned removes the note only when id and owner match.
func (r *NoteRepository) DeleteOwned(ctx context.Context, ownerID, id string) error {
	if !validUUID(ownerID) || !validUUID(id) {
		return repository.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM notes WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ImportOwned inserts notes in a single transaction, skipping known legacy ids.
func (r *NoteRepository) ImportOwned(ctx context.Context, ownerID string, notes []domain.Note) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `INSERT INTO notes (id, legacy_id, owner_id, title, body, created_at, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, legacy_id) DO NOTHING`

	inserted := 0
	for _, note := range notes {
		tag, err := tx.Exec(ctx, query, note.ID, nullString(note.LegacyID), ownerID, note.Title, note.Body, note.CreatedAt, note.LastUpdate)
		if err != nil {
			return 0, fmt.Errorf("import note: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return inserted, nil
}

// Ping checks the pool can reach the server.
func (r *NoteRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanNote(row pgx.Row) (*domain.Note, error) {
	var (
		note     domain.Note
		legacyID *string
	)
	if err := row.Scan(&note.ID, &legacyID, &note.OwnerID, &note.Title, &note.Body, &note.CreatedAt, &note.LastUpdate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan note: %w", err)
	}
	if legacyID != nil {
		note.LegacyID = *legacyID
	}
	note.CreatedAt = note.CreatedAt.UTC()
	note.LastUpdate = note.LastUpdate.UTC()
	return &note, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
