// Package repositorytest holds behaviour checks shared by every repository backend.
package repositorytest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper/internal/domain"
	"notekeeper/internal/repository"
)

// Factory returns fresh, migrated repositories sharing one empty database.
type Factory func(t *testing.T) (repository.UserRepository, repository.NoteRepository)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises a backend against the ownership and ordering rules.
func Run(t *testing.T, newRepos Factory) {
	t.Run("users", func(t *testing.T) { testUsers(t, newRepos) })
	t.Run("owned lookups", func(t *testing.T) { testOwnedLookups(t, newRepos) })
	t.Run("ordering", func(t *testing.T) { testOrdering(t, newRepos) })
	t.Run("legacy ids", func(t *testing.T) { testLegacyIDs(t, newRepos) })
	t.Run("import", func(t *testing.T) { testImport(t, newRepos) })
	t.Run("concurrent deletes", func(t *testing.T) { testConcurrentDeletes(t, newRepos) })
}

func newNote(owner, title string, at time.Time) *domain.Note {
	return &domain.Note{
		ID:         uuid.NewString(),
		OwnerID:    owner,
		Title:      title,
		Body:       "body of " + title,
		CreatedAt:  at,
		LastUpdate: at,
	}
}

func testUsers(t *testing.T, newRepos Factory) {
	users, _ := newRepos(t)
	ctx := context.Background()

	user := &domain.User{
		ID:           uuid.NewString(),
		UserName:     "ada",
		Email:        "ada@example.com",
		PasswordHash: "hash",
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	require.NoError(t, users.Create(ctx, user))

	byEmail, err := users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, "ada", byEmail.UserName)
	assert.True(t, base.Equal(byEmail.CreatedAt))

	byID, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", byID.Email)

	dup := *user
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, users.Create(ctx, &dup), repository.ErrConflict)

	_, err = users.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = users.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testOwnedLookups(t *testing.T, newRepos Factory) {
	_, notes := newRepos(t)
	ctx := context.Background()
	alice, bob := uuid.NewString(), uuid.NewString()

	note := newNote(alice, "groceries", base)
	require.NoError(t, notes.Create(ctx, note))

	found, err := notes.FindOwned(ctx, alice, repository.NoteLookup{ID: note.ID})
	require.NoError(t, err)
	assert.Equal(t, "groceries", found.Title)
	assert.Equal(t, alice, found.OwnerID)

	_, err = notes.FindOwned(ctx, bob, repository.NoteLookup{ID: note.ID})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = notes.FindOwned(ctx, alice, repository.NoteLookup{})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = notes.UpdateOwned(ctx, bob, note.ID, "stolen", "stolen", base.Add(time.Minute))
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, notes.DeleteOwned(ctx, bob, note.ID), repository.ErrNotFound)

	updated, err := notes.UpdateOwned(ctx, alice, note.ID, "groceries v2", "milk", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "groceries v2", updated.Title)
	assert.Equal(t, "milk", updated.Body)
	assert.True(t, base.Add(time.Minute).Equal(updated.LastUpdate))
	assert.True(t, base.Equal(updated.CreatedAt))

	require.NoError(t, notes.DeleteOwned(ctx, alice, note.ID))
	assert.ErrorIs(t, notes.DeleteOwned(ctx, alice, note.ID), repository.ErrNotFound)
	_, err = notes.UpdateOwned(ctx, alice, note.ID, "gone", "gone", base)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testOrdering(t *testing.T, newRepos Factory) {
	_, notes := newRepos(t)
	ctx := context.Background()
	alice, bob := uuid.NewString(), uuid.NewString()

	first := newNote(alice, "first", base)
	second := newNote(alice, "second", base.Add(time.Second))
	third := newNote(alice, "third", base.Add(2*time.Second))
	other := newNote(bob, "other", base.Add(3*time.Second))
	for _, n := range []*domain.Note{first, second, third, other} {
		require.NoError(t, notes.Create(ctx, n))
	}

	list, err := notes.ListByOwner(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, titles(list))

	_, err = notes.UpdateOwned(ctx, alice, first.ID, "first", "edited", base.Add(time.Hour))
	require.NoError(t, err)

	list, err = notes.ListByOwner(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third", "second"}, titles(list))

	empty, err := notes.ListByOwner(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testLegacyIDs(t *testing.T, newRepos Factory) {
	_, notes := newRepos(t)
	ctx := context.Background()
	alice := uuid.NewString()

	legacy := newNote(alice, "imported", base)
	legacy.LegacyID = "n-42"
	require.NoError(t, notes.Create(ctx, legacy))

	found, err := notes.FindOwned(ctx, alice, repository.NoteLookup{LegacyID: "n-42"})
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, found.ID)
	assert.Equal(t, "n-42", found.LegacyID)

	// a legacy id that collides with another note's system id loses to the system id
	shadow := newNote(alice, "shadow", base)
	shadow.LegacyID = legacy.ID
	require.NoError(t, notes.Create(ctx, shadow))

	found, err = notes.FindOwned(ctx, alice, repository.NoteLookup{ID: legacy.ID, LegacyID: legacy.ID})
	require.NoError(t, err)
	assert.Equal(t, "imported", found.Title)

	dup := newNote(alice, "dup", base)
	dup.LegacyID = "n-42"
	assert.ErrorIs(t, notes.Create(ctx, dup), repository.ErrConflict)
}

func testImport(t *testing.T, newRepos Factory) {
	_, notes := newRepos(t)
	ctx := context.Background()
	alice := uuid.NewString()

	batch := []domain.Note{*newNote(alice, "a", base), *newNote(alice, "b", base), *newNote(alice, "c", base)}
	batch[0].LegacyID = "old-a"
	batch[1].LegacyID = "old-b"

	n, err := notes.ImportOwned(ctx, alice, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	again := []domain.Note{*newNote(alice, "a", base), *newNote(alice, "d", base)}
	again[0].LegacyID = "old-a"
	again[1].LegacyID = "old-d"
	n, err = notes.ImportOwned(ctx, alice, again)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := notes.ListByOwner(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func testConcurrentDeletes(t *testing.T, newRepos Factory) {
	_, notes := newRepos(t)
	ctx := context.Background()
	alice := uuid.NewString()

	note := newNote(alice, "contested", base)
	require.NoError(t, notes.Create(ctx, note))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notFound  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := notes.DeleteOwned(ctx, alice, note.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, repository.ErrNotFound):
				notFound++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, notFound)
}

func titles(notes []domain.Note) []string {
	out := make([]string, len(notes))
	for i := range notes {
		out[i] = notes[i].Title
	}
	return out
}
