package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"notekeeper/internal/domain"
	"notekeeper/internal/repository"
	"notekeeper/internal/repository/migrations"
	"notekeeper/internal/repository/sqlite"
)

func newRepos(t *testing.T) (repository.UserRepository, repository.NoteRepository) {
	t.Helper()
	db, err := sqlite.Open(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	runner, err := migrations.New(db, migrations.DriverSQLite, log)
	require.NoError(t, err)
	require.NoError(t, runner.Up(context.Background()))

	return sqlite.NewUserRepository(db), sqlite.NewNoteRepository(db)
}

// stepClock advances one second per reading so ordering never depends on wall time.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// untouchableNotes fails the test on any store access.
type untouchableNotes struct {
	t *testing.T
}

func (u untouchableNotes) fail() { u.t.Fatalf("note store accessed") }

func (u untouchableNotes) Create(context.Context, *domain.Note) error { u.fail(); return nil }
func (u untouchableNotes) ListByOwner(context.Context, string) ([]domain.Note, error) {
	u.fail()
	return nil, nil
}
func (u untouchableNotes) FindOwned(context.Context, string, repository.NoteLookup) (*domain.Note, error) {
	u.fail()
	return nil, nil
}
func (u untouchableNotes) UpdateOwned(context.Context, string, string, string, string, time.Time) (*domain.Note, error) {
	u.fail()
	return nil, nil
}
func (u untouchableNotes) DeleteOwned(context.Context, string, string) error { u.fail(); return nil }
func (u untouchableNotes) ImportOwned(context.Context, string, []domain.Note) (int, error) {
	u.fail()
	return 0, nil
}
func (u untouchableNotes) Ping(context.Context) error { return nil }
