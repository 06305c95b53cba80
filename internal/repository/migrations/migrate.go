package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Runner applies the embedded schema for one database driver.
type Runner struct {
	provider *goose.Provider
	driver   string
	log      logrus.FieldLogger
}

// New returns a migration runner backed by goose for the given driver.
func New(db *sql.DB, driver string, log logrus.FieldLogger) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("nil database provided")
	}
	var dialect goose.Dialect
	switch driver {
	case DriverSQLite:
		dialect = goose.DialectSQLite3
	case DriverPostgres:
		dialect = goose.DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported migration driver %q", driver)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	fsys, err := fs.Sub(files, driver)
	if err != nil {
		return nil, fmt.Errorf("locate %s migrations: %w", driver, err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("configure goose: %w", err)
	}
	return &Runner{provider: provider, driver: driver, log: log}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) error {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, res := range results {
		r.log.WithFields(logrus.Fields{
			"driver":   r.driver,
			"version":  res.Source.Version,
			"duration": res.Duration,
		}).Info("migration applied")
	}
	return nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) error {
	res, err := r.provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("rollback latest migration: %w", err)
	}
	if res != nil && res.Source != nil {
		r.log.WithFields(logrus.Fields{
			"driver":  r.driver,
			"version": res.Source.Version,
		}).Info("migration rolled back")
	}
	return nil
}

// Status logs applied and pending migrations and returns them.
func (r *Runner) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	for _, st := range statuses {
		fields := logrus.Fields{
			"driver":  r.driver,
			"version": st.Source.Version,
			"state":   st.State,
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		r.log.WithFields(fields).Info("migration status")
	}
	return statuses, nil
}
