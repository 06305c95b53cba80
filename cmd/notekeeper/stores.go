package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"notekeeper/internal/config"
	"notekeeper/internal/repository"
	"notekeeper/internal/repository/migrations"
	"notekeeper/internal/repository/postgres"
	"notekeeper/internal/repository/sqlite"
)

type stores struct {
	users    repository.UserRepository
	notes    repository.NoteRepository
	migrator *migrations.Runner
	closers  []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects the configured database and prepares its migration runner.
func openStores(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*stores, error) {
	s := &stores{}
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)

		sqlDB, err := postgres.OpenSQL(cfg.Database.DSN)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { sqlDB.Close() })

		if s.migrator, err = migrations.New(sqlDB, migrations.DriverPostgres, log); err != nil {
			s.Close()
			return nil, err
		}
		s.users = postgres.NewUserRepository(pool)
		s.notes = postgres.NewNoteRepository(pool)
		log.WithField("driver", cfg.Database.Driver).Info("connected to postgres")

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.closers = append(s.closers, func() { db.Close() })

		if s.migrator, err = migrations.New(db, migrations.DriverSQLite, log); err != nil {
			s.Close()
			return nil, err
		}
		s.users = sqlite.NewUserRepository(db)
		s.notes = sqlite.NewNoteRepository(db)
		log.WithField("path", cfg.Database.Path).Info("opened sqlite database")

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	return s, nil
}
