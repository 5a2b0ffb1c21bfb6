package storage

import (
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	apperrors "quantfolio/internal/errors"
)

// Migrator applies schema migrations from a source directory.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator builds a migrator over an open database connection. sourceURL
// is a file source such as "file://migrations".
func NewMigrator(db *DB, sourceURL string) (*Migrator, error) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBConnection, "failed to create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBConnection, "failed to create migrator")
	}
	return &Migrator{m: m}, nil
}

// Up applies all pending migrations. An already up-to-date schema is not an
// error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && err != migrate.ErrNoChange {
		return apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to apply migrations")
	}
	return nil
}

// Down rolls back the most recent migration.
func (mg *Migrator) Down() error {
	if err := mg.m.Steps(-1); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to roll back migration")
	}
	return nil
}

// Version reports the current schema version and whether it is dirty.
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return 0, false, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to read migration version")
	}
	return version, dirty, nil
}
