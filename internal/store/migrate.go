package store

import (
	"embed"
	"errors"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rotisserie/eris"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// upSchema concatenates the up migrations under dir in version order.
func upSchema(dir string) (string, error) {
	files, err := fs.Glob(migrationFS, dir+"/*.up.sql")
	if err != nil {
		return "", eris.Wrapf(err, "store: list migrations in %s", dir)
	}
	sort.Strings(files)

	var sb strings.Builder
	for _, f := range files {
		b, err := migrationFS.ReadFile(f)
		if err != nil {
			return "", eris.Wrapf(err, "store: read migration %s", f)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func postgresSchema() (string, error) { return upSchema("migrations/postgres") }

func sqliteSchema() (string, error) { return upSchema("migrations/sqlite") }

// Migrator runs versioned PostgreSQL migrations with golang-migrate.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens a migrator for databaseURL (postgres://...).
func NewMigrator(databaseURL string) (*Migrator, error) {
	src, err := iofs.New(migrationFS, "migrations/postgres")
	if err != nil {
		return nil, eris.Wrap(err, "migrate: create source")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "migrate: create migrator")
	}
	return &Migrator{m: m}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return eris.Wrap(err, "migrate: up")
	}
	return nil
}

// Down reverts all migrations.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return eris.Wrap(err, "migrate: down")
	}
	return nil
}

// Steps applies n migrations, reverting when n is negative.
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return eris.Wrapf(err, "migrate: steps %d", n)
	}
	return nil
}

// Version reports the applied version. A fresh database reports 0.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "migrate: version")
	}
	return v, dirty, nil
}

// Force sets the version without running migrations.
func (m *Migrator) Force(version int) error {
	return eris.Wrapf(m.m.Force(version), "migrate: force %d", version)
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if srcErr != nil {
		return eris.Wrap(srcErr, "migrate: close source")
	}
	return eris.Wrap(dbErr, "migrate: close database")
}
