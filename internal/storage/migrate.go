package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Backend names accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Target identifies a SQL database to open or migrate.
type Target struct {
	Backend string
	// DSN is a postgres:// URL for Postgres and a file path for SQLite.
	DSN string
}

func (t Target) dialect() (Dialect, string, error) {
	switch t.Backend {
	case BackendPostgres:
		return DialectPostgres, "postgres", nil
	case BackendSQLite:
		return DialectSQLite, "sqlite", nil
	default:
		return "", "", fmt.Errorf("unsupported SQL backend %q", t.Backend)
	}
}

func (t Target) migrationURL() string {
	if t.Backend == BackendSQLite {
		return "sqlite://" + t.DSN
	}
	return t.DSN
}

// Open connects to the target, retrying until the database answers a ping
// or ctx is done.
func Open(ctx context.Context, t Target, logger zerolog.Logger) (*sql.DB, Dialect, error) {
	dialect, driver, err := t.dialect()
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(driver, t.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", t.Backend, err)
	}
	if t.Backend == BackendSQLite {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second

	attempt := 0
	ping := func() error {
		attempt++
		return db.PingContext(ctx)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("waiting for database")
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("connect %s: %w", t.Backend, err)
	}

	logger.Info().Str("backend", t.Backend).Msg("connected to database")
	return db, dialect, nil
}

func newMigrator(t Target) (*migrate.Migrate, error) {
	if _, _, err := t.dialect(); err != nil {
		return nil, err
	}
	src, err := iofs.New(migrationsFS, "migrations/"+t.Backend)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, t.migrationURL())
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}

// MigrateUp applies all pending migrations.
func MigrateUp(t Target, logger zerolog.Logger) error {
	m, err := newMigrator(t)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Str("backend", t.Backend).Msg("schema is up to date")
			return nil
		}
		return fmt.Errorf("migrate up: %w", err)
	}
	logger.Info().Str("backend", t.Backend).Msg("migrations applied")
	return nil
}

// MigrateDown rolls back steps migrations.
func MigrateDown(t Target, steps int, logger zerolog.Logger) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	m, err := newMigrator(t)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	logger.Info().Str("backend", t.Backend).Int("steps", steps).Msg("migrations rolled back")
	return nil
}

// Version reports the current schema version and whether it is dirty.
func Version(t Target) (uint, bool, error) {
	m, err := newMigrator(t)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
