package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies all pending schema migrations to the database at dsn.
func Migrate(dsn string, logger *slog.Logger) error {
	return withMigrator(dsn, func(m *migrate.Migrate) error {
		logger.Info("applying migrations")
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("no new migrations to apply")
				return nil
			}
			return fmt.Errorf("apply migrations: %w", err)
		}
		version, _, _ := m.Version()
		logger.Info("migrations applied", "version", version)
		return nil
	})
}

// MigrateDown rolls back every migration. It is meant for tests and local
// resets.
func MigrateDown(dsn string, logger *slog.Logger) error {
	return withMigrator(dsn, func(m *migrate.Migrate) error {
		logger.Warn("rolling back all migrations")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("rollback migrations: %w", err)
		}
		return nil
	})
}

func withMigrator(dsn string, fn func(*migrate.Migrate) error) error {
	// golang-migrate needs a database/sql handle; pgx/stdlib provides it
	// separately from the pgxpool the repository uses.
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("sql.Open pgx: %w", err)
	}
	defer sqldb.Close()

	driver, err := migratepg.WithInstance(sqldb, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()

	return fn(m)
}
