package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/nurpe/contracts-service/internal/config"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// Migrate brings the schema of the configured database to the latest version.
// It uses its own connection, so it can run before or after New.
func Migrate(cfg config.DBConfig) error {
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Version reports the current schema version. A database that was never
// migrated reports version 0.
func Version(cfg config.DBConfig) (uint, bool, error) {
	m, err := newMigrate(cfg)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrate(cfg config.DBConfig) (*migrate.Migrate, error) {
	dialect, sqlDriver, err := migrationDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	sourceDriver, err := iofs.New(migrationFiles, "migrations/"+dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	conn, err := sql.Open(sqlDriver, cfg.DSN)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("open migration connection: %w", err)
	}

	var dbDriver database.Driver
	switch dialect {
	case config.DBDriverPostgres:
		dbDriver, err = migratepgx.WithInstance(conn, &migratepgx.Config{})
	default:
		dbDriver, err = sqlite3.WithInstance(conn, &sqlite3.Config{})
	}
	if err != nil {
		conn.Close()
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dialect, dbDriver)
	if err != nil {
		dbDriver.Close()
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// migrationDriver maps DB_DRIVER to the embedded migration directory and the
// database/sql driver name registered by the gorm dialects.
func migrationDriver(driver string) (string, string, error) {
	switch driver {
	case config.DBDriverPostgres, "":
		return config.DBDriverPostgres, "pgx", nil
	case config.DBDriverSQLite:
		return config.DBDriverSQLite, "sqlite3", nil
	default:
		return "", "", fmt.Errorf("no migrations for database driver %q", driver)
	}
}
