package db

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nurpe/contracts-service/internal/config"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		DB: config.DBConfig{
			Driver:          config.DBDriverSQLite,
			DSN:             filepath.Join(t.TempDir(), "contracts.db"),
			MaxOpenConns:    1,
			ConnMaxLifetime: "1m",
			AutoMigrate:     true,
		},
	}
}

func TestNew_SQLiteRunsMigrations(t *testing.T) {
	cfg := sqliteConfig(t)
	database, err := New(cfg, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sqlDB, _ := database.DB()
	t.Cleanup(func() { sqlDB.Close() })

	if !database.Migrator().HasTable("contracts") {
		t.Fatal("contracts table missing after New()")
	}
	for _, column := range []string{"id", "client_name", "start_date", "end_date", "contract_value", "delivery_manager", "attachment", "created_at", "updated_at"} {
		if !database.Migrator().HasColumn("contracts", column) {
			t.Errorf("column %s missing", column)
		}
	}

	if err := Migrate(cfg.DB); err != nil {
		t.Fatalf("second Migrate() should be a no-op, got %v", err)
	}

	version, dirty, err := Version(cfg.DB)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != 2 || dirty {
		t.Fatalf("Version() = %d (dirty %v), want 2", version, dirty)
	}
}

func TestVersion_FreshDatabase(t *testing.T) {
	cfg := sqliteConfig(t)
	version, dirty, err := Version(cfg.DB)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != 0 || dirty {
		t.Fatalf("Version() = %d (dirty %v), want 0", version, dirty)
	}
}

func TestNew_InvalidSettings(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		cfg := sqliteConfig(t)
		cfg.DB.Driver = "mongo"
		if _, err := New(cfg, zerolog.New(io.Discard)); err == nil {
			t.Fatal("expected error for unknown driver")
		}
	})

	t.Run("bad lifetime", func(t *testing.T) {
		cfg := sqliteConfig(t)
		cfg.DB.ConnMaxLifetime = "forever"
		if _, err := New(cfg, zerolog.New(io.Discard)); err == nil {
			t.Fatal("expected error for invalid DB_CONN_MAX_LIFETIME")
		}
	})
}

func TestMigrationDriver(t *testing.T) {
	if _, _, err := migrationDriver("mysql"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	dialect, driver, err := migrationDriver("")
	if err != nil || dialect != config.DBDriverPostgres || driver != "pgx" {
		t.Fatalf("migrationDriver(\"\") = %s, %s, %v", dialect, driver, err)
	}
	dialect, driver, err = migrationDriver(config.DBDriverSQLite)
	if err != nil || dialect != config.DBDriverSQLite || driver != "sqlite3" {
		t.Fatalf("migrationDriver(sqlite) = %s, %s, %v", dialect, driver, err)
	}
}
