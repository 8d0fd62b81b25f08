package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://contracts@localhost/contracts")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.HTTP.Port != 5000 || cfg.HTTP.Host != "0.0.0.0" {
		t.Errorf("HTTP = %+v, want 0.0.0.0:5000", cfg.HTTP)
	}
	if cfg.HTTPAddr() != "0.0.0.0:5000" {
		t.Errorf("HTTPAddr() = %q", cfg.HTTPAddr())
	}
	if cfg.DB.Driver != DBDriverPostgres || !cfg.DB.AutoMigrate {
		t.Errorf("DB = %+v, want postgres with auto migrate", cfg.DB)
	}
	if cfg.Storage.Type != StorageLocal || cfg.Storage.Dir != "uploads" || cfg.Storage.PublicPrefix != "/uploads" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.HTTP.MaxUploadBytes != 20<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.HTTP.MaxUploadBytes)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v", cfg.HTTP.AllowedOrigins)
	}
	if cfg.Redis.CacheTTL != 30*time.Second || cfg.Sweep.Grace != time.Hour || cfg.Sweep.Interval != 0 {
		t.Errorf("Redis/Sweep defaults wrong: %+v %+v", cfg.Redis, cfg.Sweep)
	}
	if cfg.UI.APIBaseURL != "http://localhost:5000" || cfg.UIAddr() != "0.0.0.0:3000" {
		t.Errorf("UI = %+v", cfg.UI)
	}
	if err := cfg.RequireDatabase(); err != nil {
		t.Errorf("RequireDatabase() error = %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_AUTO_MIGRATE", "false")
	t.Setenv("STORAGE_PUBLIC_PREFIX", "files/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, https://crm.example.com")
	t.Setenv("ATTACHMENTS_SWEEP_INTERVAL", "15m")
	t.Setenv("UI_API_BASE_URL", "http://api:5000/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DB.Driver != DBDriverSQLite || cfg.DB.DSN != "contracts.db" || cfg.DB.AutoMigrate {
		t.Errorf("DB = %+v", cfg.DB)
	}
	if cfg.Storage.PublicPrefix != "/files" {
		t.Errorf("PublicPrefix = %q, want /files", cfg.Storage.PublicPrefix)
	}
	if got := strings.Join(cfg.HTTP.AllowedOrigins, "|"); got != "http://localhost:3000|https://crm.example.com" {
		t.Errorf("AllowedOrigins = %q", got)
	}
	if cfg.Sweep.Interval != 15*time.Minute {
		t.Errorf("Sweep.Interval = %v", cfg.Sweep.Interval)
	}
	if cfg.UI.APIBaseURL != "http://api:5000" {
		t.Errorf("APIBaseURL = %q", cfg.UI.APIBaseURL)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "unknown db driver",
			env:  map[string]string{"DB_DRIVER": "mongo"},
			want: "DB_DRIVER",
		},
		{
			name: "unknown storage",
			env:  map[string]string{"STORAGE_TYPE": "ftp"},
			want: "STORAGE_TYPE",
		},
		{
			name: "s3 without bucket",
			env:  map[string]string{"STORAGE_TYPE": "s3"},
			want: "S3_BUCKET",
		},
		{
			name: "root public prefix",
			env:  map[string]string{"STORAGE_PUBLIC_PREFIX": "/"},
			want: "STORAGE_PUBLIC_PREFIX",
		},
		{
			name: "public prefix on api routes",
			env:  map[string]string{"STORAGE_PUBLIC_PREFIX": "/api"},
			want: "STORAGE_PUBLIC_PREFIX",
		},
		{
			name: "public prefix below api routes",
			env:  map[string]string{"STORAGE_PUBLIC_PREFIX": "api/files"},
			want: "STORAGE_PUBLIC_PREFIX",
		},
		{
			name: "public prefix on health route",
			env:  map[string]string{"STORAGE_PUBLIC_PREFIX": "/healthz"},
			want: "STORAGE_PUBLIC_PREFIX",
		},
		{
			name: "in-memory sqlite",
			env:  map[string]string{"DB_DRIVER": "sqlite", "DB_DSN": ":memory:"},
			want: "DB_DSN",
		},
		{
			name: "shared in-memory sqlite",
			env:  map[string]string{"DB_DRIVER": "sqlite", "DB_DSN": "file:contracts?mode=memory&cache=shared"},
			want: "DB_DSN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error mentioning %s", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestRequireDatabase_MissingDSN(t *testing.T) {
	cfg := &Config{}
	if err := cfg.RequireDatabase(); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
