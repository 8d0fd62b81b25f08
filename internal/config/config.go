package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	StorageLocal  = "local"
	StorageS3     = "s3"
	StorageMemory = "memory"
)

type HTTPConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	MaxUploadBytes int64
}

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
	AutoMigrate     bool
}

// StorageConfig selects the attachment backend. Only the fields of the
// selected Type are used.
type StorageConfig struct {
	Type         string
	Dir          string
	PublicPrefix string

	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type SweepConfig struct {
	Interval time.Duration
	Grace    time.Duration
}

type UIConfig struct {
	Host       string
	Port       int
	APIBaseURL string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Storage     StorageConfig
	Redis       RedisConfig
	Sweep       SweepConfig
	UI          UIConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	v.SetDefault("DB_AUTO_MIGRATE", true)

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host:           v.GetString("HTTP_HOST"),
			Port:           v.GetInt("HTTP_PORT"),
			AllowedOrigins: parseList(v.GetString("CORS_ALLOWED_ORIGINS")),
			MaxUploadBytes: v.GetInt64("UPLOAD_MAX_BYTES"),
		},
		DB: DBConfig{
			Driver:          strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
			AutoMigrate:     v.GetBool("DB_AUTO_MIGRATE"),
		},
		Storage: StorageConfig{
			Type:              strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_TYPE"))),
			Dir:               v.GetString("STORAGE_DIR"),
			PublicPrefix:      v.GetString("STORAGE_PUBLIC_PREFIX"),
			S3Bucket:          v.GetString("S3_BUCKET"),
			S3Prefix:          v.GetString("S3_PREFIX"),
			S3Region:          v.GetString("S3_REGION"),
			S3Endpoint:        v.GetString("S3_ENDPOINT"),
			S3AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			S3SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			CacheTTL: v.GetDuration("REDIS_CACHE_TTL"),
		},
		Sweep: SweepConfig{
			Interval: v.GetDuration("ATTACHMENTS_SWEEP_INTERVAL"),
			Grace:    v.GetDuration("ATTACHMENTS_SWEEP_GRACE"),
		},
		UI: UIConfig{
			Host:       v.GetString("UI_HTTP_HOST"),
			Port:       v.GetInt("UI_HTTP_PORT"),
			APIBaseURL: v.GetString("UI_API_BASE_URL"),
		},
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 5000
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	}
	if cfg.HTTP.MaxUploadBytes <= 0 {
		cfg.HTTP.MaxUploadBytes = 20 << 20
	}
	if cfg.DB.Driver == "" {
		cfg.DB.Driver = DBDriverPostgres
	}
	if cfg.DB.Driver == DBDriverSQLite && cfg.DB.DSN == "" {
		cfg.DB.DSN = "contracts.db"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageLocal
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "uploads"
	}
	if cfg.Storage.PublicPrefix == "" {
		cfg.Storage.PublicPrefix = "/uploads"
	}
	cfg.Storage.PublicPrefix = "/" + strings.Trim(cfg.Storage.PublicPrefix, "/")
	if cfg.Redis.CacheTTL <= 0 {
		cfg.Redis.CacheTTL = 30 * time.Second
	}
	if cfg.Sweep.Grace <= 0 {
		cfg.Sweep.Grace = time.Hour
	}
	if cfg.UI.Host == "" {
		cfg.UI.Host = "0.0.0.0"
	}
	if cfg.UI.Port == 0 {
		cfg.UI.Port = 3000
	}
	if cfg.UI.APIBaseURL == "" {
		cfg.UI.APIBaseURL = "http://localhost:5000"
	}
	cfg.UI.APIBaseURL = strings.TrimRight(cfg.UI.APIBaseURL, "/")
}

func validate(cfg *Config) error {
	switch cfg.DB.Driver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER %q is not supported", cfg.DB.Driver)
	}
	switch cfg.Storage.Type {
	case StorageLocal, StorageMemory:
	case StorageS3:
		if cfg.Storage.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_TYPE=s3")
		}
	default:
		return fmt.Errorf("STORAGE_TYPE %q is not supported", cfg.Storage.Type)
	}
	if cfg.Storage.PublicPrefix == "/" {
		return fmt.Errorf("STORAGE_PUBLIC_PREFIX must not be the root path")
	}
	first, _, _ := strings.Cut(strings.TrimPrefix(cfg.Storage.PublicPrefix, "/"), "/")
	for _, reserved := range reservedRoutes {
		if first == reserved {
			return fmt.Errorf("STORAGE_PUBLIC_PREFIX %q collides with the /%s routes", cfg.Storage.PublicPrefix, reserved)
		}
	}
	if cfg.DB.Driver == DBDriverSQLite && isMemoryDSN(cfg.DB.DSN) {
		return fmt.Errorf("DB_DSN %q is an in-memory sqlite database, migrations would run on a separate one", cfg.DB.DSN)
	}
	if cfg.Sweep.Interval < 0 {
		return fmt.Errorf("ATTACHMENTS_SWEEP_INTERVAL must not be negative")
	}
	return nil
}

// RequireDatabase reports whether the settings needed by the API binary are
// present. The UI binary never touches the database and skips this check.
func (c *Config) RequireDatabase() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func (c *Config) UIAddr() string {
	return fmt.Sprintf("%s:%d", c.UI.Host, c.UI.Port)
}

// reservedRoutes are the first path segments served by the API itself.
var reservedRoutes = []string{"api", "healthz"}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
