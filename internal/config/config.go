package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Migration MigrationConfig `mapstructure:"migration"`
	Autosave  AutosaveConfig  `mapstructure:"autosave"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port int `mapstructure:"port"`
	// InternalSecret 保护 /v1/admin 下的迁移接口，为空时这些接口直接拒绝。
	InternalSecret string `mapstructure:"internal_secret"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
// The bucket only receives archived legacy coordinate blobs.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	// ArchiveLegacy 为 true 时，迁移前先把原始 coordinateFields 备份到 Bucket。
	ArchiveLegacy bool `mapstructure:"archive_legacy"`
}

// MigrationConfig 控制旧版 coordinateFields 迁移。
type MigrationConfig struct {
	// CanvasWidth/CanvasHeight 是旧数据像素坐标所基于的参考画布尺寸。
	CanvasWidth  float64 `mapstructure:"canvas_width"`
	CanvasHeight float64 `mapstructure:"canvas_height"`
	Workers      int     `mapstructure:"workers"`
	RunOnStart   bool    `mapstructure:"run_on_start"`
}

// AutosaveConfig controls the coalescing window of draft field writes.
type AutosaveConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "docflow")
	v.SetDefault("database.user", "docflow")
	v.SetDefault("database.password", "docflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "docflow-legacy")
	v.SetDefault("minio.archive_legacy", false)
	v.SetDefault("migration.canvas_width", 800.0)
	v.SetDefault("migration.canvas_height", 1000.0)
	v.SetDefault("migration.workers", 4)
	v.SetDefault("migration.run_on_start", false)
	v.SetDefault("autosave.debounce", 800*time.Millisecond)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                "API_PORT",
		"api.internal_secret":     "INTERNAL_API_SECRET",
		"database.host":           "DATABASE_HOST",
		"database.port":           "DATABASE_PORT",
		"database.name":           "POSTGRES_DB",
		"database.user":           "POSTGRES_USER",
		"database.password":       "POSTGRES_PASSWORD",
		"database.sslmode":        "DATABASE_SSLMODE",
		"redis.host":              "REDIS_HOST",
		"redis.port":              "REDIS_PORT",
		"minio.endpoint":          "MINIO_ENDPOINT",
		"minio.access_key_id":     "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key": "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":           "MINIO_USE_SSL",
		"minio.bucket":            "MINIO_BUCKET",
		"minio.region":            "MINIO_REGION",
		"minio.archive_legacy":    "MINIO_ARCHIVE_LEGACY",
		"migration.canvas_width":  "MIGRATION_CANVAS_WIDTH",
		"migration.canvas_height": "MIGRATION_CANVAS_HEIGHT",
		"migration.workers":       "MIGRATION_WORKERS",
		"migration.run_on_start":  "MIGRATION_RUN_ON_START",
		"autosave.debounce":       "AUTOSAVE_DEBOUNCE",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// validate 一次性报告全部配置问题，而不是遇到第一个就返回。
func validate(cfg Config) error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(cfg.API.Port > 0, "api port must be positive")

	db := cfg.Database
	check(db.Host != "" && db.Port > 0, "database address is required")
	check(db.Name != "" && db.User != "", "database name and user are required")
	check(db.Password != "", "database password is required")
	check(db.SSLMode != "", "database sslmode is required")

	check(cfg.Redis.Host != "" && cfg.Redis.Port > 0, "redis address is required")

	if m := cfg.MinIO; m.ArchiveLegacy {
		check(m.Endpoint != "", "minio endpoint is required when legacy archive is enabled")
		check(m.AccessKeyID != "" && m.SecretAccessKey != "", "minio credentials are required when legacy archive is enabled")
		check(m.Bucket != "", "minio bucket is required when legacy archive is enabled")
	}

	check(cfg.Migration.CanvasWidth > 0 && cfg.Migration.CanvasHeight > 0, "migration canvas size must be positive")
	check(cfg.Migration.Workers > 0, "migration workers must be positive")
	check(cfg.Autosave.Debounce >= 0, "autosave debounce must not be negative")

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
