package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Log       LogConfig       `mapstructure:"log"`
	GeoData   GeoDataConfig   `mapstructure:"geodata"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	Enabled   bool   `mapstructure:"enabled"`
	// Cron is the refresh schedule used by cmd/refresher.
	Cron string `mapstructure:"cron"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GeoDataConfig configures the map data pipeline.
type GeoDataConfig struct {
	// WardsSource is a URL or file path of the ward boundary GeoJSON.
	WardsSource           string        `mapstructure:"wards_source"`
	MunicipalitiesEnabled bool          `mapstructure:"municipalities_enabled"`
	SimplifyTolerance     float64       `mapstructure:"simplify_tolerance"`
	CacheNamespace        string        `mapstructure:"cache_namespace"`
	CacheVersion          string        `mapstructure:"cache_version"`
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
	// Store selects the cache backend: "leveldb" (local, durable) or "valkey" (shared).
	Store          string        `mapstructure:"store"`
	StoreDir       string        `mapstructure:"store_dir"`
	SettleWindow   time.Duration `mapstructure:"settle_window"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	MarkerCacheTTL time.Duration `mapstructure:"marker_cache_ttl"`
}

// Load reads configuration from .env.local, file and environment variables.
func Load(service string) (*Config, error) {
	// .env.local is optional and never overrides variables already set.
	if err := godotenv.Load(".env.local"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env.local: %w", err)
	}

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "setshaba")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "setshaba")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "geodata-refresh")
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.cron", "0 3 * * *")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geodata.wards_source", "assets/wards.geojson")
	v.SetDefault("geodata.municipalities_enabled", true)
	v.SetDefault("geodata.simplify_tolerance", 0.002)
	v.SetDefault("geodata.cache_namespace", "setshaba")
	v.SetDefault("geodata.cache_version", "v1")
	v.SetDefault("geodata.cache_ttl", "24h")
	v.SetDefault("geodata.store", "leveldb")
	v.SetDefault("geodata.store_dir", "data/cache")
	v.SetDefault("geodata.settle_window", "300ms")
	v.SetDefault("geodata.fetch_timeout", "30s")
	v.SetDefault("geodata.marker_cache_ttl", "60s")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: SETSHABA_GEODATA_WARDS_SOURCE → geodata.wards_source
	v.SetEnvPrefix("SETSHABA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Temporal.Enabled && c.Temporal.HostPort == "" {
		errs = append(errs, "temporal.host_port is required when temporal is enabled")
	}

	g := c.GeoData
	if g.WardsSource == "" {
		errs = append(errs, "geodata.wards_source is required")
	}
	if g.SimplifyTolerance < 0 {
		errs = append(errs, fmt.Sprintf("geodata.simplify_tolerance must not be negative, got %g", g.SimplifyTolerance))
	}
	if g.CacheTTL <= 0 {
		errs = append(errs, "geodata.cache_ttl must be positive")
	}
	if g.SettleWindow <= 0 {
		errs = append(errs, "geodata.settle_window must be positive")
	}
	if g.FetchTimeout <= 0 {
		errs = append(errs, "geodata.fetch_timeout must be positive")
	}
	switch g.Store {
	case "leveldb":
		if g.StoreDir == "" {
			errs = append(errs, "geodata.store_dir is required for the leveldb store")
		}
	case "valkey":
		if c.Valkey.Addr == "" {
			errs = append(errs, "valkey.addr is required for the valkey store")
		}
	default:
		errs = append(errs, fmt.Sprintf("geodata.store must be leveldb or valkey, got %q", g.Store))
	}
	if g.MunicipalitiesEnabled && !c.Database.Enabled {
		errs = append(errs, "geodata.municipalities_enabled requires database.enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
