// Package config loads the service configuration from defaults, an
// optional config.yaml, an optional .env file, and the environment. The
// unprefixed environment names below are the ones existing deployments
// already export, so the service drops in without new wiring.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Testing   bool            `mapstructure:"testing"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Import    ImportConfig    `mapstructure:"import"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds connection configuration. UseOracle selects the
// networked deployment mode: sequence-based primary keys, a single
// connection, fixed session state, and a DSN composed from the DB_* parts
// with TLS material from the wallet directory.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	UseOracle       bool          `mapstructure:"use_oracle"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DSN             string        `mapstructure:"dsn"`
	WalletDir       string        `mapstructure:"wallet_dir"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// ImportConfig holds ingestion configuration.
type ImportConfig struct {
	// AutoImport starts a full ingestion at boot when the database holds
	// no price data.
	AutoImport bool `mapstructure:"auto_import"`
	// Limit caps price files per chain per run. Zero means no cap.
	Limit int `mapstructure:"limit"`
	// Interval re-runs the importer on a timer. Zero disables it.
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	Workers     int           `mapstructure:"workers"`
	NameImprove bool          `mapstructure:"name_improve"`
	// ArchiveDir keeps raw feed copies under this directory. Empty
	// disables archiving.
	ArchiveDir string `mapstructure:"archive_dir"`
	// RetainDays bounds how long finished run records are kept.
	RetainDays int `mapstructure:"retain_days"`
}

// AuthConfig holds token and internal-surface secrets.
type AuthConfig struct {
	SecretKey      string        `mapstructure:"secret_key"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	InternalAPIKey string        `mapstructure:"internal_api_key"`
}

// RateLimitConfig holds the public-API, internal-surface, and upstream
// fetch limits.
type RateLimitConfig struct {
	APIPerSecond      float64 `mapstructure:"api_per_second"`
	APIBurst          int     `mapstructure:"api_burst"`
	InternalPerSecond float64 `mapstructure:"internal_per_second"`
	InternalBurst     int     `mapstructure:"internal_burst"`
	FetchPerSecond    float64 `mapstructure:"fetch_per_second"`
	FetchBurst        int     `mapstructure:"fetch_burst"`
	MaxRetries        int     `mapstructure:"max_retries"`
	InitialBackoffMs  int     `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `mapstructure:"max_backoff_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// TelemetryConfig holds the OTLP exporter settings. An empty endpoint
// leaves telemetry off.
type TelemetryConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`
}

var globalConfig *Config

// Load reads the configuration from file, .env, and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := loadEnvFile(); err != nil {
		// .env is optional.
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("PRICE_SERVICE")
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars carry the day.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// loadEnvFile finds and applies the first .env file in the usual spots.
func loadEnvFile() error {
	for _, dir := range []string{".", "./config"} {
		envFile := filepath.Join(dir, ".env")
		if _, err := os.Stat(envFile); err == nil {
			return loadDotEnvFile(envFile)
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and exports its KEY=VALUE lines.
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")
		os.Setenv(key, value)
	}
	return scanner.Err()
}

// bindEnvVars maps the unprefixed environment variables deployments
// already use onto config keys.
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("testing", "TESTING")

	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.use_oracle", "USE_ORACLE")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dsn", "DB_DSN")
	v.BindEnv("database.wallet_dir", "DB_WALLET_DIR")

	v.BindEnv("import.auto_import", "AUTO_IMPORT")
	v.BindEnv("import.limit", "IMPORT_LIMIT")
	v.BindEnv("import.interval", "IMPORT_INTERVAL")
	v.BindEnv("import.archive_dir", "IMPORT_ARCHIVE_DIR")

	v.BindEnv("auth.secret_key", "SECRET_KEY")
	v.BindEnv("auth.internal_api_key", "INTERNAL_API_KEY")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("testing", false)

	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	v.SetDefault("import.auto_import", false)
	v.SetDefault("import.limit", 0)
	v.SetDefault("import.interval", 24*time.Hour)
	v.SetDefault("import.batch_size", 1000)
	v.SetDefault("import.workers", 4)
	v.SetDefault("import.name_improve", true)
	v.SetDefault("import.retain_days", 90)

	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("rate_limit.api_per_second", 10)
	v.SetDefault("rate_limit.api_burst", 20)
	v.SetDefault("rate_limit.internal_per_second", 5)
	v.SetDefault("rate_limit.internal_burst", 10)
	v.SetDefault("rate_limit.fetch_per_second", 4)
	v.SetDefault("rate_limit.fetch_burst", 2)
	v.SetDefault("rate_limit.max_retries", 3)
	v.SetDefault("rate_limit.initial_backoff_ms", 100)
	v.SetDefault("rate_limit.max_backoff_ms", 30000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("telemetry.service_name", "price-service")
	v.SetDefault("telemetry.service_version", "1.0.0")
	v.SetDefault("telemetry.environment", "production")
}

// Get returns the global configuration.
func Get() *Config {
	return globalConfig
}

// DatabaseURL resolves the connection string. An explicit DATABASE_URL
// wins; networked mode composes one from the DB_* parts, pointing TLS
// verification at the wallet directory. DSN is "host:port/dbname".
func (c *Config) DatabaseURL() string {
	db := c.Database
	if db.URL != "" {
		return db.URL
	}
	if !db.UseOracle || db.User == "" || db.DSN == "" {
		return ""
	}

	host, dbname, _ := strings.Cut(db.DSN, "/")
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.User, db.Password),
		Host:   host,
	}
	if dbname != "" {
		u.Path = "/" + dbname
	}
	if db.WalletDir != "" {
		q := url.Values{}
		q.Set("sslmode", "verify-full")
		q.Set("sslrootcert", filepath.Join(db.WalletDir, "root.crt"))
		q.Set("sslcert", filepath.Join(db.WalletDir, "client.crt"))
		q.Set("sslkey", filepath.Join(db.WalletDir, "client.key"))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// GetDatabaseURL returns the resolved connection string from the loaded
// config, falling back to the raw environment before Load has run.
func GetDatabaseURL() string {
	if cfg := Get(); cfg != nil {
		if dsn := cfg.DatabaseURL(); dsn != "" {
			return dsn
		}
	}
	return os.Getenv("DATABASE_URL")
}
