// Package config loads the stars service configuration from defaults, an
// optional YAML file, a .env file and STARS_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dsuszek/dev-task/db"
)

// EnvPrefix is prepended to every environment variable, e.g.
// STARS_DATABASE_DRIVER for database.driver.
const EnvPrefix = "STARS"

// Config is the full runtime configuration.
type Config struct {
	Environment string         `mapstructure:"environment" validate:"oneof=development production test"`
	LogLevel    string         `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	CORSEnabled     bool          `mapstructure:"cors_enabled"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig selects the driver and tunes the pool. DSN wins over the
// discrete connection fields when both are set.
type DatabaseConfig struct {
	Driver   string            `mapstructure:"driver" validate:"oneof=sqlite3 postgres mysql"`
	DSN      string            `mapstructure:"dsn"`
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port" validate:"gte=0,lte=65535"`
	User     string            `mapstructure:"user"`
	Password string            `mapstructure:"password"`
	Name     string            `mapstructure:"name" validate:"required_without=DSN"`
	SSLMode  string            `mapstructure:"ssl_mode"`
	Params   map[string]string `mapstructure:"params"`

	MaxOpenConns       int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	QueryTimeout       time.Duration `mapstructure:"query_timeout" validate:"gte=0"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold" validate:"gte=0"`
	LogArgs            bool          `mapstructure:"log_args"`

	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	ConnectAttempts int           `mapstructure:"connect_attempts" validate:"gte=1"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay" validate:"gte=0"`
}

// MetricsConfig toggles the prometheus collector and /metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig toggles per-statement OpenTelemetry spans and points the
// OTLP gRPC exporter at a collector.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure   bool    `mapstructure:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// DriverOptions converts the discrete connection fields for db.OpenWithDriver.
func (c DatabaseConfig) DriverOptions() db.DriverOptions {
	return db.DriverOptions{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Database: c.Name,
		SSLMode:  c.SSLMode,
		Extra:    c.Params,
	}
}

// PoolConfig returns the pool and timeout part of db.Config. DSN, driver
// name and hooks are filled in by the caller.
func (c DatabaseConfig) PoolConfig() db.Config {
	return db.Config{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		DefaultTimeout:  c.QueryTimeout,
	}
}

// SetDefaults registers every key on v. AutomaticEnv only resolves keys that
// viper already knows about, so each field needs a default here.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors_enabled", false)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "stars.db")
	v.SetDefault("database.ssl_mode", "")
	v.SetDefault("database.params", map[string]string{})
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.query_timeout", 5*time.Second)
	v.SetDefault("database.slow_query_threshold", 200*time.Millisecond)
	v.SetDefault("database.log_args", false)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.connect_attempts", 5)
	v.SetDefault("database.connect_delay", 2*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Load builds a Config on v. configFile may be empty; envFiles are loaded
// with godotenv and never override variables already set in the process.
// A missing default .env file is not an error.
func Load(v *viper.Viper, configFile string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation at once.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: validate: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		// Optional default file.
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("config: load env files: %w", err)
	}
	return nil
}
