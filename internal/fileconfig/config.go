package fileconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the file config manager's own operating configuration -
// not to be confused with a published generation's Snapshot, which is
// application data the manager stores rather than configuration about
// how the manager itself runs.
type Config struct {
	// RootPath is the directory under which config-<serial>/
	// subdirectories are created.
	RootPath string `mapstructure:"root_path" validate:"required"`

	// RetainGenerations bounds how many recent generations Prune
	// keeps; 0 means unbounded (never prune automatically).
	RetainGenerations int `mapstructure:"retain_generations" validate:"gte=0"`

	// PublishTimeout bounds how long Publish may take before it's
	// treated as a failed generation swap.
	PublishTimeout time.Duration `mapstructure:"publish_timeout" validate:"required"`

	// Postgres, if Backend is "postgres", configures the durable
	// generation index (store_postgres.go). Ignored for the
	// filesystem-only backend.
	Backend  Backend        `mapstructure:"backend" validate:"oneof=filesystem postgres"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// Backend selects whether generation existence is tracked only by
// directory listing (filesystem) or additionally indexed in Postgres
// for fast lookup and cross-node visibility (postgres).
type Backend string

const (
	BackendFilesystem Backend = "filesystem"
	BackendPostgres   Backend = "postgres"
)

// PostgresConfig configures the optional durable index.
type PostgresConfig struct {
	URL             string        `mapstructure:"url" validate:"required_if=Backend postgres"`
	MaxConnections  int           `mapstructure:"max_connections" validate:"gte=1"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// DefaultConfig returns filesystem-backed defaults with a generous
// publish timeout and unbounded retention.
func DefaultConfig() Config {
	return Config{
		RootPath:          "./var/config",
		RetainGenerations: 0,
		PublishTimeout:    30 * time.Second,
		Backend:           BackendFilesystem,
		Postgres: PostgresConfig{
			MaxConnections: 5,
			ConnectTimeout: 10 * time.Second,
		},
	}
}

// Validate checks the structural constraints on Config via struct
// tags, plus one cross-field rule it checks itself so the error names
// the field to blame: a postgres backend requires a non-empty
// Postgres.URL.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("fileconfig: invalid configuration: %w", err)
	}
	if c.Backend == BackendPostgres && c.Postgres.URL == "" {
		return fmt.Errorf("fileconfig: invalid configuration: postgres.url is required when backend is postgres")
	}
	return nil
}

// LoadConfig reads configPath (if non-empty) via viper, falling back
// to defaults and FILECONFIG_-prefixed environment variables
// otherwise, then validates the result.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FILECONFIG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	defaults := DefaultConfig()
	v.SetDefault("root_path", defaults.RootPath)
	v.SetDefault("retain_generations", defaults.RetainGenerations)
	v.SetDefault("publish_timeout", defaults.PublishTimeout)
	v.SetDefault("backend", string(defaults.Backend))
	v.SetDefault("postgres.max_connections", defaults.Postgres.MaxConnections)
	v.SetDefault("postgres.connect_timeout", defaults.Postgres.ConnectTimeout)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("fileconfig: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("fileconfig: unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
