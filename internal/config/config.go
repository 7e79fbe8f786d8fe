package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Apify         ApifyConfig         `yaml:"apify" mapstructure:"apify"`
	Anymailfinder AnymailfinderConfig `yaml:"anymailfinder" mapstructure:"anymailfinder"`
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Search        SearchConfig        `yaml:"search" mapstructure:"search"`
	Enrich        EnrichConfig        `yaml:"enrich" mapstructure:"enrich"`
	Persist       PersistConfig       `yaml:"persist" mapstructure:"persist"`
	Query         QueryConfig         `yaml:"query" mapstructure:"query"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// ApifyConfig holds Apify API settings for the Google Maps scraper actor.
type ApifyConfig struct {
	Token             string `yaml:"token" mapstructure:"token"`
	ActorID           string `yaml:"actor_id" mapstructure:"actor_id"`
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	PollIntervalSecs  int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollTimeoutMins   int    `yaml:"poll_timeout_mins" mapstructure:"poll_timeout_mins"`
	WaitForFinishSecs int    `yaml:"wait_for_finish_secs" mapstructure:"wait_for_finish_secs"`
}

// AnymailfinderConfig holds Anymailfinder API settings.
type AnymailfinderConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the database backend. For sqlite, DatabaseURL is a
// file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SearchConfig bounds concurrent searches in a batch.
type SearchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// EnrichConfig bounds concurrent email lookups.
type EnrichConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// PersistConfig bounds concurrent business writes.
type PersistConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// QueryConfig configures business list pagination.
type QueryConfig struct {
	DefaultLimit int `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `yaml:"max_limit" mapstructure:"max_limit"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	APIKey      string   `yaml:"api_key" mapstructure:"api_key"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Modes passed to Validate.
const (
	ModeSearch = "search"
	ModeStore  = "store"
	ModeServe  = "serve"
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to empty so their env vars are picked up by Unmarshal.
	v.SetDefault("apify.token", "")
	v.SetDefault("apify.actor_id", "2Mdma1N6Fd0y3QEjR")
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.poll_interval_secs", 2)
	v.SetDefault("apify.poll_timeout_mins", 15)
	v.SetDefault("apify.wait_for_finish_secs", 30)
	v.SetDefault("anymailfinder.key", "")
	v.SetDefault("anymailfinder.base_url", "https://api.anymailfinder.com/v5.0")
	v.SetDefault("anymailfinder.rate_per_sec", 5.0)
	v.SetDefault("anymailfinder.burst", 10)
	v.SetDefault("anymailfinder.timeout_secs", 180)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("search.concurrency", 5)
	v.SetDefault("enrich.concurrency", 10)
	v.SetDefault("persist.concurrency", 5)
	v.SetDefault("query.default_limit", 10)
	v.SetDefault("query.max_limit", 100)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings the given mode needs. Every mode needs a
// usable store; search and serve also need both API credentials.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case ModeStore, ModeSearch, ModeServe:
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	if mode == ModeSearch || mode == ModeServe {
		if c.Apify.Token == "" {
			errs = append(errs, "apify.token is required")
		}
		if c.Apify.ActorID == "" {
			errs = append(errs, "apify.actor_id is required")
		}
		if c.Anymailfinder.Key == "" {
			errs = append(errs, "anymailfinder.key is required")
		}
	}
	if mode == ModeServe && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	for _, b := range []struct {
		name string
		val  int
	}{
		{"search.concurrency", c.Search.Concurrency},
		{"enrich.concurrency", c.Enrich.Concurrency},
		{"persist.concurrency", c.Persist.Concurrency},
		{"query.default_limit", c.Query.DefaultLimit},
		{"query.max_limit", c.Query.MaxLimit},
	} {
		if b.val < 1 || b.val > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 1 and 100", b.name))
		}
	}
	if c.Query.DefaultLimit > c.Query.MaxLimit {
		errs = append(errs, "query.default_limit must not exceed query.max_limit")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SQLitePath returns the database file for the sqlite driver.
func (c StoreConfig) SQLitePath() string {
	if c.DatabaseURL == "" {
		return "leadgen.db"
	}
	return c.DatabaseURL
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
