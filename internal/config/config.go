// Package config initializes and loads application configuration. It uses
// Viper to merge a config file, environment variables, and defaults into
// one typed Config consumed by the CLI.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bindery/internal/fetch"
	"bindery/internal/ratelimit"
	"bindery/internal/retry"
)

// Storage backend names accepted by storage.backend.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Init sets defaults, search paths, and environment binding. Call once at
// startup, before Load. cfgFile, when non-empty, pins the config file
// instead of searching.
func Init(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/bindery/")
		viper.AddConfigPath("$HOME/.bindery")
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("BINDERY") // e.g. BINDERY_STORAGE_BACKEND=postgres
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			// Defaults plus environment are a full configuration.
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.user_agent", fetch.DefaultOptions().UserAgent)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.min_interval_ms", 1000)
	v.SetDefault("fetch.continue_on_error", false)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 500)
	v.SetDefault("retry.max_delay_ms", 30000)

	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.dir", "data/progress")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("output.dir", "data/books")
	v.SetDefault("logging.development", false)
}

// Config is the typed application configuration.
type Config struct {
	UserAgent       string
	Timeout         time.Duration
	MinInterval     time.Duration
	SourceIntervals map[string]time.Duration
	ContinueOnError bool

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	StorageBackend string
	StorageDir     string
	StorageDSN     string

	OutputDir      string
	DevelopmentLog bool
}

// Load reads the typed configuration out of v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		UserAgent:        v.GetString("fetch.user_agent"),
		Timeout:          time.Duration(v.GetInt("fetch.timeout_seconds")) * time.Second,
		MinInterval:      time.Duration(v.GetInt("fetch.min_interval_ms")) * time.Millisecond,
		ContinueOnError:  v.GetBool("fetch.continue_on_error"),
		RetryMaxAttempts: v.GetInt("retry.max_attempts"),
		RetryBaseDelay:   time.Duration(v.GetInt("retry.base_delay_ms")) * time.Millisecond,
		RetryMaxDelay:    time.Duration(v.GetInt("retry.max_delay_ms")) * time.Millisecond,
		StorageBackend:   v.GetString("storage.backend"),
		StorageDir:       v.GetString("storage.dir"),
		StorageDSN:       v.GetString("storage.dsn"),
		OutputDir:        v.GetString("output.dir"),
		DevelopmentLog:   v.GetBool("logging.development"),
	}

	cfg.SourceIntervals = make(map[string]time.Duration)
	for key := range v.GetStringMap("fetch.source_intervals_ms") {
		ms := v.GetInt("fetch.source_intervals_ms." + key)
		if ms > 0 {
			cfg.SourceIntervals[key] = time.Duration(ms) * time.Millisecond
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case BackendFile:
		if c.StorageDir == "" {
			return fmt.Errorf("storage.dir is required for the file backend")
		}
	case BackendPostgres:
		if c.StorageDSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.StorageBackend)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be positive")
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("fetch.min_interval_ms must be positive")
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("retry delays must be positive and max >= base")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output.dir is required")
	}
	return nil
}

// FetchOptions maps the config onto the HTTP client options.
func (c Config) FetchOptions() fetch.Options {
	opts := fetch.DefaultOptions()
	opts.UserAgent = c.UserAgent
	opts.Timeout = c.Timeout
	return opts
}

// RateLimitConfig maps the config onto the limiter.
func (c Config) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		DefaultInterval: c.MinInterval,
		PerSource:       c.SourceIntervals,
	}
}

// RetryConfig maps the config onto the retry policy. OnRetry is left for
// the caller to attach.
func (c Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts: c.RetryMaxAttempts,
		BaseDelay:   c.RetryBaseDelay,
		MaxDelay:    c.RetryMaxDelay,
	}
}
