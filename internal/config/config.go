// Package config provides configuration loading and validation for
// hydrablock.
//
// Configuration is read from an optional YAML file and overridden by
// HYDRABLOCK_* environment variables, e.g. HYDRABLOCK_API_PORT=9090 or
// HYDRABLOCK_BLOCKER_LOG_REQUESTS=true. Load validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jroosing/hydrablock/internal/filtering"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HYDRABLOCK"

// ConfigPathEnv names the config file when no flag is given.
const ConfigPathEnv = EnvPrefix + "_CONFIG"

// ResolveConfigPath returns flag when set, otherwise $HYDRABLOCK_CONFIG.
func ResolveConfigPath(flag string) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(ConfigPathEnv))
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:            "INFO",
			StructuredFormat: "json",
		},
		Filtering: filtering.DefaultConfig(),
		Blocker: BlockerConfig{
			Enabled:       true,
			LogCapacity:   1000,
			PersistWindow: time.Second,
		},
		Storage: StorageConfig{Path: "hydrablock.db"},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			RateLimit: RateLimitConfig{
				ClientQPS:   100,
				ClientBurst: 200,
				MaxClients:  1024,
			},
		},
		Browser: BrowserConfig{
			Headless: true,
			Stealth:  true,
		},
	}
}

// Load reads path (may be empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.structured", d.Logging.Structured)
	v.SetDefault("logging.structured_format", d.Logging.StructuredFormat)
	v.SetDefault("logging.include_pid", d.Logging.IncludePID)

	v.SetDefault("filtering.cache_size", d.Filtering.CacheSize)
	v.SetDefault("filtering.watch", d.Filtering.Watch)
	v.SetDefault("filtering.lists_dir", d.Filtering.ListsDir)
	v.SetDefault("filtering.refresh.enabled", d.Filtering.Refresh.Enabled)
	v.SetDefault("filtering.refresh.interval", d.Filtering.Refresh.Interval)
	v.SetDefault("filtering.whitelist", d.Filtering.Whitelist)
	v.SetDefault("filtering.custom_filters", d.Filtering.CustomFilters)

	v.SetDefault("blocker.enabled", d.Blocker.Enabled)
	v.SetDefault("blocker.log_requests", d.Blocker.LogRequests)
	v.SetDefault("blocker.log_capacity", d.Blocker.LogCapacity)
	v.SetDefault("blocker.persist_window", d.Blocker.PersistWindow)

	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.host", d.API.Host)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("api.api_key", d.API.APIKey)
	v.SetDefault("api.reuse_port", d.API.ReusePort)
	v.SetDefault("api.rate_limit.qps", d.API.RateLimit.QPS)
	v.SetDefault("api.rate_limit.burst", d.API.RateLimit.Burst)
	v.SetDefault("api.rate_limit.client_qps", d.API.RateLimit.ClientQPS)
	v.SetDefault("api.rate_limit.client_burst", d.API.RateLimit.ClientBurst)
	v.SetDefault("api.rate_limit.max_clients", d.API.RateLimit.MaxClients)

	v.SetDefault("browser.enabled", d.Browser.Enabled)
	v.SetDefault("browser.remote_url", d.Browser.RemoteURL)
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.stealth", d.Browser.Stealth)
	v.SetDefault("browser.start_urls", d.Browser.StartURLs)
}

// Validate validates and normalizes the configuration.
func (cfg *Config) Validate() error {
	// Normalize logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	switch cfg.Logging.Level {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		return fmt.Errorf("logging.level must be DEBUG, INFO, WARN or ERROR, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if err := cfg.Filtering.Validate(); err != nil {
		return fmt.Errorf("filtering: %w", err)
	}

	// Normalize blocker
	if cfg.Blocker.LogCapacity < 0 {
		return errors.New("blocker.log_capacity must be >= 0")
	}
	if cfg.Blocker.LogCapacity == 0 {
		cfg.Blocker.LogCapacity = 1000
	}
	if cfg.Blocker.PersistWindow < 0 {
		return errors.New("blocker.persist_window must be >= 0")
	}

	// Normalize management API
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}
	rl := cfg.API.RateLimit
	if rl.QPS < 0 || rl.Burst < 0 || rl.ClientQPS < 0 || rl.ClientBurst < 0 || rl.MaxClients < 0 {
		return errors.New("api.rate_limit values must be >= 0")
	}
	if cfg.API.RateLimit.MaxClients == 0 {
		cfg.API.RateLimit.MaxClients = 1024
	}

	if cfg.Browser.RemoteURL != "" && !strings.HasPrefix(cfg.Browser.RemoteURL, "ws://") &&
		!strings.HasPrefix(cfg.Browser.RemoteURL, "wss://") {
		return fmt.Errorf("browser.remote_url must be a ws:// or wss:// url, got %q", cfg.Browser.RemoteURL)
	}

	return nil
}
