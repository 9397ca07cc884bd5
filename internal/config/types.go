package config

import (
	"time"

	"github.com/jroosing/hydrablock/internal/filtering"
)

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `mapstructure:"level" json:"level"`
	Structured       bool              `mapstructure:"structured" json:"structured"`
	StructuredFormat string            `mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `mapstructure:"include_pid" json:"include_pid"`
	ExtraFields      map[string]string `mapstructure:"extra_fields" json:"extra_fields,omitempty"`
}

// BlockerConfig contains the coordinator's initial state and persistence
// tuning. Persisted settings win over Enabled and LogRequests once written.
type BlockerConfig struct {
	Enabled       bool          `mapstructure:"enabled" json:"enabled"`
	LogRequests   bool          `mapstructure:"log_requests" json:"log_requests"`
	LogCapacity   int           `mapstructure:"log_capacity" json:"log_capacity"`
	PersistWindow time.Duration `mapstructure:"persist_window" json:"persist_window"`
}

// StorageConfig locates the settings database.
type StorageConfig struct {
	// Path is the SQLite file. Empty keeps all state in memory.
	Path string `mapstructure:"path" json:"path"`
}

// APIConfig contains management API settings.
//
// Note: APIKey is treated as a secret and is never returned by API endpoints.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Host    string `mapstructure:"host" json:"host"`
	Port    int    `mapstructure:"port" json:"port"`
	APIKey  string `mapstructure:"api_key" json:"api_key,omitempty"`

	// ReusePort sets SO_REUSEPORT on the listener for overlapping restarts.
	ReusePort bool `mapstructure:"reuse_port" json:"reuse_port"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig bounds management API traffic. A zero qps or burst
// disables that level.
type RateLimitConfig struct {
	QPS         float64 `mapstructure:"qps" json:"qps"`
	Burst       int     `mapstructure:"burst" json:"burst"`
	ClientQPS   float64 `mapstructure:"client_qps" json:"client_qps"`
	ClientBurst int     `mapstructure:"client_burst" json:"client_burst"`
	MaxClients  int     `mapstructure:"max_clients" json:"max_clients"`
}

// BrowserConfig controls the live Chrome host.
type BrowserConfig struct {
	Enabled   bool     `mapstructure:"enabled" json:"enabled"`
	RemoteURL string   `mapstructure:"remote_url" json:"remote_url,omitempty"`
	Headless  bool     `mapstructure:"headless" json:"headless"`
	Stealth   bool     `mapstructure:"stealth" json:"stealth"`
	StartURLs []string `mapstructure:"start_urls" json:"start_urls,omitempty"`
}

// Config is the root configuration structure.
type Config struct {
	Logging   LoggingConfig    `mapstructure:"logging" json:"logging"`
	Filtering filtering.Config `mapstructure:"filtering" json:"filtering"`
	Blocker   BlockerConfig    `mapstructure:"blocker" json:"blocker"`
	Storage   StorageConfig    `mapstructure:"storage" json:"storage"`
	API       APIConfig        `mapstructure:"api" json:"api"`
	Browser   BrowserConfig    `mapstructure:"browser" json:"browser"`
}
