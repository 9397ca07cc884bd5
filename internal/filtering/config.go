package filtering

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrEmptySource is returned when a source names no text, path or URL.
var ErrEmptySource = errors.New("source has no text, path or url")

// Config represents the filter list configuration.
type Config struct {
	// Sources are the bundled and remote filter lists.
	Sources []SourceConfig `mapstructure:"sources" json:"sources"`

	// Whitelist seeds the whitelist on first start.
	Whitelist []string `mapstructure:"whitelist" json:"whitelist,omitempty"`

	// CustomFilters seeds the custom filter subset on first start.
	CustomFilters []string `mapstructure:"custom_filters" json:"custom_filters,omitempty"`

	// CacheSize is the number of memoised URL verdicts (0 disables).
	CacheSize int64 `mapstructure:"cache_size" json:"cache_size"`

	// Watch reloads the lists when files in ListsDir change.
	Watch bool `mapstructure:"watch" json:"watch"`

	// ListsDir holds local filter lists. Every *.txt file in it is loaded.
	ListsDir string `mapstructure:"lists_dir" json:"lists_dir"`

	// Refresh configures periodic re-fetching of remote lists.
	Refresh RefreshConfig `mapstructure:"refresh" json:"refresh"`
}

// SourceConfig represents one filter list source.
type SourceConfig struct {
	// Name is a friendly name for the source.
	Name string `mapstructure:"name" json:"name"`

	// URL is the URL to fetch the list from.
	URL string `mapstructure:"url" json:"url,omitempty"`

	// Path is a local file to read the list from.
	Path string `mapstructure:"path" json:"path,omitempty"`

	// Format specifies the list format (auto, domains, hosts, adblock).
	Format string `mapstructure:"format" json:"format"`
}

// RefreshConfig configures automatic list updates.
type RefreshConfig struct {
	// Enabled determines if automatic refresh is active.
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// Interval is how often to refresh lists.
	Interval time.Duration `mapstructure:"interval" json:"interval"`
}

// DefaultConfig returns the default filtering configuration.
func DefaultConfig() Config {
	return Config{
		CacheSize: 10000,
		ListsDir:  "lists",
		Refresh: RefreshConfig{
			Enabled:  false,
			Interval: 24 * time.Hour,
		},
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be >= 0, got %d", c.CacheSize)
	}
	if c.Refresh.Enabled && c.Refresh.Interval < time.Minute {
		return fmt.Errorf("refresh.interval must be at least 1m, got %s", c.Refresh.Interval)
	}
	if c.Watch && c.ListsDir == "" {
		return errors.New("watch requires lists_dir")
	}

	for i, source := range c.Sources {
		if err := source.Validate(); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
	}

	return nil
}

// Validate validates a source configuration.
func (s *SourceConfig) Validate() error {
	if s.URL == "" && s.Path == "" {
		return errors.New("url or path is required")
	}

	switch strings.ToLower(s.Format) {
	case "", "auto", "domains", "hosts", "adblock", "abp", "ublock":
		// valid
	default:
		return fmt.Errorf("invalid format: %q (must be auto, domains, hosts, or adblock)", s.Format)
	}

	return nil
}

// ToSource converts the configuration to a loadable Source.
func (s *SourceConfig) ToSource() Source {
	return Source{
		Name:   s.Name,
		URL:    s.URL,
		Path:   s.Path,
		Format: ParseFormat(s.Format),
	}
}

// ToSources converts every configured source.
func (c *Config) ToSources() []Source {
	out := make([]Source, 0, len(c.Sources))
	for i := range c.Sources {
		out = append(out, c.Sources[i].ToSource())
	}
	return out
}

// ToStoreConfig converts the Config to a StoreConfig.
func (c *Config) ToStoreConfig(logger *slog.Logger) StoreConfig {
	return StoreConfig{
		Logger:    logger,
		CacheSize: c.CacheSize,
	}
}
