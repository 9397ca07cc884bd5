package models

import (
	"github.com/jroosing/hydrablock/internal/config"
	"github.com/jroosing/hydrablock/internal/filtering"
)

// APIConfigResponse is a redacted version of APIConfig (no api_key exposed).
type APIConfigResponse struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	AuthSet bool   `json:"auth_set"`
}

// ConfigResponse is the API response for GET /config.
type ConfigResponse struct {
	Logging   config.LoggingConfig `json:"logging"`
	Filtering filtering.Config     `json:"filtering"`
	Blocker   config.BlockerConfig `json:"blocker"`
	Storage   config.StorageConfig `json:"storage"`
	API       APIConfigResponse    `json:"api"`
	Browser   config.BrowserConfig `json:"browser"`
}
