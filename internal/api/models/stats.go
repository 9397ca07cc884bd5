package models

import (
	"time"

	"github.com/jroosing/hydrablock/internal/stats"
)

// ServerStatsResponse contains runtime and blocking statistics.
type ServerStatsResponse struct {
	Uptime        string                 `json:"uptime"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	StartTime     time.Time              `json:"start_time"`
	GoRoutines    int                    `json:"goroutines"`
	MemoryAllocMB float64                `json:"memory_alloc_mb"`
	NumCPU        int                    `json:"num_cpu"`
	Process       *ProcessStatsResponse  `json:"process,omitempty"`
	Blocking      *BlockingStatsResponse `json:"blocking,omitempty"`
}

// ProcessStatsResponse describes the hydrablock process as the OS sees it.
type ProcessStatsResponse struct {
	PID        int32   `json:"pid"`
	RSSMB      float64 `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
}

// BlockingStatsResponse contains the blocking counters and rule counts.
type BlockingStatsResponse struct {
	Enabled bool `json:"enabled"`
	stats.Counters
	LogSize       int `json:"logSize"`
	StaticRules   int `json:"static_rules"`
	AllowRules    int `json:"allow_rules"`
	CustomRules   int `json:"custom_rules"`
	DynamicRules  int `json:"dynamic_rules"`
	CosmeticRules int `json:"cosmetic_rules"`
	WhitelistSize int `json:"whitelist_size"`
}

// LogResponse returns request log entries, newest first.
type LogResponse struct {
	Entries []stats.Entry `json:"entries"`
	Count   int           `json:"count"`
}
