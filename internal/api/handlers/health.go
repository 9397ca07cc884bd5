package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/jroosing/hydrablock/internal/api/models"
)

// defaultLogLimit bounds GET /logs when no limit is given.
const defaultLogLimit = 100

// Health godoc
// @Summary Health check
// @Description Returns server health status
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Server statistics
// @Description Returns process, runtime and blocking statistics
// @Tags system
// @Produce json
// @Success 200 {object} models.ServerStatsResponse
// @Security ApiKeyAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.startTime)

	resp := models.ServerStatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		GoRoutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(m.Alloc) / 1024 / 1024,
		NumCPU:        runtime.NumCPU(),
		Process:       h.processStats(c.Request.Context()),
	}

	if b := h.GetBlocker(); b != nil {
		view := b.Stats()
		rules := b.Store().Stats()
		resp.Blocking = &models.BlockingStatsResponse{
			Enabled:       b.Enabled(),
			Counters:      view.Counters,
			LogSize:       view.LogSize,
			StaticRules:   rules.StaticRules,
			AllowRules:    rules.AllowRules,
			CustomRules:   rules.CustomRules,
			DynamicRules:  len(b.DynamicRules()),
			CosmeticRules: rules.CosmeticRules,
			WhitelistSize: rules.WhitelistSize,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// processStats samples the current process. Fields the platform cannot
// report stay zero; nil means the process could not be inspected at all.
func (h *Handler) processStats(ctx context.Context) *models.ProcessStatsResponse {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		if h.logger != nil {
			h.logger.Debug("process stats unavailable", "err", err)
		}
		return nil
	}
	out := &models.ProcessStatsResponse{PID: p.Pid}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		out.RSSMB = float64(mem.RSS) / 1024 / 1024
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		out.CPUPercent = cpu
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		out.Threads = n
	}
	return out
}

// ResetStats godoc
// @Summary Reset blocking counters
// @Description Zeroes every blocking counter
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /stats [delete]
func (h *Handler) ResetStats(c *gin.Context) {
	b := h.requireBlocker(c)
	if b == nil {
		return
	}
	b.ResetStats()
	if h.logger != nil {
		h.logger.Info("blocking counters reset")
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Logs godoc
// @Summary Recent blocked requests
// @Description Returns the request log, newest first
// @Tags system
// @Produce json
// @Param limit query int false "Maximum entries" default(100)
// @Success 200 {object} models.LogResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /logs [get]
func (h *Handler) Logs(c *gin.Context) {
	b := h.requireBlocker(c)
	if b == nil {
		return
	}
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	entries := b.RequestLog(limit)
	c.JSON(http.StatusOK, models.LogResponse{Entries: entries, Count: len(entries)})
}
