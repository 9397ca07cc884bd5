// Package handlers implements the REST API endpoint handlers for hydrablock.
//
// REST API Endpoints:
//
// Messages:
//   - POST /api/v1/messages - Deliver one {action, ...payload} message to the coordinator
//
// System:
//   - GET /api/v1/health - Health check status
//   - GET /api/v1/stats - Process, runtime and blocking statistics
//   - DELETE /api/v1/stats - Reset the blocking counters
//   - GET /api/v1/logs - Recent blocked requests (?limit=n)
//   - GET /api/v1/config - Current configuration (api key redacted)
//
// Filtering:
//   - PUT /api/v1/filtering/enabled - Enable/disable request blocking
//   - GET|POST|DELETE /api/v1/filtering/whitelist - Whitelisted domains
//   - GET|POST|DELETE /api/v1/filtering/custom - Custom filter patterns
//   - GET /api/v1/filtering/cosmetic - Cosmetic selectors (?domain=)
//   - POST /api/v1/filtering/check - Dry-run verdict for a URL
//
// Authentication:
//
// When api.api_key is configured every /api/v1 endpoint requires it in the
// X-API-Key header (or as a bearer token).
//
// @title hydrablock Management API
// @version 1.0
// @description REST API for the hydrablock content-filtering agent.
//
// @contact.name hydrablock
// @contact.url https://github.com/jroosing/hydrablock
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/hydrablock/internal/api/models"
	"github.com/jroosing/hydrablock/internal/blocker"
	"github.com/jroosing/hydrablock/internal/config"
	"github.com/jroosing/hydrablock/internal/messaging"
)

// Handler contains dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time

	// Runtime components (set after the coordinator starts)
	blocker    *blocker.Blocker
	dispatcher *messaging.Dispatcher
	mu         sync.RWMutex
}

// New creates a new Handler with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
	}
}

// SetBlocker sets the coordinator for runtime access.
func (h *Handler) SetBlocker(b *blocker.Blocker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocker = b
}

// GetBlocker retrieves the coordinator with safe read access.
func (h *Handler) GetBlocker() *blocker.Blocker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.blocker
}

// SetDispatcher sets the message dispatcher behind POST /messages.
func (h *Handler) SetDispatcher(d *messaging.Dispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatcher = d
}

// GetDispatcher retrieves the message dispatcher.
func (h *Handler) GetDispatcher() *messaging.Dispatcher {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dispatcher
}

// requireBlocker returns the coordinator or writes a 503.
func (h *Handler) requireBlocker(c *gin.Context) *blocker.Blocker {
	b := h.GetBlocker()
	if b == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "blocker not running"})
	}
	return b
}
