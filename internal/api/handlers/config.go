package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/hydrablock/internal/api/models"
)

// GetConfig godoc
// @Summary Get current configuration
// @Description Returns the current configuration (api key redacted)
// @Tags config
// @Produce json
// @Success 200 {object} models.ConfigResponse
// @Failure 500 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /config [get]
func (h *Handler) GetConfig(c *gin.Context) {
	if h.cfg == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "config unavailable"})
		return
	}

	resp := models.ConfigResponse{
		Logging:   h.cfg.Logging,
		Filtering: h.cfg.Filtering,
		Blocker:   h.cfg.Blocker,
		Storage:   h.cfg.Storage,
		API: models.APIConfigResponse{
			Enabled: h.cfg.API.Enabled,
			Host:    h.cfg.API.Host,
			Port:    h.cfg.API.Port,
			AuthSet: h.cfg.API.APIKey != "",
		},
		Browser: h.cfg.Browser,
	}

	c.JSON(http.StatusOK, resp)
}
