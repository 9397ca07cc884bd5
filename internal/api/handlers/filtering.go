package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/hydrablock/internal/api/models"
	"github.com/jroosing/hydrablock/internal/interceptor"
)

// GetWhitelist godoc
// @Summary Get whitelist domains
// @Description Returns all domains in the whitelist
// @Tags filtering
// @Produce json
// @Success 200 {object} models.DomainListResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /filtering/whitelist [get]
func (h *Handler) GetWhitelist(c *gin.Context) {
	b := h.requireBlocker(c)
	if b == nil {
		return
	}
	domains := b.Whitelist()
	c.JSON(http.StatusOK, models.DomainListResponse{Domains: domains, Count: len(domains)})
}

// AddWhitelist godoc
// @Summary Add domains to whitelist
// @Description Adds one or more domains to the whitelist. Requests to a
// @Description whitelisted domain or any of its subdomains are never blocked.
// @Tags filtering
// @Accept json
// @Produce json
// @Param domains body models.DomainRequest true "Domains to add"
// @Success 200 {object} models.ListChangeResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /filtering/whitelist [post]
func (h *Handler) AddWhitelist(c *gin.Context) {
	b := h.requireBlocker(c)
	if b == nil {
		return
	}

	var req models.DomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	changed := 0
	for _, domain := range req.Domains {
		added, err := b.AddToWhitelist(domain)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		if added {
			changed++
		}
	}

	if h.logger != nil {
		h.logger.Info("added domains to whitelist", "count", changed)
	}

	c.JSON(http.StatusOK, models.ListChangeResponse{Status: "ok", Changed: changed})
}

// RemoveWhitelist godoc
// @Summary Remove domains from whitelist
// @Description Removes one or more domains from the whitelist
// @Tags filtering
// @Accept json
// @Produce json
// @Param domains body models.DomainRequest true "Domains to remove"
// @Success 200 {object} models.ListChangeResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /filtering/whitelist [delete]
func (h *Handler) RemoveWhitelist(c *gin.Context) {
	b := h.requireBlocker(c)
	if b == nil {
		return
	}

	var req models.DomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	changed := 0
	for _, domain := range req.Domains {
		if b.RemoveFromWhitelist(domain) {
			changed++
		}
	}
	c.JSON(http.StatusOK, models.ListChangeResponse{Status: "ok", Changed: changed})
}

// GetCustomFilters godoc
// @Summary Get custom filters
// @Description Returns the user's custom filter patterns
// @Tags filtering
// @Produce json
// @Success 200 {object} models.FilterListResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /filtering/custom [get]
func (h *Handler) GetCustomFilters(c *gin.Context) {
	b := h.requireBlocker(c)
	if b == nil {
		return
	}
	filters := b.CustomFilters()
	c.JSON(http.StatusOK, models.FilterListResponse{Filters: filters, Count: len(filters)})
}

// AddCustomFilters godoc
// @Summary Add custom filters
// @Description Adds one or more custom filter patterns
// @Tags filtering
// @Accept json
// @Produce json
// @Param filters body models.FilterRequest true "Patterns to add"
// @Success 200 {object} models.ListChangeResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /filtering/custom [post]
func (h *Handler) AddCustomFilters(c *gin.Context) {
	b := h.requireBlocker(c)
	if b == nil {
		return
	}

	var req models.FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	changed := 0
	for _, pattern := range req.Filters {
		added, err := b.AddCustomFilter(pattern)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		if added {
			changed++
		}
	}

	if h.logger != nil {
		h.logger.Info("added custom filters", "count", changed)
	}

	c.JSON(http.StatusOK, models.ListChangeResponse{Status: "ok", Changed: changed})
}

// RemoveCustomFilters godoc
// @Summary Remove custom filters
// @Description Removes one or more custom filter patterns
// @Tags filtering
// @Accept json
// @Produce json
// @Param filters body models.FilterRequest true "Patterns to remove"
// @Success 200 {object} models.ListChangeResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /filtering/custom [delete]
func (h *Handler) RemoveCustomFilters(c *gin.Context) {
	b := h.requireBlocker(c)
	if b == nil {
		return
	}

	var req models.FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	changed := 0
	for _, pattern := range req.Filters {
		if b.RemoveCustomFilter(pattern) {
			changed++
		}
	}
	c.JSON(http.StatusOK, models.ListChangeResponse{Status: "ok", Changed: changed})
}

// SetFilteringEnabled godoc
// @Summary Enable or disable filtering
// @Description Turns request blocking on or off
// @Tags filtering
// @Accept json
// @Produce json
// @Param enabled body models.FilteringEnabledRequest true "Enable state"
// @Success 200 {object} models.StatusResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /filtering/enabled [put]
func (h *Handler) SetFilteringEnabled(c *gin.Context) {
	b := h.requireBlocker(c)
	if b == nil {
		return
	}

	var req models.FilteringEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	b.SetEnabled(req.Enabled)

	if h.logger != nil {
		h.logger.Info("filtering enabled state changed", "enabled", req.Enabled)
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// GetCosmetic godoc
// @Summary Get cosmetic filters
// @Description Returns element-hiding selectors keyed by domain ("*" is generic).
// @Description With ?domain= only the selectors applying to that domain are returned.
// @Tags filtering
// @Produce json
// @Param domain query string false "Page domain"
// @Success 200 {object} models.CosmeticResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /filtering/cosmetic [get]
func (h *Handler) GetCosmetic(c *gin.Context) {
	b := h.requireBlocker(c)
	if b == nil {
		return
	}
	c.JSON(http.StatusOK, models.CosmeticResponse{Cosmetic: b.CosmeticFilters(c.Query("domain"))})
}

// CheckURL godoc
// @Summary Check a URL
// @Description Evaluates a URL against the current rules without counting or logging it
// @Tags filtering
// @Accept json
// @Produce json
// @Param request body models.CheckRequest true "URL and resource type"
// @Success 200 {object} messaging.CheckResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /filtering/check [post]
func (h *Handler) CheckURL(c *gin.Context) {
	b := h.requireBlocker(c)
	if b == nil {
		return
	}

	var req models.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	rt := interceptor.NormalizeType(req.Type)
	if rt == "" {
		rt = interceptor.TypeOther
	}
	c.JSON(http.StatusOK, b.CheckURL(req.URL, rt))
}
