package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/jroosing/hydrablock/internal/api/docs" // swagger docs
	"github.com/jroosing/hydrablock/internal/api/handlers"
	"github.com/jroosing/hydrablock/internal/api/middleware"
	"github.com/jroosing/hydrablock/internal/config"
	"github.com/jroosing/hydrablock/internal/metrics"
)

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config, m *metrics.Metrics) {
	// Swagger UI at /swagger/*
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	var auth []gin.HandlerFunc
	if cfg != nil && cfg.API.APIKey != "" {
		auth = append(auth, middleware.RequireAPIKey(cfg.API.APIKey))
	}

	if m != nil {
		metricsHandler := promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{Registry: m.Registry()})
		r.GET("/metrics", append(auth, gin.WrapH(metricsHandler))...)
	}

	if cfg != nil {
		MountLists(r, cfg.Filtering.ListsDir, auth...)
	}

	api := r.Group("/api/v1")
	api.Use(auth...)
	if cfg != nil {
		rl := cfg.API.RateLimit
		api.Use(middleware.RateLimit(middleware.NewRateLimiter(middleware.RateLimitSettings{
			QPS:         rl.QPS,
			Burst:       rl.Burst,
			ClientQPS:   rl.ClientQPS,
			ClientBurst: rl.ClientBurst,
			MaxClients:  rl.MaxClients,
		})))
	}

	api.POST("/messages", h.PostMessage)

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
	api.DELETE("/stats", h.ResetStats)
	api.GET("/logs", h.Logs)

	api.GET("/config", h.GetConfig)

	api.PUT("/filtering/enabled", h.SetFilteringEnabled)

	api.GET("/filtering/whitelist", h.GetWhitelist)
	api.POST("/filtering/whitelist", h.AddWhitelist)
	api.DELETE("/filtering/whitelist", h.RemoveWhitelist)

	api.GET("/filtering/custom", h.GetCustomFilters)
	api.POST("/filtering/custom", h.AddCustomFilters)
	api.DELETE("/filtering/custom", h.RemoveCustomFilters)

	api.GET("/filtering/cosmetic", h.GetCosmetic)
	api.POST("/filtering/check", h.CheckURL)
}
