package api

import (
	"github.com/gin-gonic/gin"

	"github.com/scrapemaster/sentinel/internal/config"
	"github.com/scrapemaster/sentinel/internal/handlers"
	"github.com/scrapemaster/sentinel/internal/middleware"
	"github.com/scrapemaster/sentinel/pkg/engine"
	"github.com/scrapemaster/sentinel/pkg/logger"
)

// SetupRoutes builds the router: health probes and the operator API are
// served directly; everything the platform registers via protected goes
// through the threat analysis middleware first.
func SetupRoutes(eng *engine.Engine, cfg *config.Config, log *logger.StructuredLogger, protected func(*gin.RouterGroup)) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.Logging(log.Logger))
	router.Use(middleware.CORS(cfg.Security.CORSOrigins))
	router.Use(middleware.Security())
	router.Use(middleware.RequestSizeLimit(10 << 20))

	healthHandler := handlers.NewHealthHandler(eng, log, cfg.Environment)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	api := router.Group("/api/v1")
	api.GET("/version", handlers.NewVersionHandler().GetVersion)

	auth := middleware.NewAuthMiddleware(&middleware.AuthConfig{
		JWTSecret: cfg.Security.JWTSecret,
	})

	security := api.Group("/security", auth.JWTAuth())
	{
		securityHandler := handlers.NewSecurityHandler(eng, log)
		security.GET("/dashboard", securityHandler.GetDashboard)
		security.GET("/events", securityHandler.ListEvents)
		security.GET("/blocked", securityHandler.ListBlocked)
		security.DELETE("/blocked/:ip", middleware.AdminOnly(), securityHandler.Unblock)
	}

	if protected != nil {
		analyzed := api.Group("", middleware.ThreatAnalysis(eng, middleware.ThreatConfig{
			JWTSecret:           cfg.Security.JWTSecret,
			MaxBodyInspectBytes: cfg.Security.MaxBodyInspectBytes,
		}))
		protected(analyzed)
	}

	return router
}
