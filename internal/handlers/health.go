package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scrapemaster/sentinel/internal/version"
	"github.com/scrapemaster/sentinel/pkg/engine"
	"github.com/scrapemaster/sentinel/pkg/logger"
)

type HealthHandler struct {
	engine      *engine.Engine
	logger      *logger.StructuredLogger
	environment string
}

var startTime = time.Now()

func NewHealthHandler(eng *engine.Engine, log *logger.StructuredLogger, environment string) *HealthHandler {
	return &HealthHandler{
		engine:      eng,
		logger:      log,
		environment: environment,
	}
}

type HealthCheck struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Timestamp   time.Time              `json:"timestamp"`
	Uptime      string                 `json:"uptime"`
	Checks      map[string]interface{} `json:"checks"`
	Environment string                 `json:"environment"`
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]interface{})
	overallStatus := "healthy"

	if storeCheck := h.checkStores(ctx); storeCheck != nil {
		checks["stores"] = storeCheck
		if status, ok := storeCheck["status"].(string); ok && status != "healthy" {
			// Analysis fails closed when stores are down; the service
			// keeps serving but should page.
			overallStatus = "degraded"
		}
	}

	healthCheck := HealthCheck{
		Status:      overallStatus,
		Version:     version.Version,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(startTime).String(),
		Checks:      checks,
		Environment: h.environment,
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, healthCheck)
}

func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.engine.Healthy(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"timestamp": time.Now().UTC(),
			"error":     err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
	})
}

func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).String(),
		"version":   version.Version,
	})
}

func (h *HealthHandler) checkStores(ctx context.Context) map[string]interface{} {
	start := time.Now()
	result := make(map[string]interface{})

	if err := h.engine.Healthy(ctx); err != nil {
		result["status"] = "unhealthy"
		result["error"] = err.Error()
		result["response_time_ms"] = time.Since(start).Milliseconds()
		return result
	}

	result["status"] = "healthy"
	result["response_time_ms"] = time.Since(start).Milliseconds()
	return result
}
