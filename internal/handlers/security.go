package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/scrapemaster/sentinel/internal/errors"
	"github.com/scrapemaster/sentinel/pkg/blocklist"
	"github.com/scrapemaster/sentinel/pkg/engine"
	"github.com/scrapemaster/sentinel/pkg/logger"
)

// SecurityHandler serves the operator API: dashboard aggregates, recent
// events, the active blocklist and manual unblocking.
type SecurityHandler struct {
	engine *engine.Engine
	logger *logger.StructuredLogger
}

func NewSecurityHandler(eng *engine.Engine, log *logger.StructuredLogger) *SecurityHandler {
	return &SecurityHandler{
		engine: eng,
		logger: log,
	}
}

func (h *SecurityHandler) GetDashboard(c *gin.Context) {
	snapshot, err := h.engine.DashboardSnapshot(c.Request.Context())
	if err != nil {
		// Event counts came from memory; only the blocklist lookup can
		// fail. Serve the partial snapshot with a degraded marker.
		h.logger.WithError(err).Warn("Dashboard blocklist lookup degraded")
		c.JSON(http.StatusOK, gin.H{
			"snapshot": snapshot,
			"degraded": true,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snapshot})
}

func (h *SecurityHandler) ListEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			appErr := apperrors.NewInvalidInputError("Invalid limit parameter", raw)
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}
		limit = parsed
	}

	lookback := 24 * time.Hour
	if raw := c.Query("lookback"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			appErr := apperrors.NewInvalidInputError("Invalid lookback duration", raw)
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}
		lookback = parsed
	}

	events := h.engine.RecentEvents(lookback, limit)
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

func (h *SecurityHandler) ListBlocked(c *gin.Context) {
	entries, err := h.engine.BlockedEntries(c.Request.Context())
	if err != nil {
		appErr := apperrors.NewStoreError("blocklist", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	if entries == nil {
		entries = []blocklist.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"blocked": entries,
		"count":   len(entries),
	})
}

// Unblock removes a block entry by IP. Admin-gated at the route level.
func (h *SecurityHandler) Unblock(c *gin.Context) {
	ip := c.Param("ip")
	if ip == "" {
		appErr := apperrors.NewInvalidInputError("IP address is required", "")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	operator := "unknown"
	if userID, ok := c.Get("user_id"); ok {
		if id, ok := userID.(string); ok {
			operator = id
		}
	}

	err := h.engine.Unblock(c.Request.Context(), blocklist.IPKey(ip))
	h.logger.Audit("unblock", operator, ip, err == nil, map[string]interface{}{
		"key": blocklist.IPKey(ip),
	})
	if err != nil {
		appErr := apperrors.NewStoreError("blocklist", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "unblocked",
		"ip":     ip,
	})
}
