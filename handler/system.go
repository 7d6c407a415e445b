package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/cache"
	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/store"

	"github.com/rs/zerolog/log"
)

type SystemHandler struct {
	store  *store.Store
	cache  *cache.Cache
	config config.Config
}

func NewSystemHandler(s *store.Store, c *cache.Cache, cfg config.Config) *SystemHandler {
	return &SystemHandler{store: s, cache: c, config: cfg}
}

// HealthCheck handles GET /health
func (h *SystemHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"storage":   h.config.Storage.Driver,
	}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		health["status"] = "degraded"
		health["error"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	if h.config.Cache.Enabled && h.cache != nil {
		health["cache"] = h.cache.GetMetricsSnapshot()
	} else {
		health["cache"] = map[string]interface{}{"enabled": false}
	}

	SendJSONSuccess(w, status, health)
}

// SystemStatus handles GET /system/status
func (h *SystemHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	SendJSONSuccess(w, http.StatusOK, map[string]string{
		"status": "LIVE",
		"body":   "System is operational",
	})
}

// CacheMetrics handles GET /cache/metrics
func (h *SystemHandler) CacheMetrics(w http.ResponseWriter, r *http.Request) {
	if !h.config.Cache.Enabled || h.cache == nil {
		SendJSONSuccess(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}
	SendJSONSuccess(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"metrics": h.cache.GetMetricsSnapshot(),
	})
}
