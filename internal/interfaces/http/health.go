package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/skillswap/swapd/internal/cache"
	"github.com/skillswap/swapd/internal/config"
	httpContracts "github.com/skillswap/swapd/internal/http"
)

// HealthHandler reports liveness plus the mode each subsystem runs in, so
// a glance tells whether a deployment picked up its backing services or
// fell back to the in-memory substitutes.
type HealthHandler struct {
	cfg   config.Config
	cache cache.Cache
}

// NewHealthHandler creates the health endpoint.
func NewHealthHandler(cfg config.Config, c cache.Cache) *HealthHandler {
	return &HealthHandler{cfg: cfg, cache: c}
}

// ServeHTTP implements the health check endpoint.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	services := map[string]string{
		"store":      "memory",
		"cache":      "memory",
		"search":     "memory",
		"embeddings": "hashing",
		"email":      "log-only",
	}
	if h.cfg.Database.Enabled() {
		services["store"] = "postgres"
	}
	if h.cfg.Search.Enabled() {
		services["search"] = "configured"
	}
	if h.cfg.Embeddings.Enabled() {
		services["embeddings"] = "configured"
	}
	if h.cfg.Email.Active() {
		services["email"] = "configured"
	}
	if h.cfg.Redis.Enabled() {
		services["cache"] = "redis"
		if !h.probeCache() {
			services["cache"] = "redis (unreachable)"
			status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(httpContracts.HealthResponse{
		Status:   status,
		Services: services,
	})
}

// probeCache round-trips one short-lived key through the cache.
func (h *HealthHandler) probeCache() bool {
	if h.cache == nil {
		return false
	}
	key := "healthz:probe"
	h.cache.Set(key, []byte("ok"), 5*time.Second)
	_, ok := h.cache.Get(key)
	return ok
}
