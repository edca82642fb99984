// Package handler provides HTTP handlers for the detection service:
// ingest-and-diff, detection triggers, and read endpoints for change records
// and alerts.
package handler

import (
	"net/http"
	"time"

	"github.com/jariyo/jariyo-data/internal/api/respond"
	"github.com/jariyo/jariyo-data/internal/cache"
	"github.com/jariyo/jariyo-data/internal/config"
	"github.com/jariyo/jariyo-data/internal/db"
	"github.com/jariyo/jariyo-data/internal/detect"
	"github.com/jariyo/jariyo-data/internal/snapshot"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	pool      *db.Pool
	cache     *cache.Cache
	cfg       *config.Config
	differ    *snapshot.Differ
	detector  *detect.Detector
	snapshots *snapshot.PGStore
	alerts    *detect.PGStore
}

// Deps bundles the collaborators the handlers need.
type Deps struct {
	Pool      *db.Pool
	Cache     *cache.Cache
	Config    *config.Config
	Differ    *snapshot.Differ
	Detector  *detect.Detector
	Snapshots *snapshot.PGStore
	Alerts    *detect.PGStore
}

// New creates a Handler with shared dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		pool:      deps.Pool,
		cache:     deps.Cache,
		cfg:       deps.Config,
		differ:    deps.Differ,
		detector:  deps.Detector,
		snapshots: deps.Snapshots,
		alerts:    deps.Alerts,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Jariyo Data API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.HealthCheck(r.Context()); err != nil {
		respond.WriteErrorDetail(w, http.StatusServiceUnavailable,
			"DB_UNAVAILABLE", "Database is unreachable", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

// HealthCheckCache reports cache statistics.
// @Summary Cache health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.cache.Stats())
}
