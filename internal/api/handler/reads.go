package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jariyo/jariyo-data/internal/api/respond"
	"github.com/jariyo/jariyo-data/internal/cache"
	"github.com/jariyo/jariyo-data/internal/snapshot"
)

// GetFacilityChanges returns a facility's recent change records.
// Cached with ETag support; clients poll this while watching a facility.
// @Summary Recent change records for a facility
// @Tags facilities
// @Produce json
// @Param facilityID path string true "Facility ID"
// @Param hours query int false "Lookback in hours (default 24)"
// @Success 200 {array} snapshot.ChangeRecord
// @Router /facilities/{facilityID}/changes [get]
func (h *Handler) GetFacilityChanges(w http.ResponseWriter, r *http.Request) {
	facilityID := chi.URLParam(r, "facilityID")
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_HOURS", "hours must be a positive integer")
			return
		}
		hours = n
	}

	cacheKey := fmt.Sprintf("changes:%s:%d", facilityID, hours)
	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, cache.TTLChanges, true)
		return
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	records, err := h.snapshots.ChangesForFacility(r.Context(), facilityID, since)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError,
			"QUERY_FAILED", "Could not load change records", err.Error())
		return
	}
	if records == nil {
		records = []snapshot.ChangeRecord{} // marshal as [] rather than null
	}

	data, err := json.Marshal(records)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_FAILED", "Could not encode response")
		return
	}
	etag := h.cache.Set(cacheKey, data, cache.TTLChanges)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, cache.TTLChanges, false)
}

// GetUserAlerts returns a user's most recent alerts.
// @Summary Recent alerts for a user
// @Tags alerts
// @Produce json
// @Param userID path string true "User ID"
// @Param limit query int false "Maximum rows (default 50)"
// @Success 200 {array} detect.Alert
// @Router /users/{userID}/alerts [get]
func (h *Handler) GetUserAlerts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	alerts, err := h.alerts.AlertsForUser(r.Context(), userID, limit)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError,
			"QUERY_FAILED", "Could not load alerts", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}
