package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jariyo/jariyo-data/internal/api/respond"
)

// RunDetection triggers a global detection sweep.
// @Summary Run a global turnover detection sweep
// @Tags detection
// @Produce json
// @Success 200 {object} detect.Summary
// @Failure 500 {object} respond.ErrorResponse
// @Router /detect/run [post]
func (h *Handler) RunDetection(w http.ResponseWriter, r *http.Request) {
	sum, err := h.detector.DetectAll(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError,
			"DETECTION_FAILED", "Detection sweep failed", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, sum)
}

// RunFacilityDetection triggers detection for a single facility.
// @Summary Run turnover detection for one facility
// @Tags detection
// @Produce json
// @Param facilityID path string true "Facility ID"
// @Success 200 {object} detect.Summary
// @Failure 500 {object} respond.ErrorResponse
// @Router /detect/facilities/{facilityID} [post]
func (h *Handler) RunFacilityDetection(w http.ResponseWriter, r *http.Request) {
	facilityID := chi.URLParam(r, "facilityID")
	sum, err := h.detector.DetectForFacility(r.Context(), facilityID)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError,
			"DETECTION_FAILED", "Facility detection failed", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, sum)
}
