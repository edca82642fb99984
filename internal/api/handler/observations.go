package handler

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/jariyo/jariyo-data/internal/api/respond"
	"github.com/jariyo/jariyo-data/internal/detect"
	"github.com/jariyo/jariyo-data/internal/snapshot"
)

//go:embed observation.schema.json
var observationSchemaJSON string

// observationSchema rejects malformed ingestion documents before they reach
// the typed decoder. Compiled once at startup.
var observationSchema = mustCompileObservationSchema()

func mustCompileObservationSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(observationSchemaJSON))
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("observation.schema.json", doc); err != nil {
		panic(err)
	}
	sch, err := c.Compile("observation.schema.json")
	if err != nil {
		panic(err)
	}
	return sch
}

// observationDoc is the wire form of one normalized facility observation.
type observationDoc struct {
	FacilityID      string                   `json:"facility_id"`
	FacilityName    string                   `json:"facility_name"`
	CapacityCurrent *int                     `json:"capacity_current"`
	CapacityByAge   map[snapshot.AgeBand]int `json:"capacity_by_age"`
	ObservedAt      time.Time                `json:"observed_at"`
}

// ingestResponse reports what one observation produced.
type ingestResponse struct {
	Diffed    bool                   `json:"diffed"`
	Change    *snapshot.ChangeRecord `json:"change,omitempty"`
	Detection *detect.Summary        `json:"detection,omitempty"`
}

// IngestObservation accepts one normalized facility observation, persists
// the snapshot, runs the differ, and triggers facility-scoped detection.
// @Summary Ingest a facility observation
// @Tags observations
// @Accept json
// @Produce json
// @Success 200 {object} ingestResponse
// @Failure 400 {object} respond.ErrorResponse
// @Router /observations [post]
func (h *Handler) IngestObservation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BODY_READ_FAILED", "Could not read request body")
		return
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Body is not valid JSON")
		return
	}
	if err := observationSchema.Validate(inst); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest,
			"INVALID_OBSERVATION", "Observation failed schema validation", err.Error())
		return
	}

	var doc observationDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Body is not valid JSON")
		return
	}

	obs := snapshot.Observation{
		FacilityID:      doc.FacilityID,
		FacilityName:    doc.FacilityName,
		CapacityCurrent: doc.CapacityCurrent,
		CapacityByAge:   doc.CapacityByAge,
		ObservedAt:      doc.ObservedAt,
	}

	// Diff against history first: the prior-snapshot lookup must not see the
	// row we are about to insert.
	rec, err := h.differ.Diff(r.Context(), obs)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError,
			"DIFF_FAILED", "Could not diff observation", err.Error())
		return
	}

	if err := h.snapshots.InsertObservation(r.Context(), obs); err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError,
			"SNAPSHOT_INSERT_FAILED", "Could not persist observation", err.Error())
		return
	}

	resp := ingestResponse{Diffed: rec != nil, Change: rec}
	if rec != nil {
		sum, err := h.detector.DetectForFacility(r.Context(), obs.FacilityID)
		if err != nil {
			respond.WriteErrorDetail(w, http.StatusInternalServerError,
				"DETECTION_FAILED", "Observation stored but detection failed", err.Error())
			return
		}
		resp.Detection = &sum
	}
	respond.WriteJSONObject(w, http.StatusOK, resp)
}
