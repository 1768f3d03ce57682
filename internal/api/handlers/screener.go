package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/stockfusion/internal/screening"
	"github.com/wonny/stockfusion/pkg/logger"
)

// ScreenerHandler serves the screening engine
// ⭐ SSOT: 스크리너 API 핸들러는 이 구조체에서만
type ScreenerHandler struct {
	engine *screening.Engine
	logger *logger.Logger
}

// NewScreenerHandler creates a new screener handler
func NewScreenerHandler(engine *screening.Engine, log *logger.Logger) *ScreenerHandler {
	return &ScreenerHandler{
		engine: engine,
		logger: log.Module("api"),
	}
}

// Filter runs a custom filter specification
// POST /api/screener/filter
func (h *ScreenerHandler) Filter(w http.ResponseWriter, r *http.Request) {
	var spec screening.FilterSpec
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid filter specification: "+err.Error())
		return
	}

	res, err := h.engine.ApplyFilters(r.Context(), spec)
	if err != nil {
		h.screenError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// ListPresets returns the preset catalogue
// GET /api/screener/presets
func (h *ScreenerHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.engine.Presets())
}

// ApplyPreset runs one preset
// GET /api/screener/presets/{name}?limit=50
func (h *ScreenerHandler) ApplyPreset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	res, err := h.engine.ApplyPreset(r.Context(), name, queryInt(r, "limit", 0))
	if err != nil {
		h.screenError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Fields lists the filterable fields
// GET /api/screener/fields
func (h *ScreenerHandler) Fields(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.engine.AvailableFields())
}

// FieldStats returns min/max/mean/count of one field
// GET /api/screener/fields/{field}/stats
func (h *ScreenerHandler) FieldStats(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]

	stats, err := h.engine.FieldStats(r.Context(), field)
	if err != nil {
		h.screenError(w, err)
		return
	}
	respondData(w, http.StatusOK, stats)
}

// Stats summarizes the stored universe
// GET /api/screener/stats
func (h *ScreenerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.DatabaseStats(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get database stats")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve database stats")
		return
	}
	respondData(w, http.StatusOK, stats)
}

func (h *ScreenerHandler) screenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, screening.ErrUnknownPreset):
		respondError(w, http.StatusNotFound, err.Error())
	case screening.IsRequestError(err):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.WithError(err).Error("Screen failed")
		respondError(w, http.StatusInternalServerError, "Failed to evaluate screen")
	}
}
