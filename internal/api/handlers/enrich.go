package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/wonny/stockfusion/internal/enrichment"
	"github.com/wonny/stockfusion/pkg/logger"
)

// BatchEnricher runs one enrichment batch
type BatchEnricher interface {
	EnrichBatch(ctx context.Context, maxStocks int) (*enrichment.BatchResult, error)
}

// EnrichHandler triggers background enrichment batches
type EnrichHandler struct {
	enricher BatchEnricher
	baseCtx  context.Context
	running  atomic.Bool
	logger   *logger.Logger
}

// NewEnrichHandler creates a new enrich handler. Batches run under baseCtx,
// not the request context, so they outlive the HTTP call.
func NewEnrichHandler(baseCtx context.Context, enricher BatchEnricher, log *logger.Logger) *EnrichHandler {
	return &EnrichHandler{
		enricher: enricher,
		baseCtx:  baseCtx,
		logger:   log.Module("api"),
	}
}

// EnrichRequest is the body of POST /api/enrich
type EnrichRequest struct {
	MaxStocks int `json:"max_stocks"`
}

// Trigger starts a batch in the background. Only one batch runs at a time.
// Progress is streamed on /ws/enrichment.
// POST /api/enrich
func (h *EnrichHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req EnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MaxStocks < 0 {
		respondError(w, http.StatusBadRequest, "max_stocks must not be negative")
		return
	}

	if !h.running.CompareAndSwap(false, true) {
		respondError(w, http.StatusConflict, "an enrichment batch is already running")
		return
	}

	go func() {
		defer h.running.Store(false)

		res, err := h.enricher.EnrichBatch(h.baseCtx, req.MaxStocks)
		if err != nil {
			h.logger.WithError(err).Error("Background enrichment failed")
			return
		}
		h.logger.WithFields(map[string]interface{}{
			"run_id":   res.RunID,
			"enriched": res.Enriched,
			"failed":   res.Failed,
		}).Info("Background enrichment finished")
	}()

	respondData(w, http.StatusAccepted, map[string]interface{}{
		"status":     "started",
		"max_stocks": req.MaxStocks,
	})
}

// Running reports whether a batch is in progress
func (h *EnrichHandler) Running() bool {
	return h.running.Load()
}
