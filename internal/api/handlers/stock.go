package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/internal/screening"
	"github.com/wonny/stockfusion/internal/search"
	"github.com/wonny/stockfusion/pkg/logger"
)

// Fuser runs a live multi-source fetch
type Fuser interface {
	FetchStockData(ctx context.Context, symbol string, required []string) (contracts.FieldBag, contracts.QualityReport)
}

// Searcher looks up stocks by symbol, name or sector
type Searcher interface {
	Search(ctx context.Context, q string, limit int) ([]search.Hit, error)
}

// StockHandler handles per-stock endpoints
// ⭐ SSOT: 종목 데이터 API 핸들러는 이 구조체에서만
type StockHandler struct {
	repo     contracts.StockRepository
	fuser    Fuser
	searcher Searcher
	logger   *logger.Logger
}

// NewStockHandler creates a new stock handler. searcher may be nil.
func NewStockHandler(repo contracts.StockRepository, fuser Fuser, searcher Searcher, log *logger.Logger) *StockHandler {
	return &StockHandler{
		repo:     repo,
		fuser:    fuser,
		searcher: searcher,
		logger:   log.Module("api"),
	}
}

// GetStock returns the stored record with display-name keys
// GET /api/stocks/{symbol}
func (h *StockHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	symbol := contracts.NormalizeSymbol(mux.Vars(r)["symbol"])

	rec, err := h.repo.GetBySymbol(r.Context(), symbol)
	if errors.Is(err, contracts.ErrNotFound) {
		respondError(w, http.StatusNotFound, "stock not found: "+symbol)
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to get stock")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve stock")
		return
	}
	respondData(w, http.StatusOK, screening.ToRow(rec))
}

// FusionResponse is a live fetch result
type FusionResponse struct {
	Symbol  string                  `json:"symbol"`
	Data    contracts.FieldBag      `json:"data"`
	Quality contracts.QualityReport `json:"quality"`
}

// GetFusion fetches the stock live from every available source
// GET /api/stocks/{symbol}/fusion?fields=currentPrice,pe_ratio
func (h *StockHandler) GetFusion(w http.ResponseWriter, r *http.Request) {
	symbol := contracts.NormalizeSymbol(mux.Vars(r)["symbol"])
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	required := contracts.DefaultRequiredFields
	if s := r.URL.Query().Get("fields"); s != "" {
		required = nil
		for _, f := range strings.Split(s, ",") {
			if f = strings.TrimSpace(f); f != "" {
				required = append(required, f)
			}
		}
	}

	bag, report := h.fuser.FetchStockData(r.Context(), symbol, required)
	respondData(w, http.StatusOK, FusionResponse{Symbol: symbol, Data: bag, Quality: report})
}

// Search finds stocks by symbol, name, sector or industry
// GET /api/stocks/search?q=tata&limit=20
func (h *StockHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		respondError(w, http.StatusServiceUnavailable, "search index not available")
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	hits, err := h.searcher.Search(r.Context(), q, queryInt(r, "limit", search.DefaultLimit))
	if err != nil {
		h.logger.WithError(err).WithField("q", q).Error("Search failed")
		respondError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	respondData(w, http.StatusOK, hits)
}
