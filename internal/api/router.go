package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/stockfusion/internal/api/handlers"
	"github.com/wonny/stockfusion/pkg/logger"
)

// Handlers groups everything the router dispatches to
type Handlers struct {
	Screener *handlers.ScreenerHandler
	Stock    *handlers.StockHandler
	Enrich   *handlers.EnrichHandler
	Progress *handlers.ProgressHub
	Metrics  http.Handler // nil disables /metrics
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Screener endpoints
	api.HandleFunc("/screener/filter", h.Screener.Filter).Methods("POST")
	api.HandleFunc("/screener/presets", h.Screener.ListPresets).Methods("GET")
	api.HandleFunc("/screener/presets/{name}", h.Screener.ApplyPreset).Methods("GET")
	api.HandleFunc("/screener/fields", h.Screener.Fields).Methods("GET")
	api.HandleFunc("/screener/fields/{field}/stats", h.Screener.FieldStats).Methods("GET")
	api.HandleFunc("/screener/stats", h.Screener.Stats).Methods("GET")

	// Stock endpoints (search before {symbol})
	api.HandleFunc("/stocks/search", h.Stock.Search).Methods("GET")
	api.HandleFunc("/stocks/{symbol}", h.Stock.GetStock).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/fusion", h.Stock.GetFusion).Methods("GET")

	if h.Enrich != nil {
		api.HandleFunc("/enrich", h.Enrich.Trigger).Methods("POST")
	}
	if h.Progress != nil {
		r.HandleFunc("/ws/enrichment", h.Progress.HandleWebSocket).Methods("GET")
	}

	r.Use(recoveryMiddleware(log))
	r.Use(loggingMiddleware(log))

	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "stockfusion",
		"time":    time.Now().UTC(),
	})
}

// statusRecorder captures the response status for logging.
// Hijack is passed through so websocket upgrades still work.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	log = log.Module("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	log = log.Module("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]interface{}{
						"success": false,
						"error":   "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
