package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Prometheus metric of the pipeline.
// A nil *Registry is valid and records nothing.
// ⭐ SSOT: 메트릭 정의는 여기서만
type Registry struct {
	reg *prometheus.Registry

	FetchAttempts  *prometheus.CounterVec   // source, result (ok|empty|open)
	FetchDuration  *prometheus.HistogramVec // source
	FusionQuality  prometheus.Histogram
	CacheLookups   *prometheus.CounterVec // result (hit|miss)
	EnrichOutcomes *prometheus.CounterVec // outcome (enriched|failed|skipped)
	RSPassDuration prometheus.Histogram
	ScreenRequests *prometheus.CounterVec // kind (filter|preset), result
}

// New creates a registry with its own prometheus.Registry plus the Go runtime collectors
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockfusion_fetch_attempts_total",
				Help: "Source fetcher invocations by source and result",
			},
			[]string{"source", "result"},
		),

		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockfusion_fetch_duration_seconds",
				Help:    "Duration of one source fetch",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
			[]string{"source"},
		),

		FusionQuality: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stockfusion_fusion_quality_score",
				Help:    "Quality score of fused results",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockfusion_fusion_cache_lookups_total",
				Help: "Fusion cache lookups by result",
			},
			[]string{"result"},
		),

		EnrichOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockfusion_enrich_outcomes_total",
				Help: "Per-stock enrichment outcomes",
			},
			[]string{"outcome"},
		),

		RSPassDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stockfusion_relative_strength_pass_seconds",
				Help:    "Duration of the universe-wide relative strength pass",
				Buckets: prometheus.DefBuckets,
			},
		),

		ScreenRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockfusion_screen_requests_total",
				Help: "Screening requests by kind and result",
			},
			[]string{"kind", "result"},
		),
	}

	r.reg.MustRegister(
		r.FetchAttempts,
		r.FetchDuration,
		r.FusionQuality,
		r.CacheLookups,
		r.EnrichOutcomes,
		r.RSPassDuration,
		r.ScreenRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry (tests)
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) ObserveFetch(source, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.FetchAttempts.WithLabelValues(source, result).Inc()
	r.FetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (r *Registry) ObserveQuality(score int) {
	if r == nil {
		return
	}
	r.FusionQuality.Observe(float64(score))
}

func (r *Registry) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookups.WithLabelValues(result).Inc()
}

func (r *Registry) EnrichOutcome(outcome string) {
	if r == nil {
		return
	}
	r.EnrichOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Registry) ObserveRSPass(d time.Duration) {
	if r == nil {
		return
	}
	r.RSPassDuration.Observe(d.Seconds())
}

func (r *Registry) ScreenRequest(kind, result string) {
	if r == nil {
		return
	}
	r.ScreenRequests.WithLabelValues(kind, result).Inc()
}
