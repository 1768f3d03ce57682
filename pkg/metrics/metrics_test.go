package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := New()

	r.ObserveFetch("nse", "ok", 120*time.Millisecond)
	r.ObserveFetch("nse", "ok", 80*time.Millisecond)
	r.ObserveFetch("yahoo", "empty", time.Second)
	r.CacheLookup(true)
	r.CacheLookup(false)
	r.CacheLookup(false)
	r.EnrichOutcome("failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.FetchAttempts.WithLabelValues("nse", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FetchAttempts.WithLabelValues("yahoo", "empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.EnrichOutcomes.WithLabelValues("failed")))
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *Registry

	assert.NotPanics(t, func() {
		r.ObserveFetch("nse", "ok", time.Second)
		r.ObserveQuality(80)
		r.CacheLookup(true)
		r.EnrichOutcome("enriched")
		r.ObserveRSPass(time.Second)
		r.ScreenRequest("filter", "ok")
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := New()
	r.ObserveQuality(75)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stockfusion_fusion_quality_score")
}
