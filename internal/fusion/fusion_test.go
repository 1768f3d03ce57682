package fusion

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/breaker"
	"github.com/wonny/stockfusion/pkg/logger"
)

// fakeFetcher returns a fixed bag and counts calls
type fakeFetcher struct {
	name        string
	unavailable bool
	bag         contracts.FieldBag
	calls       int32
	panics      bool
}

func (f *fakeFetcher) Name() string    { return f.name }
func (f *fakeFetcher) Available() bool { return !f.unavailable }

func (f *fakeFetcher) Fetch(_ context.Context, _ string, _ []string) (contracts.FieldBag, bool) {
	atomic.AddInt32(&f.calls, 1)
	if f.panics {
		panic("provider exploded")
	}
	if f.bag == nil {
		return nil, false
	}
	return f.bag.Clone(), true
}

func (f *fakeFetcher) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

func newTestService(fetchers ...contracts.SourceFetcher) *Service {
	return NewService(NewRegistry(fetchers...), logger.Nop(), WithDelay(0), WithSymbolDelay(0))
}

var required4 = []string{"currentPrice", "marketCap", "pe_ratio", "roe"}

func TestScore(t *testing.T) {
	tests := []struct {
		name        string
		bag         contracts.FieldBag
		required    []string
		wantScore   int
		wantMissing []string
	}{
		{
			name:        "all present",
			bag:         contracts.FieldBag{"currentPrice": 100.0, "marketCap": 1e9, "pe_ratio": 20.0, "roe": 15.0},
			required:    required4,
			wantScore:   100,
			wantMissing: []string{},
		},
		{
			name:        "zero counts as missing",
			bag:         contracts.FieldBag{"currentPrice": 100.0, "marketCap": 0, "pe_ratio": 20.0, "roe": nil},
			required:    required4,
			wantScore:   50,
			wantMissing: []string{"marketCap", "roe"},
		},
		{
			name:        "rounded",
			bag:         contracts.FieldBag{"a": 1},
			required:    []string{"a", "b", "c"},
			wantScore:   33,
			wantMissing: []string{"b", "c"},
		},
		{
			name:        "two of three rounds up",
			bag:         contracts.FieldBag{"a": 1, "b": "x"},
			required:    []string{"a", "b", "c"},
			wantScore:   67,
			wantMissing: []string{"c"},
		},
		{
			name:        "empty checklist",
			bag:         contracts.FieldBag{"a": 1},
			required:    nil,
			wantScore:   0,
			wantMissing: []string{},
		},
		{
			name:        "empty bag",
			bag:         nil,
			required:    required4,
			wantScore:   0,
			wantMissing: required4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, missing := Score(tt.bag, tt.required)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantMissing, missing)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 100)
		})
	}
}

func TestMerge_NeverRegressesCompleteness(t *testing.T) {
	bags := []contracts.FieldBag{
		{},
		{"currentPrice": 10.0},
		{"currentPrice": 0, "marketCap": 5e9},
		{"pe_ratio": 12.0, "roe": 0.0, "_sources": []string{"x"}},
		{"currentPrice": 11.0, "marketCap": nil, "pe_ratio": 14.0, "roe": 18.0},
	}

	for i, a := range bags {
		for j, b := range bags {
			merged, _ := Merge(a, b)
			before, _ := Score(a, required4)
			after, _ := Score(merged, required4)
			assert.GreaterOrEqual(t, after, before, "merge(%d,%d)", i, j)
		}
	}
}

func TestMerge_Semantics(t *testing.T) {
	base := contracts.FieldBag{"currentPrice": 5.0, "marketCap": 0, "roe": nil}
	incoming := contracts.FieldBag{
		"currentPrice": 7.0,
		"marketCap":    2e9,
		"roe":          0,
		"pe_ratio":     18.0,
		"_source":      "other",
	}

	merged, filled := Merge(base, incoming)

	assert.Equal(t, 5.0, merged["currentPrice"], "present value is kept")
	assert.Equal(t, 2e9, merged["marketCap"], "zero is filled")
	assert.Nil(t, merged["roe"], "absent incoming value is ignored")
	assert.Equal(t, 18.0, merged["pe_ratio"])
	assert.NotContains(t, merged, "_source")
	assert.ElementsMatch(t, []string{"marketCap", "pe_ratio"}, filled)

	// inputs are untouched
	assert.Equal(t, 0, base["marketCap"])
	assert.NotContains(t, base, "pe_ratio")
}

func TestNormalizePercentages(t *testing.T) {
	in := contracts.FieldBag{
		"roe":            0.18,
		"roa":            12.5,
		"dividend_yield": 1.0,
		"eps_growth":     -0.2,
		"pe_ratio":       0.5,
		"profit_margin":  "n/a",
	}

	out := NormalizePercentages(in)

	assert.InDelta(t, 18.0, out["roe"], 1e-9)
	assert.InDelta(t, 12.5, out["roa"], 1e-9)
	assert.InDelta(t, 100.0, out["dividend_yield"], 1e-9)
	assert.InDelta(t, -0.2, out["eps_growth"], 1e-9, "outside [0,1] is left alone")
	assert.InDelta(t, 0.5, out["pe_ratio"], 1e-9, "non-percentage field")
	assert.Equal(t, "n/a", out["profit_margin"])
	assert.InDelta(t, 0.18, in["roe"], 1e-9, "input is not mutated")
}

func TestNormalizePercentages_DeclaredScale(t *testing.T) {
	percent := NormalizePercentages(contracts.FieldBag{
		"dividend_yield":          0.34,
		contracts.KeyPercentScale: contracts.ScalePercent,
	})
	assert.InDelta(t, 0.34, percent["dividend_yield"], 1e-9)

	fraction := NormalizePercentages(contracts.FieldBag{
		"eps_growth":              -0.2,
		"roe":                     1.5,
		contracts.KeyPercentScale: contracts.ScaleFraction,
	})
	assert.InDelta(t, -20.0, fraction["eps_growth"], 1e-9)
	assert.InDelta(t, 150.0, fraction["roe"], 1e-9)
}

func TestFetchStockData_PriorityOrder(t *testing.T) {
	first := &fakeFetcher{name: "NSE", bag: contracts.FieldBag{"currentPrice": 5.0}}
	second := &fakeFetcher{name: "YahooFinance", bag: contracts.FieldBag{"currentPrice": 7.0, "marketCap": 1e9}}

	data, report := newTestService(first, second).FetchStockData(context.Background(), "TCS", required4)

	assert.Equal(t, 5.0, data["currentPrice"])
	assert.Equal(t, 1e9, data["marketCap"])
	assert.Equal(t, []string{"NSE", "YahooFinance"}, report.SourcesUsed)
	assert.Equal(t, 50, report.Score)
	assert.Len(t, report.FetchAttempts, 2)
}

func TestFetchStockData_EarlyStop(t *testing.T) {
	full := &fakeFetcher{name: "NSE", bag: contracts.FieldBag{
		"currentPrice": 100.0, "marketCap": 1e10, "pe_ratio": 20.0, "roe": 16.0,
	}}
	later := &fakeFetcher{name: "YahooFinance", bag: contracts.FieldBag{"currentPrice": 101.0}}

	_, report := newTestService(full, later).FetchStockData(context.Background(), "INFY", required4)

	assert.Equal(t, 100, report.Score)
	assert.Equal(t, 1, full.Calls())
	assert.Equal(t, 0, later.Calls(), "fetchers after the threshold must not run")
}

func TestFetchStockData_SkipsUnavailable(t *testing.T) {
	off := &fakeFetcher{name: "AlphaVantage", unavailable: true, bag: contracts.FieldBag{"roe": 10.0}}
	on := &fakeFetcher{name: "NSE", bag: contracts.FieldBag{"currentPrice": 10.0}}

	_, report := newTestService(off, on).FetchStockData(context.Background(), "SBIN", required4)

	assert.Equal(t, 0, off.Calls())
	assert.Equal(t, []string{"NSE"}, report.SourcesUsed)
}

func TestFetchStockData_AllAbsent(t *testing.T) {
	a := &fakeFetcher{name: "NSE"}
	b := &fakeFetcher{name: "YahooFinance"}

	data, report := newTestService(a, b).FetchStockData(context.Background(), "X", nil)

	assert.Equal(t, 0, report.Score)
	assert.Empty(t, report.SourcesUsed)
	assert.Empty(t, report.FetchAttempts)
	assert.Equal(t, contracts.DefaultRequiredFields, report.MissingFields)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Empty(t, data.Metrics(), "only bookkeeping keys remain")
	assert.Equal(t, 0, data[contracts.KeyQualityScore])
}

func TestFetchStockData_AttemptWithoutContribution(t *testing.T) {
	a := &fakeFetcher{name: "NSE", bag: contracts.FieldBag{"currentPrice": 10.0}}
	b := &fakeFetcher{name: "YahooFinance", bag: contracts.FieldBag{"currentPrice": 11.0}}

	_, report := newTestService(a, b).FetchStockData(context.Background(), "ITC", required4)

	assert.Equal(t, []string{"NSE"}, report.SourcesUsed)
	require.Len(t, report.FetchAttempts, 2)
	assert.Equal(t, "YahooFinance", report.FetchAttempts[1].Source)
	assert.Equal(t, 25, report.FetchAttempts[1].Quality)
}

func TestFetchStockData_NormalizesBeforeMerge(t *testing.T) {
	a := &fakeFetcher{name: "YahooFinance", bag: contracts.FieldBag{"roe": 0.21}}

	data, _ := newTestService(a).FetchStockData(context.Background(), "HDFCBANK", required4)

	assert.InDelta(t, 21.0, data["roe"], 1e-9)
}

func TestFetchStockData_Cache(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 1, 0, 0, time.UTC)
	f := &fakeFetcher{name: "NSE", bag: contracts.FieldBag{"currentPrice": 10.0, "marketCap": 1e9}}
	svc := NewService(NewRegistry(f), logger.Nop(),
		WithDelay(0),
		WithCache(NewMemoryCache(15*time.Minute)),
		WithClock(func() time.Time { return now }),
	)

	_, first := svc.FetchStockData(context.Background(), "tcs.ns", required4)
	data, second := svc.FetchStockData(context.Background(), "TCS", []string{"roe", "pe_ratio", "marketCap", "currentPrice"})

	assert.Equal(t, 1, f.Calls(), "cache hit skips the fetcher loop")
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, 10.0, data["currentPrice"])

	now = now.Add(20 * time.Minute)
	svc.FetchStockData(context.Background(), "TCS", required4)
	assert.Equal(t, 2, f.Calls(), "next bucket fetches again")
}

func TestFetchStockData_CacheIsPerChecklist(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 1, 0, 0, time.UTC)
	prices := &fakeFetcher{name: "NSE", bag: contracts.FieldBag{"currentPrice": 10.0}}
	fundamentals := &fakeFetcher{name: "ScreenerIn", bag: contracts.FieldBag{"marketCap": 1e9, "pe_ratio": 20.0, "roe": 15.0}}
	svc := NewService(NewRegistry(prices, fundamentals), logger.Nop(),
		WithDelay(0),
		WithCache(NewMemoryCache(15*time.Minute)),
		WithClock(func() time.Time { return now }),
	)

	_, priceOnly := svc.FetchStockData(context.Background(), "TCS", []string{"currentPrice"})
	require.Equal(t, 100, priceOnly.Score)
	require.Equal(t, 0, fundamentals.Calls(), "price checklist stops after the first source")

	data, full := svc.FetchStockData(context.Background(), "TCS", required4)

	assert.False(t, full.Cached, "an early stop on another checklist is not reused")
	assert.Equal(t, 1, fundamentals.Calls())
	assert.Equal(t, 100, full.Score)
	assert.Equal(t, 20.0, data["pe_ratio"])
}

func TestChecklist(t *testing.T) {
	assert.Equal(t, Checklist([]string{"a", "b"}), Checklist([]string{"b", "a", "a"}))
	assert.NotEqual(t, Checklist([]string{"a"}), Checklist([]string{"a", "b"}))
	assert.Len(t, Checklist(nil), 12)
}

func TestFetchMany(t *testing.T) {
	f := &fakeFetcher{name: "NSE", bag: contracts.FieldBag{"currentPrice": 10.0}}

	results := newTestService(f).FetchMany(context.Background(), []string{"A", "B", "C"}, required4)

	require.Len(t, results, 3)
	assert.Equal(t, "B", results[1].Symbol)
	assert.Equal(t, 3, f.Calls())
}

func TestGuard(t *testing.T) {
	t.Run("panic becomes absent", func(t *testing.T) {
		f := Guard(&fakeFetcher{name: "NSE", panics: true}, GuardOptions{}, logger.Nop())
		bag, ok := f.Fetch(context.Background(), "TCS", nil)
		assert.False(t, ok)
		assert.Nil(t, bag)
	})

	t.Run("open breaker skips the provider", func(t *testing.T) {
		inner := &fakeFetcher{name: "screener.in"}
		br := breaker.New(breaker.DefaultSettings("screener.in"), logger.Nop())
		f := Guard(inner, GuardOptions{Breaker: br}, logger.Nop())

		for i := 0; i < 3; i++ {
			_, ok := f.Fetch(context.Background(), "TCS", nil)
			assert.False(t, ok)
		}
		require.Equal(t, "open", br.State())

		_, ok := f.Fetch(context.Background(), "TCS", nil)
		assert.False(t, ok)
		assert.Equal(t, 3, inner.Calls())
	})

	t.Run("data passes through", func(t *testing.T) {
		f := Guard(&fakeFetcher{name: "NSE", bag: contracts.FieldBag{"currentPrice": 1.0}}, GuardOptions{Timeout: time.Second}, logger.Nop())
		bag, ok := f.Fetch(context.Background(), "TCS", nil)
		require.True(t, ok)
		assert.Equal(t, 1.0, bag["currentPrice"])
		assert.Equal(t, "NSE", f.Name())
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(
		&fakeFetcher{name: "NSE"},
		nil,
		&fakeFetcher{name: "AlphaVantage", unavailable: true},
		&fakeFetcher{name: "YahooFinance"},
	)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"NSE", "YahooFinance"}, r.Available())
	assert.Equal(t, "AlphaVantage", r.Fetchers()[1].Name())
}
