package enrichment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/internal/fusion"
	"github.com/wonny/stockfusion/internal/scoring"
	"github.com/wonny/stockfusion/internal/storage"
	"github.com/wonny/stockfusion/pkg/logger"
)

var testNow = time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

// stubFetcher serves fixed bags per symbol and counts calls
type stubFetcher struct {
	name  string
	mu    sync.Mutex
	bags  map[string]contracts.FieldBag
	calls map[string]int
}

func newStubFetcher(bags map[string]contracts.FieldBag) *stubFetcher {
	return &stubFetcher{bags: bags, calls: map[string]int{}}
}

func (f *stubFetcher) Name() string {
	if f.name != "" {
		return f.name
	}
	return "stub"
}

func (f *stubFetcher) Available() bool { return true }

func (f *stubFetcher) Fetch(ctx context.Context, symbol string, required []string) (contracts.FieldBag, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	bag, ok := f.bags[symbol]
	if !ok {
		return nil, false
	}
	return bag.Clone(), true
}

func (f *stubFetcher) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type recordingSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (s *recordingSink) Publish(e ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

type recordingIndexer struct {
	ids []contracts.StockIdentity
}

func (i *recordingIndexer) Rebuild(ctx context.Context, ids []contracts.StockIdentity) error {
	i.ids = ids
	return nil
}

func newTestOrchestrator(t *testing.T, repo contracts.StockRepository, fetcher *stubFetcher, opts ...Option) *Orchestrator {
	t.Helper()
	svc := fusion.NewService(fusion.NewRegistry(fetcher), logger.Nop(),
		fusion.WithDelay(0), fusion.WithSymbolDelay(0))

	cfg := DefaultConfig()
	cfg.RatePerSecond = 0
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewOrchestrator(repo, svc, scoring.NewCalculator(logger.Nop()), cfg, logger.Nop(), opts...)
}

func completeBag() contracts.FieldBag {
	return contracts.FieldBag{
		contracts.FieldCurrentPrice:       3900.0,
		contracts.FieldMarketCap:          1.4e13,
		contracts.FieldPE:                 12.0,
		contracts.FieldROE:                18.0,
		contracts.FieldRevenue:            2.4e12,
		contracts.FieldNetIncome:          4.6e11,
		contracts.FieldTotalAssets:        1.5e12,
		contracts.FieldTotalDebt:          1e11,
		contracts.FieldStockholdersEquity: 2e11,
		contracts.FieldCurrentAssets:      9e11,
		contracts.FieldCurrentLiabilities: 3e11,
		contracts.FieldYear1Change:        25.0,
		contracts.FieldWeek52High:         4000.0,
		contracts.FieldWeek52Low:          3000.0,
	}
}

func TestRankPercentiles(t *testing.T) {
	t.Run("three stocks", func(t *testing.T) {
		got := RankPercentiles([]contracts.ReturnPoint{
			{StockID: 1, Return: 40},
			{StockID: 2, Return: 10},
			{StockID: 3, Return: -5},
		})
		assert.Equal(t, []contracts.Percentile{{StockID: 1, Value: 99}, {StockID: 2, Value: 49}, {StockID: 3, Value: 0}}, got)
	})

	t.Run("single stock", func(t *testing.T) {
		got := RankPercentiles([]contracts.ReturnPoint{{StockID: 7, Return: -30}})
		assert.Equal(t, []contracts.Percentile{{StockID: 7, Value: 50}}, got)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, RankPercentiles(nil))
	})

	t.Run("monotonic and bounded", func(t *testing.T) {
		var points []contracts.ReturnPoint
		for i := 0; i < 57; i++ {
			points = append(points, contracts.ReturnPoint{StockID: int64(i + 1), Return: float64((i * 37) % 101)})
		}
		got := RankPercentiles(points)
		require.Len(t, got, 57)
		assert.Equal(t, 99, got[0].Value)
		assert.Equal(t, 0, got[len(got)-1].Value)
		for i := 1; i < len(got); i++ {
			assert.LessOrEqual(t, got[i].Value, got[i-1].Value)
		}
	})

	t.Run("input untouched", func(t *testing.T) {
		points := []contracts.ReturnPoint{{StockID: 1, Return: -1}, {StockID: 2, Return: 5}}
		RankPercentiles(points)
		assert.Equal(t, int64(1), points[0].StockID)
	})
}

func TestRunRelativeStrength_ThreeStockUniverse(t *testing.T) {
	repo := storage.NewMemoryRepository(logger.Nop())
	repo.Seed(
		&contracts.StockRecord{Symbol: "UP", DataQualityScore: 90, Metrics: contracts.Metrics{
			contracts.ColYear1Change:   40,
			contracts.ColCurrentPrice:  98,
			contracts.ColWeek52High:    100,
			contracts.ColWeek52Low:     50,
			contracts.ColMomentumScore: 80,
		}},
		&contracts.StockRecord{Symbol: "FLAT", DataQualityScore: 90, Metrics: contracts.Metrics{contracts.ColYear1Change: 10}},
		&contracts.StockRecord{Symbol: "DOWN", DataQualityScore: 90, Metrics: contracts.Metrics{
			contracts.ColYear1Change:   -5,
			contracts.ColMomentumScore: 15,
		}},
		&contracts.StockRecord{Symbol: "NONE", DataQualityScore: 90, Metrics: contracts.Metrics{}},
	)
	o := newTestOrchestrator(t, repo, newStubFetcher(nil))

	ranked, err := o.RunRelativeStrength(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ranked)

	tests := []struct {
		symbol   string
		pct      float64
		momentum float64
	}{
		{"UP", 99, 79},   // 39.6 + 30 (near 52w high) + 10 (above 52w low)
		{"FLAT", 49, 19}, // percentile only, no price
		{"DOWN", 0, 0},   // percentile 0 falls back to the negative return
	}
	for _, tt := range tests {
		rec, err := repo.GetBySymbol(context.Background(), tt.symbol)
		require.NoError(t, err)
		assert.Equal(t, tt.pct, rec.Metrics[contracts.ColRelStrengthScore], tt.symbol)
		assert.Equal(t, tt.momentum, rec.Metrics[contracts.ColMomentumScore], tt.symbol)
	}

	none, _ := repo.GetBySymbol(context.Background(), "NONE")
	assert.NotContains(t, none.Metrics, contracts.ColRelStrengthScore)
}

func TestEnrichBatch_WritesMergedUpdate(t *testing.T) {
	repo := storage.NewMemoryRepository(logger.Nop())
	_, err := repo.UpsertIdentity(context.Background(), contracts.StockIdentity{Symbol: "TCS", Name: "Tata Consultancy"})
	require.NoError(t, err)

	sink := &recordingSink{}
	o := newTestOrchestrator(t, repo, newStubFetcher(map[string]contracts.FieldBag{"TCS": completeBag()}), WithProgress(sink))

	result, err := o.EnrichBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Selected)
	assert.Equal(t, 1, result.Enriched)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.RelativeStrengthUpdated)
	assert.NotEmpty(t, result.RunID)

	rec, err := repo.GetBySymbol(context.Background(), "TCS")
	require.NoError(t, err)
	assert.Equal(t, 100, rec.DataQualityScore)
	assert.Equal(t, "stub", rec.DataSources)
	require.NotNil(t, rec.LastUpdated)
	assert.True(t, rec.LastUpdated.Equal(testNow))

	assert.Equal(t, 12.0, rec.Metrics[contracts.ColPE])
	assert.Equal(t, 2.4e12, rec.Metrics[contracts.ColRevenueAnnual])
	assert.InDelta(t, 0.5, rec.Metrics[contracts.ColDebtToEquity], 1e-9)
	assert.InDelta(t, 3.0, rec.Metrics[contracts.ColCurrentRatio], 1e-9)
	assert.Equal(t, 40.0, rec.Metrics[contracts.ColValuationScore])
	assert.Contains(t, rec.Metrics, contracts.ColDurabilityScore)
	assert.Equal(t, 50.0, rec.Metrics[contracts.ColRelStrengthScore], "lone stock")
	assert.Equal(t, 60.0, rec.Metrics[contracts.ColMomentumScore], "20 (percentile 50) + 30 (near 52w high) + 10 (above 52w low)")

	require.Len(t, sink.events, 2)
	assert.Equal(t, StatusEnriched, sink.events[0].Status)
	assert.Equal(t, "TCS", sink.events[0].Symbol)
	assert.Equal(t, StatusDone, sink.events[1].Status)
}

func TestEnrichBatch_MomentumUsesFreshPercentile(t *testing.T) {
	repo := storage.NewMemoryRepository(logger.Nop())
	repo.Seed(&contracts.StockRecord{Symbol: "LEAD", DataQualityScore: 90, Metrics: contracts.Metrics{
		contracts.ColYear1Change:      80,
		contracts.ColRelStrengthScore: 10,
	}})
	_, err := repo.UpsertIdentity(context.Background(), contracts.StockIdentity{Symbol: "TCS", Name: "Tata Consultancy"})
	require.NoError(t, err)

	bag := completeBag()
	bag[contracts.FieldYear1Change] = 90.0
	o := newTestOrchestrator(t, repo, newStubFetcher(map[string]contracts.FieldBag{"TCS": bag}))

	_, err = o.EnrichBatch(context.Background(), 0)
	require.NoError(t, err)

	rec, err := repo.GetBySymbol(context.Background(), "TCS")
	require.NoError(t, err)
	assert.Equal(t, 99.0, rec.Metrics[contracts.ColRelStrengthScore])
	assert.Equal(t, 79.0, rec.Metrics[contracts.ColMomentumScore], "39.6 (percentile 99) + 30 + 10")

	lead, err := repo.GetBySymbol(context.Background(), "LEAD")
	require.NoError(t, err)
	assert.Equal(t, 0.0, lead.Metrics[contracts.ColRelStrengthScore])
	assert.Equal(t, 40.0, lead.Metrics[contracts.ColMomentumScore], "percentile 0 falls back to the 80% return tier")
}

func TestEnrichBatch_FusionFailureLeavesRecordIntact(t *testing.T) {
	repo := storage.NewMemoryRepository(logger.Nop())
	old := testNow.Add(-30 * 24 * time.Hour)
	repo.Seed(&contracts.StockRecord{
		Symbol:           "X",
		Name:             "X Industries",
		DataQualityScore: 40,
		DataSources:      "NSE",
		LastUpdated:      &old,
		Metrics:          contracts.Metrics{contracts.ColPE: 14, contracts.ColMarketCap: 5e9},
	})
	before, err := repo.GetBySymbol(context.Background(), "X")
	require.NoError(t, err)

	fetcher := newStubFetcher(map[string]contracts.FieldBag{})
	o := newTestOrchestrator(t, repo, fetcher)

	bag, report := o.fuser.FetchStockData(context.Background(), "X", nil)
	assert.Empty(t, bag.Metrics())
	assert.Equal(t, 0, report.Score)

	result, err := o.EnrichBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Enriched)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "X", result.Failures[0].Symbol)

	after, err := repo.GetBySymbol(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEnrichBatch_SelectionAndCap(t *testing.T) {
	repo := storage.NewMemoryRepository(logger.Nop())
	fresh := testNow.Add(-time.Hour)
	repo.Seed(
		&contracts.StockRecord{Symbol: "GOOD", DataQualityScore: 95, LastUpdated: &fresh, Metrics: contracts.Metrics{contracts.ColMarketCap: 9e12}},
		&contracts.StockRecord{Symbol: "BIG", DataQualityScore: 10, Metrics: contracts.Metrics{contracts.ColMarketCap: 5e12}},
		&contracts.StockRecord{Symbol: "SMALL", DataQualityScore: 10, Metrics: contracts.Metrics{contracts.ColMarketCap: 1e9}},
	)
	fetcher := newStubFetcher(map[string]contracts.FieldBag{
		"GOOD": completeBag(), "BIG": completeBag(), "SMALL": completeBag(),
	})
	o := newTestOrchestrator(t, repo, fetcher)

	result, err := o.EnrichBatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Selected)
	assert.Equal(t, 1, fetcher.callCount("BIG"), "largest stale stock first")
	assert.Equal(t, 0, fetcher.callCount("SMALL"))
	assert.Equal(t, 0, fetcher.callCount("GOOD"), "fresh, high-quality records are not refreshed")
}

func TestEnrichBatch_Cancelled(t *testing.T) {
	repo := storage.NewMemoryRepository(logger.Nop())
	for _, s := range []string{"A", "B", "C"} {
		repo.Seed(&contracts.StockRecord{Symbol: s, Metrics: contracts.Metrics{contracts.ColYear1Change: 5}})
	}
	fetcher := newStubFetcher(map[string]contracts.FieldBag{"A": completeBag(), "B": completeBag(), "C": completeBag()})
	o := newTestOrchestrator(t, repo, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.EnrichBatch(ctx, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, result.Selected)
	assert.Equal(t, 0, result.Enriched)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, 0, result.RelativeStrengthUpdated)

	rec, _ := repo.GetBySymbol(context.Background(), "A")
	assert.True(t, rec.IsPlaceholder())
}

func TestEnrichBatch_WorkersShareLimiter(t *testing.T) {
	repo := storage.NewMemoryRepository(logger.Nop())
	bags := map[string]contracts.FieldBag{}
	for _, s := range []string{"A", "B", "C", "D", "E", "F"} {
		repo.Seed(&contracts.StockRecord{Symbol: s})
		bags[s] = completeBag()
	}
	fetcher := newStubFetcher(bags)
	o := newTestOrchestrator(t, repo, fetcher)

	result, err := o.EnrichBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Enriched)
	for s := range bags {
		assert.Equal(t, 1, fetcher.callCount(s), s)
	}
}

func TestPopulate(t *testing.T) {
	repo := storage.NewMemoryRepository(logger.Nop())
	_, err := repo.UpsertIdentity(context.Background(), contracts.StockIdentity{Symbol: "TCS", Name: "TCS"})
	require.NoError(t, err)

	idx := &recordingIndexer{}
	o := newTestOrchestrator(t, repo, newStubFetcher(nil), WithIndexer(idx))

	result, err := o.Populate(context.Background(), []contracts.StockIdentity{
		{Symbol: "tcs", Name: "Tata Consultancy Services", Sector: "IT"},
		{Symbol: "INFY.NS", Name: "Infosys", Sector: "IT"},
		{Symbol: "  ", Name: "Blank"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Errors, 1)

	infy, err := repo.GetBySymbol(context.Background(), "INFY")
	require.NoError(t, err)
	assert.True(t, infy.IsPlaceholder())

	require.Len(t, idx.ids, 2)
	assert.Equal(t, "INFY", idx.ids[0].Symbol)
}

type staticProvider struct{ ids []contracts.StockIdentity }

func (p staticProvider) Name() string { return "static" }
func (p staticProvider) List(ctx context.Context) ([]contracts.StockIdentity, error) {
	return p.ids, nil
}

func TestPopulateFromProvider(t *testing.T) {
	repo := storage.NewMemoryRepository(logger.Nop())
	o := newTestOrchestrator(t, repo, newStubFetcher(nil))

	result, err := o.PopulateFromProvider(context.Background(), staticProvider{ids: []contracts.StockIdentity{
		{Symbol: "HDFCBANK", Name: "HDFC Bank"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
}

func TestRefreshPrices(t *testing.T) {
	repo := storage.NewMemoryRepository(logger.Nop())
	repo.Seed(
		&contracts.StockRecord{Symbol: "TCS", DataQualityScore: 90, Metrics: contracts.Metrics{contracts.ColMarketCap: 1e13, contracts.ColPE: 30}},
		&contracts.StockRecord{Symbol: "GONE", DataQualityScore: 90, Metrics: contracts.Metrics{contracts.ColMarketCap: 1e12}},
		&contracts.StockRecord{Symbol: "NEW", Metrics: contracts.Metrics{}},
	)
	fetcher := newStubFetcher(map[string]contracts.FieldBag{
		"TCS": {contracts.FieldCurrentPrice: 4100.0, contracts.FieldDayChange: -1.5, contracts.FieldPE: 99.0},
	})
	o := newTestOrchestrator(t, repo, fetcher)

	result, err := o.RefreshPrices(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Selected, "placeholders are not price-refreshed")
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Failed)

	rec, _ := repo.GetBySymbol(context.Background(), "TCS")
	assert.Equal(t, 4100.0, rec.Metrics[contracts.ColCurrentPrice])
	assert.Equal(t, -1.5, rec.Metrics[contracts.ColDayChange])
	assert.Equal(t, 30.0, rec.Metrics[contracts.ColPE], "non-price fields untouched")
	assert.Equal(t, 90, rec.DataQualityScore)
}

func TestRefreshPricesThenEnrichBatch_SharedCache(t *testing.T) {
	repo := storage.NewMemoryRepository(logger.Nop())
	old := testNow.Add(-30 * 24 * time.Hour)
	repo.Seed(&contracts.StockRecord{
		Symbol:           "TCS",
		DataQualityScore: 100,
		DataSources:      "NSE,ScreenerIn",
		LastUpdated:      &old,
		Metrics:          contracts.Metrics{contracts.ColMarketCap: 1.4e13, contracts.ColPE: 12},
	})

	prices := newStubFetcher(map[string]contracts.FieldBag{
		"TCS": {
			contracts.FieldCurrentPrice: 3950.0,
			contracts.FieldDayChange:    0.8,
			contracts.FieldWeek52High:   4000.0,
			contracts.FieldWeek52Low:    3000.0,
			contracts.FieldVolume:       1.2e6,
		},
	})
	prices.name = "NSE"
	fundamentals := newStubFetcher(map[string]contracts.FieldBag{"TCS": completeBag()})
	fundamentals.name = "ScreenerIn"

	svc := fusion.NewService(fusion.NewRegistry(prices, fundamentals), logger.Nop(),
		fusion.WithDelay(0), fusion.WithSymbolDelay(0),
		fusion.WithCache(fusion.NewMemoryCache(15*time.Minute)),
		fusion.WithClock(func() time.Time { return testNow }),
	)
	cfg := DefaultConfig()
	cfg.RatePerSecond = 0
	o := NewOrchestrator(repo, svc, scoring.NewCalculator(logger.Nop()), cfg, logger.Nop(),
		WithClock(func() time.Time { return testNow }))

	_, err := o.RefreshPrices(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 0, fundamentals.callCount("TCS"), "price refresh stops after the price source")

	result, err := o.EnrichBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Enriched)
	assert.Equal(t, 1, fundamentals.callCount("TCS"), "a price-only result is not reused for enrichment")

	rec, err := repo.GetBySymbol(context.Background(), "TCS")
	require.NoError(t, err)
	assert.Equal(t, 100, rec.DataQualityScore)
	assert.Equal(t, "NSE,ScreenerIn", rec.DataSources)
	assert.Equal(t, 3950.0, rec.Metrics[contracts.ColCurrentPrice])
}

func TestDeriveRatios(t *testing.T) {
	tests := []struct {
		name string
		in   contracts.Metrics
		want contracts.Metrics
	}{
		{
			name: "both ratios",
			in: contracts.Metrics{
				contracts.ColTotalDebt: 50, contracts.ColEquity: 200,
				contracts.ColCurrentAssets: 30, contracts.ColCurrentLiab: 20,
			},
			want: contracts.Metrics{contracts.ColDebtToEquity: 0.25, contracts.ColCurrentRatio: 1.5},
		},
		{
			name: "zero denominator",
			in:   contracts.Metrics{contracts.ColTotalDebt: 50, contracts.ColEquity: 0},
			want: contracts.Metrics{},
		},
		{
			name: "missing operand",
			in:   contracts.Metrics{contracts.ColCurrentAssets: 30},
			want: contracts.Metrics{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveRatios(tt.in))
		})
	}
}

func TestToMetrics(t *testing.T) {
	got := ToMetrics(contracts.FieldBag{
		contracts.FieldPE:            15.0,
		contracts.FieldProfitMargin:  12.5,
		contracts.FieldDividendYield: 0.0,
		contracts.FieldRSI:           62.0,
		contracts.FieldMonthChange:   4.5,
		contracts.KeyQualityScore:    80,
		"unmapped":                   1.0,
	})
	assert.Equal(t, contracts.Metrics{
		contracts.ColPE:          15,
		contracts.ColNetMargin:   12.5,
		contracts.ColRSI:         62,
		contracts.ColMonthChange: 4.5,
	}, got)
}
