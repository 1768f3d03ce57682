package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockfusion/internal/contracts"
)

var suiteNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type seedStock struct {
	symbol  string
	sector  string
	quality int
	updated time.Time
	metrics contracts.Metrics
}

// seedUniverse goes through the public write path so both backends see identical data
func seedUniverse(t *testing.T, repo contracts.StockRepository, stocks []seedStock) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	ids := map[string]int64{}

	for _, s := range stocks {
		inserted, err := repo.UpsertIdentity(ctx, contracts.StockIdentity{Symbol: s.symbol, Name: s.symbol + " Ltd", Sector: s.sector})
		require.NoError(t, err)
		require.True(t, inserted)

		rec, err := repo.GetBySymbol(ctx, s.symbol)
		require.NoError(t, err)
		ids[s.symbol] = rec.ID

		if s.quality == 0 {
			continue
		}
		require.NoError(t, repo.ApplyEnrichment(ctx, contracts.EnrichmentUpdate{
			StockID:      rec.ID,
			Symbol:       s.symbol,
			Metrics:      s.metrics,
			QualityScore: s.quality,
			Sources:      []string{"NSE", "YahooFinance"},
			UpdatedAt:    s.updated,
		}))
	}
	return ids
}

func defaultUniverse() []seedStock {
	fresh := suiteNow.Add(-time.Hour)
	old := suiteNow.Add(-10 * 24 * time.Hour)
	return []seedStock{
		{"BIG", "IT", 90, fresh, contracts.Metrics{contracts.ColMarketCap: 9e12, contracts.ColPE: 28, contracts.ColROE: 40, contracts.ColYear1Change: 12}},
		{"MID", "Banks", 70, fresh, contracts.Metrics{contracts.ColMarketCap: 5e11, contracts.ColPE: 12, contracts.ColROE: 16, contracts.ColYear1Change: -4}},
		{"OLD", "IT", 85, old, contracts.Metrics{contracts.ColMarketCap: 1e11, contracts.ColPE: 18, contracts.ColYear1Change: 30}},
		{"JUNK", "Metals", 20, fresh, contracts.Metrics{contracts.ColMarketCap: 2e12, contracts.ColPE: 5, contracts.ColROE: 50}},
		{"NEW", "", 0, time.Time{}, nil},
	}
}

func runRepositorySuite(t *testing.T, newRepo func(t *testing.T) contracts.StockRepository) {
	ctx := context.Background()

	t.Run("upsert identity updates existing", func(t *testing.T) {
		repo := newRepo(t)
		seedUniverse(t, repo, defaultUniverse())

		inserted, err := repo.UpsertIdentity(ctx, contracts.StockIdentity{Symbol: "big.ns", Name: "Big Corp", Sector: "Software"})
		require.NoError(t, err)
		assert.False(t, inserted)

		rec, err := repo.GetBySymbol(ctx, "BIG")
		require.NoError(t, err)
		assert.Equal(t, "Big Corp", rec.Name)
		assert.Equal(t, "Software", rec.Sector)
		assert.Equal(t, 90, rec.DataQualityScore, "identity upsert keeps quality metadata")

		ids, err := repo.ListIdentities(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, 5)
	})

	t.Run("get missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetBySymbol(ctx, "NOPE")
		assert.True(t, errors.Is(err, contracts.ErrNotFound))
	})

	t.Run("select for enrichment", func(t *testing.T) {
		repo := newRepo(t)
		seedUniverse(t, repo, defaultUniverse())

		got, err := repo.SelectForEnrichment(ctx, contracts.EnrichmentCriteria{
			AcceptQuality: 80,
			StaleBefore:   suiteNow.Add(-7 * 24 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"JUNK", "MID", "OLD", "NEW"}, symbols(got), "largest market cap first, nulls last")

		capped, err := repo.SelectForEnrichment(ctx, contracts.EnrichmentCriteria{
			AcceptQuality: 80,
			StaleBefore:   suiteNow.Add(-7 * 24 * time.Hour),
			Limit:         2,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"JUNK", "MID"}, symbols(capped))
	})

	t.Run("apply enrichment overlays metrics", func(t *testing.T) {
		repo := newRepo(t)
		ids := seedUniverse(t, repo, defaultUniverse())

		err := repo.ApplyEnrichment(ctx, contracts.EnrichmentUpdate{
			StockID:      ids["MID"],
			Symbol:       "MID",
			Metrics:      contracts.Metrics{contracts.ColPE: 11, contracts.ColDebtToEquity: 0.3},
			QualityScore: 88,
			Sources:      []string{"screener.in"},
			UpdatedAt:    suiteNow,
		})
		require.NoError(t, err)

		rec, err := repo.GetBySymbol(ctx, "MID")
		require.NoError(t, err)
		assert.Equal(t, 11.0, rec.Metrics[contracts.ColPE])
		assert.Equal(t, 16.0, rec.Metrics[contracts.ColROE], "absent keys leave columns unchanged")
		assert.Equal(t, 0.3, rec.Metrics[contracts.ColDebtToEquity])
		assert.Equal(t, 88, rec.DataQualityScore)
		assert.Equal(t, "screener.in", rec.DataSources)
		require.NotNil(t, rec.LastUpdated)
		assert.True(t, rec.LastUpdated.Equal(suiteNow))

		err = repo.ApplyEnrichment(ctx, contracts.EnrichmentUpdate{StockID: 99999, Symbol: "GHOST", QualityScore: 50, UpdatedAt: suiteNow})
		assert.True(t, errors.Is(err, contracts.ErrNotFound))
	})

	t.Run("update prices leaves quality alone", func(t *testing.T) {
		repo := newRepo(t)
		ids := seedUniverse(t, repo, defaultUniverse())

		err := repo.UpdatePrices(ctx, []contracts.PriceUpdate{
			{StockID: ids["BIG"], Symbol: "BIG", Metrics: contracts.Metrics{contracts.ColCurrentPrice: 3900, contracts.ColDayChange: 1.2}},
		})
		require.NoError(t, err)

		rec, err := repo.GetBySymbol(ctx, "BIG")
		require.NoError(t, err)
		assert.Equal(t, 3900.0, rec.Metrics[contracts.ColCurrentPrice])
		assert.Equal(t, 28.0, rec.Metrics[contracts.ColPE])
		assert.Equal(t, 90, rec.DataQualityScore)
	})

	t.Run("relative strength round trip", func(t *testing.T) {
		repo := newRepo(t)
		ids := seedUniverse(t, repo, defaultUniverse())

		returns, err := repo.ListOneYearReturns(ctx)
		require.NoError(t, err)
		assert.Len(t, returns, 3, "only non-null returns")

		require.NoError(t, repo.SaveRelativeStrength(ctx, []contracts.Percentile{
			{StockID: ids["OLD"], Value: 99, Momentum: 79},
			{StockID: ids["BIG"], Value: 49, Momentum: 19},
			{StockID: ids["MID"], Value: 0, Momentum: 0},
		}))

		rec, err := repo.GetBySymbol(ctx, "OLD")
		require.NoError(t, err)
		assert.Equal(t, 99.0, rec.Metrics[contracts.ColRelStrengthScore])
		assert.Equal(t, 79.0, rec.Metrics[contracts.ColMomentumScore])
	})

	t.Run("query applies floor, logic, sort and limit", func(t *testing.T) {
		repo := newRepo(t)
		seedUniverse(t, repo, defaultUniverse())

		pe := contracts.Condition{Column: contracts.ColPE, Op: contracts.OpLT, Num: 20}
		roe := contracts.Condition{Column: contracts.ColROE, Op: contracts.OpGTE, Num: 15}

		and, total, err := repo.Query(ctx, contracts.ScreenQuery{
			Conditions: []contracts.Condition{pe, roe},
			Logic:      contracts.LogicAnd,
			MinQuality: 30,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"MID"}, symbols(and))
		assert.Equal(t, 1, total)

		or, total, err := repo.Query(ctx, contracts.ScreenQuery{
			Conditions: []contracts.Condition{pe, roe},
			Logic:      contracts.LogicOr,
			SortColumn: contracts.ColPE,
			MinQuality: 30,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"MID", "OLD", "BIG"}, symbols(or))
		assert.Equal(t, 3, total)
		assert.NotContains(t, symbols(or), "JUNK", "quality floor")

		limited, total, err := repo.Query(ctx, contracts.ScreenQuery{
			Conditions: []contracts.Condition{pe, roe},
			Logic:      contracts.LogicOr,
			SortColumn: contracts.ColMarketCap,
			SortDesc:   true,
			Limit:      1,
			MinQuality: 30,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"BIG"}, symbols(limited))
		assert.Equal(t, 3, total, "total ignores limit")
	})

	t.Run("text operators", func(t *testing.T) {
		repo := newRepo(t)
		seedUniverse(t, repo, defaultUniverse())

		tests := []struct {
			cond contracts.Condition
			want []string
		}{
			{contracts.Condition{Column: contracts.ColSector, IsText: true, Op: contracts.OpEQ, Text: "IT"}, []string{"BIG", "OLD"}},
			{contracts.Condition{Column: contracts.ColSector, IsText: true, Op: contracts.OpContains, Text: "ban"}, []string{"MID"}},
			{contracts.Condition{Column: contracts.ColSector, IsText: true, Op: contracts.OpNotIn, Texts: []string{"IT"}}, []string{"MID"}},
			{contracts.Condition{Column: contracts.ColSymbol, IsText: true, Op: contracts.OpIn, Texts: []string{"OLD", "JUNK"}}, []string{"OLD"}},
		}
		for _, tt := range tests {
			got, _, err := repo.Query(ctx, contracts.ScreenQuery{
				Conditions: []contracts.Condition{tt.cond},
				Logic:      contracts.LogicAnd,
				SortColumn: contracts.ColSymbol,
				MinQuality: 30,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, symbols(got), "%s %s", tt.cond.Op, tt.cond.Column)
		}
	})

	t.Run("aggregates", func(t *testing.T) {
		repo := newRepo(t)
		seedUniverse(t, repo, defaultUniverse())

		eligible, err := repo.CountEligible(ctx, 30)
		require.NoError(t, err)
		assert.Equal(t, 3, eligible)

		fs, err := repo.FieldStats(ctx, contracts.ColPE, 30)
		require.NoError(t, err)
		assert.Equal(t, 3, fs.Count)
		assert.Equal(t, 12.0, fs.Min)
		assert.Equal(t, 28.0, fs.Max)
		assert.InDelta(t, 19.333, fs.Mean, 0.001)

		stats, err := repo.Stats(ctx, 30, 80)
		require.NoError(t, err)
		assert.Equal(t, 5, stats.TotalStocks)
		assert.Equal(t, 2, stats.HighQualityStocks)
		assert.Equal(t, 3, stats.EligibleStocks)
		assert.Equal(t, 66.3, stats.AvgQuality)
		require.NotEmpty(t, stats.TopSectors)
		assert.Equal(t, contracts.SectorCount{Sector: "IT", Count: 2}, stats.TopSectors[0])
		require.NotNil(t, stats.LastUpdated)
		assert.True(t, stats.LastUpdated.Equal(suiteNow.Add(-time.Hour)))
	})
}

func symbols(records []*contracts.StockRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Symbol)
	}
	return out
}
