package enrichment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/internal/scoring"
)

// RankPercentiles assigns each stock its 1-year-return percentile (0-99).
// The best performer gets 99, the worst 0; a lone stock gets 50.
// Equal returns are ordered by stock id so the result is deterministic.
func RankPercentiles(points []contracts.ReturnPoint) []contracts.Percentile {
	n := len(points)
	if n == 0 {
		return nil
	}

	ranked := make([]contracts.ReturnPoint, n)
	copy(ranked, points)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Return != ranked[j].Return {
			return ranked[i].Return > ranked[j].Return
		}
		return ranked[i].StockID < ranked[j].StockID
	})

	out := make([]contracts.Percentile, n)
	if n == 1 {
		out[0] = contracts.Percentile{StockID: ranked[0].StockID, Value: 50}
		return out
	}
	for rank, p := range ranked {
		out[rank] = contracts.Percentile{
			StockID: p.StockID,
			Value:   (n - 1 - rank) * 99 / (n - 1),
		}
	}
	return out
}

// RunRelativeStrength ranks the whole universe, rescores momentum against the
// fresh percentiles and bulk-writes both. It returns the number of stocks ranked.
func (o *Orchestrator) RunRelativeStrength(ctx context.Context) (int, error) {
	start := time.Now()

	points, err := o.repo.ListOneYearReturns(ctx)
	if err != nil {
		return 0, fmt.Errorf("list returns: %w", err)
	}

	percentiles := RankPercentiles(points)
	rescoreMomentum(points, percentiles)
	if err := o.repo.SaveRelativeStrength(ctx, percentiles); err != nil {
		return 0, fmt.Errorf("save relative strength: %w", err)
	}

	o.metrics.ObserveRSPass(time.Since(start))
	o.logger.WithFields(map[string]interface{}{
		"ranked":   len(percentiles),
		"duration": time.Since(start).String(),
	}).Info("Relative strength pass completed")

	return len(percentiles), nil
}

// rescoreMomentum fills each percentile's momentum score from its stock's
// price inputs and the new percentile
func rescoreMomentum(points []contracts.ReturnPoint, percentiles []contracts.Percentile) {
	byID := make(map[int64]contracts.ReturnPoint, len(points))
	for _, p := range points {
		byID[p.StockID] = p
	}
	for i := range percentiles {
		p := byID[percentiles[i].StockID]
		m := p.Metrics.Overlay(contracts.Metrics{
			contracts.ColYear1Change:      p.Return,
			contracts.ColRelStrengthScore: float64(percentiles[i].Value),
		})
		percentiles[i].Momentum = scoring.Momentum(m)
	}
}
