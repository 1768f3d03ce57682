package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/internal/enrichment"
	"github.com/wonny/stockfusion/pkg/logger"
)

// Enricher is the part of the enrichment orchestrator the jobs drive
type Enricher interface {
	EnrichBatch(ctx context.Context, maxStocks int) (*enrichment.BatchResult, error)
	RefreshPrices(ctx context.Context, limit int) (*enrichment.PriceRefreshResult, error)
	RunRelativeStrength(ctx context.Context) (int, error)
	PopulateFromProvider(ctx context.Context, provider contracts.StockListProvider) (*enrichment.PopulateResult, error)
}

// EnrichDailyJob refreshes stale stocks after market close
// ⭐ SSOT: 일일 보강 스케줄은 이 Job에서만
type EnrichDailyJob struct {
	enricher  Enricher
	schedule  string
	maxStocks int
	logger    *logger.Logger
}

// NewEnrichDailyJob creates the daily enrichment job. maxStocks <= 0 means no cap.
func NewEnrichDailyJob(e Enricher, schedule string, maxStocks int, log *logger.Logger) *EnrichDailyJob {
	return &EnrichDailyJob{
		enricher:  e,
		schedule:  schedule,
		maxStocks: maxStocks,
		logger:    log.Module("jobs"),
	}
}

func (j *EnrichDailyJob) Name() string     { return "enrich_daily" }
func (j *EnrichDailyJob) Schedule() string { return j.schedule }

// Run enriches one batch. Per-stock failures are part of the summary, not job errors.
func (j *EnrichDailyJob) Run(ctx context.Context) error {
	res, err := j.enricher.EnrichBatch(ctx, j.maxStocks)
	if err != nil {
		return fmt.Errorf("enrich batch: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"job":      j.Name(),
		"run_id":   res.RunID,
		"selected": res.Selected,
		"enriched": res.Enriched,
		"failed":   res.Failed,
		"skipped":  res.Skipped,
		"duration": res.Duration,
	}).Info("Scheduled enrichment finished")
	return nil
}

// PricesIntradayJob refreshes price columns of the largest stocks during market hours
type PricesIntradayJob struct {
	enricher Enricher
	schedule string
	limit    int
	logger   *logger.Logger
}

// NewPricesIntradayJob creates the intraday price job
func NewPricesIntradayJob(e Enricher, schedule string, limit int, log *logger.Logger) *PricesIntradayJob {
	return &PricesIntradayJob{
		enricher: e,
		schedule: schedule,
		limit:    limit,
		logger:   log.Module("jobs"),
	}
}

func (j *PricesIntradayJob) Name() string     { return "prices_intraday" }
func (j *PricesIntradayJob) Schedule() string { return j.schedule }

func (j *PricesIntradayJob) Run(ctx context.Context) error {
	res, err := j.enricher.RefreshPrices(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("refresh prices: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"job":      j.Name(),
		"selected": res.Selected,
		"updated":  res.Updated,
		"failed":   res.Failed,
	}).Info("Intraday prices refreshed")
	return nil
}

// RelativeStrengthJob re-ranks the whole universe by 1-year return
type RelativeStrengthJob struct {
	enricher Enricher
	schedule string
	logger   *logger.Logger
}

// NewRelativeStrengthJob creates the relative-strength job
func NewRelativeStrengthJob(e Enricher, schedule string, log *logger.Logger) *RelativeStrengthJob {
	return &RelativeStrengthJob{
		enricher: e,
		schedule: schedule,
		logger:   log.Module("jobs"),
	}
}

func (j *RelativeStrengthJob) Name() string     { return "relative_strength" }
func (j *RelativeStrengthJob) Schedule() string { return j.schedule }

func (j *RelativeStrengthJob) Run(ctx context.Context) error {
	n, err := j.enricher.RunRelativeStrength(ctx)
	if err != nil {
		return fmt.Errorf("relative strength: %w", err)
	}
	j.logger.WithFields(map[string]interface{}{"job": j.Name(), "ranked": n}).Info("Relative strength updated")
	return nil
}
