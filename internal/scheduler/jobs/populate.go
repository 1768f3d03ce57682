package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/logger"
)

// PopulateWeeklyJob reloads the stock universe from the inbound list
// ⭐ SSOT: 유니버스 갱신 스케줄은 이 Job에서만
type PopulateWeeklyJob struct {
	enricher Enricher
	provider contracts.StockListProvider
	schedule string
	logger   *logger.Logger
}

// NewPopulateWeeklyJob creates the populate job
func NewPopulateWeeklyJob(e Enricher, provider contracts.StockListProvider, schedule string, log *logger.Logger) *PopulateWeeklyJob {
	return &PopulateWeeklyJob{
		enricher: e,
		provider: provider,
		schedule: schedule,
		logger:   log.Module("jobs"),
	}
}

func (j *PopulateWeeklyJob) Name() string     { return "populate_weekly" }
func (j *PopulateWeeklyJob) Schedule() string { return j.schedule }

func (j *PopulateWeeklyJob) Run(ctx context.Context) error {
	res, err := j.enricher.PopulateFromProvider(ctx, j.provider)
	if err != nil {
		return fmt.Errorf("populate: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"job":      j.Name(),
		"provider": j.provider.Name(),
		"inserted": res.Inserted,
		"updated":  res.Updated,
		"failed":   res.Failed,
	}).Info("Universe populated")
	return nil
}
