package jobs

import (
	"fmt"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/internal/scheduler"
	"github.com/wonny/stockfusion/pkg/config"
	"github.com/wonny/stockfusion/pkg/logger"
)

// RegisterAll adds every pipeline job to s using the configured schedules.
// An empty schedule disables that job.
func RegisterAll(s *scheduler.Scheduler, e Enricher, provider contracts.StockListProvider, cfg *config.Config, log *logger.Logger) error {
	all := []scheduler.Job{
		NewEnrichDailyJob(e, cfg.Schedule.EnrichDaily, cfg.Enrichment.BatchSize, log),
		NewPricesIntradayJob(e, cfg.Schedule.PricesIntraday, cfg.Enrichment.PriceBatchSize, log),
		NewPopulateWeeklyJob(e, provider, cfg.Schedule.PopulateWeekly, log),
		NewRelativeStrengthJob(e, cfg.Schedule.RelativeStrength, log),
	}

	for _, job := range all {
		if job.Schedule() == "" {
			log.WithField("job", job.Name()).Info("Job disabled (no schedule)")
			continue
		}
		if err := s.AddJob(job); err != nil {
			return fmt.Errorf("register %s: %w", job.Name(), err)
		}
	}
	return nil
}
