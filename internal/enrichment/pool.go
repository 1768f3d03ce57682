package enrichment

import (
	"context"
	"sync"

	"github.com/wonny/stockfusion/internal/contracts"
)

// outcome is one worker's result for one stock
type outcome struct {
	record  *contracts.StockRecord
	status  string
	quality int
	sources []string
	reason  string
	prices  contracts.Metrics
}

// runPool fans records out to cfg.Workers workers. Every call to work first takes a
// token from the shared limiter. Cancellation stops dispatching; records never handed
// to a worker produce no outcome. collect runs on the calling goroutine.
func (o *Orchestrator) runPool(ctx context.Context, records []*contracts.StockRecord, work func(context.Context, *contracts.StockRecord) outcome, collect func(outcome)) {
	jobs := make(chan *contracts.StockRecord)
	results := make(chan outcome, o.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for rec := range jobs {
				if err := o.limiter.Wait(ctx); err != nil {
					results <- outcome{record: rec, status: StatusSkipped, reason: err.Error()}
					continue
				}
				out := work(ctx, rec)
				o.logger.WithFields(map[string]interface{}{
					"worker": workerID,
					"symbol": rec.Symbol,
					"status": out.status,
				}).Debug("Processed stock")
				results <- out
			}
		}(i)
	}

	go func() {
		defer close(jobs)
		for _, rec := range records {
			select {
			case <-ctx.Done():
				return
			case jobs <- rec:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for out := range results {
		collect(out)
	}
}
