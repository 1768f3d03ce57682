package enrichment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wonny/stockfusion/internal/contracts"
)

// priceColumns are the only columns an intraday refresh writes
var priceColumns = map[string]bool{
	contracts.ColCurrentPrice: true,
	contracts.ColDayChange:    true,
	contracts.ColWeek52High:   true,
	contracts.ColWeek52Low:    true,
	contracts.ColVolume:       true,
}

// PriceRefreshResult summarizes a RefreshPrices run
type PriceRefreshResult struct {
	RunID    string `json:"run_id"`
	Selected int    `json:"selected"`
	Updated  int    `json:"updated"`
	Failed   int    `json:"failed"`
}

// RefreshPrices updates price columns of the top-N stocks by market cap.
// Quality metadata is left alone.
func (o *Orchestrator) RefreshPrices(ctx context.Context, limit int) (*PriceRefreshResult, error) {
	result := &PriceRefreshResult{RunID: uuid.NewString()}

	records, err := o.repo.SelectTopByMarketCap(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("select stocks for price refresh: %w", err)
	}
	result.Selected = len(records)

	var updates []contracts.PriceUpdate
	processed := 0
	o.runPool(ctx, records, o.fetchPrices, func(out outcome) {
		processed++
		if out.status == StatusEnriched {
			updates = append(updates, contracts.PriceUpdate{
				StockID: out.record.ID,
				Symbol:  out.record.Symbol,
				Metrics: out.prices,
			})
		} else {
			result.Failed++
		}
		o.progress.Publish(ProgressEvent{
			RunID:     result.RunID,
			Kind:      "prices",
			Symbol:    out.record.Symbol,
			Status:    out.status,
			Processed: processed,
			Total:     result.Selected,
			Time:      o.now(),
		})
	})

	if err := o.repo.UpdatePrices(ctx, updates); err != nil {
		return result, fmt.Errorf("save prices: %w", err)
	}
	result.Updated = len(updates)

	o.logger.WithFields(map[string]interface{}{
		"run_id":   result.RunID,
		"selected": result.Selected,
		"updated":  result.Updated,
		"failed":   result.Failed,
	}).Info("Price refresh completed")

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("price refresh interrupted: %w", err)
	}
	return result, nil
}

func (o *Orchestrator) fetchPrices(ctx context.Context, rec *contracts.StockRecord) outcome {
	bag, _ := o.fuser.FetchStockData(ctx, rec.Symbol, contracts.PriceFields)

	prices := contracts.Metrics{}
	for col, v := range ToMetrics(bag) {
		if priceColumns[col] {
			prices[col] = v
		}
	}
	if len(prices) == 0 {
		return outcome{record: rec, status: StatusFailed, reason: "no price data"}
	}
	return outcome{record: rec, status: StatusEnriched, prices: prices}
}
