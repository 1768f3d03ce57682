package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/stockfusion/internal/contracts"
)

// Failure is one stock that could not be enriched
type Failure struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// BatchResult summarizes an EnrichBatch run
type BatchResult struct {
	RunID                   string        `json:"run_id"`
	Selected                int           `json:"selected"`
	Enriched                int           `json:"enriched"`
	Failed                  int           `json:"failed"`
	Skipped                 int           `json:"skipped"`
	RelativeStrengthUpdated int           `json:"relative_strength_updated"`
	Duration                time.Duration `json:"duration"`
	Failures                []Failure     `json:"failures,omitempty"`
}

// EnrichBatch refreshes stale records, largest market cap first, then re-ranks the
// whole universe. maxStocks <= 0 means no cap.
//
// Each record is fused, scored and written in one update. A zero-quality fusion is
// a failure and leaves the stored record untouched. On cancellation the records not
// yet handed to a worker are counted as skipped and the relative-strength pass is not run.
func (o *Orchestrator) EnrichBatch(ctx context.Context, maxStocks int) (*BatchResult, error) {
	start := o.now()
	result := &BatchResult{RunID: uuid.NewString()}
	log := o.logger.WithField("run_id", result.RunID)

	records, err := o.repo.SelectForEnrichment(ctx, contracts.EnrichmentCriteria{
		AcceptQuality: o.cfg.AcceptQuality,
		StaleBefore:   start.Add(-o.cfg.FreshnessWindow),
		Limit:         maxStocks,
	})
	if err != nil {
		return nil, fmt.Errorf("select stocks for enrichment: %w", err)
	}
	result.Selected = len(records)

	log.WithFields(map[string]interface{}{
		"selected": result.Selected,
		"workers":  o.cfg.Workers,
	}).Info("Starting enrichment batch")

	processed := 0
	o.runPool(ctx, records, o.enrichOne, func(out outcome) {
		processed++
		switch out.status {
		case StatusEnriched:
			result.Enriched++
		case StatusFailed:
			result.Failed++
			result.Failures = append(result.Failures, Failure{Symbol: out.record.Symbol, Reason: out.reason})
		default:
			result.Skipped++
		}
		o.metrics.EnrichOutcome(out.status)
		o.progress.Publish(ProgressEvent{
			RunID:     result.RunID,
			Kind:      "enrich",
			Symbol:    out.record.Symbol,
			Status:    out.status,
			Quality:   out.quality,
			Sources:   out.sources,
			Reason:    out.reason,
			Processed: processed,
			Total:     result.Selected,
			Time:      o.now(),
		})
	})
	notDispatched := result.Selected - processed
	result.Skipped += notDispatched
	for i := 0; i < notDispatched; i++ {
		o.metrics.EnrichOutcome(StatusSkipped)
	}

	if ctx.Err() == nil {
		ranked, err := o.RunRelativeStrength(ctx)
		if err != nil {
			log.WithError(err).Error("Relative strength pass failed")
		}
		result.RelativeStrengthUpdated = ranked
	}

	result.Duration = o.now().Sub(start)
	o.progress.Publish(ProgressEvent{
		RunID:     result.RunID,
		Kind:      "enrich",
		Status:    StatusDone,
		Processed: processed,
		Total:     result.Selected,
		Time:      o.now(),
	})

	log.WithFields(map[string]interface{}{
		"selected": result.Selected,
		"enriched": result.Enriched,
		"failed":   result.Failed,
		"skipped":  result.Skipped,
		"ranked":   result.RelativeStrengthUpdated,
		"duration": result.Duration.String(),
	}).Info("Enrichment batch completed")

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("enrichment batch interrupted: %w", err)
	}
	return result, nil
}

// EnrichSymbol enriches one stock regardless of staleness
func (o *Orchestrator) EnrichSymbol(ctx context.Context, symbol string) (*contracts.StockRecord, error) {
	rec, err := o.repo.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := o.enrichOne(ctx, rec)
	o.metrics.EnrichOutcome(out.status)
	if out.status != StatusEnriched {
		return nil, fmt.Errorf("enrich %s: %s", rec.Symbol, out.reason)
	}
	return o.repo.GetBySymbol(ctx, symbol)
}

// enrichOne builds the complete update for one record, then writes it once
func (o *Orchestrator) enrichOne(ctx context.Context, rec *contracts.StockRecord) outcome {
	bag, report := o.fuser.FetchStockData(ctx, rec.Symbol, o.cfg.RequiredFields)
	if report.Score == 0 {
		if err := ctx.Err(); err != nil {
			return outcome{record: rec, status: StatusSkipped, reason: err.Error()}
		}
		return outcome{record: rec, status: StatusFailed, reason: "no source returned data"}
	}

	update := o.buildUpdate(rec, bag, report)
	if err := o.repo.ApplyEnrichment(ctx, update); err != nil {
		o.logger.WithError(err).WithField("symbol", rec.Symbol).Error("Failed to save enrichment")
		return outcome{record: rec, status: StatusFailed, quality: report.Score, reason: err.Error()}
	}

	return outcome{
		record:  rec,
		status:  StatusEnriched,
		quality: report.Score,
		sources: report.SourcesUsed,
	}
}

// buildUpdate merges fresh fields over the stored ones, derives ratios and scores
// the merged view. The returned value is self-contained.
func (o *Orchestrator) buildUpdate(rec *contracts.StockRecord, bag contracts.FieldBag, report contracts.QualityReport) contracts.EnrichmentUpdate {
	fresh := ToMetrics(bag)
	merged := rec.Metrics.Overlay(fresh)

	derived := DeriveRatios(merged)
	merged = merged.Overlay(derived)

	scores := o.scorer.Calculate(rec.Symbol, merged)

	write := fresh.Overlay(derived).Overlay(scores.Metrics())
	sources := append([]string(nil), report.SourcesUsed...)

	return contracts.EnrichmentUpdate{
		StockID:      rec.ID,
		Symbol:       rec.Symbol,
		Metrics:      write,
		QualityScore: report.Score,
		Sources:      sources,
		UpdatedAt:    o.now(),
	}
}
