package enrichment

import (
	"context"
	"fmt"

	"github.com/wonny/stockfusion/internal/contracts"
)

// PopulateResult summarizes a Populate run
type PopulateResult struct {
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Populate upserts identity-only records. New symbols become placeholders (quality 0).
func (o *Orchestrator) Populate(ctx context.Context, ids []contracts.StockIdentity) (*PopulateResult, error) {
	result := &PopulateResult{}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		id.Symbol = contracts.NormalizeSymbol(id.Symbol)
		if err := o.validate.Struct(id); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%q: %v", id.Name, err))
			continue
		}

		inserted, err := o.repo.UpsertIdentity(ctx, id)
		if err != nil {
			o.logger.WithError(err).WithField("symbol", id.Symbol).Error("Failed to upsert stock")
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id.Symbol, err))
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	o.logger.WithFields(map[string]interface{}{
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"failed":   result.Failed,
	}).Info("Populate completed")

	if o.indexer != nil {
		if err := o.rebuildIndex(ctx); err != nil {
			o.logger.WithError(err).Warn("Failed to rebuild search index")
		}
	}
	return result, nil
}

// PopulateFromProvider reads the provider's list, then populates
func (o *Orchestrator) PopulateFromProvider(ctx context.Context, provider contracts.StockListProvider) (*PopulateResult, error) {
	ids, err := provider.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stocks from %s: %w", provider.Name(), err)
	}

	o.logger.WithFields(map[string]interface{}{
		"provider": provider.Name(),
		"count":    len(ids),
	}).Info("Loaded stock list")

	return o.Populate(ctx, ids)
}

func (o *Orchestrator) rebuildIndex(ctx context.Context) error {
	ids, err := o.repo.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}
	return o.indexer.Rebuild(ctx, ids)
}
