package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/logger"
)

// DefaultLimit caps Search results when the caller passes 0
const DefaultLimit = 20

// Hit is one search result
type Hit struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Sector   string  `json:"sector,omitempty"`
	Industry string  `json:"industry,omitempty"`
	Score    float64 `json:"score"`
}

// document is what gets indexed per stock
type document struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

// Index is an in-memory full-text index over stock identities.
// Rebuild swaps in a fresh index so searches never see a half-built one.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	size   int
	logger *logger.Logger
}

// NewIndex creates an empty index
func NewIndex(log *logger.Logger) (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	return &Index{
		index:  idx,
		logger: log.Module("search"),
	}, nil
}

func buildMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	// symbol is matched as a single lowercase token
	symbol := bleve.NewTextFieldMapping()
	symbol.Analyzer = "keyword"
	symbol.Store = true
	doc.AddFieldMappingsAt("symbol", symbol)

	text := bleve.NewTextFieldMapping()
	text.Store = true
	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("sector", text)
	doc.AddFieldMappingsAt("industry", text)

	indexMapping.DefaultMapping = doc
	return indexMapping
}

// Rebuild replaces the index content with ids
func (i *Index) Rebuild(ctx context.Context, ids []contracts.StockIdentity) error {
	fresh, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return fmt.Errorf("create search index: %w", err)
	}

	batch := fresh.NewBatch()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			fresh.Close()
			return err
		}
		doc := document{
			Symbol:   strings.ToLower(id.Symbol),
			Name:     id.Name,
			Sector:   id.Sector,
			Industry: id.Industry,
		}
		if err := batch.Index(id.Symbol, doc); err != nil {
			fresh.Close()
			return fmt.Errorf("index %s: %w", id.Symbol, err)
		}
	}
	if err := fresh.Batch(batch); err != nil {
		fresh.Close()
		return fmt.Errorf("commit search batch: %w", err)
	}

	i.mu.Lock()
	old := i.index
	i.index = fresh
	i.size = len(ids)
	i.mu.Unlock()

	if old != nil {
		old.Close()
	}

	i.logger.WithField("documents", len(ids)).Info("Search index rebuilt")
	return nil
}

// Size returns the number of indexed stocks
func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.size
}

// Search ranks exact symbol > symbol prefix > name match > sector/industry match
func (i *Index) Search(ctx context.Context, q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	lower := strings.ToLower(q)

	exact := bleve.NewTermQuery(lower)
	exact.SetField("symbol")
	exact.SetBoost(10)

	prefix := bleve.NewPrefixQuery(lower)
	prefix.SetField("symbol")
	prefix.SetBoost(5)

	name := bleve.NewMatchQuery(q)
	name.SetField("name")
	name.SetBoost(3)

	namePrefix := bleve.NewPrefixQuery(lower)
	namePrefix.SetField("name")
	namePrefix.SetBoost(2)

	sector := bleve.NewMatchQuery(q)
	sector.SetField("sector")

	industry := bleve.NewMatchQuery(q)
	industry.SetField("industry")

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(exact, prefix, name, namePrefix, sector, industry), limit, 0, false)
	req.Fields = []string{"symbol", "name", "sector", "industry"}

	i.mu.RLock()
	res, err := i.index.SearchInContext(ctx, req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{
			Symbol:   h.ID,
			Name:     stringField(h.Fields, "name"),
			Sector:   stringField(h.Fields, "sector"),
			Industry: stringField(h.Fields, "industry"),
			Score:    h.Score,
		})
	}
	return hits, nil
}

// Close releases the index
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
