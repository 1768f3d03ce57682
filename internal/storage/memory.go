package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/logger"
)

// MemoryRepository is an in-process StockRepository.
// Used with STORAGE=memory and by tests; every read returns copies.
type MemoryRepository struct {
	mu       sync.RWMutex
	records  map[int64]*contracts.StockRecord
	bySymbol map[string]int64
	nextID   int64
	logger   *logger.Logger
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository(log *logger.Logger) *MemoryRepository {
	return &MemoryRepository{
		records:  make(map[int64]*contracts.StockRecord),
		bySymbol: make(map[string]int64),
		logger:   log.Module("storage.memory"),
	}
}

// Seed inserts complete records as is (tests, fixtures). IDs are assigned when zero.
func (r *MemoryRepository) Seed(records ...*contracts.StockRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		c := rec.Clone()
		c.Symbol = contracts.NormalizeSymbol(c.Symbol)
		if c.Metrics == nil {
			c.Metrics = contracts.Metrics{}
		}
		if id, ok := r.bySymbol[c.Symbol]; ok {
			c.ID = id
		} else if c.ID == 0 {
			r.nextID++
			c.ID = r.nextID
		} else if c.ID > r.nextID {
			r.nextID = c.ID
		}
		r.records[c.ID] = c
		r.bySymbol[c.Symbol] = c.ID
	}
	r.logger.WithField("count", len(records)).Debug("Seeded records")
}

func (r *MemoryRepository) UpsertIdentity(ctx context.Context, id contracts.StockIdentity) (bool, error) {
	symbol := contracts.NormalizeSymbol(id.Symbol)
	if symbol == "" {
		return false, fmt.Errorf("empty symbol")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.bySymbol[symbol]; ok {
		updated := r.records[existingID].Clone()
		if id.Name != "" {
			updated.Name = id.Name
		}
		if id.Sector != "" {
			updated.Sector = id.Sector
		}
		if id.Industry != "" {
			updated.Industry = id.Industry
		}
		r.records[existingID] = updated
		return false, nil
	}

	r.nextID++
	r.records[r.nextID] = &contracts.StockRecord{
		ID:       r.nextID,
		Symbol:   symbol,
		Name:     id.Name,
		Sector:   id.Sector,
		Industry: id.Industry,
		Metrics:  contracts.Metrics{},
	}
	r.bySymbol[symbol] = r.nextID
	return true, nil
}

func (r *MemoryRepository) GetBySymbol(ctx context.Context, symbol string) (*contracts.StockRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySymbol[contracts.NormalizeSymbol(symbol)]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return r.records[id].Clone(), nil
}

func (r *MemoryRepository) ListIdentities(ctx context.Context) ([]contracts.StockIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contracts.StockIdentity, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, contracts.StockIdentity{
			Symbol:   rec.Symbol,
			Name:     rec.Name,
			Sector:   rec.Sector,
			Industry: rec.Industry,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (r *MemoryRepository) SelectForEnrichment(ctx context.Context, c contracts.EnrichmentCriteria) ([]*contracts.StockRecord, error) {
	selected := r.snapshot(func(rec *contracts.StockRecord) bool {
		return rec.IsStale(c.AcceptQuality, c.StaleBefore)
	})
	SortRecords(selected, contracts.ColMarketCap, true)
	return capped(selected, c.Limit), nil
}

func (r *MemoryRepository) SelectTopByMarketCap(ctx context.Context, limit int) ([]*contracts.StockRecord, error) {
	selected := r.snapshot(func(rec *contracts.StockRecord) bool {
		return !rec.IsPlaceholder()
	})
	SortRecords(selected, contracts.ColMarketCap, true)
	return capped(selected, limit), nil
}

// ApplyEnrichment swaps in a new record value; readers never see a half-applied update
func (r *MemoryRepository) ApplyEnrichment(ctx context.Context, u contracts.EnrichmentUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.lookup(u.StockID, u.Symbol)
	if err != nil {
		return err
	}

	next := current.Clone()
	next.Metrics = current.Metrics.Overlay(numericOnly(u.Metrics))
	next.DataQualityScore = u.QualityScore
	next.DataSources = strings.Join(u.Sources, ",")
	updatedAt := u.UpdatedAt
	next.LastUpdated = &updatedAt

	r.records[next.ID] = next
	return nil
}

func (r *MemoryRepository) UpdatePrices(ctx context.Context, updates []contracts.PriceUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range updates {
		current, err := r.lookup(u.StockID, u.Symbol)
		if err != nil {
			return fmt.Errorf("update prices %s: %w", u.Symbol, err)
		}
		next := current.Clone()
		next.Metrics = current.Metrics.Overlay(numericOnly(u.Metrics))
		r.records[next.ID] = next
	}
	return nil
}

func (r *MemoryRepository) ListOneYearReturns(ctx context.Context) ([]contracts.ReturnPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contracts.ReturnPoint, 0, len(r.records))
	for _, rec := range r.records {
		if v, ok := rec.Metrics.Get(contracts.ColYear1Change); ok {
			out = append(out, contracts.ReturnPoint{
				StockID: rec.ID,
				Symbol:  rec.Symbol,
				Return:  v,
				Metrics: momentumInputs(rec.Metrics),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockID < out[j].StockID })
	return out, nil
}

func (r *MemoryRepository) SaveRelativeStrength(ctx context.Context, percentiles []contracts.Percentile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range percentiles {
		if _, ok := r.records[p.StockID]; !ok {
			return fmt.Errorf("save relative strength %d: %w", p.StockID, contracts.ErrNotFound)
		}
	}
	for _, p := range percentiles {
		next := r.records[p.StockID].Clone()
		next.Metrics[contracts.ColRelStrengthScore] = float64(p.Value)
		next.Metrics[contracts.ColMomentumScore] = float64(p.Momentum)
		r.records[p.StockID] = next
	}
	return nil
}

// momentumInputs picks the columns momentum is scored from besides the percentile
func momentumInputs(m contracts.Metrics) contracts.Metrics {
	out := contracts.Metrics{}
	for _, col := range []string{contracts.ColCurrentPrice, contracts.ColWeek52High, contracts.ColWeek52Low} {
		if v, ok := m.Get(col); ok {
			out[col] = v
		}
	}
	return out
}

func (r *MemoryRepository) Query(ctx context.Context, q contracts.ScreenQuery) ([]*contracts.StockRecord, int, error) {
	matched := r.snapshot(func(rec *contracts.StockRecord) bool {
		return rec.DataQualityScore >= q.MinQuality && MatchAll(rec, q.Conditions, q.Logic)
	})

	sortColumn := q.SortColumn
	if sortColumn == "" {
		sortColumn = contracts.ColMarketCap
	}
	SortRecords(matched, sortColumn, q.SortDesc)
	return capped(matched, q.Limit), len(matched), nil
}

func (r *MemoryRepository) CountEligible(ctx context.Context, minQuality int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.DataQualityScore >= minQuality {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) FieldStats(ctx context.Context, column string, minQuality int) (*contracts.FieldStats, error) {
	if !contracts.IsNumericColumn(column) {
		return nil, fmt.Errorf("field stats on non-numeric column %q", column)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &contracts.FieldStats{Column: column}
	sum := 0.0
	for _, rec := range r.records {
		if rec.DataQualityScore < minQuality {
			continue
		}
		v, ok := rec.Number(column)
		if !ok {
			continue
		}
		if stats.Count == 0 || v < stats.Min {
			stats.Min = v
		}
		if stats.Count == 0 || v > stats.Max {
			stats.Max = v
		}
		sum += v
		stats.Count++
	}
	if stats.Count > 0 {
		stats.Mean = sum / float64(stats.Count)
	}
	return stats, nil
}

func (r *MemoryRepository) Stats(ctx context.Context, minQuality, highQuality int) (*contracts.DatabaseStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &contracts.DatabaseStats{TotalStocks: len(r.records)}
	sectors := map[string]int{}
	qualitySum, qualityN := 0, 0

	for _, rec := range r.records {
		if rec.DataQualityScore >= highQuality {
			stats.HighQualityStocks++
		}
		if rec.DataQualityScore >= minQuality {
			stats.EligibleStocks++
		}
		if rec.DataQualityScore > 0 {
			qualitySum += rec.DataQualityScore
			qualityN++
		}
		if rec.Sector != "" {
			sectors[rec.Sector]++
		}
		if rec.LastUpdated != nil && (stats.LastUpdated == nil || rec.LastUpdated.After(*stats.LastUpdated)) {
			t := *rec.LastUpdated
			stats.LastUpdated = &t
		}
	}

	if qualityN > 0 {
		stats.AvgQuality = math.Round(float64(qualitySum)/float64(qualityN)*10) / 10
	}
	stats.TopSectors = topSectors(sectors, 10)
	return stats, nil
}

// snapshot returns clones of the records accepted by keep
func (r *MemoryRepository) snapshot(keep func(*contracts.StockRecord) bool) []*contracts.StockRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*contracts.StockRecord, 0, len(r.records))
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// lookup resolves a record by id, falling back to symbol. Caller holds the lock.
func (r *MemoryRepository) lookup(id int64, symbol string) (*contracts.StockRecord, error) {
	if rec, ok := r.records[id]; ok {
		return rec, nil
	}
	if sid, ok := r.bySymbol[contracts.NormalizeSymbol(symbol)]; ok {
		return r.records[sid], nil
	}
	return nil, contracts.ErrNotFound
}

func numericOnly(m contracts.Metrics) contracts.Metrics {
	out := make(contracts.Metrics, len(m))
	for k, v := range m {
		if contracts.IsNumericColumn(k) && k != contracts.ColQualityScore && !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

func capped(records []*contracts.StockRecord, limit int) []*contracts.StockRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

func topSectors(counts map[string]int, n int) []contracts.SectorCount {
	out := make([]contracts.SectorCount, 0, len(counts))
	for s, c := range counts {
		out = append(out, contracts.SectorCount{Sector: s, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Sector < out[j].Sector
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

var _ contracts.StockRepository = (*MemoryRepository)(nil)
