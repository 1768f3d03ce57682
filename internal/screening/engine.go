package screening

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/logger"
	"github.com/wonny/stockfusion/pkg/metrics"
)

// HighQualityScore is the quality cut-off counted as "high quality" in DatabaseStats
const HighQualityScore = 80

// Config holds screening limits
type Config struct {
	MinQuality   int // quality floor applied to every query
	DefaultLimit int
	MaxLimit     int
}

// DefaultConfig returns the production limits
func DefaultConfig() Config {
	return Config{MinQuality: 30, DefaultLimit: 100, MaxLimit: 1000}
}

// Row is one result keyed by display name
type Row map[string]interface{}

// Metadata accompanies every screening result
type Metadata struct {
	TotalMatches   int    `json:"total_matches"`
	TotalStocks    int    `json:"total_stocks"`
	MatchRate      string `json:"match_rate"`
	FiltersApplied int    `json:"filters_applied"`
	Logic          string `json:"logic"`
	PresetName     string `json:"preset_name,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Result is the outcome of ApplyFilters / ApplyPreset
type Result struct {
	Results  []Row                    `json:"results"`
	Metadata Metadata                 `json:"metadata"`
	Records  []*contracts.StockRecord `json:"-"`
}

// PresetInfo is the listing form of a preset
type PresetInfo struct {
	Key         string      `json:"key"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Filters     []Predicate `json:"filters"`
	Sort        SortSpec    `json:"sort"`
}

// Engine evaluates filter specifications against the stock repository
type Engine struct {
	repo     contracts.StockRepository
	presets  *PresetBook
	cfg      Config
	validate *validator.Validate
	metrics  *metrics.Registry
	logger   *logger.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithMetrics records screen requests
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = m }
}

func newValidator() *validator.Validate {
	return validator.New()
}

// NewEngine creates a screening engine
func NewEngine(repo contracts.StockRepository, presets *PresetBook, cfg Config, log *logger.Logger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}

	e := &Engine{
		repo:     repo,
		presets:  presets,
		cfg:      cfg,
		validate: newValidator(),
		logger:   log.Module("screening"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyFilters runs a filter specification
func (e *Engine) ApplyFilters(ctx context.Context, spec FilterSpec) (*Result, error) {
	res, err := e.run(ctx, spec)
	e.metrics.ScreenRequest("filter", outcome(err))
	return res, err
}

// ApplyPreset looks up a preset and runs its bundled predicates.
// limit <= 0 uses the default limit.
func (e *Engine) ApplyPreset(ctx context.Context, key string, limit int) (*Result, error) {
	p, ok := e.presets.Get(key)
	if !ok {
		e.metrics.ScreenRequest("preset", "error")
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, key)
	}

	res, err := e.run(ctx, p.Spec(limit))
	e.metrics.ScreenRequest("preset", outcome(err))
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", key, err)
	}
	res.Metadata.PresetName = p.Name
	res.Metadata.Description = p.Description
	return res, nil
}

func (e *Engine) run(ctx context.Context, spec FilterSpec) (*Result, error) {
	c, err := compile(e.validate, spec)
	if err != nil {
		return nil, err
	}

	q := contracts.ScreenQuery{
		Conditions: c.conditions,
		Logic:      c.logic,
		SortColumn: c.sortColumn,
		SortDesc:   c.sortDesc,
		Limit:      e.limit(spec.Limit),
		MinQuality: e.cfg.MinQuality,
	}

	start := time.Now()
	records, total, err := e.repo.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	universe, err := e.repo.CountEligible(ctx, e.cfg.MinQuality)
	if err != nil {
		return nil, fmt.Errorf("count eligible: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"filters":  len(spec.Filters),
		"logic":    q.Logic,
		"matches":  total,
		"returned": len(records),
		"duration": time.Since(start),
	}).Debug("Screen evaluated")

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, ToRow(rec))
	}

	return &Result{
		Results: rows,
		Records: records,
		Metadata: Metadata{
			TotalMatches:   total,
			TotalStocks:    universe,
			MatchRate:      matchRate(total, universe),
			FiltersApplied: len(spec.Filters),
			Logic:          string(q.Logic),
		},
	}, nil
}

func (e *Engine) limit(requested int) int {
	if requested <= 0 {
		return e.cfg.DefaultLimit
	}
	if requested > e.cfg.MaxLimit {
		return e.cfg.MaxLimit
	}
	return requested
}

// Presets lists the catalogue in order
func (e *Engine) Presets() []PresetInfo {
	out := make([]PresetInfo, 0, len(e.presets.Presets))
	for _, p := range e.presets.Presets {
		out = append(out, PresetInfo{
			Key:         p.Key,
			Name:        p.Name,
			Description: p.Description,
			Filters:     p.Filters,
			Sort:        p.Sort,
		})
	}
	return out
}

// Preset returns one preset by key
func (e *Engine) Preset(key string) (PresetInfo, error) {
	p, ok := e.presets.Get(key)
	if !ok {
		return PresetInfo{}, fmt.Errorf("%w: %s", ErrUnknownPreset, key)
	}
	return PresetInfo{Key: p.Key, Name: p.Name, Description: p.Description, Filters: p.Filters, Sort: p.Sort}, nil
}

// AvailableFields lists every mapped field
func (e *Engine) AvailableFields() []FieldInfo {
	return Fields()
}

// FieldStats returns min/max/mean/count of a numeric field over the eligible universe
func (e *Engine) FieldStats(ctx context.Context, field string) (*contracts.FieldStats, error) {
	col, err := ResolveField(field)
	if err != nil {
		return nil, err
	}
	if !contracts.IsNumericColumn(col) {
		return nil, fmt.Errorf("%w: %s is not numeric", ErrInvalidOperator, field)
	}

	stats, err := e.repo.FieldStats(ctx, col, e.cfg.MinQuality)
	if err != nil {
		return nil, fmt.Errorf("field stats %s: %w", col, err)
	}
	stats.Field = field
	return stats, nil
}

// DatabaseStats summarizes the stored universe
func (e *Engine) DatabaseStats(ctx context.Context) (*contracts.DatabaseStats, error) {
	return e.repo.Stats(ctx, e.cfg.MinQuality, HighQualityScore)
}

// IsRequestError reports whether err was caused by the caller's input
func IsRequestError(err error) bool {
	for _, target := range []error{ErrEmptySpec, ErrInvalidSpec, ErrInvalidOperator, ErrInvalidOperand, ErrUnknownField, ErrUnknownPreset} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRequestError(err):
		return "rejected"
	default:
		return "error"
	}
}

func matchRate(matches, universe int) string {
	if universe <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(matches)/float64(universe)*100)
}

// ToRow renders a record with display names as keys. NULL metrics are omitted.
func ToRow(rec *contracts.StockRecord) Row {
	row := Row{
		"id":                                   rec.ID,
		DisplayName(contracts.ColSymbol):       rec.Symbol,
		DisplayName(contracts.ColName):         rec.Name,
		DisplayName(contracts.ColQualityScore): rec.DataQualityScore,
	}
	if rec.Sector != "" {
		row[DisplayName(contracts.ColSector)] = rec.Sector
	}
	if rec.Industry != "" {
		row[DisplayName(contracts.ColIndustry)] = rec.Industry
	}
	if rec.DataSources != "" {
		row[contracts.ColDataSources] = rec.DataSources
	}
	if rec.LastUpdated != nil {
		row["last_updated"] = rec.LastUpdated
	}
	for col, v := range rec.Metrics {
		row[DisplayName(col)] = v
	}
	return row
}
