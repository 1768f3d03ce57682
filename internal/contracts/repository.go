package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// StockRepository persists stock records
type StockRepository interface {
	// UpsertIdentity inserts a placeholder (quality 0) or updates identity fields.
	// inserted is true when the symbol was new.
	UpsertIdentity(ctx context.Context, id StockIdentity) (inserted bool, err error)

	GetBySymbol(ctx context.Context, symbol string) (*StockRecord, error)
	ListIdentities(ctx context.Context) ([]StockIdentity, error)

	// SelectForEnrichment returns records below AcceptQuality or last refreshed
	// before StaleBefore, largest market cap first (nulls last)
	SelectForEnrichment(ctx context.Context, c EnrichmentCriteria) ([]*StockRecord, error)

	// SelectTopByMarketCap returns enriched records, largest market cap first
	SelectTopByMarketCap(ctx context.Context, limit int) ([]*StockRecord, error)

	// ApplyEnrichment writes fields, derived ratios, scores and quality metadata atomically
	ApplyEnrichment(ctx context.Context, u EnrichmentUpdate) error

	// UpdatePrices writes price columns only, leaving quality metadata untouched
	UpdatePrices(ctx context.Context, updates []PriceUpdate) error

	// ListOneYearReturns returns every stock with a non-null 1-year return
	ListOneYearReturns(ctx context.Context) ([]ReturnPoint, error)

	// SaveRelativeStrength bulk-writes percentiles
	SaveRelativeStrength(ctx context.Context, percentiles []Percentile) error

	// Query evaluates a screen. total counts every match, ignoring Limit.
	Query(ctx context.Context, q ScreenQuery) (results []*StockRecord, total int, err error)

	CountEligible(ctx context.Context, minQuality int) (int, error)
	FieldStats(ctx context.Context, column string, minQuality int) (*FieldStats, error)
	Stats(ctx context.Context, minQuality, highQuality int) (*DatabaseStats, error)
}

// EnrichmentCriteria selects stale records
type EnrichmentCriteria struct {
	AcceptQuality int
	StaleBefore   time.Time
	Limit         int // 0 = no cap
}

// EnrichmentUpdate is the immutable result of one stock's fusion + scoring.
// Metrics keys that are absent leave the stored column unchanged.
type EnrichmentUpdate struct {
	StockID      int64
	Symbol       string
	Metrics      Metrics
	QualityScore int
	Sources      []string
	UpdatedAt    time.Time
}

// PriceUpdate is an intraday price refresh for one stock
type PriceUpdate struct {
	StockID int64
	Symbol  string
	Metrics Metrics
}

// ReturnPoint is one stock's 1-year return (percent).
// Metrics carries the other momentum inputs: price and the 52-week range.
type ReturnPoint struct {
	StockID int64
	Symbol  string
	Return  float64
	Metrics Metrics
}

// Percentile is one relative-strength result (0-99) and the momentum
// score rescored against it
type Percentile struct {
	StockID  int64
	Value    int
	Momentum int
}

// Logic combines screen conditions
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Operator is a predicate operator
type Operator string

const (
	OpGT       Operator = "gt"
	OpGTE      Operator = "gte"
	OpLT       Operator = "lt"
	OpLTE      Operator = "lte"
	OpEQ       Operator = "eq"
	OpNE       Operator = "ne"
	OpBetween  Operator = "between"
	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
	OpContains Operator = "contains"
)

// Condition is a typed, column-resolved predicate.
// Text is set for text columns, Num/Num2/Nums for numeric ones.
// A NULL column never matches, whatever the operator.
type Condition struct {
	Column string
	Op     Operator
	IsText bool

	Num   float64
	Num2  float64 // upper bound of between
	Nums  []float64
	Text  string
	Texts []string
}

// ScreenQuery is what the screening engine hands to storage
type ScreenQuery struct {
	Conditions []Condition
	Logic      Logic
	SortColumn string
	SortDesc   bool
	Limit      int
	MinQuality int
}

// FieldStats summarizes one numeric column over the eligible universe
type FieldStats struct {
	Field  string  `json:"field"`
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

// SectorCount is one entry of the sector breakdown
type SectorCount struct {
	Sector string `json:"sector"`
	Count  int    `json:"count"`
}

// DatabaseStats summarizes the universe
type DatabaseStats struct {
	TotalStocks       int           `json:"total_stocks"`
	HighQualityStocks int           `json:"high_quality_stocks"`
	EligibleStocks    int           `json:"eligible_stocks"`
	AvgQuality        float64       `json:"avg_quality"`
	LastUpdated       *time.Time    `json:"last_updated,omitempty"`
	TopSectors        []SectorCount `json:"top_sectors"`
}
