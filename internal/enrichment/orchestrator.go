package enrichment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/internal/scoring"
	"github.com/wonny/stockfusion/pkg/logger"
	"github.com/wonny/stockfusion/pkg/metrics"
)

// Fuser is the part of the fusion service the orchestrator needs
type Fuser interface {
	FetchStockData(ctx context.Context, symbol string, required []string) (contracts.FieldBag, contracts.QualityReport)
}

// Indexer is refreshed after Populate changes the universe
type Indexer interface {
	Rebuild(ctx context.Context, ids []contracts.StockIdentity) error
}

// Config holds enrichment settings
type Config struct {
	AcceptQuality   int
	FreshnessWindow time.Duration
	Workers         int
	RatePerSecond   float64 // <= 0 means unlimited
	Burst           int
	RequiredFields  []string
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		AcceptQuality:   80,
		FreshnessWindow: 7 * 24 * time.Hour,
		Workers:         4,
		RatePerSecond:   5,
		Burst:           10,
		RequiredFields:  contracts.DefaultRequiredFields,
	}
}

// Orchestrator populates the universe and keeps it enriched
// ⭐ SSOT: 종목 데이터 보강(enrichment)은 여기서만
type Orchestrator struct {
	repo     contracts.StockRepository
	fuser    Fuser
	scorer   *scoring.Calculator
	cfg      Config
	limiter  *rate.Limiter
	validate *validator.Validate
	metrics  *metrics.Registry
	progress ProgressSink
	indexer  Indexer
	now      func() time.Time
	logger   *logger.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMetrics records enrichment outcomes
func WithMetrics(m *metrics.Registry) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithProgress publishes per-stock progress events
func WithProgress(sink ProgressSink) Option {
	return func(o *Orchestrator) { o.progress = sink }
}

// WithIndexer rebuilds a search index after Populate
func WithIndexer(idx Indexer) Option {
	return func(o *Orchestrator) { o.indexer = idx }
}

// WithClock overrides time.Now (tests)
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLimiter replaces the shared token bucket
func WithLimiter(l *rate.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(repo contracts.StockRepository, fuser Fuser, scorer *scoring.Calculator, cfg Config, log *logger.Logger, opts ...Option) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RequiredFields == nil {
		cfg.RequiredFields = contracts.DefaultRequiredFields
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	o := &Orchestrator{
		repo:     repo,
		fuser:    fuser,
		scorer:   scorer,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, burst),
		validate: validator.New(),
		progress: nopSink{},
		now:      time.Now,
		logger:   log.Module("enrichment"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
