package fusion

import (
	"context"
	"time"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/logger"
	"github.com/wonny/stockfusion/pkg/metrics"
)

const (
	DefaultQualityThreshold = 80
	DefaultFetcherDelay     = 500 * time.Millisecond
	DefaultSymbolDelay      = time.Second
)

// Service fuses the registry's fetchers into one field bag per symbol
// ⭐ SSOT: 멀티소스 병합은 이 서비스만 수행
type Service struct {
	registry    *Registry
	cache       Cache
	threshold   int
	delay       time.Duration
	symbolDelay time.Duration
	metrics     *metrics.Registry
	now         func() time.Time
	logger      *logger.Logger
}

// Option configures a Service
type Option func(*Service)

// WithCache enables result caching
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithThreshold sets the early-stop quality threshold
func WithThreshold(score int) Option {
	return func(s *Service) { s.threshold = score }
}

// WithDelay sets the pause between fetcher invocations
func WithDelay(d time.Duration) Option {
	return func(s *Service) { s.delay = d }
}

// WithSymbolDelay sets the pause between symbols in FetchMany
func WithSymbolDelay(d time.Duration) Option {
	return func(s *Service) { s.symbolDelay = d }
}

// WithMetrics records quality and cache metrics
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now (tests)
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a fusion service over registry
func NewService(registry *Registry, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		registry:    registry,
		threshold:   DefaultQualityThreshold,
		delay:       DefaultFetcherDelay,
		symbolDelay: DefaultSymbolDelay,
		now:         time.Now,
		logger:      log.Module("fusion"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the fetcher registry
func (s *Service) Registry() *Registry {
	return s.registry
}

// FetchStockData runs the fetchers in priority order and merges their results.
// A nil required list means DefaultRequiredFields. Failure is never an error:
// if nothing contributed, the bag holds only bookkeeping keys and the score is 0.
func (s *Service) FetchStockData(ctx context.Context, symbol string, required []string) (contracts.FieldBag, contracts.QualityReport) {
	symbol = contracts.NormalizeSymbol(symbol)
	if required == nil {
		required = contracts.DefaultRequiredFields
	}
	log := s.logger.WithField("symbol", symbol)
	checklist := Checklist(required)

	if s.cache != nil {
		if hit, ok := s.cache.Get(ctx, symbol, checklist, s.now()); ok {
			s.metrics.CacheLookup(true)
			log.Debug("Fusion cache hit")
			return s.fromCache(symbol, hit, required)
		}
		s.metrics.CacheLookup(false)
	}

	merged := contracts.FieldBag{}
	sourcesUsed := []string{}
	attempts := []contracts.FetchAttempt{}

	fetchers := s.registry.Fetchers()
	for i, fetcher := range fetchers {
		if !fetcher.Available() {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		bag, ok := fetcher.Fetch(ctx, symbol, required)
		if ok && len(bag) > 0 {
			bag = NormalizePercentages(bag)

			score, missing := Score(bag, required)
			attempts = append(attempts, contracts.FetchAttempt{
				Source:  fetcher.Name(),
				Quality: score,
				Missing: missing,
			})

			var filled []string
			merged, filled = Merge(merged, bag)
			if len(filled) > 0 {
				sourcesUsed = append(sourcesUsed, fetcher.Name())
			}

			log.WithFields(map[string]interface{}{
				"source":  fetcher.Name(),
				"quality": score,
				"filled":  len(filled),
			}).Debug("Source returned data")

			current, _ := Score(merged, required)
			if current >= s.threshold {
				log.WithField("quality", current).Debug("Quality threshold reached, stopping early")
				break
			}
		} else {
			log.WithField("source", fetcher.Name()).Debug("Source returned nothing")
		}

		if hasAvailableAfter(fetchers, i) {
			if err := sleep(ctx, s.delay); err != nil {
				break
			}
		}
	}

	score, missing := Score(merged, required)
	fetchedAt := s.now()

	merged[contracts.KeySources] = sourcesUsed
	merged[contracts.KeyQualityScore] = score
	merged[contracts.KeyLastUpdated] = fetchedAt.Format(time.RFC3339)

	report := contracts.QualityReport{
		Symbol:        symbol,
		Score:         score,
		MissingFields: missing,
		SourcesUsed:   sourcesUsed,
		FetchAttempts: attempts,
		FetchedAt:     fetchedAt,
	}

	s.metrics.ObserveQuality(score)
	log.WithFields(map[string]interface{}{
		"quality": score,
		"sources": len(sourcesUsed),
	}).Info("Fusion complete")

	if s.cache != nil && ctx.Err() == nil {
		s.cache.Set(ctx, symbol, checklist, fetchedAt, &Cached{Data: merged.Clone(), Report: report})
	}

	return merged, report
}

// fromCache rescores a cached bag against the caller's checklist.
// The cached run used the same field set, so the score matches.
func (s *Service) fromCache(symbol string, hit *Cached, required []string) (contracts.FieldBag, contracts.QualityReport) {
	data := hit.Data.Clone()
	score, missing := Score(data, required)
	data[contracts.KeyQualityScore] = score

	report := hit.Report
	report.Symbol = symbol
	report.Score = score
	report.MissingFields = missing
	report.Cached = true
	return data, report
}

// Result is one symbol's outcome in FetchMany
type Result struct {
	Symbol string                  `json:"symbol"`
	Data   contracts.FieldBag      `json:"data"`
	Report contracts.QualityReport `json:"quality"`
}

// FetchMany fuses several symbols one after another, pausing between them.
// Cancellation stops before the next symbol and returns what was fetched.
func (s *Service) FetchMany(ctx context.Context, symbols []string, required []string) []Result {
	results := make([]Result, 0, len(symbols))
	for i, symbol := range symbols {
		s.logger.Debugf("Fetching %d/%d: %s", i+1, len(symbols), symbol)

		data, report := s.FetchStockData(ctx, symbol, required)
		results = append(results, Result{Symbol: report.Symbol, Data: data, Report: report})

		if i < len(symbols)-1 {
			if err := sleep(ctx, s.symbolDelay); err != nil {
				break
			}
		}
	}
	return results
}

func hasAvailableAfter(fetchers []contracts.SourceFetcher, i int) bool {
	for _, f := range fetchers[i+1:] {
		if f.Available() {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
