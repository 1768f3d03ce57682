package commands

import (
	"context"
	"fmt"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/internal/enrichment"
	"github.com/wonny/stockfusion/internal/external/alphavantage"
	"github.com/wonny/stockfusion/internal/external/nse"
	"github.com/wonny/stockfusion/internal/external/screenerin"
	"github.com/wonny/stockfusion/internal/external/yahoo"
	"github.com/wonny/stockfusion/internal/fusion"
	"github.com/wonny/stockfusion/internal/scoring"
	"github.com/wonny/stockfusion/internal/screening"
	"github.com/wonny/stockfusion/internal/search"
	"github.com/wonny/stockfusion/internal/stocklist"
	"github.com/wonny/stockfusion/internal/storage"
	"github.com/wonny/stockfusion/pkg/breaker"
	"github.com/wonny/stockfusion/pkg/config"
	"github.com/wonny/stockfusion/pkg/database"
	"github.com/wonny/stockfusion/pkg/httputil"
	"github.com/wonny/stockfusion/pkg/logger"
	"github.com/wonny/stockfusion/pkg/metrics"
	redisclient "github.com/wonny/stockfusion/pkg/redis"
)

// app holds the wired services shared by every command
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Registry
	redis    *redisclient.Client
	db       *database.DB
	repo     contracts.StockRepository
	fusion   *fusion.Service
	index    *search.Index
	enricher *enrichment.Orchestrator
	engine   *screening.Engine
	stocks   contracts.StockListProvider
}

type appOptions struct {
	progress func(*logger.Logger) enrichment.ProgressSink
	// stockFile replaces cfg.StockListFile; an explicit file has no fallback
	stockFile string
}

// newApp wires config → logger → redis → breakers/fetchers → fusion → storage →
// search → enrichment → screening. Callers must call close.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: logger.New(cfg)}
	if err := a.wire(ctx, opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, opts appOptions) error {
	cfg := a.cfg
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	var err error
	a.redis, err = redisclient.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	a.fusion = fusion.NewService(a.buildRegistry(), a.log, a.fusionOptions()...)

	if err := a.openStorage(ctx); err != nil {
		return err
	}

	a.index, err = search.NewIndex(a.log)
	if err != nil {
		return err
	}

	eopts := []enrichment.Option{
		enrichment.WithMetrics(a.metrics),
		enrichment.WithIndexer(a.index),
	}
	if opts.progress != nil {
		eopts = append(eopts, enrichment.WithProgress(opts.progress(a.log)))
	}
	a.enricher = enrichment.NewOrchestrator(a.repo, a.fusion, scoring.NewCalculator(a.log), enrichment.Config{
		AcceptQuality:   cfg.Enrichment.AcceptQuality,
		FreshnessWindow: cfg.Enrichment.FreshnessWindow,
		Workers:         cfg.Enrichment.Workers,
		RatePerSecond:   cfg.Enrichment.RatePerSecond,
		Burst:           cfg.Enrichment.Burst,
	}, a.log, eopts...)

	presets, err := loadPresets()
	if err != nil {
		return err
	}
	a.engine = screening.NewEngine(a.repo, presets, screening.Config{
		MinQuality:   cfg.Screening.MinQuality,
		DefaultLimit: cfg.Screening.DefaultLimit,
		MaxLimit:     cfg.Screening.MaxLimit,
	}, a.log, screening.WithMetrics(a.metrics))

	if opts.stockFile != "" {
		a.stocks = stocklist.NewCSVProvider(opts.stockFile, a.log)
	} else {
		a.stocks = stocklist.NewFallback(a.log, stocklist.NewCSVProvider(cfg.StockListFile, a.log), stocklist.Nifty50{})
	}

	return a.warmUp(ctx)
}

// buildRegistry creates the fetchers in priority order, each behind its own breaker.
// HTTP providers share their request budget across processes through Redis.
func (a *app) buildRegistry() *fusion.Registry {
	p := a.cfg.Providers
	limiter := redisclient.NewRateLimiter(a.redis, "stockfusion")
	client := func(limit redisclient.RateLimitConfig) *httputil.Client {
		return httputil.New(a.log, p.FetchTimeout).WithRateLimiter(limiter, limit)
	}

	guard := func(f contracts.SourceFetcher) contracts.SourceFetcher {
		s := breaker.DefaultSettings(f.Name())
		if p.BreakerThreshold > 0 {
			s.ConsecutiveFailures = uint32(p.BreakerThreshold)
		}
		if p.BreakerTimeout > 0 {
			s.Timeout = p.BreakerTimeout
		}
		return fusion.Guard(f, fusion.GuardOptions{
			Breaker: breaker.New(s, a.log),
			Metrics: a.metrics,
			Timeout: p.FetchTimeout,
		}, a.log)
	}

	return fusion.NewRegistry(
		guard(nse.NewFetcher(client(redisclient.NSERateLimit), p.NSEBaseURL, p.NSEEnabled, a.log)),
		guard(yahoo.NewFetcher(p.YahooSuffix, p.FetchTimeout, p.YahooEnabled, a.log)),
		guard(screenerin.NewFetcher(client(redisclient.ScreenerRateLimit), p.ScreenerBaseURL, p.ScreenerEnabled, a.log)),
		guard(alphavantage.NewFetcher(client(redisclient.AlphaVantageRateLimit), p.AlphaVantageURL, p.AlphaVantageKey, p.AlphaVantageRPM, a.log)),
	)
}

func (a *app) fusionOptions() []fusion.Option {
	opts := []fusion.Option{
		fusion.WithThreshold(a.cfg.Fusion.QualityThreshold),
		fusion.WithDelay(a.cfg.Fusion.FetcherDelay),
		fusion.WithMetrics(a.metrics),
	}
	if !a.cfg.Fusion.CacheEnabled {
		return opts
	}
	if a.redis.Enabled() {
		return append(opts, fusion.WithCache(fusion.NewRedisCache(a.redis, a.cfg.Fusion.CacheTTL, a.log)))
	}
	return append(opts, fusion.WithCache(fusion.NewMemoryCache(a.cfg.Fusion.CacheTTL)))
}

func (a *app) openStorage(ctx context.Context) error {
	if a.cfg.Storage == "memory" {
		a.repo = storage.NewMemoryRepository(a.log)
		a.log.Warn("Using in-memory storage; data is lost when the process exits")
		return nil
	}

	db, err := database.New(a.cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.db = db

	repo := storage.NewPostgresRepository(db.Pool, a.log)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	a.repo = repo
	a.log.Info("Connected to database")
	return nil
}

// warmUp fills an empty in-memory store from the stock list and builds the search index
func (a *app) warmUp(ctx context.Context) error {
	if a.cfg.Storage == "memory" {
		if _, err := a.enricher.PopulateFromProvider(ctx, a.stocks); err != nil {
			return fmt.Errorf("populate in-memory store: %w", err)
		}
		return nil
	}

	ids, err := a.repo.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}
	return a.index.Rebuild(ctx, ids)
}

func loadPresets() (*screening.PresetBook, error) {
	if presetsFile == "" {
		return screening.DefaultPresets()
	}
	book, err := screening.LoadPresets(presetsFile)
	if err != nil {
		return nil, fmt.Errorf("load presets %s: %w", presetsFile, err)
	}
	return book, nil
}

func (a *app) close() {
	if a.index != nil {
		a.index.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
