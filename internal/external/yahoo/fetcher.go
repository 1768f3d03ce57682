package yahoo

import (
	"context"
	"errors"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/internal/technicals"
	"github.com/wonny/stockfusion/pkg/logger"
)

// SourceName is recorded in sources_used
const SourceName = "YahooFinance"

var errTimeout = errors.New("yahoo call timed out")

// EquityGetter looks up one ticker. A nil equity with a nil error means "not listed".
type EquityGetter func(ticker string) (*finance.Equity, error)

// HistoryGetter returns ticker's daily bars between from and to, oldest first
type HistoryGetter func(ticker string, from, to time.Time) ([]technicals.Bar, error)

// Fetcher reads Yahoo Finance through finance-go.
// finance-go has no context support, so every call runs in a goroutine bounded by timeout.
type Fetcher struct {
	getEquity  EquityGetter
	getHistory HistoryGetter
	suffix     string
	timeout    time.Duration
	enabled    bool
	now        func() time.Time
	logger     *logger.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithEquityGetter replaces equity.Get (tests)
func WithEquityGetter(g EquityGetter) Option {
	return func(f *Fetcher) { f.getEquity = g }
}

// WithHistoryGetter replaces the chart-based daily history lookup (tests)
func WithHistoryGetter(g HistoryGetter) Option {
	return func(f *Fetcher) { f.getHistory = g }
}

// NewFetcher creates a Yahoo fetcher. suffix is ".NS" or ".BO".
func NewFetcher(suffix string, timeout time.Duration, enabled bool, log *logger.Logger, opts ...Option) *Fetcher {
	if suffix == "" {
		suffix = ".NS"
	}
	f := &Fetcher{
		getEquity:  equity.Get,
		getHistory: chartHistory,
		suffix:     suffix,
		timeout:    timeout,
		enabled:    enabled,
		now:        time.Now,
		logger:     log.Module("yahoo"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Name() string    { return SourceName }
func (f *Fetcher) Available() bool { return f.enabled }

// Fetch looks the symbol up on the configured exchange, then on BSE
func (f *Fetcher) Fetch(ctx context.Context, symbol string, required []string) (contracts.FieldBag, bool) {
	if !f.enabled {
		return nil, false
	}
	symbol = contracts.NormalizeSymbol(symbol)
	log := f.logger.WithField("symbol", symbol)

	tickers := []string{symbol + f.suffix}
	if f.suffix != ".BO" {
		tickers = append(tickers, symbol+".BO")
	}

	var (
		eq     *finance.Equity
		ticker string
	)
	for _, t := range tickers {
		got, err := f.lookup(ctx, t)
		if err != nil {
			log.WithError(err).WithField("ticker", t).Debug("Yahoo lookup failed")
			continue
		}
		if got != nil && got.Symbol != "" {
			eq, ticker = got, t
			break
		}
	}
	if eq == nil {
		return nil, false
	}

	bag := toFieldBag(eq)

	if wantsHistory(required) {
		for key, v := range technicals.Compute(f.history(ctx, ticker)) {
			if _, exists := bag[key]; !exists {
				bag[key] = v
			}
		}
	}

	if len(bag) == 0 {
		return nil, false
	}
	// Yahoo reports ratios as fractions (0.18 = 18%)
	bag[contracts.KeyPercentScale] = contracts.ScaleFraction

	log.WithFields(map[string]interface{}{
		"ticker": ticker,
		"fields": len(bag),
	}).Debug("Yahoo quote fetched")
	return bag, true
}

func (f *Fetcher) lookup(ctx context.Context, ticker string) (*finance.Equity, error) {
	type result struct {
		eq  *finance.Equity
		err error
	}
	ch := make(chan result, 1)
	go func() {
		eq, err := f.getEquity(ticker)
		ch <- result{eq, err}
	}()

	select {
	case r := <-ch:
		return r.eq, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.timer():
		return nil, errTimeout
	}
}

// history reads one year of daily bars; failures yield no bars
func (f *Fetcher) history(ctx context.Context, ticker string) []technicals.Bar {
	type result struct {
		bars []technicals.Bar
		err  error
	}
	to := f.now()
	from := to.AddDate(-1, 0, 0)

	ch := make(chan result, 1)
	go func() {
		bars, err := f.getHistory(ticker, from, to)
		ch <- result{bars, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			f.logger.WithError(r.err).WithField("ticker", ticker).Debug("Yahoo chart failed")
			return nil
		}
		return r.bars
	case <-ctx.Done():
		return nil
	case <-f.timer():
		return nil
	}
}

// timer returns a channel that fires after the per-call timeout, or never
func (f *Fetcher) timer() <-chan time.Time {
	if f.timeout <= 0 {
		return nil
	}
	return time.After(f.timeout)
}

// wantsHistory avoids the extra chart call for price-only refreshes
func wantsHistory(required []string) bool {
	if required == nil {
		return true
	}
	for _, r := range required {
		if r == contracts.FieldYear1Change || r == contracts.FieldMarketCap {
			return true
		}
	}
	return false
}

func toFieldBag(eq *finance.Equity) contracts.FieldBag {
	bag := contracts.FieldBag{}
	set := func(key string, v float64) {
		if v != 0 {
			bag[key] = v
		}
	}

	set(contracts.FieldCurrentPrice, eq.RegularMarketPrice)
	set(contracts.FieldMarketCap, float64(eq.MarketCap))
	set(contracts.FieldPE, eq.TrailingPE)
	set(contracts.FieldPB, eq.PriceToBook)
	set(contracts.FieldEPS, eq.EpsTrailingTwelveMonths)
	set(contracts.FieldDividendYield, eq.TrailingAnnualDividendYield)
	set(contracts.FieldWeek52High, eq.FiftyTwoWeekHigh)
	set(contracts.FieldWeek52Low, eq.FiftyTwoWeekLow)
	set(contracts.FieldDayChange, eq.RegularMarketChangePercent)
	set(contracts.FieldSMA50, eq.FiftyDayAverage)
	set(contracts.FieldSMA200, eq.TwoHundredDayAverage)
	set(contracts.FieldVolume, float64(eq.RegularMarketVolume))

	return bag
}

// chartHistory reads daily bars from the Yahoo chart API
func chartHistory(ticker string, from, to time.Time) ([]technicals.Bar, error) {
	iter := chart.Get(&chart.Params{
		Symbol:   ticker,
		Start:    datetime.New(&from),
		End:      datetime.New(&to),
		Interval: datetime.OneDay,
	})

	var bars []technicals.Bar
	for iter.Next() {
		b := iter.Bar()
		closePrice, _ := b.Close.Float64()
		if closePrice <= 0 {
			continue
		}
		high, _ := b.High.Float64()
		low, _ := b.Low.Float64()
		bars = append(bars, technicals.Bar{
			Time:  time.Unix(int64(b.Timestamp), 0),
			High:  high,
			Low:   low,
			Close: closePrice,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("chart %s: %w", ticker, err)
	}
	return bars, nil
}
