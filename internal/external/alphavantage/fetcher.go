package alphavantage

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/httputil"
	"github.com/wonny/stockfusion/pkg/logger"
)

// SourceName is recorded in sources_used
const SourceName = "AlphaVantage"

// overviewFields maps OVERVIEW response keys to canonical fields
var overviewFields = map[string]string{
	"MarketCapitalization":       contracts.FieldMarketCap,
	"PERatio":                    contracts.FieldPE,
	"PEGRatio":                   contracts.FieldPEG,
	"PriceToBookRatio":           contracts.FieldPB,
	"PriceToSalesRatioTTM":       contracts.FieldPS,
	"EPS":                        contracts.FieldEPS,
	"ReturnOnEquityTTM":          contracts.FieldROE,
	"ReturnOnAssetsTTM":          contracts.FieldROA,
	"ProfitMargin":               contracts.FieldProfitMargin,
	"OperatingMarginTTM":         contracts.FieldOperatingMargin,
	"RevenueTTM":                 contracts.FieldRevenue,
	"QuarterlyRevenueGrowthYOY":  contracts.FieldRevenueGrowth,
	"QuarterlyEarningsGrowthYOY": contracts.FieldProfitGrowth,
	"DividendYield":              contracts.FieldDividendYield,
	"52WeekHigh":                 contracts.FieldWeek52High,
	"52WeekLow":                  contracts.FieldWeek52Low,
	"Beta":                       contracts.FieldBeta,
	"50DayMovingAverage":         contracts.FieldSMA50,
	"200DayMovingAverage":        contracts.FieldSMA200,
}

// balanceSheetFields maps the latest BALANCE_SHEET annual report to canonical fields
var balanceSheetFields = map[string]string{
	"totalAssets":             contracts.FieldTotalAssets,
	"totalCurrentAssets":      contracts.FieldCurrentAssets,
	"totalCurrentLiabilities": contracts.FieldCurrentLiabilities,
	"totalShareholderEquity":  contracts.FieldStockholdersEquity,
	"shortLongTermDebtTotal":  contracts.FieldTotalDebt,
}

type balanceSheet struct {
	Symbol        string                   `json:"symbol"`
	AnnualReports []map[string]interface{} `json:"annualReports"`
}

// Fetcher reads the Alpha Vantage OVERVIEW and BALANCE_SHEET endpoints.
// The free tier allows a handful of calls per minute, so calls wait on a local token bucket.
type Fetcher struct {
	httpClient *httputil.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	logger     *logger.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithLimiter replaces the per-minute limiter
func WithLimiter(l *rate.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// NewFetcher creates an Alpha Vantage fetcher. It is unavailable without an API key.
func NewFetcher(httpClient *httputil.Client, baseURL, apiKey string, perMinute int, log *logger.Logger, opts ...Option) *Fetcher {
	if perMinute <= 0 {
		perMinute = 5
	}
	f := &Fetcher{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     log.Module("alphavantage"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Name() string    { return SourceName }
func (f *Fetcher) Available() bool { return f.apiKey != "" }

// Fetch requests the company overview of SYMBOL.NSE
func (f *Fetcher) Fetch(ctx context.Context, symbol string, _ []string) (contracts.FieldBag, bool) {
	if !f.Available() {
		return nil, false
	}
	symbol = contracts.NormalizeSymbol(symbol)
	log := f.logger.WithField("symbol", symbol)

	if err := f.limiter.Wait(ctx); err != nil {
		log.WithError(err).Debug("Alpha Vantage limiter wait aborted")
		return nil, false
	}

	var overview map[string]interface{}
	if err := f.httpClient.GetJSON(ctx, f.overviewURL(symbol), &overview); err != nil {
		log.WithError(err).Debug("Alpha Vantage fetch failed")
		return nil, false
	}

	// throttled and unknown-symbol responses carry a Note/Information text instead of Symbol
	if _, ok := overview["Symbol"]; !ok {
		if note, ok := overview["Note"].(string); ok {
			log.WithField("note", note).Debug("Alpha Vantage throttled")
		}
		return nil, false
	}

	bag := contracts.FieldBag{}
	for key, field := range overviewFields {
		if v, ok := parseValue(overview[key]); ok {
			bag[field] = v
		}
	}
	for field, v := range f.fetchBalanceSheet(ctx, symbol) {
		bag[field] = v
	}
	if len(bag) == 0 {
		return nil, false
	}
	// ratios come as fractions (0.18 = 18%)
	bag[contracts.KeyPercentScale] = contracts.ScaleFraction
	return bag, true
}

// fetchBalanceSheet reads the latest annual balance sheet. A failure only
// loses the balance-sheet fields; the overview is still returned.
func (f *Fetcher) fetchBalanceSheet(ctx context.Context, symbol string) contracts.FieldBag {
	log := f.logger.WithField("symbol", symbol)

	if err := f.limiter.Wait(ctx); err != nil {
		log.WithError(err).Debug("Alpha Vantage limiter wait aborted")
		return nil
	}

	var sheet balanceSheet
	if err := f.httpClient.GetJSON(ctx, f.queryURL("BALANCE_SHEET", symbol), &sheet); err != nil {
		log.WithError(err).Debug("Alpha Vantage balance sheet fetch failed")
		return nil
	}
	if len(sheet.AnnualReports) == 0 {
		return nil
	}

	// reports are newest first
	latest := sheet.AnnualReports[0]
	bag := contracts.FieldBag{}
	for key, field := range balanceSheetFields {
		if v, ok := parseValue(latest[key]); ok {
			bag[field] = v
		}
	}
	return bag
}

func (f *Fetcher) overviewURL(symbol string) string {
	return f.queryURL("OVERVIEW", symbol)
}

func (f *Fetcher) queryURL(function, symbol string) string {
	q := url.Values{}
	q.Set("function", function)
	q.Set("symbol", symbol+".NSE")
	q.Set("apikey", f.apiKey)
	return fmt.Sprintf("%s/query?%s", f.baseURL, q.Encode())
}

// parseValue reads Alpha Vantage's stringly-typed numbers. "None", "-" and "" are absent.
func parseValue(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, v != 0
	case string:
		s := strings.TrimSpace(v)
		switch s {
		case "", "-", "None":
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f == 0 {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
