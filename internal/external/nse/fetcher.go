package nse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/httputil"
	"github.com/wonny/stockfusion/pkg/logger"
)

// SourceName is recorded in sources_used
const SourceName = "NSE"

// Fetcher reads the NSE quote API
// ⭐ SSOT: NSE API 호출은 이 fetcher에서만
type Fetcher struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	enabled    bool

	mu     sync.Mutex
	primed bool
}

// NewFetcher creates an NSE fetcher. The client must keep cookies: NSE only
// answers the API once the home page has set its session cookies.
func NewFetcher(httpClient *httputil.Client, baseURL string, enabled bool, log *logger.Logger) *Fetcher {
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient.WithHeader("Referer", baseURL+"/").WithHeader("Accept", "application/json, text/plain, */*")

	return &Fetcher{
		httpClient: httpClient,
		logger:     log.Module("nse"),
		baseURL:    baseURL,
		enabled:    enabled,
	}
}

func (f *Fetcher) Name() string    { return SourceName }
func (f *Fetcher) Available() bool { return f.enabled }

// quoteResponse is the subset of /api/quote-equity we use
type quoteResponse struct {
	Info struct {
		Symbol      string `json:"symbol"`
		CompanyName string `json:"companyName"`
	} `json:"info"`
	Metadata struct {
		PdSymbolPe interface{} `json:"pdSymbolPe"`
	} `json:"metadata"`
	SecurityInfo struct {
		IssuedSize float64 `json:"issuedSize"`
	} `json:"securityInfo"`
	PriceInfo struct {
		LastPrice   float64 `json:"lastPrice"`
		Close       float64 `json:"close"`
		PChange     float64 `json:"pChange"`
		WeekHighLow struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"weekHighLow"`
	} `json:"priceInfo"`
	PreOpenMarket struct {
		TotalTradedVolume float64 `json:"totalTradedVolume"`
	} `json:"preOpenMarket"`
}

// Fetch returns price and valuation fields for symbol
func (f *Fetcher) Fetch(ctx context.Context, symbol string, _ []string) (contracts.FieldBag, bool) {
	if !f.enabled {
		return nil, false
	}
	symbol = contracts.NormalizeSymbol(symbol)
	log := f.logger.WithField("symbol", symbol)

	quote, err := f.fetchQuote(ctx, symbol)
	if err != nil {
		log.WithError(err).Debug("NSE fetch failed")
		return nil, false
	}

	bag := toFieldBag(quote)
	if len(bag) == 0 {
		log.Debug("NSE returned an empty quote")
		return nil, false
	}
	return bag, true
}

func (f *Fetcher) fetchQuote(ctx context.Context, symbol string) (*quoteResponse, error) {
	if err := f.prime(ctx, false); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/quote-equity?symbol=%s", f.baseURL, url.QueryEscape(symbol))

	var quote quoteResponse
	err := f.httpClient.GetJSON(ctx, endpoint, &quote)

	// 세션 쿠키 만료 시 한 번 재시도
	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
		if err := f.prime(ctx, true); err != nil {
			return nil, err
		}
		quote = quoteResponse{}
		err = f.httpClient.GetJSON(ctx, endpoint, &quote)
	}
	if err != nil {
		return nil, fmt.Errorf("quote-equity %s: %w", symbol, err)
	}
	return &quote, nil
}

// prime visits the home page once so the cookie jar holds a session
func (f *Fetcher) prime(ctx context.Context, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.primed && !force {
		return nil
	}
	if _, err := f.httpClient.GetBody(ctx, f.baseURL+"/"); err != nil {
		return fmt.Errorf("prime session: %w", err)
	}
	f.primed = true
	return nil
}

func toFieldBag(q *quoteResponse) contracts.FieldBag {
	bag := contracts.FieldBag{}

	price := q.PriceInfo.LastPrice
	if price == 0 {
		price = q.PriceInfo.Close
	}
	set(bag, contracts.FieldCurrentPrice, price)
	set(bag, contracts.FieldDayChange, q.PriceInfo.PChange)
	set(bag, contracts.FieldWeek52High, q.PriceInfo.WeekHighLow.Max)
	set(bag, contracts.FieldWeek52Low, q.PriceInfo.WeekHighLow.Min)
	set(bag, contracts.FieldVolume, q.PreOpenMarket.TotalTradedVolume)

	// pdSymbolPe is a number or "-"
	if pe, ok := contracts.ToFloat(q.Metadata.PdSymbolPe); ok {
		set(bag, contracts.FieldPE, pe)
	}

	if price > 0 && q.SecurityInfo.IssuedSize > 0 {
		set(bag, contracts.FieldMarketCap, price*q.SecurityInfo.IssuedSize)
	}

	return bag
}

func set(bag contracts.FieldBag, key string, v float64) {
	if v != 0 {
		bag[key] = v
	}
}
