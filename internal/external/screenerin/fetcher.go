package screenerin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/httputil"
	"github.com/wonny/stockfusion/pkg/logger"
)

// SourceName is recorded in sources_used
const SourceName = "screener.in"

// crore converts screener.in's "Cr." figures to absolute rupees
const crore = 1e7

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Fetcher scrapes screener.in company pages
// ⭐ SSOT: screener.in 스크래핑은 이 fetcher에서만
type Fetcher struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	enabled    bool
}

// NewFetcher creates a screener.in fetcher
func NewFetcher(httpClient *httputil.Client, baseURL string, enabled bool, log *logger.Logger) *Fetcher {
	httpClient.WithHeader("Accept", "text/html,application/xhtml+xml")
	return &Fetcher{
		httpClient: httpClient,
		logger:     log.Module("screenerin"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		enabled:    enabled,
	}
}

func (f *Fetcher) Name() string    { return SourceName }
func (f *Fetcher) Available() bool { return f.enabled }

// Fetch reads the consolidated page, falling back to the standalone one
func (f *Fetcher) Fetch(ctx context.Context, symbol string, _ []string) (contracts.FieldBag, bool) {
	if !f.enabled {
		return nil, false
	}
	symbol = contracts.NormalizeSymbol(symbol)
	log := f.logger.WithField("symbol", symbol)

	doc, err := f.fetchPage(ctx, symbol)
	if err != nil {
		log.WithError(err).Debug("screener.in fetch failed")
		return nil, false
	}

	bag := parseCompany(doc)
	if len(bag) == 0 {
		log.Debug("screener.in page had no usable figures")
		return nil, false
	}
	// screener.in prints percentages as percentages
	bag[contracts.KeyPercentScale] = contracts.ScalePercent
	return bag, true
}

func (f *Fetcher) fetchPage(ctx context.Context, symbol string) (*goquery.Document, error) {
	escaped := url.PathEscape(symbol)
	pages := []string{
		fmt.Sprintf("%s/company/%s/consolidated/", f.baseURL, escaped),
		fmt.Sprintf("%s/company/%s/", f.baseURL, escaped),
	}

	var lastErr error
	for _, page := range pages {
		body, err := f.httpClient.GetBody(ctx, page)
		if err != nil {
			lastErr = err
			var statusErr *httputil.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			lastErr = fmt.Errorf("parse html: %w", err)
			continue
		}
		if doc.Find("#top-ratios").Length() == 0 {
			lastErr = fmt.Errorf("no ratios on %s", page)
			continue
		}
		return doc, nil
	}
	return nil, lastErr
}

// parseCompany extracts the canonical fields from a company page
func parseCompany(doc *goquery.Document) contracts.FieldBag {
	bag := contracts.FieldBag{}
	set := func(key string, v float64) {
		if v != 0 {
			bag[key] = v
		}
	}

	ratios := topRatios(doc)
	price, priceOK := firstNumber(ratios["current price"])
	if priceOK {
		set(contracts.FieldCurrentPrice, price)
	}

	if mcap, ok := firstNumber(ratios["market cap"]); ok {
		set(contracts.FieldMarketCap, mcap*crore)
	}
	if nums := numbers(ratios["high / low"]); len(nums) == 2 {
		set(contracts.FieldWeek52High, nums[0])
		set(contracts.FieldWeek52Low, nums[1])
	}
	if v, ok := firstNumber(ratios["stock p/e"]); ok {
		set(contracts.FieldPE, v)
	}
	if v, ok := firstNumber(ratios["dividend yield"]); ok {
		set(contracts.FieldDividendYield, v)
	}
	if v, ok := firstNumber(ratios["roe"]); ok {
		set(contracts.FieldROE, v)
	}
	if book, ok := firstNumber(ratios["book value"]); ok && book > 0 && priceOK {
		set(contracts.FieldPB, price/book)
	}

	pl := sectionTable(doc, "#profit-loss")
	if v, ok := pl.latest("Sales", "Revenue", "Total Income"); ok {
		set(contracts.FieldRevenue, v*crore)
	}
	if v, ok := pl.latest("Net Profit"); ok {
		set(contracts.FieldNetIncome, v*crore)
	}
	if v, ok := pl.latest("OPM %"); ok {
		set(contracts.FieldOperatingMargin, v)
	}

	if rev, ok := pl.latest("Sales", "Revenue"); ok {
		if np, ok := pl.latest("Net Profit"); ok && rev != 0 {
			set(contracts.FieldProfitMargin, np/rev*100)
		}
	}
	if g, ok := pl.growth("Sales", "Revenue"); ok {
		set(contracts.FieldRevenueGrowth, g)
	}
	if g, ok := pl.growth("Net Profit"); ok {
		set(contracts.FieldProfitGrowth, g)
	}
	if g, ok := pl.growth("EPS in Rs"); ok {
		set(contracts.FieldEPSGrowth, g)
	}

	qtr := sectionTable(doc, "#quarters")
	if v, ok := qtr.latest("Sales", "Revenue"); ok {
		set(contracts.FieldQuarterlyRevenue, v*crore)
	}
	if v, ok := qtr.latest("Net Profit"); ok {
		set(contracts.FieldQuarterlyNetIncome, v*crore)
	}

	bs := sectionTable(doc, "#balance-sheet")
	if v, ok := bs.latest("Borrowings"); ok {
		set(contracts.FieldTotalDebt, v*crore)
	}
	if v, ok := bs.latest("Total Assets"); ok {
		set(contracts.FieldTotalAssets, v*crore)
	}
	// "Other Assets" and "Other Liabilities" are screener.in's working-capital rows
	// (inventories, receivables, cash / payables, advances)
	if v, ok := bs.latest("Other Assets"); ok {
		set(contracts.FieldCurrentAssets, v*crore)
	}
	if v, ok := bs.latest("Other Liabilities"); ok {
		set(contracts.FieldCurrentLiabilities, v*crore)
	}
	if assets, ok := bs.latest("Total Assets"); ok && assets > 0 {
		if np, ok := pl.latest("Net Profit"); ok {
			set(contracts.FieldROA, np/assets*100)
		}
	}
	capital, capOK := bs.latest("Equity Capital", "Share Capital")
	reserves, resOK := bs.latest("Reserves")
	if capOK && resOK {
		set(contracts.FieldStockholdersEquity, (capital+reserves)*crore)
	}

	sh := sectionTable(doc, "#shareholding")
	if v, ok := sh.latest("Promoters"); ok {
		set(contracts.FieldPromoterHolding, v)
	}
	fii, fiiOK := sh.latest("FIIs")
	dii, diiOK := sh.latest("DIIs")
	if fiiOK || diiOK {
		set(contracts.FieldInstitutionalHolding, fii+dii)
	}

	return bag
}

// topRatios maps lower-cased ratio names of #top-ratios to their raw text
func topRatios(doc *goquery.Document) map[string]string {
	out := make(map[string]string)
	doc.Find("#top-ratios li").Each(func(_ int, s *goquery.Selection) {
		name := strings.ToLower(normalizeLabel(s.Find(".name").Text()))
		if name == "" {
			return
		}
		out[name] = s.Find(".value").Text()
	})
	return out
}

// table is a label → values view of one screener.in section table
type table map[string][]*float64

func sectionTable(doc *goquery.Document, section string) table {
	t := table{}
	doc.Find(section + " table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := normalizeLabel(cells.First().Text())
		values := make([]*float64, 0, cells.Length()-1)
		cells.Slice(1, cells.Length()).Each(func(_ int, c *goquery.Selection) {
			if v, ok := parseNumber(c.Text()); ok {
				values = append(values, &v)
			} else {
				values = append(values, nil)
			}
		})
		if _, exists := t[label]; !exists {
			t[label] = values
		}
	})
	return t
}

func (t table) row(labels ...string) []*float64 {
	for _, l := range labels {
		if vals, ok := t[l]; ok {
			return vals
		}
	}
	return nil
}

// latest returns the right-most value of the first matching row
func (t table) latest(labels ...string) (float64, bool) {
	vals := t.row(labels...)
	for i := len(vals) - 1; i >= 0; i-- {
		if vals[i] != nil {
			return *vals[i], true
		}
	}
	return 0, false
}

// growth returns the percent change between the two right-most values
func (t table) growth(labels ...string) (float64, bool) {
	vals := t.row(labels...)
	var found []float64
	for i := len(vals) - 1; i >= 0 && len(found) < 2; i-- {
		if vals[i] != nil {
			found = append(found, *vals[i])
		}
	}
	if len(found) < 2 || found[1] <= 0 {
		return 0, false
	}
	return (found[0]/found[1] - 1) * 100, true
}

// normalizeLabel strips "+" expanders and collapses whitespace (incl. &nbsp;)
func normalizeLabel(s string) string {
	s = strings.ReplaceAll(s, "+", "")
	return strings.Join(strings.Fields(s), " ")
}

// parseNumber reads "1,234.5", "−12", "15 %"; "-" and blanks are absent
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "−", "-")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// numbers extracts every number of a ratio value such as "₹ 3,218 / 2,221"
func numbers(s string) []float64 {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "−", "-")
	var out []float64
	for _, m := range numberRe.FindAllString(s, -1) {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func firstNumber(s string) (float64, bool) {
	nums := numbers(s)
	if len(nums) == 0 {
		return 0, false
	}
	return nums[0], true
}
