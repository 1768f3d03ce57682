package contracts

import (
	"encoding/json"
	"math"
	"strings"
)

// FieldBag maps canonical metric names to values returned by one data source
// ⭐ SSOT: 모든 provider는 이 어휘로만 값을 반환
type FieldBag map[string]interface{}

// Canonical field names shared by every source fetcher
const (
	FieldCurrentPrice         = "currentPrice"
	FieldMarketCap            = "marketCap"
	FieldPE                   = "pe_ratio"
	FieldPB                   = "pb_ratio"
	FieldPS                   = "ps_ratio"
	FieldPEG                  = "peg_ratio"
	FieldEPS                  = "eps"
	FieldROE                  = "roe"
	FieldROA                  = "roa"
	FieldProfitMargin         = "profit_margin"
	FieldOperatingMargin      = "operating_margin"
	FieldRevenue              = "revenue"
	FieldNetIncome            = "net_income"
	FieldQuarterlyRevenue     = "quarterly_revenue"
	FieldQuarterlyNetIncome   = "quarterly_net_income"
	FieldTotalAssets          = "total_assets"
	FieldCurrentAssets        = "current_assets"
	FieldTotalDebt            = "total_debt"
	FieldCurrentLiabilities   = "current_liabilities"
	FieldStockholdersEquity   = "stockholders_equity"
	FieldPromoterHolding      = "promoter_holding"
	FieldInstitutionalHolding = "institutional_holding"
	FieldWeek52High           = "week52High"
	FieldWeek52Low            = "week52Low"
	FieldVolume               = "volume"
	FieldRevenueGrowth        = "revenue_growth"
	FieldProfitGrowth         = "profit_growth"
	FieldEPSGrowth            = "eps_growth"
	FieldDividendYield        = "dividend_yield"
	FieldDayChange            = "dayChange"
	FieldYear1Change          = "year1Change"
	FieldBeta                 = "beta"
	FieldSMA50                = "sma50"
	FieldSMA200               = "sma200"

	// derived from daily price history
	FieldMonthChange = "monthChange"
	FieldQtrChange   = "qtrChange"
	FieldRSI         = "rsi"
	FieldMACD        = "macd"
	FieldADX         = "adx"
	FieldEMA20       = "ema20"
)

// Bookkeeping keys attached to a fused bag. Keys starting with "_" are never merged.
const (
	KeySources      = "_sources"
	KeyQualityScore = "_quality_score"
	KeyLastUpdated  = "_last_updated"

	// KeyPercentScale declares how a fetcher reports percentage fields:
	// ScaleFraction (0-1) or ScalePercent (0-100). Undeclared bags are detected per value.
	KeyPercentScale = "_percent_scale"
)

const (
	ScaleFraction = "fraction"
	ScalePercent  = "percent"
)

// DefaultRequiredFields is the checklist used by enrichment and the fusion endpoint
var DefaultRequiredFields = []string{
	FieldCurrentPrice,
	FieldMarketCap,
	FieldPE,
	FieldROE,
	FieldRevenue,
	FieldNetIncome,
	FieldTotalAssets,
	FieldTotalDebt,
}

// PriceFields is the checklist of the intraday price refresh
var PriceFields = []string{
	FieldCurrentPrice,
	FieldDayChange,
	FieldWeek52High,
	FieldWeek52Low,
	FieldVolume,
}

var percentageFields = map[string]bool{
	FieldROE:                  true,
	FieldROA:                  true,
	FieldProfitMargin:         true,
	FieldOperatingMargin:      true,
	FieldPromoterHolding:      true,
	FieldInstitutionalHolding: true,
	FieldRevenueGrowth:        true,
	FieldProfitGrowth:         true,
	FieldEPSGrowth:            true,
	FieldDividendYield:        true,
}

// IsPercentageField reports whether the field is expressed as a percentage once normalized
func IsPercentageField(key string) bool {
	return percentageFields[key]
}

// IsBookkeeping reports whether key is fusion metadata rather than a metric
func IsBookkeeping(key string) bool {
	return strings.HasPrefix(key, "_")
}

// IsPresent reports whether a value counts as data.
// nil, NaN, numeric zero and blank strings are all absent: providers use 0 as a null sentinel.
func IsPresent(v interface{}) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	if f, ok := ToFloat(v); ok {
		return f != 0
	}
	if _, ok := v.(json.Number); ok {
		return false
	}
	return true
}

// ToFloat converts numeric values to float64. NaN and Inf are rejected.
func ToFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Has reports whether key holds a present value
func (b FieldBag) Has(key string) bool {
	v, ok := b[key]
	return ok && IsPresent(v)
}

// Float returns the numeric value of key if it is present
func (b FieldBag) Float(key string) (float64, bool) {
	v, ok := b[key]
	if !ok || !IsPresent(v) {
		return 0, false
	}
	return ToFloat(v)
}

// Clone returns a shallow copy
func (b FieldBag) Clone() FieldBag {
	out := make(FieldBag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Metrics returns the non-bookkeeping numeric fields that are present
func (b FieldBag) Metrics() map[string]float64 {
	out := make(map[string]float64, len(b))
	for k := range b {
		if IsBookkeeping(k) {
			continue
		}
		if f, ok := b.Float(k); ok {
			out[k] = f
		}
	}
	return out
}
