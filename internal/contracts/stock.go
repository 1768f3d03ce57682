package contracts

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a stock does not exist in the repository
var ErrNotFound = errors.New("stock not found")

// Storage columns of the stocks table
// ⭐ SSOT: 컬럼 이름은 여기서만 정의
const (
	ColSymbol       = "nse_code"
	ColName         = "stock_name"
	ColSector       = "sector_name"
	ColIndustry     = "industry_name"
	ColDataSources  = "data_sources"
	ColQualityScore = "data_quality_score"

	ColCurrentPrice     = "current_price"
	ColDayChange        = "day_change_pct"
	ColMonthChange      = "month_change_pct"
	ColQtrChange        = "qtr_change_pct"
	ColYear1Change      = "year_1_change_pct"
	ColWeek52High       = "week_52_high"
	ColWeek52Low        = "week_52_low"
	ColVolume           = "volume"
	ColMarketCap        = "market_cap"
	ColPE               = "pe_ttm"
	ColPB               = "pb_ratio"
	ColPS               = "ps_ratio"
	ColPEG              = "peg_ratio"
	ColEPS              = "eps_ttm"
	ColROE              = "roe_annual_pct"
	ColROA              = "roa_annual_pct"
	ColOperatingMargin  = "operating_margin_pct"
	ColNetMargin        = "net_profit_margin_pct"
	ColRevenueGrowth    = "revenue_growth_yoy_pct"
	ColProfitGrowth     = "profit_growth_yoy_pct"
	ColEPSGrowth        = "eps_growth_pct"
	ColDebtToEquity     = "debt_to_equity"
	ColCurrentRatio     = "current_ratio"
	ColRevenueAnnual    = "revenue_annual"
	ColRevenueQtr       = "revenue_qtr"
	ColNetProfitAnnual  = "net_profit_annual"
	ColNetProfitQtr     = "net_profit_qtr"
	ColTotalAssets      = "total_assets"
	ColCurrentAssets    = "current_assets"
	ColTotalDebt        = "total_debt"
	ColCurrentLiab      = "current_liabilities"
	ColEquity           = "stockholders_equity"
	ColRSI              = "rsi"
	ColMACD             = "macd"
	ColADX              = "adx"
	ColBeta             = "beta_1yr"
	ColSMA50            = "sma_50"
	ColSMA200           = "sma_200"
	ColEMA20            = "ema_20"
	ColDividendYield    = "dividend_yield_pct"
	ColPromoterHolding  = "promoter_holding_pct"
	ColInstHolding      = "institutional_holding_pct"
	ColFIIHolding       = "fii_holding_pct"
	ColDIIHolding       = "dii_holding_pct"
	ColMFHolding        = "mf_holding_pct"
	ColDurabilityScore  = "durability_score"
	ColValuationScore   = "valuation_score"
	ColMomentumScore    = "momentum_score"
	ColRelStrengthScore = "rel_strength_score"
)

// TextColumns are the string-valued columns a predicate can target
var TextColumns = []string{ColSymbol, ColName, ColSector, ColIndustry, ColDataSources}

// MetricColumns are the numeric columns stored in StockRecord.Metrics
var MetricColumns = []string{
	ColCurrentPrice, ColDayChange, ColMonthChange, ColQtrChange, ColYear1Change,
	ColWeek52High, ColWeek52Low, ColVolume, ColMarketCap,
	ColPE, ColPB, ColPS, ColPEG, ColEPS,
	ColROE, ColROA, ColOperatingMargin, ColNetMargin,
	ColRevenueGrowth, ColProfitGrowth, ColEPSGrowth,
	ColDebtToEquity, ColCurrentRatio,
	ColRevenueAnnual, ColRevenueQtr, ColNetProfitAnnual, ColNetProfitQtr,
	ColTotalAssets, ColCurrentAssets, ColTotalDebt, ColCurrentLiab, ColEquity,
	ColRSI, ColMACD, ColADX, ColBeta, ColSMA50, ColSMA200, ColEMA20,
	ColDividendYield, ColPromoterHolding, ColInstHolding, ColFIIHolding, ColDIIHolding, ColMFHolding,
	ColDurabilityScore, ColValuationScore, ColMomentumScore, ColRelStrengthScore,
}

var (
	textColumnSet   = toSet(TextColumns)
	metricColumnSet = toSet(MetricColumns)
)

func toSet(cols []string) map[string]bool {
	m := make(map[string]bool, len(cols))
	for _, c := range cols {
		m[c] = true
	}
	return m
}

// IsTextColumn reports whether column holds strings
func IsTextColumn(column string) bool {
	return textColumnSet[column]
}

// IsNumericColumn reports whether column holds numbers (metrics or the quality score)
func IsNumericColumn(column string) bool {
	return metricColumnSet[column] || column == ColQualityScore
}

// IsKnownColumn reports whether column exists in the stocks table
func IsKnownColumn(column string) bool {
	return IsTextColumn(column) || IsNumericColumn(column)
}

// Metrics maps numeric column names to values. A missing key is NULL.
type Metrics map[string]float64

// Get returns the value of column and whether it is non-null
func (m Metrics) Get(column string) (float64, bool) {
	v, ok := m[column]
	return v, ok
}

// Clone returns a copy
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Overlay returns a copy of m with every value of update applied on top
func (m Metrics) Overlay(update Metrics) Metrics {
	out := m.Clone()
	for k, v := range update {
		out[k] = v
	}
	return out
}

// StockIdentity is one row of an inbound stock list
type StockIdentity struct {
	Symbol   string `json:"symbol" validate:"required"`
	Name     string `json:"name"`
	Sector   string `json:"sector,omitempty"`
	Industry string `json:"industry,omitempty"`
}

// NormalizeSymbol upper-cases and strips exchange suffixes (.NS, .BO)
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimSuffix(s, ".NS")
	s = strings.TrimSuffix(s, ".BO")
	return s
}

// StockRecord is one persisted stock
// ⭐ SSOT: 종목 레코드 구조는 여기서만
type StockRecord struct {
	ID               int64      `json:"id"`
	Symbol           string     `json:"symbol"`
	Name             string     `json:"name"`
	Sector           string     `json:"sector,omitempty"`
	Industry         string     `json:"industry,omitempty"`
	Metrics          Metrics    `json:"metrics"`
	DataQualityScore int        `json:"data_quality_score"`
	DataSources      string     `json:"data_sources,omitempty"` // comma-joined
	LastUpdated      *time.Time `json:"last_updated,omitempty"`
}

// Text returns a text column value
func (r *StockRecord) Text(column string) (string, bool) {
	switch column {
	case ColSymbol:
		return r.Symbol, true
	case ColName:
		return r.Name, r.Name != ""
	case ColSector:
		return r.Sector, r.Sector != ""
	case ColIndustry:
		return r.Industry, r.Industry != ""
	case ColDataSources:
		return r.DataSources, r.DataSources != ""
	}
	return "", false
}

// Number returns a numeric column value and whether it is non-null
func (r *StockRecord) Number(column string) (float64, bool) {
	if column == ColQualityScore {
		return float64(r.DataQualityScore), true
	}
	return r.Metrics.Get(column)
}

// IsPlaceholder reports whether the record was never successfully enriched
func (r *StockRecord) IsPlaceholder() bool {
	return r.DataQualityScore == 0
}

// IsStale reports whether the record needs a refresh
func (r *StockRecord) IsStale(acceptQuality int, staleBefore time.Time) bool {
	if r.DataQualityScore < acceptQuality {
		return true
	}
	return r.LastUpdated == nil || r.LastUpdated.Before(staleBefore)
}

// Clone returns a deep copy
func (r *StockRecord) Clone() *StockRecord {
	out := *r
	out.Metrics = r.Metrics.Clone()
	if r.LastUpdated != nil {
		t := *r.LastUpdated
		out.LastUpdated = &t
	}
	return &out
}
