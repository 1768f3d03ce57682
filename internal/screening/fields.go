package screening

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/stockfusion/internal/contracts"
)

// ErrUnknownField is returned when a field name resolves to no storage column
var ErrUnknownField = errors.New("unknown field")

// Field categories shown by AvailableFields
const (
	CategoryIdentity      = "Identity"
	CategoryPrice         = "Price"
	CategoryValuation     = "Valuation"
	CategoryProfitability = "Profitability"
	CategoryGrowth        = "Growth"
	CategoryLiquidity     = "Liquidity"
	CategoryFinancials    = "Financials"
	CategoryTechnical     = "Technical"
	CategoryMomentum      = "Momentum"
	CategoryDividend      = "Dividend"
	CategoryHoldings      = "Holdings"
	CategoryScores        = "Scores"
	CategoryQuality       = "Quality"
)

// FieldInfo describes one caller-facing field
type FieldInfo struct {
	Name     string `json:"name"`
	Column   string `json:"column"`
	Category string `json:"category"`
	Type     string `json:"type"` // "text" | "number"
}

// displayFields maps display names to storage columns.
// ⭐ SSOT: 화면 필드명 ↔ 컬럼 매핑은 여기서만
var displayFields = []FieldInfo{
	{Name: "Stock Name", Column: contracts.ColName, Category: CategoryIdentity},
	{Name: "NSE Code", Column: contracts.ColSymbol, Category: CategoryIdentity},
	{Name: "Sector", Column: contracts.ColSector, Category: CategoryIdentity},
	{Name: "Industry", Column: contracts.ColIndustry, Category: CategoryIdentity},

	{Name: "Current Price", Column: contracts.ColCurrentPrice, Category: CategoryPrice},
	{Name: "Day change %", Column: contracts.ColDayChange, Category: CategoryPrice},
	{Name: "Month Change %", Column: contracts.ColMonthChange, Category: CategoryPrice},
	{Name: "Qtr Change %", Column: contracts.ColQtrChange, Category: CategoryPrice},
	{Name: "1Yr change %", Column: contracts.ColYear1Change, Category: CategoryPrice},
	{Name: "52 Week High", Column: contracts.ColWeek52High, Category: CategoryPrice},
	{Name: "52 Week Low", Column: contracts.ColWeek52Low, Category: CategoryPrice},
	{Name: "Volume", Column: contracts.ColVolume, Category: CategoryPrice},

	{Name: "Market Capitalization", Column: contracts.ColMarketCap, Category: CategoryValuation},
	{Name: "PE TTM Price to Earnings", Column: contracts.ColPE, Category: CategoryValuation},
	{Name: "Price to Book Value Adjusted", Column: contracts.ColPB, Category: CategoryValuation},
	{Name: "PS Price to Sales", Column: contracts.ColPS, Category: CategoryValuation},
	{Name: "PEG TTM PE to Growth", Column: contracts.ColPEG, Category: CategoryValuation},

	{Name: "ROE Annual %", Column: contracts.ColROE, Category: CategoryProfitability},
	{Name: "RoA Annual %", Column: contracts.ColROA, Category: CategoryProfitability},
	{Name: "Operating Profit Margin Qtr %", Column: contracts.ColOperatingMargin, Category: CategoryProfitability},
	{Name: "Net Profit Margin Annual %", Column: contracts.ColNetMargin, Category: CategoryProfitability},

	{Name: "Revenue Growth Annual YoY %", Column: contracts.ColRevenueGrowth, Category: CategoryGrowth},
	{Name: "Net Profit Annual YoY Growth %", Column: contracts.ColProfitGrowth, Category: CategoryGrowth},
	{Name: "EPS TTM Growth %", Column: contracts.ColEPSGrowth, Category: CategoryGrowth},

	{Name: "Debt to Equity Ratio", Column: contracts.ColDebtToEquity, Category: CategoryLiquidity},
	{Name: "Current Ratio", Column: contracts.ColCurrentRatio, Category: CategoryLiquidity},

	{Name: "Operating Revenue Annual", Column: contracts.ColRevenueAnnual, Category: CategoryFinancials},
	{Name: "Operating Revenue Qtr", Column: contracts.ColRevenueQtr, Category: CategoryFinancials},
	{Name: "Net Profit Annual", Column: contracts.ColNetProfitAnnual, Category: CategoryFinancials},
	{Name: "Net Profit Qtr", Column: contracts.ColNetProfitQtr, Category: CategoryFinancials},

	{Name: "Day RSI", Column: contracts.ColRSI, Category: CategoryTechnical},
	{Name: "Day MACD", Column: contracts.ColMACD, Category: CategoryTechnical},
	{Name: "Day ADX", Column: contracts.ColADX, Category: CategoryTechnical},
	{Name: "Beta 1Year", Column: contracts.ColBeta, Category: CategoryTechnical},
	{Name: "Day SMA50", Column: contracts.ColSMA50, Category: CategoryTechnical},
	{Name: "Day SMA200", Column: contracts.ColSMA200, Category: CategoryTechnical},
	{Name: "Day EMA20", Column: contracts.ColEMA20, Category: CategoryTechnical},

	{Name: "Trendlyne Momentum Score", Column: contracts.ColMomentumScore, Category: CategoryMomentum},
	{Name: "Relative Strength", Column: contracts.ColRelStrengthScore, Category: CategoryMomentum},

	{Name: "Dividend Yield Annual %", Column: contracts.ColDividendYield, Category: CategoryDividend},

	{Name: "Promoter holding latest %", Column: contracts.ColPromoterHolding, Category: CategoryHoldings},
	{Name: "FII holding current Qtr %", Column: contracts.ColFIIHolding, Category: CategoryHoldings},
	{Name: "MF holding current Qtr %", Column: contracts.ColMFHolding, Category: CategoryHoldings},

	{Name: "Durability Score", Column: contracts.ColDurabilityScore, Category: CategoryScores},
	{Name: "Valuation Score", Column: contracts.ColValuationScore, Category: CategoryScores},

	{Name: "Data Quality Score", Column: contracts.ColQualityScore, Category: CategoryQuality},
}

var (
	byDisplayName = map[string]string{}
	byColumn      = map[string]string{}
)

func init() {
	for i := range displayFields {
		f := &displayFields[i]
		f.Type = columnType(f.Column)
		byDisplayName[f.Name] = f.Column
		byColumn[f.Column] = f.Name
	}
}

func columnType(column string) string {
	if contracts.IsTextColumn(column) {
		return "text"
	}
	return "number"
}

// ResolveField turns a caller-facing field name into a storage column.
// Display names are looked up first, then the lowercase/underscore transform
// is tried. Names that land on no known column are rejected.
func ResolveField(name string) (string, error) {
	if col, ok := byDisplayName[name]; ok {
		return col, nil
	}

	col := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	if contracts.IsKnownColumn(col) {
		return col, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// DisplayName returns the caller-facing name of a column (the column itself when unmapped)
func DisplayName(column string) string {
	if name, ok := byColumn[column]; ok {
		return name
	}
	return column
}

// Fields returns every mapped field in display order
func Fields() []FieldInfo {
	out := make([]FieldInfo, len(displayFields))
	copy(out, displayFields)
	return out
}
