package enrichment

import "github.com/wonny/stockfusion/internal/contracts"

// fieldColumns maps canonical FieldBag keys to stocks columns
// ⭐ SSOT: 필드 → 컬럼 매핑은 여기서만
var fieldColumns = map[string]string{
	contracts.FieldCurrentPrice:         contracts.ColCurrentPrice,
	contracts.FieldMarketCap:            contracts.ColMarketCap,
	contracts.FieldPE:                   contracts.ColPE,
	contracts.FieldPB:                   contracts.ColPB,
	contracts.FieldPS:                   contracts.ColPS,
	contracts.FieldPEG:                  contracts.ColPEG,
	contracts.FieldEPS:                  contracts.ColEPS,
	contracts.FieldROE:                  contracts.ColROE,
	contracts.FieldROA:                  contracts.ColROA,
	contracts.FieldProfitMargin:         contracts.ColNetMargin,
	contracts.FieldOperatingMargin:      contracts.ColOperatingMargin,
	contracts.FieldRevenue:              contracts.ColRevenueAnnual,
	contracts.FieldNetIncome:            contracts.ColNetProfitAnnual,
	contracts.FieldQuarterlyRevenue:     contracts.ColRevenueQtr,
	contracts.FieldQuarterlyNetIncome:   contracts.ColNetProfitQtr,
	contracts.FieldTotalAssets:          contracts.ColTotalAssets,
	contracts.FieldCurrentAssets:        contracts.ColCurrentAssets,
	contracts.FieldTotalDebt:            contracts.ColTotalDebt,
	contracts.FieldCurrentLiabilities:   contracts.ColCurrentLiab,
	contracts.FieldStockholdersEquity:   contracts.ColEquity,
	contracts.FieldPromoterHolding:      contracts.ColPromoterHolding,
	contracts.FieldInstitutionalHolding: contracts.ColInstHolding,
	contracts.FieldWeek52High:           contracts.ColWeek52High,
	contracts.FieldWeek52Low:            contracts.ColWeek52Low,
	contracts.FieldVolume:               contracts.ColVolume,
	contracts.FieldRevenueGrowth:        contracts.ColRevenueGrowth,
	contracts.FieldProfitGrowth:         contracts.ColProfitGrowth,
	contracts.FieldEPSGrowth:            contracts.ColEPSGrowth,
	contracts.FieldDividendYield:        contracts.ColDividendYield,
	contracts.FieldDayChange:            contracts.ColDayChange,
	contracts.FieldYear1Change:          contracts.ColYear1Change,
	contracts.FieldBeta:                 contracts.ColBeta,
	contracts.FieldSMA50:                contracts.ColSMA50,
	contracts.FieldSMA200:               contracts.ColSMA200,
	contracts.FieldMonthChange:          contracts.ColMonthChange,
	contracts.FieldQtrChange:            contracts.ColQtrChange,
	contracts.FieldRSI:                  contracts.ColRSI,
	contracts.FieldMACD:                 contracts.ColMACD,
	contracts.FieldADX:                  contracts.ColADX,
	contracts.FieldEMA20:                contracts.ColEMA20,
}

// ColumnFor returns the storage column of a canonical field
func ColumnFor(field string) (string, bool) {
	col, ok := fieldColumns[field]
	return col, ok
}

// ToMetrics converts the present, mapped fields of a bag to column values.
// Unmapped keys and bookkeeping are dropped.
func ToMetrics(bag contracts.FieldBag) contracts.Metrics {
	out := contracts.Metrics{}
	for field, v := range bag.Metrics() {
		if col, ok := fieldColumns[field]; ok {
			out[col] = v
		}
	}
	return out
}

// DeriveRatios computes ratios no provider reports directly.
// A ratio is left out when either operand is missing or zero.
func DeriveRatios(m contracts.Metrics) contracts.Metrics {
	out := contracts.Metrics{}
	if v, ok := ratio(m, contracts.ColTotalDebt, contracts.ColEquity); ok {
		out[contracts.ColDebtToEquity] = v
	}
	if v, ok := ratio(m, contracts.ColCurrentAssets, contracts.ColCurrentLiab); ok {
		out[contracts.ColCurrentRatio] = v
	}
	return out
}

func ratio(m contracts.Metrics, num, den string) (float64, bool) {
	n, ok := m.Get(num)
	if !ok || n == 0 {
		return 0, false
	}
	d, ok := m.Get(den)
	if !ok || d == 0 {
		return 0, false
	}
	return n / d, true
}
