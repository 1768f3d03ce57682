package scoring

import "github.com/wonny/stockfusion/internal/contracts"

const valuationPoints = 5

// Valuation scores cheapness (0-100, higher = cheaper).
// A stock without a meaningful P/E (absent or <= 0) scores 0.
func Valuation(m contracts.Metrics) int {
	pe, ok := m.Get(contracts.ColPE)
	if !ok || pe <= 0 {
		return 0
	}

	points := 0
	if pe < 15 {
		points++
	}
	if pe < 30 {
		points++
	}
	if peg, ok := m.Get(contracts.ColPEG); ok && peg > 0 && peg < 1.5 {
		points++
	}
	if pb, ok := m.Get(contracts.ColPB); ok && pb > 0 && pb < 3 {
		points++
	}
	if above(m, contracts.ColDividendYield, 1) {
		points++
	}

	return clamp(points * 100 / valuationPoints)
}
