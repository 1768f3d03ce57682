package scoring

import "github.com/wonny/stockfusion/internal/contracts"

// durabilityPoints is the number of criteria below
const durabilityPoints = 10

// Durability scores balance-sheet strength and profitability (0-100).
// One point per criterion met, normalized over ten criteria.
// A missing metric fails every criterion that reads it.
func Durability(m contracts.Metrics) int {
	points := 0
	award := func(ok bool) {
		if ok {
			points++
		}
	}

	award(above(m, contracts.ColROA, 0))
	award(above(m, contracts.ColOperatingMargin, 0))
	award(above(m, contracts.ColROA, 10))

	// 부채비율: D/E가 없으면 두 항목 모두 미충족
	de, hasDE := m.Get(contracts.ColDebtToEquity)
	award(hasDE && de < 1.0)
	award(hasDE && de < 0.1)

	award(above(m, contracts.ColCurrentRatio, 1.5))
	award(above(m, contracts.ColNetMargin, 10))
	award(above(m, contracts.ColEPSGrowth, 0))
	award(above(m, contracts.ColPromoterHolding, 30))
	award(above(m, contracts.ColROE, 15))

	return clamp(points * 100 / durabilityPoints)
}

func above(m contracts.Metrics, column string, threshold float64) bool {
	v, ok := m.Get(column)
	return ok && v > threshold
}

func positive(m contracts.Metrics, column string) (float64, bool) {
	v, ok := m.Get(column)
	if !ok || v <= 0 {
		return v, false
	}
	return v, true
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
