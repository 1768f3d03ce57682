package scoring

import "github.com/wonny/stockfusion/internal/contracts"

// Momentum blends relative strength, proximity to the 52-week high and
// distance from the 52-week low (0-100).
//
//	relative strength   up to 40 (percentile/100*40, or a 1-year return tier when no percentile)
//	52w-high proximity  up to 30
//	above 52w-low +10%  10
func Momentum(m contracts.Metrics) int {
	score := 0.0

	// percentile 0 is indistinguishable from "not ranked yet" and falls back to the raw return
	if rs, ok := m.Get(contracts.ColRelStrengthScore); ok && rs > 0 {
		score += rs / 100 * 40
	} else if ret, ok := m.Get(contracts.ColYear1Change); ok {
		switch {
		case ret > 50:
			score += 40
		case ret > 20:
			score += 30
		case ret > 0:
			score += 15
		}
	}

	price, hasPrice := positive(m, contracts.ColCurrentPrice)
	if !hasPrice {
		return clamp(int(score))
	}

	if high, ok := positive(m, contracts.ColWeek52High); ok {
		proximity := price / high
		switch {
		case proximity > 0.95:
			score += 30
		case proximity > 0.85:
			score += 20
		case proximity > 0.75:
			score += 10
		}
	}

	if low, ok := positive(m, contracts.ColWeek52Low); ok && price > low*1.1 {
		score += 10
	}

	return clamp(int(score))
}
