package fusion

import (
	"math"

	"github.com/wonny/stockfusion/internal/contracts"
)

// Score computes the completeness of bag against required.
// score = round(100 * present / len(required)); an empty checklist scores 0.
// ⭐ SSOT: 품질 점수 계산은 여기서만
func Score(bag contracts.FieldBag, required []string) (int, []string) {
	missing := make([]string, 0, len(required))
	if len(required) == 0 {
		return 0, missing
	}

	present := 0
	for _, field := range required {
		if bag.Has(field) {
			present++
		} else {
			missing = append(missing, field)
		}
	}

	score := int(math.Round(100 * float64(present) / float64(len(required))))
	return score, missing
}
