package scoring

import (
	"github.com/wonny/stockfusion/internal/contracts"
	"github.com/wonny/stockfusion/pkg/logger"
)

// Scores holds the three composite scores of one stock
type Scores struct {
	Durability int `json:"durability_score"`
	Valuation  int `json:"valuation_score"`
	Momentum   int `json:"momentum_score"`
}

// Metrics returns the scores keyed by storage column
func (s Scores) Metrics() contracts.Metrics {
	return contracts.Metrics{
		contracts.ColDurabilityScore: float64(s.Durability),
		contracts.ColValuationScore:  float64(s.Valuation),
		contracts.ColMomentumScore:   float64(s.Momentum),
	}
}

// Calculator computes composite scores over persisted metrics
// ⭐ SSOT: 종합 점수 계산은 여기서만
type Calculator struct {
	logger *logger.Logger
}

// NewCalculator creates a new score calculator
func NewCalculator(log *logger.Logger) *Calculator {
	return &Calculator{
		logger: log.Module("scoring"),
	}
}

// Calculate scores one stock
func (c *Calculator) Calculate(symbol string, m contracts.Metrics) Scores {
	s := Scores{
		Durability: Durability(m),
		Valuation:  Valuation(m),
		Momentum:   Momentum(m),
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"durability": s.Durability,
		"valuation":  s.Valuation,
		"momentum":   s.Momentum,
	}).Debug("Calculated scores")

	return s
}
