package fusion

import "github.com/wonny/stockfusion/internal/contracts"

// NormalizePercentages returns a copy of bag with percentage fields on the 0-100 scale.
// A bag declaring ScalePercent is left alone and one declaring ScaleFraction is scaled
// entirely. Otherwise a value in [0, 1] is taken as a fraction and multiplied by 100.
// ⭐ SSOT: 퍼센트 단위 정규화는 여기서만
func NormalizePercentages(bag contracts.FieldBag) contracts.FieldBag {
	out := bag.Clone()
	scale, _ := bag[contracts.KeyPercentScale].(string)
	if scale == contracts.ScalePercent {
		return out
	}

	for key, value := range bag {
		if !contracts.IsPercentageField(key) {
			continue
		}
		f, ok := contracts.ToFloat(value)
		if !ok {
			continue
		}
		if scale == contracts.ScaleFraction || (f >= 0 && f <= 1) {
			out[key] = f * 100
		}
	}
	return out
}

// Merge fills the gaps of base with incoming and returns the result as a new bag.
// A present value in base is never replaced, and absent incoming values are ignored.
// filled lists the keys incoming contributed.
func Merge(base, incoming contracts.FieldBag) (merged contracts.FieldBag, filled []string) {
	merged = make(contracts.FieldBag, len(base)+len(incoming))
	for k, v := range base {
		merged[k] = v
	}

	for key, value := range incoming {
		if contracts.IsBookkeeping(key) {
			continue
		}
		if merged.Has(key) || !contracts.IsPresent(value) {
			continue
		}
		merged[key] = value
		filled = append(filled, key)
	}

	return merged, filled
}
