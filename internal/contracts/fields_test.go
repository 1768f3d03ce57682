package contracts

import (
	"encoding/json"
	"math"
	"testing"
)

func TestIsPresent(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  bool
	}{
		{"nil", nil, false},
		{"zero float", 0.0, false},
		{"zero int", 0, false},
		{"NaN", math.NaN(), false},
		{"blank string", "  ", false},
		{"negative", -3.5, true},
		{"positive int", 42, true},
		{"json number", json.Number("1.5"), true},
		{"bad json number", json.Number("x"), false},
		{"text", "NSE", true},
		{"slice", []string{"NSE"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPresent(tt.value); got != tt.want {
				t.Errorf("IsPresent(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestFieldBag_Metrics(t *testing.T) {
	bag := FieldBag{
		FieldCurrentPrice: 101.5,
		FieldPE:           0.0,
		FieldROE:          int64(18),
		KeySources:        []string{"NSE"},
		KeyQualityScore:   75,
		"sector":          "IT",
	}

	got := bag.Metrics()
	if len(got) != 2 {
		t.Fatalf("Metrics() returned %d entries, want 2: %v", len(got), got)
	}
	if got[FieldCurrentPrice] != 101.5 || got[FieldROE] != 18 {
		t.Errorf("Metrics() = %v", got)
	}
	if _, ok := got[KeyQualityScore]; ok {
		t.Error("bookkeeping keys must not be metrics")
	}
}

func TestFieldBag_CloneIsIndependent(t *testing.T) {
	bag := FieldBag{FieldPE: 12.0}
	clone := bag.Clone()
	clone[FieldPE] = 20.0

	if bag[FieldPE] != 12.0 {
		t.Errorf("original mutated: %v", bag[FieldPE])
	}
}

func TestIsPercentageField(t *testing.T) {
	for _, f := range []string{FieldROE, FieldDividendYield, FieldPromoterHolding} {
		if !IsPercentageField(f) {
			t.Errorf("%s should be a percentage field", f)
		}
	}
	for _, f := range []string{FieldPE, FieldCurrentPrice, FieldDayChange} {
		if IsPercentageField(f) {
			t.Errorf("%s should not be a percentage field", f)
		}
	}
}
