package technicals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockfusion/internal/contracts"
)

var day0 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

// linearBars returns n daily bars whose close moves by step a day from start
func linearBars(n int, start, step float64) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		c := start + float64(i)*step
		bars[i] = Bar{Time: day0.AddDate(0, 0, i), High: c + 1, Low: c - 1, Close: c}
	}
	return bars
}

func TestRSI(t *testing.T) {
	alternating := make([]float64, 15)
	for i := range alternating {
		alternating[i] = float64(1 + i%2)
	}

	tests := []struct {
		name   string
		closes []float64
		want   float64
		ok     bool
	}{
		{"balanced", alternating, 50, true},
		{"only gains", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, 100, true},
		{"only losses", []float64{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, 0, true},
		{"flat", []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5}, 50, true},
		{"too short", []float64{1, 2, 3}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RSI(tt.closes, RSIPeriod)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRSI_UsesLatestWindow(t *testing.T) {
	closes := []float64{100, 50}
	for i := 0; i < RSIPeriod; i++ {
		closes = append(closes, 50+float64(i+1))
	}

	got, ok := RSI(closes, RSIPeriod)
	require.True(t, ok)
	assert.Equal(t, 100.0, got, "the early drop is outside the window")
}

func TestEMA(t *testing.T) {
	seq := make([]float64, 21)
	for i := range seq {
		seq[i] = float64(i + 1)
	}

	got, ok := EMA(seq[:20], 20)
	require.True(t, ok)
	assert.InDelta(t, 10.5, got, 1e-9, "seed is the SMA")

	got, ok = EMA(seq, 20)
	require.True(t, ok)
	assert.InDelta(t, 11.5, got, 1e-9)

	_, ok = EMA(seq[:5], 20)
	assert.False(t, ok)
}

func TestMACD(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 10
	}
	got, ok := MACD(flat)
	require.True(t, ok)
	assert.InDelta(t, 0, got, 1e-9)

	rising := make([]float64, 60)
	for i := range rising {
		rising[i] = float64(100 + i)
	}
	got, ok = MACD(rising)
	require.True(t, ok)
	assert.Greater(t, got, 0.0, "fast average leads in an uptrend")

	_, ok = MACD(rising[:20])
	assert.False(t, ok)
}

func TestADX(t *testing.T) {
	got, ok := ADX(linearBars(60, 100, 0.5), ADXPeriod)
	require.True(t, ok)
	assert.InDelta(t, 100, got, 1e-6, "one-directional trend")

	_, ok = ADX(linearBars(20, 100, 0.5), ADXPeriod)
	assert.False(t, ok, "needs two periods of history")

	noRange := linearBars(60, 100, 0.5)
	noRange[10].High = 0
	_, ok = ADX(noRange, ADXPeriod)
	assert.False(t, ok, "needs high and low on every bar")
}

func TestChangeSince(t *testing.T) {
	bars := linearBars(41, 100, 1)

	got, ok := ChangeSince(bars, day0.AddDate(0, 0, 10))
	require.True(t, ok)
	assert.InDelta(t, (140.0/110.0-1)*100, got, 1e-9)

	got, ok = ChangeSince(bars, day0.AddDate(0, 0, 10).Add(12*time.Hour))
	require.True(t, ok)
	assert.InDelta(t, (140.0/110.0-1)*100, got, 1e-9, "last bar at or before the cutoff")

	_, ok = ChangeSince(bars, day0.AddDate(0, 0, -1))
	assert.False(t, ok, "history does not reach back")
}

func TestCompute(t *testing.T) {
	bars := linearBars(250, 100, 0.5)
	bars = append(bars, Bar{Time: bars[len(bars)-1].Time, Close: 0})

	bag := Compute(bars)

	assert.InDelta(t, 124.5, bag[contracts.FieldYear1Change], 1e-9)
	assert.Equal(t, 100.0, bag[contracts.FieldRSI])
	assert.InDelta(t, 100, bag[contracts.FieldADX], 1e-6)

	last := bars[249]
	wantMonth, _ := ChangeSince(bars[:250], last.Time.AddDate(0, -1, 0))
	assert.InDelta(t, wantMonth, bag[contracts.FieldMonthChange], 1e-9)
	assert.Contains(t, bag, contracts.FieldQtrChange)
	assert.Contains(t, bag, contracts.FieldEMA20)
	assert.Contains(t, bag, contracts.FieldMACD)
}

func TestCompute_ShortHistory(t *testing.T) {
	bag := Compute(linearBars(10, 100, 1))

	assert.Contains(t, bag, contracts.FieldYear1Change)
	for _, key := range []string{contracts.FieldRSI, contracts.FieldEMA20, contracts.FieldMACD, contracts.FieldADX, contracts.FieldMonthChange} {
		assert.NotContains(t, bag, key)
	}
	assert.Empty(t, Compute(nil))
}
