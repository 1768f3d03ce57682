// Package technicals derives price-history indicators from daily bars.
package technicals

import (
	"math"
	"time"

	"github.com/wonny/stockfusion/internal/contracts"
)

// Indicator periods
const (
	RSIPeriod = 14
	ADXPeriod = 14
	EMAPeriod = 20
	MACDFast  = 12
	MACDSlow  = 26
)

// Bar is one daily bar. High and Low may be 0 when the provider omits them.
type Bar struct {
	Time  time.Time
	High  float64
	Low   float64
	Close float64
}

// Compute derives the history fields from bars ordered oldest first.
// Indicators without enough history are left out of the bag.
func Compute(bars []Bar) contracts.FieldBag {
	bars = valid(bars)
	bag := contracts.FieldBag{}
	if len(bars) < 2 {
		return bag
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	set := func(key string, v float64, ok bool) {
		if ok && v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			bag[key] = v
		}
	}

	last := bars[len(bars)-1]
	set(contracts.FieldYear1Change, (last.Close/bars[0].Close-1)*100, true)

	mc, ok := ChangeSince(bars, last.Time.AddDate(0, -1, 0))
	set(contracts.FieldMonthChange, mc, ok)
	qc, ok := ChangeSince(bars, last.Time.AddDate(0, -3, 0))
	set(contracts.FieldQtrChange, qc, ok)

	rsi, ok := RSI(closes, RSIPeriod)
	set(contracts.FieldRSI, rsi, ok)
	ema, ok := EMA(closes, EMAPeriod)
	set(contracts.FieldEMA20, ema, ok)
	macd, ok := MACD(closes)
	set(contracts.FieldMACD, macd, ok)
	adx, ok := ADX(bars, ADXPeriod)
	set(contracts.FieldADX, adx, ok)

	return bag
}

// valid drops bars without a positive close
func valid(bars []Bar) []Bar {
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			out = append(out, b)
		}
	}
	return out
}

// ChangeSince returns the percent change from the last close at or before
// since to the latest close. False when history does not reach back to since.
func ChangeSince(bars []Bar, since time.Time) (float64, bool) {
	if len(bars) < 2 {
		return 0, false
	}
	base := -1
	for i, b := range bars {
		if b.Time.After(since) {
			break
		}
		base = i
	}
	if base < 0 || base == len(bars)-1 {
		return 0, false
	}
	return (bars[len(bars)-1].Close/bars[base].Close - 1) * 100, true
}

// RSI is the simple-average relative strength index over the last period changes
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	if losses == 0 {
		if gains == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs), true
}

// EMA seeds with the SMA of the first period closes, then smooths forward
func EMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}

	var sum float64
	for _, c := range closes[:period] {
		sum += c
	}
	ema := sum / float64(period)

	k := 2.0 / (float64(period) + 1)
	for _, c := range closes[period:] {
		ema = c*k + ema*(1-k)
	}
	return ema, true
}

// MACD = EMA12 - EMA26
func MACD(closes []float64) (float64, bool) {
	fast, ok := EMA(closes, MACDFast)
	if !ok {
		return 0, false
	}
	slow, ok := EMA(closes, MACDSlow)
	if !ok {
		return 0, false
	}
	return fast - slow, true
}

// ADX is Wilder's average directional index. It needs High and Low on every bar.
func ADX(bars []Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < 2*period+1 {
		return 0, false
	}
	for _, b := range bars {
		if b.High <= 0 || b.Low <= 0 {
			return 0, false
		}
	}

	n := float64(period)
	var smTR, smPlus, smMinus float64
	var dxs []float64

	for i := 1; i < len(bars); i++ {
		cur, prev := bars[i], bars[i-1]

		up := cur.High - prev.High
		down := prev.Low - cur.Low
		var plusDM, minusDM float64
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}
		tr := math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))

		if i <= period {
			smTR += tr
			smPlus += plusDM
			smMinus += minusDM
			if i < period {
				continue
			}
		} else {
			smTR = smTR - smTR/n + tr
			smPlus = smPlus - smPlus/n + plusDM
			smMinus = smMinus - smMinus/n + minusDM
		}

		if smTR == 0 {
			dxs = append(dxs, 0)
			continue
		}
		plusDI := 100 * smPlus / smTR
		minusDI := 100 * smMinus / smTR
		if plusDI+minusDI == 0 {
			dxs = append(dxs, 0)
			continue
		}
		dxs = append(dxs, 100*math.Abs(plusDI-minusDI)/(plusDI+minusDI))
	}

	if len(dxs) < period {
		return 0, false
	}
	var adx float64
	for _, dx := range dxs[:period] {
		adx += dx
	}
	adx /= n
	for _, dx := range dxs[period:] {
		adx = (adx*(n-1) + dx) / n
	}
	return adx, true
}
