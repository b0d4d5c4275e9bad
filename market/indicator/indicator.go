// Package indicator provides pure functions over kline close sequences.
// Insufficient data yields a neutral sentinel and a logged warning rather
// than an error, matching the spec's contract for RSI/MACD defaults.
package indicator

import (
	"math"

	"nofx/logger"
)

// RSI computes the relative strength index over the last period closes.
// With fewer than period+1 points it returns the neutral sentinel 50.
func RSI(closes []float64, period int) float64 {
	if len(closes) <= period {
		logger.Warnf("indicator: RSI needs >%d closes, got %d, returning neutral", period, len(closes))
		return 50
	}

	var gains, losses []float64
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	if len(gains) > period {
		gains = gains[len(gains)-period:]
		losses = losses[len(losses)-period:]
	}

	avgGain := average(gains)
	avgLoss := average(losses)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// SMA computes the simple moving average of the last period closes.
// With fewer than period points it returns 0.
func SMA(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	return average(closes[len(closes)-period:])
}

// EMA computes the exponential moving average over the full series, seeded
// by the SMA of the first period points. With fewer than period points it
// returns 0.
func EMA(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}

	k := 2.0 / (float64(period) + 1)
	ema := average(closes[:period])
	for _, c := range closes[period:] {
		ema = c*k + ema*(1-k)
	}
	return ema
}

// MACDResult is the MACD line, its signal line, and their difference
// (the histogram).
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the MACD line as EMA(fast) - EMA(slow), and its signal line
// as the EMA(signal) of the MACD line recomputed across the series. With
// insufficient data for either EMA it returns the neutral sentinel (all
// zero) and a logged warning.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	if len(closes) < slow+signal {
		logger.Warnf("indicator: MACD needs >=%d closes, got %d, returning neutral", slow+signal, len(closes))
		return MACDResult{}
	}

	macdSeries := make([]float64, 0, len(closes)-slow+1)
	for i := slow; i <= len(closes); i++ {
		window := closes[:i]
		macdSeries = append(macdSeries, EMA(window, fast)-EMA(window, slow))
	}

	macd := macdSeries[len(macdSeries)-1]
	sig := EMA(macdSeries, signal)
	return MACDResult{MACD: macd, Signal: sig, Histogram: macd - sig}
}

// ATR computes the average true range over the last period candles.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) <= period || len(lows) != len(highs) || len(closes) != len(highs) {
		return 0
	}

	trueRanges := make([]float64, 0, len(highs)-1)
	for i := 1; i < len(highs); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		trueRanges = append(trueRanges, math.Max(hl, math.Max(hc, lc)))
	}

	if len(trueRanges) > period {
		trueRanges = trueRanges[len(trueRanges)-period:]
	}
	return average(trueRanges)
}

// BollingerResult is the middle (SMA), upper, and lower Bollinger bands.
type BollingerResult struct {
	Middle float64
	Upper  float64
	Lower  float64
}

// Bollinger computes Bollinger bands over the last period closes, stdDevMultiplier
// standard deviations wide.
func Bollinger(closes []float64, period int, stdDevMultiplier float64) BollingerResult {
	if len(closes) < period {
		return BollingerResult{}
	}

	window := closes[len(closes)-period:]
	mean := average(window)

	var variance float64
	for _, c := range window {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(window))
	stddev := math.Sqrt(variance)

	return BollingerResult{
		Middle: mean,
		Upper:  mean + stddev*stdDevMultiplier,
		Lower:  mean - stddev*stdDevMultiplier,
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
