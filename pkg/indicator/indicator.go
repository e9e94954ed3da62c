// Package indicator implements the technical indicators feeding the
// signal generator. Every function is total: bad periods or short
// inputs never panic, and indices inside an indicator's warm-up window
// carry NaN so downstream code can tell "no value yet" from zero.
package indicator

import "math"

// Defined reports whether an indicator value is out of its warm-up
// window.
func Defined(v float64) bool { return !math.IsNaN(v) }

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// firstValid returns the index of the first non-NaN value, or -1.
// Indicator outputs only ever carry a contiguous NaN prefix, so
// everything from this index on is defined.
func firstValid(data []float64) int {
	for i, v := range data {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}

// SMA computes the simple moving average with a running sum, O(1) per
// element. A contiguous NaN prefix in the input shifts the warm-up
// window accordingly.
func SMA(data []float64, period int) []float64 {
	out := nans(len(data))
	if period <= 0 || len(data) == 0 {
		return out
	}

	start := firstValid(data)
	if start < 0 || len(data)-start < period {
		return out
	}

	var sum float64
	for i := start; i < len(data); i++ {
		sum += data[i]
		if i-start >= period {
			sum -= data[i-period]
		}
		if i-start >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average seeded with the first
// value and smoothing factor k = 2/(period+1). The recurrence runs
// from the seed, but outputs inside the warm-up window stay NaN.
func EMA(data []float64, period int) []float64 {
	out := nans(len(data))
	if period <= 0 || len(data) == 0 {
		return out
	}

	start := firstValid(data)
	if start < 0 {
		return out
	}

	k := 2.0 / float64(period+1)
	ema := data[start]
	for i := start; i < len(data); i++ {
		if i > start {
			ema = (data[i]-ema)*k + ema
		}
		if i-start >= period-1 {
			out[i] = ema
		}
	}
	return out
}

// RSI computes the relative strength index with Wilder's smoothing.
// The first value lands at index period; an average loss of exactly
// zero yields 100.
func RSI(closes []float64, period int) []float64 {
	out := nans(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// MACD returns the MACD line EMA(fast)-EMA(slow), its signal line
// EMA(signal) of the MACD line, and the histogram line-signal.
func MACD(closes []float64, fast, slow, signal int) (line, signalLine, histogram []float64) {
	line = nans(len(closes))
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	for i := range closes {
		line[i] = emaFast[i] - emaSlow[i]
	}

	signalLine = EMA(line, signal)

	histogram = nans(len(closes))
	for i := range closes {
		histogram[i] = line[i] - signalLine[i]
	}
	return line, signalLine, histogram
}

// Bollinger returns the middle band (SMA) and the upper/lower bands at
// mult population standard deviations over the same trailing window.
func Bollinger(closes []float64, period int, mult float64) (middle, upper, lower []float64) {
	middle = SMA(closes, period)
	upper = nans(len(closes))
	lower = nans(len(closes))
	if period <= 0 {
		return middle, upper, lower
	}

	for i := period - 1; i < len(closes); i++ {
		if !Defined(middle[i]) {
			continue
		}
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - middle[i]
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = middle[i] + mult*sd
		lower[i] = middle[i] - mult*sd
	}
	return middle, upper, lower
}

// ATR computes the Wilder-smoothed average true range, where true
// range is max(high-low, |high-prevClose|, |low-prevClose|).
func ATR(highs, lows, closes []float64, period int) []float64 {
	out := nans(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	tr := make([]float64, len(closes))
	tr[0] = highs[0] - lows[0]
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	out[period-1] = atr

	for i := period; i < len(closes); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = atr
	}
	return out
}

// Stochastic returns the smoothed %K and %D oscillator lines. Raw %K
// is (close-lowestLow)/(highestHigh-lowestLow)*100 over the trailing
// period, 50 when the range is flat, then SMA-smoothed by smoothK and
// again by smoothD.
func Stochastic(highs, lows, closes []float64, period, smoothK, smoothD int) (k, d []float64) {
	raw := nans(len(closes))
	if period <= 0 || len(closes) < period {
		return raw, nans(len(closes))
	}

	for i := period - 1; i < len(closes); i++ {
		lowest := lows[i]
		highest := highs[i]
		for j := i - period + 1; j <= i; j++ {
			lowest = math.Min(lowest, lows[j])
			highest = math.Max(highest, highs[j])
		}
		if highest == lowest {
			raw[i] = 50
			continue
		}
		raw[i] = (closes[i] - lowest) / (highest - lowest) * 100
	}

	k = SMA(raw, smoothK)
	d = SMA(k, smoothD)
	return k, d
}
