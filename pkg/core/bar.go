package core

import "time"

// Bar represents one daily OHLCV bar for a symbol.
// Bars are immutable once loaded; the engine only ever reads them.
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Less implements the Item interface so bars can be merged
// chronologically through the priority queue.
func (b Bar) Less(j Item) bool {
	other := j.(Bar)

	// Primary sort by time
	diff := other.Time.Sub(b.Time)
	if diff != 0 {
		return diff > 0
	}

	// Secondary sort by symbol name
	return b.Symbol < other.Symbol
}

// Closes extracts the close prices of a bar history in order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high prices of a bar history in order.
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low prices of a bar history in order.
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts the traded volumes of a bar history in order.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
