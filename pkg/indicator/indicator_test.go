package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)

	require.Len(t, got, 5)
	require.True(t, math.IsNaN(got[0]))
	require.True(t, math.IsNaN(got[1]))
	require.InDelta(t, 2.0, got[2], 1e-9)
	require.InDelta(t, 3.0, got[3], 1e-9)
	require.InDelta(t, 4.0, got[4], 1e-9)
}

func TestSMA_Degenerate(t *testing.T) {
	for _, v := range SMA([]float64{1, 2}, 3) {
		require.True(t, math.IsNaN(v))
	}
	for _, v := range SMA([]float64{1, 2, 3}, 0) {
		require.True(t, math.IsNaN(v))
	}
	require.Empty(t, SMA(nil, 3))

	// Period 1 is the identity.
	require.Equal(t, []float64{1, 2, 3}, SMA([]float64{1, 2, 3}, 1))
}

func TestSMA_NaNPrefix(t *testing.T) {
	data := []float64{math.NaN(), math.NaN(), 2, 4, 6}
	got := SMA(data, 2)

	require.True(t, math.IsNaN(got[2]))
	require.InDelta(t, 3.0, got[3], 1e-9)
	require.InDelta(t, 5.0, got[4], 1e-9)
}

func TestEMA(t *testing.T) {
	data := []float64{10, 11, 12, 13, 14}
	got := EMA(data, 3)

	require.True(t, math.IsNaN(got[0]))
	require.True(t, math.IsNaN(got[1]))

	// Recurrence seeded with data[0], k = 0.5.
	ema := 10.0
	for i := 1; i < len(data); i++ {
		ema = (data[i]-ema)*0.5 + ema
		if i >= 2 {
			require.InDelta(t, ema, got[i], 1e-9)
		}
	}
}

func TestRSI_AllGains(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	got := RSI(closes, 14)
	require.True(t, math.IsNaN(got[13]))
	for i := 14; i < len(got); i++ {
		require.Equal(t, 100.0, got[i])
	}
}

func TestRSI_Balanced(t *testing.T) {
	// Alternating equal up/down moves keep RSI pinned near 50.
	closes := make([]float64, 40)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		if i%2 == 0 {
			closes[i] = closes[i-1] - 1
		} else {
			closes[i] = closes[i-1] + 1
		}
	}

	got := RSI(closes, 14)
	require.InDelta(t, 50.0, got[len(got)-1], 10.0)
	for i := 14; i < len(got); i++ {
		require.GreaterOrEqual(t, got[i], 0.0)
		require.LessOrEqual(t, got[i], 100.0)
	}
}

func TestMACD(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i)/5)*10
	}

	line, signal, hist := MACD(closes, 12, 26, 9)

	require.True(t, math.IsNaN(line[24]))
	require.False(t, math.IsNaN(line[25]))
	// Signal warm-up extends past the slow EMA's.
	require.True(t, math.IsNaN(signal[25]))
	require.False(t, math.IsNaN(signal[33]))

	for i := 34; i < len(closes); i++ {
		require.InDelta(t, line[i]-signal[i], hist[i], 1e-9)
	}
}

func TestBollinger(t *testing.T) {
	closes := []float64{2, 4, 6, 8, 10, 12}
	middle, upper, lower := Bollinger(closes, 3, 2)

	require.True(t, math.IsNaN(middle[1]))
	require.InDelta(t, 4.0, middle[2], 1e-9)

	// Population stddev of {2,4,6} is sqrt(8/3).
	sd := math.Sqrt(8.0 / 3.0)
	require.InDelta(t, 4+2*sd, upper[2], 1e-9)
	require.InDelta(t, 4-2*sd, lower[2], 1e-9)

	for i := 2; i < len(closes); i++ {
		require.Greater(t, upper[i], lower[i])
	}
}

func TestBollinger_FlatSeries(t *testing.T) {
	closes := []float64{5, 5, 5, 5, 5}
	middle, upper, lower := Bollinger(closes, 3, 2)

	require.InDelta(t, 5.0, middle[4], 1e-9)
	require.InDelta(t, 5.0, upper[4], 1e-9)
	require.InDelta(t, 5.0, lower[4], 1e-9)
}

func TestATR(t *testing.T) {
	highs := []float64{12, 13, 14, 15, 16}
	lows := []float64{10, 11, 12, 13, 14}
	closes := []float64{11, 12, 13, 14, 15}

	got := ATR(highs, lows, closes, 3)

	require.True(t, math.IsNaN(got[1]))
	// Every true range is 2, so the smoothed average stays 2.
	for i := 2; i < len(got); i++ {
		require.InDelta(t, 2.0, got[i], 1e-9)
	}
}

func TestATR_GapDay(t *testing.T) {
	// A gap up makes |high-prevClose| the dominant range term.
	highs := []float64{12, 12, 30}
	lows := []float64{10, 10, 28}
	closes := []float64{11, 11, 29}

	got := ATR(highs, lows, closes, 2)
	require.InDelta(t, 2.0, got[1], 1e-9)
	require.InDelta(t, (2.0+19.0)/2, got[2], 1e-9)
}

func TestStochastic(t *testing.T) {
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := range highs {
		highs[i] = 110 + float64(i)
		lows[i] = 90 + float64(i)
		closes[i] = 108 + float64(i)
	}

	k, d := Stochastic(highs, lows, closes, 14, 3, 3)

	last := k[n-1]
	require.False(t, math.IsNaN(last))
	require.GreaterOrEqual(t, last, 0.0)
	require.LessOrEqual(t, last, 100.0)
	require.False(t, math.IsNaN(d[n-1]))
}

func TestStochastic_FlatRange(t *testing.T) {
	n := 20
	flat := make([]float64, n)
	for i := range flat {
		flat[i] = 100
	}

	k, _ := Stochastic(flat, flat, flat, 5, 1, 1)
	require.Equal(t, 50.0, k[n-1])
}
