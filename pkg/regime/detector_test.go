package regime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func steadySeries(n int, start, dailyStep float64) []float64 {
	out := make([]float64, n)
	v := start
	for i := range out {
		out[i] = v
		v += dailyStep
	}
	return out
}

func TestDetector_Unknown(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	require.Equal(t, Unknown, d.Classify(nil))
	require.Equal(t, Unknown, d.Classify(steadySeries(30, 100, 1)))

	timeline := d.Timeline(steadySeries(60, 100, 1))
	require.Equal(t, Unknown, timeline[48])
	require.NotEqual(t, Unknown, timeline[59])
}

func TestDetector_StrongBull(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	// A steady 1%/day climb keeps price well above both averages.
	closes := make([]float64, 120)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		closes[i] = closes[i-1] * 1.01
	}

	require.Equal(t, StrongBull, d.Classify(closes))
}

func TestDetector_StrongBear(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	closes := make([]float64, 120)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		closes[i] = closes[i-1] * 0.99
	}

	require.Equal(t, StrongBear, d.Classify(closes))
}

func TestDetector_Ranging(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	// Tiny oscillation around a flat level: no trend, low vol.
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + 0.1*math.Sin(float64(i))
	}

	label := d.Classify(closes)
	require.Contains(t, []Label{Ranging, MildBull, MildBear}, label)
	require.NotEqual(t, HighVolatility, label)
}

func TestDetector_HighVolatility(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	// Violent swings between two flat levels: no net trend.
	closes := make([]float64, 120)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 100
		} else {
			closes[i] = 108
		}
	}

	timeline := d.Timeline(closes)
	last := timeline[len(timeline)-1]
	require.Contains(t, []Label{HighVolatility, VolatileBull, VolatileBear}, last)
}

func TestLabel_String(t *testing.T) {
	require.Equal(t, "strong_bull", StrongBull.String())
	require.Equal(t, "volatile_bear", VolatileBear.String())
	require.Equal(t, "unknown", Unknown.String())
	require.Equal(t, "unknown", Label(99).String())

	got := Strings([]Label{MildBull, Ranging})
	require.Equal(t, []string{"mild_bull", "ranging"}, got)
}
