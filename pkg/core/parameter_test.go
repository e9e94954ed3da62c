package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParameterRange_Validate(t *testing.T) {
	valid := ParameterRange{Name: "rsiPeriod", Min: 7, Max: 21, Step: 1, IsInt: true}
	require.NoError(t, valid.Validate())

	cases := []ParameterRange{
		{Name: "", Min: 0, Max: 1, Step: 0.1},
		{Name: "badStep", Min: 0, Max: 1, Step: 0},
		{Name: "negStep", Min: 0, Max: 1, Step: -0.1},
		{Name: "inverted", Min: 5, Max: 1, Step: 1},
		{Name: "fracInt", Min: 1, Max: 10, Step: 0.5, IsInt: true},
	}
	for _, r := range cases {
		require.ErrorIs(t, r.Validate(), ErrInvalidRange, "range %q", r.Name)
	}
}

func TestParameterRange_Snap(t *testing.T) {
	r := ParameterRange{Name: "buyThreshold", Min: 0.2, Max: 0.8, Step: 0.05}

	require.InDelta(t, 0.2, r.Snap(-3), 1e-9)
	require.InDelta(t, 0.8, r.Snap(99), 1e-9)
	require.InDelta(t, 0.45, r.Snap(0.46), 1e-9)
	require.InDelta(t, 0.5, r.Snap(0.48), 1e-9)

	ri := ParameterRange{Name: "maxPositions", Min: 3, Max: 15, Step: 1, IsInt: true}
	require.Equal(t, 7.0, ri.Snap(7.4))
	require.Equal(t, 15.0, ri.Snap(200))
}

func TestParameterRange_Contains(t *testing.T) {
	r := ParameterRange{Name: "stopLossPct", Min: 0.02, Max: 0.1, Step: 0.005}

	require.True(t, r.Contains(0.02))
	require.True(t, r.Contains(0.035))
	require.True(t, r.Contains(0.1))
	require.False(t, r.Contains(0.0351))
	require.False(t, r.Contains(0.015))
	require.False(t, r.Contains(0.11))
}

func TestParameterRange_ValueAt(t *testing.T) {
	r := ParameterRange{Name: "takeProfitPct", Min: 0.04, Max: 0.25, Step: 0.005}

	for i := 0; i <= r.Steps(); i++ {
		v := r.ValueAt(i)
		require.True(t, r.Contains(v), "step %d produced %v", i, v)
	}
	require.InDelta(t, 0.25, r.ValueAt(r.Steps()), 1e-9)
}

func TestParameterSpace_NormalizeWeights(t *testing.T) {
	space := DefaultSpace()

	genes := map[string]float64{}
	for _, name := range space.WeightNames() {
		genes[name] = 0.4
	}
	space.NormalizeWeights(genes)

	var sum float64
	for _, name := range space.WeightNames() {
		sum += genes[name]
	}
	require.InDelta(t, 1.0, sum, 0.01)

	// All-zero weights become an equal split.
	for _, name := range space.WeightNames() {
		genes[name] = 0
	}
	space.NormalizeWeights(genes)
	sum = 0
	for _, name := range space.WeightNames() {
		sum += genes[name]
		require.GreaterOrEqual(t, genes[name], 0.0)
	}
	require.InDelta(t, 1.0, sum, 0.01)
}

func TestParameterSpace_NormalizeWeightsSkewed(t *testing.T) {
	space := DefaultSpace()
	names := space.WeightNames()

	genes := map[string]float64{}
	for _, name := range names {
		genes[name] = 0.01
	}
	genes[names[0]] = 0.93

	space.NormalizeWeights(genes)

	var sum float64
	for _, name := range names {
		sum += genes[name]
		require.LessOrEqual(t, genes[name], 1.0)
		require.GreaterOrEqual(t, genes[name], 0.0)
	}
	require.InDelta(t, 1.0, sum, 0.01)
}

func TestParameterSpace_ValidateGenes(t *testing.T) {
	space, err := NewParameterSpace(
		ParameterRange{Name: "alphaWeight", Min: 0, Max: 1, Step: 0.01, Weight: true},
		ParameterRange{Name: "betaWeight", Min: 0, Max: 1, Step: 0.01, Weight: true},
		ParameterRange{Name: "period", Min: 5, Max: 20, Step: 1, IsInt: true},
	)
	require.NoError(t, err)

	genes := map[string]float64{"alphaWeight": 0.6, "betaWeight": 0.4, "period": 10}
	require.NoError(t, space.ValidateGenes(genes))

	misaligned := map[string]float64{"alphaWeight": 0.6, "betaWeight": 0.4, "period": 10.5}
	require.ErrorIs(t, space.ValidateGenes(misaligned), ErrInvalidGene)

	unbalanced := map[string]float64{"alphaWeight": 0.9, "betaWeight": 0.4, "period": 10}
	require.ErrorIs(t, space.ValidateGenes(unbalanced), ErrInvalidGene)

	missing := map[string]float64{"alphaWeight": 0.6, "betaWeight": 0.4}
	require.ErrorIs(t, space.ValidateGenes(missing), ErrInvalidGene)
}

func TestNewParameterSpace_Duplicate(t *testing.T) {
	_, err := NewParameterSpace(
		ParameterRange{Name: "period", Min: 5, Max: 20, Step: 1, IsInt: true},
		ParameterRange{Name: "period", Min: 1, Max: 5, Step: 1, IsInt: true},
	)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDefaultSpace(t *testing.T) {
	space := DefaultSpace()

	require.Len(t, space.WeightNames(), 8)
	for _, r := range space.Ranges() {
		require.NoError(t, r.Validate())
		require.Positive(t, r.Steps(), "range %s has no steps", r.Name)
	}

	// Declaration order is stable.
	require.Equal(t, space.Names(), space.Names())
	_, ok := space.Range("buyThreshold")
	require.True(t, ok)
	_, ok = space.Range("doesNotExist")
	require.False(t, ok)
}

func TestSnapDecimal(t *testing.T) {
	require.InDelta(t, 0.35, snapDecimal(0.35000000000000003, 0.05), 1e-12)
	require.Equal(t, 12.0, snapDecimal(12.2, 1))
	require.False(t, math.Signbit(snapDecimal(0, 0.01)))
}
