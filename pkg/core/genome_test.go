package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGenome(t *testing.T) {
	g := NewGenome(map[string]float64{"rsiPeriod": 14})

	require.NotEmpty(t, g.ID)
	require.False(t, g.Evaluated)
	require.Zero(t, g.Fitness)

	other := NewGenome(map[string]float64{"rsiPeriod": 14})
	require.NotEqual(t, g.ID, other.ID)
}

func TestGenome_CloneIndependence(t *testing.T) {
	g := NewGenome(map[string]float64{"rsiPeriod": 14, "buyThreshold": 0.5})
	g.Fitness = 1.5
	g.Evaluated = true
	g.ParentIDs = []string{"a", "b"}
	g.MutationLog = []string{"rsiPeriod: 14 -> 12"}

	clone := g.Clone()
	require.Equal(t, g.ID, clone.ID)
	require.Equal(t, g.Fitness, clone.Fitness)

	clone.Genes["rsiPeriod"] = 7
	clone.ParentIDs[0] = "changed"
	clone.MutationLog[0] = "changed"

	require.Equal(t, 14.0, g.Genes["rsiPeriod"])
	require.Equal(t, "a", g.ParentIDs[0])
	require.Equal(t, "rsiPeriod: 14 -> 12", g.MutationLog[0])
}

func TestGenome_Invalidate(t *testing.T) {
	g := NewGenome(map[string]float64{"rsiPeriod": 14})
	g.Fitness = 2.0
	g.Evaluated = true
	g.Verdict = VerdictGood
	g.Metrics = GenomeMetrics{Sharpe: 1.2, TradeCount: 80}
	g.RegimeLabel = "mild_bull"

	g.Invalidate()

	require.False(t, g.Evaluated)
	require.Zero(t, g.Fitness)
	require.Empty(t, g.Verdict)
	require.Zero(t, g.Metrics.TradeCount)
	require.Empty(t, g.RegimeLabel)
}

func TestGenome_Fingerprint(t *testing.T) {
	a := NewGenome(map[string]float64{"x": 1, "y": 2})
	b := NewGenome(map[string]float64{"y": 2, "x": 1})
	c := NewGenome(map[string]float64{"x": 1, "y": 2.0001})

	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestGenome_GenePanicsOnMissing(t *testing.T) {
	g := NewGenome(map[string]float64{"rsiPeriod": 14})

	require.Equal(t, 14, g.IntGene("rsiPeriod"))
	require.Panics(t, func() { g.Gene("unknown") })
}

func TestVerdictCategory(t *testing.T) {
	require.True(t, VerdictExcellent.Trustworthy())
	require.True(t, VerdictPoor.Trustworthy())
	require.False(t, VerdictSuspicious.Trustworthy())
	require.False(t, VerdictCategory("BOGUS").Trustworthy())
	require.False(t, VerdictCategory("").IsValid())
}

func TestExitReason_IsValid(t *testing.T) {
	require.True(t, ExitStopped.IsValid())
	require.True(t, ExitTargeted.IsValid())
	require.True(t, ExitForceClosed.IsValid())
	require.False(t, ExitReason("SOLD").IsValid())
}
