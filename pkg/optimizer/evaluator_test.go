package optimizer

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantforge/evorun/pkg/backtest"
	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/genetic"
	"github.com/quantforge/evorun/pkg/judge"
)

// flatMarket serves one symbol with a flat price history, so no
// genome ever trades on it.
type flatMarket struct {
	bars     []core.Bar
	calendar []time.Time
	labels   []string
}

var _ backtest.Market = (*flatMarket)(nil)

func newFlatMarket(days int) *flatMarket {
	m := &flatMarket{}
	t0 := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		ts := t0.AddDate(0, 0, i)
		m.bars = append(m.bars, core.Bar{
			Symbol: "AAA", Time: ts,
			Open: 100, High: 100.5, Low: 99.5, Close: 100, Volume: 1_000_000,
		})
		m.calendar = append(m.calendar, ts)
		m.labels = append(m.labels, "ranging")
	}
	return m
}

func (m *flatMarket) Symbols() []string            { return []string{"AAA"} }
func (m *flatMarket) Calendar() []time.Time        { return m.calendar }
func (m *flatMarket) SeriesOf(string) []core.Bar   { return m.bars }
func (m *flatMarket) RegimeLabels() []string       { return m.labels }
func (m *flatMarket) BarIndex(_ string, d int) int { return d }

func TestBacktestEvaluator_ThinLedgerGetsSentinel(t *testing.T) {
	e := NewBacktestEvaluator(newFlatMarket(120), judge.New(judge.DefaultWeights()), 100_000, 30)

	g := genetic.NewOperator(core.DefaultSpace(), rand.New(rand.NewSource(1))).Generate()
	eval, err := e.Evaluate(context.Background(), g)
	require.NoError(t, err)

	require.Equal(t, core.EvalFailedFitness, eval.Verdict.Score)
	require.Equal(t, core.VerdictPoor, eval.Verdict.Category)
	require.NotEmpty(t, eval.Verdict.Warnings)
	require.Equal(t, "ranging", eval.Regime)
	require.Empty(t, eval.Result.Trades)
}

func TestBacktestEvaluator_HonorsCancelledContext(t *testing.T) {
	e := NewBacktestEvaluator(newFlatMarket(60), judge.New(judge.DefaultWeights()), 100_000, 30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := genetic.NewOperator(core.DefaultSpace(), rand.New(rand.NewSource(2))).Generate()
	_, err := e.Evaluate(ctx, g)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDominantRegime(t *testing.T) {
	require.Equal(t, "mild_bull", dominantRegime([]string{
		"ranging", "mild_bull", "mild_bull", "high_volatility",
	}))

	// Ties break toward the label seen first.
	require.Equal(t, "ranging", dominantRegime([]string{"ranging", "strong_bear"}))

	require.Empty(t, dominantRegime(nil))
}
