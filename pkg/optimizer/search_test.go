package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/genetic"
)

// stubEvaluator derives a verdict from genes alone, so loop tests
// control fitness without market data.
type stubEvaluator struct {
	verdict func(g *core.Genome) core.JudgeVerdict
	err     func(g *core.Genome) error

	mu    sync.Mutex
	calls int
}

func (e *stubEvaluator) Evaluate(ctx context.Context, g *core.Genome) (*Evaluation, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.err != nil {
		if err := e.err(g); err != nil {
			return nil, err
		}
	}
	return &Evaluation{
		Result:  &core.BacktestResult{},
		Verdict: e.verdict(g),
		Regime:  "mild_bull",
	}, nil
}

func (e *stubEvaluator) evaluations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func goodVerdict(score float64) core.JudgeVerdict {
	return core.JudgeVerdict{Score: score, Category: core.VerdictGood}
}

func smallConfig(seed int64) *Config {
	return NewConfig().
		WithPopulationSize(16).
		WithIslands(2).
		WithEliteCount(4).
		WithMaxGenerations(5).
		WithBatch(4, 2).
		WithTopK(5).
		WithSeed(seed)
}

func TestGeneticSearch_DeterministicWithSeed(t *testing.T) {
	run := func() *Report {
		eval := &stubEvaluator{verdict: func(g *core.Genome) core.JudgeVerdict {
			return goodVerdict(g.Gene("buyThreshold") + g.Gene("stopLossPct"))
		}}
		search, err := NewGeneticSearch(smallConfig(42), eval, nil)
		require.NoError(t, err)

		report, err := search.Run(context.Background())
		require.NoError(t, err)
		return report
	}

	first := run()
	second := run()

	require.NotNil(t, first.Best)
	require.Equal(t, first.Best.Fitness, second.Best.Fitness)
	require.Equal(t, first.Best.Genes, second.Best.Genes)
	require.Equal(t, first.Evaluations, second.Evaluations)
	require.Equal(t, first.Generations, second.Generations)
}

func TestGeneticSearch_SuspiciousNeverBecomesBest(t *testing.T) {
	// High buyThreshold genomes get an inflated suspicious score that
	// should dominate selection but never the reported best.
	eval := &stubEvaluator{verdict: func(g *core.Genome) core.JudgeVerdict {
		if g.Gene("buyThreshold") >= 0.5 {
			return core.JudgeVerdict{
				Score:    100,
				Category: core.VerdictSuspicious,
				Warnings: []string{"sharpe above 4 suggests overfitting"},
			}
		}
		return goodVerdict(g.Gene("buyThreshold"))
	}}

	config := smallConfig(7).WithPopulationSize(24).WithMaxGenerations(3)
	search, err := NewGeneticSearch(config, eval, nil)
	require.NoError(t, err)

	report, err := search.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, report.Best)
	require.True(t, report.Best.Verdict.Trustworthy())
	require.Less(t, report.Best.Fitness, 1.0)
	require.NotNil(t, report.BestResult)

	// The leaderboard still surfaces the suspicious genomes, flagged.
	require.NotEmpty(t, report.Leaderboard)
	require.Equal(t, core.VerdictSuspicious, report.Leaderboard[0].Verdict)
	require.Equal(t, 100.0, report.Leaderboard[0].Fitness)
}

func TestGeneticSearch_EvaluationErrorGetsSentinel(t *testing.T) {
	eval := &stubEvaluator{
		verdict: func(g *core.Genome) core.JudgeVerdict { return goodVerdict(1) },
		err: func(g *core.Genome) error {
			if g.Gene("smaLong") > 40 {
				return fmt.Errorf("synthetic data error")
			}
			return nil
		},
	}

	config := smallConfig(11).WithPopulationSize(20).WithMaxGenerations(2)
	search, err := NewGeneticSearch(config, eval, nil)
	require.NoError(t, err)

	report, err := search.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Best)
	require.Equal(t, 1.0, report.Best.Fitness)

	sentinels := 0
	for _, g := range search.combined() {
		require.True(t, g.Evaluated)
		if g.Fitness == core.EvalFailedFitness {
			require.Equal(t, core.VerdictPoor, g.Verdict)
			sentinels++
		}
	}
	require.Positive(t, sentinels, "some genomes should have failed")
}

func TestGeneticSearch_PanicRecovered(t *testing.T) {
	eval := &stubEvaluator{verdict: func(g *core.Genome) core.JudgeVerdict {
		if g.Gene("smaLong") > 40 {
			panic("division by zero in synthetic metric")
		}
		return goodVerdict(1)
	}}

	config := smallConfig(13).WithPopulationSize(20).WithMaxGenerations(2)
	search, err := NewGeneticSearch(config, eval, nil)
	require.NoError(t, err)

	report, err := search.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Best)

	sentinels := 0
	for _, g := range search.combined() {
		if g.Fitness == core.EvalFailedFitness {
			sentinels++
		}
	}
	require.Positive(t, sentinels, "panicking evaluations should earn the sentinel")
}

func TestGeneticSearch_ConvergenceStopsEarly(t *testing.T) {
	eval := &stubEvaluator{verdict: func(g *core.Genome) core.JudgeVerdict {
		return goodVerdict(1)
	}}

	config := smallConfig(17).
		WithMaxGenerations(50).
		WithConvergence(3, 1e-6, 2)
	search, err := NewGeneticSearch(config, eval, nil)
	require.NoError(t, err)

	report, err := search.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, StopConverged, report.StopReason)
	require.Equal(t, 4, report.Generations)
	require.Len(t, report.Trace, 4)
}

func TestGeneticSearch_CancelledReturnsPartialReport(t *testing.T) {
	eval := &stubEvaluator{verdict: func(g *core.Genome) core.JudgeVerdict {
		return goodVerdict(1)
	}}
	search, err := NewGeneticSearch(smallConfig(19), eval, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := search.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StopCancelled, report.StopReason)
	require.Zero(t, report.Generations)
	require.Zero(t, eval.evaluations())
}

func TestGeneticSearch_RunsFullBudget(t *testing.T) {
	eval := &stubEvaluator{verdict: func(g *core.Genome) core.JudgeVerdict {
		return goodVerdict(g.Gene("buyThreshold") * 10)
	}}

	config := smallConfig(23).WithMaxGenerations(3)
	search, err := NewGeneticSearch(config, eval, nil)
	require.NoError(t, err)

	report, err := search.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, StopMaxGenerations, report.StopReason)
	require.Equal(t, 3, report.Generations)
	require.Len(t, report.Trace, 3)
	require.GreaterOrEqual(t, report.Evaluations, config.PopulationSize)
	require.LessOrEqual(t, report.Evaluations, config.PopulationSize*3)

	// Population sizes stay constant across breeding and migration.
	require.Len(t, search.combined(), config.PopulationSize)
}

func TestGeneticSearch_GenesStayValidAcrossRun(t *testing.T) {
	eval := &stubEvaluator{verdict: func(g *core.Genome) core.JudgeVerdict {
		return goodVerdict(g.Gene("buyThreshold"))
	}}

	config := smallConfig(29).WithMaxGenerations(6)
	search, err := NewGeneticSearch(config, eval, nil)
	require.NoError(t, err)

	_, err = search.Run(context.Background())
	require.NoError(t, err)

	for _, g := range search.combined() {
		require.NoError(t, config.Space.ValidateGenes(g.Genes))
	}
}

func TestGeneticSearch_MigrationRing(t *testing.T) {
	config := NewConfig().
		WithPopulationSize(12).
		WithIslands(3).
		WithMigration(1, 2).
		WithSeed(1)
	search := &GeneticSearch{config: config}

	// Three islands of four, fitness descending within each island so
	// the top two are known.
	for i := 0; i < 3; i++ {
		island := &Island{Index: i}
		for j := 0; j < 4; j++ {
			g := core.NewGenome(map[string]float64{"x": float64(i*10 + j)})
			g.Fitness = float64(100 - i*10 - j)
			g.Evaluated = true
			g.Island = i
			island.Population = append(island.Population, g)
		}
		search.islands = append(search.islands, island)
	}

	topIDs := make([][]string, 3)
	for i, island := range search.islands {
		topIDs[i] = []string{island.Population[0].ID, island.Population[1].ID}
	}

	search.migrate()

	for i, island := range search.islands {
		require.Len(t, island.Population, 4, "sizes must stay constant")

		// Receiver i holds copies of island (i-1)'s top two.
		from := (i + 2) % 3
		ids := map[string]bool{}
		for _, g := range island.Population {
			ids[g.ID] = true
			require.Equal(t, i, g.Island)
		}
		require.True(t, ids[topIDs[from][0]])
		require.True(t, ids[topIDs[from][1]])
	}
}

func TestGeneticSearch_InjectionRestoresDiversity(t *testing.T) {
	space := core.DefaultSpace()
	config := NewConfig().WithDiversityThreshold(0.6)
	search := &GeneticSearch{
		config:   config,
		operator: genetic.NewOperator(space, rand.New(rand.NewSource(3))),
	}

	// Ten copies of the same genome: diversity ratio 0.1.
	template := genetic.NewOperator(space, rand.New(rand.NewSource(4))).Generate()
	template.Fitness = 5
	template.Evaluated = true
	island := &Island{Index: 0}
	for j := 0; j < 10; j++ {
		clone := template.Clone()
		island.Population = append(island.Population, clone)
	}

	injected := search.inject(island, 2)

	require.Equal(t, 9, injected)
	require.Len(t, island.Population, 10)
	require.Greater(t, island.DiversityRatio(), 0.6)

	// The original survivor keeps its slot at the top.
	require.Equal(t, template.ID, island.Population[0].ID)
	require.True(t, island.Population[0].Evaluated)
	for _, g := range island.Population[1:] {
		require.False(t, g.Evaluated, "injected genomes start unevaluated")
	}
}

func TestGeneticSearch_InjectionSkipsDiverseIsland(t *testing.T) {
	space := core.DefaultSpace()
	op := genetic.NewOperator(space, rand.New(rand.NewSource(5)))
	search := &GeneticSearch{
		config:   NewConfig().WithDiversityThreshold(0.6),
		operator: op,
	}

	island := &Island{Index: 0}
	for j := 0; j < 10; j++ {
		island.Population = append(island.Population, op.Generate())
	}

	require.Zero(t, search.inject(island, 2))
}

func TestIsland_SortByFitnessSinksUnevaluated(t *testing.T) {
	a := core.NewGenome(map[string]float64{"x": 1})
	a.Fitness, a.Evaluated = 1, true
	b := core.NewGenome(map[string]float64{"x": 2})
	b.Fitness, b.Evaluated = 3, true
	c := core.NewGenome(map[string]float64{"x": 3}) // unevaluated

	island := &Island{Population: []*core.Genome{c, a, b}}
	island.SortByFitness()

	require.Equal(t, b.ID, island.Population[0].ID)
	require.Equal(t, a.ID, island.Population[1].ID)
	require.Equal(t, c.ID, island.Population[2].ID)
}

func TestIsland_Stats(t *testing.T) {
	island := &Island{}
	require.Zero(t, island.AvgFitness())
	require.Zero(t, island.DiversityRatio())
	require.Nil(t, island.Best())

	a := core.NewGenome(map[string]float64{"x": 1})
	a.Fitness, a.Evaluated = 2, true
	b := core.NewGenome(map[string]float64{"x": 1})
	b.Fitness, b.Evaluated = 4, true
	island.Population = []*core.Genome{a, b, core.NewGenome(map[string]float64{"x": 9})}

	require.InDelta(t, 3.0, island.AvgFitness(), 1e-9)
	require.InDelta(t, 2.0/3.0, island.DiversityRatio(), 1e-9)
	require.Equal(t, b.ID, island.Best().ID)
	require.Len(t, island.Unevaluated(), 1)
}
