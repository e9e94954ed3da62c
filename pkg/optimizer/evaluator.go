package optimizer

import (
	"context"
	"fmt"

	"github.com/quantforge/evorun/pkg/backtest"
	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/judge"
)

// Evaluation is the full outcome of scoring one genome.
type Evaluation struct {
	Result  *core.BacktestResult
	Verdict core.JudgeVerdict

	// Regime is the dominant market regime of the evaluated window.
	Regime string
}

// Evaluator turns a genome into a judged backtest. Implementations
// must be safe for concurrent use; the search calls Evaluate from a
// bounded pool of goroutines.
type Evaluator interface {
	Evaluate(ctx context.Context, g *core.Genome) (*Evaluation, error)
}

// BacktestEvaluator scores genomes by replaying them through the
// daily-bar simulator and handing the result to the judge.
type BacktestEvaluator struct {
	simulator *backtest.Simulator
	judge     *judge.Judge
	minTrades int
	regime    string
}

// NewBacktestEvaluator builds the standard evaluator over one market
// view. The dominant regime of the window is derived once and stamped
// onto every genome evaluated here.
func NewBacktestEvaluator(market backtest.Market, j *judge.Judge, initialCapital float64, minTrades int) *BacktestEvaluator {
	return &BacktestEvaluator{
		simulator: backtest.NewSimulator(market, initialCapital),
		judge:     j,
		minTrades: minTrades,
		regime:    dominantRegime(market.RegimeLabels()),
	}
}

// Evaluate runs the genome's backtest and judges it. Results with
// fewer than minTrades round trips are statistically meaningless and
// earn the failure sentinel instead of a judged score.
func (e *BacktestEvaluator) Evaluate(ctx context.Context, g *core.Genome) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := e.simulator.Run(g)

	var verdict core.JudgeVerdict
	if len(result.Trades) < e.minTrades {
		verdict = core.JudgeVerdict{
			Score:    core.EvalFailedFitness,
			Category: core.VerdictPoor,
			Warnings: []string{
				fmt.Sprintf("only %d trades, below the %d minimum", len(result.Trades), e.minTrades),
			},
		}
	} else {
		verdict = e.judge.Score(result)
	}

	return &Evaluation{Result: result, Verdict: verdict, Regime: e.regime}, nil
}

// Regime returns the dominant regime label of the evaluated window.
func (e *BacktestEvaluator) Regime() string { return e.regime }

// dominantRegime picks the most frequent label; ties break toward the
// label seen first so the answer is stable.
func dominantRegime(labels []string) string {
	counts := make(map[string]int, 8)
	order := make([]string, 0, 8)
	for _, label := range labels {
		if _, seen := counts[label]; !seen {
			order = append(order, label)
		}
		counts[label]++
	}

	best, bestCount := "", 0
	for _, label := range order {
		if counts[label] > bestCount {
			best, bestCount = label, counts[label]
		}
	}
	return best
}
