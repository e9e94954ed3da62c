package evorun

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/optimizer"
)

func sampleReport() *optimizer.Report {
	best := core.NewGenome(map[string]float64{
		"smaShort":     15,
		"smaLong":      45,
		"buyThreshold": 0.55,
	})
	best.Fitness = 0.61
	best.Evaluated = true
	best.Verdict = core.VerdictGood
	best.Generation = 7
	best.RegimeLabel = "mild_bull"
	best.Metrics = core.GenomeMetrics{
		TotalReturn: 0.34, Sharpe: 1.4, Sortino: 1.9, Calmar: 1.1,
		MaxDrawdown: 0.12, WinRate: 0.52, ProfitFactor: 1.6, TradeCount: 64,
	}

	second := best.Clone()
	second.ID = "second"
	second.Fitness = 0.48
	second.Verdict = core.VerdictAcceptable

	return &optimizer.Report{
		RunID:       "run-test",
		Best:        best,
		Leaderboard: []*core.Genome{best, second},
		Insights: []core.LearningInsight{
			{Parameter: "smaShort", Signal: 0.42, TopMean: 14.8, SampleSize: 40, Confidence: 0.8},
			{Parameter: "stopLossPct", Signal: -0.31, TopMean: 0.04, SampleSize: 40, Confidence: 0.6},
		},
		BestResult: &core.BacktestResult{
			DailyReturns: []float64{0.01, -0.004, 0.007, 0.012, -0.002, 0.003, -0.008, 0.005},
			Trades: []core.Trade{
				{PnL: 120.5}, {PnL: -60.2}, {PnL: 80.0}, {PnL: -20.0},
			},
			TotalReturn: 0.34, Sharpe: 1.4, WinRate: 0.52, MaxDrawdown: 0.12,
			RegimePerformance: map[string]core.RegimeStats{
				"mild_bull": {TotalReturn: 0.28, Sharpe: 1.8, Days: 120},
				"ranging":   {TotalReturn: 0.06, Sharpe: 0.4, Days: 80},
			},
		},
		Trace: []optimizer.GenerationTrace{
			{Generation: 1, Evaluations: 16, BestFitness: 0.4, AvgFitness: 0.1},
		},
		Generations: 7,
		Evaluations: 104,
		Elapsed:     3 * time.Second,
		StopReason:  optimizer.StopConverged,
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, sampleReport())
	out := buf.String()

	require.Contains(t, out, "run run-test: converged after 7 generations")
	require.Contains(t, out, "BEST GENOME")
	require.Contains(t, out, "dominant regime mild_bull")
	require.Contains(t, out, "smaShort: 15")
	require.Contains(t, out, "REGIME PERFORMANCE")
	require.Contains(t, out, "ranging")
	require.Contains(t, out, "PARAMETER INSIGHTS")
	require.Contains(t, out, "stopLossPct")
	require.Contains(t, out, "DAILY RETURNS")
	require.Contains(t, out, "CONFIDENCE INTERVAL")
	require.Contains(t, out, "GOOD")
}

func TestWriteSummary_EmptyReport(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, &optimizer.Report{RunID: "empty", StopReason: optimizer.StopCancelled})
	out := buf.String()

	require.Contains(t, out, "no evaluated genomes to display")
	require.Contains(t, out, "no trustworthy best genome found")

	WriteSummary(&buf, nil)
}

func TestWriteBacktestSummary(t *testing.T) {
	report := sampleReport()
	verdict := core.JudgeVerdict{
		Score:    0.61,
		Category: core.VerdictGood,
		Warnings: []string{"max drawdown above 25%"},
	}

	var buf bytes.Buffer
	WriteBacktestSummary(&buf, report.BestResult, verdict)
	out := buf.String()

	require.Contains(t, out, "score 0.6100 (GOOD)")
	require.Contains(t, out, "warning: max drawdown above 25%")
	require.Contains(t, out, "REGIME PERFORMANCE")
}

func TestSaveLeaderboardCSV(t *testing.T) {
	report := sampleReport()
	path := filepath.Join(t.TempDir(), "leaderboard.csv")
	require.NoError(t, SaveLeaderboardCSV(report, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// 6 identity columns + 3 genes + 8 metric columns.
	require.Len(t, rows[0], 17)
	require.Equal(t, "rank", rows[0][0])
	require.Equal(t, "buyThreshold", rows[0][6])

	require.Equal(t, "1", rows[1][0])
	require.Equal(t, "0.6100", rows[1][2])
	require.Equal(t, "GOOD", rows[1][3])
	require.Equal(t, "2", rows[2][0])
	require.Equal(t, "second", rows[2][1])
}

func TestFormatGenes(t *testing.T) {
	out := FormatGenes(map[string]float64{"beta": 0.5, "alpha": 14, "gamma": 0.05})
	require.Equal(t, "{alpha: 14, beta: 0.5, gamma: 0.05}", out)
	require.Equal(t, "{}", FormatGenes(nil))
}
