package evorun

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"

	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/metric"
	"github.com/quantforge/evorun/pkg/optimizer"
)

const (
	bootstrapSamples    = 10000
	bootstrapConfidence = 0.95
)

// Summary displays the run report in stdout: leaderboard, best genome,
// per-regime performance, learning insights, the daily-returns
// histogram and bootstrap confidence intervals.
func Summary(report *optimizer.Report) {
	WriteSummary(os.Stdout, report)
}

// WriteSummary renders the report to the given writer.
func WriteSummary(w io.Writer, report *optimizer.Report) {
	if report == nil {
		return
	}

	fmt.Fprintf(w, "run %s: %s after %d generations, %d evaluations in %s\n\n",
		report.RunID, report.StopReason, report.Generations, report.Evaluations,
		report.Elapsed.Round(time.Millisecond))

	writeLeaderboard(w, report.Leaderboard)
	writeBest(w, report.Best)
	writeRegimes(w, report.BestResult)
	writeInsights(w, report.Insights)
	writeReturns(w, report.BestResult)
}

// BacktestSummary displays a single simulation's outcome in stdout.
func BacktestSummary(result *core.BacktestResult, verdict core.JudgeVerdict) {
	WriteBacktestSummary(os.Stdout, result, verdict)
}

// WriteBacktestSummary renders one judged backtest to the given writer.
func WriteBacktestSummary(w io.Writer, result *core.BacktestResult, verdict core.JudgeVerdict) {
	if result == nil {
		return
	}

	fmt.Fprintf(w, "score %.4f (%s)\n", verdict.Score, verdict.Category)
	for _, warning := range verdict.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"Trades", "Win %", "Return", "Sharpe", "Sortino", "Calmar", "Max DD", "Pr Fact.",
	})
	table.Append([]string{
		strconv.Itoa(len(result.Trades)),
		fmt.Sprintf("%.1f %%", result.WinRate*100),
		fmt.Sprintf("%.2f %%", result.TotalReturn*100),
		fmt.Sprintf("%.3f", result.Sharpe),
		fmt.Sprintf("%.3f", result.Sortino),
		fmt.Sprintf("%.3f", result.Calmar),
		fmt.Sprintf("%.2f %%", result.MaxDrawdown*100),
		fmt.Sprintf("%.3f", result.ProfitFactor),
	})
	table.Render()
	fmt.Fprintln(w)

	writeRegimes(w, result)
	writeReturns(w, result)
}

func writeLeaderboard(w io.Writer, board []*core.Genome) {
	if len(board) == 0 {
		fmt.Fprintln(w, "no evaluated genomes to display")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"Rank", "Fitness", "Verdict", "Trades", "Win %", "Return",
		"Sharpe", "Sortino", "Calmar", "Max DD", "Pr Fact.",
	})

	for i, g := range board {
		m := g.Metrics
		table.Append([]string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%.4f", g.Fitness),
			g.Verdict.String(),
			strconv.Itoa(m.TradeCount),
			fmt.Sprintf("%.1f %%", m.WinRate*100),
			fmt.Sprintf("%.2f %%", m.TotalReturn*100),
			fmt.Sprintf("%.3f", m.Sharpe),
			fmt.Sprintf("%.3f", m.Sortino),
			fmt.Sprintf("%.3f", m.Calmar),
			fmt.Sprintf("%.2f %%", m.MaxDrawdown*100),
			fmt.Sprintf("%.3f", m.ProfitFactor),
		})
	}
	table.Render()
	fmt.Fprintln(w)
}

func writeBest(w io.Writer, best *core.Genome) {
	if best == nil {
		fmt.Fprintln(w, "no trustworthy best genome found")
		return
	}

	fmt.Fprintln(w, "------ BEST GENOME -------")
	fmt.Fprintf(w, "fitness %.4f (%s)", best.Fitness, best.Verdict)
	if best.RegimeLabel != "" {
		fmt.Fprintf(w, ", dominant regime %s", best.RegimeLabel)
	}
	fmt.Fprintf(w, ", found in generation %d\n", best.Generation)
	fmt.Fprintf(w, "genes: %s\n\n", FormatGenes(best.Genes))
}

func writeRegimes(w io.Writer, result *core.BacktestResult) {
	if result == nil || len(result.RegimePerformance) == 0 {
		return
	}

	labels := make([]string, 0, len(result.RegimePerformance))
	for label := range result.RegimePerformance {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	fmt.Fprintln(w, "------ REGIME PERFORMANCE -------")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Regime", "Days", "Return", "Sharpe"})
	for _, label := range labels {
		stats := result.RegimePerformance[label]
		table.Append([]string{
			label,
			strconv.Itoa(stats.Days),
			fmt.Sprintf("%.2f %%", stats.TotalReturn*100),
			fmt.Sprintf("%.3f", stats.Sharpe),
		})
	}
	table.Render()
	fmt.Fprintln(w)
}

func writeInsights(w io.Writer, insights []core.LearningInsight) {
	if len(insights) == 0 {
		return
	}

	fmt.Fprintln(w, "------ PARAMETER INSIGHTS -------")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Parameter", "Signal", "Top Mean", "Samples", "Confidence", "Push"})
	for _, in := range insights {
		push := "down"
		if in.Bullish() {
			push = "up"
		}
		table.Append([]string{
			in.Parameter,
			fmt.Sprintf("%+.3f", in.Signal),
			fmt.Sprintf("%.3f", in.TopMean),
			strconv.Itoa(in.SampleSize),
			fmt.Sprintf("%.2f", in.Confidence),
			push,
		})
	}
	table.Render()
	fmt.Fprintln(w)
}

func writeReturns(w io.Writer, result *core.BacktestResult) {
	if result == nil {
		return
	}

	if len(result.DailyReturns) > 0 {
		fmt.Fprintln(w, "------ DAILY RETURNS -------")
		returnsPercent := make([]float64, len(result.DailyReturns))
		for i, r := range result.DailyReturns {
			returnsPercent[i] = r * 100
		}
		hist := histogram.Hist(15, returnsPercent)
		histogram.Fprint(w, hist, histogram.Linear(10))
		fmt.Fprintln(w)

		returnsInterval := metric.Bootstrap(result.DailyReturns, metric.Mean,
			bootstrapSamples, bootstrapConfidence)
		fmt.Fprintln(w, "------ CONFIDENCE INTERVAL (95%) -------")
		fmt.Fprintf(w, "DAILY RETURN: %.3f%% (%.3f%% ~ %.3f%%)\n",
			returnsInterval.Mean*100, returnsInterval.Lower*100, returnsInterval.Upper*100)
	}

	if len(result.Trades) > 0 {
		pnls := make([]float64, len(result.Trades))
		for i, t := range result.Trades {
			pnls[i] = t.PnL
		}
		payoffInterval := metric.Bootstrap(pnls, metric.Payoff, bootstrapSamples, bootstrapConfidence)
		profitFactorInterval := metric.Bootstrap(pnls, metric.ProfitFactor, bootstrapSamples, bootstrapConfidence)

		fmt.Fprintf(w, "PAYOFF:       %.2f (%.2f ~ %.2f)\n",
			payoffInterval.Mean, payoffInterval.Lower, payoffInterval.Upper)
		fmt.Fprintf(w, "PROF.FACTOR:  %.2f (%.2f ~ %.2f)\n",
			profitFactorInterval.Mean, profitFactorInterval.Lower, profitFactorInterval.Upper)
	}
	fmt.Fprintln(w)
}

// FormatGenes formats a gene map as a single sorted line.
func FormatGenes(genes map[string]float64) string {
	names := make([]string, 0, len(genes))
	for name := range genes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := "{"
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s: %s", name, strconv.FormatFloat(genes[name], 'f', -1, 64))
	}
	return out + "}"
}

// SaveLeaderboardCSV writes the leaderboard to a CSV file: one row per
// genome with its gene values and backtest metrics, best first.
func SaveLeaderboardCSV(report *optimizer.Report, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Determine all gene names across the board for consistent columns.
	geneNames := make(map[string]bool)
	for _, g := range report.Leaderboard {
		for name := range g.Genes {
			geneNames[name] = true
		}
	}
	geneNameSlice := make([]string, 0, len(geneNames))
	for name := range geneNames {
		geneNameSlice = append(geneNameSlice, name)
	}
	sort.Strings(geneNameSlice)

	header := []string{"rank", "id", "fitness", "verdict", "generation", "island"}
	header = append(header, geneNameSlice...)
	header = append(header,
		"trades", "total_return", "sharpe", "sortino", "calmar",
		"max_drawdown", "win_rate", "profit_factor",
	)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, g := range report.Leaderboard {
		row := []string{
			strconv.Itoa(i + 1),
			g.ID,
			strconv.FormatFloat(g.Fitness, 'f', 4, 64),
			g.Verdict.String(),
			strconv.Itoa(g.Generation),
			strconv.Itoa(g.Island),
		}

		for _, name := range geneNameSlice {
			value, exists := g.Genes[name]
			if !exists {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(value, 'f', 4, 64))
		}

		m := g.Metrics
		row = append(row,
			strconv.Itoa(m.TradeCount),
			strconv.FormatFloat(m.TotalReturn, 'f', 4, 64),
			strconv.FormatFloat(m.Sharpe, 'f', 4, 64),
			strconv.FormatFloat(m.Sortino, 'f', 4, 64),
			strconv.FormatFloat(m.Calmar, 'f', 4, 64),
			strconv.FormatFloat(m.MaxDrawdown, 'f', 4, 64),
			strconv.FormatFloat(m.WinRate, 'f', 4, 64),
			strconv.FormatFloat(m.ProfitFactor, 'f', 4, 64),
		)

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}
