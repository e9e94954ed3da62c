package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/quantforge/evorun"
	"github.com/quantforge/evorun/pkg/config"
	"github.com/quantforge/evorun/pkg/core"
)

// Command line flags
var (
	configFile string
	outputFile string
	noProgress bool
	genomeFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "evorun",
		Short:   "Evolutionary search for trading-strategy parameters",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(buildOptimizeCmd())
	rootCmd.AddCommand(buildBacktestCmd())
	rootCmd.AddCommand(buildRangesCmd())

	// A first interrupt stops the search at the next generation
	// boundary and still prints the partial report.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildOptimizeCmd() *cobra.Command {
	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run a full optimization from a YAML run file",
		RunE:  runOptimize,
	}

	optimizeCmd.Flags().StringVarP(&configFile, "config", "c", "", "Run configuration file (e.g. ./run.yaml)")
	optimizeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the leaderboard to a CSV file")
	optimizeCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	optimizeCmd.MarkFlagRequired("config")

	return optimizeCmd
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	options := []evorun.Option{evorun.WithLogger(evorun.DefaultLog)}
	if !noProgress {
		options = append(options, evorun.WithProgressBar())
	}

	engine, err := evorun.NewEngine(cfg, options...)
	if err != nil {
		return err
	}

	report, err := engine.Run(cmd.Context())
	if err != nil {
		return err
	}

	evorun.Summary(report)

	if outputFile != "" {
		if err := evorun.SaveLeaderboardCSV(report, outputFile); err != nil {
			return err
		}
		evorun.DefaultLog.Infof("leaderboard saved to %s", outputFile)
	}
	return nil
}

func buildBacktestCmd() *cobra.Command {
	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Simulate and judge one genome against the configured data",
		RunE:  runBacktest,
	}

	backtestCmd.Flags().StringVarP(&configFile, "config", "c", "", "Run configuration file (e.g. ./run.yaml)")
	backtestCmd.Flags().StringVarP(&genomeFile, "genome", "g", "", "Genome JSON file (full genome or bare gene map)")
	backtestCmd.MarkFlagRequired("config")
	backtestCmd.MarkFlagRequired("genome")

	return backtestCmd
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	genes, err := readGenes(genomeFile)
	if err != nil {
		return err
	}

	engine, err := evorun.NewEngine(cfg, evorun.WithLogger(evorun.DefaultLog))
	if err != nil {
		return err
	}

	result, verdict, err := engine.Backtest(genes)
	if err != nil {
		return err
	}

	evorun.BacktestSummary(result, verdict)
	return nil
}

// readGenes accepts either a saved genome (with its "genes" field, as
// checkpoints and reports store them) or a bare name→value map.
func readGenes(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genome file: %w", err)
	}

	var genome struct {
		Genes map[string]float64 `json:"genes"`
	}
	if err := json.Unmarshal(data, &genome); err == nil && len(genome.Genes) > 0 {
		return genome.Genes, nil
	}

	var genes map[string]float64
	if err := json.Unmarshal(data, &genes); err != nil {
		return nil, fmt.Errorf("failed to parse genome file: %w", err)
	}
	return genes, nil
}

func buildRangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ranges",
		Short: "Print the default parameter space",
		Run:   runRanges,
	}
}

func runRanges(cmd *cobra.Command, args []string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Min", "Max", "Step", "Int", "Weight"})

	for _, r := range core.DefaultSpace().Ranges() {
		table.Append([]string{
			r.Name,
			strconv.FormatFloat(r.Min, 'f', -1, 64),
			strconv.FormatFloat(r.Max, 'f', -1, 64),
			strconv.FormatFloat(r.Step, 'f', -1, 64),
			strconv.FormatBool(r.IsInt),
			strconv.FormatBool(r.Weight),
		})
	}
	table.Render()
}
