// Package config loads the YAML run file that drives a full
// optimization: which data to load, how to fund the portfolio, where
// checkpoints go, and every optimizer knob. Values omitted from the
// file keep the engine defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/feed"
	"github.com/quantforge/evorun/pkg/optimizer"
)

// RunConfig mirrors the YAML run file.
type RunConfig struct {
	Data       DataConfig          `yaml:"data"`
	Backtest   BacktestConfig      `yaml:"backtest"`
	Optimizer  OptimizerConfig     `yaml:"optimizer"`
	Storage    StorageConfig       `yaml:"storage"`
	Parameters []ParameterOverride `yaml:"parameters"`
}

// DataConfig selects the symbol universe. Dir is scanned for *.csv
// files whose base name becomes the symbol; Files adds or overrides
// explicit symbol→file bindings.
type DataConfig struct {
	Dir             string             `yaml:"dir"`
	Files           []SymbolFileConfig `yaml:"files"`
	ReferenceSymbol string             `yaml:"reference_symbol"`
	MinHistory      int                `yaml:"min_history"`
}

// SymbolFileConfig binds one symbol to one CSV file.
type SymbolFileConfig struct {
	Symbol string `yaml:"symbol"`
	File   string `yaml:"file"`
}

// BacktestConfig holds the simulation funding.
type BacktestConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
}

// OptimizerConfig exposes the search knobs. MaxDuration accepts the
// extended duration syntax ("72h", "2d12h", "30m").
type OptimizerConfig struct {
	Population          int     `yaml:"population"`
	Islands             int     `yaml:"islands"`
	Elites              int     `yaml:"elites"`
	MigrationInterval   int     `yaml:"migration_interval"`
	MigrationCount      int     `yaml:"migration_count"`
	TournamentSize      int     `yaml:"tournament_size"`
	CrossoverRate       float64 `yaml:"crossover_rate"`
	MutationRate        float64 `yaml:"mutation_rate"`
	MinTrades           int     `yaml:"min_trades"`
	DiversityThreshold  float64 `yaml:"diversity_threshold"`
	ConvergenceWindow   int     `yaml:"convergence_window"`
	ConvergenceVariance float64 `yaml:"convergence_variance"`
	ConvergencePatience int     `yaml:"convergence_patience"`
	MaxGenerations      int     `yaml:"max_generations"`
	MaxDuration         string  `yaml:"max_duration"`
	BatchSize           int     `yaml:"batch_size"`
	Parallelism         int     `yaml:"parallelism"`
	CheckpointInterval  int     `yaml:"checkpoint_interval"`
	Seed                int64   `yaml:"seed"`
	TopK                int     `yaml:"top_k"`
}

// StorageConfig decides where checkpoints land: a file path, the
// literal ":memory:", or empty to disable persistence.
type StorageConfig struct {
	Checkpoints string `yaml:"checkpoints"`
}

// ParameterOverride restates the bounds of one default parameter. The
// integer and weight classification of a gene never changes, so an
// override carries only the numeric domain.
type ParameterOverride struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
}

// Default returns a run config holding the engine defaults. A YAML
// file is unmarshaled over it, so absent keys keep these values.
func Default() *RunConfig {
	base := optimizer.NewConfig()
	return &RunConfig{
		Backtest: BacktestConfig{InitialCapital: base.InitialCapital},
		Optimizer: OptimizerConfig{
			Population:          base.PopulationSize,
			Islands:             base.NumIslands,
			Elites:              base.EliteCount,
			MigrationInterval:   base.MigrationInterval,
			MigrationCount:      base.MigrationCount,
			TournamentSize:      base.TournamentSize,
			CrossoverRate:       base.CrossoverRate,
			MutationRate:        base.MutationRate,
			MinTrades:           base.MinTrades,
			DiversityThreshold:  base.DiversityThreshold,
			ConvergenceWindow:   base.ConvergenceWindow,
			ConvergenceVariance: base.ConvergenceVariance,
			ConvergencePatience: base.ConvergencePatience,
			MaxGenerations:      base.MaxGenerations,
			BatchSize:           base.BatchSize,
			Parallelism:         base.Parallelism,
			CheckpointInterval:  base.CheckpointInterval,
			TopK:                base.TopK,
		},
	}
}

// Load reads and validates a YAML run file.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*RunConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks everything the optimizer config cannot check itself:
// the data section, the duration syntax and the parameter overrides.
func (c *RunConfig) Validate() error {
	if c.Data.Dir == "" && len(c.Data.Files) == 0 {
		return fmt.Errorf("%w: data needs a dir or explicit files", core.ErrInvalidConfig)
	}
	for _, f := range c.Data.Files {
		if f.Symbol == "" || f.File == "" {
			return fmt.Errorf("%w: data file entries need both symbol and file", core.ErrInvalidConfig)
		}
	}
	if c.Data.MinHistory < 0 {
		return fmt.Errorf("%w: min_history cannot be negative", core.ErrInvalidConfig)
	}

	if c.Optimizer.MaxDuration != "" {
		if _, err := str2duration.ParseDuration(c.Optimizer.MaxDuration); err != nil {
			return fmt.Errorf("%w: bad max_duration %q: %v",
				core.ErrInvalidConfig, c.Optimizer.MaxDuration, err)
		}
	}

	if _, err := c.Space(); err != nil {
		return err
	}
	return nil
}

// SymbolFiles resolves the data section into symbol→file bindings.
// Directory entries come first, so an explicit file wins over a
// scanned one for the same symbol.
func (c *RunConfig) SymbolFiles() ([]feed.SymbolFile, error) {
	var files []feed.SymbolFile

	if c.Data.Dir != "" {
		entries, err := os.ReadDir(c.Data.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data dir: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".csv") {
				continue
			}
			files = append(files, feed.SymbolFile{
				Symbol: strings.TrimSuffix(name, filepath.Ext(name)),
				File:   filepath.Join(c.Data.Dir, name),
			})
		}
	}

	for _, f := range c.Data.Files {
		files = append(files, feed.SymbolFile{Symbol: f.Symbol, File: f.File})
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no CSV files found", core.ErrEmptyUniverse)
	}
	return files, nil
}

// Space builds the parameter space: the default gene table with the
// configured overrides applied. Overriding a gene the table does not
// know is an error.
func (c *RunConfig) Space() (*core.ParameterSpace, error) {
	defaults := core.DefaultSpace().Ranges()
	ranges := make([]core.ParameterRange, len(defaults))
	copy(ranges, defaults)

	index := make(map[string]int, len(ranges))
	for i, r := range ranges {
		index[r.Name] = i
	}

	for _, o := range c.Parameters {
		i, ok := index[o.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", core.ErrUnknownParameter, o.Name)
		}
		ranges[i].Min = o.Min
		ranges[i].Max = o.Max
		ranges[i].Step = o.Step
	}

	return core.NewParameterSpace(ranges...)
}

// SearchConfig converts the run file into the optimizer's immutable
// config and validates it.
func (c *RunConfig) SearchConfig() (*optimizer.Config, error) {
	space, err := c.Space()
	if err != nil {
		return nil, err
	}

	cfg := optimizer.NewConfig().
		WithPopulationSize(c.Optimizer.Population).
		WithIslands(c.Optimizer.Islands).
		WithEliteCount(c.Optimizer.Elites).
		WithMigration(c.Optimizer.MigrationInterval, c.Optimizer.MigrationCount).
		WithTournamentSize(c.Optimizer.TournamentSize).
		WithCrossoverRate(c.Optimizer.CrossoverRate).
		WithMutationRate(c.Optimizer.MutationRate).
		WithMinTrades(c.Optimizer.MinTrades).
		WithDiversityThreshold(c.Optimizer.DiversityThreshold).
		WithConvergence(
			c.Optimizer.ConvergenceWindow,
			c.Optimizer.ConvergenceVariance,
			c.Optimizer.ConvergencePatience,
		).
		WithMaxGenerations(c.Optimizer.MaxGenerations).
		WithBatch(c.Optimizer.BatchSize, c.Optimizer.Parallelism).
		WithCheckpointInterval(c.Optimizer.CheckpointInterval).
		WithSeed(c.Optimizer.Seed).
		WithTopK(c.Optimizer.TopK).
		WithInitialCapital(c.Backtest.InitialCapital).
		WithSpace(space)

	if c.Optimizer.MaxDuration != "" {
		d, err := str2duration.ParseDuration(c.Optimizer.MaxDuration)
		if err != nil {
			return nil, fmt.Errorf("%w: bad max_duration %q: %v",
				core.ErrInvalidConfig, c.Optimizer.MaxDuration, err)
		}
		cfg = cfg.WithMaxDuration(d)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
