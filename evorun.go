// Package evorun discovers trading-strategy configurations: it loads
// daily bars into an immutable market snapshot, evolves parameter
// genomes on an island-model genetic search, and reports the best
// configuration an overfitting-aware judge will stand behind.
package evorun

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"

	"github.com/quantforge/evorun/pkg/backtest"
	"github.com/quantforge/evorun/pkg/config"
	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/feed"
	"github.com/quantforge/evorun/pkg/judge"
	"github.com/quantforge/evorun/pkg/logger"
	"github.com/quantforge/evorun/pkg/optimizer"
	"github.com/quantforge/evorun/pkg/storage"
)

// DefaultLog is the default logger instance
var DefaultLog logger.Logger

// Engine wires a run config into a full optimization: CSV feed, frozen
// market snapshot, judge, genetic search and checkpoint storage.
type Engine struct {
	config   *config.RunConfig
	logger   logger.Logger
	storage  core.RunStorage
	weights  judge.Weights
	progress bool
}

// Option is a functional option for configuring an Engine instance
type Option func(*Engine)

// WithLogger replaces the environment-configured default logger
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.logger = log
	}
}

// WithStorage injects a checkpoint store. It overrides the run file's
// storage section; the caller keeps ownership and closes it.
func WithStorage(st core.RunStorage) Option {
	return func(e *Engine) {
		e.storage = st
	}
}

// WithProgressBar renders one progress tick per generation
func WithProgressBar() Option {
	return func(e *Engine) {
		e.progress = true
	}
}

// WithJudgeWeights replaces the default scoring weights
func WithJudgeWeights(w judge.Weights) Option {
	return func(e *Engine) {
		e.weights = w
	}
}

// NewEngine validates the run config and applies the provided options.
func NewEngine(cfg *config.RunConfig, options ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil run config", core.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:  cfg,
		logger:  DefaultLog,
		weights: judge.DefaultWeights(),
	}

	for _, option := range options {
		option(engine)
	}

	return engine, nil
}

// Snapshot loads the configured CSV universe and freezes it into the
// immutable market view every simulation reads.
func (e *Engine) Snapshot() (*feed.Snapshot, error) {
	files, err := e.config.SymbolFiles()
	if err != nil {
		return nil, err
	}

	opts := []feed.SnapshotOption{feed.WithSnapshotLogger(e.logger)}
	if e.config.Data.ReferenceSymbol != "" {
		opts = append(opts, feed.WithReferenceSymbol(e.config.Data.ReferenceSymbol))
	}
	if e.config.Data.MinHistory > 0 {
		opts = append(opts, feed.WithMinHistory(e.config.Data.MinHistory))
	}

	return feed.NewSnapshot(feed.NewCSVFeed(e.logger, files...), opts...)
}

// Run executes the full optimization and returns the final report. A
// cancelled context stops at the next generation boundary and still
// yields the partial report.
func (e *Engine) Run(ctx context.Context) (*optimizer.Report, error) {
	snapshot, err := e.Snapshot()
	if err != nil {
		return nil, err
	}

	searchCfg, err := e.config.SearchConfig()
	if err != nil {
		return nil, err
	}
	searchCfg.WithLogger(e.logger)

	var bar *progressbar.ProgressBar
	if e.progress {
		bar = progressbar.Default(int64(searchCfg.MaxGenerations))
		searchCfg.WithProgress(func(optimizer.GenerationTrace) {
			if err := bar.Add(1); err != nil && e.logger != nil {
				e.logger.Warnf("update progressbar fail: %v", err)
			}
		})
	}

	store, owned, err := e.checkpointStore()
	if err != nil {
		return nil, err
	}
	if owned {
		defer store.Close()
	}

	evaluator := optimizer.NewBacktestEvaluator(snapshot, judge.New(e.weights),
		searchCfg.InitialCapital, searchCfg.MinTrades)

	search, err := optimizer.NewGeneticSearch(searchCfg, evaluator, store)
	if err != nil {
		return nil, err
	}

	report, err := search.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	return report, err
}

// Backtest simulates one gene map against the configured data outside
// the genetic loop, judging it the way the search would. Gene values
// are snapped into the parameter space first, so a hand-edited map
// with slight drift still runs.
func (e *Engine) Backtest(genes map[string]float64) (*core.BacktestResult, core.JudgeVerdict, error) {
	space, err := e.config.Space()
	if err != nil {
		return nil, core.JudgeVerdict{}, err
	}

	snapped := make(map[string]float64, len(genes))
	for name, value := range genes {
		r, ok := space.Range(name)
		if !ok {
			return nil, core.JudgeVerdict{}, fmt.Errorf("%w: %q", core.ErrUnknownParameter, name)
		}
		snapped[name] = r.Snap(value)
	}
	space.NormalizeWeights(snapped)
	if err := space.ValidateGenes(snapped); err != nil {
		return nil, core.JudgeVerdict{}, err
	}

	snapshot, err := e.Snapshot()
	if err != nil {
		return nil, core.JudgeVerdict{}, err
	}

	result := backtest.NewSimulator(snapshot, e.config.Backtest.InitialCapital).Run(core.NewGenome(snapped))
	return result, judge.New(e.weights).Score(result), nil
}

// checkpointStore resolves where checkpoints go: an injected store, or
// one opened from the run file (owned by the engine for the run).
func (e *Engine) checkpointStore() (core.RunStorage, bool, error) {
	if e.storage != nil {
		return e.storage, false, nil
	}

	switch e.config.Storage.Checkpoints {
	case "":
		return nil, false, nil
	case ":memory:":
		st, err := storage.FromMemory()
		return st, err == nil, err
	default:
		st, err := storage.FromFile(e.config.Storage.Checkpoints)
		return st, err == nil, err
	}
}
