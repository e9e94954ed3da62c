package optimizer

import (
	"fmt"
	"time"

	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/logger"
)

// Config holds every knob of the island-model search. It is built
// once, validated, and threaded through the run; nothing reads
// configuration from globals.
type Config struct {
	// PopulationSize is the total genome count, split evenly across
	// islands (remainders land on the lower-indexed islands).
	PopulationSize int

	// NumIslands is how many independent populations evolve.
	NumIslands int

	// EliteCount is the global elite budget; each island carries
	// EliteCount/NumIslands unchanged survivors per generation.
	EliteCount int

	// MigrationInterval is the generation cadence of the ring
	// exchange; MigrationCount genomes travel each time.
	MigrationInterval int
	MigrationCount    int

	// TournamentSize is the sample size of one selection tournament.
	TournamentSize int

	// CrossoverRate is the probability a child is bred from two
	// parents rather than copied from one.
	CrossoverRate float64

	// MutationRate is the base per-gene mutation probability; the
	// learning engine adapts the effective rate between 1x and 3x.
	MutationRate float64

	// MinTrades is the trade count below which a result earns the
	// failure sentinel instead of its judged score.
	MinTrades int

	// DiversityThreshold is the unique-genome fraction below which an
	// island receives fresh random blood.
	DiversityThreshold float64

	// Convergence: stop once the variance of the last
	// ConvergenceWindow average-fitness samples stays below
	// ConvergenceVariance for ConvergencePatience generations.
	ConvergenceWindow   int
	ConvergenceVariance float64
	ConvergencePatience int

	// Budgets. MaxDuration zero means no wall-clock limit.
	MaxGenerations int
	MaxDuration    time.Duration

	// Evaluation batching: unevaluated genomes are chunked into
	// BatchSize groups, each evaluated by at most Parallelism
	// goroutines; batches run sequentially.
	BatchSize   int
	Parallelism int

	// CheckpointInterval is the generation cadence of storage
	// checkpoints; ignored without a storage.
	CheckpointInterval int

	// Seed fixes the random stream. Zero draws a seed from the clock
	// at run start.
	Seed int64

	// TopK sizes the reported leaderboard.
	TopK int

	// InitialCapital funds each simulated portfolio.
	InitialCapital float64

	// Space is the gene table genomes draw from.
	Space *core.ParameterSpace

	// Logger receives per-generation progress. Nil disables logging.
	Logger logger.Logger

	// Progress, when set, is called on the orchestrating goroutine
	// after every completed generation.
	Progress func(GenerationTrace)
}

// NewConfig returns a config with the standard search settings.
func NewConfig() *Config {
	return &Config{
		PopulationSize:      50,
		NumIslands:          2,
		EliteCount:          5,
		MigrationInterval:   10,
		MigrationCount:      2,
		TournamentSize:      3,
		CrossoverRate:       0.8,
		MutationRate:        0.15,
		MinTrades:           30,
		DiversityThreshold:  0.6,
		ConvergenceWindow:   10,
		ConvergenceVariance: 1e-4,
		ConvergencePatience: 5,
		MaxGenerations:      100,
		BatchSize:           8,
		Parallelism:         4,
		CheckpointInterval:  10,
		TopK:                10,
		InitialCapital:      100_000,
		Space:               core.DefaultSpace(),
	}
}

func (c *Config) WithPopulationSize(n int) *Config {
	c.PopulationSize = n
	return c
}

func (c *Config) WithIslands(n int) *Config {
	c.NumIslands = n
	return c
}

func (c *Config) WithEliteCount(n int) *Config {
	c.EliteCount = n
	return c
}

func (c *Config) WithMigration(interval, count int) *Config {
	c.MigrationInterval = interval
	c.MigrationCount = count
	return c
}

func (c *Config) WithTournamentSize(k int) *Config {
	c.TournamentSize = k
	return c
}

func (c *Config) WithCrossoverRate(rate float64) *Config {
	c.CrossoverRate = rate
	return c
}

func (c *Config) WithMutationRate(rate float64) *Config {
	c.MutationRate = rate
	return c
}

func (c *Config) WithMinTrades(n int) *Config {
	c.MinTrades = n
	return c
}

func (c *Config) WithDiversityThreshold(ratio float64) *Config {
	c.DiversityThreshold = ratio
	return c
}

func (c *Config) WithConvergence(window int, variance float64, patience int) *Config {
	c.ConvergenceWindow = window
	c.ConvergenceVariance = variance
	c.ConvergencePatience = patience
	return c
}

func (c *Config) WithMaxGenerations(n int) *Config {
	c.MaxGenerations = n
	return c
}

func (c *Config) WithMaxDuration(d time.Duration) *Config {
	c.MaxDuration = d
	return c
}

func (c *Config) WithBatch(size, parallelism int) *Config {
	c.BatchSize = size
	c.Parallelism = parallelism
	return c
}

func (c *Config) WithCheckpointInterval(n int) *Config {
	c.CheckpointInterval = n
	return c
}

func (c *Config) WithSeed(seed int64) *Config {
	c.Seed = seed
	return c
}

func (c *Config) WithTopK(n int) *Config {
	c.TopK = n
	return c
}

func (c *Config) WithInitialCapital(capital float64) *Config {
	c.InitialCapital = capital
	return c
}

func (c *Config) WithSpace(space *core.ParameterSpace) *Config {
	c.Space = space
	return c
}

func (c *Config) WithLogger(log logger.Logger) *Config {
	c.Logger = log
	return c
}

func (c *Config) WithProgress(fn func(GenerationTrace)) *Config {
	c.Progress = fn
	return c
}

// IslandSize returns the population of one island. The first
// PopulationSize%NumIslands islands hold one extra genome.
func (c *Config) IslandSize(index int) int {
	base := c.PopulationSize / c.NumIslands
	if index < c.PopulationSize%c.NumIslands {
		return base + 1
	}
	return base
}

// ElitePerIsland returns how many genomes survive unchanged on each
// island.
func (c *Config) ElitePerIsland() int {
	return c.EliteCount / c.NumIslands
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.NumIslands < 1 {
		return fmt.Errorf("%w: need at least one island", core.ErrInvalidConfig)
	}
	if c.PopulationSize < 2*c.NumIslands {
		return fmt.Errorf("%w: population %d cannot fill %d islands",
			core.ErrInvalidConfig, c.PopulationSize, c.NumIslands)
	}
	minIsland := c.IslandSize(c.NumIslands - 1)
	if c.ElitePerIsland() >= minIsland {
		return fmt.Errorf("%w: %d elites per island leave no room for offspring",
			core.ErrInvalidConfig, c.ElitePerIsland())
	}
	if c.MigrationInterval < 1 {
		return fmt.Errorf("%w: migration interval must be positive", core.ErrInvalidConfig)
	}
	if c.MigrationCount < 0 || c.MigrationCount >= minIsland {
		return fmt.Errorf("%w: migration count %d out of range for island size %d",
			core.ErrInvalidConfig, c.MigrationCount, minIsland)
	}
	if c.TournamentSize < 1 {
		return fmt.Errorf("%w: tournament size must be positive", core.ErrInvalidConfig)
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		return fmt.Errorf("%w: crossover rate %v outside [0, 1]", core.ErrInvalidConfig, c.CrossoverRate)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("%w: mutation rate %v outside [0, 1]", core.ErrInvalidConfig, c.MutationRate)
	}
	if c.DiversityThreshold < 0 || c.DiversityThreshold > 1 {
		return fmt.Errorf("%w: diversity threshold %v outside [0, 1]", core.ErrInvalidConfig, c.DiversityThreshold)
	}
	if c.ConvergenceWindow < 2 || c.ConvergencePatience < 1 {
		return fmt.Errorf("%w: convergence window needs >= 2 samples and >= 1 patience", core.ErrInvalidConfig)
	}
	if c.MaxGenerations < 1 {
		return fmt.Errorf("%w: need at least one generation", core.ErrInvalidConfig)
	}
	if c.BatchSize < 1 || c.Parallelism < 1 {
		return fmt.Errorf("%w: batch size and parallelism must be positive", core.ErrInvalidConfig)
	}
	if c.CheckpointInterval < 1 {
		return fmt.Errorf("%w: checkpoint interval must be positive", core.ErrInvalidConfig)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: leaderboard needs at least one slot", core.ErrInvalidConfig)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive", core.ErrInvalidConfig)
	}
	if c.Space == nil {
		return fmt.Errorf("%w: nil parameter space", core.ErrInvalidConfig)
	}
	return nil
}
