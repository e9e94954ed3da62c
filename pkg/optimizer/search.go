// Package optimizer runs the island-model genetic search: populations
// of genomes evolve independently, exchange their best individuals on
// a ring, and are steered by an adaptive mutation controller and an
// overfitting-aware judge. Evaluation is the only concurrent phase;
// every population mutation happens on the orchestrating goroutine
// behind a generation barrier.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/genetic"
	"github.com/quantforge/evorun/pkg/learning"
)

// GeneticSearch is one configured optimization run. Not safe for
// concurrent use; create one per run.
type GeneticSearch struct {
	config    *Config
	evaluator Evaluator
	operator  *genetic.Operator
	learner   *learning.Engine
	storage   core.RunStorage
	rng       *rand.Rand

	runID   string
	islands []*Island

	best     *core.Genome
	bestEval *Evaluation

	trace          []GenerationTrace
	evaluations    int
	lastCheckpoint int

	window []float64
	calm   int
}

// NewGeneticSearch wires a search from its config and evaluator. A nil
// storage disables checkpointing.
func NewGeneticSearch(config *Config, evaluator Evaluator, storage core.RunStorage) (*GeneticSearch, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil config", core.ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if evaluator == nil {
		return nil, fmt.Errorf("%w: nil evaluator", core.ErrInvalidConfig)
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	return &GeneticSearch{
		config:    config,
		evaluator: evaluator,
		operator:  genetic.NewOperator(config.Space, rng),
		learner:   learning.NewEngine(learning.DefaultConfig(config.MutationRate)),
		storage:   storage,
		rng:       rng,
		runID:     uuid.NewString(),
	}, nil
}

// RunID returns the identity checkpoints are stored under.
func (s *GeneticSearch) RunID() string { return s.runID }

// Run executes the generation loop until a budget is exhausted, the
// fitness variance converges, or ctx is cancelled. Cancellation is
// honored only at generation boundaries so a generation's evaluation
// stays atomic; the partial report is always returned.
func (s *GeneticSearch) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	var deadline time.Time
	if s.config.MaxDuration > 0 {
		deadline = start.Add(s.config.MaxDuration)
	}

	s.initialize()
	s.logf("starting run %s: %d genomes on %d islands", s.runID, s.config.PopulationSize, s.config.NumIslands)

	reason := StopMaxGenerations
	generation := 0

loop:
	for generation = 1; ; generation++ {
		if ctx.Err() != nil {
			reason = StopCancelled
			generation--
			break loop
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			reason = StopMaxDuration
			generation--
			break loop
		}

		evaluated, evals := s.evaluateGeneration(ctx)
		s.evaluations += evaluated

		combined := s.combined()
		s.learner.Observe(combined)
		avg := averageFitness(combined)
		rate := s.learner.AdaptRate(avg)
		s.trackBest(combined, evals)
		s.record(generation, evaluated, avg, rate)

		if s.storage != nil && generation%s.config.CheckpointInterval == 0 {
			s.checkpoint(generation)
		}

		if s.converged(avg) {
			reason = StopConverged
			break loop
		}
		if generation >= s.config.MaxGenerations {
			reason = StopMaxGenerations
			break loop
		}

		for _, island := range s.islands {
			s.breed(island, generation+1, rate)
		}
		if generation%s.config.MigrationInterval == 0 {
			s.migrate()
		}
		for _, island := range s.islands {
			if injected := s.inject(island, generation+1); injected > 0 {
				s.logf("island %d: injected %d random genomes (diversity %.2f)",
					island.Index, injected, island.DiversityRatio())
			}
		}
	}

	if s.storage != nil && generation > 0 && generation != s.lastCheckpoint {
		s.checkpoint(generation)
	}

	report := &Report{
		RunID:       s.runID,
		Best:        s.best,
		Leaderboard: s.leaderboard(),
		Insights:    s.learner.Insights(),
		Trace:       s.trace,
		Generations: generation,
		Evaluations: s.evaluations,
		Elapsed:     time.Since(start),
		StopReason:  reason,
	}
	if s.bestEval != nil {
		report.BestResult = s.bestEval.Result
	}

	s.logf("run %s finished: %s after %d generations, %d evaluations",
		s.runID, reason, report.Generations, report.Evaluations)
	return report, nil
}

// initialize seeds every island with random genomes.
func (s *GeneticSearch) initialize() {
	s.islands = make([]*Island, s.config.NumIslands)
	for i := range s.islands {
		size := s.config.IslandSize(i)
		population := make([]*core.Genome, size)
		for j := range population {
			g := s.operator.Generate()
			g.Generation = 1
			g.Island = i
			population[j] = g
		}
		s.islands[i] = &Island{Index: i, Population: population}
	}
}

// evaluateGeneration scores every unevaluated genome and returns the
// count plus each genome's full evaluation keyed by ID. Within one
// island genomes are chunked into batches; each batch runs on a
// bounded pool and batches execute sequentially, islands sequentially,
// so population containers are never touched by two writers.
func (s *GeneticSearch) evaluateGeneration(ctx context.Context) (int, map[string]*Evaluation) {
	evaluated := 0
	evals := make(map[string]*Evaluation)
	for _, island := range s.islands {
		pending := island.Unevaluated()
		for _, batch := range lo.Chunk(pending, s.config.BatchSize) {
			evaluated += s.evaluateBatch(ctx, batch, evals)
		}
	}
	return evaluated, evals
}

// evaluateBatch runs one batch on at most Parallelism goroutines and
// waits for all of them. A failed or panicking evaluation marks its
// genome with the failure sentinel and never aborts the run.
func (s *GeneticSearch) evaluateBatch(ctx context.Context, batch []*core.Genome, evals map[string]*Evaluation) int {
	var (
		mutex     sync.Mutex
		wg        sync.WaitGroup
		done      int
		semaphore = make(chan struct{}, s.config.Parallelism)
	)

	for _, g := range batch {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(g *core.Genome) {
			defer wg.Done()
			defer func() { <-semaphore }()

			eval, err := s.safeEvaluate(ctx, g)
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				// Genome stays unevaluated; the generation boundary
				// will stop the run.
				return
			case err != nil:
				s.logf("genome %s failed evaluation: %v", g.ID, err)
				s.markFailed(g)
			default:
				g.Fitness = eval.Verdict.Score
				g.Evaluated = true
				g.Metrics = eval.Result.GenomeMetrics()
				g.Verdict = eval.Verdict.Category
				g.RegimeLabel = eval.Regime
			}

			mutex.Lock()
			if eval != nil {
				evals[g.ID] = eval
			}
			done++
			mutex.Unlock()
		}(g)
	}

	wg.Wait()
	return done
}

// safeEvaluate shields the run from a panicking simulation.
func (s *GeneticSearch) safeEvaluate(ctx context.Context, g *core.Genome) (eval *Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			eval, err = nil, fmt.Errorf("evaluation panic: %v", r)
		}
	}()
	return s.evaluator.Evaluate(ctx, g)
}

// markFailed assigns the sentinel so the genome loses every selection
// it enters but the run continues.
func (s *GeneticSearch) markFailed(g *core.Genome) {
	g.Fitness = core.EvalFailedFitness
	g.Evaluated = true
	g.Metrics = core.GenomeMetrics{}
	g.Verdict = core.VerdictPoor
}

// trackBest promotes the fittest trustworthy genome seen so far, and
// keeps its full evaluation for the final report. Suspicious verdicts
// keep their fitness for selection but are barred from the reported
// best. Any new best was necessarily evaluated this generation, so its
// evaluation is present in evals.
func (s *GeneticSearch) trackBest(population []*core.Genome, evals map[string]*Evaluation) {
	for _, g := range population {
		if !g.Evaluated || !g.Verdict.Trustworthy() || g.Fitness <= core.EvalFailedFitness {
			continue
		}
		if s.best == nil || g.Fitness > s.best.Fitness {
			s.best = g.Clone()
			if eval, ok := evals[g.ID]; ok {
				s.bestEval = eval
			}
		}
	}
}

// breed rolls one island into the next generation: elites survive
// unchanged, the rest of the slots are filled by tournament-selected
// parents through crossover or direct reproduction, then mutation.
func (s *GeneticSearch) breed(island *Island, nextGen int, rate float64) {
	island.SortByFitness()

	size := len(island.Population)
	next := make([]*core.Genome, 0, size)

	elites := s.config.ElitePerIsland()
	if elites > size {
		elites = size
	}
	next = append(next, island.Population[:elites]...)

	for len(next) < size {
		var child *core.Genome
		if s.rng.Float64() < s.config.CrossoverRate {
			a := s.operator.Tournament(island.Population, s.config.TournamentSize)
			b := s.operator.Tournament(island.Population, s.config.TournamentSize)
			child = s.operator.Crossover(a, b)
		} else {
			child = s.operator.Reproduce(s.operator.Tournament(island.Population, s.config.TournamentSize))
		}
		s.operator.Mutate(child, rate, s.learner)
		child.Generation = nextGen
		child.Island = island.Index
		next = append(next, child)
	}

	island.Population = next
}

// migrate runs one ring exchange: every island sends copies of its
// top MigrationCount genomes to the next island, and each receiver
// drops its worst MigrationCount to keep sizes constant. All emigrants
// are picked before any island is modified so the exchange is
// simultaneous.
func (s *GeneticSearch) migrate() {
	n := len(s.islands)
	if n < 2 || s.config.MigrationCount == 0 {
		return
	}

	emigrants := make([][]*core.Genome, n)
	for i, island := range s.islands {
		island.SortByFitness()
		count := s.config.MigrationCount
		if count >= len(island.Population) {
			count = len(island.Population) - 1
		}
		for _, g := range island.Population[:count] {
			emigrants[i] = append(emigrants[i], g.Clone())
		}
	}

	for i, island := range s.islands {
		arriving := emigrants[(i-1+n)%n]
		if len(arriving) == 0 {
			continue
		}
		island.Population = island.Population[:len(island.Population)-len(arriving)]
		for _, migrant := range arriving {
			migrant.Island = island.Index
			island.Population = append(island.Population, migrant)
		}
	}

	s.logf("migration: %d genomes exchanged on the ring", s.config.MigrationCount*n)
}

// inject refreshes a collapsed island: when the unique-genome fraction
// drops below the threshold, the worst performers are replaced with
// fresh random genomes, one per duplicate. Returns how many were
// injected.
func (s *GeneticSearch) inject(island *Island, gen int) int {
	if island.DiversityRatio() >= s.config.DiversityThreshold {
		return 0
	}

	unique := lo.UniqBy(island.Population, func(g *core.Genome) string {
		return g.Fingerprint()
	})
	count := len(island.Population) - len(unique)
	if count == 0 {
		return 0
	}

	island.SortByFitness()
	for i := len(island.Population) - count; i < len(island.Population); i++ {
		g := s.operator.Generate()
		g.Generation = gen
		g.Island = island.Index
		island.Population[i] = g
	}
	return count
}

// converged feeds the rolling average-fitness window and reports
// whether its variance has stayed below the threshold long enough.
func (s *GeneticSearch) converged(avg float64) bool {
	s.window = append(s.window, avg)
	if len(s.window) > s.config.ConvergenceWindow {
		s.window = s.window[1:]
	}
	if len(s.window) < s.config.ConvergenceWindow {
		return false
	}

	if stat.Variance(s.window, nil) < s.config.ConvergenceVariance {
		s.calm++
	} else {
		s.calm = 0
	}
	return s.calm >= s.config.ConvergencePatience
}

// record appends the generation's trace line and logs it.
func (s *GeneticSearch) record(generation, evaluated int, avg, rate float64) {
	best := 0.0
	if g := s.generationBest(); g != nil {
		best = g.Fitness
	}
	diversity := s.diversity()

	tr := GenerationTrace{
		Generation:   generation,
		Evaluations:  evaluated,
		BestFitness:  best,
		AvgFitness:   avg,
		Diversity:    diversity,
		MutationRate: rate,
	}
	s.trace = append(s.trace, tr)
	if s.config.Progress != nil {
		s.config.Progress(tr)
	}

	if s.config.Logger != nil {
		s.config.Logger.WithFields(map[string]any{
			"generation":    generation,
			"evaluations":   evaluated,
			"best_fitness":  fmt.Sprintf("%.4f", best),
			"avg_fitness":   fmt.Sprintf("%.4f", avg),
			"diversity":     fmt.Sprintf("%.2f", diversity),
			"mutation_rate": fmt.Sprintf("%.3f", rate),
		}).Info("generation complete")
	}
}

// generationBest returns the fittest evaluated genome across all
// islands, suspicious or not.
func (s *GeneticSearch) generationBest() *core.Genome {
	var best *core.Genome
	for _, island := range s.islands {
		if g := island.Best(); g != nil && (best == nil || g.Fitness > best.Fitness) {
			best = g
		}
	}
	return best
}

// diversity averages the unique-genome ratio over islands.
func (s *GeneticSearch) diversity() float64 {
	if len(s.islands) == 0 {
		return 0
	}
	sum := 0.0
	for _, island := range s.islands {
		sum += island.DiversityRatio()
	}
	return sum / float64(len(s.islands))
}

// combined flattens all island populations into one slice.
func (s *GeneticSearch) combined() []*core.Genome {
	out := make([]*core.Genome, 0, s.config.PopulationSize)
	for _, island := range s.islands {
		out = append(out, island.Population...)
	}
	return out
}

// leaderboard returns clones of the global top-K evaluated genomes.
func (s *GeneticSearch) leaderboard() []*core.Genome {
	ranked := lo.Filter(s.combined(), func(g *core.Genome, _ int) bool {
		return g.Evaluated
	})
	board := &Island{Population: ranked}
	board.SortByFitness()

	k := s.config.TopK
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]*core.Genome, k)
	for i := 0; i < k; i++ {
		out[i] = ranked[i].Clone()
	}
	return out
}

// checkpoint saves the run's progress; failures are logged and
// swallowed so persistence problems never kill an optimization.
func (s *GeneticSearch) checkpoint(generation int) {
	s.lastCheckpoint = generation
	cp := &core.Checkpoint{
		RunID:        s.runID,
		Generation:   generation,
		Best:         s.best,
		Leaderboard:  s.leaderboard(),
		Insights:     s.learner.Insights(),
		MutationRate: s.learner.Rate(),
		SavedAt:      time.Now(),
	}
	if err := s.storage.SaveCheckpoint(cp); err != nil && s.config.Logger != nil {
		s.config.Logger.WithError(err).Warn("checkpoint save failed")
	}
}

func (s *GeneticSearch) logf(format string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Infof(format, args...)
	}
}

func averageFitness(population []*core.Genome) float64 {
	sum, n := 0.0, 0
	for _, g := range population {
		if g.Evaluated {
			sum += g.Fitness
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
