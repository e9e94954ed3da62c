// Package learning accumulates cross-generation knowledge about which
// parameters separate strong genomes from weak ones, and adapts the
// mutation rate to the optimizer's recent progress. The engine is
// owned by the orchestration loop and is never touched during
// concurrent evaluation.
package learning

import (
	"math"
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/quantforge/evorun/pkg/core"
)

const (
	// signalThreshold is the minimum correlation magnitude worth
	// remembering as an insight.
	signalThreshold = 0.15

	// decileFraction sizes the top and bottom performance buckets.
	decileFraction = 0.10

	// fullSample is the bucket size at which an insight's confidence
	// saturates.
	fullSample = 20

	// rateWindow is how many recent generations the rate controller
	// averages improvement over.
	rateWindow = 5

	// maxRateMultiple caps the adaptive mutation rate at a multiple
	// of the base rate.
	maxRateMultiple = 3.0

	rateRaiseFactor = 1.25
	rateDecayFactor = 0.85
)

// Config tunes the rate controller.
type Config struct {
	// BaseMutationRate is the resting per-gene mutation probability.
	BaseMutationRate float64

	// StagnationThreshold is the mean per-generation fitness
	// improvement below which the population counts as stalled.
	StagnationThreshold float64

	// StrongThreshold is the improvement above which the raised rate
	// decays back toward base.
	StrongThreshold float64
}

// DefaultConfig returns the standard controller thresholds for a base
// mutation rate.
func DefaultConfig(baseRate float64) Config {
	return Config{
		BaseMutationRate:    baseRate,
		StagnationThreshold: 0.01,
		StrongThreshold:     0.10,
	}
}

// Engine derives per-parameter insights from evaluated populations and
// steers the mutation rate. It implements genetic.Adviser.
type Engine struct {
	config   Config
	insights map[string]core.LearningInsight

	rate         float64
	lastAvg      float64
	hasLast      bool
	improvements []float64
}

// NewEngine builds an engine with the given controller config.
func NewEngine(config Config) *Engine {
	return &Engine{
		config:   config,
		insights: make(map[string]core.LearningInsight),
		rate:     config.BaseMutationRate,
	}
}

// Observe updates the insight table from one evaluated population:
// genomes are split into top and bottom fitness deciles, and for each
// parameter the normalized separation (topAvg-bottomAvg)/overallAvg
// becomes an insight when it clears the threshold.
func (e *Engine) Observe(population []*core.Genome) {
	evaluated := lo.Filter(population, func(g *core.Genome, _ int) bool {
		return g.Evaluated
	})
	if len(evaluated) < 2 {
		return
	}

	ranked := make([]*core.Genome, len(evaluated))
	copy(ranked, evaluated)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})

	bucket := int(math.Round(float64(len(ranked)) * decileFraction))
	if bucket < 1 {
		bucket = 1
	}
	top := ranked[:bucket]
	bottom := ranked[len(ranked)-bucket:]

	for _, name := range geneNames(ranked[0]) {
		topAvg := geneMean(top, name)
		bottomAvg := geneMean(bottom, name)
		overallAvg := geneMean(ranked, name)
		if math.Abs(overallAvg) < 1e-9 {
			continue
		}

		signal := (topAvg - bottomAvg) / overallAvg
		if math.Abs(signal) <= signalThreshold {
			continue
		}

		sample := len(top) + len(bottom)
		e.insights[name] = core.LearningInsight{
			Parameter:  name,
			Signal:     signal,
			TopMean:    topAvg,
			SampleSize: sample,
			Confidence: confidence(signal, sample),
		}
	}
}

// Suggest returns the stored insight for a parameter. Implements
// genetic.Adviser for guided mutation.
func (e *Engine) Suggest(parameter string) (core.LearningInsight, bool) {
	insight, ok := e.insights[parameter]
	return insight, ok
}

// Insights lists the accumulated insights, strongest signal first.
func (e *Engine) Insights() []core.LearningInsight {
	out := lo.Values(e.insights)
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Signal) > math.Abs(out[j].Signal)
	})
	return out
}

// AdaptRate feeds this generation's average fitness into the rate
// controller and returns the mutation rate to use next. Stalled
// improvement raises the rate up to three times base; strong
// improvement decays it back; everything in between holds.
func (e *Engine) AdaptRate(avgFitness float64) float64 {
	if !e.hasLast {
		e.lastAvg = avgFitness
		e.hasLast = true
		return e.rate
	}

	e.improvements = append(e.improvements, avgFitness-e.lastAvg)
	if len(e.improvements) > rateWindow {
		e.improvements = e.improvements[1:]
	}
	e.lastAvg = avgFitness

	switch mean := stat.Mean(e.improvements, nil); {
	case mean < e.config.StagnationThreshold:
		e.rate = math.Min(e.rate*rateRaiseFactor, e.config.BaseMutationRate*maxRateMultiple)
	case mean > e.config.StrongThreshold:
		e.rate = math.Max(e.config.BaseMutationRate, e.rate*rateDecayFactor)
	}
	return e.rate
}

// Rate returns the current mutation rate without feeding the
// controller.
func (e *Engine) Rate() float64 { return e.rate }

// confidence grows with both signal strength and bucket size,
// saturating at 1.
func confidence(signal float64, sample int) float64 {
	strength := math.Min(1, math.Abs(signal))
	coverage := math.Min(1, float64(sample)/fullSample)
	return strength * coverage
}

func geneNames(g *core.Genome) []string {
	names := make([]string, 0, len(g.Genes))
	for name := range g.Genes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func geneMean(genomes []*core.Genome, name string) float64 {
	values := make([]float64, len(genomes))
	for i, g := range genomes {
		values[i] = g.Genes[name]
	}
	return stat.Mean(values, nil)
}
