// Package genetic implements the operators that create and vary
// genomes: random generation, crossover, mutation and tournament
// selection. Every operator draws randomness from an injected source,
// so a seeded run reproduces the exact same lineage.
package genetic

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/quantforge/evorun/pkg/core"
)

const (
	// crossoverCopyA/B are the per-gene odds of inheriting a parent's
	// value unchanged; the remaining 30% blends both parents.
	crossoverCopyA = 0.35
	crossoverCopyB = 0.35

	// guidedShare is the sub-probability that a mutating gene jumps
	// toward a learning-engine suggestion instead of wandering.
	guidedShare = 0.30

	// gaussianSigmaPct sizes the random perturbation as a fraction of
	// the gene's range width.
	gaussianSigmaPct = 0.20
)

// Adviser supplies per-parameter guidance for mutation. Implemented by
// the learning engine; a nil Adviser disables guided jumps.
type Adviser interface {
	// Suggest returns the accumulated insight for a parameter, if any.
	Suggest(parameter string) (core.LearningInsight, bool)
}

// Operator applies genetic operators over one parameter space. It is
// owned by a single island loop and must not be shared across
// goroutines: the rand source is not safe for concurrent use.
type Operator struct {
	space *core.ParameterSpace
	rng   *rand.Rand
}

// NewOperator binds a parameter space to a random source.
func NewOperator(space *core.ParameterSpace, rng *rand.Rand) *Operator {
	return &Operator{space: space, rng: rng}
}

// Generate draws a fresh genome: each gene lands on a uniformly random
// step of its range, then the weight class is normalized to sum to 1.
func (o *Operator) Generate() *core.Genome {
	genes := make(map[string]float64, len(o.space.Ranges()))
	for _, r := range o.space.Ranges() {
		genes[r.Name] = r.ValueAt(o.rng.Intn(r.Steps() + 1))
	}
	o.space.NormalizeWeights(genes)
	o.snapWeights(genes)

	return core.NewGenome(genes)
}

// Crossover breeds one child from two parents. Per gene: 35% copy
// parent a, 35% copy parent b, 30% blend alpha*a + (1-alpha)*b with
// alpha uniform, snapped back onto the gene's legal steps. Weights are
// re-normalized afterward.
func (o *Operator) Crossover(a, b *core.Genome) *core.Genome {
	genes := make(map[string]float64, len(o.space.Ranges()))
	for _, r := range o.space.Ranges() {
		va, vb := a.Gene(r.Name), b.Gene(r.Name)

		var v float64
		switch roll := o.rng.Float64(); {
		case roll < crossoverCopyA:
			v = va
		case roll < crossoverCopyA+crossoverCopyB:
			v = vb
		default:
			alpha := o.rng.Float64()
			v = alpha*va + (1-alpha)*vb
		}
		genes[r.Name] = r.Snap(v)
	}
	o.space.NormalizeWeights(genes)
	o.snapWeights(genes)

	child := core.NewGenome(genes)
	child.ParentIDs = []string{a.ID, b.ID}
	return child
}

// Reproduce copies a parent into a new individual with its own
// identity. The evaluation state travels with the genes: identical
// genes under a deterministic simulator earn an identical score, so
// re-running the backtest would be wasted work.
func (o *Operator) Reproduce(parent *core.Genome) *core.Genome {
	child := parent.Clone()
	child.ID = uuid.NewString()
	child.ParentIDs = []string{parent.ID}
	child.MutationLog = nil
	return child
}

// Mutate perturbs each gene independently with probability rate. A
// mutating gene either jumps toward the adviser's suggested value
// (30% of the time, when an insight exists) or takes a Gaussian step
// with sigma at 20% of the range width. Changed genomes lose their
// evaluation state and record what moved in the mutation log.
func (o *Operator) Mutate(g *core.Genome, rate float64, adviser Adviser) {
	changed := false
	for _, r := range o.space.Ranges() {
		if o.rng.Float64() >= rate {
			continue
		}

		old := g.Genes[r.Name]
		v, how := o.perturb(r, old, adviser)
		if v == old {
			continue
		}

		g.Genes[r.Name] = v
		g.MutationLog = append(g.MutationLog,
			fmt.Sprintf("%s: %.4f -> %.4f (%s)", r.Name, old, v, how))
		changed = true
	}

	if changed {
		o.space.NormalizeWeights(g.Genes)
		o.snapWeights(g.Genes)
		g.Invalidate()
	}
}

// perturb computes a mutated value for one gene and names the path
// taken.
func (o *Operator) perturb(r core.ParameterRange, old float64, adviser Adviser) (float64, string) {
	if adviser != nil && o.rng.Float64() < guidedShare {
		if insight, ok := adviser.Suggest(r.Name); ok {
			// Jump more than halfway toward the value the top
			// performers cluster around.
			step := 0.5 + 0.5*o.rng.Float64()
			return r.Snap(old + (insight.TopMean-old)*step), "guided"
		}
	}

	sigma := gaussianSigmaPct * (r.Max - r.Min)
	return r.Snap(old + o.rng.NormFloat64()*sigma), "gauss"
}

// Tournament samples k genomes uniformly with replacement and returns
// the fittest. Unevaluated genomes can win only against other
// unevaluated ones; callers select from evaluated populations.
func (o *Operator) Tournament(population []*core.Genome, k int) *core.Genome {
	best := population[o.rng.Intn(len(population))]
	for i := 1; i < k; i++ {
		if c := population[o.rng.Intn(len(population))]; c.Fitness > best.Fitness {
			best = c
		}
	}
	return best
}

// snapWeights realigns the weight genes after normalization, which
// rounds to two decimals and can land between steps finer than 0.01.
// Ranges with step 0.01 are unchanged; coarser weight ranges snap to
// their own grid.
func (o *Operator) snapWeights(genes map[string]float64) {
	for _, name := range o.space.WeightNames() {
		r, ok := o.space.Range(name)
		if !ok {
			continue
		}
		if r.Step != 0.01 {
			genes[name] = r.Snap(genes[name])
		}
	}
}
