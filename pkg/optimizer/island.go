package optimizer

import (
	"sort"

	"github.com/samber/lo"

	"github.com/quantforge/evorun/pkg/core"
)

// Island is one independent population in the ring. Islands evolve
// separately and only exchange genomes during migration.
type Island struct {
	Index      int
	Population []*core.Genome
}

// SortByFitness orders the population best-first. Unevaluated genomes
// sink below every evaluated one; the sort is stable so equal fitness
// keeps the existing order.
func (i *Island) SortByFitness() {
	sort.SliceStable(i.Population, func(a, b int) bool {
		ga, gb := i.Population[a], i.Population[b]
		if ga.Evaluated != gb.Evaluated {
			return ga.Evaluated
		}
		return ga.Fitness > gb.Fitness
	})
}

// AvgFitness returns the mean fitness over evaluated genomes, zero
// when none have been scored yet.
func (i *Island) AvgFitness() float64 {
	sum, n := 0.0, 0
	for _, g := range i.Population {
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

// DiversityRatio returns the fraction of unique gene vectors, 0 for an
// empty island. A ratio near zero means the island has collapsed onto
// a handful of genomes.
func (i *Island) DiversityRatio() float64 {
	if len(i.Population) == 0 {
		return 0
	}
	unique := lo.UniqBy(i.Population, func(g *core.Genome) string {
		return g.Fingerprint()
	})
	return float64(len(unique)) / float64(len(i.Population))
}

// Unevaluated returns the genomes still waiting for a backtest.
func (i *Island) Unevaluated() []*core.Genome {
	return lo.Filter(i.Population, func(g *core.Genome, _ int) bool {
		return !g.Evaluated
	})
}

// Best returns the fittest evaluated genome, nil when none exist.
func (i *Island) Best() *core.Genome {
	var best *core.Genome
	for _, g := range i.Population {
		if !g.Evaluated {
			continue
		}
		if best == nil || g.Fitness > best.Fitness {
			best = g
		}
	}
	return best
}
