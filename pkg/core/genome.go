package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// EvalFailedFitness is the sentinel assigned when a genome's backtest
// panics, errors out, or produces too few trades to be meaningful.
// Large and negative so the genome loses every selection it enters.
const EvalFailedFitness = -1000.0

// GenomeMetrics carries the risk-adjusted measures derived from a
// genome's backtest.
type GenomeMetrics struct {
	TotalReturn  float64 `json:"total_return"`
	Sharpe       float64 `json:"sharpe"`
	Sortino      float64 `json:"sortino"`
	Calmar       float64 `json:"calmar"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	TradeCount   int     `json:"trade_count"`
}

// Genome is one strategy configuration under evolution: a fully
// populated gene map plus fitness, verdict and lineage. Fitness is
// meaningful only when Evaluated is true; a zero fitness on an
// evaluated genome is a legitimate score, never "not yet run".
type Genome struct {
	ID          string             `json:"id"`
	Genes       map[string]float64 `json:"genes"`
	Fitness     float64            `json:"fitness"`
	Evaluated   bool               `json:"evaluated"`
	Metrics     GenomeMetrics      `json:"metrics"`
	Verdict     VerdictCategory    `json:"verdict"`
	Generation  int                `json:"generation"`
	Island      int                `json:"island"`
	ParentIDs   []string           `json:"parent_ids,omitempty"`
	MutationLog []string           `json:"mutation_log,omitempty"`
	RegimeLabel string             `json:"regime_label,omitempty"`
}

// NewGenome wraps a fully populated gene map into a fresh, unevaluated
// genome with its own identity.
func NewGenome(genes map[string]float64) *Genome {
	return &Genome{
		ID:    uuid.NewString(),
		Genes: genes,
	}
}

// Clone returns a deep copy sharing nothing with the receiver. The
// copy keeps the same ID: it is the same individual, as when elites or
// migrants move between populations.
func (g *Genome) Clone() *Genome {
	genes := make(map[string]float64, len(g.Genes))
	for k, v := range g.Genes {
		genes[k] = v
	}

	clone := *g
	clone.Genes = genes
	clone.ParentIDs = append([]string(nil), g.ParentIDs...)
	clone.MutationLog = append([]string(nil), g.MutationLog...)
	return &clone
}

// Gene returns the named gene value. The gene map is default-filled at
// construction, so a missing name is a programmer error.
func (g *Genome) Gene(name string) float64 {
	v, ok := g.Genes[name]
	if !ok {
		panic(fmt.Sprintf("genome %s missing gene %s", g.ID, name))
	}
	return v
}

// IntGene returns the named gene as an integer period/count.
func (g *Genome) IntGene(name string) int {
	return int(g.Gene(name))
}

// Invalidate clears the evaluation state after an operator changed the
// genes.
func (g *Genome) Invalidate() {
	g.Fitness = 0
	g.Evaluated = false
	g.Metrics = GenomeMetrics{}
	g.Verdict = ""
	g.RegimeLabel = ""
}

// Fingerprint returns a stable string identifying the gene vector,
// used to measure population diversity. Equal gene maps produce equal
// fingerprints regardless of map iteration order.
func (g *Genome) Fingerprint() string {
	names := make([]string, 0, len(g.Genes))
	for name := range g.Genes {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('|')
		}
		fmt.Fprintf(&b, "%s=%.4f", name, g.Genes[name])
	}
	return b.String()
}
