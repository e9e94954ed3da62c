package core

import (
	"fmt"
	"math"
)

// stepEpsilon tolerates float drift when checking step alignment.
const stepEpsilon = 1e-6

// ParameterRange defines the legal, steppable domain of one gene.
// Weight marks membership in the weight class, whose genes are
// normalized to sum to 1.0 after every genetic operator.
type ParameterRange struct {
	Name   string  `json:"name" yaml:"name"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Step   float64 `json:"step" yaml:"step"`
	IsInt  bool    `json:"is_int" yaml:"is_int"`
	Weight bool    `json:"weight" yaml:"weight"`
}

// Validate checks the range invariants.
func (r ParameterRange) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRange)
	}
	if r.Step <= 0 {
		return fmt.Errorf("%w: %s step must be positive, got %v", ErrInvalidRange, r.Name, r.Step)
	}
	if r.Min > r.Max {
		return fmt.Errorf("%w: %s min %v above max %v", ErrInvalidRange, r.Name, r.Min, r.Max)
	}
	if r.IsInt && r.Step != math.Trunc(r.Step) {
		return fmt.Errorf("%w: %s integer range with fractional step %v", ErrInvalidRange, r.Name, r.Step)
	}
	return nil
}

// Steps returns the number of legal step indices, i.e. the largest i
// such that min + i*step <= max.
func (r ParameterRange) Steps() int {
	return int(math.Floor((r.Max-r.Min)/r.Step + stepEpsilon))
}

// ValueAt maps a step index to its gene value.
func (r ParameterRange) ValueAt(idx int) float64 {
	v := r.Min + float64(idx)*r.Step
	if r.IsInt {
		return math.Round(v)
	}
	// Quantize away the float error accumulated by idx*step.
	return snapDecimal(v, r.Step)
}

// Snap clamps v into [Min, Max] and aligns it to the nearest step.
func (r ParameterRange) Snap(v float64) float64 {
	if v < r.Min {
		v = r.Min
	}
	if v > r.Max {
		v = r.Max
	}
	idx := math.Round((v - r.Min) / r.Step)
	if max := float64(r.Steps()); idx > max {
		idx = max
	}
	return r.ValueAt(int(idx))
}

// Contains reports whether v is inside the range and step-aligned.
func (r ParameterRange) Contains(v float64) bool {
	if v < r.Min-stepEpsilon || v > r.Max+stepEpsilon {
		return false
	}
	steps := (v - r.Min) / r.Step
	return math.Abs(steps-math.Round(steps)) < stepEpsilon*10
}

// snapDecimal rounds v to the decimal precision implied by step,
// so 0.1+0.2 style drift never leaks into gene values.
func snapDecimal(v, step float64) float64 {
	places := NumDecPlaces(step)
	if places == 0 {
		return math.Round(v)
	}
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// ParameterSpace is the ordered collection of ranges a genome draws
// its genes from. Order is insertion order and is stable, which keeps
// every per-gene loop in the engine deterministic.
type ParameterSpace struct {
	ranges []ParameterRange
	index  map[string]int
}

// NewParameterSpace validates and assembles a space from ranges.
func NewParameterSpace(ranges ...ParameterRange) (*ParameterSpace, error) {
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%w: no parameter ranges", ErrInvalidConfig)
	}

	s := &ParameterSpace{
		ranges: make([]ParameterRange, 0, len(ranges)),
		index:  make(map[string]int, len(ranges)),
	}

	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.index[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter %s", ErrInvalidConfig, r.Name)
		}
		s.index[r.Name] = len(s.ranges)
		s.ranges = append(s.ranges, r)
	}

	return s, nil
}

// Ranges returns the ranges in declaration order.
func (s *ParameterSpace) Ranges() []ParameterRange {
	return s.ranges
}

// Range looks a range up by gene name.
func (s *ParameterSpace) Range(name string) (ParameterRange, bool) {
	i, ok := s.index[name]
	if !ok {
		return ParameterRange{}, false
	}
	return s.ranges[i], true
}

// Names returns the gene names in declaration order.
func (s *ParameterSpace) Names() []string {
	names := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		names[i] = r.Name
	}
	return names
}

// WeightNames returns the names of the weight-class genes in
// declaration order.
func (s *ParameterSpace) WeightNames() []string {
	var names []string
	for _, r := range s.ranges {
		if r.Weight {
			names = append(names, r.Name)
		}
	}
	return names
}

// NormalizeWeights rescales the weight-class genes proportionally so
// they sum to 1.0, rounding each to two decimals. The rounding residue
// lands on the largest weight so the sum stays inside the 0.01
// tolerance. All-zero weights become an equal split.
func (s *ParameterSpace) NormalizeWeights(genes map[string]float64) {
	names := s.WeightNames()
	if len(names) == 0 {
		return
	}

	var sum float64
	for _, n := range names {
		sum += genes[n]
	}

	if sum <= 0 {
		equal := math.Round(100.0/float64(len(names))) / 100
		for _, n := range names {
			genes[n] = equal
		}
		sum = equal * float64(len(names))
	} else {
		for _, n := range names {
			genes[n] = math.Round(genes[n]/sum*100) / 100
		}
		sum = 0
		for _, n := range names {
			sum += genes[n]
		}
	}

	// Assign the residue to the heaviest gene.
	largest := names[0]
	for _, n := range names[1:] {
		if genes[n] > genes[largest] {
			largest = n
		}
	}
	genes[largest] = math.Round((genes[largest]+1.0-sum)*100) / 100
}

// ValidateGenes checks that genes covers every range exactly, that all
// values are inside their ranges and step-aligned, and that the weight
// class sums to 1.0 within tolerance.
func (s *ParameterSpace) ValidateGenes(genes map[string]float64) error {
	if len(genes) != len(s.ranges) {
		return fmt.Errorf("%w: expected %d genes, got %d", ErrInvalidGene, len(s.ranges), len(genes))
	}

	var weightSum float64
	for _, r := range s.ranges {
		v, ok := genes[r.Name]
		if !ok {
			return fmt.Errorf("%w: missing gene %s", ErrInvalidGene, r.Name)
		}
		if !r.Contains(v) {
			return fmt.Errorf("%w: %s=%v outside [%v, %v] step %v",
				ErrInvalidGene, r.Name, v, r.Min, r.Max, r.Step)
		}
		if r.Weight {
			weightSum += v
		}
	}

	if len(s.WeightNames()) > 0 && math.Abs(weightSum-1.0) > 0.01+stepEpsilon {
		return fmt.Errorf("%w: weight genes sum to %v, want 1.0±0.01", ErrInvalidGene, weightSum)
	}

	return nil
}

// DefaultSpace returns the canonical gene table: the eight factor
// weights, the indicator periods feeding the signal generator, and the
// risk knobs consumed by the simulator.
func DefaultSpace() *ParameterSpace {
	s, err := NewParameterSpace(
		ParameterRange{Name: "technicalWeight", Min: 0, Max: 1, Step: 0.01, Weight: true},
		ParameterRange{Name: "momentumWeight", Min: 0, Max: 1, Step: 0.01, Weight: true},
		ParameterRange{Name: "volatilityWeight", Min: 0, Max: 1, Step: 0.01, Weight: true},
		ParameterRange{Name: "volumeWeight", Min: 0, Max: 1, Step: 0.01, Weight: true},
		ParameterRange{Name: "sentimentWeight", Min: 0, Max: 1, Step: 0.01, Weight: true},
		ParameterRange{Name: "patternWeight", Min: 0, Max: 1, Step: 0.01, Weight: true},
		ParameterRange{Name: "breadthWeight", Min: 0, Max: 1, Step: 0.01, Weight: true},
		ParameterRange{Name: "reversionWeight", Min: 0, Max: 1, Step: 0.01, Weight: true},

		ParameterRange{Name: "rsiPeriod", Min: 7, Max: 21, Step: 1, IsInt: true},
		ParameterRange{Name: "macdFast", Min: 8, Max: 15, Step: 1, IsInt: true},
		ParameterRange{Name: "macdSlow", Min: 20, Max: 30, Step: 1, IsInt: true},
		ParameterRange{Name: "macdSignal", Min: 5, Max: 12, Step: 1, IsInt: true},
		ParameterRange{Name: "smaShort", Min: 10, Max: 30, Step: 1, IsInt: true},
		ParameterRange{Name: "smaLong", Min: 30, Max: 60, Step: 5, IsInt: true},
		ParameterRange{Name: "atrPeriod", Min: 7, Max: 21, Step: 1, IsInt: true},
		ParameterRange{Name: "bollingerPeriod", Min: 10, Max: 30, Step: 1, IsInt: true},

		ParameterRange{Name: "buyThreshold", Min: 0.2, Max: 0.8, Step: 0.05},
		ParameterRange{Name: "confidenceMin", Min: 0.1, Max: 0.6, Step: 0.05},
		ParameterRange{Name: "stopLossPct", Min: 0.02, Max: 0.1, Step: 0.005},
		ParameterRange{Name: "takeProfitPct", Min: 0.04, Max: 0.25, Step: 0.005},
		ParameterRange{Name: "maxPositionPct", Min: 0.05, Max: 0.25, Step: 0.01},
		ParameterRange{Name: "maxExposurePct", Min: 0.5, Max: 1.0, Step: 0.05},
		ParameterRange{Name: "maxPositions", Min: 3, Max: 15, Step: 1, IsInt: true},
		ParameterRange{Name: "maxDailyLoss", Min: 0.02, Max: 0.08, Step: 0.005},
	)
	if err != nil {
		// The table above is static; failing to build it is a
		// programmer error.
		panic(err)
	}
	return s
}
