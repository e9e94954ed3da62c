// Package signal turns a genome's gene set and a symbol's bar history
// into a composite entry score with a confidence estimate.
package signal

import (
	"math"

	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/indicator"
)

const (
	// MinLookback is the minimum history before any signal fires.
	MinLookback = 60

	volumeSMAPeriod   = 20
	sentimentLookback = 20
	breadthLookback   = 20
	bollingerMult     = 2.0
)

// Signal is the generator's verdict for one symbol on one day.
type Signal struct {
	Score      float64
	Confidence float64
}

// Generator computes signals for one genome. It is pure and safe to
// share across goroutines once constructed.
type Generator struct {
	weights map[string]float64

	rsiPeriod       int
	macdFast        int
	macdSlow        int
	macdSignal      int
	smaShortPeriod  int
	smaLongPeriod   int
	atrPeriod       int
	bollingerPeriod int
}

// NewGenerator reads the indicator periods and factor weights out of a
// fully populated gene map.
func NewGenerator(g *core.Genome) *Generator {
	weights := make(map[string]float64, len(FactorNames))
	for _, name := range FactorNames {
		weights[name] = g.Gene(name + "Weight")
	}

	return &Generator{
		weights:         weights,
		rsiPeriod:       g.IntGene("rsiPeriod"),
		macdFast:        g.IntGene("macdFast"),
		macdSlow:        g.IntGene("macdSlow"),
		macdSignal:      g.IntGene("macdSignal"),
		smaShortPeriod:  g.IntGene("smaShort"),
		smaLongPeriod:   g.IntGene("smaLong"),
		atrPeriod:       g.IntGene("atrPeriod"),
		bollingerPeriod: g.IntGene("bollingerPeriod"),
	}
}

// Prepared holds the indicator series for one symbol, computed once so
// per-day signal reads are O(1) in the simulator's hot loop. Every
// indicator is causal: the value at index t depends only on bars up to
// t, so indexing the full series equals recomputing on the prefix.
type Prepared struct {
	gen *Generator

	closes  []float64
	highs   []float64
	lows    []float64
	volumes []float64

	rsi      []float64
	macdHist []float64
	smaShort []float64
	smaLong  []float64
	atr      []float64
	bbMid    []float64
	bbUp     []float64
	bbLow    []float64
	volSMA   []float64
}

// Prepare computes the per-symbol indicator series for this genome.
func (g *Generator) Prepare(bars []core.Bar) *Prepared {
	closes := core.Closes(bars)
	highs := core.Highs(bars)
	lows := core.Lows(bars)
	volumes := core.Volumes(bars)

	_, _, macdHist := indicator.MACD(closes, g.macdFast, g.macdSlow, g.macdSignal)
	bbMid, bbUp, bbLow := indicator.Bollinger(closes, g.bollingerPeriod, bollingerMult)

	return &Prepared{
		gen:      g,
		closes:   closes,
		highs:    highs,
		lows:     lows,
		volumes:  volumes,
		rsi:      indicator.RSI(closes, g.rsiPeriod),
		macdHist: macdHist,
		smaShort: indicator.SMA(closes, g.smaShortPeriod),
		smaLong:  indicator.SMA(closes, g.smaLongPeriod),
		atr:      indicator.ATR(highs, lows, closes, g.atrPeriod),
		bbMid:    bbMid,
		bbUp:     bbUp,
		bbLow:    bbLow,
		volSMA:   indicator.SMA(volumes, volumeSMAPeriod),
	}
}

// At evaluates the composite signal at bar index t. Histories shorter
// than MinLookback stay silent.
func (p *Prepared) At(t int) Signal {
	if t+1 < MinLookback || t >= len(p.closes) {
		return Signal{}
	}

	factors := map[string]float64{
		"technical":  p.technicalFactor(t),
		"momentum":   p.momentumFactor(t),
		"volatility": p.volatilityFactor(t),
		"volume":     p.volumeFactor(t),
		"sentiment":  p.sentimentFactor(t),
		"pattern":    p.patternFactor(t),
		"breadth":    p.breadthFactor(t),
		"reversion":  p.reversionFactor(t),
	}

	var score float64
	for _, name := range FactorNames {
		score += p.gen.weights[name] * factors[name]
	}

	return Signal{
		Score:      score,
		Confidence: confidence(score, factors),
	}
}

// confidence is the fraction of factors agreeing with the score's
// sign beyond the magnitude threshold, scaled by the score itself.
func confidence(score float64, factors map[string]float64) float64 {
	if score == 0 {
		return 0
	}

	agree := 0
	for _, f := range factors {
		if math.Abs(f) < factorThreshold {
			continue
		}
		if (f > 0) == (score > 0) {
			agree++
		}
	}

	return float64(agree) / float64(len(factors)) * math.Abs(score)
}
