package signal

import (
	"math"

	"github.com/quantforge/evorun/pkg/indicator"
)

// factorThreshold is the magnitude a factor must clear before it
// counts toward sign agreement in the confidence estimate.
const factorThreshold = 0.15

// FactorNames lists the factors in the order they are computed. Each
// has a matching weight gene named "<factor>Weight".
var FactorNames = []string{
	"technical",
	"momentum",
	"volatility",
	"volume",
	"sentiment",
	"pattern",
	"breadth",
	"reversion",
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// value returns series[t] or the neutral 0 when the indicator is
// still warming up there.
func value(series []float64, t int) (float64, bool) {
	if t < 0 || t >= len(series) || !indicator.Defined(series[t]) {
		return 0, false
	}
	return series[t], true
}

// technicalFactor blends RSI positioning with MACD histogram thrust.
// Oversold RSI and a positive histogram both argue for entry.
func (p *Prepared) technicalFactor(t int) float64 {
	rsi, rsiOK := value(p.rsi, t)
	hist, histOK := value(p.macdHist, t)

	var score float64
	if rsiOK {
		score += 0.6 * clamp((50-rsi)/50)
	}
	if histOK && p.closes[t] != 0 {
		score += 0.4 * clamp(hist/p.closes[t]*50)
	}
	return clamp(score)
}

// momentumFactor mixes rate-of-change over three horizons, shortest
// weighted heaviest.
func (p *Prepared) momentumFactor(t int) float64 {
	var score float64
	for _, h := range []struct {
		lookback int
		weight   float64
	}{{5, 1.0}, {20, 0.5}, {60, 0.25}} {
		if t < h.lookback || p.closes[t-h.lookback] == 0 {
			continue
		}
		roc := p.closes[t]/p.closes[t-h.lookback] - 1
		score += roc * h.weight
	}
	return clamp(score * 5)
}

// volatilityFactor prefers calm tape: an ATR above 2% of price or a
// Bollinger channel wider than 8% both push the factor negative.
func (p *Prepared) volatilityFactor(t int) float64 {
	atr, ok := value(p.atr, t)
	if !ok || p.closes[t] == 0 {
		return 0
	}
	score := clamp(1 - atr/p.closes[t]/0.02)

	up, upOK := value(p.bbUp, t)
	low, lowOK := value(p.bbLow, t)
	if upOK && lowOK {
		width := (up - low) / p.closes[t]
		score = (score + clamp(1-width/0.08)) / 2
	}
	return clamp(score)
}

// volumeFactor rewards volume running above its 20-day average.
func (p *Prepared) volumeFactor(t int) float64 {
	avg, ok := value(p.volSMA, t)
	if !ok || avg == 0 {
		return 0
	}
	return clamp(p.volumes[t]/avg - 1)
}

// sentimentFactor proxies crowd mood by where the close sits inside
// the trailing 20-day range.
func (p *Prepared) sentimentFactor(t int) float64 {
	if t < sentimentLookback-1 {
		return 0
	}
	lowest := p.lows[t]
	highest := p.highs[t]
	for j := t - sentimentLookback + 1; j <= t; j++ {
		lowest = math.Min(lowest, p.lows[j])
		highest = math.Max(highest, p.highs[j])
	}
	if highest == lowest {
		return 0
	}
	loc := (p.closes[t] - lowest) / (highest - lowest)
	return clamp(2*loc - 1)
}

// patternFactor scores the balance of up and down closes across the
// last three sessions.
func (p *Prepared) patternFactor(t int) float64 {
	if t < 3 {
		return 0
	}
	var ups, downs int
	for j := t - 2; j <= t; j++ {
		switch {
		case p.closes[j] > p.closes[j-1]:
			ups++
		case p.closes[j] < p.closes[j-1]:
			downs++
		}
	}
	return clamp(float64(ups-downs) / 3)
}

// breadthFactor measures the fraction of recent closes holding above
// their short and long moving averages. Full marks need both trends
// to agree.
func (p *Prepared) breadthFactor(t int) float64 {
	if t < breadthLookback-1 {
		return 0
	}
	var above, counted int
	for j := t - breadthLookback + 1; j <= t; j++ {
		for _, sma := range [][]float64{p.smaShort, p.smaLong} {
			v, ok := value(sma, j)
			if !ok {
				continue
			}
			counted++
			if p.closes[j] > v {
				above++
			}
		}
	}
	if counted == 0 {
		return 0
	}
	return clamp(2*float64(above)/float64(counted) - 1)
}

// reversionFactor is the inverted Bollinger z-score: stretched below
// the middle band argues for a snap back up.
func (p *Prepared) reversionFactor(t int) float64 {
	mid, midOK := value(p.bbMid, t)
	up, upOK := value(p.bbUp, t)
	if !midOK || !upOK {
		return 0
	}
	sd := (up - mid) / bollingerMult
	if sd == 0 {
		return 0
	}
	z := (p.closes[t] - mid) / sd
	return clamp(-z / 2)
}
