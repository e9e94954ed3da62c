// Package regime classifies market conditions from a reference
// symbol's closes. Labels condition the performance metrics and tag
// genomes with the environment they were evaluated in.
package regime

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/quantforge/evorun/pkg/indicator"
)

// Label is a coarse market-condition classification.
type Label int

const (
	Unknown Label = iota
	StrongBull
	VolatileBull
	MildBull
	StrongBear
	VolatileBear
	MildBear
	HighVolatility
	Ranging
)

func (l Label) String() string {
	switch l {
	case StrongBull:
		return "strong_bull"
	case VolatileBull:
		return "volatile_bull"
	case MildBull:
		return "mild_bull"
	case StrongBear:
		return "strong_bear"
	case VolatileBear:
		return "volatile_bear"
	case MildBear:
		return "mild_bear"
	case HighVolatility:
		return "high_volatility"
	case Ranging:
		return "ranging"
	default:
		return "unknown"
	}
}

// DetectorConfig holds the classification thresholds.
type DetectorConfig struct {
	ShortPeriod      int     `yaml:"short_period"`       // Default: 20
	MediumPeriod     int     `yaml:"medium_period"`      // Default: 50
	VolPeriod        int     `yaml:"vol_period"`         // Default: 20
	HighVolThreshold float64 `yaml:"high_vol_threshold"` // Default: 0.30 annualized
	StrongTrendPct   float64 `yaml:"strong_trend_pct"`   // Default: 0.10 vs medium SMA
}

// DefaultDetectorConfig returns the standard thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ShortPeriod:      20,
		MediumPeriod:     50,
		VolPeriod:        20,
		HighVolThreshold: 0.30,
		StrongTrendPct:   0.10,
	}
}

// Detector classifies close-price histories into regime labels.
type Detector struct {
	config DetectorConfig
}

func NewDetector(config DetectorConfig) *Detector {
	return &Detector{config: config}
}

// Classify labels the trailing window ending at the last close.
func (d *Detector) Classify(closes []float64) Label {
	timeline := d.Timeline(closes)
	if len(timeline) == 0 {
		return Unknown
	}
	return timeline[len(timeline)-1]
}

// Timeline labels every index of the close history. Indices without
// enough trailing history carry Unknown. The result is computed once
// per run and shared read-only across all evaluations.
func (d *Detector) Timeline(closes []float64) []Label {
	labels := make([]Label, len(closes))
	if len(closes) == 0 {
		return labels
	}

	smaShort := indicator.SMA(closes, d.config.ShortPeriod)
	smaMedium := indicator.SMA(closes, d.config.MediumPeriod)

	returns := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns[i] = closes[i]/closes[i-1] - 1
		}
	}

	for i := range closes {
		if !indicator.Defined(smaMedium[i]) || i < d.config.VolPeriod {
			labels[i] = Unknown
			continue
		}

		window := returns[i-d.config.VolPeriod+1 : i+1]
		annualVol := stat.StdDev(window, nil) * math.Sqrt(252)

		labels[i] = classify(closes[i], smaShort[i], smaMedium[i], annualVol, d.config)
	}
	return labels
}

func classify(price, smaShort, smaMedium, annualVol float64, cfg DetectorConfig) Label {
	trendUp := price > smaShort && smaShort > smaMedium
	trendDown := price < smaShort && smaShort < smaMedium
	highVol := annualVol >= cfg.HighVolThreshold

	var strength float64
	if smaMedium != 0 {
		strength = (price - smaMedium) / smaMedium
	}

	switch {
	case trendUp && strength >= cfg.StrongTrendPct:
		return StrongBull
	case trendUp && highVol:
		return VolatileBull
	case trendUp:
		return MildBull
	case trendDown && strength <= -cfg.StrongTrendPct:
		return StrongBear
	case trendDown && highVol:
		return VolatileBear
	case trendDown:
		return MildBear
	case highVol:
		return HighVolatility
	default:
		return Ranging
	}
}

// Strings converts a timeline into the string labels the metrics
// engine partitions by.
func Strings(labels []Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.String()
	}
	return out
}
