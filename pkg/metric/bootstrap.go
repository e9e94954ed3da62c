package metric

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// BootstrapInterval is the resampled confidence interval of a statistic.
type BootstrapInterval struct {
	Lower  float64
	Upper  float64
	StdDev float64
	Mean   float64
}

// Bootstrap estimates the confidence interval of measure over values
// by resampling with replacement. confidence is the two-sided level,
// e.g. 0.95; samples is the number of resampled draws.
func Bootstrap(values []float64, measure func([]float64) float64, samples int, confidence float64) BootstrapInterval {
	if len(values) == 0 || samples <= 0 {
		return BootstrapInterval{}
	}

	data := resample(values, measure, samples)

	tail := 1 - confidence
	sort.Float64s(data)

	mean, stdDev := stat.MeanStdDev(data, nil)
	upper := stat.Quantile(1-tail/2, stat.LinInterp, data, nil)
	lower := stat.Quantile(tail/2, stat.LinInterp, data, nil)

	return BootstrapInterval{
		Lower:  lower,
		Upper:  upper,
		StdDev: stdDev,
		Mean:   mean,
	}
}

// resample draws bootstrap samples and applies measure to each.
func resample(values []float64, measure func([]float64) float64, samples int) []float64 {
	data := make([]float64, 0, samples)

	for i := 0; i < samples; i++ {
		draw := make([]float64, len(values))
		for j := range draw {
			draw[j] = lo.Sample(values)
		}
		data = append(data, measure(draw))
	}

	return data
}
