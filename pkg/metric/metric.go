// Package metric derives risk-adjusted performance measures from an
// equity curve and trade ledger. Everything here is pure; callers own
// the slices they pass in.
package metric

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/quantforge/evorun/pkg/core"
)

// TradingDaysPerYear annualizes daily return statistics.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of the values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// StdDev calculates the sample standard deviation of the values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// TotalReturn is the fractional gain of final over initial capital.
func TotalReturn(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial
}

// MaxDrawdown returns the largest peak-to-trough decline of the equity
// curve as a fraction of the peak. Recomputing over a fixed curve is
// idempotent, and appending points never decreases the result.
func MaxDrawdown(equity []float64) float64 {
	var maxDD float64
	peak := math.Inf(-1)

	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Sharpe annualizes mean daily return over daily volatility. Zero
// volatility yields zero rather than a division blowup.
func Sharpe(dailyReturns []float64) float64 {
	sd := StdDev(dailyReturns)
	if sd == 0 {
		return 0
	}
	return Mean(dailyReturns) * TradingDaysPerYear / (sd * math.Sqrt(TradingDaysPerYear))
}

// Sortino is Sharpe with the denominator built from negative daily
// returns only, so upside volatility goes unpunished.
func Sortino(dailyReturns []float64) float64 {
	var downside []float64
	for _, r := range dailyReturns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	sd := StdDev(downside)
	if sd == 0 {
		return 0
	}
	return Mean(dailyReturns) * TradingDaysPerYear / (sd * math.Sqrt(TradingDaysPerYear))
}

// CAGR converts a total return over numDays trading days into a
// compound annual growth rate.
func CAGR(totalReturn float64, numDays int) float64 {
	if numDays == 0 || totalReturn <= -1 {
		return 0
	}
	return math.Pow(1+totalReturn, TradingDaysPerYear/float64(numDays)) - 1
}

// Calmar divides CAGR by max drawdown, zero when there was none.
func Calmar(totalReturn, maxDrawdown float64, numDays int) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return CAGR(totalReturn, numDays) / maxDrawdown
}

// WinRate is the fraction of trades that closed at a profit.
func WinRate(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	wins := 0
	for _, pnl := range pnls {
		if pnl > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(pnls))
}

// ProfitFactor divides gross profit by gross loss. A loss-free ledger
// with profits is reported as +Inf; an empty or profit-free one as 0.
func ProfitFactor(pnls []float64) float64 {
	var grossProfit, grossLoss float64
	for _, pnl := range pnls {
		if pnl >= 0 {
			grossProfit += pnl
		} else {
			grossLoss -= pnl
		}
	}

	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// Payoff calculates the ratio of average win to average loss.
func Payoff(pnls []float64) float64 {
	var wins, losses []float64
	for _, pnl := range pnls {
		if pnl >= 0 {
			wins = append(wins, pnl)
		} else {
			losses = append(losses, math.Abs(pnl))
		}
	}

	if len(losses) == 0 {
		return 10
	}

	avgLoss := stat.Mean(losses, nil)
	if avgLoss == 0 {
		return 10
	}
	return math.Abs(stat.Mean(wins, nil) / avgLoss)
}

// RegimePerformance partitions daily returns by their day's regime
// label and summarizes each bucket. labels must align with returns;
// days beyond the label slice count as unlabeled and are skipped.
func RegimePerformance(dailyReturns []float64, labels []string) map[string]core.RegimeStats {
	buckets := make(map[string][]float64)
	for i, r := range dailyReturns {
		if i >= len(labels) || labels[i] == "" {
			continue
		}
		buckets[labels[i]] = append(buckets[labels[i]], r)
	}

	out := make(map[string]core.RegimeStats, len(buckets))
	for label, returns := range buckets {
		var sum float64
		for _, r := range returns {
			sum += r
		}
		out[label] = core.RegimeStats{
			TotalReturn: sum,
			Sharpe:      Sharpe(returns),
			Days:        len(returns),
		}
	}
	return out
}
