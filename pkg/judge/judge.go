// Package judge scores backtest results and vetoes the statistically
// implausible ones. The judge's composite score is the fitness the
// genetic search ranks by, so selection pressure and reported quality
// can never disagree.
package judge

import (
	"math"

	"github.com/quantforge/evorun/pkg/core"
)

const (
	// Overfitting signatures: results this good are assumed to have
	// memorized the data.
	suspiciousSharpe  = 4.0
	suspiciousWinRate = 0.85
	suspiciousTrades  = 100

	// Penalty gates.
	drawdownLimit = 0.25
	thinLedger    = 50
	weakWinRate   = 0.35

	drawdownPenalty = 0.15
	thinPenalty     = 0.10
	winRatePenalty  = 0.10

	// Category thresholds on the composite score.
	excellentScore  = 0.75
	goodScore       = 0.55
	acceptableScore = 0.35

	excellentSharpeFloor = 1.5
	goodWinRateFloor     = 0.45
)

// Weights distributes the composite score across the metrics. They
// should sum to 1 so the pre-penalty score stays in [0, 1].
type Weights struct {
	Sharpe       float64
	Sortino      float64
	Calmar       float64
	WinRate      float64
	Return       float64
	Drawdown     float64
	TradeCount   float64
	ProfitFactor float64
}

// DefaultWeights favors risk-adjusted return over raw profit.
func DefaultWeights() Weights {
	return Weights{
		Sharpe:       0.25,
		Sortino:      0.10,
		Calmar:       0.10,
		WinRate:      0.15,
		Return:       0.15,
		Drawdown:     0.10,
		TradeCount:   0.05,
		ProfitFactor: 0.10,
	}
}

// Judge converts backtest results into verdicts.
type Judge struct {
	weights Weights
}

func New(weights Weights) *Judge {
	return &Judge{weights: weights}
}

// Score derives the composite score, applies the penalties, and
// classifies the result. The returned verdict's Score doubles as the
// genome's fitness.
func (j *Judge) Score(result *core.BacktestResult) core.JudgeVerdict {
	trades := len(result.Trades)

	score := j.weights.Sharpe*unit(result.Sharpe/3) +
		j.weights.Sortino*unit(result.Sortino/4) +
		j.weights.Calmar*unit(result.Calmar/3) +
		j.weights.WinRate*unit(result.WinRate) +
		j.weights.Return*unit(result.TotalReturn/0.5) +
		j.weights.Drawdown*unit(1-result.MaxDrawdown/drawdownLimit) +
		j.weights.TradeCount*unit(float64(trades)/100) +
		j.weights.ProfitFactor*profitFactorScore(result.ProfitFactor)

	var warnings []string
	if result.MaxDrawdown > drawdownLimit {
		score -= drawdownPenalty
		warnings = append(warnings, "max drawdown above 25%")
	}
	if trades < thinLedger {
		score -= thinPenalty
		warnings = append(warnings, "fewer than 50 trades")
	}
	if result.WinRate < weakWinRate {
		score -= winRatePenalty
		warnings = append(warnings, "win rate below 35%")
	}

	suspicious := false
	if result.Sharpe > suspiciousSharpe {
		suspicious = true
		warnings = append(warnings, "sharpe above 4 suggests overfitting")
	}
	if result.WinRate > suspiciousWinRate && trades > suspiciousTrades {
		suspicious = true
		warnings = append(warnings, "win rate above 85% over 100+ trades suggests overfitting")
	}

	return core.JudgeVerdict{
		Score:    score,
		Category: categorize(score, result, suspicious),
		Warnings: warnings,
	}
}

func categorize(score float64, result *core.BacktestResult, suspicious bool) core.VerdictCategory {
	switch {
	case suspicious:
		return core.VerdictSuspicious
	case score >= excellentScore && result.Sharpe > excellentSharpeFloor:
		return core.VerdictExcellent
	case score >= goodScore && result.WinRate > goodWinRateFloor:
		return core.VerdictGood
	case score >= acceptableScore:
		return core.VerdictAcceptable
	default:
		return core.VerdictPoor
	}
}

// unit clamps a normalized contribution into [0, 1].
func unit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// profitFactorScore maps the ratio onto [0, 1]: break-even (1.0)
// scores zero, 3.0 and above score full marks. The +Inf sentinel of a
// loss-free ledger clamps to 1.
func profitFactorScore(pf float64) float64 {
	return unit((pf - 1) / 2)
}
