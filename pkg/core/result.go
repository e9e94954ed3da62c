package core

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopped     ExitReason = "STOPPED"
	ExitTargeted    ExitReason = "TARGETED"
	ExitForceClosed ExitReason = "FORCE_CLOSED"
)

// IsValid reports whether the reason is one of the known values.
func (r ExitReason) IsValid() bool {
	switch r {
	case ExitStopped, ExitTargeted, ExitForceClosed:
		return true
	}
	return false
}

func (r ExitReason) String() string { return string(r) }

// Trade is one completed round trip. Immutable once recorded.
type Trade struct {
	Symbol     string     `json:"symbol"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Shares     int        `json:"shares"`
	EntryIndex int        `json:"entry_index"`
	ExitIndex  int        `json:"exit_index"`
	PnL        float64    `json:"pnl"`
	Reason     ExitReason `json:"reason"`
}

// Win reports whether the trade closed at a profit.
func (t Trade) Win() bool { return t.PnL > 0 }

// Position is an open holding. At most one position per symbol exists
// at a time; the simulator owns and mutates it.
type Position struct {
	Symbol     string
	EntryPrice float64
	Shares     int
	EntryIndex int
	StopLoss   float64
	TakeProfit float64
}

// Exposure returns the position's value marked at the given price.
func (p Position) Exposure(price float64) float64 {
	return float64(p.Shares) * price
}

// RegimeStats aggregates daily performance under one market regime.
type RegimeStats struct {
	TotalReturn float64 `json:"total_return"`
	Sharpe      float64 `json:"sharpe"`
	Days        int     `json:"days"`
}

// BacktestResult is everything one simulated run produced. Read-only
// once returned by the simulator.
type BacktestResult struct {
	EquityCurve       Series[float64]        `json:"equity_curve"`
	DailyReturns      []float64              `json:"daily_returns"`
	Trades            []Trade                `json:"trades"`
	TotalReturn       float64                `json:"total_return"`
	Sharpe            float64                `json:"sharpe"`
	Sortino           float64                `json:"sortino"`
	Calmar            float64                `json:"calmar"`
	MaxDrawdown       float64                `json:"max_drawdown"`
	WinRate           float64                `json:"win_rate"`
	ProfitFactor      float64                `json:"profit_factor"`
	RegimePerformance map[string]RegimeStats `json:"regime_performance,omitempty"`
}

// GenomeMetrics projects the result into the fields a genome carries.
func (r *BacktestResult) GenomeMetrics() GenomeMetrics {
	return GenomeMetrics{
		TotalReturn:  r.TotalReturn,
		Sharpe:       r.Sharpe,
		Sortino:      r.Sortino,
		Calmar:       r.Calmar,
		MaxDrawdown:  r.MaxDrawdown,
		WinRate:      r.WinRate,
		ProfitFactor: r.ProfitFactor,
		TradeCount:   len(r.Trades),
	}
}
