// Package backtest replays daily bars through a genome's entry and
// exit rules and derives the risk-adjusted result the optimizer
// scores. The simulator is deterministic and pure: it reads a shared
// immutable market view and touches no global state, so any number of
// genomes can be simulated concurrently.
package backtest

import (
	"sort"
	"time"

	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/metric"
	"github.com/quantforge/evorun/pkg/signal"
)

// Market is the immutable data view a simulation reads. Implemented
// by feed.Snapshot.
type Market interface {
	// Symbols lists the universe in lexical order.
	Symbols() []string

	// Calendar returns the union of all trading days, ascending.
	Calendar() []time.Time

	// SeriesOf returns a symbol's full ordered bar history.
	SeriesOf(symbol string) []core.Bar

	// BarIndex maps a calendar day to the symbol's own series index,
	// or -1 when the symbol has no bar that day.
	BarIndex(symbol string, day int) int

	// RegimeLabels returns the per-calendar-day regime labels of the
	// reference symbol.
	RegimeLabels() []string
}

// Simulator runs genomes against one market view.
type Simulator struct {
	market         Market
	initialCapital float64
}

func NewSimulator(market Market, initialCapital float64) *Simulator {
	return &Simulator{market: market, initialCapital: initialCapital}
}

// candidate is one symbol passing the entry gate on a given day.
type candidate struct {
	symbol string
	score  float64
	price  float64
}

// Run simulates one genome over the whole calendar and returns its
// result. Runs with no tradable history produce a degenerate result
// with a flat curve and no trades rather than an error.
func (s *Simulator) Run(g *core.Genome) *core.BacktestResult {
	var (
		symbols  = s.market.Symbols()
		calendar = s.market.Calendar()

		buyThreshold   = g.Gene("buyThreshold")
		confidenceMin  = g.Gene("confidenceMin")
		stopLossPct    = g.Gene("stopLossPct")
		takeProfitPct  = g.Gene("takeProfitPct")
		maxPositionPct = g.Gene("maxPositionPct")
		maxExposurePct = g.Gene("maxExposurePct")
		maxPositions   = g.IntGene("maxPositions")
		maxDailyLoss   = g.Gene("maxDailyLoss")
	)

	gen := signal.NewGenerator(g)
	prepared := make(map[string]*signal.Prepared, len(symbols))
	for _, symbol := range symbols {
		prepared[symbol] = gen.Prepare(s.market.SeriesOf(symbol))
	}

	b := newBook(s.initialCapital)
	equityCurve := make(core.Series[float64], 0, len(calendar))
	dailyReturns := make([]float64, 0, len(calendar))

	prevEquity := s.initialCapital
	dayStartEquity := s.initialCapital
	var lastDate time.Time

	for day := range calendar {
		// Explicit calendar-day boundary for the loss breaker.
		date := calendar[day].Truncate(24 * time.Hour)
		if !date.Equal(lastDate) {
			dayStartEquity = prevEquity
			lastDate = date
		}

		// Refresh marks first so every price-dependent step below
		// sees today's closes.
		for _, symbol := range symbols {
			if idx := s.market.BarIndex(symbol, day); idx >= 0 {
				b.mark(symbol, s.market.SeriesOf(symbol)[idx].Close)
			}
		}

		// 1. Exit check: stops before targets, capital preservation
		// wins when both trigger intraday.
		for _, symbol := range symbols {
			pos, ok := b.positions[symbol]
			if !ok {
				continue
			}
			idx := s.market.BarIndex(symbol, day)
			if idx < 0 {
				continue
			}
			bar := s.market.SeriesOf(symbol)[idx]
			switch {
			case bar.Low <= pos.StopLoss:
				b.close(symbol, pos.StopLoss, day, core.ExitStopped)
			case bar.High >= pos.TakeProfit:
				b.close(symbol, pos.TakeProfit, day, core.ExitTargeted)
			}
		}

		// 2. Daily loss circuit breaker.
		skipEntries := false
		if pnl := b.equity(symbols) - dayStartEquity; pnl <= -dayStartEquity*maxDailyLoss {
			b.closeAll(symbols, day)
			skipEntries = true
		}

		// 3. Entry scan over symbols without positions.
		if !skipEntries && len(b.positions) < maxPositions {
			candidates := s.scan(symbols, prepared, day, buyThreshold, confidenceMin, b)

			for _, c := range candidates {
				if len(b.positions) >= maxPositions {
					break
				}
				shares := sizeEntry(b.cash, maxPositionPct, c.price)
				if shares == 0 {
					continue
				}
				cost := float64(shares) * c.price
				if cost > b.cash {
					continue
				}
				exposure := b.exposure(symbols)
				if exposure+cost > (b.cash+exposure)*maxExposurePct {
					continue
				}
				b.open(c.symbol, c.price, shares, day, stopLossPct, takeProfitPct)
			}
		}

		// 4. Equity mark.
		equity := b.equity(symbols)
		equityCurve = append(equityCurve, equity)
		if prevEquity > 0 {
			dailyReturns = append(dailyReturns, equity/prevEquity-1)
		} else {
			dailyReturns = append(dailyReturns, 0)
		}
		prevEquity = equity
	}

	// 5. Force-close whatever is still open at the last prices.
	if len(calendar) > 0 {
		b.closeAll(symbols, len(calendar)-1)
	}

	return s.summarize(b, equityCurve, dailyReturns)
}

// scan collects and ranks the day's entry candidates: score
// descending, equal scores broken by symbol order so the ranking is
// reproducible run to run.
func (s *Simulator) scan(symbols []string, prepared map[string]*signal.Prepared,
	day int, buyThreshold, confidenceMin float64, b *book) []candidate {

	var candidates []candidate
	for _, symbol := range symbols {
		if _, held := b.positions[symbol]; held {
			continue
		}
		idx := s.market.BarIndex(symbol, day)
		if idx < 0 {
			continue
		}

		sig := prepared[symbol].At(idx)
		if sig.Score >= buyThreshold && sig.Confidence >= confidenceMin {
			candidates = append(candidates, candidate{
				symbol: symbol,
				score:  sig.Score,
				price:  s.market.SeriesOf(symbol)[idx].Close,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].symbol < candidates[j].symbol
	})
	return candidates
}

// summarize derives the metric block from the finished run.
func (s *Simulator) summarize(b *book, equityCurve core.Series[float64], dailyReturns []float64) *core.BacktestResult {
	pnls := b.pnls()

	finalEquity := s.initialCapital
	if len(equityCurve) > 0 {
		finalEquity = equityCurve.Last(0)
	}

	totalReturn := metric.TotalReturn(s.initialCapital, finalEquity)
	maxDD := metric.MaxDrawdown(equityCurve)

	return &core.BacktestResult{
		EquityCurve:       equityCurve,
		DailyReturns:      dailyReturns,
		Trades:            b.trades,
		TotalReturn:       totalReturn,
		Sharpe:            metric.Sharpe(dailyReturns),
		Sortino:           metric.Sortino(dailyReturns),
		Calmar:            metric.Calmar(totalReturn, maxDD, len(dailyReturns)),
		MaxDrawdown:       maxDD,
		WinRate:           metric.WinRate(pnls),
		ProfitFactor:      metric.ProfitFactor(pnls),
		RegimePerformance: metric.RegimePerformance(dailyReturns, s.market.RegimeLabels()),
	}
}
