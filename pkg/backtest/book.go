package backtest

import (
	"math"

	"github.com/quantforge/evorun/pkg/core"
)

// book tracks the cash, open positions and completed trades of one
// simulated run. All iteration over positions happens in the caller's
// symbol order so equal runs sum floats identically.
type book struct {
	cash      float64
	positions map[string]*core.Position
	lastClose map[string]float64
	trades    []core.Trade
}

func newBook(initialCapital float64) *book {
	return &book{
		cash:      initialCapital,
		positions: make(map[string]*core.Position),
		lastClose: make(map[string]float64),
	}
}

// mark records the day's close for a symbol so equity and forced
// exits always have a price, even on days the symbol skips later.
func (b *book) mark(symbol string, close float64) {
	b.lastClose[symbol] = close
}

// open buys shares and registers the position.
func (b *book) open(symbol string, price float64, shares, day int, stopLossPct, takeProfitPct float64) {
	b.cash -= float64(shares) * price
	b.positions[symbol] = &core.Position{
		Symbol:     symbol,
		EntryPrice: price,
		Shares:     shares,
		EntryIndex: day,
		StopLoss:   price * (1 - stopLossPct),
		TakeProfit: price * (1 + takeProfitPct),
	}
}

// close exits a position at the given price and records the trade.
func (b *book) close(symbol string, price float64, day int, reason core.ExitReason) {
	pos, ok := b.positions[symbol]
	if !ok {
		return
	}

	proceeds := float64(pos.Shares) * price
	b.cash += proceeds
	b.trades = append(b.trades, core.Trade{
		Symbol:     symbol,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Shares:     pos.Shares,
		EntryIndex: pos.EntryIndex,
		ExitIndex:  day,
		PnL:        proceeds - float64(pos.Shares)*pos.EntryPrice,
		Reason:     reason,
	})
	delete(b.positions, symbol)
}

// closeAll force-closes every open position at its last known close,
// walking symbols in the given order.
func (b *book) closeAll(symbols []string, day int) {
	for _, symbol := range symbols {
		if _, ok := b.positions[symbol]; !ok {
			continue
		}
		b.close(symbol, b.lastClose[symbol], day, core.ExitForceClosed)
	}
}

// exposure sums open position value at last known closes.
func (b *book) exposure(symbols []string) float64 {
	var total float64
	for _, symbol := range symbols {
		pos, ok := b.positions[symbol]
		if !ok {
			continue
		}
		total += pos.Exposure(b.lastClose[symbol])
	}
	return total
}

// equity is cash plus open exposure.
func (b *book) equity(symbols []string) float64 {
	return b.cash + b.exposure(symbols)
}

// pnls extracts the per-trade profit column.
func (b *book) pnls() []float64 {
	out := make([]float64, len(b.trades))
	for i, t := range b.trades {
		out[i] = t.PnL
	}
	return out
}

// sizeEntry computes how many whole shares an entry gets from the
// per-position slice of cash. Zero means the entry is skipped.
func sizeEntry(cash, maxPositionPct, price float64) int {
	if price <= 0 {
		return 0
	}
	return int(math.Floor(cash * maxPositionPct / price))
}
