// Package execution simulates order execution for paper trading.
//
// The Ledger is the position state machine: it turns Buy/Sell signals into
// Buy, Sell, Short and Cover trades against simulated capital. Fills are
// immediate at the signal price with no slippage or fees. The Journal
// persists the resulting trades to SQLite for audit.
package execution

import (
	"log"
	"math"
	"time"

	"papertrader/internal/model"
)

// Ledger tracks capital, the open position and the trade log.
// Not safe for concurrent use; the owning session serializes access.
type Ledger struct {
	capital  float64
	position model.Position
	trades   []model.Trade
}

// NewLedger creates a flat ledger holding capital.
func NewLedger(capital float64) *Ledger {
	l := &Ledger{}
	l.Reset(capital)
	return l
}

// Reset discards the position and trade log and sets fresh capital.
func (l *Ledger) Reset(capital float64) {
	l.capital = capital
	l.position = model.Position{Side: model.Flat}
	l.trades = make([]model.Trade, 0, 64)
}

// Apply executes a Buy or Sell signal at price. It returns the recorded
// trade and true when the state changed, or false for a no-op.
//
//	Flat,  Buy  → Long(capital/p)            log Buy
//	Flat,  Sell → Short(capital/p)           log Short
//	Long,  Sell → Flat, capital = size·p     log Sell
//	Short, Buy  → Flat, capital = size·(2·entry−p), floored at 0, log Cover
//
// Everything else, including Flat with no capital and p <= 0, is a no-op.
func (l *Ledger) Apply(action model.Action, price float64, ts time.Time) (model.Trade, bool) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return model.Trade{}, false
	}

	var kind model.Action
	switch {
	case l.position.Side == model.Flat && l.capital > 0 && action == model.ActionBuy:
		l.position = model.Position{Side: model.Long, Size: l.capital / price, EntryPrice: price}
		l.capital = 0
		kind = model.ActionBuy

	case l.position.Side == model.Flat && l.capital > 0 && action == model.ActionSell:
		l.position = model.Position{Side: model.Short, Size: l.capital / price, EntryPrice: price}
		l.capital = 0
		kind = model.ActionShort

	case l.position.Side == model.Long && action == model.ActionSell:
		l.capital = l.position.Size * price
		l.position = model.Position{Side: model.Flat}
		kind = model.ActionSell

	case l.position.Side == model.Short && action == model.ActionBuy:
		payoff := l.position.Size * (2*l.position.EntryPrice - price)
		if payoff < 0 {
			log.Printf("[ledger] cover at %.4f exceeds 2x entry %.4f, capital floored at 0", price, l.position.EntryPrice)
			payoff = 0
		}
		l.capital = payoff
		l.position = model.Position{Side: model.Flat}
		kind = model.ActionCover

	default:
		return model.Trade{}, false
	}

	t := model.Trade{
		Action:         kind,
		Price:          price,
		CapitalAfter:   l.capital,
		LongSizeAfter:  l.position.LongSize(),
		ShortSizeAfter: l.position.ShortSize(),
		TS:             ts.UTC(),
	}
	l.trades = append(l.trades, t)
	return t, true
}

// Capital returns the uncommitted capital.
func (l *Ledger) Capital() float64 { return l.capital }

// Position returns the open position.
func (l *Ledger) Position() model.Position { return l.position }

// Trades returns a copy of the trade log, oldest first.
func (l *Ledger) Trades() []model.Trade {
	cp := make([]model.Trade, len(l.trades))
	copy(cp, l.trades)
	return cp
}

// Len returns the number of recorded trades.
func (l *Ledger) Len() int { return len(l.trades) }

// Equity is capital plus the open position marked at price.
func (l *Ledger) Equity(price float64) float64 {
	return l.capital + l.position.MarkValue(price)
}
