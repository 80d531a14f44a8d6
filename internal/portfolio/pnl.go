// Package portfolio derives P&L and equity statistics from a session's
// trade log. It never mutates the ledger.
package portfolio

import "papertrader/internal/model"

// Summary is a P&L view of one session.
type Summary struct {
	InitialCapital float64        `json:"initial_capital"`
	Capital        float64        `json:"capital"`
	Equity         float64        `json:"equity"` // capital + open position at mark
	RealizedPnL    float64        `json:"realized_pnl"`
	UnrealizedPnL  float64        `json:"unrealized_pnl"`
	ReturnPct      float64        `json:"return_pct"`
	TotalTrades    int            `json:"total_trades"`
	RoundTrips     int            `json:"round_trips"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	OpenPosition   model.Position `json:"open_position"`
	MaxDrawdownPct float64        `json:"max_drawdown_pct"`
}

// WinRate returns wins over round trips as a percentage.
func (s Summary) WinRate() float64 {
	if s.RoundTrips == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.RoundTrips) * 100
}

// Summarize computes the P&L summary. mark is the price used to value an
// open position; trades must be in ledger order.
func Summarize(initial, capital float64, pos model.Position, trades []model.Trade, mark float64) Summary {
	s := Summary{
		InitialCapital: initial,
		Capital:        capital,
		TotalTrades:    len(trades),
		OpenPosition:   pos,
	}

	// Capital held while flat, before the current round trip opened.
	flat := initial
	for _, t := range trades {
		switch t.Action {
		case model.ActionSell, model.ActionCover:
			pnl := t.CapitalAfter - flat
			s.RoundTrips++
			if pnl > 0 {
				s.Wins++
			} else {
				s.Losses++
			}
			flat = t.CapitalAfter
		}
	}
	s.RealizedPnL = flat - initial

	open := pos.MarkValue(mark)
	s.Equity = capital + open
	if pos.Side != model.Flat {
		s.UnrealizedPnL = open - flat
	}
	if initial > 0 {
		s.ReturnPct = (s.Equity - initial) / initial * 100
	}
	return s
}
