// Package indicator provides the technical indicators the trading session
// derives from its candle window: SMA, RSI and ATR.
//
// Every indicator is a streaming state machine fed one candle at a time.
// The Engine replays fresh instances over a whole window so results always
// match a batch computation over the same candles.
package indicator

import "papertrader/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_5", "RSI_14").
	Name() string

	// Update feeds the next candle in chronological order.
	Update(candle model.Candle)

	// Value returns the current value. Returns 0 until Ready.
	Value() float64

	// Ready returns true once the warm-up window has been seen.
	Ready() bool

	// Reset clears all accumulated state.
	Reset()
}

// Reading returns the indicator's current value as an Optional.
func Reading(ind Indicator) model.Optional {
	if !ind.Ready() {
		return model.None
	}
	return model.Some(ind.Value())
}

func name(kind string, period int) string {
	return kind + "_" + itoa(period)
}

// itoa converts a non-negative int to string without importing strconv.
func itoa(n int) string {
	if n <= 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
