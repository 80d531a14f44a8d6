package indicator

import (
	"fmt"

	"papertrader/internal/model"
)

// Config holds the indicator periods.
type Config struct {
	ShortPeriod int // fast SMA
	LongPeriod  int // slow SMA
	RSIPeriod   int
	ATRPeriod   int
}

// DefaultConfig returns SMA(5), SMA(16), RSI(14), ATR(14).
func DefaultConfig() Config {
	return Config{ShortPeriod: 5, LongPeriod: 16, RSIPeriod: 14, ATRPeriod: 14}
}

// Validate reports an error for non-positive periods or short >= long.
func (c Config) Validate() error {
	if c.ShortPeriod <= 0 || c.LongPeriod <= 0 || c.RSIPeriod <= 0 || c.ATRPeriod <= 0 {
		return fmt.Errorf("indicator periods must be positive: %+v", c)
	}
	if c.ShortPeriod >= c.LongPeriod {
		return fmt.Errorf("short SMA period %d must be less than long period %d", c.ShortPeriod, c.LongPeriod)
	}
	return nil
}

// Engine computes the indicator set over a candle window.
// Designed for single-goroutine usage; the session lock serializes calls.
type Engine struct {
	smaShort *SMA
	smaLong  *SMA
	rsi      *RSI
	atr      *ATR
}

// NewEngine creates an indicator engine with the given periods.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		smaShort: NewSMA(cfg.ShortPeriod),
		smaLong:  NewSMA(cfg.LongPeriod),
		rsi:      NewRSI(cfg.RSIPeriod),
		atr:      NewATR(cfg.ATRPeriod),
	}
}

// Names lists the indicator names in output order.
func (e *Engine) Names() []string {
	return []string{e.smaShort.Name(), e.smaLong.Name(), e.rsi.Name(), e.atr.Name()}
}

// Recompute derives every indicator for every index of candles, oldest
// first. State is reset on each call, so the result depends only on the
// input window.
func (e *Engine) Recompute(candles []model.Candle) []model.IndicatedCandle {
	out := make([]model.IndicatedCandle, len(candles))
	for i, c := range candles {
		out[i].Candle = c
	}
	if len(candles) < 2 {
		return out
	}

	inds := []Indicator{e.smaShort, e.smaLong, e.rsi, e.atr}
	for _, ind := range inds {
		ind.Reset()
	}

	for i, c := range candles {
		for _, ind := range inds {
			ind.Update(c)
		}
		out[i].SMAShort = Reading(e.smaShort)
		out[i].SMALong = Reading(e.smaLong)
		out[i].RSI = Reading(e.rsi)
		out[i].ATR = Reading(e.atr)
	}
	return out
}
