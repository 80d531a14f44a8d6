package indicator

import (
	"math"

	"papertrader/internal/model"
)

// ATR calculates the Average True Range with Wilder smoothing.
// The first bar's true range is high-low; later bars use
// max(high-low, |high-prevClose|, |low-prevClose|). The first value is
// available once period true ranges have been seen.
type ATR struct {
	period    int
	seen      bool
	prevClose float64
	smooth    *SMMA
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, smooth: NewSMMA(period)}
}

func (a *ATR) Name() string { return name("ATR", a.period) }

func (a *ATR) Update(candle model.Candle) {
	tr := candle.High - candle.Low
	if a.seen {
		tr = math.Max(tr, math.Max(
			math.Abs(candle.High-a.prevClose),
			math.Abs(candle.Low-a.prevClose),
		))
	}
	a.seen = true
	a.prevClose = candle.Close
	a.smooth.Add(tr)
}

func (a *ATR) Value() float64 { return a.smooth.Value() }
func (a *ATR) Ready() bool    { return a.smooth.Ready() }

// Reset clears the ATR state for reuse.
func (a *ATR) Reset() {
	a.seen = false
	a.prevClose = 0
	a.smooth.Reset()
}
