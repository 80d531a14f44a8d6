package portfolio

import "log"

// EquityTracker follows marked-to-market equity and its peak-to-trough
// drawdown over a session.
// Not safe for concurrent use; the owning session serializes access.
type EquityTracker struct {
	equity         float64
	peak           float64
	maxDrawdownPct float64
}

// NewEquityTracker starts tracking at initial equity.
func NewEquityTracker(initial float64) *EquityTracker {
	return &EquityTracker{equity: initial, peak: initial}
}

// Observe records the latest equity and returns the current drawdown in
// percent of the peak.
func (et *EquityTracker) Observe(equity float64) float64 {
	et.equity = equity
	if equity > et.peak {
		et.peak = equity
	}
	dd := et.Drawdown()
	if dd > et.maxDrawdownPct {
		et.maxDrawdownPct = dd
		log.Printf("[risk] new max drawdown %.2f%% (equity %.4f, peak %.4f)", dd, et.equity, et.peak)
	}
	return dd
}

// Drawdown returns the current drawdown percentage.
func (et *EquityTracker) Drawdown() float64 {
	if et.peak <= 0 {
		return 0
	}
	return (et.peak - et.equity) / et.peak * 100
}

// MaxDrawdown returns the worst drawdown seen so far.
func (et *EquityTracker) MaxDrawdown() float64 { return et.maxDrawdownPct }

// Peak returns the highest equity seen.
func (et *EquityTracker) Peak() float64 { return et.peak }

// Equity returns the last observed equity.
func (et *EquityTracker) Equity() float64 { return et.equity }
