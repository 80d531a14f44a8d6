package indicator

import "papertrader/internal/model"

// SMA calculates the Simple Moving Average of closes over a rolling window.
// Uses a preallocated circular buffer; a non-positive period never becomes ready.
type SMA struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	s := &SMA{period: period}
	if period > 0 {
		s.buf = make([]float64, period)
	}
	return s
}

func (s *SMA) Name() string { return name("SMA", s.period) }

func (s *SMA) Update(candle model.Candle) {
	if s.period <= 0 {
		return
	}
	price := candle.Close

	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.period > 0 && s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
