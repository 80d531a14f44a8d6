package model

import "encoding/json"

// Side is the direction of the simulated position.
type Side int

const (
	Flat Side = iota
	Long
	Short
)

func (s Side) String() string {
	switch s {
	case Flat:
		return "Flat"
	case Long:
		return "Long"
	case Short:
		return "Short"
	default:
		return "Unknown"
	}
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Position is the ledger's position state. A Flat position has Size 0.
// EntryPrice is the price recorded when the position was opened; a Short is
// covered against it.
type Position struct {
	Side       Side    `json:"side"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
}

// LongSize returns the size held long, 0 unless Side is Long.
func (p Position) LongSize() float64 {
	if p.Side == Long {
		return p.Size
	}
	return 0
}

// ShortSize returns the size held short, 0 unless Side is Short.
func (p Position) ShortSize() float64 {
	if p.Side == Short {
		return p.Size
	}
	return 0
}

// MarkValue values the open position at price using the same payoff rules
// the ledger applies when closing it.
func (p Position) MarkValue(price float64) float64 {
	switch p.Side {
	case Long:
		return p.Size * price
	case Short:
		v := p.Size * (2*p.EntryPrice - price)
		if v < 0 {
			return 0
		}
		return v
	default:
		return 0
	}
}
