package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is both the signal classification (None, Buy, Sell) and the kind of
// ledger transition recorded in a Trade (Buy, Sell, Short, Cover).
type Action int

const (
	ActionNone Action = iota
	ActionBuy
	ActionSell
	ActionShort
	ActionCover
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionBuy:
		return "Buy"
	case ActionSell:
		return "Sell"
	case ActionShort:
		return "Short"
	case ActionCover:
		return "Cover"
	default:
		return "Unknown"
	}
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Action) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAction maps a trade log tag back to its Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "None", "":
		return ActionNone, nil
	case "Buy":
		return ActionBuy, nil
	case "Sell":
		return ActionSell, nil
	case "Short":
		return ActionShort, nil
	case "Cover":
		return ActionCover, nil
	}
	return ActionNone, fmt.Errorf("unknown action %q", s)
}

// Trade is one effective ledger transition.
type Trade struct {
	Action         Action    `json:"action"`
	Price          float64   `json:"price"`
	CapitalAfter   float64   `json:"capital"`
	LongSizeAfter  float64   `json:"position"`
	ShortSizeAfter float64   `json:"shortPosition"`
	TS             time.Time `json:"ts"`
}

// Update is the push payload emitted after every ingestion.
type Update struct {
	Action   string    `json:"action"` // always "update"
	Session  string    `json:"session"`
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	SMAShort Optional  `json:"smaShort"`
	SMALong  Optional  `json:"smaLong"`
	RSI      Optional  `json:"rsi"`
	ATR      Optional  `json:"atr"`
	Trade    *Trade    `json:"trade"` // trade produced by this ingestion, if any
	TradeLog []Trade   `json:"tradeLog"`
	TS       time.Time `json:"ts"`
}

// JSON returns the JSON-encoded update.
func (u *Update) JSON() []byte {
	b, _ := json.Marshal(u)
	return b
}
