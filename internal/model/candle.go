package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Candle is one OHLCV bar. Candles are treated as immutable once built.
type Candle struct {
	TS     time.Time `json:"ts"` // bar open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceCandle builds the zero-volume bar used for live ticks between candle
// closes: open, high, low and close all equal price.
func PriceCandle(price float64, ts time.Time) Candle {
	return Candle{
		TS:     ts.UTC(),
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: 0,
	}
}

// Validate reports whether every field is finite, prices are positive and
// volume is non-negative.
func (c *Candle) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("candle %s is not finite", f.name)
		}
		if f.v <= 0 {
			return fmt.Errorf("candle %s must be positive, got %g", f.name, f.v)
		}
	}
	if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume < 0 {
		return fmt.Errorf("candle volume must be finite and >= 0, got %g", c.Volume)
	}
	return nil
}

// Optional is an indicator reading that is unavailable until the indicator
// has seen its full warm-up window.
type Optional struct {
	Value float64
	OK    bool
}

// Some wraps an available value.
func Some(v float64) Optional { return Optional{Value: v, OK: true} }

// None is the unavailable reading.
var None = Optional{}

// MarshalJSON encodes unavailable readings as null.
func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.OK {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON accepts a number or null.
func (o *Optional) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = None
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// IndicatedCandle is a Candle plus the indicator values aligned to its index
// in the buffer it was computed from.
type IndicatedCandle struct {
	Candle
	SMAShort Optional `json:"smaShort"`
	SMALong  Optional `json:"smaLong"`
	RSI      Optional `json:"rsi"`
	ATR      Optional `json:"atr"`
}

// Ready is true when all four indicator values are available.
func (ic *IndicatedCandle) Ready() bool {
	return ic.SMAShort.OK && ic.SMALong.OK && ic.RSI.OK && ic.ATR.OK
}
