package strategy

import (
	"fmt"

	"papertrader/internal/model"
)

// Rules holds the RSI filter thresholds.
type Rules struct {
	Overbought float64 // no Buy at or above this RSI
	Oversold   float64 // no Sell at or below this RSI
}

// DefaultRules returns the classic 70/30 filter.
func DefaultRules() Rules {
	return Rules{Overbought: 70, Oversold: 30}
}

// Crossover implements the SMA trend rule with an RSI filter.
//
// Buy:  short SMA above long SMA and RSI below overbought.
// Sell: short SMA below long SMA and RSI above oversold.
// Ties, filtered bars and bars with any unavailable indicator yield None.
type Crossover struct {
	name  string
	rules Rules
}

// NewCrossover creates the rule with the given thresholds.
func NewCrossover(rules Rules) *Crossover {
	return &Crossover{name: "SMA_Crossover_RSI", rules: rules}
}

func (c *Crossover) Name() string { return c.name }

// Rules returns the active thresholds.
func (c *Crossover) Rules() Rules { return c.rules }

func (c *Crossover) Evaluate(ic model.IndicatedCandle) Signal {
	sig := Signal{Strategy: c.name, Action: model.ActionNone, Price: ic.Close}

	if !ic.Ready() {
		sig.Reason = "indicators warming up"
		return sig
	}
	short, long, rsi := ic.SMAShort.Value, ic.SMALong.Value, ic.RSI.Value

	switch {
	case short > long:
		if rsi < c.rules.Overbought {
			sig.Action = model.ActionBuy
			sig.Reason = fmt.Sprintf("SMA short %.4f > long %.4f, RSI %.1f < %.0f", short, long, rsi, c.rules.Overbought)
			return sig
		}
		sig.Reason = fmt.Sprintf("uptrend filtered, RSI %.1f >= %.0f", rsi, c.rules.Overbought)
	case short < long:
		if rsi > c.rules.Oversold {
			sig.Action = model.ActionSell
			sig.Reason = fmt.Sprintf("SMA short %.4f < long %.4f, RSI %.1f > %.0f", short, long, rsi, c.rules.Oversold)
			return sig
		}
		sig.Reason = fmt.Sprintf("downtrend filtered, RSI %.1f <= %.0f", rsi, c.rules.Oversold)
	default:
		sig.Reason = "SMA tie"
	}
	return sig
}
