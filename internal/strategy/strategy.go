// Package strategy classifies the newest indicated candle into a trading
// action.
//
// An Evaluator sees only the indicator values of one bar and emits a Signal
// (Buy, Sell or None). It never holds position state; the ledger decides what
// a signal means given the current position.
package strategy

import "papertrader/internal/model"

// Signal represents a trading signal emitted by an evaluator.
type Signal struct {
	Strategy string       `json:"strategy"`
	Action   model.Action `json:"action"` // Buy, Sell or None
	Price    float64      `json:"price"`  // close of the evaluated bar
	Reason   string       `json:"reason"`
}

// Evaluator is the interface that all signal rules must implement.
type Evaluator interface {
	// Name returns the unique name of the rule.
	Name() string

	// Evaluate classifies one bar. It must be a pure function of its input.
	Evaluate(ic model.IndicatedCandle) Signal
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ic model.IndicatedCandle) Signal

func (f EvaluatorFunc) Name() string                               { return "func" }
func (f EvaluatorFunc) Evaluate(ic model.IndicatedCandle) Signal { return f(ic) }
