// Package builtins provides the built-in strategy implementations and the
// single dispatch point that constructs them from a selector and parameters.
package builtins

import (
	"fmt"

	"tradewise/internal/strategy"
)

// Default parameter values applied when a key is missing.
const (
	DefaultWindow     = 20
	DefaultRSIPeriod  = 14
	DefaultOversold   = 30
	DefaultOverbought = 70
	DefaultBBPeriod   = 20
	DefaultDeviation  = 2.0
)

// New constructs the strategy for kind from params. Unknown keys in params
// are ignored; missing keys take the package defaults.
func New(kind strategy.Kind, params strategy.Params) (strategy.Strategy, error) {
	switch kind {
	case strategy.KindMovingAverage:
		return newMovingAverageFromParams(params)
	case strategy.KindRSI:
		return newRSIFromParams(params)
	case strategy.KindBollinger:
		return newBollingerFromParams(params)
	}
	return nil, fmt.Errorf("%w: %q", strategy.ErrUnknownStrategy, kind)
}

// Parse resolves selector with strategy.ParseKind and then calls New.
func Parse(selector string, params strategy.Params) (strategy.Strategy, error) {
	kind, err := strategy.ParseKind(selector)
	if err != nil {
		return nil, err
	}
	return New(kind, params)
}

// Presets returns a registry populated with commonly used configurations.
func Presets() *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register("ma-20", mustMovingAverage(20))
	r.Register("ma-50", mustMovingAverage(50))
	r.Register("rsi-14", mustRSI(14, 30, 70))
	r.Register("rsi-14-tight", mustRSI(14, 20, 80))
	r.Register("bollinger-20", mustBollinger(20, 2))
	r.Register("bollinger-20-wide", mustBollinger(20, 2.5))
	return r
}

func mustMovingAverage(window int) strategy.Strategy {
	s, err := NewMovingAverage(window)
	if err != nil {
		panic(err)
	}
	return s
}

func mustRSI(period, oversold, overbought int) strategy.Strategy {
	s, err := NewRSI(period, oversold, overbought)
	if err != nil {
		panic(err)
	}
	return s
}

func mustBollinger(period int, deviation float64) strategy.Strategy {
	s, err := NewBollinger(period, deviation)
	if err != nil {
		panic(err)
	}
	return s
}

func positive(kind strategy.Kind, name string, v int) error {
	if v <= 0 {
		return &strategy.ParamError{Strategy: kind, Param: name, Value: v, Reason: "must be positive"}
	}
	return nil
}
