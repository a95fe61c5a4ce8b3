package builtins

import (
	"fmt"

	"tradewise/internal/domain"
	"tradewise/internal/indicator"
	"tradewise/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSI)(nil)

// RSI fires LONG when the RSI turns up inside oversold territory and SHORT
// when it turns down inside overbought territory. Signals are events, so the
// position is persisted between them.
type RSI struct {
	period     int
	oversold   int
	overbought int
}

// NewRSI creates an RSI strategy. Thresholds are whole RSI levels strictly
// inside (0, 100) with oversold below overbought.
func NewRSI(period, oversold, overbought int) (*RSI, error) {
	if err := positive(strategy.KindRSI, "period", period); err != nil {
		return nil, err
	}
	if oversold <= 0 || oversold >= 100 {
		return nil, &strategy.ParamError{Strategy: strategy.KindRSI, Param: "oversold", Value: oversold, Reason: "must be in (0, 100)"}
	}
	if overbought <= 0 || overbought >= 100 {
		return nil, &strategy.ParamError{Strategy: strategy.KindRSI, Param: "overbought", Value: overbought, Reason: "must be in (0, 100)"}
	}
	if oversold >= overbought {
		return nil, &strategy.ParamError{
			Strategy: strategy.KindRSI,
			Param:    "oversold",
			Value:    oversold,
			Reason:   fmt.Sprintf("must be below overbought=%d", overbought),
		}
	}
	return &RSI{period: period, oversold: oversold, overbought: overbought}, nil
}

func newRSIFromParams(p strategy.Params) (*RSI, error) {
	period, err := p.Int(strategy.KindRSI, "period", DefaultRSIPeriod)
	if err != nil {
		return nil, err
	}
	oversold, err := p.Int(strategy.KindRSI, "oversold", DefaultOversold)
	if err != nil {
		return nil, err
	}
	overbought, err := p.Int(strategy.KindRSI, "overbought", DefaultOverbought)
	if err != nil {
		return nil, err
	}
	return NewRSI(period, oversold, overbought)
}

// Name returns "RSI".
func (s *RSI) Name() string { return string(strategy.KindRSI) }

func (s *RSI) String() string {
	return fmt.Sprintf("RSI(period=%d, oversold=%d, overbought=%d)", s.period, s.oversold, s.overbought)
}

// Policy returns PolicyPersisted.
func (s *RSI) Policy() strategy.Policy { return strategy.PolicyPersisted }

// Signals evaluates the turning-point rule. Bar 0 has no previous RSI and is
// always SignalNone.
func (s *RSI) Signals(series *domain.Series) []domain.Signal {
	rsi := indicator.RSI(series.Closes(), s.period)
	out := make([]domain.Signal, len(rsi))
	oversold, overbought := float64(s.oversold), float64(s.overbought)
	for i := 1; i < len(rsi); i++ {
		cur, prev := rsi[i], rsi[i-1]
		switch {
		case cur < oversold && cur > prev:
			out[i] = domain.SignalLong
		case cur > overbought && cur < prev:
			out[i] = domain.SignalShort
		}
	}
	return out
}
