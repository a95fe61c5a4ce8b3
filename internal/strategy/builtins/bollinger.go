package builtins

import (
	"fmt"
	"math"

	"tradewise/internal/domain"
	"tradewise/internal/indicator"
	"tradewise/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Bollinger)(nil)

// Bollinger goes long on a close below the lower band and short on a close
// above the upper band.
type Bollinger struct {
	period    int
	deviation float64
}

// NewBollinger creates a Bollinger strategy.
func NewBollinger(period int, deviation float64) (*Bollinger, error) {
	if err := positive(strategy.KindBollinger, "period", period); err != nil {
		return nil, err
	}
	if deviation <= 0 || math.IsNaN(deviation) {
		return nil, &strategy.ParamError{Strategy: strategy.KindBollinger, Param: "deviation", Value: deviation, Reason: "must be positive"}
	}
	return &Bollinger{period: period, deviation: deviation}, nil
}

func newBollingerFromParams(p strategy.Params) (*Bollinger, error) {
	period, err := p.Int(strategy.KindBollinger, "period", DefaultBBPeriod)
	if err != nil {
		return nil, err
	}
	deviation, err := p.Float(strategy.KindBollinger, "deviation", DefaultDeviation)
	if err != nil {
		return nil, err
	}
	return NewBollinger(period, deviation)
}

// Name returns "Bollinger".
func (s *Bollinger) Name() string { return string(strategy.KindBollinger) }

func (s *Bollinger) String() string {
	return fmt.Sprintf("Bollinger(period=%d, deviation=%g)", s.period, s.deviation)
}

// Policy returns PolicyPersisted.
func (s *Bollinger) Policy() strategy.Policy { return strategy.PolicyPersisted }

// Signals evaluates band breaches. Warm-up bars compare against NaN and so
// produce SignalNone.
func (s *Bollinger) Signals(series *domain.Series) []domain.Signal {
	closes := series.Closes()
	bands := indicator.Bollinger(closes, s.period, s.deviation)
	out := make([]domain.Signal, len(closes))
	for i, c := range closes {
		switch {
		case c < bands.Lower[i]:
			out[i] = domain.SignalLong
		case c > bands.Upper[i]:
			out[i] = domain.SignalShort
		}
	}
	return out
}
