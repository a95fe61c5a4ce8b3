package builtins

import (
	"fmt"

	"tradewise/internal/domain"
	"tradewise/internal/indicator"
	"tradewise/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MovingAverage)(nil)

// MovingAverage is long while the close is above its simple moving average
// and flat otherwise. It never goes short.
type MovingAverage struct {
	window int
}

// NewMovingAverage creates a MovingAverage strategy over window bars.
func NewMovingAverage(window int) (*MovingAverage, error) {
	if err := positive(strategy.KindMovingAverage, "window", window); err != nil {
		return nil, err
	}
	return &MovingAverage{window: window}, nil
}

func newMovingAverageFromParams(p strategy.Params) (*MovingAverage, error) {
	window, err := p.Int(strategy.KindMovingAverage, "window", DefaultWindow)
	if err != nil {
		return nil, err
	}
	return NewMovingAverage(window)
}

// Name returns "MovingAverage".
func (s *MovingAverage) Name() string { return string(strategy.KindMovingAverage) }

func (s *MovingAverage) String() string {
	return fmt.Sprintf("MovingAverage(window=%d)", s.window)
}

// Policy returns PolicyDirect: the signal is a level re-asserted every bar.
func (s *MovingAverage) Policy() strategy.Policy { return strategy.PolicyDirect }

// Window returns the averaging window.
func (s *MovingAverage) Window() int { return s.window }

// Signals returns SignalLong on bars whose close is strictly above the SMA.
func (s *MovingAverage) Signals(series *domain.Series) []domain.Signal {
	closes := series.Closes()
	ma := indicator.SMA(closes, s.window)
	out := make([]domain.Signal, len(closes))
	for i, c := range closes {
		if indicator.Defined(ma[i]) && c > ma[i] {
			out[i] = domain.SignalLong
		}
	}
	return out
}
