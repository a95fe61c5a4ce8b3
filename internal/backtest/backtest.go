// Package backtest turns a strategy's signals on a price series into held
// positions, lagged period returns and a compounded equity curve.
//
// The pipeline is pure and synchronous. Callers that must stay responsive
// run it on a worker (see internal/engine).
package backtest

import (
	"errors"

	"tradewise/internal/domain"
	"tradewise/internal/strategy"
)

// ErrNilStrategy is returned by Run when no strategy is given.
var ErrNilStrategy = errors.New("backtest: nil strategy")

// Resolve converts raw signals into held positions under policy.
//
// PolicyDirect holds exactly the current signal. PolicyPersisted holds the
// most recent non-zero signal, starting flat.
func Resolve(signals []domain.Signal, policy strategy.Policy) []domain.Position {
	positions := make([]domain.Position, len(signals))
	prev := domain.PositionFlat
	for i, sig := range signals {
		switch {
		case policy == strategy.PolicyDirect:
			positions[i] = domain.Position(sig)
		case sig != domain.SignalNone:
			positions[i] = domain.Position(sig)
		default:
			positions[i] = prev
		}
		prev = positions[i]
	}
	return positions
}

// PeriodReturns returns the strategy return for each bar. The return on bar i
// uses the position held after bar i-1, so no bar earns a return from its own
// signal. The first return is always 0.
func PeriodReturns(closes []float64, positions []domain.Position) []float64 {
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		held := positions[i-1]
		if held == domain.PositionFlat {
			continue
		}
		out[i] = (closes[i] - closes[i-1]) / closes[i-1] * float64(held)
	}
	return out
}

// EquityCurve compounds returns from a starting equity of 1.
func EquityCurve(returns []float64) []float64 {
	out := make([]float64, len(returns))
	equity := 1.0
	for i, r := range returns {
		equity *= 1 + r
		out[i] = equity
	}
	return out
}

// TotalReturn is the simple sum of period returns. It is not the compounded
// growth of the equity curve.
func TotalReturn(returns []float64) float64 {
	var sum float64
	for _, r := range returns {
		sum += r
	}
	return sum
}

// Run evaluates s on series and assembles the report.
func Run(s strategy.Strategy, series *domain.Series) (*domain.Report, error) {
	if s == nil {
		return nil, ErrNilStrategy
	}
	if series == nil || series.Len() == 0 {
		return nil, domain.ErrEmptySeries
	}

	signals := s.Signals(series)
	positions := Resolve(signals, s.Policy())
	closes := series.Closes()
	returns := PeriodReturns(closes, positions)

	trace := make([]domain.TracePoint, series.Len())
	for i := range trace {
		trace[i] = domain.TracePoint{
			Index:     i,
			Timestamp: series.Bar(i).Timestamp,
			Close:     closes[i],
			Signal:    signals[i],
			Position:  positions[i],
		}
	}

	return &domain.Report{
		Strategy:    s.Name(),
		Params:      s.String(),
		TotalReturn: TotalReturn(returns),
		Returns:     returns,
		EquityCurve: EquityCurve(returns),
		Trace:       trace,
	}, nil
}
