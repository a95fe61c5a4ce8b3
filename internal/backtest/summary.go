package backtest

import (
	"math"

	"tradewise/internal/domain"
)

// Summarize derives performance metrics from a report.
//
// Trades are runs of a constant non-flat position as the returns engine sees
// it, i.e. position i-1 applied to bar i. MaxDrawdown is a non-negative
// fraction of the running equity peak. SharpeRatio is the mean over the
// population standard deviation of the period returns, unannualized, and is 0
// when the returns have no dispersion.
func Summarize(r *domain.Report) domain.Summary {
	n := len(r.Returns)
	sum := domain.Summary{
		Bars:        n,
		TotalReturn: r.TotalReturn,
		FinalEquity: 1,
	}
	if n == 0 {
		return sum
	}
	sum.FinalEquity = r.EquityCurve[n-1]
	sum.MaxDrawdown = maxDrawdown(r.EquityCurve)
	sum.SharpeRatio = sharpe(r.Returns)

	held := make([]domain.Position, n)
	for i := 1; i < n; i++ {
		held[i] = r.Trace[i-1].Position
	}

	var exposed int
	var open *domain.Trade
	growth := 1.0
	closeTrade := func(exit int) {
		open.ExitIndex = exit
		open.Return = growth - 1
		sum.Trades = append(sum.Trades, *open)
		open = nil
	}
	for i := 1; i < n; i++ {
		p := held[i]
		if open != nil && p != open.Direction {
			closeTrade(i - 1)
		}
		if p == domain.PositionFlat {
			continue
		}
		exposed++
		if open == nil {
			open = &domain.Trade{Direction: p, EntryIndex: i}
			growth = 1
		}
		growth *= 1 + r.Returns[i]
	}
	if open != nil {
		closeTrade(n - 1)
	}

	sum.Exposure = float64(exposed) / float64(n)
	sum.TotalTrades = len(sum.Trades)
	if sum.TotalTrades > 0 {
		var wins int
		for _, t := range sum.Trades {
			if t.Return > 0 {
				wins++
			}
		}
		sum.WinRate = float64(wins) / float64(sum.TotalTrades)
	}
	return sum
}

func maxDrawdown(equity []float64) float64 {
	peak := 1.0
	var worst float64
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if dd := (peak - e) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

func sharpe(returns []float64) float64 {
	n := float64(len(returns))
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= n
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	std := math.Sqrt(variance / n)
	if std == 0 {
		return 0
	}
	return mean / std
}
