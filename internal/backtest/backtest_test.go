package backtest_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewise/internal/backtest"
	"tradewise/internal/domain"
	"tradewise/internal/strategy"
	"tradewise/internal/strategy/builtins"
)

func seriesOf(t *testing.T, closes ...float64) *domain.Series {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: "TEST", Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	s, err := domain.NewSeries(bars)
	require.NoError(t, err)
	return s
}

func randomWalk(t *testing.T, n int, seed uint64) *domain.Series {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed))
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		price *= 1 + (rng.Float64()-0.5)*0.06
		closes[i] = price
	}
	return seriesOf(t, closes...)
}

// fixedStrategy replays a canned signal sequence.
type fixedStrategy struct {
	signals []domain.Signal
	policy  strategy.Policy
}

func (f *fixedStrategy) Name() string            { return "fixed" }
func (f *fixedStrategy) String() string          { return "fixed()" }
func (f *fixedStrategy) Policy() strategy.Policy { return f.policy }
func (f *fixedStrategy) Signals(*domain.Series) []domain.Signal {
	return append([]domain.Signal(nil), f.signals...)
}

func TestWorkedMovingAverageScenario(t *testing.T) {
	s, err := builtins.NewMovingAverage(3)
	require.NoError(t, err)

	report, err := backtest.Run(s, seriesOf(t, 10, 11, 12, 9, 15, 16, 17))
	require.NoError(t, err)

	wantReturns := []float64{0, 0, 0, -0.25, 0, 1.0 / 15, 1.0 / 16}
	require.Len(t, report.Returns, len(wantReturns))
	for i := range wantReturns {
		assert.InDelta(t, wantReturns[i], report.Returns[i], 1e-9, "return %d", i)
	}

	assert.InDelta(t, -0.1208, report.TotalReturn, 1e-4)

	wantEquity := []float64{1, 1, 1, 0.75, 0.75, 0.8, 0.85}
	for i := range wantEquity {
		assert.InDelta(t, wantEquity[i], report.EquityCurve[i], 1e-9, "equity %d", i)
	}

	wantPositions := []domain.Position{0, 0, 1, 0, 1, 1, 1}
	for i, p := range wantPositions {
		assert.Equal(t, p, report.Trace[i].Position, "position %d", i)
		assert.Equal(t, i, report.Trace[i].Index)
	}
	assert.Equal(t, "MovingAverage", report.Strategy)
	assert.Equal(t, "MovingAverage(window=3)", report.Params)
}

func TestResolveDirect(t *testing.T) {
	got := backtest.Resolve([]domain.Signal{0, 1, 0, 1, 1, 0}, strategy.PolicyDirect)
	assert.Equal(t, []domain.Position{0, 1, 0, 1, 1, 0}, got)
}

func TestResolvePersisted(t *testing.T) {
	got := backtest.Resolve([]domain.Signal{0, 0, 1, 0, 0, -1, 0, 1, 0}, strategy.PolicyPersisted)
	assert.Equal(t, []domain.Position{0, 0, 1, 1, 1, -1, -1, 1, 1}, got)
}

func TestResolvePersistedCarryForward(t *testing.T) {
	signals := make([]domain.Signal, 50)
	signals[7] = domain.SignalShort
	signals[30] = domain.SignalLong

	got := backtest.Resolve(signals, strategy.PolicyPersisted)
	for i := 0; i < 7; i++ {
		assert.Equal(t, domain.PositionFlat, got[i], "index %d", i)
	}
	for i := 7; i < 30; i++ {
		assert.Equal(t, domain.PositionShort, got[i], "index %d", i)
	}
	for i := 30; i < 50; i++ {
		assert.Equal(t, domain.PositionLong, got[i], "index %d", i)
	}
}

func TestPeriodReturnsUseLaggedPosition(t *testing.T) {
	closes := []float64{100, 110, 99}
	got := backtest.PeriodReturns(closes, []domain.Position{1, -1, 0})
	assert.Equal(t, 0.0, got[0])
	assert.InDelta(t, 0.10, got[1], 1e-12)
	assert.InDelta(t, 0.10, got[2], 1e-12) // short through a 10% drop
}

func TestNoLookahead(t *testing.T) {
	series := randomWalk(t, 60, 7)
	n := series.Len()
	base := make([]domain.Signal, n)
	for i := range base {
		base[i] = domain.Signal(i%3 - 1)
	}
	ref, err := backtest.Run(&fixedStrategy{signals: base, policy: strategy.PolicyDirect}, series)
	require.NoError(t, err)

	// Changing the signal on bar k must not change any return up to bar k.
	for _, k := range []int{0, 10, 31, n - 1} {
		altered := append([]domain.Signal(nil), base...)
		altered[k] = -altered[k]
		if altered[k] == base[k] {
			altered[k] = domain.SignalLong
		}
		got, err := backtest.Run(&fixedStrategy{signals: altered, policy: strategy.PolicyDirect}, series)
		require.NoError(t, err)
		for i := 0; i <= k; i++ {
			assert.Equal(t, ref.Returns[i], got.Returns[i], "k=%d return %d", k, i)
		}
	}
}

func TestRunInvariants(t *testing.T) {
	series := randomWalk(t, 250, 42)
	for _, kind := range strategy.Kinds {
		s, err := builtins.New(kind, nil)
		require.NoError(t, err)

		report, err := backtest.Run(s, series)
		require.NoError(t, err)

		assert.Len(t, report.EquityCurve, series.Len(), kind)
		assert.Len(t, report.Trace, series.Len(), kind)
		assert.Equal(t, 1.0, report.EquityCurve[0], kind)

		for i, tp := range report.Trace {
			if kind == strategy.KindMovingAverage {
				assert.Contains(t, []domain.Position{0, 1}, tp.Position, "%s position %d", kind, i)
			} else {
				assert.Contains(t, []domain.Position{-1, 0, 1}, tp.Position, "%s position %d", kind, i)
			}
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	series := randomWalk(t, 120, 3)
	for _, kind := range strategy.Kinds {
		s, err := builtins.New(kind, nil)
		require.NoError(t, err)
		a, err := backtest.Run(s, series)
		require.NoError(t, err)
		b, err := backtest.Run(s, series)
		require.NoError(t, err)
		assert.Equal(t, a, b, kind)
	}
}

func TestRunShortSeriesIsSoft(t *testing.T) {
	s, err := builtins.NewBollinger(20, 2)
	require.NoError(t, err)
	report, err := backtest.Run(s, seriesOf(t, 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.TotalReturn)
	assert.Equal(t, []float64{1, 1, 1}, report.EquityCurve)
}

func TestRunErrors(t *testing.T) {
	_, err := backtest.Run(nil, seriesOf(t, 1))
	assert.True(t, errors.Is(err, backtest.ErrNilStrategy))

	s, _ := builtins.NewMovingAverage(3)
	_, err = backtest.Run(s, nil)
	assert.True(t, errors.Is(err, domain.ErrEmptySeries))
}

func TestSummarizeWorkedScenario(t *testing.T) {
	s, _ := builtins.NewMovingAverage(3)
	report, err := backtest.Run(s, seriesOf(t, 10, 11, 12, 9, 15, 16, 17))
	require.NoError(t, err)

	sum := backtest.Summarize(report)
	assert.Equal(t, 7, sum.Bars)
	assert.InDelta(t, 0.85, sum.FinalEquity, 1e-9)
	assert.InDelta(t, 0.25, sum.MaxDrawdown, 1e-9)
	assert.InDelta(t, 3.0/7, sum.Exposure, 1e-9)
	require.Equal(t, 2, sum.TotalTrades)
	assert.Equal(t, domain.Trade{Direction: domain.PositionLong, EntryIndex: 3, ExitIndex: 3, Return: -0.25}, sum.Trades[0])
	assert.Equal(t, 5, sum.Trades[1].EntryIndex)
	assert.Equal(t, 6, sum.Trades[1].ExitIndex)
	assert.InDelta(t, 0.85/0.75-1, sum.Trades[1].Return, 1e-9)
	assert.InDelta(t, 0.5, sum.WinRate, 1e-12)
	assert.False(t, math.IsNaN(sum.SharpeRatio))
}

func TestSummarizeFlat(t *testing.T) {
	report, err := backtest.Run(&fixedStrategy{signals: make([]domain.Signal, 4)}, seriesOf(t, 1, 2, 3, 4))
	require.NoError(t, err)
	sum := backtest.Summarize(report)
	assert.Equal(t, 0, sum.TotalTrades)
	assert.Equal(t, 0.0, sum.SharpeRatio)
	assert.Equal(t, 0.0, sum.WinRate)
	assert.Equal(t, 1.0, sum.FinalEquity)
}

func TestSummarizeReversal(t *testing.T) {
	signals := []domain.Signal{1, 0, -1, 0, 0}
	report, err := backtest.Run(&fixedStrategy{signals: signals, policy: strategy.PolicyPersisted}, seriesOf(t, 10, 11, 12, 11, 10))
	require.NoError(t, err)
	sum := backtest.Summarize(report)
	require.Equal(t, 2, sum.TotalTrades)
	assert.Equal(t, domain.PositionLong, sum.Trades[0].Direction)
	assert.Equal(t, 1, sum.Trades[0].EntryIndex)
	assert.Equal(t, 2, sum.Trades[0].ExitIndex)
	assert.Equal(t, domain.PositionShort, sum.Trades[1].Direction)
	assert.Equal(t, 3, sum.Trades[1].EntryIndex)
	assert.Equal(t, 4, sum.Trades[1].ExitIndex)
	assert.Equal(t, 1.0, sum.WinRate)
}
