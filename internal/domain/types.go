// Package domain defines the core value types shared across tradewise: price
// bars and series, strategy signals, held positions and backtest reports.
package domain

import "time"

// Market identifies the exchange group a symbol trades on. Only MarketUS has
// an upstream source; other markets are served from gathered bars.
type Market string

const MarketUS Market = "us"

// Bar is one OHLCV price observation.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Signal is the raw directional output of a strategy rule for one bar.
type Signal int8

const (
	SignalShort Signal = -1
	SignalNone  Signal = 0
	SignalLong  Signal = 1
)

// String returns "long", "short" or "none".
func (s Signal) String() string {
	switch s {
	case SignalLong:
		return "long"
	case SignalShort:
		return "short"
	default:
		return "none"
	}
}

// Position is the holding direction derived from signals.
type Position int8

const (
	PositionShort Position = -1
	PositionFlat  Position = 0
	PositionLong  Position = 1
)

// String returns "long", "short" or "flat".
func (p Position) String() string {
	switch p {
	case PositionLong:
		return "long"
	case PositionShort:
		return "short"
	default:
		return "flat"
	}
}

// TracePoint pairs a bar with the signal produced on it and the position
// held after it.
type TracePoint struct {
	Index     int
	Timestamp time.Time
	Close     float64
	Signal    Signal
	Position  Position
}

// Report is the output of a single backtest. TotalReturn is the simple sum of
// Returns, while EquityCurve compounds them; the two are reported separately.
type Report struct {
	Strategy    string
	Params      string
	TotalReturn float64
	Returns     []float64
	EquityCurve []float64
	Trace       []TracePoint
}

// Trade is one contiguous run of a non-flat position as seen by the returns
// engine (i.e. after the one-bar lag).
type Trade struct {
	Direction  Position
	EntryIndex int
	ExitIndex  int
	Return     float64
}

// Summary holds performance metrics derived from a Report.
type Summary struct {
	Bars        int
	TotalReturn float64
	FinalEquity float64
	MaxDrawdown float64
	SharpeRatio float64
	Exposure    float64
	TotalTrades int
	WinRate     float64
	Trades      []Trade
}

// BacktestRun is a persisted backtest: the request echo plus its report and
// summary.
type BacktestRun struct {
	ID        string
	Symbol    string
	Market    string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
	Report    Report
	Summary   Summary
}
