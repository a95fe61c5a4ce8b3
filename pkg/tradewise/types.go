// Package tradewise is the Go SDK for the tradewise-server HTTP API. It
// defines the JSON wire types shared by the server and its clients.
package tradewise

import "time"

// DateLayout is the format of every date field on the wire.
const DateLayout = "2006-01-02"

// BacktestRequest asks the server to run one backtest.
type BacktestRequest struct {
	Symbol string `json:"symbol"`
	Market string `json:"market,omitempty"`
	Start  string `json:"start"` // YYYY-MM-DD
	End    string `json:"end"`   // YYYY-MM-DD

	// Strategy is a preset name or one of "MovingAverage", "RSI",
	// "Bollinger" (case-insensitive, "MA" accepted).
	Strategy string         `json:"strategy"`
	Params   map[string]any `json:"params,omitempty"`
}

// TracePoint is one bar of the signal trace.
type TracePoint struct {
	Index    int     `json:"index"`
	Date     string  `json:"date"`
	Close    float64 `json:"close"`
	Signal   int     `json:"signal"`   // -1, 0 or 1
	Position int     `json:"position"` // -1, 0 or 1
}

// Report is the computed backtest result. TotalReturn is the simple sum of
// Returns; EquityCurve compounds them from 1.
type Report struct {
	Strategy    string       `json:"strategy"`
	Params      string       `json:"params"`
	TotalReturn float64      `json:"totalReturn"`
	Returns     []float64    `json:"returns"`
	EquityCurve []float64    `json:"equityCurve"`
	Trace       []TracePoint `json:"trace"`
}

// Trade is one contiguous run of a held position.
type Trade struct {
	Direction  int     `json:"direction"`
	EntryIndex int     `json:"entryIndex"`
	ExitIndex  int     `json:"exitIndex"`
	Return     float64 `json:"return"`
}

// Summary holds performance metrics for a run.
type Summary struct {
	Bars        int     `json:"bars"`
	TotalReturn float64 `json:"totalReturn"`
	FinalEquity float64 `json:"finalEquity"`
	MaxDrawdown float64 `json:"maxDrawdown"`
	SharpeRatio float64 `json:"sharpeRatio"`
	Exposure    float64 `json:"exposure"`
	TotalTrades int     `json:"totalTrades"`
	WinRate     float64 `json:"winRate"`
	Trades      []Trade `json:"trades,omitempty"`
}

// BacktestRun is a stored backtest with its full report.
type BacktestRun struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Market    string    `json:"market"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	CreatedAt time.Time `json:"createdAt"`
	Report    Report    `json:"report"`
	Summary   Summary   `json:"summary"`
}

// RunSummary is the list form of a BacktestRun.
type RunSummary struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Market      string    `json:"market"`
	Strategy    string    `json:"strategy"`
	Params      string    `json:"params"`
	Start       string    `json:"start"`
	End         string    `json:"end"`
	CreatedAt   time.Time `json:"createdAt"`
	TotalReturn float64   `json:"totalReturn"`
	FinalEquity float64   `json:"finalEquity"`
	TotalTrades int       `json:"totalTrades"`
}

// RunList is the response of GET /api/backtests.
type RunList struct {
	Runs []RunSummary `json:"runs"`
}

// ListOptions filters ListBacktests.
type ListOptions struct {
	Strategy string
	Symbol   string
	Limit    int
}

// StrategyInfo describes a strategy family or a named preset.
type StrategyInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Policy      string `json:"policy"`
	Preset      bool   `json:"preset"`
}

// StrategyList is the response of GET /api/strategies.
type StrategyList struct {
	Strategies []StrategyInfo `json:"strategies"`
}

// SymbolList is the response of GET /api/symbols.
type SymbolList struct {
	Market  string   `json:"market"`
	Source  string   `json:"source"`
	Symbols []string `json:"symbols"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
