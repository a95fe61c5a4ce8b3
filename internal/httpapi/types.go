package httpapi

import (
	"fmt"
	"strings"
	"time"

	"tradewise/internal/domain"
	"tradewise/internal/engine"
	"tradewise/internal/strategy"
	"tradewise/pkg/tradewise"
)

// ParseDate accepts "2006-01-02" or RFC 3339 and returns a UTC time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(tradewise.DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: want YYYY-MM-DD", engine.ErrInvalidRequest, s)
	}
	return t.UTC(), nil
}

// RequestFromWire converts a wire request into an engine request.
func RequestFromWire(req tradewise.BacktestRequest) (engine.Request, error) {
	if strings.TrimSpace(req.Strategy) == "" {
		return engine.Request{}, fmt.Errorf("%w: strategy is required", engine.ErrInvalidRequest)
	}
	start, err := ParseDate(req.Start)
	if err != nil {
		return engine.Request{}, err
	}
	end, err := ParseDate(req.End)
	if err != nil {
		return engine.Request{}, err
	}
	return engine.Request{
		Symbol:   req.Symbol,
		Market:   req.Market,
		Start:    start,
		End:      end,
		Strategy: req.Strategy,
		Params:   strategy.Params(req.Params),
	}, nil
}

// RunToWire converts a stored run to its JSON form.
func RunToWire(run *domain.BacktestRun) tradewise.BacktestRun {
	r := run.Report
	trace := make([]tradewise.TracePoint, len(r.Trace))
	for i, p := range r.Trace {
		trace[i] = tradewise.TracePoint{
			Index:    p.Index,
			Date:     p.Timestamp.Format(tradewise.DateLayout),
			Close:    p.Close,
			Signal:   int(p.Signal),
			Position: int(p.Position),
		}
	}
	return tradewise.BacktestRun{
		ID:        run.ID,
		Symbol:    run.Symbol,
		Market:    run.Market,
		Start:     run.Start.Format(tradewise.DateLayout),
		End:       run.End.Format(tradewise.DateLayout),
		CreatedAt: run.CreatedAt,
		Report: tradewise.Report{
			Strategy:    r.Strategy,
			Params:      r.Params,
			TotalReturn: r.TotalReturn,
			Returns:     nonNil(r.Returns),
			EquityCurve: nonNil(r.EquityCurve),
			Trace:       trace,
		},
		Summary: SummaryToWire(run.Summary),
	}
}

// SummaryToWire converts performance metrics to their JSON form.
func SummaryToWire(s domain.Summary) tradewise.Summary {
	out := tradewise.Summary{
		Bars:        s.Bars,
		TotalReturn: s.TotalReturn,
		FinalEquity: s.FinalEquity,
		MaxDrawdown: s.MaxDrawdown,
		SharpeRatio: s.SharpeRatio,
		Exposure:    s.Exposure,
		TotalTrades: s.TotalTrades,
		WinRate:     s.WinRate,
	}
	for _, t := range s.Trades {
		out.Trades = append(out.Trades, tradewise.Trade{
			Direction:  int(t.Direction),
			EntryIndex: t.EntryIndex,
			ExitIndex:  t.ExitIndex,
			Return:     t.Return,
		})
	}
	return out
}

// RunSummaryToWire converts a run to its list form.
func RunSummaryToWire(run *domain.BacktestRun) tradewise.RunSummary {
	return tradewise.RunSummary{
		ID:          run.ID,
		Symbol:      run.Symbol,
		Market:      run.Market,
		Strategy:    run.Report.Strategy,
		Params:      run.Report.Params,
		Start:       run.Start.Format(tradewise.DateLayout),
		End:         run.End.Format(tradewise.DateLayout),
		CreatedAt:   run.CreatedAt,
		TotalReturn: run.Report.TotalReturn,
		FinalEquity: run.Summary.FinalEquity,
		TotalTrades: run.Summary.TotalTrades,
	}
}

// StrategiesToWire converts engine strategy descriptions.
func StrategiesToWire(infos []engine.StrategyInfo) []tradewise.StrategyInfo {
	out := make([]tradewise.StrategyInfo, len(infos))
	for i, s := range infos {
		out[i] = tradewise.StrategyInfo{
			Name:        s.Name,
			Kind:        s.Kind,
			Description: s.Description,
			Policy:      s.Policy,
			Preset:      s.Preset,
		}
	}
	return out
}

func nonNil(xs []float64) []float64 {
	if xs == nil {
		return []float64{}
	}
	return xs
}

// RunFromWire converts a wire run back to the domain form, for clients that
// render runs fetched from a server.
func RunFromWire(w tradewise.BacktestRun) (*domain.BacktestRun, error) {
	start, err := ParseDate(w.Start)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(w.End)
	if err != nil {
		return nil, err
	}
	trace := make([]domain.TracePoint, len(w.Report.Trace))
	for i, p := range w.Report.Trace {
		ts, err := ParseDate(p.Date)
		if err != nil {
			return nil, err
		}
		trace[i] = domain.TracePoint{
			Index:     p.Index,
			Timestamp: ts,
			Close:     p.Close,
			Signal:    domain.Signal(p.Signal),
			Position:  domain.Position(p.Position),
		}
	}
	s := w.Summary
	run := &domain.BacktestRun{
		ID:        w.ID,
		Symbol:    w.Symbol,
		Market:    w.Market,
		Start:     start,
		End:       end,
		CreatedAt: w.CreatedAt,
		Report: domain.Report{
			Strategy:    w.Report.Strategy,
			Params:      w.Report.Params,
			TotalReturn: w.Report.TotalReturn,
			Returns:     w.Report.Returns,
			EquityCurve: w.Report.EquityCurve,
			Trace:       trace,
		},
		Summary: domain.Summary{
			Bars:        s.Bars,
			TotalReturn: s.TotalReturn,
			FinalEquity: s.FinalEquity,
			MaxDrawdown: s.MaxDrawdown,
			SharpeRatio: s.SharpeRatio,
			Exposure:    s.Exposure,
			TotalTrades: s.TotalTrades,
			WinRate:     s.WinRate,
		},
	}
	for _, t := range s.Trades {
		run.Summary.Trades = append(run.Summary.Trades, domain.Trade{
			Direction:  domain.Position(t.Direction),
			EntryIndex: t.EntryIndex,
			ExitIndex:  t.ExitIndex,
			Return:     t.Return,
		})
	}
	return run, nil
}

// RunFromSummary builds the partial domain run a list entry describes.
func RunFromSummary(r tradewise.RunSummary) domain.BacktestRun {
	start, _ := ParseDate(r.Start)
	end, _ := ParseDate(r.End)
	return domain.BacktestRun{
		ID:        r.ID,
		Symbol:    r.Symbol,
		Market:    r.Market,
		Start:     start,
		End:       end,
		CreatedAt: r.CreatedAt,
		Report: domain.Report{
			Strategy:    r.Strategy,
			Params:      r.Params,
			TotalReturn: r.TotalReturn,
		},
		Summary: domain.Summary{
			TotalReturn: r.TotalReturn,
			FinalEquity: r.FinalEquity,
			TotalTrades: r.TotalTrades,
		},
	}
}
