package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"tradewise/internal/domain"
)

const dateLayout = "2006-01-02"

// WriteSummary prints a run's headline metrics as an aligned table.
func WriteSummary(w io.Writer, run *domain.BacktestRun) error {
	st := newStyles(w)
	t := newTable(st)
	s := run.Summary
	row := func(label, value string, style lipgloss.Style) {
		t.add(cell{text: label, style: st.label}, cell{text: value, style: style})
	}
	if run.ID != "" {
		row("Run", run.ID, st.dim)
	}
	row("Symbol", fmt.Sprintf("%s (%s)", run.Symbol, run.Market), st.plain)
	row("Period", fmt.Sprintf("%s .. %s (%s bars)", run.Start.Format(dateLayout), run.End.Format(dateLayout), FormatInt(s.Bars)), st.plain)
	row("Strategy", run.Report.Params, st.plain)
	row("Total return (sum)", FormatPercent(run.Report.TotalReturn), st.signed(run.Report.TotalReturn))
	row("Compounded return", FormatPercent(s.FinalEquity-1), st.signed(s.FinalEquity-1))
	row("Final equity", FormatRatio(s.FinalEquity, 4), st.plain)
	row("Max drawdown", FormatPercent(-s.MaxDrawdown), st.signed(-s.MaxDrawdown))
	row("Sharpe (per bar)", FormatRatio(s.SharpeRatio, 3), st.plain)
	row("Exposure", FormatPercent(s.Exposure), st.plain)
	row("Trades", fmt.Sprintf("%d (win rate %s)", s.TotalTrades, FormatPercent(s.WinRate)), st.plain)
	return t.write(w)
}

// WriteTrades prints one line per trade. Dates come from the run's trace.
func WriteTrades(w io.Writer, run *domain.BacktestRun) error {
	st := newStyles(w)
	t := newTable(st, "#", "Side", "Entry", "Exit", "Bars", "Return").alignRight(0, 1, 2, 3, 4, 5)
	trace := run.Report.Trace
	for i, tr := range run.Summary.Trades {
		entry, exit := "-", "-"
		if tr.EntryIndex < len(trace) {
			entry = trace[tr.EntryIndex].Timestamp.Format(dateLayout)
		}
		if tr.ExitIndex < len(trace) {
			exit = trace[tr.ExitIndex].Timestamp.Format(dateLayout)
		}
		t.add(
			cell{text: strconv.Itoa(i + 1), style: st.dim},
			cell{text: tr.Direction.String(), style: st.plain},
			cell{text: entry, style: st.plain},
			cell{text: exit, style: st.plain},
			cell{text: strconv.Itoa(tr.ExitIndex - tr.EntryIndex + 1), style: st.plain},
			cell{text: FormatPercent(tr.Return), style: st.signed(tr.Return)},
		)
	}
	return t.write(w)
}

// WriteRuns prints stored runs, one per line.
func WriteRuns(w io.Writer, runs []domain.BacktestRun) error {
	st := newStyles(w)
	t := newTable(st, "ID", "CREATED", "SYMBOL", "STRATEGY", "PERIOD", "TOTAL RETURN", "TRADES").alignRight(5, 6)
	for _, r := range runs {
		t.add(
			cell{text: r.ID, style: st.dim},
			cell{text: r.CreatedAt.Format("2006-01-02 15:04"), style: st.plain},
			cell{text: r.Symbol, style: st.label},
			cell{text: r.Report.Params, style: st.plain},
			cell{text: r.Start.Format(dateLayout) + ".." + r.End.Format(dateLayout), style: st.plain},
			cell{text: FormatPercent(r.Report.TotalReturn), style: st.signed(r.Report.TotalReturn)},
			cell{text: strconv.Itoa(r.Summary.TotalTrades), style: st.plain},
		)
	}
	return t.write(w)
}

// TraceHeader is the header row written by WriteTraceCSV.
var TraceHeader = []string{"index", "date", "close", "signal", "position", "return", "equity"}

// WriteTraceCSV writes the per-bar trace with its period return and equity.
func WriteTraceCSV(w io.Writer, r *domain.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TraceHeader); err != nil {
		return err
	}
	for i, p := range r.Trace {
		var ret, eq float64
		if i < len(r.Returns) {
			ret = r.Returns[i]
		}
		if i < len(r.EquityCurve) {
			eq = r.EquityCurve[i]
		}
		rec := []string{
			strconv.Itoa(p.Index),
			p.Timestamp.Format(dateLayout),
			strconv.FormatFloat(p.Close, 'f', -1, 64),
			strconv.Itoa(int(p.Signal)),
			strconv.Itoa(int(p.Position)),
			strconv.FormatFloat(ret, 'f', -1, 64),
			strconv.FormatFloat(eq, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
