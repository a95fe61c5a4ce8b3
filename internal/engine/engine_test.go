package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"tradewise/internal/config"
	"tradewise/internal/domain"
	"tradewise/internal/marketdata"
	"tradewise/internal/store"
	"tradewise/internal/strategy"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *store.SQLiteStore) {
	t.Helper()
	runs, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	if opts.Source == nil {
		opts.Source = marketdata.NewMockSource(42)
	}
	opts.Runs = runs
	if opts.Workers == 0 {
		opts.Workers = 2
	}
	e := New(opts)
	t.Cleanup(e.Close)
	return e, runs
}

func request(strategy string, params strategy.Params) Request {
	return Request{
		Symbol:   "aapl",
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Strategy: strategy,
		Params:   params,
	}
}

func TestNewEngine(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	if e == nil {
		t.Fatal("New returned nil")
	}
	if e.SourceName() != "mock" {
		t.Errorf("SourceName() = %q, want mock", e.SourceName())
	}
}

func TestEngineRunPersists(t *testing.T) {
	e, runs := newTestEngine(t, Options{})
	ctx := context.Background()

	run, err := e.Run(ctx, request("RSI", strategy.Params{"period": 7}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.ID == "" {
		t.Error("Run returned an empty ID")
	}
	if run.Symbol != "AAPL" || run.Market != "us" {
		t.Errorf("run = %s/%s, want AAPL/us", run.Symbol, run.Market)
	}
	if run.Report.Params != "RSI(period=7, oversold=30, overbought=70)" {
		t.Errorf("Report.Params = %q", run.Report.Params)
	}
	if run.Summary.Bars != len(run.Report.EquityCurve) {
		t.Errorf("Summary.Bars = %d, want %d", run.Summary.Bars, len(run.Report.EquityCurve))
	}

	stored, err := runs.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Report.TotalReturn != run.Report.TotalReturn {
		t.Errorf("stored TotalReturn = %v, want %v", stored.Report.TotalReturn, run.Report.TotalReturn)
	}

	got, err := e.Get(ctx, run.ID)
	if err != nil || got.ID != run.ID {
		t.Errorf("Get = %v, %v", got, err)
	}
	list, err := e.List(ctx, store.RunFilter{Strategy: "RSI"})
	if err != nil || len(list) != 1 {
		t.Errorf("List = %d runs, %v", len(list), err)
	}
}

func TestEngineListNormalizesFilter(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	if _, err := e.Run(ctx, request("RSI", nil)); err != nil {
		t.Fatalf("Run(RSI): %v", err)
	}
	if _, err := e.Run(ctx, request("MovingAverage", nil)); err != nil {
		t.Fatalf("Run(MovingAverage): %v", err)
	}

	tests := []struct {
		filter store.RunFilter
		want   int
	}{
		{store.RunFilter{Strategy: "rsi"}, 1},
		{store.RunFilter{Strategy: " RSI "}, 1},
		{store.RunFilter{Strategy: "MA"}, 1},
		{store.RunFilter{Strategy: "sma"}, 1},
		{store.RunFilter{Strategy: "ma-20"}, 1},
		{store.RunFilter{Strategy: "bb"}, 0},
		{store.RunFilter{Symbol: "aapl"}, 2},
		{store.RunFilter{Symbol: " AAPL "}, 2},
		{store.RunFilter{Strategy: "rsi-14", Symbol: "msft"}, 0},
	}
	for _, tt := range tests {
		list, err := e.List(ctx, tt.filter)
		if err != nil {
			t.Errorf("List(%+v): %v", tt.filter, err)
			continue
		}
		if len(list) != tt.want {
			t.Errorf("List(%+v) = %d runs, want %d", tt.filter, len(list), tt.want)
		}
	}

	if _, err := e.List(ctx, store.RunFilter{Strategy: "MACD"}); !IsInvalid(err) {
		t.Errorf("List(MACD) error = %v, want invalid request", err)
	}
}

func TestEngineRunDeterministic(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	a, err := e.Run(context.Background(), request("Bollinger", nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := e.Run(context.Background(), request("bollinger", nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.ID == b.ID {
		t.Error("two runs share an ID")
	}
	if a.Report.TotalReturn != b.Report.TotalReturn {
		t.Errorf("TotalReturn differs: %v vs %v", a.Report.TotalReturn, b.Report.TotalReturn)
	}
}

func TestEngineRunPreset(t *testing.T) {
	presets, err := LoadPresets([]config.Preset{
		{Name: "quick", Strategy: "MA", Params: map[string]any{"window": 5}},
	})
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}
	e, _ := newTestEngine(t, Options{Presets: presets})

	run, err := e.Run(context.Background(), request("quick", strategy.Params{"window": 50}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Report.Params != "MovingAverage(window=5)" {
		t.Errorf("preset params = %q, want window=5", run.Report.Params)
	}
}

func TestLoadPresetsInvalid(t *testing.T) {
	_, err := LoadPresets([]config.Preset{{Name: "bad", Strategy: "RSI", Params: map[string]any{"oversold": 90}}})
	if !errors.Is(err, strategy.ErrInvalidParams) {
		t.Errorf("LoadPresets error = %v, want ErrInvalidParams", err)
	}
}

func TestEngineRunInvalid(t *testing.T) {
	e, _ := newTestEngine(t, Options{Limits: Limits{MaxRangeDays: 400, MaxBars: 100}})
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{"no symbol", Request{Strategy: "RSI", Start: time.Now().AddDate(0, -1, 0), End: time.Now()}},
		{"reversed range", func() Request {
			r := request("RSI", nil)
			r.Start, r.End = r.End, r.Start
			return r
		}()},
		{"unknown strategy", request("Ichimoku", nil)},
		{"bad params", request("MA", strategy.Params{"window": -1})},
		{"range too long", func() Request {
			r := request("RSI", nil)
			r.Start = r.End.AddDate(-2, 0, 0)
			return r
		}()},
		{"too many bars", func() Request {
			r := request("RSI", nil)
			r.Start = r.End.AddDate(-1, 0, 0)
			return r
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Run(ctx, tt.req)
			if !IsInvalid(err) {
				t.Errorf("Run error = %v, want an invalid-request error", err)
			}
		})
	}
}

func TestEngineRunNoData(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	req := request("RSI", nil)
	req.Start = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) // Saturday
	req.End = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)   // Sunday

	_, err := e.Run(context.Background(), req)
	if !IsNotFound(err) {
		t.Errorf("Run error = %v, want not-found", err)
	}
}

func TestEngineGetMissing(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	_, err := e.Get(context.Background(), "nope")
	if !IsNotFound(err) {
		t.Errorf("Get error = %v, want not-found", err)
	}
}

func TestEngineStrategies(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	infos := e.Strategies()
	if len(infos) < 3 {
		t.Fatalf("Strategies returned %d entries", len(infos))
	}
	if infos[0].Name != "MovingAverage" || infos[0].Policy != "direct" || infos[0].Preset {
		t.Errorf("first entry = %+v", infos[0])
	}
	if infos[1].Description != "RSI(period=14, oversold=30, overbought=70)" {
		t.Errorf("RSI description = %q", infos[1].Description)
	}
	var presets int
	for _, info := range infos {
		if info.Preset {
			presets++
		}
	}
	if presets == 0 {
		t.Error("no presets listed")
	}
}

func TestEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, _ := newTestEngine(t, Options{Metrics: NewMetrics(reg)})
	ctx := context.Background()

	if _, err := e.Run(ctx, request("MA", nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, _ = e.Run(ctx, request("MA", strategy.Params{"window": 0}))

	if got := testutil.ToFloat64(e.metrics.runs.WithLabelValues("MovingAverage", OutcomeOK)); got != 1 {
		t.Errorf("ok counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.metrics.runs.WithLabelValues("MovingAverage", OutcomeInvalid)); got != 1 {
		t.Errorf("invalid counter = %v, want 1", got)
	}
	if n, err := testutil.GatherAndCount(reg, "tradewise_backtest_bars"); err != nil || n != 1 {
		t.Errorf("bars histogram count = %d, %v", n, err)
	}
}

func TestLimits(t *testing.T) {
	l := Limits{MaxRangeDays: 10, MaxBars: 5}
	if err := l.CheckRange(10); err != nil {
		t.Errorf("CheckRange(10) = %v", err)
	}
	err := l.CheckRange(11)
	if !errors.Is(err, ErrLimitExceeded) || !strings.Contains(err.Error(), "range days 11") {
		t.Errorf("CheckRange(11) = %v", err)
	}
	if err := l.CheckBars(6); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("CheckBars(6) = %v", err)
	}
	if err := (Limits{}).CheckBars(1 << 20); err != nil {
		t.Errorf("zero Limits rejected work: %v", err)
	}
}

func TestPoolDo(t *testing.T) {
	p := NewPool(3, 0, nil)
	defer p.Close()

	var count atomic.Int64
	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			done <- p.Do(context.Background(), func() error {
				count.Add(1)
				return nil
			})
		}()
	}
	for i := 0; i < 20; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if count.Load() != 20 {
		t.Errorf("ran %d jobs, want 20", count.Load())
	}
}

func TestPoolDoPropagatesErrorsAndPanics(t *testing.T) {
	p := NewPool(1, 1, nil)
	defer p.Close()

	sentinel := errors.New("boom")
	if err := p.Do(context.Background(), func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("Do error = %v, want %v", err, sentinel)
	}
	if err := p.Do(context.Background(), func() error { panic("bad") }); err == nil {
		t.Error("Do swallowed a panic")
	}
	// The worker survives the panic.
	if err := p.Do(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("Do after panic = %v", err)
	}
}

func TestPoolDoCancelled(t *testing.T) {
	p := NewPool(1, 0, nil)
	defer p.Close()

	started, release := make(chan struct{}), make(chan struct{})
	go p.Do(context.Background(), func() error {
		close(started)
		<-release
		return nil
	})
	defer close(release)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Do(ctx, func() error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do error = %v, want DeadlineExceeded", err)
	}
}

func TestPoolClosed(t *testing.T) {
	p := NewPool(1, 0, nil)
	p.Close()
	p.Close()
	if err := p.Do(context.Background(), func() error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Do after Close = %v, want ErrPoolClosed", err)
	}
}

// staticSource serves fixed bars.
type staticSource struct{ bars []domain.Bar }

func (s staticSource) Name() string { return "static" }
func (s staticSource) Bars(context.Context, string, string, marketdata.DateRange) ([]domain.Bar, error) {
	return s.bars, nil
}

func TestEngineRejectsUnorderedBars(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	src := staticSource{bars: []domain.Bar{
		{Symbol: "X", Timestamp: ts, Open: 1, High: 1, Low: 1, Close: 1},
		{Symbol: "X", Timestamp: ts, Open: 1, High: 1, Low: 1, Close: 1},
	}}
	e, _ := newTestEngine(t, Options{Source: src})
	_, err := e.Run(context.Background(), request("MA", nil))
	if !errors.Is(err, domain.ErrUnorderedSeries) {
		t.Errorf("Run error = %v, want ErrUnorderedSeries", err)
	}
}
