// Package engine coordinates a backtest request end to end: strategy
// resolution, request limits, bar loading, the computation itself on a
// bounded worker pool, persistence and metrics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradewise/internal/backtest"
	"tradewise/internal/domain"
	"tradewise/internal/marketdata"
	"tradewise/internal/store"
	"tradewise/internal/strategy"
	"tradewise/internal/strategy/builtins"
)

// ErrInvalidRequest is returned for malformed requests.
var ErrInvalidRequest = errors.New("invalid backtest request")

// Request describes one backtest.
type Request struct {
	Symbol string
	Market string // defaults to the engine's market
	Start  time.Time
	End    time.Time

	// Strategy is a preset name or a strategy selector such as "RSI".
	// Params apply only to selectors.
	Strategy string
	Params   strategy.Params
}

// Options configures an Engine.
type Options struct {
	Source  marketdata.Source
	Runs    store.RunStore     // nil disables history
	Presets *strategy.Registry // nil uses builtins.Presets()
	Market  string
	Workers int
	Limits  Limits
	Metrics *Metrics
	Logger  *slog.Logger
}

// Engine runs backtests.
type Engine struct {
	source  marketdata.Source
	runs    store.RunStore
	presets *strategy.Registry
	market  string
	pool    *Pool
	limits  Limits
	metrics *Metrics
	log     *slog.Logger
	now     func() time.Time
}

// New creates an Engine and starts its worker pool. Call Close when done.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	presets := opts.Presets
	if presets == nil {
		presets = builtins.Presets()
	}
	market := opts.Market
	if market == "" {
		market = string(domain.MarketUS)
	}
	workers := max(opts.Workers, 1)
	return &Engine{
		source:  opts.Source,
		runs:    opts.Runs,
		presets: presets,
		market:  market,
		pool:    NewPool(workers, workers*4, logger.With("component", "pool")),
		limits:  opts.Limits,
		metrics: opts.Metrics,
		log:     logger.With("component", "engine"),
		now:     time.Now,
	}
}

// Close stops the worker pool.
func (e *Engine) Close() {
	e.pool.Close()
}

// Resolve returns the strategy for a preset name or selector.
func (e *Engine) Resolve(name string, params strategy.Params) (strategy.Strategy, error) {
	if s, ok := e.presets.Get(name); ok {
		return s, nil
	}
	return builtins.Parse(name, params)
}

// Run executes req and returns the persisted run.
func (e *Engine) Run(ctx context.Context, req Request) (*domain.BacktestRun, error) {
	start := e.now()
	label := metricLabel(req.Strategy)

	run, bars, err := e.run(ctx, req)
	e.metrics.observe(label, outcomeOf(err), e.now().Sub(start), bars)
	if err != nil {
		e.log.Warn("backtest failed", "symbol", req.Symbol, "strategy", req.Strategy, "err", err)
		return nil, err
	}
	e.log.Info("backtest complete",
		"id", run.ID,
		"symbol", run.Symbol,
		"strategy", run.Report.Params,
		"bars", bars,
		"total_return", run.Report.TotalReturn,
		"elapsed", e.now().Sub(start).Round(time.Millisecond),
	)
	return run, nil
}

func (e *Engine) run(ctx context.Context, req Request) (*domain.BacktestRun, int, error) {
	symbol := marketdata.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, 0, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	market := strings.ToLower(req.Market)
	if market == "" {
		market = e.market
	}
	r := marketdata.DateRange{Start: req.Start, End: req.End}
	if err := r.Validate(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	s, err := e.Resolve(req.Strategy, req.Params)
	if err != nil {
		return nil, 0, err
	}
	if err := e.limits.CheckRange(r.Days()); err != nil {
		return nil, 0, err
	}

	bars, err := e.source.Bars(ctx, symbol, market, r)
	if err != nil {
		return nil, 0, fmt.Errorf("loading bars from %s: %w", e.source.Name(), err)
	}
	if err := e.limits.CheckBars(len(bars)); err != nil {
		return nil, len(bars), err
	}
	series, err := domain.NewSeries(bars)
	if err != nil {
		return nil, len(bars), err
	}

	var (
		report  *domain.Report
		summary domain.Summary
	)
	err = e.pool.Do(ctx, func() error {
		var err error
		report, err = backtest.Run(s, series)
		if err != nil {
			return err
		}
		summary = backtest.Summarize(report)
		return nil
	})
	if err != nil {
		return nil, series.Len(), err
	}

	run := &domain.BacktestRun{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Market:    market,
		Start:     series.Start(),
		End:       series.End(),
		CreatedAt: e.now().UTC(),
		Report:    *report,
		Summary:   summary,
	}
	if e.runs != nil {
		if err := e.runs.SaveRun(ctx, run); err != nil {
			return nil, series.Len(), fmt.Errorf("saving run: %w", err)
		}
	}
	return run, series.Len(), nil
}

// Get returns a stored run.
func (e *Engine) Get(ctx context.Context, id string) (*domain.BacktestRun, error) {
	if e.runs == nil {
		return nil, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	return e.runs.GetRun(ctx, id)
}

// List returns stored runs, newest first. The strategy filter accepts any
// family alias or preset name and the symbol filter ignores case.
func (e *Engine) List(ctx context.Context, f store.RunFilter) ([]domain.BacktestRun, error) {
	if f.Strategy != "" {
		family, err := e.familyOf(f.Strategy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		f.Strategy = family
	}
	f.Symbol = marketdata.NormalizeSymbol(f.Symbol)
	if e.runs == nil {
		return nil, nil
	}
	return e.runs.ListRuns(ctx, f)
}

// familyOf maps a preset name or family selector to the stored family name.
func (e *Engine) familyOf(name string) (string, error) {
	if s, ok := e.presets.Get(name); ok {
		return s.Name(), nil
	}
	kind, err := strategy.ParseKind(name)
	if err != nil {
		return "", err
	}
	return string(kind), nil
}

// StrategyInfo describes a strategy family or preset.
type StrategyInfo struct {
	Name        string
	Kind        string
	Description string
	Policy      string
	Preset      bool
}

// Strategies lists every family with its default parameters, followed by the
// presets in name order.
func (e *Engine) Strategies() []StrategyInfo {
	var out []StrategyInfo
	for _, kind := range strategy.Kinds {
		s, err := builtins.New(kind, nil)
		if err != nil {
			continue
		}
		out = append(out, StrategyInfo{
			Name:        string(kind),
			Kind:        string(kind),
			Description: s.String(),
			Policy:      s.Policy().String(),
		})
	}
	for _, name := range e.presets.List() {
		s, _ := e.presets.Get(name)
		out = append(out, StrategyInfo{
			Name:        name,
			Kind:        s.Name(),
			Description: s.String(),
			Policy:      s.Policy().String(),
			Preset:      true,
		})
	}
	return out
}

// SourceName returns the name of the configured bar source.
func (e *Engine) SourceName() string { return e.source.Name() }

// IsInvalid reports whether err was caused by the request itself.
func IsInvalid(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest,
		ErrLimitExceeded,
		strategy.ErrInvalidParams,
		strategy.ErrUnknownStrategy,
		domain.ErrEmptySeries,
		domain.ErrUnorderedSeries,
		domain.ErrInvalidBar,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err means the requested run or data is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, marketdata.ErrNoData)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case IsInvalid(err):
		return OutcomeInvalid
	case errors.Is(err, marketdata.ErrNoData):
		return OutcomeNoData
	default:
		return OutcomeError
	}
}

// metricLabel bounds label cardinality to the known families.
func metricLabel(selector string) string {
	if kind, err := strategy.ParseKind(selector); err == nil {
		return string(kind)
	}
	return "preset"
}
