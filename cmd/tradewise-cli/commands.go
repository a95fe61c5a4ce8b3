package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tradewise/internal/config"
	"tradewise/internal/domain"
	"tradewise/internal/engine"
	"tradewise/internal/httpapi"
	"tradewise/internal/marketdata"
	"tradewise/internal/report"
	"tradewise/internal/store"
	"tradewise/internal/strategy"
	"tradewise/internal/util"
	"tradewise/pkg/tradewise"
)

// paramFlags collects repeated -param key=value flags.
type paramFlags []string

func (p *paramFlags) String() string     { return strings.Join(*p, ",") }
func (p *paramFlags) Set(v string) error { *p = append(*p, v); return nil }

// local holds the engine and stores used when no -server is given.
type local struct {
	engine *engine.Engine
	runs   *store.SQLiteStore
}

func (l *local) Close() {
	l.engine.Close()
	if l.runs != nil {
		l.runs.Close()
	}
}

// openLocal builds an in-process engine from the config file. source
// overrides backtest.source when non-empty; save=false skips the run store.
func openLocal(source string, save bool) (*local, error) {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if source != "" {
		cfg.Backtest.Source = strings.ToLower(source)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, "text")

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	src, err := marketdata.NewSource(cfg, bars, logger)
	if err != nil {
		return nil, err
	}
	presets, err := engine.LoadPresets(cfg.Strategies)
	if err != nil {
		return nil, err
	}

	l := &local{}
	opts := engine.Options{
		Source:  src,
		Presets: presets,
		Market:  cfg.Backtest.Market,
		Workers: 1,
		Limits:  engine.Limits{MaxRangeDays: cfg.Backtest.MaxRangeDays, MaxBars: cfg.Backtest.MaxBars},
		Logger:  logger,
	}
	if save {
		l.runs, err = store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening run store: %w", err)
		}
		opts.Runs = l.runs
	}
	l.engine = engine.New(opts)
	return l, nil
}

func runStrategies(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ExitOnError)
	server := fs.String("server", "", "tradewise-server base URL (default: local)")
	fs.Parse(args)

	var infos []tradewise.StrategyInfo
	if *server != "" {
		var err error
		infos, err = tradewise.NewClient(*server).ListStrategies(ctx)
		if err != nil {
			return err
		}
	} else {
		l, err := openLocal(config.SourceMock, false)
		if err != nil {
			return err
		}
		defer l.Close()
		infos = httpapi.StrategiesToWire(l.engine.Strategies())
	}

	rows := make([][]string, 0, len(infos))
	for _, s := range infos {
		name := s.Name
		if s.Preset {
			name += " (preset)"
		}
		rows = append(rows, []string{name, s.Kind, s.Policy, s.Description})
	}
	return report.WriteTable(os.Stdout, []string{"NAME", "KIND", "POLICY", "DEFINITION"}, rows)
}

func runBacktest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	var params paramFlags
	symbol := fs.String("symbol", "", "ticker symbol (required)")
	market := fs.String("market", "", "market (default from config)")
	start := fs.String("start", "", "first date, YYYY-MM-DD (default: one year before -end)")
	end := fs.String("end", "", "last date, YYYY-MM-DD (default: today)")
	strat := fs.String("strategy", "MovingAverage", "strategy family or preset name")
	fs.Var(&params, "param", "strategy parameter key=value (repeatable)")
	server := fs.String("server", "", "tradewise-server base URL (default: run locally)")
	source := fs.String("source", "", "local bar source: store, alpaca, cached or mock")
	save := fs.Bool("save", true, "persist local runs to the run store")
	trades := fs.Bool("trades", false, "print the trade list")
	csvPath := fs.String("csv", "", "write the per-bar trace to this CSV file")
	fs.Parse(args)

	if *symbol == "" {
		fs.Usage()
		return errors.New("-symbol is required")
	}
	endDate := time.Now().UTC()
	if *end != "" {
		var err error
		if endDate, err = httpapi.ParseDate(*end); err != nil {
			return err
		}
	}
	startDate := endDate.AddDate(-1, 0, 0)
	if *start != "" {
		var err error
		if startDate, err = httpapi.ParseDate(*start); err != nil {
			return err
		}
	}
	p, err := strategy.ParseParams(params)
	if err != nil {
		return err
	}

	var run *domain.BacktestRun
	if *server != "" {
		wire, err := tradewise.NewClient(*server).RunBacktest(ctx, tradewise.BacktestRequest{
			Symbol:   *symbol,
			Market:   *market,
			Start:    startDate.Format(tradewise.DateLayout),
			End:      endDate.Format(tradewise.DateLayout),
			Strategy: *strat,
			Params:   p,
		})
		if err != nil {
			return err
		}
		if run, err = httpapi.RunFromWire(*wire); err != nil {
			return err
		}
	} else {
		l, err := openLocal(*source, *save)
		if err != nil {
			return err
		}
		defer l.Close()
		run, err = l.engine.Run(ctx, engine.Request{
			Symbol:   *symbol,
			Market:   *market,
			Start:    startDate,
			End:      endDate,
			Strategy: *strat,
			Params:   p,
		})
		if err != nil {
			return err
		}
	}
	return printRun(os.Stdout, run, *trades, *csvPath)
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	server := fs.String("server", "", "tradewise-server base URL (default: local run store)")
	strat := fs.String("strategy", "", "filter by strategy family")
	symbol := fs.String("symbol", "", "filter by symbol")
	limit := fs.Int("limit", 20, "maximum number of runs")
	fs.Parse(args)

	var runs []domain.BacktestRun
	if *server != "" {
		list, err := tradewise.NewClient(*server).ListBacktests(ctx, tradewise.ListOptions{
			Strategy: *strat, Symbol: *symbol, Limit: *limit,
		})
		if err != nil {
			return err
		}
		for _, r := range list {
			runs = append(runs, httpapi.RunFromSummary(r))
		}
	} else {
		l, err := openLocal(config.SourceMock, true)
		if err != nil {
			return err
		}
		defer l.Close()
		runs, err = l.engine.List(ctx, store.RunFilter{
			Strategy: *strat, Symbol: strings.ToUpper(*symbol), Limit: *limit,
		})
		if err != nil {
			return err
		}
	}
	return report.WriteRuns(os.Stdout, runs)
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	server := fs.String("server", "", "tradewise-server base URL (default: local run store)")
	trades := fs.Bool("trades", true, "print the trade list")
	csvPath := fs.String("csv", "", "write the per-bar trace to this CSV file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: tradewise-cli show [options] <run-id>")
	}
	id := fs.Arg(0)

	var run *domain.BacktestRun
	if *server != "" {
		wire, err := tradewise.NewClient(*server).GetBacktest(ctx, id)
		if err != nil {
			return err
		}
		if run, err = httpapi.RunFromWire(*wire); err != nil {
			return err
		}
	} else {
		l, err := openLocal(config.SourceMock, true)
		if err != nil {
			return err
		}
		defer l.Close()
		if run, err = l.engine.Get(ctx, id); err != nil {
			return err
		}
	}
	return printRun(os.Stdout, run, *trades, *csvPath)
}

func printRun(w io.Writer, run *domain.BacktestRun, trades bool, csvPath string) error {
	if err := report.WriteSummary(w, run); err != nil {
		return err
	}
	if trades && len(run.Summary.Trades) > 0 {
		fmt.Fprintln(w)
		if err := report.WriteTrades(w, run); err != nil {
			return err
		}
	}
	if csvPath == "" {
		return nil
	}
	f, err := os.Create(csvPath)
	if err != nil {
		return err
	}
	if err := report.WriteTraceCSV(f, &run.Report); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\ntrace written to %s\n", csvPath)
	return nil
}
