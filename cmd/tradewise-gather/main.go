// tradewise-gather backfills and updates daily bars in the local Parquet
// store from Alpaca, so backtests can run with backtest.source=store.
//
// Usage:
//
//	go run ./cmd/tradewise-gather -symbols AAPL,MSFT
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tradewise/internal/config"
	"tradewise/internal/gather"
	"tradewise/internal/httpapi"
	"tradewise/internal/marketdata"
	"tradewise/internal/store"
	"tradewise/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols (default: gather.symbols from config)")
	start := flag.String("start", "", "first date, YYYY-MM-DD (default: gather.start_date)")
	end := flag.String("end", "", "last date, YYYY-MM-DD (default: latest finished trading day)")
	workers := flag.Int("workers", 0, "concurrent symbols (default: gather.max_workers)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatal("alpaca api key and secret are required")
	}

	// Dual logger: stdout + /tmp log file.
	logger, closer, logPath, err := util.NewDailyFileLogger("tradewise-gather", cfg.Logging.Level)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer closer.Close()
	util.SetDefault(logger)

	syms := cfg.Gather.Symbols
	if *symbols != "" {
		syms = strings.Split(*symbols, ",")
	}
	if len(syms) == 0 {
		log.Fatal("no symbols: pass -symbols or set gather.symbols")
	}

	startStr := cfg.Gather.StartDate
	if *start != "" {
		startStr = *start
	}
	startDate, err := httpapi.ParseDate(startStr)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}

	var endDate time.Time
	if *end != "" {
		if endDate, err = httpapi.ParseDate(*end); err != nil {
			log.Fatalf("invalid end date: %v", err)
		}
	} else {
		cal := marketdata.NewCalendarClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
		if endDate, err = marketdata.LatestFinishedTradingDay(cal, time.Now()); err != nil {
			log.Fatalf("determining end date: %v", err)
		}
	}

	n := cfg.Gather.MaxWorkers
	if *workers > 0 {
		n = *workers
	}

	source := marketdata.NewAlpacaSource(marketdata.AlpacaOptions{
		APIKey:     cfg.Alpaca.APIKey,
		APISecret:  cfg.Alpaca.APISecret,
		DataURL:    cfg.Alpaca.DataURL,
		Feed:       cfg.Alpaca.Feed,
		Adjustment: cfg.Alpaca.Adjustment,
		Limiter:    util.NewRateLimiter(cfg.Gather.RateLimitPerMin),
		MaxRetries: cfg.Backtest.MaxRetries,
		Logger:     logger,
	})
	market := cfg.Backtest.Market

	g := gather.New(gather.Options{
		Source:      source,
		Store:       store.NewParquetStore(cfg.Storage.DataDir),
		Market:      market,
		Symbols:     syms,
		Start:       startDate,
		End:         endDate,
		Workers:     n,
		ProgressDir: filepath.Join(cfg.Storage.DataDir, market, "daily"),
		Logger:      logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting tradewise-gather", "logFile", logPath, "symbols", len(syms), "workers", n)
	res, err := g.Run(ctx)
	if err != nil {
		log.Fatalf("gather error: %v", err)
	}
	slog.Info("gather finished", "updated", res.Updated, "bars", res.Bars, "failed", res.Failed)
}
