package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tradewise/internal/api"
	"tradewise/internal/config"
	"tradewise/internal/engine"
	"tradewise/internal/httpapi"
	"tradewise/internal/marketdata"
	"tradewise/internal/store"
	"tradewise/internal/util"
)

func main() {
	logToFile := flag.Bool("log-file", false, "also write logs to /tmp/tradewise-server-YYYY-MM-DD.log")
	flag.Parse()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if *logToFile {
		fileLogger, closer, path, err := util.NewDailyFileLogger("tradewise-server", cfg.Logging.Level)
		if err != nil {
			log.Fatalf("failed to create log file: %v", err)
		}
		defer closer.Close()
		logger = fileLogger
		logger.Info("logging to file", "path", path)
	}
	util.SetDefault(logger)

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open run store: %v", err)
	}
	defer runs.Close()

	source, err := marketdata.NewSource(cfg, bars, logger)
	if err != nil {
		log.Fatalf("failed to create bar source: %v", err)
	}
	presets, err := engine.LoadPresets(cfg.Strategies)
	if err != nil {
		log.Fatalf("failed to load strategy presets: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng := engine.New(engine.Options{
		Source:  source,
		Runs:    runs,
		Presets: presets,
		Market:  cfg.Backtest.Market,
		Workers: cfg.Backtest.Workers,
		Limits: engine.Limits{
			MaxRangeDays: cfg.Backtest.MaxRangeDays,
			MaxBars:      cfg.Backtest.MaxBars,
		},
		Metrics: engine.NewMetrics(reg),
		Logger:  logger,
	})
	defer eng.Close()

	handler := httpapi.NewServer(eng, bars, cfg.Backtest.Market, reg, logger).Handler()
	srv := api.NewServer(cfg.Server, handler, api.NewBacktestService(eng, logger), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("tradewise-server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"grpcPort", cfg.Server.GRPCPort,
		"source", source.Name(),
		"presets", len(presets.List()),
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("tradewise-server stopped")
}
