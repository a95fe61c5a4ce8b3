// Package gather backfills and incrementally updates the local daily bar
// store from an upstream market data source.
package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tradewise/internal/domain"
	"tradewise/internal/marketdata"
	"tradewise/internal/store"
)

const dateLayout = "2006-01-02"

// Options configures a DailyGatherer.
type Options struct {
	Source  marketdata.Source // upstream, normally Alpaca
	Store   store.BarStore
	Market  string
	Symbols []string
	Start   time.Time
	End     time.Time // last finished trading day
	Workers int

	// ProgressDir holds the resume markers. Empty disables them.
	ProgressDir string
	Logger      *slog.Logger
}

// Result counts what a run did, one bucket per symbol.
type Result struct {
	Symbols  int
	Updated  int
	UpToDate int
	Empty    int
	Skipped  int
	Failed   int
	Bars     int
}

// DailyGatherer fetches daily bars for a fixed symbol list and appends
// whatever the store is missing.
type DailyGatherer struct {
	opts Options
	log  *slog.Logger
}

// New creates a DailyGatherer.
func New(opts Options) *DailyGatherer {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Market == "" {
		opts.Market = string(domain.MarketUS)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyGatherer{opts: opts, log: logger.With("gatherer", "daily", "market", opts.Market)}
}

// Name returns the gatherer identifier.
func (g *DailyGatherer) Name() string { return g.opts.Market + "-daily" }

// Run updates every symbol through End. It is idempotent within a day: once
// End has been completed a second run returns immediately.
func (g *DailyGatherer) Run(ctx context.Context) (Result, error) {
	start := truncateDay(g.opts.Start)
	end := truncateDay(g.opts.End)
	if end.Before(start) {
		return Result{}, fmt.Errorf("end %s before start %s", end.Format(dateLayout), start.Format(dateLayout))
	}
	endStr := end.Format(dateLayout)

	var tracker *progressTracker
	if g.opts.ProgressDir != "" {
		var err error
		tracker, err = newProgressTracker(g.opts.ProgressDir)
		if err != nil {
			return Result{}, err
		}
		defer tracker.Close()

		last := tracker.LastCompleted()
		if last == endStr {
			g.log.Info("already completed", "endDate", endStr)
			return Result{Symbols: len(g.opts.Symbols), UpToDate: len(g.opts.Symbols)}, nil
		}
		if last != "" {
			// A new day: symbols that were empty yesterday may list today.
			if err := tracker.Reset(); err != nil {
				return Result{}, fmt.Errorf("resetting tracker: %w", err)
			}
		}
	}

	g.log.Info("starting", "symbols", len(g.opts.Symbols), "start", start.Format(dateLayout), "endDate", endStr)

	var (
		updated, upToDate, empty, skipped, failed, bars atomic.Int64
		runStart                                        = time.Now()
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Workers)
	for _, raw := range g.opts.Symbols {
		symbol := marketdata.NormalizeSymbol(raw)
		if symbol == "" {
			continue
		}
		if tracker != nil && tracker.IsTriedEmpty(symbol) {
			skipped.Add(1)
			continue
		}
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return egCtx.Err()
			}
			n, err := g.updateSymbol(egCtx, symbol, start, end)
			switch {
			case errors.Is(err, marketdata.ErrNoData):
				empty.Add(1)
				if tracker != nil {
					if err := tracker.MarkEmpty(symbol); err != nil {
						g.log.Error("marking empty failed", "symbol", symbol, "err", err)
					}
				}
			case errors.Is(err, context.Canceled):
				return err
			case err != nil:
				failed.Add(1)
				g.log.Error("symbol failed", "symbol", symbol, "err", err)
			case n == 0:
				upToDate.Add(1)
			default:
				updated.Add(1)
				bars.Add(int64(n))
				g.log.Info("symbol updated", "symbol", symbol, "bars", n)
			}
			return nil
		})
	}
	err := eg.Wait()

	res := Result{
		Symbols:  len(g.opts.Symbols),
		Updated:  int(updated.Load()),
		UpToDate: int(upToDate.Load()),
		Empty:    int(empty.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
		Bars:     int(bars.Load()),
	}
	if err != nil {
		return res, err
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	if tracker != nil && res.Failed == 0 {
		if err := tracker.MarkCompleted(endStr); err != nil {
			return res, fmt.Errorf("marking completed: %w", err)
		}
	}

	g.log.Info("complete",
		"updated", res.Updated,
		"upToDate", res.UpToDate,
		"empty", res.Empty,
		"failed", res.Failed,
		"bars", res.Bars,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return res, nil
}

// updateSymbol fetches bars after the last stored one and writes them. It
// returns the number of new bars.
func (g *DailyGatherer) updateSymbol(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	existing, err := g.opts.Store.ReadBars(ctx, symbol, g.opts.Market, start, endOfDay(end))
	if err != nil {
		return 0, fmt.Errorf("reading stored bars: %w", err)
	}
	from := start
	if len(existing) > 0 {
		last := truncateDay(existing[len(existing)-1].Timestamp)
		if !last.Before(end) {
			return 0, nil
		}
		from = last.AddDate(0, 0, 1)
	}

	fetched, err := g.opts.Source.Bars(ctx, symbol, g.opts.Market, marketdata.DateRange{Start: from, End: end})
	if err != nil {
		if errors.Is(err, marketdata.ErrNoData) && len(existing) > 0 {
			// Nothing new since the last stored bar, e.g. a halted symbol.
			return 0, nil
		}
		return 0, err
	}
	if err := g.opts.Store.WriteBars(ctx, g.opts.Market, fetched); err != nil {
		return 0, fmt.Errorf("writing bars: %w", err)
	}
	return len(fetched), nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return truncateDay(t).Add(24*time.Hour - time.Nanosecond)
}
