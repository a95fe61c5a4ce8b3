// Package marketdata supplies daily price bars to the backtest engine from
// Alpaca, the local Parquet store, a read-through cache of the two, or a
// deterministic mock generator.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tradewise/internal/config"
	"tradewise/internal/domain"
	"tradewise/internal/store"
	"tradewise/internal/util"
)

// ErrNoData is returned when a source has no bars for the requested symbol
// and range.
var ErrNoData = errors.New("no bars available")

// DateRange is an inclusive calendar range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate reports whether the range is usable.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New("date range: start and end are required")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("date range: end %s before start %s",
			r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return nil
}

// Days returns the number of calendar days covered, counting both ends.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r DateRange) String() string {
	return r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
}

// Source supplies daily bars.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// Bars returns the daily bars for symbol in market within r, sorted by
	// timestamp. It returns ErrNoData when nothing is available.
	Bars(ctx context.Context, symbol, market string, r DateRange) ([]domain.Bar, error)
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NewSource builds the Source named by cfg.Backtest.Source. bars may be nil
// for the alpaca and mock sources.
func NewSource(cfg *config.Config, bars store.BarStore, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	newAlpaca := func() (*AlpacaSource, error) {
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			return nil, errors.New("alpaca source: api key and secret are required")
		}
		return NewAlpacaSource(AlpacaOptions{
			APIKey:     cfg.Alpaca.APIKey,
			APISecret:  cfg.Alpaca.APISecret,
			DataURL:    cfg.Alpaca.DataURL,
			Feed:       cfg.Alpaca.Feed,
			Adjustment: cfg.Alpaca.Adjustment,
			Limiter:    util.NewRateLimiter(cfg.Backtest.RateLimitPerMin),
			MaxRetries: cfg.Backtest.MaxRetries,
			Logger:     logger,
		}), nil
	}

	switch cfg.Backtest.Source {
	case config.SourceMock:
		return NewMockSource(cfg.Backtest.MockSeed), nil
	case config.SourceAlpaca:
		return newAlpaca()
	case config.SourceStore:
		if bars == nil {
			return nil, errors.New("store source: bar store is required")
		}
		return NewStoreSource(bars), nil
	case config.SourceCached:
		if bars == nil {
			return nil, errors.New("cached source: bar store is required")
		}
		upstream, err := newAlpaca()
		if err != nil {
			return nil, err
		}
		return NewCachedSource(bars, upstream, logger), nil
	}
	return nil, fmt.Errorf("unknown bar source %q", cfg.Backtest.Source)
}
