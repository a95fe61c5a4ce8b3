package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradewise/internal/domain"
	"tradewise/internal/store"
)

// Compile-time interface checks.
var (
	_ Source = (*StoreSource)(nil)
	_ Source = (*CachedSource)(nil)
)

// StoreSource serves bars already gathered into a BarStore.
type StoreSource struct {
	store store.BarStore
}

// NewStoreSource creates a StoreSource over bars.
func NewStoreSource(bars store.BarStore) *StoreSource {
	return &StoreSource{store: bars}
}

// Name returns "store".
func (s *StoreSource) Name() string { return "store" }

// Bars reads the range from the store.
func (s *StoreSource) Bars(ctx context.Context, symbol, market string, r DateRange) ([]domain.Bar, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)
	bars, err := s.store.ReadBars(ctx, symbol, market, r.Start, endOfDay(r.End))
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, r, ErrNoData)
	}
	return bars, nil
}

// coverageSlack is how far the first and last cached bars may sit inside the
// requested range, and how far apart neighbouring cached bars may be, before
// the cache is considered incomplete. It absorbs weekends and exchange
// holidays.
const coverageSlack = 4 * 24 * time.Hour

// CachedSource reads from a BarStore and falls back to an upstream Source
// when the store does not cover the request, writing fetched bars back.
type CachedSource struct {
	store    store.BarStore
	upstream Source
	now      func() time.Time
	log      *slog.Logger
}

// NewCachedSource creates a read-through cache over upstream.
func NewCachedSource(bars store.BarStore, upstream Source, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{
		store:    bars,
		upstream: upstream,
		now:      time.Now,
		log:      logger.With("source", "cached", "upstream", upstream.Name()),
	}
}

// Name returns "cached".
func (s *CachedSource) Name() string { return "cached" }

// Bars serves from the store when it covers r, otherwise from upstream.
func (s *CachedSource) Bars(ctx context.Context, symbol, market string, r DateRange) ([]domain.Bar, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	cached, err := s.store.ReadBars(ctx, symbol, market, r.Start, endOfDay(r.End))
	if err != nil {
		s.log.Warn("cache read failed", "symbol", symbol, "err", err)
	} else if s.covers(cached, r) {
		s.log.Debug("cache hit", "symbol", symbol, "range", r.String(), "bars", len(cached))
		return cached, nil
	}

	fetched, err := s.upstream.Bars(ctx, symbol, market, r)
	if err != nil {
		return nil, err
	}
	if err := s.store.WriteBars(ctx, market, fetched); err != nil {
		// The fetch succeeded; a failed write only costs a refetch next time.
		s.log.Warn("cache write failed", "symbol", symbol, "err", err)
	}
	s.log.Info("cache filled", "symbol", symbol, "range", r.String(), "bars", len(fetched))
	return fetched, nil
}

func (s *CachedSource) covers(bars []domain.Bar, r DateRange) bool {
	if len(bars) == 0 {
		return false
	}
	end := r.End
	if now := s.now(); end.After(now) {
		end = now
	}
	first, last := bars[0].Timestamp, bars[len(bars)-1].Timestamp
	if first.Sub(r.Start) > coverageSlack || end.Sub(last) > coverageSlack {
		return false
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Sub(bars[i-1].Timestamp) > coverageSlack {
			return false
		}
	}
	return true
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
