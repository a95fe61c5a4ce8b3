package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"tradewise/internal/domain"
)

// Compile-time interface check.
var _ Source = (*MockSource)(nil)

// MockSource generates a reproducible random walk of daily bars. The same
// seed, symbol and range always produce the same bars.
type MockSource struct {
	seed uint64
}

// NewMockSource creates a MockSource. A zero seed uses 42.
func NewMockSource(seed uint64) *MockSource {
	if seed == 0 {
		seed = 42
	}
	return &MockSource{seed: seed}
}

// Name returns "mock".
func (s *MockSource) Name() string { return "mock" }

// Bars returns one bar per weekday in r. The walk starts near 100 with unit
// normal steps; prices never fall below 1.
func (s *MockSource) Bars(ctx context.Context, symbol, _ string, r DateRange) ([]domain.Bar, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewPCG(s.seed, h.Sum64()))

	start := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, time.UTC)

	var bars []domain.Bar
	price := 100.0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		price = math.Max(price+rng.NormFloat64(), 1)
		open := math.Max(price+rng.Float64()-0.5, 1)
		high := math.Max(open, price) + rng.Float64()
		low := math.Max(math.Min(open, price)-rng.Float64(), 0.5)
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: day,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    100 + rng.Int64N(900),
			VWAP:      (high + low + price) / 3,
		})
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	return bars, nil
}
