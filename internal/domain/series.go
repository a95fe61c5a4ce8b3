package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrEmptySeries is returned when a series is built from no bars.
	ErrEmptySeries = errors.New("price series is empty")

	// ErrUnorderedSeries is returned when bar timestamps are not strictly
	// increasing.
	ErrUnorderedSeries = errors.New("price series timestamps are not strictly increasing")

	// ErrInvalidBar is returned for bars with non-positive or non-finite
	// prices, or negative volume.
	ErrInvalidBar = errors.New("invalid bar")
)

// Series is an immutable, chronologically ordered sequence of bars. It keeps
// its own copy of the bars it was built from.
type Series struct {
	bars []Bar
}

// NewSeries validates bars and returns a Series backed by a private copy.
func NewSeries(bars []Bar) (*Series, error) {
	if len(bars) == 0 {
		return nil, ErrEmptySeries
	}
	for i, b := range bars {
		if err := validateBar(b); err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("bar %d at %s: %w", i, b.Timestamp.Format(time.RFC3339), ErrUnorderedSeries)
		}
	}
	owned := make([]Bar, len(bars))
	copy(owned, bars)
	return &Series{bars: owned}, nil
}

func validateBar(b Bar) error {
	for _, p := range [...]struct {
		name string
		v    float64
	}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}} {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) || p.v <= 0 {
			return fmt.Errorf("%w: %s price %v", ErrInvalidBar, p.name, p.v)
		}
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume %d", ErrInvalidBar, b.Volume)
	}
	return nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// Bar returns the i-th bar.
func (s *Series) Bar(i int) Bar { return s.bars[i] }

// Bars returns a copy of all bars.
func (s *Series) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Closes returns a fresh slice of close prices.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i := range s.bars {
		out[i] = s.bars[i].Close
	}
	return out
}

// Symbol returns the symbol of the first bar.
func (s *Series) Symbol() string { return s.bars[0].Symbol }

// Start returns the timestamp of the first bar.
func (s *Series) Start() time.Time { return s.bars[0].Timestamp }

// End returns the timestamp of the last bar.
func (s *Series) End() time.Time { return s.bars[len(s.bars)-1].Timestamp }
