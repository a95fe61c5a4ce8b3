package engine

import (
	"errors"
	"fmt"
)

// ErrLimitExceeded is returned when a request asks for more work than the
// engine allows.
var ErrLimitExceeded = errors.New("request exceeds limits")

// LimitError describes which limit was exceeded.
type LimitError struct {
	Limit string
	Max   int
	Got   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s %d exceeds maximum %d", e.Limit, e.Got, e.Max)
}

// Unwrap lets callers match ErrLimitExceeded with errors.Is.
func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// Limits bounds a single backtest request. Zero fields are unlimited.
type Limits struct {
	MaxRangeDays int
	MaxBars      int
}

// CheckRange validates the requested calendar span.
func (l Limits) CheckRange(days int) error {
	if l.MaxRangeDays > 0 && days > l.MaxRangeDays {
		return &LimitError{Limit: "range days", Max: l.MaxRangeDays, Got: days}
	}
	return nil
}

// CheckBars validates the number of bars loaded for a request.
func (l Limits) CheckBars(n int) error {
	if l.MaxBars > 0 && n > l.MaxBars {
		return &LimitError{Limit: "bars", Max: l.MaxBars, Got: n}
	}
	return nil
}
