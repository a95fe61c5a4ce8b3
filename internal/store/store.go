// Package store defines storage interfaces for persisting and retrieving
// price bars and completed backtest runs.
package store

import (
	"context"
	"errors"
	"time"

	"tradewise/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for market, merging with any bars
	// already stored for the same symbol and timestamp.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within
	// [start, end], sorted by timestamp.
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Strategy string // exact family name such as "RSI"; empty matches all
	Symbol   string // empty matches all
	Limit    int    // <= 0 means the store default
}

// RunStore persists completed backtest runs.
type RunStore interface {
	// SaveRun inserts a run. The run ID must be unique.
	SaveRun(ctx context.Context, run *domain.BacktestRun) error

	// GetRun retrieves a run by ID, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*domain.BacktestRun, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, f RunFilter) ([]domain.BacktestRun, error)
}
