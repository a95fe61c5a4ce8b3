package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradewise/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const defaultListLimit = 50

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		id           TEXT PRIMARY KEY,
		symbol       TEXT NOT NULL,
		market       TEXT NOT NULL,
		strategy     TEXT NOT NULL,
		params       TEXT NOT NULL,
		start_ts     INTEGER NOT NULL,
		end_ts       INTEGER NOT NULL,
		bars         INTEGER NOT NULL,
		total_return REAL NOT NULL,
		created_at   INTEGER NOT NULL,
		result_json  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON backtest_runs (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_runs_strategy ON backtest_runs (strategy, created_at DESC)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore. ":memory:" is accepted.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runResult is the JSON payload kept in result_json.
type runResult struct {
	Report  domain.Report  `json:"report"`
	Summary domain.Summary `json:"summary"`
}

// SaveRun inserts a run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.BacktestRun) error {
	payload, err := json.Marshal(runResult{Report: run.Report, Summary: run.Summary})
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", run.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO backtest_runs
		(id, symbol, market, strategy, params, start_ts, end_ts, bars, total_return, created_at, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Symbol, run.Market, run.Report.Strategy, run.Report.Params,
		run.Start.UnixMilli(), run.End.UnixMilli(), len(run.Report.Returns), run.Report.TotalReturn,
		run.CreatedAt.UnixMilli(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.BacktestRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, symbol, market, start_ts, end_ts, created_at, result_json
		FROM backtest_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first, filtered by f.
func (s *SQLiteStore) ListRuns(ctx context.Context, f RunFilter) ([]domain.BacktestRun, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, market, start_ts, end_ts, created_at, result_json
		FROM backtest_runs
		WHERE (? = '' OR strategy = ?) AND (? = '' OR symbol = ?)
		ORDER BY created_at DESC, id
		LIMIT ?`, f.Strategy, f.Strategy, f.Symbol, f.Symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.BacktestRun, error) {
	var (
		run                       domain.BacktestRun
		startMs, endMs, createdMs int64
		payload                   string
	)
	if err := sc.Scan(&run.ID, &run.Symbol, &run.Market, &startMs, &endMs, &createdMs, &payload); err != nil {
		return nil, err
	}
	var res runResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", run.ID, err)
	}
	run.Start = time.UnixMilli(startMs).UTC()
	run.End = time.UnixMilli(endMs).UTC()
	run.CreatedAt = time.UnixMilli(createdMs).UTC()
	run.Report = res.Report
	run.Summary = res.Summary
	return &run, nil
}
