// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"option-backtester/internal/models"
)

// Daily is the timeframe key of daily bars.
const Daily = "1day"

// CandleStore caches price history.
type CandleStore interface {
	SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error)
	GetCandlesFreshness(ctx context.Context, symbol, timeframe string) (time.Time, error)
}

// RunStore persists backtest results.
type RunStore interface {
	SaveRun(ctx context.Context, result *models.BacktestResult) error
	GetRun(ctx context.Context, runID string) (*models.BacktestResult, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)
}

// DataStore defines the interface for data persistence.
type DataStore interface {
	CandleStore
	RunStore
	Close() error
}

// RunFilter represents filters for querying stored runs.
type RunFilter struct {
	Symbol   string
	Strategy string
	Since    time.Time
	Limit    int
}

// RunRecord is the stored headline of one run, without trades or equity.
type RunRecord struct {
	RunID          string         `json:"run_id"`
	Symbol         string         `json:"symbol"`
	Strategy       string         `json:"strategy"`
	InitialCapital float64        `json:"initial_capital"`
	FinalCapital   float64        `json:"final_capital"`
	Summary        models.Summary `json:"summary"`
	SoftFailure    string         `json:"soft_failure,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
