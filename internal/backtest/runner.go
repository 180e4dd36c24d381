package backtest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/logging"
	"option-backtester/internal/models"
	"option-backtester/pkg/utils"
)

// PriceProvider fetches ordered daily bars for a symbol.
type PriceProvider interface {
	FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error)
}

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, result *models.BacktestResult) error
}

// Runner fetches history and runs the engine for one symbol at a time.
type Runner struct {
	engine   *Engine
	provider PriceProvider
	store    RunStore
	logger   zerolog.Logger
	newID    func() string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunStore persists every result, soft failures included.
func WithRunStore(s RunStore) RunnerOption {
	return func(r *Runner) { r.store = s }
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(l zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner returns a runner over engine and provider.
func NewRunner(engine *Engine, provider PriceProvider, opts ...RunnerOption) *Runner {
	if engine == nil {
		engine = NewEngine()
	}
	r := &Runner{
		engine:   engine,
		provider: provider,
		logger:   zerolog.Nop(),
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Engine returns the engine runs are executed on.
func (r *Runner) Engine() *Engine { return r.engine }

// RunSymbol backtests cfg on symbol between from and to. A failed fetch
// yields a flat result carrying the cause; only invalid configuration is
// returned as an error.
func (r *Runner) RunSymbol(ctx context.Context, symbol string, from, to time.Time, cfg Config) (*models.BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "invalid backtest config")
	}

	runID := r.newID()
	corrected, aliased := utils.NormalizeSymbol(symbol)
	log := logging.WithRun(logging.WithStrategy(logging.WithSymbol(r.logger, corrected), cfg.Name()), runID)
	if aliased {
		log.Warn().Str("requested", symbol).Msg("Corrected symbol typo")
	}

	var result *models.BacktestResult
	candles, err := r.provider.FetchDaily(ctx, corrected, from, to)
	if err != nil {
		logging.LogSoftFailure(log, err)
		r.engine.observer.RunFinished(OutcomeSoftFailure)
		anchor := []models.Candle{{Timestamp: utils.DateOnly(from)}}
		result = FlatResult(corrected, cfg.Name(), cfg.InitialCapital, anchor, apperrors.Wrapf(err, "fetching %s", corrected))
	} else {
		result, err = r.engine.Run(ctx, corrected, candles, cfg)
		if err != nil {
			return nil, err
		}
	}

	result.RunID = runID
	log.Info().
		Int("trades", result.Summary.NumTrades).
		Float64("total_return", result.Summary.TotalReturn).
		Float64("final_capital", result.FinalCapital).
		Msg("Backtest finished")
	if r.store != nil {
		if err := r.store.SaveRun(ctx, result); err != nil {
			log.Warn().Err(err).Msg("Failed to persist backtest run")
		}
	}
	return result, nil
}
