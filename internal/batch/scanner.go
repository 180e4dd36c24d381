package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"option-backtester/internal/analysis/signals"
	"option-backtester/internal/backtest"
	"option-backtester/internal/models"
	"option-backtester/internal/performance"
)

// Tracker receives scan progress, typically for metrics.
type Tracker interface {
	TrackRun() func()
	ObserveScan(d time.Duration)
}

type nopTracker struct{}

func (nopTracker) TrackRun() func()          { return func() {} }
func (nopTracker) ObserveScan(time.Duration) {}

// ScanResult is the outcome of one (symbol, strategy) pair. Err is set only
// when the strategy could not be configured; data problems surface as a
// soft-failed Result instead.
type ScanResult struct {
	Symbol   string
	Strategy string
	Result   *models.BacktestResult
	Err      error
}

// Scanner backtests every symbol against every strategy on a bounded pool.
type Scanner struct {
	runner   *backtest.Runner
	registry *signals.Registry
	base     backtest.Config
	workers  int
	tracker  Tracker
	logger   zerolog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithWorkers bounds the number of concurrent runs.
func WithWorkers(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTracker reports run and scan timings.
func WithTracker(t Tracker) ScannerOption {
	return func(s *Scanner) { s.tracker = t }
}

// WithScannerLogger sets the scanner logger.
func WithScannerLogger(l zerolog.Logger) ScannerOption {
	return func(s *Scanner) { s.logger = l }
}

// WithRegistry sets the signal registry strategies are resolved against.
func WithRegistry(r *signals.Registry) ScannerOption {
	return func(s *Scanner) { s.registry = r }
}

// NewScanner creates a scanner. base supplies every setting a strategy does
// not override.
func NewScanner(runner *backtest.Runner, base backtest.Config, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		runner:   runner,
		registry: signals.DefaultRegistry(),
		base:     base,
		workers:  4,
		tracker:  nopTracker{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs all pairs between from and to. One failing pair never aborts
// the batch. Once ctx is cancelled no further pairs are started and only
// finished pairs are returned. Results are ranked best first.
func (s *Scanner) Scan(ctx context.Context, symbols []string, strategies []Strategy, from, to time.Time) []ScanResult {
	start := time.Now()
	defer func() { s.tracker.ObserveScan(time.Since(start)) }()

	var (
		mu      sync.Mutex
		results = make([]ScanResult, 0, len(symbols)*len(strategies))
	)

	p := pool.New().WithMaxGoroutines(s.workers)
	for _, symbol := range symbols {
		for _, strategy := range strategies {
			p.Go(func() {
				if ctx.Err() != nil {
					return
				}
				res := s.runPair(ctx, symbol, strategy, from, to)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			})
		}
	}
	p.Wait()

	Rank(results)
	s.logger.Info().
		Int("pairs", len(symbols)*len(strategies)).
		Int("completed", len(results)).
		Dur("elapsed", time.Since(start)).
		Msg("Scan finished")
	return results
}

func (s *Scanner) runPair(ctx context.Context, symbol string, strategy Strategy, from, to time.Time) ScanResult {
	done := s.tracker.TrackRun()
	defer done()

	row := ScanResult{Symbol: symbol, Strategy: strategy.Name}
	cfg, err := strategy.Config(s.registry, s.base)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Str("strategy", strategy.Name).Msg("Skipping misconfigured strategy")
		row.Err = err
		return row
	}

	result, err := s.runner.RunSymbol(ctx, symbol, from, to, cfg)
	if err != nil {
		row.Err = err
		return row
	}
	row.Symbol = result.Symbol
	row.Result = result
	return row
}

// Rank sorts rows by total return, then Sharpe ratio, then symbol and
// strategy. Rows without a result go last.
func Rank(rows []ScanResult) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if (a.Result == nil) != (b.Result == nil) {
			return a.Result != nil
		}
		if a.Result != nil {
			ra, rb := a.Result.Summary, b.Result.Summary
			if ra.TotalReturn != rb.TotalReturn {
				return ra.TotalReturn > rb.TotalReturn
			}
			if ra.SharpeRatio != rb.SharpeRatio {
				return ra.SharpeRatio > rb.SharpeRatio
			}
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Strategy < b.Strategy
	})
}

// Comparison returns the ranked comparison table of rows with results.
func Comparison(rows []ScanResult) []performance.StrategyComparison {
	results := make([]*models.BacktestResult, 0, len(rows))
	for _, r := range rows {
		if r.Result != nil {
			results = append(results, r.Result)
		}
	}
	return performance.CompareStrategies(results)
}
