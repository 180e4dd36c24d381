package batch

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-backtester/internal/analysis/signals"
	"option-backtester/internal/backtest"
	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/models"
)

var (
	scanFrom = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	scanTo   = time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)
)

type seriesProvider struct {
	calls int32
}

func (p *seriesProvider) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	atomic.AddInt32(&p.calls, 1)
	var closes []float64
	switch symbol {
	case "FLAT":
		for i := 0; i < 120; i++ {
			closes = append(closes, 100)
		}
	case "UP":
		for i := 0; i < 160; i++ {
			closes = append(closes, 100*math.Pow(1.004, float64(i)))
		}
	case "WAVE":
		for i := 0; i < 200; i++ {
			closes = append(closes, 100+8*math.Sin(float64(i)/6)+float64(i)*0.05)
		}
	default:
		return nil, apperrors.NewDataError("candles", symbol, "unknown symbol", apperrors.ErrNoData)
	}

	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: from.AddDate(0, 0, i),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    int64(1_000_000 + (i%7)*150_000),
		}
	}
	return out, nil
}

type countingTracker struct {
	runs  int32
	scans int32
}

func (t *countingTracker) TrackRun() func() {
	atomic.AddInt32(&t.runs, 1)
	return func() {}
}

func (t *countingTracker) ObserveScan(time.Duration) { atomic.AddInt32(&t.scans, 1) }

func newScanner(workers int, opts ...ScannerOption) (*Scanner, *seriesProvider) {
	provider := &seriesProvider{}
	runner := backtest.NewRunner(nil, provider)
	opts = append([]ScannerOption{WithWorkers(workers)}, opts...)
	return NewScanner(runner, backtest.DefaultConfig(), opts...), provider
}

func presetsFor(t *testing.T, names ...string) []Strategy {
	t.Helper()
	strategies, err := Resolve(names, nil)
	require.NoError(t, err)
	return strategies
}

func TestScanner_RunsEveryPair(t *testing.T) {
	tracker := &countingTracker{}
	scanner, provider := newScanner(4, WithTracker(tracker))
	strategies := presetsFor(t, MACDRSIBB, VolumeMAMomentum)

	rows := scanner.Scan(context.Background(), []string{"FLAT", "UP", "MISSING"}, strategies, scanFrom, scanTo)

	require.Len(t, rows, 6)
	assert.Equal(t, int32(6), atomic.LoadInt32(&provider.calls))
	assert.Equal(t, int32(6), atomic.LoadInt32(&tracker.runs))
	assert.Equal(t, int32(1), atomic.LoadInt32(&tracker.scans))

	softFailures := 0
	for _, r := range rows {
		require.NoError(t, r.Err)
		require.NotNil(t, r.Result)
		assert.NotEmpty(t, r.Result.RunID)
		if r.Symbol == "MISSING" {
			softFailures++
			assert.NotEmpty(t, r.Result.SoftFailure)
			assert.Empty(t, r.Result.Trades)
		}
	}
	assert.Equal(t, 2, softFailures)

	for i := 1; i < len(rows); i++ {
		assert.GreaterOrEqual(t, rows[i-1].Result.Summary.TotalReturn, rows[i].Result.Summary.TotalReturn)
	}
}

func TestScanner_ResultsIndependentOfWorkerCount(t *testing.T) {
	symbols := []string{"FLAT", "UP", "WAVE"}
	strategies := presetsFor(t, PresetNames()...)

	serial, _ := newScanner(1)
	parallel, _ := newScanner(8)
	a := serial.Scan(context.Background(), symbols, strategies, scanFrom, scanTo)
	b := parallel.Scan(context.Background(), symbols, strategies, scanFrom, scanTo)

	require.Len(t, a, len(symbols)*len(strategies))
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Symbol, b[i].Symbol)
		assert.Equal(t, a[i].Strategy, b[i].Strategy)
		assert.Equal(t, a[i].Result.FinalCapital, b[i].Result.FinalCapital)
		assert.Equal(t, len(a[i].Result.Trades), len(b[i].Result.Trades))
	}
}

func TestScanner_CancelledContextStartsNothing(t *testing.T) {
	scanner, provider := newScanner(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows := scanner.Scan(ctx, []string{"FLAT", "UP"}, presetsFor(t, MACDRSIBB), scanFrom, scanTo)
	assert.Empty(t, rows)
	assert.Equal(t, int32(0), atomic.LoadInt32(&provider.calls))
}

func TestScanner_MisconfiguredStrategyDoesNotAbort(t *testing.T) {
	scanner, _ := newScanner(2)
	broken := Strategy{Name: "broken", Weights: map[string]float64{"no_such_signal": 1}}
	strategies := append(presetsFor(t, MACDRSIBB), broken)

	rows := scanner.Scan(context.Background(), []string{"UP"}, strategies, scanFrom, scanTo)
	require.Len(t, rows, 2)

	assert.NotNil(t, rows[0].Result)
	assert.Equal(t, "broken", rows[1].Strategy)
	assert.Nil(t, rows[1].Result)
	assert.True(t, errors.Is(rows[1].Err, apperrors.ErrUnknownSignal))
}

func TestStrategy_ConfigAppliesOverrides(t *testing.T) {
	s := Presets()[CCIWilliamsHybrid]
	cfg, err := s.Config(signals.DefaultRegistry(), backtest.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, CCIWilliamsHybrid, cfg.Name())
	assert.Equal(t, 5.0, cfg.ProfitTarget)
	assert.Equal(t, -0.5, cfg.StopLoss)
	assert.Equal(t, 30, cfg.MaxHoldingDays)
	assert.Equal(t, 0.1, cfg.PositionSizeFraction)
	assert.Equal(t, backtest.DefaultConfig().DaysToExpiry, cfg.DaysToExpiry)

	weighted, ok := cfg.Entry.(backtest.Weighted)
	require.True(t, ok)
	assert.Equal(t, 0.4, weighted.SignalWeights()[signals.CCIExtreme])
}

func TestPresets_UseRegisteredSignals(t *testing.T) {
	reg := signals.DefaultRegistry()
	for name, s := range Presets() {
		assert.NoError(t, reg.ValidateWeights(s.Weights), name)
		sum := 0.0
		for _, w := range s.Weights {
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9, name)
	}
}

func TestResolve(t *testing.T) {
	custom := map[string]Strategy{
		"trend_only": {Weights: map[string]float64{signals.MACrossover: 1}},
		"macd_rsi_bb": {Name: "MACD_RSI_BB", Weights: map[string]float64{signals.MACDCrossover: 1}},
	}

	got, err := Resolve([]string{"Trend_Only", "macd_rsi_bb", "BB_Volume_Hybrid"}, custom)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "trend_only", got[0].Name)
	assert.Equal(t, map[string]float64{signals.MACDCrossover: 1}, got[1].Weights)
	assert.Equal(t, BBVolumeHybrid, got[2].Name)

	_, err = Resolve([]string{"nope"}, nil)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownStrategy))
}

func TestComparison(t *testing.T) {
	scanner, _ := newScanner(2)
	rows := scanner.Scan(context.Background(), []string{"UP", "FLAT"}, presetsFor(t, VolumeMAMomentum), scanFrom, scanTo)
	rows = append(rows, ScanResult{Symbol: "X", Strategy: "broken", Err: errors.New("bad")})

	table := Comparison(rows)
	require.Len(t, table, 2)
	assert.GreaterOrEqual(t, table[0].TotalReturn, table[1].TotalReturn)
}
