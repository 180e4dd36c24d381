// Package integration provides end-to-end tests that wire the HTTP provider,
// the SQLite cache, the engine, the scanner and the metrics together.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-backtester/internal/backtest"
	"option-backtester/internal/batch"
	"option-backtester/internal/marketdata"
	"option-backtester/internal/options"
	"option-backtester/internal/store"
	"option-backtester/internal/telemetry"
	"option-backtester/pkg/utils"
)

var (
	seriesStart = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	seriesEnd   = seriesStart.AddDate(0, 0, 199)
)

// aggregatesServer serves 200 bars for WAVE, nothing for any other
// underlying and an empty answer for every option contract.
type aggregatesServer struct {
	mu       sync.Mutex
	requests map[string]int
}

func (s *aggregatesServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v2/aggs/ticker/"), "/")
	ticker := parts[0]

	s.mu.Lock()
	s.requests[ticker]++
	s.mu.Unlock()

	type bar struct {
		T int64   `json:"t"`
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
	}
	var bars []bar
	if ticker == "WAVE" {
		for i := 0; i < 200; i++ {
			c := 100 + 8*math.Sin(float64(i)/6) + float64(i)*0.05
			bars = append(bars, bar{
				T: seriesStart.AddDate(0, 0, i).Add(5 * time.Hour).UnixMilli(),
				O: c, H: c * 1.01, L: c * 0.99, C: c,
				V: float64(1_000_000 + (i%7)*150_000),
			})
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "OK",
		"resultsCount": len(bars),
		"results":      bars,
	})
}

func (s *aggregatesServer) count(ticker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[ticker]
}

func (s *aggregatesServer) optionRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for ticker, c := range s.requests {
		if strings.HasPrefix(ticker, "O:") {
			n += c
		}
	}
	return n
}

type harness struct {
	server  *aggregatesServer
	metrics *telemetry.Metrics
	db      *store.SQLiteStore
	scanner *batch.Scanner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		server:  &aggregatesServer{requests: make(map[string]int)},
		metrics: telemetry.New(),
	}
	srv := httptest.NewServer(h.server)
	t.Cleanup(srv.Close)

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "backtests.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	h.db = db

	cfg := marketdata.DefaultHTTPConfig()
	cfg.BaseURL = srv.URL
	cfg.RatePerSecond = 1000
	cfg.Burst = 10
	httpProv := marketdata.NewHTTPProvider(cfg,
		marketdata.WithRequestObserver(h.metrics),
		marketdata.WithRetryConfig(utils.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}),
	)
	cached := marketdata.NewCachedProvider(httpProv, db, zerolog.Nop())

	model := options.DefaultModel()
	pricer := backtest.NewFallbackPricer(httpProv, model, zerolog.Nop())
	pricer.OnFallback = h.metrics.QuoteFallback

	engine := backtest.NewEngine(
		backtest.WithModel(model),
		backtest.WithPricer(pricer),
		backtest.WithObserver(h.metrics),
	)
	runner := backtest.NewRunner(engine, cached, backtest.WithRunStore(db))
	h.scanner = batch.NewScanner(runner, backtest.DefaultConfig(),
		batch.WithWorkers(3),
		batch.WithTracker(h.metrics),
	)
	return h
}

func (h *harness) scan(t *testing.T, symbols ...string) []batch.ScanResult {
	t.Helper()
	strategies, err := batch.Resolve([]string{batch.MACDRSIBB, batch.BBVolumeHybrid, batch.VolumeMAMomentum}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return h.scanner.Scan(ctx, symbols, strategies, seriesStart, seriesEnd)
}

func TestEndToEnd_ScanThroughHTTPAndCache(t *testing.T) {
	h := newHarness(t)

	first := h.scan(t, "WAVE", "NONE")
	require.Len(t, first, 6)

	var trades int
	for _, row := range first {
		require.NoError(t, row.Err)
		require.NotNil(t, row.Result)
		switch row.Symbol {
		case "WAVE":
			assert.Empty(t, row.Result.SoftFailure)
			assert.Len(t, row.Result.EquityCurve, 200)
			trades += len(row.Result.Trades)
		case "NONE":
			assert.NotEmpty(t, row.Result.SoftFailure)
		}
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues(backtest.OutcomeCompleted)))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues(backtest.OutcomeSoftFailure)))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.ActiveRuns))
	assert.GreaterOrEqual(t, testutil.ToFloat64(h.metrics.ProviderRequests.WithLabelValues(marketdata.ResultNoData)), 3.0)

	// every option lookup came back empty, so every premium is modeled
	fallbacks := testutil.ToFloat64(h.metrics.QuoteFallbacks)
	assert.Equal(t, float64(h.server.optionRequests()), fallbacks)
	assert.GreaterOrEqual(t, fallbacks, float64(trades))

	waveFetches := h.server.count("WAVE")
	assert.GreaterOrEqual(t, waveFetches, 1)

	second := h.scan(t, "WAVE", "NONE")
	require.Len(t, second, 6)
	assert.Equal(t, waveFetches, h.server.count("WAVE"), "cached history is not fetched again")
	assert.Greater(t, h.server.count("NONE"), 3, "uncached symbols are retried")

	for i := range first {
		assert.Equal(t, first[i].Symbol, second[i].Symbol)
		assert.Equal(t, first[i].Strategy, second[i].Strategy)
		assert.InDelta(t, first[i].Result.FinalCapital, second[i].Result.FinalCapital, 1e-9)
		assert.Len(t, second[i].Result.Trades, len(first[i].Result.Trades))
	}

	records, err := h.db.ListRuns(context.Background(), store.RunFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, records, 12)

	records, err = h.db.ListRuns(context.Background(), store.RunFilter{Symbol: "WAVE", Strategy: batch.MACDRSIBB, Limit: 100})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestEndToEnd_RankingMatchesComparison(t *testing.T) {
	h := newHarness(t)
	rows := h.scan(t, "WAVE")

	table := batch.Comparison(rows)
	require.Len(t, table, len(rows))
	for i := range rows {
		assert.Equal(t, rows[i].Strategy, table[i].Strategy, fmt.Sprintf("row %d", i))
		assert.Equal(t, rows[i].Result.Summary.TotalReturn, table[i].TotalReturn)
	}
}
