// Package telemetry exposes Prometheus counters for backtest runs, closed
// trades, upstream data requests and quote fallbacks.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"option-backtester/internal/models"
)

// Metrics holds the collectors on a private registry, so several instances
// can coexist in one process (tests, embedded use).
type Metrics struct {
	registry *prometheus.Registry

	Runs             *prometheus.CounterVec
	Trades           *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec
	QuoteFallbacks   prometheus.Counter
	ScanDuration     prometheus.Histogram
	ActiveRuns       prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_runs_total",
				Help: "Backtest runs by outcome",
			},
			[]string{"outcome"},
		),
		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_trades_total",
				Help: "Closed trades by exit reason",
			},
			[]string{"reason"},
		),
		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_requests_total",
				Help: "Upstream market data requests by result",
			},
			[]string{"result"},
		),
		QuoteFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quote_fallbacks_total",
				Help: "Option premiums priced by the model because no market quote was usable",
			},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scan_duration_seconds",
				Help:    "Wall time of a full multi-symbol scan",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backtest_active_runs",
				Help: "Runs currently in flight",
			},
		),
	}

	m.registry.MustRegister(
		m.Runs,
		m.Trades,
		m.ProviderRequests,
		m.QuoteFallbacks,
		m.ScanDuration,
		m.ActiveRuns,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunFinished implements backtest.Observer.
func (m *Metrics) RunFinished(outcome string) {
	m.Runs.WithLabelValues(outcome).Inc()
}

// TradeClosed implements backtest.Observer.
func (m *Metrics) TradeClosed(reason models.ExitReason) {
	m.Trades.WithLabelValues(string(reason)).Inc()
}

// ProviderRequest implements marketdata.RequestObserver.
func (m *Metrics) ProviderRequest(result string) {
	m.ProviderRequests.WithLabelValues(result).Inc()
}

// QuoteFallback counts one model-priced premium.
func (m *Metrics) QuoteFallback() {
	m.QuoteFallbacks.Inc()
}

// TrackRun marks a run in flight and returns the func that ends it.
func (m *Metrics) TrackRun() func() {
	m.ActiveRuns.Inc()
	return m.ActiveRuns.Dec
}

// ObserveScan records the duration of a completed scan.
func (m *Metrics) ObserveScan(d time.Duration) {
	m.ScanDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
