package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"option-backtester/internal/batch"
	"option-backtester/internal/logging"
	"option-backtester/pkg/utils"
)

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Backtest many strategies across many symbols",
		Long: `Run every (symbol, strategy) pair in parallel and rank the results by
total return, then Sharpe ratio.

Strategies are the built-in presets or [strategies.<name>] tables from
config.toml. A pair that fails is reported and never stops the scan.`,
		Example: `  backtester scan
  backtester scan --symbols SPY,QQQ,IWM --strategies MACD_RSI_BB,BB_Volume_Hybrid
  backtester scan --workers 8 --metrics-addr :9090 --csv scan.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config

			symbols := cfg.Scan.Symbols
			if cmd.Flags().Changed("symbols") {
				symbols, _ = cmd.Flags().GetStringSlice("symbols")
			}
			names := cfg.Scan.Strategies
			if cmd.Flags().Changed("strategies") {
				names, _ = cmd.Flags().GetStringSlice("strategies")
			}
			if len(symbols) == 0 || len(names) == 0 {
				return fmt.Errorf("nothing to scan: need at least one symbol and one strategy")
			}
			strategies, err := batch.Resolve(names, cfg.CustomStrategies())
			if err != nil {
				return err
			}

			from, to, err := dateRange(cmd, cfg.Scan.LookbackDays)
			if err != nil {
				return err
			}
			base, err := cfg.RunConfig(app.Registry)
			if err != nil {
				return err
			}

			workers := cfg.Scan.Workers
			if cmd.Flags().Changed("workers") {
				workers, _ = cmd.Flags().GetInt("workers")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logger := logging.FromContext(ctx)
			addr := cfg.Scan.MetricsAddr
			if cmd.Flags().Changed("metrics-addr") {
				addr, _ = cmd.Flags().GetString("metrics-addr")
			}
			if addr != "" {
				metricsCtx, stop := context.WithCancel(ctx)
				defer stop()
				go func() {
					if err := app.Metrics.Serve(metricsCtx, addr, logger); err != nil {
						logger.Warn().Err(err).Str("addr", addr).Msg("Metrics server stopped")
					}
				}()
			}

			scanner := batch.NewScanner(app.newRunner(ctx), base,
				batch.WithWorkers(workers),
				batch.WithTracker(app.Metrics),
				batch.WithScannerLogger(logger),
				batch.WithRegistry(app.Registry),
			)

			if !output.IsJSON() {
				output.Info("Scanning %d symbols x %d strategies (%s to %s, %d workers)",
					len(symbols), len(strategies), FormatDate(from), FormatDate(to), workers)
			}
			start := time.Now()
			results := scanner.Scan(ctx, symbols, strategies, from, to)
			elapsed := time.Since(start)

			if path, _ := cmd.Flags().GetString("csv"); path != "" {
				if err := WriteScanCSV(path, results); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(scanReport(results, elapsed))
			}
			printScan(output, results, elapsed)
			return nil
		},
	}

	cmd.Flags().StringSlice("symbols", nil, "symbols to scan (default: scan.symbols)")
	cmd.Flags().StringSlice("strategies", nil, "strategy names (default: scan.strategies)")
	cmd.Flags().Int("workers", 0, "parallel runs (default: scan.workers)")
	cmd.Flags().String("from", "", "first bar date, YYYY-MM-DD")
	cmd.Flags().String("to", "", "last bar date, YYYY-MM-DD (default: today)")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address during the scan")
	cmd.Flags().String("csv", "", "write the ranked results to a CSV file")

	return cmd
}

type scanFailure struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`
	Error    string `json:"error"`
}

func scanReport(results []batch.ScanResult, elapsed time.Duration) map[string]interface{} {
	failures := make([]scanFailure, 0)
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures = append(failures, scanFailure{r.Symbol, r.Strategy, r.Err.Error()})
		case r.Result != nil && r.Result.Failed():
			failures = append(failures, scanFailure{r.Symbol, r.Strategy, r.Result.SoftFailure})
		}
	}
	return map[string]interface{}{
		"ranking":    batch.Comparison(results),
		"failures":   failures,
		"elapsed_ms": elapsed.Milliseconds(),
	}
}

func printScan(output *Output, results []batch.ScanResult, elapsed time.Duration) {
	table := NewTable(output, "#", "SYMBOL", "STRATEGY", "RETURN", "WIN RATE", "DRAWDOWN", "SHARPE", "PF", "TRADES", "FINAL")
	var failed []string
	rank := 0
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, fmt.Sprintf("%s/%s: %v", r.Symbol, r.Strategy, r.Err))
			continue
		}
		if r.Result == nil {
			continue
		}
		if r.Result.Failed() {
			failed = append(failed, fmt.Sprintf("%s/%s: %s", r.Symbol, r.Strategy, r.Result.SoftFailure))
			continue
		}
		rank++
		s := r.Result.Summary
		table.AddRow(
			fmt.Sprintf("%d", rank),
			r.Symbol,
			TruncateString(r.Strategy, 24),
			output.FormatPercent(s.TotalReturn),
			fmt.Sprintf("%.1f%%", s.WinRate*100),
			fmt.Sprintf("%.2f%%", s.MaxDrawdown*100),
			FormatRatio(s.SharpeRatio),
			FormatRatio(s.ProfitFactor),
			fmt.Sprintf("%d", s.NumTrades),
			utils.FormatCompact(r.Result.FinalCapital),
		)
	}

	output.Println()
	if rank > 0 {
		table.Render()
	} else {
		output.Warning("No pair produced a backtest")
	}
	if len(failed) > 0 {
		output.Println()
		output.Warning("%d pairs failed:", len(failed))
		output.Dim("  %s", strings.Join(failed, "\n  "))
	}
	output.Println()
	output.Dim("Completed %d pairs in %s", len(results), FormatDuration(elapsed))
}
