package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"option-backtester/internal/backtest"
	"option-backtester/internal/batch"
	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/models"
	"option-backtester/internal/options"
	"option-backtester/pkg/utils"
)

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest SYMBOL",
		Short: "Backtest one strategy on one symbol",
		Long: `Run a single backtest on daily bars of SYMBOL.

The entry is the configured entry signal unless one of --strategy, --signal
or --weights is given. Weighted entries fire when the combined score of the
triggered signals reaches --threshold.`,
		Example: `  backtester backtest SPY --from 2024-01-01 --to 2024-12-31
  backtester backtest AAPL --strategy MACD_RSI_BB --trades
  backtester backtest QQQ --weights rsi_oversold=0.5,volume_surge=0.5 --threshold 0.4
  backtester backtest NVDA --signal ma_crossover --direction signal --csv trades.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			from, to, err := dateRange(cmd, app.Config.Scan.LookbackDays)
			if err != nil {
				return err
			}
			cfg, err := runConfigFromFlags(cmd, app)
			if err != nil {
				return err
			}

			runner := app.newRunner(cmd.Context())
			result, err := runner.RunSymbol(cmd.Context(), args[0], from, to, cfg)
			if err != nil {
				return err
			}

			if path, _ := cmd.Flags().GetString("csv"); path != "" {
				if err := WriteTradesCSV(path, result.Trades); err != nil {
					return err
				}
			}
			if path, _ := cmd.Flags().GetString("equity-csv"); path != "" {
				if err := WriteEquityCSV(path, result.EquityCurve); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			showTrades, _ := cmd.Flags().GetBool("trades")
			printResult(output, result, from, to, showTrades)
			return nil
		},
	}

	cmd.Flags().String("from", "", "first bar date, YYYY-MM-DD (default: --to minus scan.lookback_days)")
	cmd.Flags().String("to", "", "last bar date, YYYY-MM-DD (default: today)")
	cmd.Flags().String("strategy", "", "preset or configured strategy name")
	cmd.Flags().String("signal", "", "single entry signal name")
	cmd.Flags().String("weights", "", "weighted entry, e.g. rsi_oversold=0.5,volume_surge=0.5")
	cmd.Flags().Float64("threshold", 0, "activation threshold for --weights (default: backtest.activation_threshold)")
	cmd.Flags().String("direction", "", "auto, signal, bullish or bearish")
	cmd.Flags().String("profile", "", "pin a strike profile: conservative, balanced, moderate, aggressive")
	cmd.Flags().String("appetite", "", "risk appetite: conservative, balanced, aggressive")
	cmd.Flags().Float64("capital", 0, "initial capital")
	cmd.Flags().Bool("trades", false, "list every closed trade")
	cmd.Flags().String("csv", "", "write closed trades to a CSV file")
	cmd.Flags().String("equity-csv", "", "write the equity curve to a CSV file")
	cmd.MarkFlagsMutuallyExclusive("strategy", "signal", "weights")

	return cmd
}

// dateRange reads --from and --to. Missing bounds default to today and
// lookbackDays before the upper bound.
func dateRange(cmd *cobra.Command, lookbackDays int) (time.Time, time.Time, error) {
	to := utils.DateOnly(time.Now())
	if s, _ := cmd.Flags().GetString("to"); s != "" {
		t, err := utils.ParseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	from := to.AddDate(0, 0, -lookbackDays)
	if s, _ := cmd.Flags().GetString("from"); s != "" {
		t, err := utils.ParseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, apperrors.NewValidationError("from", from.Format("2006-01-02"), "must not be after --to")
	}
	return from, to, nil
}

// runConfigFromFlags maps configuration plus the command flags onto a run
// configuration.
func runConfigFromFlags(cmd *cobra.Command, app *App) (backtest.Config, error) {
	registry := app.Registry
	cfg, err := app.Config.RunConfig(registry)
	if err != nil {
		return backtest.Config{}, err
	}

	flags := cmd.Flags()
	strategyName, _ := flags.GetString("strategy")
	signalName, _ := flags.GetString("signal")
	weightSpec, _ := flags.GetString("weights")

	switch {
	case strategyName != "":
		resolved, err := batch.Resolve([]string{strategyName}, app.Config.CustomStrategies())
		if err != nil {
			return backtest.Config{}, err
		}
		if cfg, err = resolved[0].Config(registry, cfg); err != nil {
			return backtest.Config{}, err
		}
	case signalName != "":
		entry, err := backtest.NewSignalEntry(registry, signalName)
		if err != nil {
			return backtest.Config{}, err
		}
		cfg.Entry = entry
	case weightSpec != "":
		weights, err := ParseWeights(weightSpec)
		if err != nil {
			return backtest.Config{}, err
		}
		threshold := app.Config.Backtest.ActivationThreshold
		if flags.Changed("threshold") {
			threshold, _ = flags.GetFloat64("threshold")
		}
		entry, err := backtest.NewCombinationEntry(registry, weights, threshold)
		if err != nil {
			return backtest.Config{}, err
		}
		cfg.Entry = entry
	}

	if s, _ := flags.GetString("direction"); s != "" {
		if cfg.Direction, err = backtest.ParseDirectionPolicy(s); err != nil {
			return backtest.Config{}, err
		}
	}
	if s, _ := flags.GetString("profile"); s != "" {
		if _, err := options.LookupProfile(s); err != nil {
			return backtest.Config{}, err
		}
		cfg.StrikeProfile = s
	}
	if s, _ := flags.GetString("appetite"); s != "" {
		if cfg.RiskAppetite, err = options.ParseRiskAppetite(s); err != nil {
			return backtest.Config{}, err
		}
	}
	if flags.Changed("capital") {
		cfg.InitialCapital, _ = flags.GetFloat64("capital")
	}
	return cfg, cfg.Validate()
}

// ParseWeights parses "name=weight,name=weight" into a weight map.
func ParseWeights(raw string) (map[string]float64, error) {
	weights := make(map[string]float64)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, apperrors.NewValidationError("weights", part, "want name=weight")
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, apperrors.NewValidationError("weights", part, "weight is not a number")
		}
		weights[strings.TrimSpace(name)] = w
	}
	if len(weights) == 0 {
		return nil, apperrors.NewValidationError("weights", raw, "at least one signal weight is required")
	}
	return weights, nil
}

func formatWeights(weights map[string]float64) string {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%.2f", name, weights[name])
	}
	return strings.Join(parts, ", ")
}

func sortedStrategies(m map[string]batch.Strategy) []batch.Strategy {
	out := make([]batch.Strategy, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func printResult(output *Output, r *models.BacktestResult, from, to time.Time, showTrades bool) {
	output.Bold("%s  %s", r.Symbol, r.Strategy)
	output.Dim("%s to %s  run %s", FormatDate(from), FormatDate(to), r.RunID)
	output.Println()

	if r.Failed() {
		output.Warning("No trades simulated: %s", r.SoftFailure)
		return
	}

	s := r.Summary
	output.KeyValues("Summary", [][2]string{
		{"Initial capital", utils.FormatCurrency(r.InitialCapital)},
		{"Final capital", utils.FormatCurrency(r.FinalCapital)},
		{"Total P&L", output.FormatPnL(s.TotalPnL)},
		{"Total return", output.FormatPercent(s.TotalReturn)},
		{"Trades", fmt.Sprintf("%d (%d won, %d lost)", s.NumTrades, s.Wins, s.Losses)},
		{"Win rate", fmt.Sprintf("%.1f%%", s.WinRate*100)},
		{"Avg win", utils.FormatCurrency(s.AvgWin)},
		{"Avg loss", utils.FormatCurrency(s.AvgLoss)},
		{"Profit factor", FormatRatio(s.ProfitFactor)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdown*100)},
		{"Sharpe ratio", FormatRatio(s.SharpeRatio)},
	})

	if showTrades && len(r.Trades) > 0 {
		output.Println()
		table := NewTable(output, "ENTRY", "EXIT", "SIDE", "PROFILE", "STRIKE", "QTY", "IN", "OUT", "P&L", "RETURN", "REASON")
		for _, t := range r.Trades {
			table.AddRow(
				FormatDate(t.EntryDate),
				FormatDate(t.ExitDate),
				t.Direction.OptionType(),
				t.Profile,
				FormatPrice(t.Strike),
				utils.FormatQuantity(int64(t.Quantity)),
				FormatPrice(t.EntryPremium),
				FormatPrice(t.ExitPremium),
				output.FormatPnL(t.PnL),
				output.FormatPercent(t.PnLPct),
				string(t.ExitReason),
			)
		}
		table.Render()
	}
}
