package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"option-backtester/internal/analysis/direction"
	"option-backtester/internal/analysis/indicators"
	"option-backtester/internal/analysis/signals"
	"option-backtester/internal/batch"
	"option-backtester/internal/options"
	"option-backtester/pkg/utils"
)

type signalInfo struct {
	Name          string  `json:"name"`
	DefaultWeight float64 `json:"default_weight"`
	Description   string  `json:"description"`
}

func newSignalsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "List the entry signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			defs := app.Registry.Definitions()

			infos := make([]signalInfo, len(defs))
			for i, d := range defs {
				infos[i] = signalInfo{Name: d.Name, DefaultWeight: d.DefaultWeight, Description: d.Description}
			}
			if output.IsJSON() {
				return output.JSON(infos)
			}

			table := NewTable(output, "SIGNAL", "WEIGHT", "DESCRIPTION")
			for _, s := range infos {
				table.AddRow(s.Name, fmt.Sprintf("%.2f", s.DefaultWeight), s.Description)
			}
			table.Render()
			output.Println()
			output.Dim("Strategies: %s", strings.Join(presetNames(app), ", "))
			return nil
		},
	}

	cmd.AddCommand(newSignalsCheckCmd(app))
	return cmd
}

func presetNames(app *App) []string {
	names := batch.PresetNames()
	for _, s := range sortedStrategies(app.Config.CustomStrategies()) {
		names = append(names, s.Name)
	}
	return names
}

type signalCheck struct {
	Symbol     string                   `json:"symbol"`
	Date       string                   `json:"date"`
	Close      float64                  `json:"close"`
	Evaluation signals.Evaluation       `json:"evaluation"`
	Direction  string                   `json:"direction"`
	Confidence float64                  `json:"confidence"`
	Reasons    []string                 `json:"reasons"`
	Conditions options.MarketConditions `json:"conditions"`
	Strike     options.Selection        `json:"strike"`
}

func newSignalsCheckCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check SYMBOL",
		Short: "Evaluate the signals on the latest bar of a symbol",
		Long: `Fetch recent history for SYMBOL and report which signals fire on the last
bar, the combined score, the direction the selector would take and the
strike profile it would choose.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol, _ := utils.NormalizeSymbol(args[0])

			from, to, err := dateRange(cmd, app.Config.Scan.LookbackDays)
			if err != nil {
				return err
			}
			weights := app.Registry.DefaultWeights()
			if raw, _ := cmd.Flags().GetString("weights"); raw != "" {
				if weights, err = ParseWeights(raw); err != nil {
					return err
				}
				if err := app.Registry.ValidateWeights(weights); err != nil {
					return err
				}
			}

			provider, _ := app.priceProvider(cmd.Context())
			candles, err := provider.FetchDaily(cmd.Context(), symbol, from, to)
			if err != nil {
				return err
			}
			frame, err := indicators.DefaultPipeline().Build(candles)
			if err != nil {
				return err
			}
			idx := frame.Len() - 1

			b := app.Config.Backtest
			appetite, err := options.ParseRiskAppetite(b.RiskAppetite)
			if err != nil {
				return err
			}
			assessment := direction.NewSelector().Assess(frame, idx, weights)
			mc := options.ConditionsFromFrame(frame, idx, b.DaysToExpiry, app.Config.Valuation.VolatilityNorm)

			check := signalCheck{
				Symbol:     symbol,
				Date:       FormatDate(frame.Date(idx)),
				Close:      frame.Close(idx),
				Evaluation: app.Registry.Evaluate(frame, idx, weights),
				Direction:  string(assessment.Direction),
				Confidence: assessment.Confidence,
				Reasons:    assessment.Reasons,
				Conditions: mc,
				Strike:     options.DefaultStrikeSelector().Explain(mc, appetite),
			}
			if output.IsJSON() {
				return output.JSON(check)
			}
			printSignalCheck(output, check, assessment)
			return nil
		},
	}

	cmd.Flags().String("weights", "", "signal weights, e.g. rsi_oversold=0.5,volume_surge=0.5 (default: all signals)")
	cmd.Flags().String("from", "", "first bar date, YYYY-MM-DD")
	cmd.Flags().String("to", "", "last bar date, YYYY-MM-DD (default: today)")
	return cmd
}

func printSignalCheck(output *Output, c signalCheck, a direction.Assessment) {
	output.Bold("%s  %s  close %s", c.Symbol, c.Date, FormatPrice(c.Close))
	output.Println()

	if len(c.Evaluation.Contributions) == 0 {
		output.Dim("No signals triggered")
	} else {
		table := NewTable(output, "SIGNAL", "STRENGTH", "WEIGHT", "CONTRIBUTION")
		for _, ct := range c.Evaluation.Contributions {
			table.AddRow(ct.Signal,
				fmt.Sprintf("%.2f", ct.Strength),
				fmt.Sprintf("%.2f", ct.Weight),
				fmt.Sprintf("%.3f", ct.Contribution))
		}
		table.Render()
	}
	output.Println()

	output.KeyValues("Reading", [][2]string{
		{"Combined score", fmt.Sprintf("%.3f (%s)", c.Evaluation.Score, c.Evaluation.Direction)},
		{"Direction", direction.Explain(a)},
		{"Confidence", FormatConfidence(c.Confidence)},
		{"Volatility", fmt.Sprintf("%.2f", c.Conditions.Volatility)},
		{"Momentum", fmt.Sprintf("%+.2f", c.Conditions.Momentum)},
		{"Band percentile", fmt.Sprintf("%.2f", c.Conditions.BandPercentile)},
		{"Strike profile", c.Strike.Profile.Name},
	})
	output.Dim("  %s", strings.Join(c.Strike.Steps, " -> "))
}

func newStrikesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strikes",
		Short: "Choose a strike profile for given market conditions",
		Long: `Walk the out-of-the-money ladder for the given regime and show each
adjustment. With --spot and --move the candidate profiles are also priced
under the hypothesized move and ranked by expected value.`,
		Example: `  backtester strikes --volatility 0.4 --momentum 0.6 --band 0.2
  backtester strikes --volatility 0.8 --dte 10 --appetite aggressive --spot 450 --move 0.05`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			flags := cmd.Flags()

			mc := options.MarketConditions{}
			mc.Volatility, _ = flags.GetFloat64("volatility")
			mc.Momentum, _ = flags.GetFloat64("momentum")
			mc.BandPercentile, _ = flags.GetFloat64("band")
			mc.DaysToExpiry, _ = flags.GetInt("dte")
			if !flags.Changed("dte") {
				mc.DaysToExpiry = app.Config.Backtest.DaysToExpiry
			}

			appetiteName := app.Config.Backtest.RiskAppetite
			if flags.Changed("appetite") {
				appetiteName, _ = flags.GetString("appetite")
			}
			appetite, err := options.ParseRiskAppetite(appetiteName)
			if err != nil {
				return err
			}

			selector := options.DefaultStrikeSelector()
			selection := selector.Explain(mc, appetite)

			spot, _ := flags.GetFloat64("spot")
			move, _ := flags.GetFloat64("move")
			var rec *options.Recommendation
			if spot > 0 {
				r := app.Config.Model().Recommend(selector, mc, appetite, spot, move)
				rec = &r
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"conditions":     mc,
					"selection":      selection,
					"recommendation": rec,
				})
			}

			p := selection.Profile
			output.KeyValues("Selected profile", [][2]string{
				{"Profile", p.Name},
				{"Call strike", fmt.Sprintf("%.0f%% of spot", p.CallMultiplier()*100)},
				{"Put strike", fmt.Sprintf("%.0f%% of spot", p.PutMultiplier()*100)},
				{"Win rate", fmt.Sprintf("%.0f%%", p.WinRate*100)},
			})
			output.Dim("  %s", strings.Join(selection.Steps, " -> "))

			if rec != nil {
				output.Println()
				table := NewTable(output, "PROFILE", "SIDE", "STRIKE", "ENTRY", "EXIT", "RETURN", "EV", "R/R")
				for _, est := range rec.Evaluations {
					name := est.Profile.Key
					if est.Profile.Key == rec.Best.Profile.Key {
						name = output.Green(name + " *")
					}
					table.AddRow(name,
						est.Direction.OptionType(),
						FormatPrice(est.Strike),
						FormatPrice(est.EntryPremium),
						FormatPrice(est.ExitPremium),
						output.FormatPercent(est.ProfitPct),
						fmt.Sprintf("%.3f", est.ExpectedValue),
						FormatRatio(est.RiskReward))
				}
				table.Render()
			}
			return nil
		},
	}

	cmd.Flags().Float64("volatility", 0.5, "normalized band width, roughly 0..1")
	cmd.Flags().Float64("momentum", 0, "RSI mapped onto -1..1")
	cmd.Flags().Float64("band", 0.5, "band-width percentile, 0..1")
	cmd.Flags().Int("dte", 0, "days to expiry (default: backtest.days_to_expiry)")
	cmd.Flags().String("appetite", "", "conservative, balanced or aggressive (default: backtest.risk_appetite)")
	cmd.Flags().Float64("spot", 0, "underlying price for the expected-value comparison")
	cmd.Flags().Float64("move", 0.05, "hypothesized fractional move, negative for a put")
	return cmd
}
