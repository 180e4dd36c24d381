package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"option-backtester/internal/analysis/signals"
	"option-backtester/internal/backtest"
	"option-backtester/internal/config"
	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/logging"
	"option-backtester/internal/marketdata"
	"option-backtester/internal/store"
	"option-backtester/internal/telemetry"
	"option-backtester/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-19"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    store.DataStore
	Metrics  *telemetry.Metrics
	Registry *signals.Registry

	// Provider overrides the configured price source when set.
	Provider backtest.PriceProvider
}

// NewApp builds the application dependencies. The SQLite store is opened
// when a database path is configured and caching or run history is enabled;
// callers release it with Close.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  telemetry.New(),
		Registry: signals.DefaultRegistry(),
	}

	if cfg.Storage.DBPath != "" && (cfg.Storage.CacheCandles || cfg.Storage.SaveRuns) {
		dataStore, err := openStore(cfg.Storage.DBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize store, caching and run history are unavailable")
		} else {
			app.Store = dataStore
			logger.Debug().Str("path", cfg.Storage.DBPath).Msg("SQLite store initialized")
		}
	}
	return app
}

// Close releases the store, checkpointing its write-ahead log.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return apperrors.Wrap(err, "closing store")
}

func openStore(path string) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.Wrap(err, "creating database directory")
	}
	return store.NewSQLiteStore(path)
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "backtester",
		Short: "Options strategy backtester",
		Long: `Backtests long call and put strategies on daily price history.

Entries come from technical signals or weighted signal combinations, the
option side from a direction heuristic and the strike from an
out-of-the-money ladder chosen by market regime. Premiums are estimated
with an intrinsic plus time value model.

Use 'backtester signals' to list the available signals.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Handle debug flag
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			logger := logging.WithOperation(app.Logger, cmd.Name())
			cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/option-backtester)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newSignalsCmd(app))
	rootCmd.AddCommand(newStrikesCmd(app))
	rootCmd.AddCommand(newRunsCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Option Backtester v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.Config.Dir})
			}
			output.Println(app.Config.Dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	b := cfg.Backtest
	profile := b.StrikeProfile
	if profile == "" {
		profile = "per entry (" + b.RiskAppetite + ")"
	}
	output.KeyValues("Backtest", [][2]string{
		{"Initial capital", utils.FormatCurrency(b.InitialCapital)},
		{"Position size", fmt.Sprintf("%.0f%% of capital", b.PositionSizeFraction*100)},
		{"Profit target", fmt.Sprintf("%+.0f%%", b.ProfitTarget*100)},
		{"Stop loss", fmt.Sprintf("%+.0f%%", b.StopLoss*100)},
		{"Max holding", fmt.Sprintf("%d days", b.MaxHoldingDays)},
		{"Days to expiry", fmt.Sprintf("%d", b.DaysToExpiry)},
		{"Direction", b.Direction},
		{"Entry signal", b.EntrySignal},
		{"Strike profile", profile},
	})
	output.Println()

	v := cfg.Valuation
	output.KeyValues("Valuation", [][2]string{
		{"Baseline rate", fmt.Sprintf("%.4f", v.BaselineRate)},
		{"Decay rate", fmt.Sprintf("%.2f", v.DecayRate)},
		{"Premium floor", FormatPrice(v.PremiumFloor)},
	})
	output.Println()

	source := cfg.Provider.BaseURL
	if cfg.Provider.DataDir != "" {
		source = cfg.Provider.DataDir + " (CSV)"
	}
	apiKey := "not set"
	if cfg.Credentials.Provider.APIKey != "" {
		apiKey = "set"
	}
	output.KeyValues("Provider", [][2]string{
		{"Source", source},
		{"API key", apiKey},
		{"Rate limit", fmt.Sprintf("%.1f/s", cfg.Provider.RatePerSecond)},
		{"Option quotes", fmt.Sprintf("%t", cfg.Provider.UseOptionQuotes)},
	})
	output.Println()

	output.KeyValues("Scan", [][2]string{
		{"Workers", fmt.Sprintf("%d", cfg.Scan.Workers)},
		{"Symbols", strings.Join(cfg.Scan.Symbols, ", ")},
		{"Strategies", strings.Join(cfg.Scan.Strategies, ", ")},
		{"Lookback", fmt.Sprintf("%d days", cfg.Scan.LookbackDays)},
	})
	output.Println()

	output.KeyValues("Storage", [][2]string{
		{"Database", cfg.Storage.DBPath},
		{"Cache candles", fmt.Sprintf("%t", cfg.Storage.CacheCandles)},
		{"Save runs", fmt.Sprintf("%t", cfg.Storage.SaveRuns)},
	})

	if len(cfg.Strategies) > 0 {
		output.Println()
		output.Bold("Custom strategies")
		for _, s := range sortedStrategies(cfg.CustomStrategies()) {
			output.Printf("  %s  %s\n", PadRight(s.Name, 20), output.DimText(formatWeights(s.Weights)))
		}
	}
}

// priceProvider returns the configured price source: CSV files when a data
// directory is set, the HTTP API otherwise, behind the candle cache when
// enabled. The HTTP provider is also returned for option quotes.
func (a *App) priceProvider(ctx context.Context) (backtest.PriceProvider, *marketdata.HTTPProvider) {
	logger := logging.FromContext(ctx)
	if a.Provider != nil {
		return a.Provider, nil
	}

	var (
		upstream marketdata.Fetcher
		httpProv *marketdata.HTTPProvider
	)
	if dir := a.Config.Provider.DataDir; dir != "" {
		upstream = marketdata.NewCSVProvider(dir)
		logger.Debug().Str("dir", dir).Msg("Reading price history from CSV files")
	} else {
		httpProv = marketdata.NewHTTPProvider(a.Config.HTTPConfig(),
			marketdata.WithHTTPLogger(logger),
			marketdata.WithRequestObserver(a.Metrics),
		)
		upstream = httpProv
	}

	if a.Store != nil && a.Config.Storage.CacheCandles {
		return marketdata.NewCachedProvider(upstream, a.Store, logger), httpProv
	}
	return upstream, httpProv
}

// newRunner wires the engine and runner from configuration.
func (a *App) newRunner(ctx context.Context) *backtest.Runner {
	logger := logging.FromContext(ctx)
	provider, httpProv := a.priceProvider(ctx)
	model := a.Config.Model()

	engineOpts := []backtest.Option{
		backtest.WithModel(model),
		backtest.WithObserver(a.Metrics),
		backtest.WithLogger(logger),
	}
	if a.Config.Provider.UseOptionQuotes && httpProv != nil {
		pricer := backtest.NewFallbackPricer(httpProv, model, logger)
		pricer.Timeout = a.Config.Provider.QuoteTimeout
		pricer.OnFallback = a.Metrics.QuoteFallback
		engineOpts = append(engineOpts, backtest.WithPricer(pricer))
	}

	runnerOpts := []backtest.RunnerOption{backtest.WithRunnerLogger(logger)}
	if a.Store != nil && a.Config.Storage.SaveRuns {
		runnerOpts = append(runnerOpts, backtest.WithRunStore(a.Store))
	}
	return backtest.NewRunner(backtest.NewEngine(engineOpts...), provider, runnerOpts...)
}
