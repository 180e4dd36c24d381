// Package config provides configuration management for the backtester.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/viper"

	"option-backtester/internal/analysis/signals"
	"option-backtester/internal/backtest"
	"option-backtester/internal/batch"
	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/logging"
	"option-backtester/internal/marketdata"
	"option-backtester/internal/options"
)

// Config holds all application configuration.
type Config struct {
	Backtest    BacktestConfig            `mapstructure:"backtest" json:"backtest"`
	Valuation   ValuationConfig           `mapstructure:"valuation" json:"valuation"`
	Provider    ProviderConfig            `mapstructure:"provider" json:"provider"`
	Scan        ScanConfig                `mapstructure:"scan" json:"scan"`
	Storage     StorageConfig             `mapstructure:"storage" json:"storage"`
	Logging     LoggingConfig             `mapstructure:"logging" json:"logging"`
	Strategies  map[string]batch.Strategy `mapstructure:"strategies" json:"strategies,omitempty"`
	Credentials Credentials               `mapstructure:"-" json:"-"` // Loaded separately

	// Dir is the directory the files were read from.
	Dir string `mapstructure:"-" json:"-"`
	// CreatedTemplates lists template files written because they were missing.
	CreatedTemplates []string `mapstructure:"-" json:"-"`
}

// BacktestConfig holds the single-run parameters.
type BacktestConfig struct {
	InitialCapital       float64 `mapstructure:"initial_capital" json:"initial_capital"`
	PositionSizeFraction float64 `mapstructure:"position_size_fraction" json:"position_size_fraction"`
	ProfitTarget         float64 `mapstructure:"profit_target" json:"profit_target"`
	StopLoss             float64 `mapstructure:"stop_loss" json:"stop_loss"`
	MaxHoldingDays       int     `mapstructure:"max_holding_days" json:"max_holding_days"`
	DaysToExpiry         int     `mapstructure:"days_to_expiry" json:"days_to_expiry"`
	ContractMultiplier   float64 `mapstructure:"contract_multiplier" json:"contract_multiplier"`
	ActivationThreshold  float64 `mapstructure:"activation_threshold" json:"activation_threshold"`
	Direction            string  `mapstructure:"direction" json:"direction"`           // auto, signal, bullish, bearish
	EntrySignal          string  `mapstructure:"entry_signal" json:"entry_signal"`     // single signal entry
	StrikeProfile        string  `mapstructure:"strike_profile" json:"strike_profile"` // empty selects per entry
	RiskAppetite         string  `mapstructure:"risk_appetite" json:"risk_appetite"`   // conservative, balanced, aggressive
	RoundStrikes         bool    `mapstructure:"round_strikes" json:"round_strikes"`
}

// ValuationConfig holds the option model parameters.
type ValuationConfig struct {
	BaselineRate   float64 `mapstructure:"baseline_rate" json:"baseline_rate"`
	DecayRate      float64 `mapstructure:"decay_rate" json:"decay_rate"`
	PremiumFloor   float64 `mapstructure:"premium_floor" json:"premium_floor"`
	VolatilityNorm float64 `mapstructure:"volatility_norm" json:"volatility_norm"`
}

// ProviderConfig holds market data settings.
type ProviderConfig struct {
	BaseURL         string        `mapstructure:"base_url" json:"base_url"`
	DataDir         string        `mapstructure:"data_dir" json:"data_dir"` // CSV history instead of HTTP
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout"`
	RatePerSecond   float64       `mapstructure:"rate_per_second" json:"rate_per_second"`
	Burst           int           `mapstructure:"burst" json:"burst"`
	MaxRetries      int           `mapstructure:"max_retries" json:"max_retries"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" json:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" json:"breaker_timeout"`
	UseOptionQuotes bool          `mapstructure:"use_option_quotes" json:"use_option_quotes"`
	QuoteTimeout    time.Duration `mapstructure:"quote_timeout" json:"quote_timeout"`
}

// ScanConfig holds batch scan defaults.
type ScanConfig struct {
	Workers      int      `mapstructure:"workers" json:"workers"`
	Symbols      []string `mapstructure:"symbols" json:"symbols"`
	Strategies   []string `mapstructure:"strategies" json:"strategies"`
	LookbackDays int      `mapstructure:"lookback_days" json:"lookback_days"`
	MetricsAddr  string   `mapstructure:"metrics_addr" json:"metrics_addr"`
}

// StorageConfig holds SQLite settings.
type StorageConfig struct {
	DBPath       string `mapstructure:"db_path" json:"db_path"`
	CacheCandles bool   `mapstructure:"cache_candles" json:"cache_candles"`
	SaveRuns     bool   `mapstructure:"save_runs" json:"save_runs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level" json:"level"`
	Console    bool   `mapstructure:"console" json:"console"`
	File       bool   `mapstructure:"file" json:"file"`
	FilePath   string `mapstructure:"file_path" json:"file_path"`
	MaxSize    int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" json:"max_age"`
}

// Credentials holds API credentials.
type Credentials struct {
	Provider ProviderCredentials `mapstructure:"provider"`
}

// ProviderCredentials holds the market data API key.
type ProviderCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/option-backtester"
	}
	return filepath.Join(home, ".config", "option-backtester")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are replaced by commented templates and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{Dir: configDir}

	// Load main config
	created, err := loadConfigFile(configDir, cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading config.toml")
	}
	if created != "" {
		cfg.CreatedTemplates = append(cfg.CreatedTemplates, created)
	}

	// Load credentials
	created, err = loadCredentials(configDir, &cfg.Credentials)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading credentials.toml")
	}
	if created != "" {
		cfg.CreatedTemplates = append(cfg.CreatedTemplates, created)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)
	cfg.Storage.DBPath = ExpandHome(cfg.Storage.DBPath)
	cfg.Logging.FilePath = ExpandHome(cfg.Logging.FilePath)
	cfg.Provider.DataDir = ExpandHome(cfg.Provider.DataDir)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "validating config")
	}

	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{Dir: DefaultConfigDir()}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	def := backtest.DefaultConfig()
	model := options.DefaultModel()
	httpDef := marketdata.DefaultHTTPConfig()
	logDef := logging.DefaultLogConfig()

	v.SetDefault("backtest.initial_capital", def.InitialCapital)
	v.SetDefault("backtest.position_size_fraction", def.PositionSizeFraction)
	v.SetDefault("backtest.profit_target", def.ProfitTarget)
	v.SetDefault("backtest.stop_loss", def.StopLoss)
	v.SetDefault("backtest.max_holding_days", def.MaxHoldingDays)
	v.SetDefault("backtest.days_to_expiry", def.DaysToExpiry)
	v.SetDefault("backtest.contract_multiplier", def.ContractMultiplier)
	v.SetDefault("backtest.activation_threshold", backtest.DefaultActivationThreshold)
	v.SetDefault("backtest.direction", string(def.Direction))
	v.SetDefault("backtest.entry_signal", signals.BBCompression)
	v.SetDefault("backtest.strike_profile", "")
	v.SetDefault("backtest.risk_appetite", string(def.RiskAppetite))
	v.SetDefault("backtest.round_strikes", def.RoundStrikes)

	v.SetDefault("valuation.baseline_rate", model.BaselineRate)
	v.SetDefault("valuation.decay_rate", model.DecayRate)
	v.SetDefault("valuation.premium_floor", model.Floor)
	v.SetDefault("valuation.volatility_norm", def.VolatilityNorm)

	v.SetDefault("provider.base_url", httpDef.BaseURL)
	v.SetDefault("provider.data_dir", "")
	v.SetDefault("provider.timeout", httpDef.Timeout)
	v.SetDefault("provider.rate_per_second", httpDef.RatePerSecond)
	v.SetDefault("provider.burst", httpDef.Burst)
	v.SetDefault("provider.max_retries", httpDef.MaxRetries)
	v.SetDefault("provider.breaker_failures", httpDef.BreakerFailures)
	v.SetDefault("provider.breaker_timeout", httpDef.BreakerTimeout)
	v.SetDefault("provider.use_option_quotes", false)
	v.SetDefault("provider.quote_timeout", backtest.DefaultQuoteTimeout)

	v.SetDefault("scan.workers", 4)
	v.SetDefault("scan.symbols", []string{"SPY", "QQQ", "AAPL", "MSFT", "NVDA"})
	v.SetDefault("scan.strategies", batch.PresetNames())
	v.SetDefault("scan.lookback_days", 365)
	v.SetDefault("scan.metrics_addr", "")

	home, _ := os.UserHomeDir()
	v.SetDefault("storage.db_path", filepath.Join(home, ".config", "option-backtester", "backtests.db"))
	v.SetDefault("storage.cache_candles", true)
	v.SetDefault("storage.save_runs", true)

	v.SetDefault("logging.level", logDef.Level)
	v.SetDefault("logging.console", logDef.Console)
	v.SetDefault("logging.file", logDef.File)
	v.SetDefault("logging.file_path", logDef.FilePath)
	v.SetDefault("logging.max_size", logDef.MaxSize)
	v.SetDefault("logging.max_backups", logDef.MaxBackups)
	v.SetDefault("logging.max_age", logDef.MaxAge)
}

func loadConfigFile(configDir string, target *Config) (string, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	created := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return "", err
		}
		// Config file not found, create template and continue on defaults
		path, err := createTemplate(configDir, "config.toml", configTemplate, 0644)
		if err != nil {
			return "", err
		}
		created = path
	}

	return created, v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) (string, error) {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Use restricted permissions for credentials file
			path, err := createTemplate(configDir, "credentials.toml", credentialsTemplate, 0600)
			return path, err
		}
		return "", err
	}

	return "", v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKTEST_API_KEY"); v != "" {
		cfg.Credentials.Provider.APIKey = v
	}
	if v := os.Getenv("BACKTEST_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("BACKTEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BACKTEST_DATA_DIR"); v != "" {
		cfg.Provider.DataDir = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	b := c.Backtest
	switch {
	case b.InitialCapital <= 0:
		return apperrors.NewValidationError("backtest.initial_capital", b.InitialCapital, "must be positive")
	case b.PositionSizeFraction <= 0 || b.PositionSizeFraction > 1:
		return apperrors.NewValidationError("backtest.position_size_fraction", b.PositionSizeFraction, "must be in (0, 1]")
	case b.ProfitTarget <= 0:
		return apperrors.NewValidationError("backtest.profit_target", b.ProfitTarget, "must be positive")
	case b.StopLoss >= 0:
		return apperrors.NewValidationError("backtest.stop_loss", b.StopLoss, "must be negative")
	case b.MaxHoldingDays <= 0:
		return apperrors.NewValidationError("backtest.max_holding_days", b.MaxHoldingDays, "must be positive")
	case b.DaysToExpiry <= 0:
		return apperrors.NewValidationError("backtest.days_to_expiry", b.DaysToExpiry, "must be positive")
	case b.ContractMultiplier <= 0:
		return apperrors.NewValidationError("backtest.contract_multiplier", b.ContractMultiplier, "must be positive")
	case b.ActivationThreshold < 0 || b.ActivationThreshold > 1:
		return apperrors.NewValidationError("backtest.activation_threshold", b.ActivationThreshold, "must be in [0, 1]")
	}
	if _, err := backtest.ParseDirectionPolicy(b.Direction); err != nil {
		return err
	}
	if _, err := options.ParseRiskAppetite(b.RiskAppetite); err != nil {
		return err
	}
	if b.StrikeProfile != "" {
		if _, err := options.LookupProfile(b.StrikeProfile); err != nil {
			return err
		}
	}

	if c.Valuation.BaselineRate <= 0 {
		return apperrors.NewValidationError("valuation.baseline_rate", c.Valuation.BaselineRate, "must be positive")
	}
	if c.Valuation.DecayRate < 0 {
		return apperrors.NewValidationError("valuation.decay_rate", c.Valuation.DecayRate, "must not be negative")
	}
	if c.Valuation.PremiumFloor <= 0 {
		return apperrors.NewValidationError("valuation.premium_floor", c.Valuation.PremiumFloor, "must be positive")
	}
	if c.Valuation.VolatilityNorm <= 0 {
		return apperrors.NewValidationError("valuation.volatility_norm", c.Valuation.VolatilityNorm, "must be positive")
	}

	if c.Scan.Workers < 1 {
		return apperrors.NewValidationError("scan.workers", c.Scan.Workers, "must be at least 1")
	}
	if c.Scan.LookbackDays < 1 {
		return apperrors.NewValidationError("scan.lookback_days", c.Scan.LookbackDays, "must be at least 1")
	}

	registry := signals.DefaultRegistry()
	for _, name := range c.strategyNames() {
		s := c.Strategies[name]
		if len(s.Weights) == 0 {
			return apperrors.NewValidationError("strategies."+name+".signal_weights", nil, "at least one signal weight is required")
		}
		if err := registry.ValidateWeights(s.Weights); err != nil {
			return apperrors.Wrapf(err, "strategies.%s", name)
		}
	}
	return nil
}

func (c *Config) strategyNames() []string {
	names := make([]string, 0, len(c.Strategies))
	for name := range c.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model returns the option valuation model.
func (c *Config) Model() options.Model {
	m := options.DefaultModel()
	m.BaselineRate = c.Valuation.BaselineRate
	m.DecayRate = c.Valuation.DecayRate
	m.Floor = c.Valuation.PremiumFloor
	return m
}

// RunConfig maps the [backtest] and [valuation] sections onto a run
// configuration with a single-signal entry.
func (c *Config) RunConfig(registry *signals.Registry) (backtest.Config, error) {
	b := c.Backtest
	cfg := backtest.DefaultConfig()
	cfg.InitialCapital = b.InitialCapital
	cfg.PositionSizeFraction = b.PositionSizeFraction
	cfg.ProfitTarget = b.ProfitTarget
	cfg.StopLoss = b.StopLoss
	cfg.MaxHoldingDays = b.MaxHoldingDays
	cfg.DaysToExpiry = b.DaysToExpiry
	cfg.ContractMultiplier = b.ContractMultiplier
	cfg.StrikeProfile = b.StrikeProfile
	cfg.RoundStrikes = b.RoundStrikes
	cfg.VolatilityNorm = c.Valuation.VolatilityNorm

	var err error
	if cfg.Direction, err = backtest.ParseDirectionPolicy(b.Direction); err != nil {
		return backtest.Config{}, err
	}
	if cfg.RiskAppetite, err = options.ParseRiskAppetite(b.RiskAppetite); err != nil {
		return backtest.Config{}, err
	}
	if b.EntrySignal != "" {
		entry, err := backtest.NewSignalEntry(registry, b.EntrySignal)
		if err != nil {
			return backtest.Config{}, err
		}
		cfg.Entry = entry
	}
	return cfg, cfg.Validate()
}

// CustomStrategies returns the [strategies.<name>] tables with names filled
// in and the configured activation threshold applied where none is set.
func (c *Config) CustomStrategies() map[string]batch.Strategy {
	out := make(map[string]batch.Strategy, len(c.Strategies))
	for name, s := range c.Strategies {
		if s.Name == "" {
			s.Name = name
		}
		if s.Threshold == 0 {
			s.Threshold = c.Backtest.ActivationThreshold
		}
		out[name] = s
	}
	return out
}

// HTTPConfig returns the market data client settings.
func (c *Config) HTTPConfig() marketdata.HTTPConfig {
	return marketdata.HTTPConfig{
		BaseURL:         c.Provider.BaseURL,
		APIKey:          c.Credentials.Provider.APIKey,
		Timeout:         c.Provider.Timeout,
		RatePerSecond:   c.Provider.RatePerSecond,
		Burst:           c.Provider.Burst,
		MaxRetries:      c.Provider.MaxRetries,
		BreakerFailures: c.Provider.BreakerFailures,
		BreakerTimeout:  c.Provider.BreakerTimeout,
	}
}

// LogConfig returns the logger settings.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}
