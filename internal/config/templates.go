package config

import (
	"os"
	"path/filepath"

	apperrors "option-backtester/internal/errors"
)

const configTemplate = `# Option Backtester Configuration

[backtest]
# Starting cash of every run
initial_capital = 10000.0
# Share of realized capital committed per entry, in (0, 1]
position_size_fraction = 0.1
# Exit when the position return reaches +50%
profit_target = 0.5
# Exit when the position return falls to -80%
stop_loss = -0.8
# Exit after this many calendar days
max_holding_days = 30
# Days to expiry of newly opened contracts
days_to_expiry = 30
# Underlying units per contract
contract_multiplier = 100.0
# Combined score a weighted strategy needs to enter
activation_threshold = 0.3
# Option side: auto, signal, bullish, bearish
direction = "auto"
# Entry signal for single-signal runs
entry_signal = "bb_compression"
# Pin a strike profile (conservative, balanced, moderate, aggressive); empty selects per entry
strike_profile = ""
# Risk appetite for per-entry strike selection: conservative, balanced, aggressive
risk_appetite = "balanced"
# Round strikes to listed increments
round_strikes = true

[valuation]
# At-the-money time value per unit of spot at one year
baseline_rate = 0.0435
# Time value decay per unit of moneyness
decay_rate = 5.0
# Smallest premium ever quoted
premium_floor = 0.05
# ATR/price ratio treated as fully volatile
volatility_norm = 0.08

[provider]
# Aggregates REST endpoint
base_url = "https://api.polygon.io"
# Read <SYMBOL>.csv files from this directory instead of the API
data_dir = ""
timeout = "15s"
rate_per_second = 5.0
burst = 1
max_retries = 3
# Open the circuit after this many consecutive upstream failures
breaker_failures = 5
breaker_timeout = "60s"
# Price entries from traded option closes, falling back to the model
use_option_quotes = false
quote_timeout = "10s"

[scan]
workers = 4
symbols = ["SPY", "QQQ", "AAPL", "MSFT", "NVDA"]
strategies = ["BB_Volume_Hybrid", "CCI_Williams_Hybrid", "MACD_RSI_BB", "RSI_MACD_Divergence", "Volume_MA_Momentum"]
lookback_days = 365
# Serve Prometheus metrics during scans, e.g. ":9090"
metrics_addr = ""

[storage]
db_path = "~/.config/option-backtester/backtests.db"
# Cache daily bars between runs
cache_candles = true
# Persist every run and its trades
save_runs = true

[logging]
# Level: debug, info, warn, error
level = "info"
console = true
file = false
file_path = "~/.config/option-backtester/logs/backtester.log"
max_size = 50
max_backups = 5
max_age = 30

# Custom strategies: weighted signal combinations. Built-in presets are
# always available by name.
#
# [strategies.trend_follow]
# activation_threshold = 0.4
# profit_target = 1.0
# stop_loss = -0.5
#
# [strategies.trend_follow.signal_weights]
# ma_crossover = 0.5
# price_above_ma50 = 0.3
# volume_surge = 0.2
`

const credentialsTemplate = `# Option Backtester Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[provider]
api_key = ""
`

func createTemplate(configDir, name, content string, perm os.FileMode) (string, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", apperrors.Wrap(err, "creating config directory")
	}

	path := filepath.Join(configDir, name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return "", apperrors.Wrapf(err, "writing %s template", name)
	}

	return path, nil
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
