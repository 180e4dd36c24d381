package backtest

import (
	"fmt"

	"option-backtester/internal/analysis/indicators"
	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/options"
)

// DirectionPolicy decides how the option side of a new position is chosen.
type DirectionPolicy string

const (
	// DirectionAuto asks the direction selector on every entry.
	DirectionAuto DirectionPolicy = "auto"
	// DirectionSignal follows the entry predicate's own direction and falls
	// back to the selector when the predicate carries none.
	DirectionSignal DirectionPolicy = "signal"
	DirectionBullish DirectionPolicy = "bullish"
	DirectionBearish DirectionPolicy = "bearish"
)

// ParseDirectionPolicy accepts auto, signal, and the explicit direction names
// understood by models.ParseDirection.
func ParseDirectionPolicy(s string) (DirectionPolicy, error) {
	switch s {
	case "", "auto":
		return DirectionAuto, nil
	case "signal":
		return DirectionSignal, nil
	case "bullish", "call", "long_call", "bull":
		return DirectionBullish, nil
	case "bearish", "put", "long_put", "bear":
		return DirectionBearish, nil
	}
	return "", apperrors.NewValidationError("direction", s, "must be auto, signal, bullish or bearish")
}

// Config parameterizes a single backtest run.
type Config struct {
	// Strategy labels the run in results; defaults to the entry predicate name.
	Strategy string

	InitialCapital       float64
	PositionSizeFraction float64 // share of realized capital committed per entry
	ProfitTarget         float64 // fractional return, 0.5 = +50%
	StopLoss             float64 // fractional return, -0.8 = -80%
	MaxHoldingDays       int
	DaysToExpiry         int
	ContractMultiplier   float64
	MinHistory           int // bars required before the first entry

	Direction DirectionPolicy
	Entry     EntryPredicate

	// StrikeProfile pins a ladder profile key; empty selects per entry.
	StrikeProfile  string
	RiskAppetite   options.RiskAppetite
	RoundStrikes   bool
	VolatilityNorm float64
}

// DefaultConfig returns the standard run parameters with a band-compression
// entry on the default signal registry.
func DefaultConfig() Config {
	return Config{
		InitialCapital:       10000,
		PositionSizeFraction: 0.1,
		ProfitTarget:         0.5,
		StopLoss:             -0.8,
		MaxHoldingDays:       30,
		DaysToExpiry:         30,
		ContractMultiplier:   100,
		MinHistory:           indicators.MinHistory,
		Direction:            DirectionAuto,
		Entry:                DefaultEntry(),
		RiskAppetite:         options.AppetiteBalanced,
		RoundStrikes:         true,
		VolatilityNorm:       0.08,
	}
}

// Name returns the strategy label of the run.
func (c Config) Name() string {
	if c.Strategy != "" {
		return c.Strategy
	}
	if c.Entry != nil {
		return c.Entry.Name()
	}
	return ""
}

// Validate checks the run parameters.
func (c Config) Validate() error {
	switch {
	case c.InitialCapital <= 0:
		return apperrors.NewValidationError("initial_capital", fmt.Sprint(c.InitialCapital), "must be positive")
	case c.PositionSizeFraction <= 0 || c.PositionSizeFraction > 1:
		return apperrors.NewValidationError("position_size_fraction", fmt.Sprint(c.PositionSizeFraction), "must be in (0, 1]")
	case c.ProfitTarget <= 0:
		return apperrors.NewValidationError("profit_target", fmt.Sprint(c.ProfitTarget), "must be positive")
	case c.StopLoss >= 0:
		return apperrors.NewValidationError("stop_loss", fmt.Sprint(c.StopLoss), "must be negative")
	case c.MaxHoldingDays <= 0:
		return apperrors.NewValidationError("max_holding_days", fmt.Sprint(c.MaxHoldingDays), "must be positive")
	case c.DaysToExpiry <= 0:
		return apperrors.NewValidationError("days_to_expiry", fmt.Sprint(c.DaysToExpiry), "must be positive")
	case c.ContractMultiplier <= 0:
		return apperrors.NewValidationError("contract_multiplier", fmt.Sprint(c.ContractMultiplier), "must be positive")
	case c.MinHistory < 0:
		return apperrors.NewValidationError("min_history", fmt.Sprint(c.MinHistory), "must not be negative")
	case c.Entry == nil:
		return apperrors.NewValidationError("entry", "", "an entry predicate is required")
	}

	switch c.Direction {
	case DirectionAuto, DirectionSignal, DirectionBullish, DirectionBearish:
	default:
		return apperrors.NewValidationError("direction", string(c.Direction), "must be auto, signal, bullish or bearish")
	}

	if c.StrikeProfile != "" {
		if _, err := options.LookupProfile(c.StrikeProfile); err != nil {
			return err
		}
	}
	if _, err := options.ParseRiskAppetite(string(c.RiskAppetite)); err != nil {
		return err
	}
	return nil
}
