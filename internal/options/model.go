// Package options holds the deterministic option valuation model and the
// out-of-the-money strike ladder used to size backtest entries.
package options

import (
	"math"

	"option-backtester/internal/models"
)

// Model estimates an option premium as intrinsic value plus a time value
// that shrinks with the square root of time and decays exponentially with
// moneyness. It is a simplified stand-in for live quotes, not a
// market-calibrated pricer.
type Model struct {
	// BaselineRate is the at-the-money time value per unit of spot at one year.
	BaselineRate float64
	// DecayRate penalizes |spot-strike|/spot.
	DecayRate float64
	// Floor is the smallest premium ever returned.
	Floor float64
	// TradingDays annualizes days to expiry.
	TradingDays float64
}

// DefaultModel returns the standard model parameters. At 30 days to expiry
// the at-the-money time value is about 1.5% of spot.
func DefaultModel() Model {
	return Model{
		BaselineRate: 0.0435,
		DecayRate:    5,
		Floor:        0.05,
		TradingDays:  252,
	}
}

// Intrinsic returns the exercise value of a call (bullish) or put (bearish).
func Intrinsic(spot, strike float64, dir models.Direction) float64 {
	if dir == models.Bearish {
		return math.Max(strike-spot, 0)
	}
	return math.Max(spot-strike, 0)
}

// TimeValue returns the extrinsic part of the premium; zero once expired.
func (m Model) TimeValue(spot, strike float64, daysToExpiry int) float64 {
	if daysToExpiry <= 0 || spot <= 0 {
		return 0
	}
	moneyness := math.Abs(spot-strike) / spot
	return spot * m.BaselineRate * math.Sqrt(float64(daysToExpiry)/m.TradingDays) * math.Exp(-m.DecayRate*moneyness)
}

// EstimatePrice returns the premium for one unit of the option, never below Floor.
func (m Model) EstimatePrice(spot, strike float64, dir models.Direction, daysToExpiry int) float64 {
	premium := Intrinsic(spot, strike, dir) + m.TimeValue(spot, strike, daysToExpiry)
	return math.Max(premium, m.Floor)
}
