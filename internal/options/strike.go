package options

import (
	"math"

	"option-backtester/internal/models"
)

// RoundStrike snaps a price to a listed-strike grid: half dollars below 10,
// dollars below 50, fives below 100 and tens above. Halves round to even.
func RoundStrike(price float64) float64 {
	switch {
	case price < 10:
		return math.RoundToEven(price*2) / 2
	case price < 50:
		return math.RoundToEven(price)
	case price < 100:
		return math.RoundToEven(price/5) * 5
	default:
		return math.RoundToEven(price/10) * 10
	}
}

// StrikeFor returns the profile's strike for spot and direction, optionally
// rounded to the listed grid.
func StrikeFor(p Profile, spot float64, dir models.Direction, round bool) float64 {
	strike := spot * p.Multiplier(dir)
	if round {
		strike = RoundStrike(strike)
	}
	return strike
}
