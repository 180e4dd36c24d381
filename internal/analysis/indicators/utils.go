package indicators

import (
	"errors"
	"math"
	"sort"

	"option-backtester/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

// undefined marks a value inside an indicator's warm-up window.
var undefined = math.NaN()

// IsDefined reports whether v carries a computed indicator value.
func IsDefined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// nanSlice returns a slice of n undefined values.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = undefined
	}
	return out
}

// sum calculates the sum of a slice of float64.
func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// mean calculates the arithmetic mean of a slice of float64.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// sampleStdDev calculates the n-1 standard deviation of a slice of float64.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

// meanAbsDeviation returns the mean absolute deviation around the mean.
func meanAbsDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var total float64
	for _, v := range values {
		total += math.Abs(v - m)
	}
	return total / float64(len(values))
}

// trueRange calculates the true range for a candle.
func trueRange(current, previous models.Candle) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// typicalPrice calculates the typical price (HLC/3) for a candle.
func typicalPrice(c models.Candle) float64 {
	return (c.High + c.Low + c.Close) / 3
}

// closePrices extracts close prices from candles.
func closePrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	return prices
}

// highPrices extracts high prices from candles.
func highPrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.High
	}
	return prices
}

// lowPrices extracts low prices from candles.
func lowPrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Low
	}
	return prices
}

// volumes extracts volumes as floats from candles.
func volumes(candles []models.Candle) []float64 {
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = float64(c.Volume)
	}
	return vols
}

// highest returns the highest value in a slice.
func highest(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	h := values[0]
	for _, v := range values[1:] {
		if v > h {
			h = v
		}
	}
	return h
}

// lowest returns the lowest value in a slice.
func lowest(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	l := values[0]
	for _, v := range values[1:] {
		if v < l {
			l = v
		}
	}
	return l
}

// rollingMean returns the simple moving average of values, undefined until
// period values are available.
func rollingMean(values []float64, period int) []float64 {
	result := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return result
	}
	window := sum(values[:period])
	result[period-1] = window / float64(period)
	for i := period; i < len(values); i++ {
		window += values[i] - values[i-period]
		result[i] = window / float64(period)
	}
	return result
}

// ewm returns an exponentially weighted mean seeded with the first value,
// alpha = 2/(span+1).
func ewm(values []float64, span int) []float64 {
	result := make([]float64, len(values))
	if len(values) == 0 {
		return result
	}
	alpha := 2.0 / float64(span+1)
	result[0] = values[0]
	for i := 1; i < len(values); i++ {
		result[i] = alpha*values[i] + (1-alpha)*result[i-1]
	}
	return result
}

// countBelow returns the share of defined window values strictly below v.
func countBelow(window []float64, v float64) float64 {
	var n, below int
	for _, w := range window {
		if !IsDefined(w) {
			continue
		}
		n++
		if w < v {
			below++
		}
	}
	if n == 0 {
		return undefined
	}
	return float64(below) / float64(n)
}

// percentRank returns the average-rank percentile of the last defined
// value of window among the window's defined values. Ties share the mean
// of their ranks.
func percentRank(window []float64) float64 {
	last := window[len(window)-1]
	if !IsDefined(last) {
		return undefined
	}
	defined := make([]float64, 0, len(window))
	for _, w := range window {
		if IsDefined(w) {
			defined = append(defined, w)
		}
	}
	sort.Float64s(defined)
	lo := sort.SearchFloat64s(defined, last)
	hi := lo
	for hi < len(defined) && defined[hi] == last {
		hi++
	}
	// ranks are 1-based; tied block occupies lo+1..hi
	avgRank := float64(lo+1+hi) / 2
	return avgRank / float64(len(defined))
}
