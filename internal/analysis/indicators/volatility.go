package indicators

import (
	"fmt"

	"option-backtester/internal/models"
)

// ATR calculates the Average True Range with Wilder smoothing.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period + 1
}

func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}

	n := len(candles)
	result := nanSlice(n)
	if n < a.period+1 {
		return result, nil
	}

	// True range needs a previous close, so it starts at bar 1.
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = trueRange(candles[i], candles[i-1])
	}

	result[a.period] = mean(tr[1 : a.period+1])
	for i := a.period + 1; i < n; i++ {
		result[i] = (result[i-1]*float64(a.period-1) + tr[i]) / float64(a.period)
	}

	return result, nil
}

// BollingerBands calculates Bollinger Bands using the sample standard deviation.
type BollingerBands struct {
	period    int
	stdDevMul float64
}

// NewBollingerBands creates a new Bollinger Bands indicator.
func NewBollingerBands(period int, stdDevMul float64) *BollingerBands {
	return &BollingerBands{
		period:    period,
		stdDevMul: stdDevMul,
	}
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BollingerBands_%d_%.1f", b.period, b.stdDevMul)
}

func (b *BollingerBands) Period() int {
	return b.period
}

func (b *BollingerBands) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if b.period <= 1 || b.stdDevMul <= 0 {
		return nil, ErrInvalidPeriod
	}

	n := len(candles)
	closes := closePrices(candles)

	middle := nanSlice(n)
	upper := nanSlice(n)
	lower := nanSlice(n)
	std := nanSlice(n)
	bandwidth := nanSlice(n)

	for i := b.period - 1; i < n; i++ {
		slice := closes[i-b.period+1 : i+1]
		sma := mean(slice)
		sd := sampleStdDev(slice)

		middle[i] = sma
		std[i] = sd
		upper[i] = sma + b.stdDevMul*sd
		lower[i] = sma - b.stdDevMul*sd

		// zero middle band: width resolves to 0
		bandwidth[i] = 0
		if sma != 0 {
			bandwidth[i] = (upper[i] - lower[i]) / sma
		}
	}

	return map[string][]float64{
		"middle":    middle,
		"upper":     upper,
		"lower":     lower,
		"std":       std,
		"bandwidth": bandwidth,
	}, nil
}

// BandWidthPercentile returns, for each bar, the share of the trailing
// window's defined band widths that are strictly narrower than the current
// width. Undefined until the window spans window bars.
func BandWidthPercentile(bandwidth []float64, window int) []float64 {
	result := nanSlice(len(bandwidth))
	if window <= 0 {
		return result
	}
	for i := window - 1; i < len(bandwidth); i++ {
		if !IsDefined(bandwidth[i]) {
			continue
		}
		result[i] = countBelow(bandwidth[i-window+1:i+1], bandwidth[i])
	}
	return result
}

// RollingPercentRank ranks each value against the previous lookback values
// plus itself, using average ranks for ties. Values before the series has
// any defined history stay undefined.
func RollingPercentRank(values []float64, lookback int) []float64 {
	result := nanSlice(len(values))
	for i := range values {
		if !IsDefined(values[i]) {
			continue
		}
		start := i - lookback
		if start < 0 {
			start = 0
		}
		result[i] = percentRank(values[start : i+1])
	}
	return result
}
