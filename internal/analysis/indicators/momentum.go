package indicators

import (
	"fmt"

	"option-backtester/internal/models"
)

// RSI calculates the Relative Strength Index with Wilder smoothing.
// A window with no losses reads 100.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI_%d", r.period)
}

func (r *RSI) Period() int {
	return r.period + 1
}

func (r *RSI) Calculate(candles []models.Candle) ([]float64, error) {
	if r.period <= 0 {
		return nil, ErrInvalidPeriod
	}

	n := len(candles)
	result := nanSlice(n)
	if n < r.period+1 {
		return result, nil
	}
	closes := closePrices(candles)

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := mean(gains[1 : r.period+1])
	avgLoss := mean(losses[1 : r.period+1])
	result[r.period] = rsiValue(avgGain, avgLoss)

	for i := r.period + 1; i < n; i++ {
		avgGain = (avgGain*float64(r.period-1) + gains[i]) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + losses[i]) / float64(r.period)
		result[i] = rsiValue(avgGain, avgLoss)
	}

	return result, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// Momentum is the fractional change of the close over period bars.
type Momentum struct {
	period int
}

// NewMomentum creates a new Momentum indicator.
func NewMomentum(period int) *Momentum {
	return &Momentum{period: period}
}

func (m *Momentum) Name() string {
	return fmt.Sprintf("Momentum_%d", m.period)
}

func (m *Momentum) Period() int {
	return m.period + 1
}

func (m *Momentum) Calculate(candles []models.Candle) ([]float64, error) {
	if m.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	return fractionalChange(closePrices(candles), m.period), nil
}

// ROC calculates the Rate of Change as a fraction of the close period bars ago.
type ROC struct {
	period int
}

// NewROC creates a new ROC indicator.
func NewROC(period int) *ROC {
	return &ROC{period: period}
}

func (r *ROC) Name() string {
	return fmt.Sprintf("ROC_%d", r.period)
}

func (r *ROC) Period() int {
	return r.period + 1
}

func (r *ROC) Calculate(candles []models.Candle) ([]float64, error) {
	if r.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	return fractionalChange(closePrices(candles), r.period), nil
}

// fractionalChange returns (v[i]-v[i-p])/v[i-p]; a zero base reads 0.
func fractionalChange(values []float64, p int) []float64 {
	result := nanSlice(len(values))
	for i := p; i < len(values); i++ {
		base := values[i-p]
		if base == 0 {
			result[i] = 0
			continue
		}
		result[i] = (values[i] - base) / base
	}
	return result
}

// WilliamsR calculates Williams %R in [-100, 0]. A flat range reads -50.
type WilliamsR struct {
	period int
}

// NewWilliamsR creates a new Williams %R indicator.
func NewWilliamsR(period int) *WilliamsR {
	return &WilliamsR{period: period}
}

func (w *WilliamsR) Name() string {
	return fmt.Sprintf("WilliamsR_%d", w.period)
}

func (w *WilliamsR) Period() int {
	return w.period
}

func (w *WilliamsR) Calculate(candles []models.Candle) ([]float64, error) {
	if w.period <= 0 {
		return nil, ErrInvalidPeriod
	}

	n := len(candles)
	result := nanSlice(n)
	highs := highPrices(candles)
	lows := lowPrices(candles)

	for i := w.period - 1; i < n; i++ {
		hh := highest(highs[i-w.period+1 : i+1])
		ll := lowest(lows[i-w.period+1 : i+1])
		if hh == ll {
			result[i] = -50
			continue
		}
		v := -100 * (hh - candles[i].Close) / (hh - ll)
		if v < -100 {
			v = -100
		} else if v > 0 {
			v = 0
		}
		result[i] = v
	}

	return result, nil
}

// CCI calculates the Commodity Channel Index. Zero mean deviation reads 0.
type CCI struct {
	period int
}

// NewCCI creates a new CCI indicator.
func NewCCI(period int) *CCI {
	return &CCI{period: period}
}

func (c *CCI) Name() string {
	return fmt.Sprintf("CCI_%d", c.period)
}

func (c *CCI) Period() int {
	return c.period
}

func (c *CCI) Calculate(candles []models.Candle) ([]float64, error) {
	if c.period <= 0 {
		return nil, ErrInvalidPeriod
	}

	n := len(candles)
	result := nanSlice(n)
	tp := make([]float64, n)
	for i, candle := range candles {
		tp[i] = typicalPrice(candle)
	}

	for i := c.period - 1; i < n; i++ {
		window := tp[i-c.period+1 : i+1]
		md := meanAbsDeviation(window)
		if md == 0 {
			result[i] = 0
			continue
		}
		result[i] = (tp[i] - mean(window)) / (0.015 * md)
	}

	return result, nil
}

// PricePosition locates the close inside the period's low-high range,
// 0 at the low and 1 at the high. A flat range reads 0.5.
type PricePosition struct {
	period int
}

// NewPricePosition creates a new PricePosition indicator.
func NewPricePosition(period int) *PricePosition {
	return &PricePosition{period: period}
}

func (p *PricePosition) Name() string {
	return fmt.Sprintf("PricePosition_%d", p.period)
}

func (p *PricePosition) Period() int {
	return p.period
}

func (p *PricePosition) Calculate(candles []models.Candle) ([]float64, error) {
	if p.period <= 0 {
		return nil, ErrInvalidPeriod
	}

	n := len(candles)
	result := nanSlice(n)
	highs := highPrices(candles)
	lows := lowPrices(candles)

	for i := p.period - 1; i < n; i++ {
		hh := highest(highs[i-p.period+1 : i+1])
		ll := lowest(lows[i-p.period+1 : i+1])
		if hh == ll {
			result[i] = 0.5
			continue
		}
		result[i] = (candles[i].Close - ll) / (hh - ll)
	}

	return result, nil
}
