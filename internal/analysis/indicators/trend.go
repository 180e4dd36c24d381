package indicators

import (
	"fmt"

	"option-backtester/internal/models"
)

// SMA calculates the Simple Moving Average of closes.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA_%d", s.period)
}

func (s *SMA) Period() int {
	return s.period
}

func (s *SMA) Calculate(candles []models.Candle) ([]float64, error) {
	if s.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	return rollingMean(closePrices(candles), s.period), nil
}

// MACD calculates Moving Average Convergence Divergence.
//
// EMAs are seeded with the first close and run over the whole series, but the
// MACD line is only exposed once the slow EMA has seen a full period, and the
// signal line once it has seen a full signal period of MACD values.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a new MACD indicator; the standard periods are (12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

func (m *MACD) Period() int {
	return m.slowPeriod + m.signalPeriod - 1
}

func (m *MACD) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if m.fastPeriod <= 0 || m.slowPeriod <= 0 || m.signalPeriod <= 0 || m.fastPeriod >= m.slowPeriod {
		return nil, ErrInvalidPeriod
	}

	n := len(candles)
	closes := closePrices(candles)
	fastEMA := ewm(closes, m.fastPeriod)
	slowEMA := ewm(closes, m.slowPeriod)

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = fastEMA[i] - slowEMA[i]
	}
	rawSignal := ewm(raw, m.signalPeriod)

	macdLine := nanSlice(n)
	signalLine := nanSlice(n)
	histogram := nanSlice(n)
	for i := m.slowPeriod - 1; i < n; i++ {
		macdLine[i] = raw[i]
	}
	for i := m.Period() - 1; i < n; i++ {
		signalLine[i] = rawSignal[i]
		histogram[i] = raw[i] - rawSignal[i]
	}

	return map[string][]float64{
		"macd":      macdLine,
		"signal":    signalLine,
		"histogram": histogram,
	}, nil
}
