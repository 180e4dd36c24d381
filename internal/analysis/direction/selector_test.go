package direction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-backtester/internal/analysis/indicators"
	"option-backtester/internal/analysis/signals"
	"option-backtester/internal/models"
)

func buildFrame(t *testing.T, closes []float64) *indicators.Frame {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 500}
	}
	frame, err := indicators.BuildFrame(candles)
	require.NoError(t, err)
	return frame
}

func line(n int, from, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func TestSelect_DefaultsBeforeWarmup(t *testing.T) {
	frame := buildFrame(t, line(60, 100, 1))
	dir, conf := NewSelector().Select(frame, 30, nil)
	assert.Equal(t, models.Bullish, dir)
	assert.Equal(t, 0.5, conf)
}

func TestSelect_RisingSeriesIsBullish(t *testing.T) {
	frame := buildFrame(t, line(80, 100, 1))
	a := NewSelector().Assess(frame, 70, nil)

	assert.Equal(t, models.Bullish, a.Direction)
	assert.Greater(t, a.Confidence, 0.5)
	assert.Greater(t, a.BullishScore, a.BearishScore)
}

func TestSelect_FallingSeriesIsBearish(t *testing.T) {
	frame := buildFrame(t, line(80, 200, -1))
	a := NewSelector().Assess(frame, 70, nil)

	assert.Equal(t, models.Bearish, a.Direction)
	assert.Greater(t, a.Confidence, 0.5)
}

func TestSelect_FlatSeries(t *testing.T) {
	frame := buildFrame(t, line(80, 100, 0))
	a := NewSelector().Assess(frame, 60, nil)

	// RSI reads 100 on a flat series (bearish extreme) and the close sits on
	// the middle band (bullish half weight)
	assert.Equal(t, models.Bearish, a.Direction)
	assert.InDelta(t, 0.20, a.BearishScore, 1e-12)
	assert.InDelta(t, 0.05, a.BullishScore, 1e-12)
	assert.InDelta(t, 0.8, a.Confidence, 1e-12)
}

func TestSelect_ZeroWeightsFallBackToNeutral(t *testing.T) {
	frame := buildFrame(t, line(80, 100, 1))
	s := NewSelectorWithWeights(Weights{}, DefaultLevels())
	dir, conf := s.Select(frame, 70, nil)
	assert.Equal(t, models.Bullish, dir)
	assert.Equal(t, 0.5, conf)
}

func TestLean(t *testing.T) {
	bull, bear := Lean(map[string]float64{
		signals.RSIOversold:   0.3,
		signals.RSIOverbought: 0.1,
		signals.BBCompression: 0.6,
	})
	assert.InDelta(t, 0.75, bull, 1e-12)
	assert.InDelta(t, 0.25, bear, 1e-12)

	bull, bear = Lean(map[string]float64{signals.VolumeSurge: 1})
	assert.Equal(t, 0.5, bull)
	assert.Equal(t, 0.5, bear)
}

func TestSelect_SignalLeanShiftsScores(t *testing.T) {
	frame := buildFrame(t, line(80, 100, 0))
	s := NewSelector()

	without := s.Assess(frame, 60, nil)
	with := s.Assess(frame, 60, map[string]float64{signals.MACDCrossover: 1})

	assert.InDelta(t, without.BullishScore+0.15, with.BullishScore, 1e-12)
	assert.InDelta(t, without.BearishScore, with.BearishScore, 1e-12)
}

func TestExplain(t *testing.T) {
	out := Explain(Assessment{Direction: models.Bearish, Confidence: 0.8, Reasons: []string{"RSI overbought (100.0)"}})
	assert.Contains(t, out, "bearish")
	assert.Contains(t, out, "80.0%")
	assert.Contains(t, out, "RSI overbought")

	assert.Contains(t, Explain(Assessment{Direction: models.Bullish, Confidence: 0.5}), "composite")
}
