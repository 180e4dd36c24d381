package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-backtester/internal/analysis/indicators"
	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/models"
)

func frameFromCloses(t *testing.T, closes []float64) *indicators.Frame {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1_000_000}
	}
	frame, err := indicators.BuildFrame(candles)
	require.NoError(t, err)
	return frame
}

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestDefaultRegistry_HasFifteenSignals(t *testing.T) {
	r := DefaultRegistry()
	names := r.Names()
	require.Len(t, names, 15)
	assert.Equal(t, BBCompression, names[0])

	def, ok := r.Lookup(RSIOversold)
	require.True(t, ok)
	assert.Equal(t, 0.12, def.DefaultWeight)

	weights := r.DefaultWeights()
	assert.Len(t, weights, 15)
	assert.Equal(t, 0.07, weights[MomentumReversal])
}

func TestDetect_WarmupGuard(t *testing.T) {
	r := DefaultRegistry()
	frame := frameFromCloses(t, flat(80, 100))

	for _, name := range r.Names() {
		triggered, strength := r.Detect(name, frame, WarmupBars-1)
		assert.False(t, triggered, name)
		assert.Zero(t, strength, name)
	}
}

func TestDetect_FlatPriceCompression(t *testing.T) {
	r := DefaultRegistry()
	frame := frameFromCloses(t, flat(80, 100))

	// band-width percentile is undefined until bar 59
	triggered, _ := r.Detect(BBCompression, frame, 58)
	assert.False(t, triggered)

	triggered, strength := r.Detect(BBCompression, frame, 59)
	assert.True(t, triggered)
	assert.Equal(t, 1.0, strength)

	triggered, _ = r.Detect(LowVolatility, frame, 70)
	assert.False(t, triggered, "tied ATR ranks sit above the threshold")

	triggered, _ = r.Detect(PriceAboveMA50, frame, 70)
	assert.False(t, triggered)
}

func TestDetect_FallingSeriesOversold(t *testing.T) {
	closes := make([]float64, 70)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	r := DefaultRegistry()
	frame := frameFromCloses(t, closes)

	triggered, strength := r.Detect(RSIOversold, frame, 60)
	assert.True(t, triggered)
	assert.Equal(t, 1.0, strength)

	triggered, strength = r.Detect(WilliamsOversold, frame, 60)
	assert.True(t, triggered)
	assert.Equal(t, 1.0, strength)

	triggered, _ = r.Detect(RSIOverbought, frame, 60)
	assert.False(t, triggered)
}

func TestDetect_MACrossover(t *testing.T) {
	closes := flat(60, 100)
	closes[55] = 110
	for i := 56; i < len(closes); i++ {
		closes[i] = 110
	}
	r := DefaultRegistry()
	frame := frameFromCloses(t, closes)

	triggered, strength := r.Detect(MACrossover, frame, 55)
	require.True(t, triggered)
	assert.InDelta(t, (102-100.5)/100.5, strength, 1e-9)

	triggered, _ = r.Detect(MACrossover, frame, 56)
	assert.False(t, triggered, "a cross fires only on the crossing bar")

	triggered, _ = r.Detect(MACrossunder, frame, 55)
	assert.False(t, triggered)
}

func TestEvaluate_DirectionPartitions(t *testing.T) {
	closes := make([]float64, 70)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	r := DefaultRegistry()
	frame := frameFromCloses(t, closes)

	eval := r.Evaluate(frame, 60, r.DefaultWeights())
	assert.Equal(t, models.Bullish, eval.Direction)
	assert.Greater(t, eval.BullishScore, eval.BearishScore)
	assert.Contains(t, eval.Active(), RSIOversold)
	assert.Contains(t, eval.Active(), WilliamsOversold)

	var total float64
	for _, c := range eval.Contributions {
		total += c.Contribution
	}
	assert.InDelta(t, total, eval.Score, 1e-12)
}

func TestEvaluate_TieUsesRSI(t *testing.T) {
	r := DefaultRegistry()
	frame := frameFromCloses(t, flat(80, 100))

	// compression is neutral; flat RSI reads 100 so the tie goes bearish
	eval := r.Evaluate(frame, 60, map[string]float64{BBCompression: 1})
	assert.Equal(t, 1.0, eval.Score)
	assert.Equal(t, models.Bearish, eval.Direction)

	// nothing fires before warm-up and undefined RSI leans bullish
	short := frameFromCloses(t, flat(25, 100))
	eval = r.Evaluate(short, 10, map[string]float64{BBCompression: 1})
	assert.Zero(t, eval.Score)
	assert.Equal(t, models.Bullish, eval.Direction)
}

func TestEvaluate_UnknownSignalContributesNothing(t *testing.T) {
	r := DefaultRegistry()
	frame := frameFromCloses(t, flat(80, 100))

	eval := r.Evaluate(frame, 60, map[string]float64{"not_a_signal": 5})
	assert.Zero(t, eval.Score)
	assert.Empty(t, eval.Contributions)
}

func TestValidateWeights(t *testing.T) {
	r := DefaultRegistry()

	assert.NoError(t, r.ValidateWeights(map[string]float64{BBCompression: 0.4, VolumeSurge: 0.3}))

	err := r.ValidateWeights(map[string]float64{"bogus": 0.1})
	assert.ErrorIs(t, err, apperrors.ErrUnknownSignal)

	err = r.ValidateWeights(map[string]float64{BBCompression: -1})
	var verr *apperrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRegister_CustomSignal(t *testing.T) {
	r := DefaultRegistry()
	err := r.Register(Definition{
		Name:          "always",
		DefaultWeight: 1,
		Detect: func(*indicators.Frame, int) (bool, float64) {
			return true, 3
		},
	})
	require.NoError(t, err)

	frame := frameFromCloses(t, flat(60, 100))
	triggered, strength := r.Detect("always", frame, 55)
	assert.True(t, triggered)
	assert.Equal(t, 1.0, strength, "strength is clamped to 1")

	assert.Error(t, r.Register(Definition{Name: "no-detector"}))
	assert.Len(t, r.Names(), 16)
}
