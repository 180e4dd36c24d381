package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"option-backtester/internal/models"
)

// Property: saving daily bars and reading the same window back yields the
// same bars in ascending order.
func TestProperty_CandleRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "candles.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	symbols := []string{"AAPL", "TSLA", "NVDA", "MSFT", "GOOGL", "AMZN", "META", "PLTR", "SPY", "QQQ"}
	run := 0

	properties.Property("save then retrieve produces equivalent bars", prop.ForAll(
		func(symbolIdx int, count int, basePrice float64, baseVolume int64) bool {
			ctx := context.Background()
			run++
			symbol := fmt.Sprintf("%s_%d", symbols[symbolIdx%len(symbols)], run)

			candles := generateTestCandles(count, basePrice, baseVolume)
			if err := store.SaveCandles(ctx, symbol, Daily, candles); err != nil {
				t.Logf("Failed to save candles: %v", err)
				return false
			}

			from := candles[0].Timestamp
			to := candles[len(candles)-1].Timestamp
			retrieved, err := store.GetCandles(ctx, symbol, Daily, from, to)
			if err != nil {
				t.Logf("Failed to get candles: %v", err)
				return false
			}
			if len(retrieved) != len(candles) {
				t.Logf("Count mismatch: expected %d, got %d", len(candles), len(retrieved))
				return false
			}
			for i, orig := range candles {
				if !candlesEqual(orig, retrieved[i]) {
					t.Logf("Candle mismatch at index %d: original=%+v, retrieved=%+v", i, orig, retrieved[i])
					return false
				}
			}

			latest, err := store.GetCandlesFreshness(ctx, symbol, Daily)
			return err == nil && latest.Equal(to)
		},
		gen.IntRange(0, len(symbols)-1),
		gen.IntRange(1, 40),
		gen.Float64Range(5.0, 900.0),
		gen.Int64Range(1000, 10_000_000),
	))

	properties.Property("saving an empty slice succeeds", prop.ForAll(
		func(symbolIdx int) bool {
			return store.SaveCandles(context.Background(), symbols[symbolIdx], Daily, []models.Candle{}) == nil
		},
		gen.IntRange(0, len(symbols)-1),
	))

	properties.TestingRun(t)
}

// generateTestCandles creates consecutive daily bars with valid OHLC ordering.
func generateTestCandles(count int, basePrice float64, baseVolume int64) []models.Candle {
	candles := make([]models.Candle, count)
	baseTime := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		variation := float64(i%10) * 0.01 * basePrice
		open := basePrice + variation
		close := basePrice + variation*0.5
		high := math.Max(open, close) * 1.01
		low := math.Min(open, close) * 0.99

		candles[i] = models.Candle{
			Timestamp: baseTime.AddDate(0, 0, i),
			Open:      roundToDecimal(open, 2),
			High:      roundToDecimal(high, 2),
			Low:       roundToDecimal(low, 2),
			Close:     roundToDecimal(close, 2),
			Volume:    baseVolume + int64(i*1000),
		}
	}

	return candles
}

func roundToDecimal(val float64, places int) float64 {
	multiplier := math.Pow(10, float64(places))
	return math.Round(val*multiplier) / multiplier
}

func candlesEqual(a, b models.Candle) bool {
	const tolerance = 0.01
	return a.Timestamp.Equal(b.Timestamp) &&
		math.Abs(a.Open-b.Open) <= tolerance &&
		math.Abs(a.High-b.High) <= tolerance &&
		math.Abs(a.Low-b.Low) <= tolerance &&
		math.Abs(a.Close-b.Close) <= tolerance &&
		a.Volume == b.Volume
}
