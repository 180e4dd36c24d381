package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-backtester/internal/models"
)

func TestRetryWithResult_SucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}
	calls := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResult_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		ShouldRetry:  func(err error) bool { return !errors.Is(err, permanent) },
	}
	calls := 0
	_, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		calls++
		return "", permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}
	_, err := RetryWithResult(ctx, cfg, func() (int, error) { return 0, errors.New("fail") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, time.Second, CalculateBackoff(10, 100*time.Millisecond, time.Second, 2))
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		aliased bool
	}{
		{"telsa", "TSLA", true},
		{"APPL", "AAPL", true},
		{"GOOG", "GOOGL", true},
		{" nvda ", "NVDA", false},
	}
	for _, tt := range tests {
		got, aliased := NormalizeSymbol(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.aliased, aliased, tt.in)
	}
}

func TestOptionTicker(t *testing.T) {
	expiry := time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "O:AAPL251219C00150000", OptionTicker("AAPL", expiry, models.Bullish, 150))
	assert.Equal(t, "O:SPY251219P00412500", OptionTicker("SPY", expiry, models.Bearish, 412.5))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "$1,234,567.89", FormatCurrency(1234567.891))
	assert.Equal(t, "-$950.00", FormatCurrency(-950))
	assert.Equal(t, "+12.50%", FormatPercent(0.125))
	assert.Equal(t, "-3.00%", FormatPercent(-0.03))
	assert.Equal(t, "+$10.00", FormatPnL(10))
	assert.Equal(t, "12,000", FormatQuantity(12000))
	assert.Equal(t, "$12.3K", FormatCompact(12345))
	assert.Equal(t, "$1.50M", FormatCompact(1_500_000))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.February, d.Month())

	_, err = ParseDate("02/29/2024")
	assert.Error(t, err)
}
