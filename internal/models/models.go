// Package models provides domain models for the backtesting engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Candle represents OHLCV data for a single trading day.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// PriceSeries is an ascending sequence of daily candles.
type PriceSeries []Candle

// Len returns the number of bars.
func (s PriceSeries) Len() int { return len(s) }

// First returns the first bar date, or the zero time for an empty series.
func (s PriceSeries) First() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Timestamp
}

// Last returns the last bar date, or the zero time for an empty series.
func (s PriceSeries) Last() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Timestamp
}

// IsAscending reports whether bar dates are strictly increasing.
func (s PriceSeries) IsAscending() bool {
	for i := 1; i < len(s); i++ {
		if !s[i].Timestamp.After(s[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// Closes returns the closing prices of the series.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Direction is the side of a simulated long option position.
type Direction string

const (
	// Bullish is a long call.
	Bullish Direction = "bullish"
	// Bearish is a long put.
	Bearish Direction = "bearish"
)

// OptionType returns the contract type held for the direction.
func (d Direction) OptionType() string {
	if d == Bearish {
		return "PUT"
	}
	return "CALL"
}

// String implements fmt.Stringer.
func (d Direction) String() string { return string(d) }

// ParseDirection accepts bullish/bearish and the call/put aliases.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish", "call", "long_call", "bull":
		return Bullish, nil
	case "bearish", "put", "long_put", "bear":
		return Bearish, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}
