package utils

import (
	"fmt"
	"strings"
	"time"

	"option-backtester/internal/models"
)

// SymbolAliases maps common ticker typos onto the listed symbol.
var SymbolAliases = map[string]string{
	"TELSA": "TSLA",
	"APPL":  "AAPL",
	"GOOG":  "GOOGL",
}

// NormalizeSymbol upper-cases a ticker and corrects known typos. The second
// return value reports whether an alias was applied.
func NormalizeSymbol(symbol string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if fixed, ok := SymbolAliases[s]; ok {
		return fixed, true
	}
	return s, false
}

// OptionTicker builds an OCC-style option ticker such as
// O:AAPL251219C00150000 (underlying, YYMMDD expiry, C/P, strike x 1000).
func OptionTicker(symbol string, expiry time.Time, dir models.Direction, strike float64) string {
	code := "C"
	if dir == models.Bearish {
		code = "P"
	}
	return fmt.Sprintf("O:%s%s%s%08d", symbol, expiry.Format("060102"), code, int(strike*1000))
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether t falls on a weekday. Exchange holidays are
// not modeled.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}
