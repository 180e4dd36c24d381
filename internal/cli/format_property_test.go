package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"option-backtester/pkg/utils"
)

var currencyPattern = regexp.MustCompile(`^-?\$\d{1,3}(,\d{3})*\.\d{2}$`)

// Currency formatting groups thousands and keeps two decimals, and the
// formatted text parses back to the rounded amount.
func TestProperty_CurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatCurrency produces grouped dollar amounts", prop.ForAll(
		func(amount float64) bool {
			formatted := utils.FormatCurrency(amount)
			if !currencyPattern.MatchString(formatted) {
				t.Logf("Invalid format for %f: %s", amount, formatted)
				return false
			}
			if amount > 0 && strings.HasPrefix(formatted, "-") {
				t.Logf("Unexpected sign for %f: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatCurrency preserves value", prop.ForAll(
		func(amount float64) bool {
			formatted := utils.FormatCurrency(amount)
			parsed := parseCurrency(formatted)

			rounded := math.Round(amount*100) / 100
			if math.Abs(parsed-rounded) > 0.011 {
				t.Logf("Value not preserved: original=%f, formatted=%s, parsed=%f", amount, formatted, parsed)
				return false
			}
			return true
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("FormatPnL signs profits", prop.ForAll(
		func(amount float64) bool {
			formatted := utils.FormatPnL(amount)
			switch {
			case amount > 0:
				return strings.HasPrefix(formatted, "+$")
			case amount < 0:
				return strings.HasPrefix(formatted, "-$")
			}
			return formatted == "$0.00"
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}

func TestProperty_TruncateAndPad(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("TruncateString never exceeds the limit", prop.ForAll(
		func(s string, n int) bool {
			out := TruncateString(s, n)
			if len(out) > n {
				return false
			}
			if len(s) <= n {
				return out == s
			}
			return true
		},
		gen.AlphaString(),
		gen.IntRange(0, 40),
	))

	properties.Property("PadRight reaches the target width", prop.ForAll(
		func(s string, n int) bool {
			out := PadRight(s, n)
			if len(s) >= n {
				return out == s
			}
			return len(out) == n && strings.HasPrefix(out, s)
		},
		gen.AlphaString(),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func parseCurrency(s string) float64 {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	if negative {
		return -v
	}
	return v
}
