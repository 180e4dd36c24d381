package performance

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_MaxDrawdownNeverPositive checks drawdown over arbitrary positive curves.
func TestProperty_MaxDrawdownNeverPositive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("max drawdown is in [-1, 0]", prop.ForAll(
		func(values []float64) bool {
			dd := MaxDrawdown(curveOf(values...))
			return dd <= 0 && dd >= -1
		},
		gen.SliceOf(gen.Float64Range(0, 1e6)),
	))

	properties.Property("monotonic curves have no drawdown", prop.ForAll(
		func(steps []float64) bool {
			values := make([]float64, len(steps))
			level := 1000.0
			for i, s := range steps {
				level += s
				values[i] = level
			}
			return MaxDrawdown(curveOf(values...)) == 0
		},
		gen.SliceOf(gen.Float64Range(0, 100)),
	))

	properties.TestingRun(t)
}
