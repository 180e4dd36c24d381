package signals

import (
	"sort"

	"option-backtester/internal/analysis/indicators"
	"option-backtester/internal/models"
)

// Signals whose contributions lean the combined direction.
var (
	BullishSignals = []string{RSIOversold, MACrossover, MACDCrossover, WilliamsOversold, MomentumReversal}
	BearishSignals = []string{RSIOverbought, MACrossunder, WilliamsOverbought}
)

// Contribution is one triggered signal's share of a combined score.
type Contribution struct {
	Signal       string  `json:"signal"`
	Strength     float64 `json:"strength"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// Evaluation is the combined reading of a weighted signal set on one bar.
type Evaluation struct {
	Score         float64          `json:"score"`
	Direction     models.Direction `json:"direction"`
	BullishScore  float64          `json:"bullish_score"`
	BearishScore  float64          `json:"bearish_score"`
	Contributions []Contribution   `json:"contributions"`
}

// Active returns the names of the triggered signals.
func (e Evaluation) Active() []string {
	out := make([]string, len(e.Contributions))
	for i, c := range e.Contributions {
		out[i] = c.Signal
	}
	return out
}

// Evaluate sums weight*strength over the triggered signals of weights on bar
// idx and classifies the direction from the bullish and bearish partitions.
// Ties go bullish when RSI is below 50 or undefined. Names missing from the
// registry contribute nothing.
func (r *Registry) Evaluate(frame *indicators.Frame, idx int, weights map[string]float64) Evaluation {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	// fixed order keeps the float sum reproducible
	sort.Strings(names)

	var eval Evaluation
	byName := make(map[string]float64, len(names))
	for _, name := range names {
		triggered, strength := r.Detect(name, frame, idx)
		if !triggered {
			continue
		}
		c := weights[name] * strength
		eval.Score += c
		byName[name] = c
		eval.Contributions = append(eval.Contributions, Contribution{
			Signal:       name,
			Strength:     strength,
			Weight:       weights[name],
			Contribution: c,
		})
	}

	for _, name := range BullishSignals {
		eval.BullishScore += byName[name]
	}
	for _, name := range BearishSignals {
		eval.BearishScore += byName[name]
	}

	switch {
	case eval.BullishScore > eval.BearishScore:
		eval.Direction = models.Bullish
	case eval.BearishScore > eval.BullishScore:
		eval.Direction = models.Bearish
	default:
		eval.Direction = models.Bullish
		if frame != nil {
			if rsi, ok := frame.Value(indicators.RSI14, idx); ok && rsi >= 50 {
				eval.Direction = models.Bearish
			}
		}
	}

	return eval
}
