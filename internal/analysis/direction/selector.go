// Package direction picks a bullish or bearish bias from indicator posture.
package direction

import (
	"fmt"
	"sort"
	"strings"

	"option-backtester/internal/analysis/indicators"
	"option-backtester/internal/analysis/signals"
	"option-backtester/internal/models"
)

// Weights defines how much each indicator reading adds to the bullish or
// bearish side.
type Weights struct {
	RSIExtreme     float64 // RSI beyond the oversold/overbought levels
	RSILean        float64 // RSI between the extreme and lean levels
	MACDPosture    float64 // MACD above or below its signal line
	MACDFreshCross float64 // extra when that posture is new today
	MAPosture      float64 // close above or below both MA20 and MA50
	MAStack        float64 // extra when MA20 is on the same side of MA50
	MACross        float64 // MA5 crossing MA20 today
	Momentum       float64 // 5-day close change beyond MomentumThreshold
	BandOutside    float64 // close outside the Bollinger bands
	BandHalf       float64 // close inside the bands, by half
	Williams       float64 // Williams %R beyond its extremes
	SignalLean     float64 // directional lean of a supplied signal-weight map
}

// DefaultWeights returns the default direction weights.
func DefaultWeights() Weights {
	return Weights{
		RSIExtreme:     0.20,
		RSILean:        0.10,
		MACDPosture:    0.15,
		MACDFreshCross: 0.10,
		MAPosture:      0.15,
		MAStack:        0.10,
		MACross:        0.15,
		Momentum:       0.10,
		BandOutside:    0.10,
		BandHalf:       0.05,
		Williams:       0.10,
		SignalLean:     0.15,
	}
}

// Levels holds the reading thresholds.
type Levels struct {
	RSIOversold        float64
	RSIOverbought      float64
	RSILeanLow         float64
	RSILeanHigh        float64
	MomentumLookback   int
	MomentumThreshold  float64
	WilliamsOversold   float64
	WilliamsOverbought float64
	WarmupBars         int
}

// DefaultLevels returns the standard thresholds.
func DefaultLevels() Levels {
	return Levels{
		RSIOversold:        30,
		RSIOverbought:      70,
		RSILeanLow:         40,
		RSILeanHigh:        60,
		MomentumLookback:   5,
		MomentumThreshold:  0.03,
		WilliamsOversold:   -80,
		WilliamsOverbought: -20,
		WarmupBars:         signals.WarmupBars,
	}
}

// Signal sets that lean a weight map's direction.
var (
	leanBullish = map[string]bool{
		signals.RSIOversold:      true,
		signals.MACrossover:      true,
		signals.MACDCrossover:    true,
		signals.WilliamsOversold: true,
		signals.BBBreakout:       true,
	}
	leanBearish = map[string]bool{
		signals.RSIOverbought:      true,
		signals.MACrossunder:       true,
		signals.WilliamsOverbought: true,
	}
)

// Assessment is the outcome of one direction decision.
type Assessment struct {
	Direction    models.Direction
	Confidence   float64
	BullishScore float64
	BearishScore float64
	Reasons      []string
}

// Selector is a stateless direction heuristic.
type Selector struct {
	weights Weights
	levels  Levels
}

// NewSelector creates a selector with the default weights and levels.
func NewSelector() *Selector {
	return &Selector{weights: DefaultWeights(), levels: DefaultLevels()}
}

// NewSelectorWithWeights creates a selector with custom weights and levels.
func NewSelectorWithWeights(w Weights, l Levels) *Selector {
	return &Selector{weights: w, levels: l}
}

// Select returns the direction and its confidence for bar idx.
func (s *Selector) Select(frame *indicators.Frame, idx int, signalWeights map[string]float64) (models.Direction, float64) {
	a := s.Assess(frame, idx, signalWeights)
	return a.Direction, a.Confidence
}

// Assess scores bar idx. Before warm-up, or when no reading contributes,
// the result is bullish with confidence 0.5. Equal nonzero sides resolve
// bearish.
func (s *Selector) Assess(frame *indicators.Frame, idx int, signalWeights map[string]float64) Assessment {
	neutral := Assessment{Direction: models.Bullish, Confidence: 0.5}
	if frame == nil || idx < s.levels.WarmupBars || idx >= frame.Len() {
		return neutral
	}

	var bull, bear float64
	var reasons []string
	w, l := s.weights, s.levels
	c := frame.Close(idx)

	if rsi, ok := frame.Value(indicators.RSI14, idx); ok {
		switch {
		case rsi < l.RSIOversold:
			bull += w.RSIExtreme
			reasons = append(reasons, fmt.Sprintf("RSI oversold (%.1f)", rsi))
		case rsi > l.RSIOverbought:
			bear += w.RSIExtreme
			reasons = append(reasons, fmt.Sprintf("RSI overbought (%.1f)", rsi))
		case rsi < l.RSILeanLow:
			bull += w.RSILean
		case rsi > l.RSILeanHigh:
			bear += w.RSILean
		}
	}

	if cur, ok := frame.Values(idx, indicators.MACDLine, indicators.MACDSignal); ok {
		prev, havePrev := frame.Values(idx-1, indicators.MACDLine, indicators.MACDSignal)
		switch {
		case cur[0] > cur[1]:
			bull += w.MACDPosture
			reasons = append(reasons, "MACD above signal")
			if havePrev && prev[0] <= prev[1] {
				bull += w.MACDFreshCross
			}
		case cur[0] < cur[1]:
			bear += w.MACDPosture
			reasons = append(reasons, "MACD below signal")
			if havePrev && prev[0] >= prev[1] {
				bear += w.MACDFreshCross
			}
		}
	}

	if ma, ok := frame.Values(idx, indicators.MA20, indicators.MA50); ok {
		ma20, ma50 := ma[0], ma[1]
		switch {
		case c > ma20 && c > ma50:
			bull += w.MAPosture
			reasons = append(reasons, "price above moving averages")
			if ma20 > ma50 {
				bull += w.MAStack
			}
		case c < ma20 && c < ma50:
			bear += w.MAPosture
			reasons = append(reasons, "price below moving averages")
			if ma20 < ma50 {
				bear += w.MAStack
			}
		}
	}

	cur, okCur := frame.Values(idx, indicators.MA5, indicators.MA20)
	prev, okPrev := frame.Values(idx-1, indicators.MA5, indicators.MA20)
	if okCur && okPrev {
		switch {
		case cur[0] > cur[1] && prev[0] <= prev[1]:
			bull += w.MACross
		case cur[0] < cur[1] && prev[0] >= prev[1]:
			bear += w.MACross
		}
	}

	if lb := l.MomentumLookback; idx >= lb && frame.Close(idx-lb) != 0 {
		change := (c - frame.Close(idx-lb)) / frame.Close(idx-lb)
		switch {
		case change > l.MomentumThreshold:
			bull += w.Momentum
		case change < -l.MomentumThreshold:
			bear += w.Momentum
		}
	}

	if bands, ok := frame.Values(idx, indicators.BBUpper, indicators.BBLower); ok {
		upper, lower := bands[0], bands[1]
		mid := (upper + lower) / 2
		switch {
		case c < lower:
			bull += w.BandOutside
			reasons = append(reasons, "close below lower band")
		case c > upper:
			bear += w.BandOutside
			reasons = append(reasons, "close above upper band")
		case c < mid:
			bear += w.BandHalf
		default:
			bull += w.BandHalf
		}
	}

	if wr, ok := frame.Value(indicators.WilliamsR14, idx); ok {
		switch {
		case wr < l.WilliamsOversold:
			bull += w.Williams
		case wr > l.WilliamsOverbought:
			bear += w.Williams
		}
	}

	if len(signalWeights) > 0 {
		lb, lr := Lean(signalWeights)
		bull += lb * w.SignalLean
		bear += lr * w.SignalLean
	}

	total := bull + bear
	if total == 0 {
		return neutral
	}

	a := Assessment{BullishScore: bull, BearishScore: bear, Reasons: reasons}
	if bull/total > bear/total {
		a.Direction = models.Bullish
		a.Confidence = bull / total
	} else {
		a.Direction = models.Bearish
		a.Confidence = bear / total
	}
	return a
}

// Lean splits a signal-weight map into normalized bullish and bearish
// shares. Maps with no directional signals lean evenly.
func Lean(signalWeights map[string]float64) (bullish, bearish float64) {
	names := make([]string, 0, len(signalWeights))
	for name := range signalWeights {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch {
		case leanBullish[name]:
			bullish += signalWeights[name]
		case leanBearish[name]:
			bearish += signalWeights[name]
		}
	}
	total := bullish + bearish
	if total <= 0 {
		return 0.5, 0.5
	}
	return bullish / total, bearish / total
}

// Explain renders an assessment for logs and terminal output.
func Explain(a Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (confidence %.1f%%)", a.Direction, a.Confidence*100)
	if len(a.Reasons) == 0 {
		b.WriteString(": composite indicators")
		return b.String()
	}
	b.WriteString(": ")
	b.WriteString(strings.Join(a.Reasons, ", "))
	return b.String()
}
