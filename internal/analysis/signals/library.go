package signals

import (
	"math"

	"option-backtester/internal/analysis/indicators"
)

// Thresholds holds the tunable trigger levels of the default signals.
type Thresholds struct {
	BandCompression    float64 // band-width percentile below which bands are compressed
	RSIOversold        float64
	RSIOverbought      float64
	VolumeSurge        float64 // volume / 20-day average volume
	LowVolatility      float64 // ATR percentile rank
	WilliamsOversold   float64
	WilliamsOverbought float64
	CCIExtreme         float64
	DivergenceWindow   int
	DivergenceMinBars  int
	DivergenceStrength float64
}

// DefaultThresholds returns the standard trigger levels.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BandCompression:    0.3,
		RSIOversold:        30,
		RSIOverbought:      70,
		VolumeSurge:        1.5,
		LowVolatility:      0.3,
		WilliamsOversold:   -80,
		WilliamsOverbought: -20,
		CCIExtreme:         100,
		DivergenceWindow:   10,
		DivergenceMinBars:  60,
		DivergenceStrength: 0.7,
	}
}

// Signal names.
const (
	BBCompression      = "bb_compression"
	RSIOversold        = "rsi_oversold"
	RSIOverbought      = "rsi_overbought"
	VolumeSurge        = "volume_surge"
	MACrossover        = "ma_crossover"
	MACrossunder       = "ma_crossunder"
	PriceAboveMA50     = "price_above_ma50"
	MACDCrossover      = "macd_crossover"
	MACDDivergence     = "macd_divergence"
	LowVolatility      = "low_volatility"
	WilliamsOversold   = "williams_oversold"
	WilliamsOverbought = "williams_overbought"
	BBBreakout         = "bb_breakout"
	CCIExtreme         = "cci_extreme"
	MomentumReversal   = "momentum_reversal"
)

// DefaultRegistry returns a registry holding the fifteen standard signals.
func DefaultRegistry() *Registry {
	return NewDefaultRegistry(DefaultThresholds())
}

// NewDefaultRegistry builds the standard signals with custom thresholds.
func NewDefaultRegistry(th Thresholds) *Registry {
	r := NewRegistry()
	for _, def := range standardDefinitions(th) {
		// standard definitions always carry a name and detector
		_ = r.Register(def)
	}
	return r
}

func standardDefinitions(th Thresholds) []Definition {
	return []Definition{
		{BBCompression, "Bollinger band width in its lowest 30% of the last 60 days", 0.15, bandCompression(th)},
		{RSIOversold, "RSI below 30", 0.12, rsiOversold(th)},
		{RSIOverbought, "RSI above 70", 0.12, rsiOverbought(th)},
		{VolumeSurge, "volume above 1.5x its 20-day average", 0.10, volumeSurge(th)},
		{MACrossover, "MA5 crosses above MA20", 0.08, maCross(true)},
		{MACrossunder, "MA5 crosses below MA20", 0.08, maCross(false)},
		{PriceAboveMA50, "close above MA50", 0.05, priceAboveMA50},
		{MACDCrossover, "MACD crosses above its signal line", 0.10, macdCrossover},
		{MACDDivergence, "price makes a lower low that MACD does not confirm", 0.08, macdDivergence(th)},
		{LowVolatility, "ATR in its lowest 30% of the last 60 days", 0.06, lowVolatility(th)},
		{WilliamsOversold, "Williams %R below -80", 0.06, williamsOversold(th)},
		{WilliamsOverbought, "Williams %R above -20", 0.06, williamsOverbought(th)},
		{BBBreakout, "close outside the Bollinger bands", 0.08, bandBreakout},
		{CCIExtreme, "CCI beyond +/-100", 0.06, cciExtreme(th)},
		{MomentumReversal, "5-day momentum changes sign", 0.07, momentumReversal},
	}
}

func bandCompression(th Thresholds) Detector {
	return func(f *indicators.Frame, idx int) (bool, float64) {
		pct, ok := f.Value(indicators.BBWidthPct, idx)
		if !ok || pct >= th.BandCompression {
			return false, 0
		}
		return true, 1 - pct
	}
}

func rsiOversold(th Thresholds) Detector {
	return func(f *indicators.Frame, idx int) (bool, float64) {
		rsi, ok := f.Value(indicators.RSI14, idx)
		if !ok || rsi >= th.RSIOversold {
			return false, 0
		}
		return true, (th.RSIOversold - rsi) / th.RSIOversold
	}
}

func rsiOverbought(th Thresholds) Detector {
	return func(f *indicators.Frame, idx int) (bool, float64) {
		rsi, ok := f.Value(indicators.RSI14, idx)
		if !ok || rsi <= th.RSIOverbought {
			return false, 0
		}
		return true, (rsi - th.RSIOverbought) / (100 - th.RSIOverbought)
	}
}

func volumeSurge(th Thresholds) Detector {
	return func(f *indicators.Frame, idx int) (bool, float64) {
		ratio, ok := f.Value(indicators.VolumeRatioCol, idx)
		if !ok || ratio <= th.VolumeSurge {
			return false, 0
		}
		return true, math.Min((ratio-th.VolumeSurge)/th.VolumeSurge, 1)
	}
}

// maCross detects MA5 crossing MA20 upward (up) or downward.
func maCross(up bool) Detector {
	return func(f *indicators.Frame, idx int) (bool, float64) {
		cur, ok := f.Values(idx, indicators.MA5, indicators.MA20)
		if !ok {
			return false, 0
		}
		prev, ok := f.Values(idx-1, indicators.MA5, indicators.MA20)
		if !ok {
			return false, 0
		}
		ma5, ma20 := cur[0], cur[1]
		var crossed bool
		if up {
			crossed = ma5 > ma20 && prev[0] <= prev[1]
		} else {
			crossed = ma5 < ma20 && prev[0] >= prev[1]
		}
		if !crossed {
			return false, 0
		}
		if ma20 == 0 {
			return true, 0
		}
		return true, math.Abs(ma5-ma20) / ma20
	}
}

func priceAboveMA50(f *indicators.Frame, idx int) (bool, float64) {
	ma50, ok := f.Value(indicators.MA50, idx)
	if !ok || ma50 <= 0 {
		return false, 0
	}
	c := f.Close(idx)
	if c <= ma50 {
		return false, 0
	}
	return true, math.Min((c-ma50)/ma50, 1)
}

func macdCrossover(f *indicators.Frame, idx int) (bool, float64) {
	cur, ok := f.Values(idx, indicators.MACDLine, indicators.MACDSignal, indicators.MACDHist)
	if !ok {
		return false, 0
	}
	prev, ok := f.Values(idx-1, indicators.MACDLine, indicators.MACDSignal)
	if !ok {
		return false, 0
	}
	if !(cur[0] > cur[1] && prev[0] <= prev[1]) {
		return false, 0
	}
	c := f.Close(idx)
	if c == 0 {
		return true, 0
	}
	return true, math.Min(math.Abs(cur[2])/c*100, 1)
}

// macdDivergence fires when the close is lower than it was at the start of
// the window but the lowest close and the lowest MACD fall on different bars.
func macdDivergence(th Thresholds) Detector {
	return func(f *indicators.Frame, idx int) (bool, float64) {
		if idx < th.DivergenceMinBars || idx < th.DivergenceWindow {
			return false, 0
		}
		start := idx - th.DivergenceWindow
		macd := f.Column(indicators.MACDLine)
		priceMin, macdMin := start, start
		for i := start; i <= idx; i++ {
			if !indicators.IsDefined(macd[i]) {
				return false, 0
			}
			if f.Close(i) < f.Close(priceMin) {
				priceMin = i
			}
			if macd[i] < macd[macdMin] {
				macdMin = i
			}
		}
		if priceMin == macdMin || f.Close(idx) >= f.Close(start) {
			return false, 0
		}
		return true, th.DivergenceStrength
	}
}

func lowVolatility(th Thresholds) Detector {
	return func(f *indicators.Frame, idx int) (bool, float64) {
		pct, ok := f.Value(indicators.ATRPct, idx)
		if !ok || pct >= th.LowVolatility {
			return false, 0
		}
		return true, 1 - pct
	}
}

func williamsOversold(th Thresholds) Detector {
	return func(f *indicators.Frame, idx int) (bool, float64) {
		wr, ok := f.Value(indicators.WilliamsR14, idx)
		if !ok || wr >= th.WilliamsOversold {
			return false, 0
		}
		return true, math.Min((th.WilliamsOversold-wr)/20, 1)
	}
}

func williamsOverbought(th Thresholds) Detector {
	return func(f *indicators.Frame, idx int) (bool, float64) {
		wr, ok := f.Value(indicators.WilliamsR14, idx)
		if !ok || wr <= th.WilliamsOverbought {
			return false, 0
		}
		return true, math.Min((wr-th.WilliamsOverbought)/20, 1)
	}
}

func bandBreakout(f *indicators.Frame, idx int) (bool, float64) {
	bands, ok := f.Values(idx, indicators.BBUpper, indicators.BBMiddle, indicators.BBLower)
	if !ok {
		return false, 0
	}
	upper, middle, lower := bands[0], bands[1], bands[2]
	c := f.Close(idx)

	var distance float64
	switch {
	case c > upper:
		distance = c - upper
	case c < lower:
		distance = lower - c
	default:
		return false, 0
	}
	if middle == 0 {
		return true, 0
	}
	return true, math.Min(distance/middle, 1)
}

func cciExtreme(th Thresholds) Detector {
	return func(f *indicators.Frame, idx int) (bool, float64) {
		cci, ok := f.Value(indicators.CCI20, idx)
		if !ok || math.Abs(cci) <= th.CCIExtreme {
			return false, 0
		}
		return true, math.Min(math.Abs(cci)/(2*th.CCIExtreme), 1)
	}
}

func momentumReversal(f *indicators.Frame, idx int) (bool, float64) {
	cur, ok := f.Value(indicators.Momentum5, idx)
	if !ok {
		return false, 0
	}
	prev, ok := f.Value(indicators.Momentum5, idx-1)
	if !ok || cur*prev >= 0 {
		return false, 0
	}
	return true, math.Min(math.Abs(cur), 1)
}
