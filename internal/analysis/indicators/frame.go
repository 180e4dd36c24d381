package indicators

import (
	"time"

	"option-backtester/internal/models"
)

// Column names a derived per-bar field of a Frame.
type Column string

const (
	MA5             Column = "ma5"
	MA10            Column = "ma10"
	MA20            Column = "ma20"
	MA50            Column = "ma50"
	Std20           Column = "std20"
	BBUpper         Column = "bb_upper"
	BBMiddle        Column = "bb_middle"
	BBLower         Column = "bb_lower"
	BBWidth         Column = "bb_width"
	BBWidthPct      Column = "bb_width_pct"
	RSI14           Column = "rsi"
	MACDLine        Column = "macd"
	MACDSignal      Column = "macd_signal"
	MACDHist        Column = "macd_hist"
	ATR14           Column = "atr"
	ATRPct          Column = "atr_pct"
	Momentum5       Column = "momentum"
	ROC10           Column = "roc"
	WilliamsR14     Column = "williams_r"
	CCI20           Column = "cci"
	PricePosition20 Column = "price_position"
	VolumeMA20      Column = "volume_ma20"
	VolumeRatioCol  Column = "volume_ratio"
)

// Frame is a price series augmented with indicator columns. It is read-only
// once built.
type Frame struct {
	candles []models.Candle
	columns map[Column][]float64
}

func newFrame(candles []models.Candle) *Frame {
	return &Frame{
		candles: candles,
		columns: make(map[Column][]float64),
	}
}

func (f *Frame) set(col Column, values []float64) {
	f.columns[col] = values
}

// Len returns the number of bars.
func (f *Frame) Len() int { return len(f.candles) }

// Candle returns bar i.
func (f *Frame) Candle(i int) models.Candle { return f.candles[i] }

// Candles returns the underlying bars.
func (f *Frame) Candles() []models.Candle { return f.candles }

// Close returns the closing price of bar i.
func (f *Frame) Close(i int) float64 { return f.candles[i].Close }

// Date returns the date of bar i.
func (f *Frame) Date(i int) time.Time { return f.candles[i].Timestamp }

// Column returns the full column, or nil when the frame does not carry it.
func (f *Frame) Column(col Column) []float64 { return f.columns[col] }

// Value returns column col at bar i and whether it is defined there.
func (f *Frame) Value(col Column, i int) (float64, bool) {
	values, ok := f.columns[col]
	if !ok || i < 0 || i >= len(values) {
		return 0, false
	}
	v := values[i]
	if !IsDefined(v) {
		return 0, false
	}
	return v, true
}

// Values fetches several columns at bar i; ok is false if any is undefined.
func (f *Frame) Values(i int, cols ...Column) (vals []float64, ok bool) {
	vals = make([]float64, len(cols))
	for k, col := range cols {
		v, defined := f.Value(col, i)
		if !defined {
			return nil, false
		}
		vals[k] = v
	}
	return vals, true
}

// Columns lists the columns carried by the frame.
func (f *Frame) Columns() []Column {
	out := make([]Column, 0, len(f.columns))
	for col := range f.columns {
		out = append(out, col)
	}
	return out
}
