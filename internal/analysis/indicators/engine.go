// Package indicators derives technical indicators from daily price series.
//
// Every indicator returns one value per input bar. Bars inside an
// indicator's warm-up window hold NaN; use IsDefined or Frame.Value to test
// for them. Degenerate ratios resolve to documented neutral values instead.
package indicators

import (
	"fmt"

	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/models"
)

// MinHistory is the fewest bars a frame can be built from.
const MinHistory = 20

// Indicator defines the interface for single-value technical indicators.
type Indicator interface {
	Name() string
	Calculate(candles []models.Candle) ([]float64, error)
	Period() int
}

// MultiValueIndicator defines the interface for indicators that return multiple values.
type MultiValueIndicator interface {
	Name() string
	Calculate(candles []models.Candle) (map[string][]float64, error)
	Period() int
}

// PipelineConfig holds the periods used to build a frame.
type PipelineConfig struct {
	MAPeriods        [4]int
	BollingerPeriod  int
	BollingerStdDev  float64
	BandWidthWindow  int
	RSIPeriod        int
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	ATRPeriod        int
	ATRRankLookback  int
	MomentumPeriod   int
	ROCPeriod        int
	WilliamsPeriod   int
	CCIPeriod        int
	PositionPeriod   int
	VolumePeriod     int
	MinHistory       int
}

// DefaultPipelineConfig returns the standard indicator periods.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MAPeriods:       [4]int{5, 10, 20, 50},
		BollingerPeriod: 20,
		BollingerStdDev: 2,
		BandWidthWindow: 60,
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		ATRPeriod:       14,
		ATRRankLookback: 60,
		MomentumPeriod:  5,
		ROCPeriod:       10,
		WilliamsPeriod:  14,
		CCIPeriod:       20,
		PositionPeriod:  20,
		VolumePeriod:    20,
		MinHistory:      MinHistory,
	}
}

type singleStep struct {
	column Column
	ind    Indicator
}

type multiStep struct {
	ind     MultiValueIndicator
	columns map[string]Column
}

// Pipeline turns a price series into a Frame. It is immutable after
// construction and safe for concurrent use.
type Pipeline struct {
	cfg    PipelineConfig
	single []singleStep
	multi  []multiStep
}

// NewPipeline creates a pipeline from cfg.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	p := &Pipeline{cfg: cfg}
	maCols := [4]Column{MA5, MA10, MA20, MA50}
	for i, period := range cfg.MAPeriods {
		p.single = append(p.single, singleStep{maCols[i], NewSMA(period)})
	}
	p.single = append(p.single,
		singleStep{RSI14, NewRSI(cfg.RSIPeriod)},
		singleStep{ATR14, NewATR(cfg.ATRPeriod)},
		singleStep{Momentum5, NewMomentum(cfg.MomentumPeriod)},
		singleStep{ROC10, NewROC(cfg.ROCPeriod)},
		singleStep{WilliamsR14, NewWilliamsR(cfg.WilliamsPeriod)},
		singleStep{CCI20, NewCCI(cfg.CCIPeriod)},
		singleStep{PricePosition20, NewPricePosition(cfg.PositionPeriod)},
	)
	p.multi = []multiStep{
		{NewBollingerBands(cfg.BollingerPeriod, cfg.BollingerStdDev), map[string]Column{
			"middle": BBMiddle, "upper": BBUpper, "lower": BBLower, "std": Std20, "bandwidth": BBWidth,
		}},
		{NewMACD(cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal), map[string]Column{
			"macd": MACDLine, "signal": MACDSignal, "histogram": MACDHist,
		}},
		{NewVolumeRatio(cfg.VolumePeriod), map[string]Column{
			"ma": VolumeMA20, "ratio": VolumeRatioCol,
		}},
	}
	return p
}

// DefaultPipeline returns a pipeline with the standard periods.
func DefaultPipeline() *Pipeline {
	return NewPipeline(DefaultPipelineConfig())
}

// BuildFrame runs the default pipeline over candles.
func BuildFrame(candles []models.Candle) (*Frame, error) {
	return DefaultPipeline().Build(candles)
}

// Build computes every column for candles. It fails with
// ErrInsufficientHistory when fewer than MinHistory bars are supplied.
func (p *Pipeline) Build(candles []models.Candle) (*Frame, error) {
	if len(candles) < p.cfg.MinHistory {
		return nil, fmt.Errorf("%w: have %d bars, need %d",
			apperrors.ErrInsufficientHistory, len(candles), p.cfg.MinHistory)
	}

	frame := newFrame(candles)
	for _, step := range p.single {
		values, err := step.ind.Calculate(candles)
		if err != nil {
			return nil, fmt.Errorf("indicator %s: %w", step.ind.Name(), err)
		}
		frame.set(step.column, values)
	}
	for _, step := range p.multi {
		values, err := step.ind.Calculate(candles)
		if err != nil {
			return nil, fmt.Errorf("indicator %s: %w", step.ind.Name(), err)
		}
		for key, col := range step.columns {
			frame.set(col, values[key])
		}
	}

	frame.set(BBWidthPct, BandWidthPercentile(frame.Column(BBWidth), p.cfg.BandWidthWindow))
	frame.set(ATRPct, RollingPercentRank(frame.Column(ATR14), p.cfg.ATRRankLookback))

	return frame, nil
}
