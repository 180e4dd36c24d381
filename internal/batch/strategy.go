// Package batch runs many (symbol, strategy) backtests in parallel and ranks
// the outcomes.
package batch

import (
	"fmt"
	"sort"
	"strings"

	"option-backtester/internal/analysis/signals"
	"option-backtester/internal/backtest"
	apperrors "option-backtester/internal/errors"
)

// Strategy is a named weighted signal combination plus optional risk
// overrides. Zero-valued overrides keep the base configuration.
type Strategy struct {
	Name                 string             `mapstructure:"name" json:"name"`
	Weights              map[string]float64 `mapstructure:"signal_weights" json:"signal_weights"`
	Threshold            float64            `mapstructure:"activation_threshold" json:"activation_threshold,omitempty"`
	ProfitTarget         float64            `mapstructure:"profit_target" json:"profit_target,omitempty"`
	StopLoss             float64            `mapstructure:"stop_loss" json:"stop_loss,omitempty"`
	MaxHoldingDays       int                `mapstructure:"max_holding_days" json:"max_holding_days,omitempty"`
	PositionSizeFraction float64            `mapstructure:"position_size_fraction" json:"position_size_fraction,omitempty"`
}

// Config derives the run configuration of s from base.
func (s Strategy) Config(registry *signals.Registry, base backtest.Config) (backtest.Config, error) {
	entry, err := backtest.NewCombinationEntry(registry, s.Weights, s.Threshold)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("strategy %s: %w", s.Name, err)
	}

	cfg := base
	cfg.Strategy = s.Name
	cfg.Entry = entry.WithLabel(s.Name)
	if s.ProfitTarget != 0 {
		cfg.ProfitTarget = s.ProfitTarget
	}
	if s.StopLoss != 0 {
		cfg.StopLoss = s.StopLoss
	}
	if s.MaxHoldingDays != 0 {
		cfg.MaxHoldingDays = s.MaxHoldingDays
	}
	if s.PositionSizeFraction != 0 {
		cfg.PositionSizeFraction = s.PositionSizeFraction
	}
	return cfg, cfg.Validate()
}

// Built-in strategy names.
const (
	MACDRSIBB         = "MACD_RSI_BB"
	VolumeMAMomentum  = "Volume_MA_Momentum"
	CCIWilliamsHybrid = "CCI_Williams_Hybrid"
	BBVolumeHybrid    = "BB_Volume_Hybrid"
	RSIMACDDivergence = "RSI_MACD_Divergence"
)

func preset(name string, weights map[string]float64) Strategy {
	return Strategy{
		Name:                 name,
		Weights:              weights,
		ProfitTarget:         5.0,
		StopLoss:             -0.5,
		MaxHoldingDays:       30,
		PositionSizeFraction: 0.1,
	}
}

// Presets returns the built-in strategies keyed by name. Each call returns
// fresh maps.
func Presets() map[string]Strategy {
	return map[string]Strategy{
		MACDRSIBB: preset(MACDRSIBB, map[string]float64{
			signals.MACDCrossover: 0.3,
			signals.RSIOversold:   0.3,
			signals.BBCompression: 0.4,
		}),
		VolumeMAMomentum: preset(VolumeMAMomentum, map[string]float64{
			signals.VolumeSurge:    0.4,
			signals.MACrossover:    0.3,
			signals.PriceAboveMA50: 0.3,
		}),
		CCIWilliamsHybrid: preset(CCIWilliamsHybrid, map[string]float64{
			signals.CCIExtreme:       0.4,
			signals.WilliamsOversold: 0.3,
			signals.LowVolatility:    0.3,
		}),
		BBVolumeHybrid: preset(BBVolumeHybrid, map[string]float64{
			signals.BBBreakout:    0.4,
			signals.VolumeSurge:   0.3,
			signals.MACDCrossover: 0.3,
		}),
		RSIMACDDivergence: preset(RSIMACDDivergence, map[string]float64{
			signals.RSIOversold:    0.4,
			signals.MACDDivergence: 0.3,
			signals.LowVolatility:  0.3,
		}),
	}
}

// PresetNames returns the built-in strategy names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, 5)
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks up names in custom first, then in the presets. Lookups are
// case-insensitive.
func Resolve(names []string, custom map[string]Strategy) ([]Strategy, error) {
	byFold := make(map[string]Strategy)
	for name, s := range Presets() {
		byFold[strings.ToLower(name)] = s
	}
	customNames := make([]string, 0, len(custom))
	for name := range custom {
		customNames = append(customNames, name)
	}
	sort.Strings(customNames)
	for _, name := range customNames {
		s := custom[name]
		if s.Name == "" {
			s.Name = name
		}
		byFold[strings.ToLower(name)] = s
	}

	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		s, ok := byFold[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownStrategy, name)
		}
		out = append(out, s)
	}
	return out, nil
}
