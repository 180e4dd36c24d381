package options

import (
	"fmt"
	"math"
	"strings"

	"option-backtester/internal/analysis/indicators"
	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/models"
)

// Profile is one rung of the out-of-the-money ladder.
type Profile struct {
	Key          string  `json:"key"`
	Name         string  `json:"name"`
	OTM          float64 `json:"otm"`
	ExpectedMove float64 `json:"expected_move"`
	WinRate      float64 `json:"win_rate"`
	Leverage     float64 `json:"leverage"`
}

// CallMultiplier returns the strike/spot ratio for a long call.
func (p Profile) CallMultiplier() float64 { return 1 + p.OTM }

// PutMultiplier returns the strike/spot ratio for a long put.
func (p Profile) PutMultiplier() float64 { return 1 - p.OTM }

// Multiplier returns the strike/spot ratio for dir.
func (p Profile) Multiplier(dir models.Direction) float64 {
	if dir == models.Bearish {
		return p.PutMultiplier()
	}
	return p.CallMultiplier()
}

// Profile keys, ordered from nearest to furthest out of the money.
const (
	UltraConservative = "ultra_conservative"
	Conservative      = "conservative"
	Balanced          = "balanced"
	Moderate          = "moderate"
	Aggressive        = "aggressive"
	Speculative       = "speculative"
)

var ladder = []Profile{
	{UltraConservative, "Ultra Conservative (2% OTM)", 0.02, 0.02, 0.70, 15.0},
	{Conservative, "Conservative (5% OTM)", 0.05, 0.05, 0.60, 8.0},
	{Balanced, "Balanced (8% OTM)", 0.08, 0.08, 0.50, 5.0},
	{Moderate, "Moderate (12% OTM)", 0.12, 0.12, 0.40, 4.0},
	{Aggressive, "Aggressive (15% OTM)", 0.15, 0.15, 0.30, 3.5},
	{Speculative, "Speculative (20% OTM)", 0.20, 0.20, 0.20, 3.0},
}

// Ladder returns the profiles from nearest to furthest out of the money.
func Ladder() []Profile {
	out := make([]Profile, len(ladder))
	copy(out, ladder)
	return out
}

// LookupProfile returns the profile with key.
func LookupProfile(key string) (Profile, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, p := range ladder {
		if p.Key == k {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownProfile, key)
}

func rung(key string) int {
	for i, p := range ladder {
		if p.Key == key {
			return i
		}
	}
	return -1
}

// RiskAppetite shifts the chosen rung by at most one step.
type RiskAppetite string

const (
	AppetiteConservative RiskAppetite = "conservative"
	AppetiteBalanced     RiskAppetite = "balanced"
	AppetiteAggressive   RiskAppetite = "aggressive"
)

// ParseRiskAppetite accepts conservative, balanced and aggressive.
func ParseRiskAppetite(s string) (RiskAppetite, error) {
	switch RiskAppetite(strings.ToLower(strings.TrimSpace(s))) {
	case "", AppetiteBalanced:
		return AppetiteBalanced, nil
	case AppetiteConservative, "ultra_conservative":
		return AppetiteConservative, nil
	case AppetiteAggressive:
		return AppetiteAggressive, nil
	}
	return "", apperrors.NewValidationError("risk_appetite", s, "must be conservative, balanced or aggressive")
}

// MarketConditions are the regime features the ladder is chosen from.
type MarketConditions struct {
	Volatility     float64 // normalized band width, roughly 0..1
	Momentum       float64 // RSI mapped onto -1..1
	BandPercentile float64 // band-width percentile, 0..1
	DaysToExpiry   int
}

// ConditionsFromFrame reads market conditions off bar idx. Undefined
// readings fall back to neutral values: volatility 0.5, momentum 0 and band
// percentile 0.5.
func ConditionsFromFrame(frame *indicators.Frame, idx, daysToExpiry int, volatilityNorm float64) MarketConditions {
	mc := MarketConditions{Volatility: 0.5, BandPercentile: 0.5, DaysToExpiry: daysToExpiry}
	if volatilityNorm <= 0 {
		volatilityNorm = 0.08
	}
	if w, ok := frame.Value(indicators.BBWidth, idx); ok {
		mc.Volatility = w / volatilityNorm
	}
	if rsi, ok := frame.Value(indicators.RSI14, idx); ok {
		mc.Momentum = rsi/50 - 1
	}
	if pct, ok := frame.Value(indicators.BBWidthPct, idx); ok {
		mc.BandPercentile = pct
	}
	return mc
}

// SelectorThresholds holds the regime cut-offs of the ladder selection.
type SelectorThresholds struct {
	HighVolatility   float64
	MediumVolatility float64
	LowVolatility    float64
	StrongMomentum   float64
	ConservativeLift float64 // |momentum| above which conservative steps out
	BalancedLift     float64 // |momentum| above which balanced steps out
	Compressed       float64 // band percentile below which bands are compressed
	Expanded         float64 // band percentile above which bands are expanded
	ShortExpiry      int     // days to expiry below which the choice steps in
}

// DefaultSelectorThresholds returns the standard cut-offs.
func DefaultSelectorThresholds() SelectorThresholds {
	return SelectorThresholds{
		HighVolatility:   0.7,
		MediumVolatility: 0.5,
		LowVolatility:    0.3,
		StrongMomentum:   0.5,
		ConservativeLift: 0.7,
		BalancedLift:     0.8,
		Compressed:       0.3,
		Expanded:         0.7,
		ShortExpiry:      15,
	}
}

// Selection records the rung chosen after each adjustment.
type Selection struct {
	Profile Profile  `json:"profile"`
	Steps   []string `json:"steps"`
}

// StrikeSelector chooses a ladder profile from market conditions.
type StrikeSelector struct {
	th SelectorThresholds
}

// NewStrikeSelector creates a selector with the given thresholds.
func NewStrikeSelector(th SelectorThresholds) *StrikeSelector {
	return &StrikeSelector{th: th}
}

// DefaultStrikeSelector creates a selector with the standard thresholds.
func DefaultStrikeSelector() *StrikeSelector {
	return NewStrikeSelector(DefaultSelectorThresholds())
}

// Select starts from the volatility-implied profile and then applies the
// momentum, band-percentile, time-to-expiry and risk-appetite adjustments in
// that order, each moving at most one rung.
func (s *StrikeSelector) Select(mc MarketConditions, appetite RiskAppetite) Profile {
	return s.Explain(mc, appetite).Profile
}

// Explain is Select with the intermediate rungs recorded.
func (s *StrikeSelector) Explain(mc MarketConditions, appetite RiskAppetite) Selection {
	th := s.th
	var steps []string

	var cur int
	switch {
	case mc.Volatility > th.HighVolatility:
		cur = rung(Conservative)
	case mc.Volatility > th.MediumVolatility:
		cur = rung(Balanced)
	case mc.Volatility > th.LowVolatility:
		cur = rung(Moderate)
	default:
		cur = rung(Aggressive)
	}
	steps = append(steps, "volatility:"+ladder[cur].Key)

	if m := math.Abs(mc.Momentum); m > th.StrongMomentum {
		switch {
		case cur == rung(Conservative) && m > th.ConservativeLift:
			cur++
		case cur == rung(Balanced) && m > th.BalancedLift:
			cur++
		}
	}
	steps = append(steps, "momentum:"+ladder[cur].Key)

	switch {
	case mc.BandPercentile < th.Compressed:
		if cur == rung(Conservative) || cur == rung(Balanced) {
			cur++
		}
	case mc.BandPercentile > th.Expanded:
		if cur == rung(Moderate) || cur == rung(Aggressive) {
			cur--
		}
	}
	steps = append(steps, "bands:"+ladder[cur].Key)

	if mc.DaysToExpiry < th.ShortExpiry && cur > rung(Balanced) {
		cur--
	}
	steps = append(steps, "expiry:"+ladder[cur].Key)

	switch appetite {
	case AppetiteConservative:
		if cur > rung(UltraConservative) {
			cur--
		}
	case AppetiteAggressive:
		if cur >= rung(Conservative) && cur < rung(Aggressive) {
			cur++
		}
	}
	steps = append(steps, "appetite:"+ladder[cur].Key)

	return Selection{Profile: ladder[cur], Steps: steps}
}
