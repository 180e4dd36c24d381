package options

import (
	"math"

	"option-backtester/internal/models"
)

// ProfitEstimate is the modeled outcome of one profile under a hypothesized move.
type ProfitEstimate struct {
	Profile       Profile          `json:"profile"`
	Direction     models.Direction `json:"direction"`
	Strike        float64          `json:"strike"`
	EntryPremium  float64          `json:"entry_premium"`
	ExitPremium   float64          `json:"exit_premium"`
	ProfitPct     float64          `json:"profit_pct"`
	Profitable    bool             `json:"profitable"`
	ExpectedValue float64          `json:"expected_value"`
	RiskReward    float64          `json:"risk_reward"`
}

// Candidates is the profile set compared by Recommend.
var Candidates = []string{Conservative, Balanced, Moderate, Aggressive}

// ExpectedProfit prices profile p at spot, then again after spot moves by
// predictedMove with 15 fewer days to expiry (at least 5). A positive move
// is played with a call, anything else with a put. The expected value is the
// modeled return weighted by the profile's win rate.
func (m Model) ExpectedProfit(p Profile, spot, predictedMove float64, daysToExpiry int) ProfitEstimate {
	dir := models.Bearish
	if predictedMove > 0 {
		dir = models.Bullish
	}
	strike := spot * p.Multiplier(dir)

	entry := m.EstimatePrice(spot, strike, dir, daysToExpiry)
	exitSpot := spot * (1 + predictedMove)
	exitDTE := daysToExpiry - 15
	if exitDTE < 5 {
		exitDTE = 5
	}
	exit := m.EstimatePrice(exitSpot, strike, dir, exitDTE)

	var profitPct float64
	if entry > 0 {
		profitPct = (exit - entry) / entry
	}

	est := ProfitEstimate{
		Profile:       p,
		Direction:     dir,
		Strike:        strike,
		EntryPremium:  entry,
		ExitPremium:   exit,
		ProfitPct:     profitPct,
		Profitable:    (dir == models.Bullish && exitSpot > strike) || (dir == models.Bearish && exitSpot < strike),
		ExpectedValue: profitPct * p.WinRate,
	}
	if p.OTM > 0 {
		est.RiskReward = math.Abs(profitPct) / p.OTM
	}
	return est
}

// Recommendation pairs the regime-selected profile with the candidate of
// highest expected value.
type Recommendation struct {
	Primary     Profile          `json:"primary"`
	Best        ProfitEstimate   `json:"best"`
	Evaluations []ProfitEstimate `json:"evaluations"`
}

// Recommend evaluates the candidate profiles and picks the highest expected
// value, keeping the earlier candidate on ties.
func (m Model) Recommend(sel *StrikeSelector, mc MarketConditions, appetite RiskAppetite, spot, predictedMove float64) Recommendation {
	rec := Recommendation{Primary: sel.Select(mc, appetite)}
	for i, key := range Candidates {
		p, _ := LookupProfile(key)
		est := m.ExpectedProfit(p, spot, predictedMove, mc.DaysToExpiry)
		rec.Evaluations = append(rec.Evaluations, est)
		if i == 0 || est.ExpectedValue > rec.Best.ExpectedValue {
			rec.Best = est
		}
	}
	return rec
}
