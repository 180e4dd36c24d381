// Package performance derives summary statistics from backtest trades and
// equity curves, and ranks results across strategies.
package performance

import (
	"math"
	"sort"

	"option-backtester/internal/models"
)

// TradingDaysPerYear annualizes the daily Sharpe-like ratio.
const TradingDaysPerYear = 252

// Calculate builds the summary for one run.
func Calculate(trades []models.ClosedTrade, curve []models.EquityPoint, initial, final float64) models.Summary {
	s := models.Summary{NumTrades: len(trades)}

	var grossWin, grossLoss float64
	for _, t := range trades {
		s.TotalPnL += t.PnL
		switch {
		case t.IsWin():
			s.Wins++
			grossWin += t.PnL
		case t.IsLoss():
			s.Losses++
			grossLoss += t.PnL
		}
	}

	if s.NumTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.NumTrades)
	}
	if s.Wins > 0 {
		s.AvgWin = grossWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = grossLoss / float64(s.Losses)
		s.ProfitFactor = grossWin / math.Abs(grossLoss)
	}

	s.TotalReturn = TotalReturn(initial, final)
	s.MaxDrawdown = MaxDrawdown(curve)
	s.SharpeRatio = SharpeRatio(curve)
	return s
}

// TotalReturn is the fractional change from initial to final capital.
func TotalReturn(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial
}

// MaxDrawdown returns the deepest fall from a running peak as a fraction.
// The result is never positive.
func MaxDrawdown(curve []models.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}

	peak := curve[0].Equity
	worst := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (p.Equity - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst
}

// DailyReturns returns the day-over-day fractional changes of the curve.
// Days following a non-positive equity value are skipped.
func DailyReturns(curve []models.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	return returns
}

// SharpeRatio is mean(daily return) / sample stdev(daily return) * sqrt(252).
// It is 0 with fewer than two returns or zero dispersion.
func SharpeRatio(curve []models.EquityPoint) float64 {
	returns := DailyReturns(curve)
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	stdDev := math.Sqrt(variance)

	if stdDev == 0 {
		return 0
	}
	return mean / stdDev * math.Sqrt(TradingDaysPerYear)
}

// StrategyComparison is one row of a cross-strategy ranking.
type StrategyComparison struct {
	Symbol       string  `json:"symbol"`
	Strategy     string  `json:"strategy"`
	TotalReturn  float64 `json:"total_return"`
	WinRate      float64 `json:"win_rate"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	TotalTrades  int     `json:"total_trades"`
	ProfitFactor float64 `json:"profit_factor"`
	SoftFailure  string  `json:"soft_failure,omitempty"`
}

// CompareStrategies ranks results by total return, then Sharpe ratio.
// Remaining ties keep a stable symbol/strategy order.
func CompareStrategies(results []*models.BacktestResult) []StrategyComparison {
	comparisons := make([]StrategyComparison, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		comparisons = append(comparisons, StrategyComparison{
			Symbol:       r.Symbol,
			Strategy:     r.Strategy,
			TotalReturn:  r.Summary.TotalReturn,
			WinRate:      r.Summary.WinRate,
			MaxDrawdown:  r.Summary.MaxDrawdown,
			SharpeRatio:  r.Summary.SharpeRatio,
			TotalTrades:  r.Summary.NumTrades,
			ProfitFactor: r.Summary.ProfitFactor,
			SoftFailure:  r.SoftFailure,
		})
	}

	sort.SliceStable(comparisons, func(i, j int) bool {
		a, b := comparisons[i], comparisons[j]
		if a.TotalReturn != b.TotalReturn {
			return a.TotalReturn > b.TotalReturn
		}
		if a.SharpeRatio != b.SharpeRatio {
			return a.SharpeRatio > b.SharpeRatio
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Strategy < b.Strategy
	})

	return comparisons
}
