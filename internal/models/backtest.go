package models

import "time"

// EquityPoint is the portfolio value at the close of one simulated day.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// Summary holds the performance statistics of one run.
type Summary struct {
	NumTrades    int     `json:"num_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	TotalPnL     float64 `json:"total_pnl"`
	TotalReturn  float64 `json:"total_return"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	ProfitFactor float64 `json:"profit_factor"`
}

// BacktestResult is the output of a single backtest run.
type BacktestResult struct {
	RunID          string        `json:"run_id"`
	Symbol         string        `json:"symbol"`
	Strategy       string        `json:"strategy"`
	Trades         []ClosedTrade `json:"trades"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
	InitialCapital float64       `json:"initial_capital"`
	FinalCapital   float64       `json:"final_capital"`
	Summary        Summary       `json:"summary"`
	// SoftFailure carries the cause when the run never started.
	SoftFailure string `json:"soft_failure,omitempty"`
}

// Failed reports whether the run soft-failed.
func (r *BacktestResult) Failed() bool { return r.SoftFailure != "" }
