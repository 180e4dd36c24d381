package models

import "time"

// TradeStatus tells how a trade left the book.
type TradeStatus string

const (
	TradeClosed  TradeStatus = "closed"
	TradeExpired TradeStatus = "expired"
)

// ExitReason tags the exit rule that closed a trade.
type ExitReason string

const (
	ExitProfitTarget ExitReason = "Profit Target"
	ExitStopLoss     ExitReason = "Stop Loss"
	ExitMaxHolding   ExitReason = "Max Holding"
	ExitExpiry       ExitReason = "Expiry"
	ExitEndOfRun     ExitReason = "End Of Run"
)

// ClosedTrade is the immutable record of a finished position.
type ClosedTrade struct {
	Symbol          string      `json:"symbol" csv:"symbol"`
	Direction       Direction   `json:"direction" csv:"direction"`
	Profile         string      `json:"profile" csv:"profile"`
	Strike          float64     `json:"strike" csv:"strike"`
	Quantity        int         `json:"quantity" csv:"quantity"`
	EntryDate       time.Time   `json:"entry_date" csv:"-"`
	EntryPremium    float64     `json:"entry_premium" csv:"entry_premium"`
	EntryUnderlying float64     `json:"entry_underlying" csv:"entry_underlying"`
	Expiry          time.Time   `json:"expiry" csv:"-"`
	ExitDate        time.Time   `json:"exit_date" csv:"-"`
	ExitPremium     float64     `json:"exit_premium" csv:"exit_premium"`
	ExitUnderlying  float64     `json:"exit_underlying" csv:"exit_underlying"`
	PnL             float64     `json:"pnl" csv:"pnl"`
	PnLPct          float64     `json:"pnl_pct" csv:"pnl_pct"`
	HoldingDays     int         `json:"holding_days" csv:"holding_days"`
	Status          TradeStatus `json:"status" csv:"status"`
	ExitReason      ExitReason  `json:"exit_reason" csv:"exit_reason"`
}

// IsWin reports whether the trade realized a profit.
func (t ClosedTrade) IsWin() bool { return t.PnL > 0 }

// IsLoss reports whether the trade realized a loss.
func (t ClosedTrade) IsLoss() bool { return t.PnL < 0 }
