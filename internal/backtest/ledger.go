package backtest

import "math"

// Ledger is the realized capital of one backtest run. It is owned by a
// single run and never shared.
type Ledger struct {
	initial float64
	capital float64
}

// NewLedger opens a ledger with initial capital.
func NewLedger(initial float64) *Ledger {
	return &Ledger{initial: initial, capital: initial}
}

// Initial returns the starting capital.
func (l *Ledger) Initial() float64 { return l.initial }

// Capital returns the realized capital.
func (l *Ledger) Capital() float64 { return l.capital }

// Budget is the notional committed to a new position.
func (l *Ledger) Budget(fraction float64) float64 {
	return l.capital * fraction
}

// Contracts sizes a position: floor(budget / (premium*multiplier)), at least one.
func (l *Ledger) Contracts(premium, fraction, multiplier float64) int {
	if premium <= 0 || multiplier <= 0 {
		return 1
	}
	n := int(math.Floor(l.Budget(fraction) / (premium * multiplier)))
	if n < 1 {
		return 1
	}
	return n
}

// Realize books a closed trade's P&L.
func (l *Ledger) Realize(pnl float64) {
	l.capital += pnl
}

// Equity is realized capital plus the open position's unrealized P&L.
func (l *Ledger) Equity(unrealized float64) float64 {
	return l.capital + unrealized
}
