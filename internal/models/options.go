package models

import "time"

// Position is the single open option position of a backtest run.
type Position struct {
	Symbol          string
	Direction       Direction
	Strike          float64
	EntryDate       time.Time
	EntryPremium    float64
	EntryUnderlying float64
	Quantity        int
	Expiry          time.Time
	Profile         string
	EntryScore      float64
	Confidence      float64
}

// DaysToExpiry returns the calendar days remaining from date until expiry.
func (p *Position) DaysToExpiry(date time.Time) int {
	return CalendarDays(date, p.Expiry)
}

// HoldingDays returns the calendar days elapsed since entry.
func (p *Position) HoldingDays(date time.Time) int {
	return CalendarDays(p.EntryDate, date)
}

// Cost returns the premium paid for the position.
func (p *Position) Cost(multiplier float64) float64 {
	return p.EntryPremium * float64(p.Quantity) * multiplier
}

// UnrealizedPnL values the position at premium.
func (p *Position) UnrealizedPnL(premium, multiplier float64) float64 {
	return (premium - p.EntryPremium) * float64(p.Quantity) * multiplier
}

// CalendarDays counts whole calendar days from a to b, ignoring time of day.
func CalendarDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// QuoteRequest identifies one option contract on one trading day.
type QuoteRequest struct {
	Symbol       string
	Date         time.Time
	Spot         float64
	Strike       float64
	Direction    Direction
	Expiry       time.Time
	DaysToExpiry int
}
