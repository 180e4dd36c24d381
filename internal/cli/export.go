package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"option-backtester/internal/batch"
	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/models"
)

// tradeRow flattens a closed trade with dates rendered as YYYY-MM-DD.
type tradeRow struct {
	EntryDate string `csv:"entry_date"`
	ExitDate  string `csv:"exit_date"`
	Expiry    string `csv:"expiry"`
	models.ClosedTrade
}

type equityRow struct {
	Date   string  `csv:"date"`
	Equity float64 `csv:"equity"`
}

type scanRow struct {
	Symbol       string  `csv:"symbol"`
	Strategy     string  `csv:"strategy"`
	TotalReturn  float64 `csv:"total_return"`
	WinRate      float64 `csv:"win_rate"`
	MaxDrawdown  float64 `csv:"max_drawdown"`
	SharpeRatio  float64 `csv:"sharpe_ratio"`
	ProfitFactor float64 `csv:"profit_factor"`
	Trades       int     `csv:"trades"`
	FinalCapital float64 `csv:"final_capital"`
	Error        string  `csv:"error"`
}

// WriteTradesCSV writes trades to path.
func WriteTradesCSV(path string, trades []models.ClosedTrade) error {
	rows := make([]*tradeRow, len(trades))
	for i, t := range trades {
		rows[i] = &tradeRow{
			EntryDate:   FormatDate(t.EntryDate),
			ExitDate:    FormatDate(t.ExitDate),
			Expiry:      FormatDate(t.Expiry),
			ClosedTrade: t,
		}
	}
	return writeCSV(path, &rows)
}

// WriteEquityCSV writes an equity curve to path.
func WriteEquityCSV(path string, curve []models.EquityPoint) error {
	rows := make([]*equityRow, len(curve))
	for i, p := range curve {
		rows[i] = &equityRow{Date: FormatDate(p.Date), Equity: p.Equity}
	}
	return writeCSV(path, &rows)
}

// WriteScanCSV writes one line per scanned pair to path, failures included.
func WriteScanCSV(path string, results []batch.ScanResult) error {
	rows := make([]*scanRow, 0, len(results))
	for _, r := range results {
		row := &scanRow{Symbol: r.Symbol, Strategy: r.Strategy}
		switch {
		case r.Err != nil:
			row.Error = r.Err.Error()
		case r.Result != nil:
			s := r.Result.Summary
			row.TotalReturn = s.TotalReturn
			row.WinRate = s.WinRate
			row.MaxDrawdown = s.MaxDrawdown
			row.SharpeRatio = s.SharpeRatio
			row.ProfitFactor = s.ProfitFactor
			row.Trades = s.NumTrades
			row.FinalCapital = r.Result.FinalCapital
			row.Error = r.Result.SoftFailure
		}
		rows = append(rows, row)
	}
	return writeCSV(path, &rows)
}

func writeCSV(path string, rows interface{}) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperrors.Wrapf(err, "creating %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrapf(err, "creating %s", path)
	}
	return marshalCSV(f, path, rows)
}

// marshalCSV writes rows to w and closes it, returning the close error.
func marshalCSV(w io.WriteCloser, path string, rows interface{}) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		w.Close()
		return apperrors.Wrapf(err, "writing %s", path)
	}
	return apperrors.Wrapf(w.Close(), "closing %s", path)
}
