package marketdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/models"
	"option-backtester/pkg/utils"
)

// csvBar is one row of a SYMBOL.csv history file. Headers are lower case.
type csvBar struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

// CSVProvider reads daily bars from <Dir>/<SYMBOL>.csv for offline runs.
type CSVProvider struct {
	Dir string
}

// NewCSVProvider creates a provider rooted at dir.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{Dir: dir}
}

// FetchDaily returns the bars dated within [from, to], sorted ascending.
func (p *CSVProvider) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(p.Dir, strings.ToUpper(symbol)+".csv")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewDataError("candles", symbol, "no history file at "+path, apperrors.ErrNoData)
		}
		return nil, apperrors.NewDataError("candles", symbol, "reading "+path, err)
	}

	var rows []*csvBar
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, apperrors.NewDataError("candles", symbol, "parsing "+path, err)
	}

	from, to = utils.DateOnly(from), utils.DateOnly(to)
	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		day, err := utils.ParseDate(row.Date)
		if err != nil {
			return nil, apperrors.NewDataError("candles", symbol, fmt.Sprintf("row %d", i+2), err)
		}
		if day.Before(from) || day.After(to) {
			continue
		}
		candles = append(candles, models.Candle{
			Timestamp: day,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    int64(row.Volume),
		})
	}
	if len(candles) == 0 {
		return []models.Candle{}, apperrors.NewDataError("candles", symbol, "no bars in range", apperrors.ErrNoData)
	}

	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}
