package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"option-backtester/internal/models"
	"option-backtester/internal/store"
	"option-backtester/pkg/utils"
)

// Fetcher fetches ordered daily bars for a symbol.
type Fetcher interface {
	FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error)
}

// holidayAllowance is the number of missing trading days tolerated at
// either edge of a cached window. Weekends never count as missing.
const holidayAllowance = 1

// CachedProvider serves daily bars from the candle cache and only goes
// upstream when the cached window does not cover the request. When the
// upstream fails and some cached bars exist, those are served instead.
type CachedProvider struct {
	upstream Fetcher
	cache    store.CandleStore
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCachedProvider wraps upstream with cache.
func NewCachedProvider(upstream Fetcher, cache store.CandleStore, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// FetchDaily implements backtest.PriceProvider.
func (c *CachedProvider) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	from, to = utils.DateOnly(from), utils.DateOnly(to)

	cached, err := c.cache.GetCandles(ctx, symbol, store.Daily, from, to)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Candle cache read failed")
		cached = nil
	}
	if c.covers(cached, from, to) {
		c.logger.Debug().Str("symbol", symbol).Int("bars", len(cached)).Msg("Serving bars from cache")
		return cached, nil
	}

	fetched, err := c.upstream.FetchDaily(ctx, symbol, from, to)
	if err != nil {
		if len(cached) > 0 {
			last, _ := c.cache.GetCandlesFreshness(ctx, symbol, store.Daily)
			c.logger.Warn().
				Err(err).
				Str("symbol", symbol).
				Int("bars", len(cached)).
				Time("last_sync", last).
				Msg("Upstream failed, serving partial cache")
			return cached, nil
		}
		return nil, err
	}

	if err := c.cache.SaveCandles(ctx, symbol, store.Daily, fetched); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Candle cache write failed")
	}
	return fetched, nil
}

func (c *CachedProvider) covers(cached []models.Candle, from, to time.Time) bool {
	if len(cached) == 0 {
		return false
	}
	today := utils.DateOnly(c.now())
	if to.After(today) {
		to = today
	}
	first := cached[0].Timestamp
	last := cached[len(cached)-1].Timestamp
	return missingTradingDays(from, first) <= holidayAllowance &&
		missingTradingDays(last.AddDate(0, 0, 1), to.AddDate(0, 0, 1)) <= holidayAllowance
}

// missingTradingDays counts the trading days in [from, until), stopping
// once the holiday allowance is exceeded.
func missingTradingDays(from, until time.Time) int {
	n := 0
	for d := from; d.Before(until) && n <= holidayAllowance; d = d.AddDate(0, 0, 1) {
		if utils.IsTradingDay(d) {
			n++
		}
	}
	return n
}
