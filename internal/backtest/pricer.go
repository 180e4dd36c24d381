package backtest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"option-backtester/internal/models"
	"option-backtester/internal/options"
)

// Quote sources.
const (
	SourceModel  = "model"
	SourceMarket = "market"
)

// Quote is a premium together with where it came from.
type Quote struct {
	Premium float64
	Source  string
}

// Pricer values an option contract for entries and forced closes.
// Implementations always return a positive premium.
type Pricer interface {
	Price(ctx context.Context, req models.QuoteRequest) Quote
}

// OptionQuoteSource looks up a traded premium for a contract.
type OptionQuoteSource interface {
	Quote(ctx context.Context, req models.QuoteRequest) (float64, error)
}

// ModelPricer prices every contract with the valuation model.
type ModelPricer struct {
	Model options.Model
}

func (p ModelPricer) Price(_ context.Context, req models.QuoteRequest) Quote {
	return Quote{
		Premium: p.Model.EstimatePrice(req.Spot, req.Strike, req.Direction, req.DaysToExpiry),
		Source:  SourceModel,
	}
}

// FallbackPricer asks Source first under Timeout and falls back to the model
// when the lookup fails or returns a non-positive premium.
type FallbackPricer struct {
	Source  OptionQuoteSource
	Model   options.Model
	Timeout time.Duration
	Logger  zerolog.Logger
	// OnFallback is called each time the model is used instead of Source.
	OnFallback func()
}

// DefaultQuoteTimeout bounds a single market quote lookup.
const DefaultQuoteTimeout = 10 * time.Second

// NewFallbackPricer returns a pricer over source with DefaultQuoteTimeout.
func NewFallbackPricer(source OptionQuoteSource, model options.Model, logger zerolog.Logger) *FallbackPricer {
	return &FallbackPricer{
		Source:  source,
		Model:   model,
		Timeout: DefaultQuoteTimeout,
		Logger:  logger,
	}
}

func (p *FallbackPricer) Price(ctx context.Context, req models.QuoteRequest) Quote {
	if p.Source != nil {
		lookupCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}

		premium, err := p.Source.Quote(lookupCtx, req)
		if err == nil && premium > 0 {
			return Quote{Premium: premium, Source: SourceMarket}
		}
		p.Logger.Debug().
			Err(err).
			Str("symbol", req.Symbol).
			Float64("strike", req.Strike).
			Time("date", req.Date).
			Msg("Option quote unavailable, using model estimate")
	}

	if p.OnFallback != nil {
		p.OnFallback()
	}
	return ModelPricer{Model: p.Model}.Price(ctx, req)
}
