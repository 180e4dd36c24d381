// Package backtest simulates single-position long option strategies over
// daily price history.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"option-backtester/internal/analysis/direction"
	"option-backtester/internal/analysis/indicators"
	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/logging"
	"option-backtester/internal/models"
	"option-backtester/internal/options"
	"option-backtester/internal/performance"
)

// Run outcomes reported to the Observer.
const (
	OutcomeCompleted   = "completed"
	OutcomeSoftFailure = "soft_failure"
)

// Observer receives run events, typically for metrics.
type Observer interface {
	RunFinished(outcome string)
	TradeClosed(reason models.ExitReason)
}

type nopObserver struct{}

func (nopObserver) RunFinished(string)            {}
func (nopObserver) TradeClosed(models.ExitReason) {}

// Engine runs backtests. Its collaborators are read-only during a run, so a
// single Engine may serve concurrent runs.
type Engine struct {
	pipeline  *indicators.Pipeline
	direction *direction.Selector
	strikes   *options.StrikeSelector
	model     options.Model
	pricer    Pricer
	observer  Observer
	logger    zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPipeline sets the indicator pipeline.
func WithPipeline(p *indicators.Pipeline) Option {
	return func(e *Engine) { e.pipeline = p }
}

// WithDirectionSelector sets the selector used by the auto direction policy.
func WithDirectionSelector(s *direction.Selector) Option {
	return func(e *Engine) { e.direction = s }
}

// WithStrikeSelector sets the OTM ladder selector.
func WithStrikeSelector(s *options.StrikeSelector) Option {
	return func(e *Engine) { e.strikes = s }
}

// WithModel sets the valuation model used to mark open positions.
func WithModel(m options.Model) Option {
	return func(e *Engine) { e.model = m }
}

// WithPricer sets the pricer used for entries and forced closes.
func WithPricer(p Pricer) Option {
	return func(e *Engine) { e.pricer = p }
}

// WithObserver sets the run event observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine with default collaborators, overridden by opts.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		pipeline:  indicators.DefaultPipeline(),
		direction: direction.NewSelector(),
		strikes:   options.DefaultStrikeSelector(),
		model:     options.DefaultModel(),
		observer:  nopObserver{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pricer == nil {
		e.pricer = ModelPricer{Model: e.model}
	}
	return e
}

// Run simulates cfg over candles. Invalid configuration is the only error;
// unusable history yields a flat result with SoftFailure set.
func (e *Engine) Run(ctx context.Context, symbol string, candles []models.Candle, cfg Config) (*models.BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "invalid backtest config")
	}
	appetite, _ := options.ParseRiskAppetite(string(cfg.RiskAppetite))
	cfg.RiskAppetite = appetite

	log := logging.WithStrategy(logging.WithSymbol(e.logger, symbol), cfg.Name())

	if len(candles) < cfg.MinHistory {
		err := fmt.Errorf("%w: have %d bars, need %d", apperrors.ErrInsufficientHistory, len(candles), cfg.MinHistory)
		return e.softFail(log, symbol, candles, cfg, err), nil
	}
	if !models.PriceSeries(candles).IsAscending() {
		err := apperrors.NewDataError("candles", symbol, "bars are not in ascending date order", apperrors.ErrNoData)
		return e.softFail(log, symbol, candles, cfg, err), nil
	}
	frame, err := e.pipeline.Build(candles)
	if err != nil {
		return e.softFail(log, symbol, candles, cfg, err), nil
	}

	r := &run{
		engine: e,
		ctx:    ctx,
		symbol: symbol,
		cfg:    cfg,
		frame:  frame,
		ledger: NewLedger(cfg.InitialCapital),
		log:    log,
		trades: make([]models.ClosedTrade, 0),
		curve:  make([]models.EquityPoint, 0, frame.Len()),
	}
	for i := 0; i < frame.Len(); i++ {
		r.step(i)
	}

	result := &models.BacktestResult{
		Symbol:         symbol,
		Strategy:       cfg.Name(),
		Trades:         r.trades,
		EquityCurve:    r.curve,
		InitialCapital: cfg.InitialCapital,
		FinalCapital:   r.ledger.Capital(),
	}
	result.Summary = performance.Calculate(result.Trades, result.EquityCurve, result.InitialCapital, result.FinalCapital)

	log.Debug().
		Int("trades", result.Summary.NumTrades).
		Float64("total_return", result.Summary.TotalReturn).
		Msg("Backtest completed")
	e.observer.RunFinished(OutcomeCompleted)
	return result, nil
}

// softFail returns a result with no trades and a flat equity curve at the
// initial capital, one point per supplied bar.
func (e *Engine) softFail(log zerolog.Logger, symbol string, candles []models.Candle, cfg Config, cause error) *models.BacktestResult {
	logging.LogSoftFailure(log, cause)
	e.observer.RunFinished(OutcomeSoftFailure)
	return FlatResult(symbol, cfg.Name(), cfg.InitialCapital, candles, cause)
}

// FlatResult builds the result of a run that never traded.
func FlatResult(symbol, strategy string, initial float64, candles []models.Candle, cause error) *models.BacktestResult {
	curve := make([]models.EquityPoint, len(candles))
	for i, c := range candles {
		curve[i] = models.EquityPoint{Date: c.Timestamp, Equity: initial}
	}
	result := &models.BacktestResult{
		Symbol:         symbol,
		Strategy:       strategy,
		Trades:         []models.ClosedTrade{},
		EquityCurve:    curve,
		InitialCapital: initial,
		FinalCapital:   initial,
	}
	if cause != nil {
		result.SoftFailure = cause.Error()
	}
	result.Summary = performance.Calculate(nil, curve, initial, initial)
	return result
}

// run is the mutable state of one backtest. It lives for a single Run call.
type run struct {
	engine *Engine
	ctx    context.Context
	symbol string
	cfg    Config
	frame  *indicators.Frame
	ledger *Ledger
	log    zerolog.Logger

	position *models.Position
	mark     float64 // premium of the open position at today's close

	trades []models.ClosedTrade
	curve  []models.EquityPoint
}

// step advances the run by one bar: exit check, entry check, forced close on
// the final bar, then one equity point.
func (r *run) step(i int) {
	date := r.frame.Date(i)
	spot := r.frame.Close(i)

	if r.position != nil {
		dte := r.position.DaysToExpiry(date)
		r.mark = r.engine.model.EstimatePrice(spot, r.position.Strike, r.position.Direction, dte)
		if reason, ok := r.exitReason(date, dte); ok {
			r.close(date, spot, r.mark, reason, models.TradeClosed)
		}
	}

	if r.position == nil && i >= r.cfg.MinHistory && r.ledger.Capital() > 0 {
		if sig := r.cfg.Entry.Check(r.frame, i); sig.Triggered {
			r.open(i, sig)
		}
	}

	if i == r.frame.Len()-1 && r.position != nil {
		quote := r.engine.pricer.Price(r.ctx, r.quoteRequest(date, spot, 0))
		r.close(date, spot, quote.Premium, models.ExitEndOfRun, models.TradeExpired)
	}

	unrealized := 0.0
	if r.position != nil {
		unrealized = r.position.UnrealizedPnL(r.mark, r.cfg.ContractMultiplier)
	}
	r.curve = append(r.curve, models.EquityPoint{Date: date, Equity: r.ledger.Equity(unrealized)})
}

// exitReason applies the exit rules in priority order.
func (r *run) exitReason(date time.Time, dte int) (models.ExitReason, bool) {
	pos := r.position
	ret := pos.UnrealizedPnL(r.mark, r.cfg.ContractMultiplier) / pos.Cost(r.cfg.ContractMultiplier)
	switch {
	case ret >= r.cfg.ProfitTarget:
		return models.ExitProfitTarget, true
	case ret <= r.cfg.StopLoss:
		return models.ExitStopLoss, true
	case pos.HoldingDays(date) >= r.cfg.MaxHoldingDays:
		return models.ExitMaxHolding, true
	case dte <= 0:
		return models.ExitExpiry, true
	}
	return "", false
}

func (r *run) open(i int, sig EntrySignal) {
	date := r.frame.Date(i)
	spot := r.frame.Close(i)

	dir, confidence := r.resolveDirection(i, sig)
	profile := r.profile(i)
	strike := options.StrikeFor(profile, spot, dir, r.cfg.RoundStrikes)

	pos := &models.Position{
		Symbol:          r.symbol,
		Direction:       dir,
		Strike:          strike,
		EntryDate:       date,
		EntryUnderlying: spot,
		Expiry:          date.AddDate(0, 0, r.cfg.DaysToExpiry),
		Profile:         profile.Key,
		EntryScore:      sig.Score,
		Confidence:      confidence,
	}
	r.position = pos

	quote := r.engine.pricer.Price(r.ctx, r.quoteRequest(date, spot, r.cfg.DaysToExpiry))
	pos.EntryPremium = quote.Premium
	pos.Quantity = r.ledger.Contracts(quote.Premium, r.cfg.PositionSizeFraction, r.cfg.ContractMultiplier)
	r.mark = quote.Premium

	logging.LogEntry(r.log, date, string(dir), strike, quote.Premium, pos.Quantity)
	r.log.Debug().
		Str("profile", profile.Key).
		Str("premium_source", quote.Source).
		Float64("confidence", confidence).
		Strs("signals", sig.Signals).
		Msg("Entry detail")
}

func (r *run) close(date time.Time, spot, premium float64, reason models.ExitReason, status models.TradeStatus) {
	pos := r.position
	mult := r.cfg.ContractMultiplier
	pnl := (premium - pos.EntryPremium) * float64(pos.Quantity) * mult
	pnlPct := pnl / (pos.EntryPremium * float64(pos.Quantity) * mult)

	r.trades = append(r.trades, models.ClosedTrade{
		Symbol:          pos.Symbol,
		Direction:       pos.Direction,
		Profile:         pos.Profile,
		Strike:          pos.Strike,
		Quantity:        pos.Quantity,
		EntryDate:       pos.EntryDate,
		EntryPremium:    pos.EntryPremium,
		EntryUnderlying: pos.EntryUnderlying,
		Expiry:          pos.Expiry,
		ExitDate:        date,
		ExitPremium:     premium,
		ExitUnderlying:  spot,
		PnL:             pnl,
		PnLPct:          pnlPct,
		HoldingDays:     pos.HoldingDays(date),
		Status:          status,
		ExitReason:      reason,
	})
	r.ledger.Realize(pnl)
	r.position = nil
	r.mark = 0

	logging.LogExit(r.log, date, string(reason), pnl, pnlPct)
	r.engine.observer.TradeClosed(reason)
}

func (r *run) resolveDirection(i int, sig EntrySignal) (models.Direction, float64) {
	switch r.cfg.Direction {
	case DirectionBullish:
		return models.Bullish, 1
	case DirectionBearish:
		return models.Bearish, 1
	case DirectionSignal:
		if sig.HasDirection {
			return sig.Direction, 1
		}
	}

	var weights map[string]float64
	if w, ok := r.cfg.Entry.(Weighted); ok {
		weights = w.SignalWeights()
	}
	return r.engine.direction.Select(r.frame, i, weights)
}

func (r *run) profile(i int) options.Profile {
	if r.cfg.StrikeProfile != "" {
		// validated with the config
		p, _ := options.LookupProfile(r.cfg.StrikeProfile)
		return p
	}
	mc := options.ConditionsFromFrame(r.frame, i, r.cfg.DaysToExpiry, r.cfg.VolatilityNorm)
	return r.engine.strikes.Select(mc, r.cfg.RiskAppetite)
}

func (r *run) quoteRequest(date time.Time, spot float64, dte int) models.QuoteRequest {
	pos := r.position
	return models.QuoteRequest{
		Symbol:       r.symbol,
		Date:         date,
		Spot:         spot,
		Strike:       pos.Strike,
		Direction:    pos.Direction,
		Expiry:       pos.Expiry,
		DaysToExpiry: dte,
	}
}
