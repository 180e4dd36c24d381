// Package marketdata fetches daily bars and option quotes from an
// aggregates-style REST API, a local CSV directory, or the SQLite cache.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/logging"
	"option-backtester/internal/models"
	"option-backtester/pkg/utils"
)

// Request outcomes reported to a RequestObserver.
const (
	ResultOK          = "ok"
	ResultNoData      = "no_data"
	ResultError       = "error"
	ResultRateLimited = "rate_limited"
	ResultBreakerOpen = "breaker_open"
)

// RequestObserver receives the outcome of each upstream request.
type RequestObserver interface {
	ProviderRequest(result string)
}

// HTTPConfig holds the REST provider settings.
type HTTPConfig struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	RatePerSecond   float64
	Burst           int
	MaxRetries      int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultHTTPConfig returns conservative settings for a free-tier API key.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		BaseURL:         "https://api.polygon.io",
		Timeout:         15 * time.Second,
		RatePerSecond:   5,
		Burst:           1,
		MaxRetries:      3,
		BreakerFailures: 5,
		BreakerTimeout:  60 * time.Second,
	}
}

// HTTPProvider reads daily aggregates and option closes over HTTP. Requests
// are rate limited, retried with backoff and guarded by a circuit breaker.
type HTTPProvider struct {
	cfg      HTTPConfig
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	retry    utils.RetryConfig
	logger   zerolog.Logger
	observer RequestObserver

	mu     sync.RWMutex
	quotes map[string]float64
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.client = c }
}

// WithHTTPLogger sets the provider logger.
func WithHTTPLogger(l zerolog.Logger) HTTPOption {
	return func(p *HTTPProvider) { p.logger = l }
}

// WithRetryConfig overrides the backoff schedule. ShouldRetry is always
// replaced by the provider's own classification.
func WithRetryConfig(cfg utils.RetryConfig) HTTPOption {
	return func(p *HTTPProvider) {
		cfg.ShouldRetry = isRetryable
		p.retry = cfg
	}
}

// WithRequestObserver reports request outcomes, typically to metrics.
func WithRequestObserver(o RequestObserver) HTTPOption {
	return func(p *HTTPProvider) { p.observer = o }
}

// NewHTTPProvider creates a provider for cfg.
func NewHTTPProvider(cfg HTTPConfig, opts ...HTTPOption) *HTTPProvider {
	def := DefaultHTTPConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	p := &HTTPProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		retry:   utils.DefaultRetryConfig(),
		logger:  zerolog.Nop(),
		quotes:  make(map[string]float64),
	}
	p.retry.MaxAttempts = cfg.MaxRetries
	p.retry.ShouldRetry = isRetryable
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "market-data",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// client errors such as 403/404 say nothing about upstream health
		IsSuccessful: func(err error) bool {
			return err == nil || !isRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type aggregate struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

type aggregatesResponse struct {
	Status       string      `json:"status"`
	ResultsCount int         `json:"resultsCount"`
	Results      []aggregate `json:"results"`
	Error        string      `json:"error"`
	Message      string      `json:"message"`
}

// FetchDaily returns ascending daily bars for symbol between from and to
// inclusive. An empty upstream answer is reported as ErrNoData.
func (p *HTTPProvider) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	endpoint := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(symbol), from.Format("2006-01-02"), to.Format("2006-01-02"))
	params := url.Values{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {"5000"},
	}

	body, err := p.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var resp aggregatesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewDataError("candles", symbol, "malformed aggregates response", err)
	}
	if resp.ResultsCount == 0 || len(resp.Results) == 0 {
		p.observe(ResultNoData)
		return []models.Candle{}, apperrors.NewDataError("candles", symbol,
			fmt.Sprintf("no bars between %s and %s", from.Format("2006-01-02"), to.Format("2006-01-02")), apperrors.ErrNoData)
	}

	candles := make([]models.Candle, 0, len(resp.Results))
	for _, a := range resp.Results {
		candles = append(candles, models.Candle{
			Timestamp: utils.DateOnly(time.UnixMilli(a.T).UTC()),
			Open:      a.O,
			High:      a.H,
			Low:       a.L,
			Close:     a.C,
			Volume:    int64(a.V),
		})
	}

	p.logger.Info().
		Str("symbol", symbol).
		Int("bars", len(candles)).
		Time("first", candles[0].Timestamp).
		Time("last", candles[len(candles)-1].Timestamp).
		Msg("Fetched daily bars")
	return candles, nil
}

// Quote returns the traded close of the contract on req.Date, or the
// high/low midpoint when the close is missing. Quotes are cached per
// contract and day.
func (p *HTTPProvider) Quote(ctx context.Context, req models.QuoteRequest) (float64, error) {
	ticker := utils.OptionTicker(req.Symbol, req.Expiry, req.Direction, req.Strike)
	day := req.Date.Format("2006-01-02")
	key := ticker + "@" + day

	p.mu.RLock()
	cached, ok := p.quotes[key]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	endpoint := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s", url.PathEscape(ticker), day, day)
	body, err := p.get(ctx, endpoint, url.Values{"adjusted": {"true"}})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", apperrors.ErrQuoteUnavailable, ticker, err)
	}

	var resp aggregatesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: %s: malformed response", apperrors.ErrQuoteUnavailable, ticker)
	}
	if len(resp.Results) == 0 {
		return 0, fmt.Errorf("%w: %s has no bar on %s", apperrors.ErrQuoteUnavailable, ticker, day)
	}

	a := resp.Results[0]
	premium := a.C
	if premium <= 0 {
		if a.H <= 0 || a.L <= 0 {
			return 0, fmt.Errorf("%w: %s has no usable price on %s", apperrors.ErrQuoteUnavailable, ticker, day)
		}
		premium = (a.H + a.L) / 2
	}

	p.mu.Lock()
	p.quotes[key] = premium
	p.mu.Unlock()
	return premium, nil
}

// get performs a rate-limited, retried, breaker-guarded GET.
func (p *HTTPProvider) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	target := p.cfg.BaseURL + endpoint + "?" + params.Encode()

	return utils.RetryWithResult(ctx, p.retry, func() ([]byte, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}

		start := time.Now()
		out, err := p.breaker.Execute(func() (interface{}, error) {
			return p.do(ctx, target)
		})
		logging.LogAPICall(p.logger, http.MethodGet, endpoint, time.Since(start), err)

		switch {
		case err == nil:
			p.observe(ResultOK)
			return out.([]byte), nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			p.observe(ResultBreakerOpen)
			return nil, fmt.Errorf("%w: circuit open", apperrors.ErrProviderUnavailable)
		case errors.Is(err, apperrors.ErrRateLimited):
			p.observe(ResultRateLimited)
		default:
			p.observe(ResultError)
		}
		return nil, err
	})
}

func (p *HTTPProvider) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.NewProviderError("http", 0, "request failed", redactURL(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, apperrors.NewProviderError("http", resp.StatusCode, "reading body", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.NewProviderError("http", resp.StatusCode, "rate limited", apperrors.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, apperrors.NewProviderError("http", resp.StatusCode, "upstream error", apperrors.ErrProviderUnavailable)
	default:
		return nil, apperrors.NewProviderError("http", resp.StatusCode, strings.TrimSpace(string(body)), nil)
	}
}

// redactURL drops the query string from a transport error so request
// parameters never reach logs or stored results.
func redactURL(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	u, perr := url.Parse(uerr.URL)
	if perr != nil {
		return &url.Error{Op: uerr.Op, URL: "<redacted>", Err: uerr.Err}
	}
	u.RawQuery = ""
	u.User = nil
	return &url.Error{Op: uerr.Op, URL: u.String(), Err: uerr.Err}
}

func (p *HTTPProvider) observe(result string) {
	if p.observer != nil {
		p.observer.ProviderRequest(result)
	}
}

func isRetryable(err error) bool {
	var perr *apperrors.ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	switch {
	case errors.Is(err, apperrors.ErrProviderUnavailable), errors.Is(err, apperrors.ErrTimeout):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
