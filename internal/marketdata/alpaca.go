package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tradewise/internal/domain"
	"tradewise/internal/util"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// barsClient is the subset of the Alpaca market-data client used here.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaOptions configures an AlpacaSource.
type AlpacaOptions struct {
	APIKey     string
	APISecret  string
	DataURL    string // empty uses the SDK default
	Feed       string // "iex" or "sip"
	Adjustment string // "raw", "split", "dividend" or "all"
	Limiter    *util.RateLimiter
	MaxRetries int
	Logger     *slog.Logger
}

// AlpacaSource fetches daily bars from the Alpaca market-data API.
type AlpacaSource struct {
	client     barsClient
	feed       marketdata.Feed
	adjustment marketdata.Adjustment
	limiter    *util.RateLimiter
	maxRetries int
	retryDelay time.Duration
	log        *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource with a live market-data client.
func NewAlpacaSource(opts AlpacaOptions) *AlpacaSource {
	clientOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		clientOpts.BaseURL = opts.DataURL
	}
	return newAlpacaSource(marketdata.NewClient(clientOpts), opts)
}

func newAlpacaSource(client barsClient, opts AlpacaOptions) *AlpacaSource {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AlpacaSource{
		client:     client,
		feed:       marketdata.Feed(opts.Feed),
		adjustment: marketdata.Adjustment(opts.Adjustment),
		limiter:    opts.Limiter,
		maxRetries: max(opts.MaxRetries, 1),
		retryDelay: 500 * time.Millisecond,
		log:        logger.With("source", "alpaca"),
	}
}

// Name returns "alpaca".
func (s *AlpacaSource) Name() string { return "alpaca" }

// Bars fetches daily bars for a US symbol. Client errors with a 4xx status
// are not retried.
func (s *AlpacaSource) Bars(ctx context.Context, symbol, market string, r DateRange) ([]domain.Bar, error) {
	if market != "" && market != string(domain.MarketUS) {
		return nil, fmt.Errorf("alpaca source: market %q not supported", market)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	req := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      r.Start,
		End:        r.End.Add(24*time.Hour - time.Nanosecond),
		Feed:       s.feed,
		Adjustment: s.adjustment,
	}

	var raw []marketdata.Bar
	start := time.Now()
	err := util.Retry(ctx, s.maxRetries, s.retryDelay, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		raw, err = s.client.GetBars(symbol, req)
		if err != nil && isClientError(err) {
			return util.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s %s: %w", symbol, r, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  ab.Timestamp.UTC(),
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	s.log.Debug("fetched bars", "symbol", symbol, "range", r.String(), "bars", len(bars),
		"elapsed", time.Since(start).Round(time.Millisecond))
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, r, ErrNoData)
	}
	return bars, nil
}

func isClientError(err error) bool {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError &&
			apiErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}
