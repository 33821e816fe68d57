package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
)

const (
	defaultQuoteURL = "https://query1.finance.yahoo.com/v7/finance/quote"
	defaultChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"

	userAgent = "Mozilla/5.0 (X11; Linux x86_64) stockwatch/1.0"
)

// YahooClient fetches quotes and daily candles from the Yahoo Finance API.
// Transient failures are retried with exponential backoff before the error
// is surfaced to the caller.
type YahooClient struct {
	quoteURL    string
	chartURL    string
	httpClient  *http.Client
	logger      zerolog.Logger
	maxAttempts int
	backoffBase time.Duration
}

// YahooOption configures a YahooClient.
type YahooOption func(*YahooClient)

// WithBaseURLs overrides the API endpoints, used in tests.
func WithBaseURLs(quoteURL, chartURL string) YahooOption {
	return func(c *YahooClient) {
		c.quoteURL = quoteURL
		c.chartURL = chartURL
	}
}

// WithRetryPolicy sets the retry budget for transient failures.
func WithRetryPolicy(maxAttempts int, base time.Duration) YahooOption {
	return func(c *YahooClient) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if base > 0 {
			c.backoffBase = base
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) YahooOption {
	return func(c *YahooClient) {
		c.httpClient = hc
	}
}

// NewYahooClient creates a new Yahoo Finance client.
func NewYahooClient(logger zerolog.Logger, opts ...YahooOption) *YahooClient {
	c := &YahooClient{
		quoteURL: defaultQuoteURL,
		chartURL: defaultChartURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:      logger.With().Str("component", "marketdata").Logger(),
		maxAttempts: 3,
		backoffBase: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			Bid                        float64 `json:"bid"`
			Ask                        float64 `json:"ask"`
			RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
			RegularMarketTime          int64   `json:"regularMarketTime"`
			MarketState                string  `json:"marketState"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"quoteResponse"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// FetchQuote returns the current quote for a symbol.
func (c *YahooClient) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	reqURL := c.quoteURL + "?" + url.Values{"symbols": {symbol}}.Encode()

	var parsed quoteResponse
	if err := c.getJSON(ctx, "quote", symbol, reqURL, &parsed); err != nil {
		return nil, err
	}

	if parsed.QuoteResponse.Error != nil {
		return nil, apperrors.NewDataError("quote", symbol, parsed.QuoteResponse.Error.Description, nil)
	}
	if len(parsed.QuoteResponse.Result) == 0 {
		return nil, apperrors.ErrSymbolNotFound
	}

	r := parsed.QuoteResponse.Result[0]
	if r.RegularMarketPrice <= 0 {
		return nil, apperrors.NewDataError("quote", symbol, "missing market price", nil)
	}

	state := models.MarketState(r.MarketState)
	switch state {
	case models.MarketStateRegular, models.MarketStatePre, models.MarketStatePost, models.MarketStateClosed:
	default:
		state = models.MarketStateUnknown
	}

	now := time.Now().UTC()
	observed := now
	if r.RegularMarketTime > 0 {
		observed = time.Unix(r.RegularMarketTime, 0).UTC()
	}

	return &models.Quote{
		Symbol:      symbol,
		Price:       r.RegularMarketPrice,
		Bid:         r.Bid,
		Ask:         r.Ask,
		PrevClose:   r.RegularMarketPreviousClose,
		MarketState: state,
		ObservedAt:  observed,
		FetchedAt:   now,
	}, nil
}

// FetchHistory returns daily price points for the last lookbackDays calendar
// days, oldest first. Trading days where the API reports no close are
// dropped rather than stored as zeros.
func (c *YahooClient) FetchHistory(ctx context.Context, symbol string, lookbackDays int) ([]models.PricePoint, error) {
	now := time.Now().UTC()
	params := url.Values{
		"interval": {"1d"},
		"period1":  {fmt.Sprintf("%d", now.AddDate(0, 0, -lookbackDays).Unix())},
		"period2":  {fmt.Sprintf("%d", now.Unix())},
		"events":   {"div,split"},
	}
	reqURL := fmt.Sprintf("%s/%s?%s", c.chartURL, url.PathEscape(symbol), params.Encode())

	var parsed chartResponse
	if err := c.getJSON(ctx, "history", symbol, reqURL, &parsed); err != nil {
		return nil, err
	}

	if parsed.Chart.Error != nil {
		if parsed.Chart.Error.Code == "Not Found" {
			return nil, apperrors.ErrSymbolNotFound
		}
		return nil, apperrors.NewDataError("history", symbol, parsed.Chart.Error.Description, nil)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, apperrors.NewDataError("history", symbol, "empty chart result", nil)
	}

	result := parsed.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, apperrors.NewDataError("history", symbol, "missing quote indicators", nil)
	}
	quote := result.Indicators.Quote[0]

	var adjCloses []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adjCloses = result.Indicators.AdjClose[0].AdjClose
	}

	fetchedAt := time.Now().UTC()
	points := make([]models.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}

		t := time.Unix(ts, 0).UTC()
		p := models.PricePoint{
			Symbol:    symbol,
			Date:      time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			Close:     *quote.Close[i],
			AdjClose:  *quote.Close[i],
			FetchedAt: fetchedAt,
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			p.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			p.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			p.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			p.Volume = *quote.Volume[i]
		}
		if i < len(adjCloses) && adjCloses[i] != nil {
			p.AdjClose = *adjCloses[i]
		}
		points = append(points, p)
	}

	if len(points) == 0 {
		return nil, apperrors.NewDataError("history", symbol, "no usable price points", nil)
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Int("points", len(points)).
		Msg("Fetched price history")

	return points, nil
}

// getJSON performs a GET with retries and decodes the response body into out.
func (c *YahooClient) getJSON(ctx context.Context, op, symbol, reqURL string, out interface{}) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.NewTransientError(op, symbol, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(apperrors.ErrSymbolNotFound)
		case resp.StatusCode == http.StatusTooManyRequests:
			return apperrors.NewTransientError(op, symbol, apperrors.ErrRateLimited)
		case resp.StatusCode >= 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return apperrors.NewTransientError(op, symbol,
				fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, string(body)))
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(
				fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, string(body)))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.backoffBase
	policy.RandomizationFactor = 0.2

	start := time.Now()
	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx),
		func(err error, wait time.Duration) {
			c.logger.Warn().
				Err(err).
				Str("op", op).
				Str("symbol", symbol).
				Dur("retry_in", wait).
				Msg("Market data request failed, retrying")
		},
	)
	logging.LogAPICall(c.logger, http.MethodGet, op, time.Since(start), err)
	return err
}
