package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	apperrors "quantfolio/internal/errors"
)

// Client fetches daily candles from a REST market-data endpoint. Requests are
// throttled with a token-bucket limiter so a burst of portfolio loads cannot
// trip the provider's quota.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientConfig configures the market data client.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// NewClient creates a market data client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// candlePayload mirrors the provider's JSON response.
type candlePayload struct {
	Symbol  string `json:"symbol"`
	Candles []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume float64 `json:"volume"`
	} `json:"candles"`
}

// Candles fetches daily candles for a symbol over a date window.
func (c *Client) Candles(ctx context.Context, symbol string, from, to time.Time) ([]Candle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMarketDataUnavailable,
			"rate limiter interrupted")
	}

	endpoint := fmt.Sprintf("%s/v1/candles/daily", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to build request")
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))
	req.URL.RawQuery = q.Encode()
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMarketDataUnavailable,
			"market data request failed").WithContext("symbol", symbol)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.ErrCodeMarketDataUnavailable,
			"market data request for %s returned status %d", symbol, resp.StatusCode)
	}

	var payload candlePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMarketDataInvalid,
			"failed to decode candle payload").WithContext("symbol", symbol)
	}

	candles := make([]Candle, 0, len(payload.Candles))
	for _, raw := range payload.Candles {
		date, err := time.Parse("2006-01-02", raw.Date)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeMarketDataInvalid,
				"invalid candle date").WithContext("symbol", symbol)
		}
		candles = append(candles, Candle{
			Symbol: symbol,
			Date:   date,
			Open:   raw.Open,
			High:   raw.High,
			Low:    raw.Low,
			Close:  raw.Close,
			Volume: raw.Volume,
		})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Date.Before(candles[j].Date) })
	return candles, nil
}
