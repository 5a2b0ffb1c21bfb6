package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "quantfolio/internal/errors"
	"quantfolio/internal/logger"
	"quantfolio/internal/monitoring"
)

// metrics register against the global prometheus registry, so tests share a
// single instance
var testMetrics = monitoring.NewMetrics()

func TestClientCandles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		// out of order on purpose; the client must sort ascending
		_, _ = w.Write([]byte(`{
			"symbol": "AAPL",
			"candles": [
				{"date": "2024-03-04", "open": 101, "high": 103, "low": 100, "close": 102, "volume": 1000},
				{"date": "2024-03-01", "open": 100, "high": 102, "low": 99, "close": 101, "volume": 900}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL:           server.URL,
		APIKey:            "test-key",
		RequestsPerSecond: 100,
	})

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	candles, err := client.Candles(context.Background(), "AAPL", from, to)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), candles[0].Date)
	assert.InDelta(t, 101.0, candles[0].Close, 1e-15)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), candles[1].Date)
}

func TestClientCandlesUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, RequestsPerSecond: 100})
	_, err := client.Candles(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeMarketDataUnavailable))
}

func TestClientCandlesBadPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candles": [{"date": "not-a-date", "close": 1}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, RequestsPerSecond: 100})
	_, err := client.Candles(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeMarketDataInvalid))
}

type staticProvider struct {
	candles map[string][]Candle
	err     error
}

func (p *staticProvider) Candles(_ context.Context, symbol string, _, _ time.Time) ([]Candle, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.candles[symbol], nil
}

func TestPriceHistory(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	provider := &staticProvider{candles: map[string][]Candle{
		"AAA": {
			{Symbol: "AAA", Date: day(1), Close: 100},
			{Symbol: "AAA", Date: day(2), Close: 101},
			{Symbol: "AAA", Date: day(3), Close: 103},
		},
	}}

	series, failures := PriceHistory(context.Background(), provider, []string{"AAA", "MISSING"}, day(1), day(3))
	assert.Empty(t, failures)
	require.Contains(t, series, "AAA")

	s := series["AAA"]
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.HasDates())
	assert.InDelta(t, 103.0, s.Prices()[2], 1e-15)
}

func TestCachedProviderBypassWhenRedisDown(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	inner := &staticProvider{candles: map[string][]Candle{
		"AAA": {{Symbol: "AAA", Date: day(1), Close: 100}},
	}}
	log := logger.New(logger.Config{Level: "error", Format: "text", Output: "stdout"})

	// nothing listens on port 1, so the startup ping fails and caching is
	// disabled; fetches must still pass through to the inner provider
	provider := NewCachedProvider(inner, CacheConfig{Addr: "127.0.0.1:1"}, testMetrics, log)

	candles, err := provider.Candles(context.Background(), "AAA", day(1), day(2))
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.InDelta(t, 100.0, candles[0].Close, 1e-15)
}

func TestPriceHistoryReportsFailures(t *testing.T) {
	provider := &staticProvider{err: apperrors.New(apperrors.ErrCodeMarketDataUnavailable, "down")}

	series, failures := PriceHistory(context.Background(), provider, []string{"AAA"}, time.Now(), time.Now())
	assert.Empty(t, series)
	require.Contains(t, failures, "AAA")
}
