package market

import (
	"context"
	"time"

	"quantfolio/internal/analytics"
)

// Candle is a single daily price bar.
type Candle struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Provider supplies historical candles for a ticker. Implementations are
// expected to return candles in ascending date order; the analytics engine
// treats a missing date axis as index-based alignment and does not validate
// provider network behavior.
type Provider interface {
	Candles(ctx context.Context, symbol string, from, to time.Time) ([]Candle, error)
}

// PriceHistory fetches candles for each symbol and converts the closes into
// price series keyed by symbol. Symbols that fail to fetch are reported in
// the error map; successful symbols are still returned.
func PriceHistory(ctx context.Context, p Provider, symbols []string, from, to time.Time) (map[string]analytics.PriceSeries, map[string]error) {
	series := make(map[string]analytics.PriceSeries, len(symbols))
	failures := make(map[string]error)

	for _, symbol := range symbols {
		candles, err := p.Candles(ctx, symbol, from, to)
		if err != nil {
			failures[symbol] = err
			continue
		}

		prices := make([]float64, len(candles))
		dates := make([]time.Time, len(candles))
		for i, c := range candles {
			prices[i] = c.Close
			dates[i] = c.Date
		}

		s, err := analytics.NewPriceSeries(prices, dates)
		if err != nil {
			// providers occasionally return an inconsistent date axis;
			// fall back to index-based alignment rather than failing
			s, _ = analytics.NewPriceSeries(prices, nil)
		}
		series[symbol] = s
	}
	return series, failures
}
