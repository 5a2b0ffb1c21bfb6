package analytics

// Asset pairs a ticker with its price history and derived return statistics.
// Statistics are computed eagerly at construction and again whenever prices
// are replaced; there is no lazy caching to invalidate.
type Asset struct {
	ticker         string
	prices         PriceSeries
	returns        []float64
	expectedReturn float64
	volatility     float64
}

// NewAsset builds an asset from a price history.
func NewAsset(ticker string, prices PriceSeries) *Asset {
	a := &Asset{ticker: ticker}
	a.SetPrices(prices)
	return a
}

// NewSyntheticAsset builds an asset from bare annualized statistics, with no
// underlying price history. Covariance-based calculations treat such an asset
// as having no usable return data and degrade accordingly.
func NewSyntheticAsset(ticker string, expectedReturn, volatility float64) *Asset {
	return &Asset{
		ticker:         ticker,
		returns:        []float64{},
		expectedReturn: expectedReturn,
		volatility:     volatility,
	}
}

// SetPrices replaces the asset's price history and recomputes returns and
// statistics. Used to backfill synthetic assets once history becomes
// available.
func (a *Asset) SetPrices(prices PriceSeries) {
	a.prices = prices
	a.returns = ComputeReturns(prices.Prices())
	a.expectedReturn, a.volatility = ComputeStatistics(a.returns)
}

// Ticker returns the instrument identifier.
func (a *Asset) Ticker() string { return a.ticker }

// Prices returns the underlying price series; zero-length for synthetic
// assets.
func (a *Asset) Prices() PriceSeries { return a.prices }

// Returns returns the periodic return series. The returned slice must not be
// modified.
func (a *Asset) Returns() []float64 { return a.returns }

// ExpectedReturn returns the annualized expected return.
func (a *Asset) ExpectedReturn() float64 { return a.expectedReturn }

// Volatility returns the annualized volatility.
func (a *Asset) Volatility() float64 { return a.volatility }
