package api

import "time"

// Response is the standard API response envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// AssetInput describes one asset in a request. Either a price history or
// bare annualized statistics must be supplied; prices win when both are
// present.
type AssetInput struct {
	Ticker         string    `json:"ticker" binding:"required"`
	Prices         []float64 `json:"prices,omitempty"`
	Dates          []string  `json:"dates,omitempty"` // YYYY-MM-DD, optional, aligned with prices
	ExpectedReturn *float64  `json:"expected_return,omitempty"`
	Volatility     *float64  `json:"volatility,omitempty"`
}

// PortfolioInput describes a weighted portfolio in a request
type PortfolioInput struct {
	Assets  []AssetInput `json:"assets" binding:"required"`
	Weights []float64    `json:"weights" binding:"required"`
}

// OptimizeRequest asks for an optimization over a set of assets. Weights are
// not required; the optimizer searches the whole simplex.
type OptimizeRequest struct {
	Assets       []AssetInput `json:"assets" binding:"required"`
	RiskFreeRate *float64     `json:"risk_free_rate,omitempty"`
	GridStep     *float64     `json:"grid_step,omitempty"`
}

// TangencyRequest asks for closed-form tangency weights
type TangencyRequest struct {
	Assets             []AssetInput `json:"assets" binding:"required"`
	RiskFreeRate       *float64     `json:"risk_free_rate,omitempty"`
	EnforceNonNegative bool         `json:"enforce_non_negative"`
}

// CompareRequest asks for a side-by-side portfolio comparison
type CompareRequest struct {
	Portfolios   []PortfolioInput `json:"portfolios" binding:"required"`
	RiskFreeRate *float64         `json:"risk_free_rate,omitempty"`
}

// StatsResponse carries the point statistics of a single portfolio. Metrics
// that came out NaN (zero-price sentinel in the return series, degenerate
// denominators) are rendered as null; encoding/json rejects NaN outright.
type StatsResponse struct {
	Tickers          []string     `json:"tickers"`
	Weights          []float64    `json:"weights"`
	ExpectedReturn   *float64     `json:"expected_return"`
	Volatility       *float64     `json:"volatility"`
	SharpeRatio      *float64     `json:"sharpe_ratio"`
	CovarianceMatrix [][]*float64 `json:"covariance_matrix,omitempty"`
}

// OptimizeResponse carries the best portfolio found by an optimizer. NaN
// metrics are rendered as null.
type OptimizeResponse struct {
	Tickers        []string  `json:"tickers"`
	Weights        []float64 `json:"weights"`
	ExpectedReturn *float64  `json:"expected_return"`
	Volatility     *float64  `json:"volatility"`
	SharpeRatio    *float64  `json:"sharpe_ratio"`
	Elapsed        string    `json:"elapsed"`
}

// FrontierResponse carries an efficient frontier
type FrontierResponse struct {
	Tickers []string        `json:"tickers"`
	Points  []FrontierPoint `json:"points"`
}

// FrontierPoint is one point of the efficient frontier. NaN coordinates are
// rendered as null.
type FrontierPoint struct {
	Weights        []float64 `json:"weights"`
	ExpectedReturn *float64  `json:"expected_return"`
	Volatility     *float64  `json:"volatility"`
}

// TangencyResponse carries closed-form tangency weights
type TangencyResponse struct {
	Tickers []string  `json:"tickers"`
	Weights []float64 `json:"weights"`
}

// CompareResponse is the JSON-safe form of a comparison result. Metrics that
// came out NaN are rendered as null; encoding/json rejects NaN outright.
type CompareResponse struct {
	Labels            []string    `json:"labels"`
	PeriodicReturns   [][]float64 `json:"periodic_returns"`
	CumulativeReturns [][]float64 `json:"cumulative_returns"`
	Benchmark         []float64   `json:"benchmark"`
	Dates             []time.Time `json:"dates,omitempty"`
	Sharpe            []*float64  `json:"sharpe"`
	Alpha             []*float64  `json:"alpha"`
	Beta              []*float64  `json:"beta"`
	Treynor           []*float64  `json:"treynor"`
	InformationRatio  []*float64  `json:"information_ratio"`
}

// SavePortfolioRequest persists a named portfolio
type SavePortfolioRequest struct {
	Name      string         `json:"name" binding:"required"`
	Portfolio PortfolioInput `json:"portfolio" binding:"required"`
}

// PortfolioSummary is the list representation of a stored portfolio
type PortfolioSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tickers   []string  `json:"tickers"`
	Weights   []float64 `json:"weights"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CandlesResponse carries fetched market candles
type CandlesResponse struct {
	Symbol  string      `json:"symbol"`
	Candles interface{} `json:"candles"`
}
