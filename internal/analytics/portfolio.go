package analytics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "quantfolio/internal/errors"
)

const (
	// weightNegTol tolerates tiny negative weights left by rounding.
	weightNegTol = 1e-12
	// weightSumTol is the allowed deviation of the weight sum from 1.
	weightSumTol = 1e-6
)

// Portfolio aggregates assets with non-negative weights summing to 1.
// It is immutable after construction except for ReplaceAsset, which swaps a
// single asset reference without touching the weights.
type Portfolio struct {
	assets  []*Asset
	weights []float64
}

// NewPortfolio validates and builds a portfolio. It rejects mismatched
// asset/weight counts, NaN or infinite weights, truly negative weights, and
// weight sums outside the tolerance around 1. Violations are never silently
// corrected.
func NewPortfolio(assets []*Asset, weights []float64) (*Portfolio, error) {
	if len(assets) != len(weights) {
		return nil, apperrors.Newf(apperrors.ErrCodeInvalidPortfolio,
			"asset count %d does not match weight count %d", len(assets), len(weights))
	}
	if len(assets) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidPortfolio, "portfolio has no assets")
	}

	sum := 0.0
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, apperrors.Newf(apperrors.ErrCodeInvalidPortfolio,
				"weight %d is not finite", i)
		}
		if w < -weightNegTol {
			return nil, apperrors.Newf(apperrors.ErrCodeInvalidPortfolio,
				"weight %d is negative: %g", i, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightSumTol {
		return nil, apperrors.Newf(apperrors.ErrCodeInvalidPortfolio,
			"weights sum to %g, expected 1", sum)
	}

	p := &Portfolio{
		assets:  make([]*Asset, len(assets)),
		weights: make([]float64, len(weights)),
	}
	copy(p.assets, assets)
	copy(p.weights, weights)
	return p, nil
}

// Assets returns the asset list. The returned slice must not be modified;
// use ReplaceAsset to swap an entry.
func (p *Portfolio) Assets() []*Asset { return p.assets }

// Weights returns a copy of the weight vector.
func (p *Portfolio) Weights() []float64 {
	w := make([]float64, len(p.weights))
	copy(w, p.weights)
	return w
}

// Tickers returns the asset tickers in portfolio order.
func (p *Portfolio) Tickers() []string {
	tickers := make([]string, len(p.assets))
	for i, a := range p.assets {
		tickers[i] = a.Ticker()
	}
	return tickers
}

// ReplaceAsset swaps the asset at index i, keeping the weight vector as is.
// The replacement must carry the same ticker; weight invariants are
// unaffected by an asset swap and are not re-checked.
func (p *Portfolio) ReplaceAsset(i int, asset *Asset) error {
	if i < 0 || i >= len(p.assets) {
		return apperrors.Newf(apperrors.ErrCodeInvalidInput, "asset index %d out of range", i)
	}
	if asset == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "replacement asset is nil")
	}
	if asset.Ticker() != p.assets[i].Ticker() {
		return apperrors.Newf(apperrors.ErrCodeInvalidPortfolio,
			"replacement ticker %q does not match %q at index %d",
			asset.Ticker(), p.assets[i].Ticker(), i)
	}
	p.assets[i] = asset
	return nil
}

// ExpectedReturn computes the weighted annualized portfolio return.
func (p *Portfolio) ExpectedReturn() float64 {
	ret := 0.0
	for i, a := range p.assets {
		ret += p.weights[i] * a.ExpectedReturn()
	}
	return ret
}

// Volatility computes the annualized portfolio volatility from the population
// covariance of the assets' aligned return histories. With no usable return
// data the volatility degrades to 0.
func (p *Portfolio) Volatility() float64 {
	sigma, n := p.covarianceMatrix()
	if n <= 0 {
		return 0
	}
	w := mat.NewVecDense(len(p.weights), p.Weights())
	variance := mat.Inner(w, sigma, w)
	return math.Sqrt(math.Max(0, variance))
}

// SharpeRatio computes (expected return - rf) / volatility, NaN when the
// volatility is zero.
func (p *Portfolio) SharpeRatio(riskFreeRate float64) float64 {
	vol := p.Volatility()
	if vol == 0 {
		return math.NaN()
	}
	return (p.ExpectedReturn() - riskFreeRate) / vol
}

// ReturnSeries computes the weighted periodic return series over the aligned
// window. Empty when any asset has no return history.
func (p *Portfolio) ReturnSeries() []float64 {
	aligned, n := p.alignedReturns()
	if n <= 0 {
		return []float64{}
	}

	series := make([]float64, n)
	for t := 0; t < n; t++ {
		v := 0.0
		for i := range p.assets {
			v += p.weights[i] * aligned[i][t]
		}
		series[t] = v
	}
	return series
}

// alignedReturns builds the m x N return matrix by right-aligned truncation
// to the shortest asset history: the last N returns of each asset are kept,
// older data is dropped.
func (p *Portfolio) alignedReturns() ([][]float64, int) {
	n := -1
	for _, a := range p.assets {
		if n == -1 || len(a.Returns()) < n {
			n = len(a.Returns())
		}
	}
	if n <= 0 {
		return nil, 0
	}

	aligned := make([][]float64, len(p.assets))
	for i, a := range p.assets {
		r := a.Returns()
		aligned[i] = r[len(r)-n:]
	}
	return aligned, n
}

// covarianceMatrix computes the annualized population covariance matrix of
// the aligned return histories. n is the aligned window length; a non-positive
// n means no usable data.
func (p *Portfolio) covarianceMatrix() (*mat.SymDense, int) {
	aligned, n := p.alignedReturns()
	m := len(p.assets)
	if n <= 0 {
		return mat.NewSymDense(m, nil), 0
	}

	means := make([]float64, m)
	for i := range aligned {
		means[i] = stat.Mean(aligned[i], nil)
	}

	sigma := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			cov := 0.0
			for t := 0; t < n; t++ {
				cov += (aligned[i][t] - means[i]) * (aligned[j][t] - means[j])
			}
			// population covariance, annualized
			cov = cov / float64(n) * TradingDays
			sigma.SetSym(i, j, cov)
		}
	}
	return sigma, n
}

// CovarianceMatrix returns the annualized population covariance matrix as a
// dense slice of rows, for callers outside the solver paths.
func (p *Portfolio) CovarianceMatrix() [][]float64 {
	sigma, _ := p.covarianceMatrix()
	m := len(p.assets)
	out := make([][]float64, m)
	for i := 0; i < m; i++ {
		out[i] = make([]float64, m)
		for j := 0; j < m; j++ {
			out[i][j] = sigma.At(i, j)
		}
	}
	return out
}
