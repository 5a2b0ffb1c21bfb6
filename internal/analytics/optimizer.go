package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	apperrors "quantfolio/internal/errors"
)

// MaxGridAssets bounds the grid search: enumeration is O((1/step)^(n-1)),
// which is only practical for a handful of assets. Larger portfolios are
// rejected rather than silently truncated.
const MaxGridAssets = 6

// GridOptimizer enumerates weight allocations on the simplex at a fixed step
// granularity and evaluates each candidate against a portfolio's expected
// returns and covariance structure.
type GridOptimizer struct {
	step float64
}

// NewGridOptimizer creates a grid optimizer with the given step size.
// Typical steps are 0.01 to 0.02.
func NewGridOptimizer(step float64) *GridOptimizer {
	return &GridOptimizer{step: step}
}

// OptimizationResult is a single optimized allocation.
type OptimizationResult struct {
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	Sharpe         float64   `json:"sharpe"`
}

// FrontierPoint is one (volatility, return) point on the enumerated frontier.
type FrontierPoint struct {
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	Weights        []float64 `json:"weights"`
}

// MaxSharpe finds the weight allocation maximizing the Sharpe ratio at the
// given risk-free rate.
func (g *GridOptimizer) MaxSharpe(p *Portfolio, riskFreeRate float64) (*OptimizationResult, error) {
	mu, sigma, err := g.prepare(p)
	if err != nil {
		return nil, err
	}

	var best *OptimizationResult
	g.enumerate(len(mu), func(w []float64) {
		ret, vol := evaluate(w, mu, sigma)
		sharpe := math.NaN()
		if vol > 0 {
			sharpe = (ret - riskFreeRate) / vol
		}
		if !math.IsNaN(sharpe) && (best == nil || sharpe > best.Sharpe) {
			best = &OptimizationResult{
				Weights:        copyWeights(w),
				ExpectedReturn: ret,
				Volatility:     vol,
				Sharpe:         sharpe,
			}
		}
	})

	if best == nil {
		return nil, apperrors.New(apperrors.ErrCodeNoFeasibleSolution,
			"grid search found no feasible allocation")
	}
	return best, nil
}

// MinVariance finds the weight allocation with minimum portfolio volatility.
// The Sharpe ratio of the winner is reported but is not the criterion.
// Candidates with an undefined volatility are skipped, matching the NaN
// handling of the Sharpe path.
func (g *GridOptimizer) MinVariance(p *Portfolio, riskFreeRate float64) (*OptimizationResult, error) {
	mu, sigma, err := g.prepare(p)
	if err != nil {
		return nil, err
	}

	var best *OptimizationResult
	g.enumerate(len(mu), func(w []float64) {
		ret, vol := evaluate(w, mu, sigma)
		if math.IsNaN(vol) {
			return
		}
		if best == nil || vol < best.Volatility {
			sharpe := math.NaN()
			if vol > 0 {
				sharpe = (ret - riskFreeRate) / vol
			}
			best = &OptimizationResult{
				Weights:        copyWeights(w),
				ExpectedReturn: ret,
				Volatility:     vol,
				Sharpe:         sharpe,
			}
		}
	})

	if best == nil {
		return nil, apperrors.New(apperrors.ErrCodeNoFeasibleSolution,
			"grid search found no feasible allocation")
	}
	return best, nil
}

// EfficientFrontier enumerates every allocation, deduplicates on the rounded
// (return, volatility) pair, and sorts by ascending volatility with ties
// broken by descending return. Interior dominated points are intentionally
// kept; only rounding-level duplicates are merged.
func (g *GridOptimizer) EfficientFrontier(p *Portfolio) ([]FrontierPoint, error) {
	mu, sigma, err := g.prepare(p)
	if err != nil {
		return nil, err
	}

	type key struct{ ret, vol float64 }
	seen := make(map[key]struct{})
	var points []FrontierPoint

	g.enumerate(len(mu), func(w []float64) {
		ret, vol := evaluate(w, mu, sigma)
		k := key{ret: round12(ret), vol: round12(vol)}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		points = append(points, FrontierPoint{
			ExpectedReturn: ret,
			Volatility:     vol,
			Weights:        copyWeights(w),
		})
	})

	if len(points) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeNoFeasibleSolution,
			"grid search found no feasible allocation")
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Volatility != points[j].Volatility {
			return points[i].Volatility < points[j].Volatility
		}
		return points[i].ExpectedReturn > points[j].ExpectedReturn
	})
	return points, nil
}

// prepare extracts the expected-return vector and annualized covariance
// matrix once, so candidate evaluation is a pair of products per tuple.
func (g *GridOptimizer) prepare(p *Portfolio) ([]float64, *mat.SymDense, error) {
	assets := p.Assets()
	if len(assets) > MaxGridAssets {
		return nil, nil, apperrors.Newf(apperrors.ErrCodeUnsupportedScale,
			"grid search supports at most %d assets, got %d", MaxGridAssets, len(assets))
	}

	mu := make([]float64, len(assets))
	for i, a := range assets {
		mu[i] = a.ExpectedReturn()
	}
	sigma, _ := p.covarianceMatrix()
	return mu, sigma, nil
}

// evaluate computes the annualized return and volatility of a weight vector
// against precomputed statistics.
func evaluate(w, mu []float64, sigma *mat.SymDense) (ret, vol float64) {
	for i, wi := range w {
		ret += wi * mu[i]
	}
	wVec := mat.NewVecDense(len(w), w)
	variance := mat.Inner(wVec, sigma, wVec)
	return ret, math.Sqrt(math.Max(0, variance))
}

// enumerate walks every weight tuple on the simplex at the configured step,
// using an explicit iteration state instead of recursion. Intermediate budgets
// are rounded to 12 decimal places to suppress floating accumulation error;
// tuples whose final component falls below -1e-12 are discarded.
func (g *GridOptimizer) enumerate(n int, fn func(w []float64)) {
	step := g.step
	if n <= 0 || step <= 0 || step > 1 {
		return
	}
	if n == 1 {
		fn([]float64{1})
		return
	}

	w := make([]float64, n)
	cursor := make([]float64, n) // next candidate weight at each level
	budget := make([]float64, n) // remaining weight before each level
	budget[0] = 1
	level := 0

	for level >= 0 {
		if level == n-1 {
			last := round12(budget[level])
			if last >= -weightNegTol {
				w[level] = last
				fn(w)
			}
			level--
			continue
		}

		c := cursor[level]
		if c > budget[level]+weightNegTol {
			level--
			continue
		}

		w[level] = c
		budget[level+1] = round12(budget[level] - c)
		cursor[level] = round12(c + step)
		level++
		cursor[level] = 0
	}
}

// round12 rounds to 12 decimal places.
func round12(v float64) float64 {
	return math.Round(v*1e12) / 1e12
}

func copyWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	copy(out, w)
	return out
}
