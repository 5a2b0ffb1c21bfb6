package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "quantfolio/internal/errors"
)

func gridPortfolio(t *testing.T) *Portfolio {
	t.Helper()
	p, err := NewPortfolio(testAssets(t), []float64{1.0 / 3, 1.0 / 3, 1.0 / 3})
	require.NoError(t, err)
	return p
}

func TestMaxSharpeWeightsFeasible(t *testing.T) {
	p := gridPortfolio(t)
	opt := NewGridOptimizer(0.02)

	result, err := opt.MaxSharpe(p, 0.02)
	require.NoError(t, err)
	require.Len(t, result.Weights, 3)

	sum := 0.0
	for _, w := range result.Weights {
		assert.GreaterOrEqual(t, w, -1e-12)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-8)
	assert.False(t, math.IsNaN(result.Sharpe))
}

func TestMaxSharpeBeatsEqualWeight(t *testing.T) {
	p := gridPortfolio(t)
	opt := NewGridOptimizer(0.02)

	result, err := opt.MaxSharpe(p, 0.02)
	require.NoError(t, err)

	equalSharpe := p.SharpeRatio(0.02)
	assert.GreaterOrEqual(t, result.Sharpe, equalSharpe,
		"optimized Sharpe must not be worse than the equal-weighted baseline")
}

func TestMinVariance(t *testing.T) {
	p := gridPortfolio(t)
	opt := NewGridOptimizer(0.02)

	result, err := opt.MinVariance(p, 0.02)
	require.NoError(t, err)

	sum := 0.0
	for _, w := range result.Weights {
		assert.GreaterOrEqual(t, w, -1e-12)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-8)

	// the minimum cannot exceed the volatility of any single-asset corner
	for i := range p.Assets() {
		corner := make([]float64, 3)
		corner[i] = 1
		cp, err := NewPortfolio(p.Assets(), corner)
		require.NoError(t, err)
		assert.LessOrEqual(t, result.Volatility, cp.Volatility()+1e-12)
	}
}

func TestEfficientFrontierOrderingAndDedup(t *testing.T) {
	p := gridPortfolio(t)
	opt := NewGridOptimizer(0.05)

	points, err := opt.EfficientFrontier(p)
	require.NoError(t, err)
	require.NotEmpty(t, points)

	type key struct{ ret, vol float64 }
	seen := make(map[key]struct{})
	for i, pt := range points {
		k := key{round12(pt.ExpectedReturn), round12(pt.Volatility)}
		_, dup := seen[k]
		assert.False(t, dup, "duplicate rounded (return, volatility) pair at %d", i)
		seen[k] = struct{}{}

		if i > 0 {
			prev := points[i-1]
			if prev.Volatility == pt.Volatility {
				assert.GreaterOrEqual(t, prev.ExpectedReturn, pt.ExpectedReturn,
					"ties must be ordered by descending return")
			} else {
				assert.Less(t, prev.Volatility, pt.Volatility,
					"points must be ordered by ascending volatility")
			}
		}
	}
}

func TestGridRejectsTooManyAssets(t *testing.T) {
	assets := make([]*Asset, 7)
	weights := make([]float64, 7)
	for i := range assets {
		assets[i] = NewSyntheticAsset("A", 0.05, 0.1)
		weights[i] = 1.0 / 7
	}
	p, err := NewPortfolio(assets, weights)
	require.NoError(t, err)

	opt := NewGridOptimizer(0.02)
	_, err = opt.MaxSharpe(p, 0.02)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeUnsupportedScale))

	_, err = opt.MinVariance(p, 0.02)
	require.Error(t, err)
	_, err = opt.EfficientFrontier(p)
	require.Error(t, err)
}

func TestGridSkipsUndefinedVolatility(t *testing.T) {
	// a zero price makes the following return NaN, which poisons the
	// covariance matrix; no candidate has a defined volatility, so both
	// objectives must report infeasibility instead of a NaN optimum
	a := NewAsset("AAA", mustSeries(t, []float64{100, 0, 50, 60}))
	b := NewAsset("BBB", mustSeries(t, []float64{200, 202, 201, 205}))
	p, err := NewPortfolio([]*Asset{a, b}, []float64{0.5, 0.5})
	require.NoError(t, err)

	opt := NewGridOptimizer(0.5)

	_, err = opt.MinVariance(p, 0.02)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNoFeasibleSolution))

	_, err = opt.MaxSharpe(p, 0.02)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNoFeasibleSolution))
}

func TestGridMalformedStep(t *testing.T) {
	p := gridPortfolio(t)
	opt := NewGridOptimizer(0)

	_, err := opt.MaxSharpe(p, 0.02)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNoFeasibleSolution))
}

func TestEnumerateCoversSimplex(t *testing.T) {
	opt := NewGridOptimizer(0.5)
	var tuples [][]float64
	opt.enumerate(3, func(w []float64) {
		tuples = append(tuples, copyWeights(w))
	})

	// compositions of 1.0 into 3 parts at step 0.5: C(4,2) = 6
	require.Len(t, tuples, 6)
	for _, w := range tuples {
		sum := 0.0
		for _, v := range w {
			assert.GreaterOrEqual(t, v, -1e-12)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestEnumerateSingleAsset(t *testing.T) {
	opt := NewGridOptimizer(0.01)
	count := 0
	opt.enumerate(1, func(w []float64) {
		count++
		assert.Equal(t, []float64{1.0}, w)
	})
	assert.Equal(t, 1, count)
}
