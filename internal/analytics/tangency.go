package analytics

import (
	"math"
	"sort"
)

// normalizeFloor guards the weight normalization against division by a
// near-zero raw sum.
const normalizeFloor = 1e-15

// QuadraticSolver computes the closed-form tangency portfolio
// x = Sigma^-1 (mu - rf), avoiding the grid search's combinatorial cost.
// It is an unconstrained mean-variance solution, not a general QP solver;
// the only optional constraint is a Euclidean projection onto the simplex.
type QuadraticSolver struct{}

// NewQuadraticSolver creates a tangency solver.
func NewQuadraticSolver() *QuadraticSolver {
	return &QuadraticSolver{}
}

// TangencyWeights solves for the tangency portfolio weights of p at the given
// risk-free rate. With enforceNonNegative the normalized solution is projected
// onto the simplex {w >= 0, sum w = 1}.
func (s *QuadraticSolver) TangencyWeights(p *Portfolio, riskFreeRate float64, enforceNonNegative bool) ([]float64, error) {
	assets := p.Assets()
	n := len(assets)

	sigma, _ := p.covarianceMatrix()

	excess := make([]float64, n)
	for i, a := range assets {
		excess[i] = a.ExpectedReturn() - riskFreeRate
	}

	x, err := solveRegularized(sigma, excess)
	if err != nil {
		return nil, err
	}

	sum := 0.0
	for _, v := range x {
		sum += v
	}
	if math.Abs(sum) < normalizeFloor {
		return equalWeights(n), nil
	}

	weights := make([]float64, n)
	for i, v := range x {
		weights[i] = v / sum
	}

	if enforceNonNegative {
		weights = projectToSimplex(weights)
	}
	return weights, nil
}

// projectToSimplex computes the Euclidean projection of v onto the simplex
// via the sort-and-threshold algorithm: sort descending, find the largest
// rho with u_rho - (cumsum_rho - 1)/(rho+1) > 0, subtract the threshold and
// clamp at zero. Falls back to equal weights when no valid rho exists.
func projectToSimplex(v []float64) []float64 {
	n := len(v)
	u := make([]float64, n)
	copy(u, v)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	rho := -1
	theta := 0.0
	cumsum := 0.0
	for i := 0; i < n; i++ {
		cumsum += u[i]
		t := (cumsum - 1) / float64(i+1)
		if u[i]-t > 0 {
			rho = i
			theta = t
		}
	}
	if rho < 0 {
		return equalWeights(n)
	}

	w := make([]float64, n)
	sum := 0.0
	for i, vi := range v {
		w[i] = math.Max(0, vi-theta)
		sum += w[i]
	}
	if sum < normalizeFloor {
		return equalWeights(n)
	}
	// renormalize to absorb residual rounding error
	for i := range w {
		w[i] /= sum
	}
	return w
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}
