package analytics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "quantfolio/internal/errors"
)

// betaFloor is the smallest |beta| accepted as a Treynor denominator.
const betaFloor = 1e-12

// The functions in this file are pure and stateless. They operate on periodic
// (not annualized) return series unless stated otherwise, and annualize with
// 252 trading periods per year.
//
// Dispersion here uses the sample (N-1) standard deviation. The asset and
// covariance path in series.go/portfolio.go uses the population (N) form.
// The two conventions coexist deliberately and must not be unified.

// AlphaBeta fits r_p = alpha + beta*r_b by ordinary least squares via the
// normal equations, with one regularized retry on singularity. The series
// must be of equal, non-zero length.
func AlphaBeta(portfolio, benchmark []float64) (alpha, beta float64, err error) {
	if len(portfolio) != len(benchmark) {
		return 0, 0, apperrors.Newf(apperrors.ErrCodeInvalidInput,
			"series length mismatch: %d vs %d", len(portfolio), len(benchmark))
	}
	if len(portfolio) == 0 {
		return 0, 0, apperrors.New(apperrors.ErrCodeInsufficientData,
			"empty return series")
	}

	n := float64(len(benchmark))
	var sumB, sumBB, sumP, sumBP float64
	for i, b := range benchmark {
		sumB += b
		sumBB += b * b
		sumP += portfolio[i]
		sumBP += b * portfolio[i]
	}

	// X = [1, r_b]; solve (X'X) sol = X'y
	xtx := mat.NewSymDense(2, []float64{
		n, sumB,
		sumB, sumBB,
	})
	sol, err := solveRegularized(xtx, []float64{sumP, sumBP})
	if err != nil {
		return 0, 0, err
	}
	return sol[0], sol[1], nil
}

// InformationRatio computes mean(excess)/sampleStd(excess) * sqrt(252).
// NaN when the series are empty, mismatched, or the dispersion is zero.
func InformationRatio(portfolio, benchmark []float64) float64 {
	if len(portfolio) == 0 || len(portfolio) != len(benchmark) {
		return math.NaN()
	}

	excess := make([]float64, len(portfolio))
	for i := range portfolio {
		excess[i] = portfolio[i] - benchmark[i]
	}

	sd := stat.StdDev(excess, nil)
	if sd == 0 || math.IsNaN(sd) {
		return math.NaN()
	}
	return stat.Mean(excess, nil) / sd * math.Sqrt(TradingDays)
}

// MaxDrawdown reports the maximum relative decline from a running peak of a
// cumulative-wealth series, as a positive fraction.
func MaxDrawdown(wealth []float64) float64 {
	maxDD := 0.0
	peak := math.Inf(-1)
	for _, v := range wealth {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// CumulativeWealth compounds a periodic return series from 1.0, so entry i is
// the wealth after period i.
func CumulativeWealth(returns []float64) []float64 {
	wealth := make([]float64, len(returns))
	v := 1.0
	for i, r := range returns {
		v *= 1 + r
		wealth[i] = v
	}
	return wealth
}

// AnnualizedReturn computes the geometrically compounded annualized return
// (prod(1+r))^(252/N) - 1. Zero for an empty series.
func AnnualizedReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	growth := 1.0
	for _, r := range returns {
		growth *= 1 + r
	}
	return math.Pow(growth, TradingDays/float64(len(returns))) - 1
}

// AnnualizedVolatility computes the sample standard deviation scaled by
// sqrt(252). NaN with fewer than two observations.
func AnnualizedVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return math.NaN()
	}
	return stat.StdDev(returns, nil) * math.Sqrt(TradingDays)
}

// SharpeRatio computes (annualReturn - rf) / annualVol over annualized
// inputs; NaN for a non-positive volatility.
func SharpeRatio(annualReturn, riskFreeRate, annualVol float64) float64 {
	if annualVol <= 0 || math.IsNaN(annualVol) {
		return math.NaN()
	}
	return (annualReturn - riskFreeRate) / annualVol
}

// TreynorRatio computes (annualReturn - rf) / beta; NaN for a degenerate
// beta.
func TreynorRatio(annualReturn, riskFreeRate, beta float64) float64 {
	if math.Abs(beta) < betaFloor {
		return math.NaN()
	}
	return (annualReturn - riskFreeRate) / beta
}

// SortinoRatio divides the annualized excess return by the annualized
// downside deviation, where only deviations below the periodic risk-free
// rate count. NaN when no downside observations exist.
func SortinoRatio(returns []float64, riskFreeRate float64) float64 {
	periodicRF := riskFreeRate / TradingDays

	var sumSq float64
	count := 0
	for _, r := range returns {
		if r < periodicRF {
			d := r - periodicRF
			sumSq += d * d
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}

	downsideDev := math.Sqrt(sumSq/float64(count)) * math.Sqrt(TradingDays)
	if downsideDev == 0 {
		return math.NaN()
	}
	return (AnnualizedReturn(returns) - riskFreeRate) / downsideDev
}

// CalmarRatio divides the annualized return by the maximum drawdown of the
// compounded wealth path. NaN when the drawdown is not positive.
func CalmarRatio(returns []float64) float64 {
	dd := MaxDrawdown(CumulativeWealth(returns))
	if dd <= 0 {
		return math.NaN()
	}
	return AnnualizedReturn(returns) / dd
}

// TrackingError computes the annualized sample standard deviation of the
// periodic excess returns. NaN with fewer than two observations.
func TrackingError(portfolio, benchmark []float64) float64 {
	if len(portfolio) < 2 || len(portfolio) != len(benchmark) {
		return math.NaN()
	}

	excess := make([]float64, len(portfolio))
	for i := range portfolio {
		excess[i] = portfolio[i] - benchmark[i]
	}
	return stat.StdDev(excess, nil) * math.Sqrt(TradingDays)
}
