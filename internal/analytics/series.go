package analytics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	apperrors "quantfolio/internal/errors"
)

// TradingDays is the number of trading periods per year used for annualization.
const TradingDays = 252

// PriceSeries is an ordered price history for one instrument. The optional
// date axis, when present, is parallel to the prices and non-decreasing.
// A PriceSeries is immutable after construction.
type PriceSeries struct {
	prices []float64
	dates  []time.Time
}

// NewPriceSeries builds a price series. dates may be nil or empty, meaning
// no date axis; otherwise it must match the price count and be non-decreasing.
func NewPriceSeries(prices []float64, dates []time.Time) (PriceSeries, error) {
	if len(dates) > 0 {
		if len(dates) != len(prices) {
			return PriceSeries{}, apperrors.Newf(apperrors.ErrCodeInvalidInput,
				"date axis length %d does not match price count %d", len(dates), len(prices))
		}
		for i := 1; i < len(dates); i++ {
			if dates[i].Before(dates[i-1]) {
				return PriceSeries{}, apperrors.Newf(apperrors.ErrCodeInvalidInput,
					"date axis is not non-decreasing at index %d", i)
			}
		}
	}

	s := PriceSeries{
		prices: make([]float64, len(prices)),
		dates:  make([]time.Time, len(dates)),
	}
	copy(s.prices, prices)
	copy(s.dates, dates)
	return s, nil
}

// Len returns the number of price points.
func (s PriceSeries) Len() int { return len(s.prices) }

// Prices returns the price values. The returned slice must not be modified.
func (s PriceSeries) Prices() []float64 { return s.prices }

// Dates returns the date axis, empty when none was supplied. The returned
// slice must not be modified.
func (s PriceSeries) Dates() []time.Time { return s.dates }

// HasDates reports whether the series carries a usable date axis.
func (s PriceSeries) HasDates() bool {
	return len(s.dates) > 0 && len(s.dates) == len(s.prices)
}

// ComputeReturns converts a price sequence into simple periodic returns
// r_t = P_t/P_{t-1} - 1. Fewer than two prices yields an empty series.
// A zero previous price yields NaN for that period rather than an error.
func ComputeReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			returns[i-1] = math.NaN()
			continue
		}
		returns[i-1] = prices[i]/prices[i-1] - 1
	}
	return returns
}

// ComputeStatistics derives the annualized expected return and volatility of
// a periodic return series. Both are 0 for an empty series.
//
// The variance here is the population variance (divide by N). The sample
// (N-1) estimator would be the textbook choice for short histories, but the
// population form is kept for numerical compatibility with the covariance
// path; see performance.go for the sample-based convention used there.
func ComputeStatistics(returns []float64) (expectedReturn, volatility float64) {
	if len(returns) == 0 {
		return 0, 0
	}

	expectedReturn = stat.Mean(returns, nil) * TradingDays
	volatility = math.Sqrt(stat.PopVariance(returns, nil) * TradingDays)
	return expectedReturn, volatility
}
