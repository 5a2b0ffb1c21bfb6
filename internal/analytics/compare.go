package analytics

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ComparisonResult holds cross-sectional metrics for a set of portfolios
// aligned onto a common window. The benchmark is the per-period arithmetic
// mean of the compared portfolios, not an external index. Built fresh on each
// comparison; not persisted by the engine.
type ComparisonResult struct {
	Labels            []string    `json:"labels"`
	PeriodicReturns   [][]float64 `json:"periodic_returns"`
	CumulativeReturns [][]float64 `json:"cumulative_returns"`
	Benchmark         []float64   `json:"benchmark"`
	Dates             []time.Time `json:"dates,omitempty"`
	Sharpe            []float64   `json:"sharpe"`
	Alpha             []float64   `json:"alpha"`
	Beta              []float64   `json:"beta"`
	Treynor           []float64   `json:"treynor"`
	InformationRatio  []float64   `json:"information_ratio"`
}

// Comparer aligns multiple portfolios' return histories and computes
// per-portfolio performance metrics against the cross-sectional benchmark.
type Comparer struct {
	riskFreeRate float64
}

// NewComparer creates a comparer using the given annual risk-free rate.
func NewComparer(riskFreeRate float64) *Comparer {
	return &Comparer{riskFreeRate: riskFreeRate}
}

// Compare aligns the portfolios onto their common window and computes the
// comparison metrics. Portfolios without usable return data keep empty series
// and NaN metrics; one bad series never aborts the batch.
func (c *Comparer) Compare(portfolios []*Portfolio) *ComparisonResult {
	m := len(portfolios)
	result := &ComparisonResult{
		Labels:            make([]string, m),
		PeriodicReturns:   make([][]float64, m),
		CumulativeReturns: make([][]float64, m),
		Sharpe:            nanSlice(m),
		Alpha:             nanSlice(m),
		Beta:              nanSlice(m),
		Treynor:           nanSlice(m),
		InformationRatio:  nanSlice(m),
	}

	series := make([][]float64, m)
	common := 0
	for i, p := range portfolios {
		result.Labels[i] = portfolioLabel(p, i)
		series[i] = p.ReturnSeries()
		if n := len(series[i]); n > 0 && (common == 0 || n < common) {
			common = n
		}
	}

	if common == 0 {
		// labels only; every series stays empty
		for i := range series {
			result.PeriodicReturns[i] = []float64{}
			result.CumulativeReturns[i] = []float64{}
		}
		return result
	}

	// right-aligned truncation to the common window
	for i, s := range series {
		if len(s) == 0 {
			result.PeriodicReturns[i] = []float64{}
			result.CumulativeReturns[i] = []float64{}
			continue
		}
		truncated := s[len(s)-common:]
		result.PeriodicReturns[i] = truncated
		result.CumulativeReturns[i] = CumulativeWealth(truncated)
	}

	result.Benchmark = crossSectionalMean(result.PeriodicReturns, common)
	result.Dates = recoverDateAxis(portfolios, common)

	for i := range portfolios {
		s := result.PeriodicReturns[i]
		if len(s) < 2 {
			continue
		}

		annualReturn := AnnualizedReturn(s)
		result.Sharpe[i] = SharpeRatio(annualReturn, c.riskFreeRate, AnnualizedVolatility(s))
		result.InformationRatio[i] = InformationRatio(s, result.Benchmark)

		alpha, beta, err := AlphaBeta(s, result.Benchmark)
		if err != nil {
			continue
		}
		result.Alpha[i] = alpha
		result.Beta[i] = beta
		result.Treynor[i] = TreynorRatio(annualReturn, c.riskFreeRate, beta)
	}

	return result
}

// crossSectionalMean averages the non-empty truncated series per period.
func crossSectionalMean(series [][]float64, common int) []float64 {
	benchmark := make([]float64, common)
	for t := 0; t < common; t++ {
		sum := 0.0
		count := 0
		for _, s := range series {
			if len(s) != common {
				continue
			}
			sum += s[t]
			count++
		}
		if count > 0 {
			benchmark[t] = sum / float64(count)
		}
	}
	return benchmark
}

// recoverDateAxis scans the portfolios' assets for a price series whose date
// axis is consistent with its prices and long enough to cover the common
// window, and takes its last `common` dates. Consumers fall back to period
// indices when none qualifies.
func recoverDateAxis(portfolios []*Portfolio, common int) []time.Time {
	for _, p := range portfolios {
		for _, a := range p.Assets() {
			prices := a.Prices()
			if !prices.HasDates() || prices.Len() < common+1 {
				continue
			}
			dates := prices.Dates()
			out := make([]time.Time, common)
			copy(out, dates[len(dates)-common:])
			return out
		}
	}
	return nil
}

func portfolioLabel(p *Portfolio, index int) string {
	tickers := p.Tickers()
	if len(tickers) == 0 {
		return "P" + strconv.Itoa(index+1)
	}
	return strings.Join(tickers, ",")
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
