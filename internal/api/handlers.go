package api

import (
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"quantfolio/internal/analytics"
	apperrors "quantfolio/internal/errors"
	"quantfolio/internal/logger"
	"quantfolio/internal/monitoring"
	"quantfolio/internal/storage"
)

// AnalyticsHandler serves optimization and comparison requests
type AnalyticsHandler struct {
	metrics      *monitoring.Metrics
	log          *logger.Logger
	riskFreeRate float64
	gridStep     float64
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(metrics *monitoring.Metrics, log *logger.Logger, riskFreeRate, gridStep float64) *AnalyticsHandler {
	return &AnalyticsHandler{
		metrics:      metrics,
		log:          log,
		riskFreeRate: riskFreeRate,
		gridStep:     gridStep,
	}
}

// buildAsset converts an asset input into an analytics asset
func buildAsset(in AssetInput) (*analytics.Asset, error) {
	if len(in.Prices) > 0 {
		var dates []time.Time
		if len(in.Dates) > 0 {
			if len(in.Dates) != len(in.Prices) {
				return nil, apperrors.Newf(apperrors.ErrCodeInvalidInput,
					"asset %s: %d dates for %d prices", in.Ticker, len(in.Dates), len(in.Prices))
			}
			dates = make([]time.Time, len(in.Dates))
			for i, d := range in.Dates {
				parsed, err := time.Parse("2006-01-02", d)
				if err != nil {
					return nil, apperrors.Newf(apperrors.ErrCodeInvalidInput,
						"asset %s: invalid date %q", in.Ticker, d)
				}
				dates[i] = parsed
			}
		}
		series, err := analytics.NewPriceSeries(in.Prices, dates)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid price series").
				WithContext("ticker", in.Ticker)
		}
		return analytics.NewAsset(in.Ticker, series), nil
	}

	if in.ExpectedReturn != nil && in.Volatility != nil {
		return analytics.NewSyntheticAsset(in.Ticker, *in.ExpectedReturn, *in.Volatility), nil
	}

	return nil, apperrors.Newf(apperrors.ErrCodeInvalidInput,
		"asset %s: prices or expected_return/volatility required", in.Ticker)
}

func buildAssets(inputs []AssetInput) ([]*analytics.Asset, error) {
	assets := make([]*analytics.Asset, len(inputs))
	for i, in := range inputs {
		a, err := buildAsset(in)
		if err != nil {
			return nil, err
		}
		assets[i] = a
	}
	return assets, nil
}

func buildPortfolio(in PortfolioInput) (*analytics.Portfolio, error) {
	assets, err := buildAssets(in.Assets)
	if err != nil {
		return nil, err
	}
	return analytics.NewPortfolio(assets, in.Weights)
}

// equalWeightPortfolio builds the 1/n portfolio the grid optimizer searches
// from; the optimizer only needs the assets, not the starting weights.
func equalWeightPortfolio(assets []*analytics.Asset) (*analytics.Portfolio, error) {
	weights := make([]float64, len(assets))
	for i := range weights {
		weights[i] = 1.0 / float64(len(assets))
	}
	return analytics.NewPortfolio(assets, weights)
}

func (h *AnalyticsHandler) riskFree(override *float64) float64 {
	if override != nil {
		return *override
	}
	return h.riskFreeRate
}

func (h *AnalyticsHandler) step(override *float64) float64 {
	if override != nil {
		return *override
	}
	return h.gridStep
}

// Stats computes point statistics for a portfolio
func (h *AnalyticsHandler) Stats(c *gin.Context) {
	var req struct {
		Portfolio    PortfolioInput `json:"portfolio" binding:"required"`
		RiskFreeRate *float64       `json:"risk_free_rate,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	p, err := buildPortfolio(req.Portfolio)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: StatsResponse{
		Tickers:          p.Tickers(),
		Weights:          p.Weights(),
		ExpectedReturn:   nanPtr(p.ExpectedReturn()),
		Volatility:       nanPtr(p.Volatility()),
		SharpeRatio:      nanPtr(p.SharpeRatio(h.riskFree(req.RiskFreeRate))),
		CovarianceMatrix: nullifyNaNMatrix(p.CovarianceMatrix()),
	}})
}

// MaxSharpe runs the grid search for the maximum Sharpe ratio portfolio
func (h *AnalyticsHandler) MaxSharpe(c *gin.Context) {
	h.runGrid(c, "max_sharpe")
}

// MinVariance runs the grid search for the minimum variance portfolio
func (h *AnalyticsHandler) MinVariance(c *gin.Context) {
	h.runGrid(c, "min_variance")
}

func (h *AnalyticsHandler) runGrid(c *gin.Context, objective string) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	assets, err := buildAssets(req.Assets)
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := equalWeightPortfolio(assets)
	if err != nil {
		respondError(c, err)
		return
	}

	optimizer := analytics.NewGridOptimizer(h.step(req.GridStep))
	rf := h.riskFree(req.RiskFreeRate)

	start := time.Now()
	var result *analytics.OptimizationResult
	if objective == "max_sharpe" {
		result, err = optimizer.MaxSharpe(p, rf)
	} else {
		result, err = optimizer.MinVariance(p, rf)
	}
	elapsed := time.Since(start)

	if err != nil {
		h.metrics.RecordOptimization(objective, "failed", elapsed)
		h.log.WithError(err).WithField("objective", objective).Warn("optimization failed")
		respondError(c, err)
		return
	}
	h.metrics.RecordOptimization(objective, "completed", elapsed)

	c.JSON(http.StatusOK, Response{Success: true, Data: OptimizeResponse{
		Tickers:        p.Tickers(),
		Weights:        result.Weights,
		ExpectedReturn: nanPtr(result.ExpectedReturn),
		Volatility:     nanPtr(result.Volatility),
		SharpeRatio:    nanPtr(result.Sharpe),
		Elapsed:        elapsed.String(),
	}})
}

// Frontier computes the efficient frontier over the weight grid
func (h *AnalyticsHandler) Frontier(c *gin.Context) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	assets, err := buildAssets(req.Assets)
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := equalWeightPortfolio(assets)
	if err != nil {
		respondError(c, err)
		return
	}

	optimizer := analytics.NewGridOptimizer(h.step(req.GridStep))

	start := time.Now()
	points, err := optimizer.EfficientFrontier(p)
	elapsed := time.Since(start)

	if err != nil {
		h.metrics.RecordOptimization("frontier", "failed", elapsed)
		respondError(c, err)
		return
	}
	h.metrics.RecordOptimization("frontier", "completed", elapsed)
	h.metrics.RecordFrontierSize(len(points))

	out := make([]FrontierPoint, len(points))
	for i, pt := range points {
		out[i] = FrontierPoint{
			Weights:        pt.Weights,
			ExpectedReturn: nanPtr(pt.ExpectedReturn),
			Volatility:     nanPtr(pt.Volatility),
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: FrontierResponse{
		Tickers: p.Tickers(),
		Points:  out,
	}})
}

// Tangency computes closed-form tangency portfolio weights
func (h *AnalyticsHandler) Tangency(c *gin.Context) {
	var req TangencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	assets, err := buildAssets(req.Assets)
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := equalWeightPortfolio(assets)
	if err != nil {
		respondError(c, err)
		return
	}

	solver := analytics.NewQuadraticSolver()
	start := time.Now()
	weights, err := solver.TangencyWeights(p, h.riskFree(req.RiskFreeRate), req.EnforceNonNegative)
	elapsed := time.Since(start)

	if err != nil {
		h.metrics.RecordOptimization("tangency", "failed", elapsed)
		respondError(c, err)
		return
	}
	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			h.metrics.RecordOptimization("tangency", "failed", elapsed)
			respondError(c, apperrors.New(apperrors.ErrCodeInsufficientData,
				"tangency weights are undefined for the supplied return data"))
			return
		}
	}
	h.metrics.RecordOptimization("tangency", "completed", elapsed)

	c.JSON(http.StatusOK, Response{Success: true, Data: TangencyResponse{
		Tickers: p.Tickers(),
		Weights: weights,
	}})
}

// Compare runs a side-by-side comparison of several portfolios
func (h *AnalyticsHandler) Compare(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	portfolios := make([]*analytics.Portfolio, len(req.Portfolios))
	for i, in := range req.Portfolios {
		p, err := buildPortfolio(in)
		if err != nil {
			respondError(c, err)
			return
		}
		portfolios[i] = p
	}

	comparer := analytics.NewComparer(h.riskFree(req.RiskFreeRate))
	result := comparer.Compare(portfolios)

	c.JSON(http.StatusOK, Response{Success: true, Data: toCompareResponse(result)})
}

func toCompareResponse(r *analytics.ComparisonResult) CompareResponse {
	return CompareResponse{
		Labels:            r.Labels,
		PeriodicReturns:   r.PeriodicReturns,
		CumulativeReturns: r.CumulativeReturns,
		Benchmark:         r.Benchmark,
		Dates:             r.Dates,
		Sharpe:            nullifyNaN(r.Sharpe),
		Alpha:             nullifyNaN(r.Alpha),
		Beta:              nullifyNaN(r.Beta),
		Treynor:           nullifyNaN(r.Treynor),
		InformationRatio:  nullifyNaN(r.InformationRatio),
	}
}

func nanPtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullifyNaN(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if !math.IsNaN(values[i]) && !math.IsInf(values[i], 0) {
			v := values[i]
			out[i] = &v
		}
	}
	return out
}

func nullifyNaNMatrix(m [][]float64) [][]*float64 {
	out := make([][]*float64, len(m))
	for i := range m {
		out[i] = nullifyNaN(m[i])
	}
	return out
}

// PortfolioHandler serves stored-portfolio CRUD and comparison-snapshot
// requests
type PortfolioHandler struct {
	db           *storage.DB
	log          *logger.Logger
	riskFreeRate float64
}

// NewPortfolioHandler creates a new portfolio handler
func NewPortfolioHandler(db *storage.DB, log *logger.Logger, riskFreeRate float64) *PortfolioHandler {
	return &PortfolioHandler{db: db, log: log, riskFreeRate: riskFreeRate}
}

func (h *PortfolioHandler) requireDB(c *gin.Context) bool {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "portfolio storage is unavailable",
		})
		return false
	}
	return true
}

// Save persists a named portfolio
func (h *PortfolioHandler) Save(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}

	var req SavePortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	p, err := buildPortfolio(req.Portfolio)
	if err != nil {
		respondError(c, err)
		return
	}

	stored, err := h.db.SavePortfolio(c.Request.Context(), req.Name, p)
	if err != nil {
		h.log.WithError(err).Error("failed to save portfolio")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: summarize(stored)})
}

// Get loads a stored portfolio with its current statistics
func (h *PortfolioHandler) Get(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid portfolio id"})
		return
	}

	stored, err := h.db.GetPortfolio(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	p, err := stored.Rebuild()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"portfolio": summarize(stored),
		"stats": StatsResponse{
			Tickers:        p.Tickers(),
			Weights:        p.Weights(),
			ExpectedReturn: nanPtr(p.ExpectedReturn()),
			Volatility:     nanPtr(p.Volatility()),
		},
	}})
}

// List returns all stored portfolios, or a single one when the name query
// parameter is supplied
func (h *PortfolioHandler) List(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}

	if name := c.Query("name"); name != "" {
		stored, err := h.db.GetPortfolioByName(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: []PortfolioSummary{summarize(stored)}})
		return
	}

	stored, err := h.db.ListPortfolios(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	summaries := make([]PortfolioSummary, len(stored))
	for i, s := range stored {
		summaries[i] = summarize(s)
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summaries})
}

// SaveComparison runs a comparison and persists the snapshot
func (h *PortfolioHandler) SaveComparison(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}

	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	portfolios := make([]*analytics.Portfolio, len(req.Portfolios))
	for i, in := range req.Portfolios {
		p, err := buildPortfolio(in)
		if err != nil {
			respondError(c, err)
			return
		}
		portfolios[i] = p
	}

	rf := h.riskFreeRate
	if req.RiskFreeRate != nil {
		rf = *req.RiskFreeRate
	}
	result := analytics.NewComparer(rf).Compare(portfolios)

	id, err := h.db.SaveComparison(c.Request.Context(), result)
	if err != nil {
		h.log.WithError(err).Error("failed to save comparison")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: gin.H{
		"id":         id.String(),
		"comparison": toCompareResponse(result),
	}})
}

// Delete removes a stored portfolio
func (h *PortfolioHandler) Delete(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid portfolio id"})
		return
	}

	if err := h.db.DeletePortfolio(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "portfolio deleted"})
}

func summarize(s *storage.StoredPortfolio) PortfolioSummary {
	tickers := make([]string, len(s.Assets))
	for i, a := range s.Assets {
		tickers[i] = a.Ticker
	}
	return PortfolioSummary{
		ID:        s.ID.String(),
		Name:      s.Name,
		Tickers:   tickers,
		Weights:   s.Weights,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
