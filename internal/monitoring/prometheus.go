package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec
	apiErrorsTotal       *prometheus.CounterVec
	optimizationRuns     *prometheus.CounterVec
	optimizationDuration *prometheus.HistogramVec
	frontierPoints       prometheus.Histogram
	marketDataFetches    *prometheus.CounterVec
	cacheHits            *prometheus.CounterVec
	refreshRuns          *prometheus.CounterVec
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
			[]string{"method", "endpoint"},
		),
		apiErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"endpoint", "error_type"},
		),
		optimizationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimization_runs_total",
				Help: "Total number of optimization runs",
			},
			[]string{"objective", "status"},
		),
		optimizationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optimization_duration_seconds",
				Help:    "Optimization run duration in seconds",
				Buckets: []float64{.005, .025, .1, .5, 1, 5, 15, 60},
			},
			[]string{"objective"},
		),
		frontierPoints: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "frontier_points",
				Help:    "Number of points per computed efficient frontier",
				Buckets: prometheus.LinearBuckets(0, 250, 10),
			},
		),
		marketDataFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_data_fetches_total",
				Help: "Total number of market data fetches",
			},
			[]string{"symbol", "status"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candle_cache_requests_total",
				Help: "Total number of candle cache lookups",
			},
			[]string{"result"},
		),
		refreshRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_refresh_runs_total",
				Help: "Total number of scheduled price refresh runs",
			},
			[]string{"status"},
		),
	}

	// Register metrics
	prometheus.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.apiErrorsTotal,
		m.optimizationRuns,
		m.optimizationDuration,
		m.frontierPoints,
		m.marketDataFetches,
		m.cacheHits,
		m.refreshRuns,
	)

	return m
}

// MetricsMiddleware creates a Prometheus metrics middleware
func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Inc()
		defer m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)

		if c.Writer.Status() >= 400 {
			errorType := "client_error"
			if c.Writer.Status() >= 500 {
				errorType = "server_error"
			}
			m.apiErrorsTotal.WithLabelValues(path, errorType).Inc()
		}
	}
}

// PrometheusHandler returns the Prometheus metrics handler
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// RecordOptimization records an optimization run with its duration
func (m *Metrics) RecordOptimization(objective, status string, elapsed time.Duration) {
	m.optimizationRuns.WithLabelValues(objective, status).Inc()
	m.optimizationDuration.WithLabelValues(objective).Observe(elapsed.Seconds())
}

// RecordFrontierSize records the number of points on a computed frontier
func (m *Metrics) RecordFrontierSize(points int) {
	m.frontierPoints.Observe(float64(points))
}

// RecordMarketDataFetch records a market data fetch outcome
func (m *Metrics) RecordMarketDataFetch(symbol, status string) {
	m.marketDataFetches.WithLabelValues(symbol, status).Inc()
}

// RecordCacheLookup records a candle cache hit or miss
func (m *Metrics) RecordCacheLookup(result string) {
	m.cacheHits.WithLabelValues(result).Inc()
}

// RecordRefreshRun records a scheduled price refresh outcome
func (m *Metrics) RecordRefreshRun(status string) {
	m.refreshRuns.WithLabelValues(status).Inc()
}
