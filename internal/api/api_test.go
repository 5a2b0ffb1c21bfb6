package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantfolio/internal/config"
	"quantfolio/internal/logger"
	"quantfolio/internal/monitoring"
)

// metrics register against the global prometheus registry, so tests share a
// single instance
var testMetrics = monitoring.NewMetrics()

func testServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		App:    config.AppConfig{Name: "quantfolio", Version: "test", Env: "test"},
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		RateLimit: config.RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 1000,
			Burst:             1000,
		},
		Analytics: config.AnalyticsConfig{RiskFreeRate: 0.02, GridStep: 0.1},
		Monitoring: config.MonitoringConfig{
			PrometheusEnabled: false,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	log := logger.New(logger.Config{Level: "error", Format: "text", Output: "stdout"})
	return NewServer(cfg, Deps{Metrics: testMetrics, Log: log})
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func samplePortfolio() PortfolioInput {
	return PortfolioInput{
		Assets: []AssetInput{
			{Ticker: "AAA", Prices: []float64{100, 101, 102, 103}},
			{Ticker: "BBB", Prices: []float64{200, 202, 201, 205}},
		},
		Weights: []float64{0.5, 0.5},
	}
}

func TestHealth(t *testing.T) {
	s := testServer(t, nil)
	w := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStats(t *testing.T) {
	s := testServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/api/v1/analytics/stats", gin.H{
		"portfolio": samplePortfolio(),
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{"AAA", "BBB"}, data["tickers"])
	assert.Greater(t, data["volatility"].(float64), 0.0)
}

func TestStatsInvalidPortfolio(t *testing.T) {
	s := testServer(t, nil)
	p := samplePortfolio()
	p.Weights = []float64{0.9, 0.9}
	w := doJSON(t, s, http.MethodPost, "/api/v1/analytics/stats", gin.H{"portfolio": p})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "INVALID_PORTFOLIO", resp.Code)
}

func TestMaxSharpe(t *testing.T) {
	s := testServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/api/v1/optimize/sharpe", OptimizeRequest{
		Assets: samplePortfolio().Assets,
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	weights := data["weights"].([]interface{})
	require.Len(t, weights, 2)

	sum := 0.0
	for _, v := range weights {
		sum += v.(float64)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestMaxSharpeTooManyAssets(t *testing.T) {
	s := testServer(t, nil)
	assets := make([]AssetInput, 7)
	for i := range assets {
		assets[i] = AssetInput{
			Ticker: string(rune('A' + i)),
			Prices: []float64{100, 101, 102},
		}
	}
	w := doJSON(t, s, http.MethodPost, "/api/v1/optimize/sharpe", OptimizeRequest{Assets: assets})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNSUPPORTED_SCALE", decode(t, w).Code)
}

func TestFrontier(t *testing.T) {
	s := testServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/api/v1/optimize/frontier", OptimizeRequest{
		Assets: samplePortfolio().Assets,
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	require.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	points := data["points"].([]interface{})
	assert.NotEmpty(t, points)
}

func TestTangency(t *testing.T) {
	s := testServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/api/v1/optimize/tangency", TangencyRequest{
		Assets:             samplePortfolio().Assets,
		EnforceNonNegative: true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	require.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	weights := data["weights"].([]interface{})
	require.Len(t, weights, 2)
	for _, v := range weights {
		assert.GreaterOrEqual(t, v.(float64), -1e-12)
	}
}

func TestCompare(t *testing.T) {
	s := testServer(t, nil)
	second := samplePortfolio()
	second.Weights = []float64{0.2, 0.8}

	w := doJSON(t, s, http.MethodPost, "/api/v1/portfolios/compare", CompareRequest{
		Portfolios: []PortfolioInput{samplePortfolio(), second},
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	require.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	labels := data["labels"].([]interface{})
	assert.Len(t, labels, 2)
}

func TestSyntheticAssetInput(t *testing.T) {
	s := testServer(t, nil)
	er, vol := 0.08, 0.2
	w := doJSON(t, s, http.MethodPost, "/api/v1/analytics/stats", gin.H{
		"portfolio": PortfolioInput{
			Assets: []AssetInput{
				{Ticker: "AAA", Prices: []float64{100, 101, 102, 103}},
				{Ticker: "SYN", ExpectedReturn: &er, Volatility: &vol},
			},
			Weights: []float64{0.5, 0.5},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)
}

func TestAssetInputMissingData(t *testing.T) {
	s := testServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/api/v1/analytics/stats", gin.H{
		"portfolio": PortfolioInput{
			Assets:  []AssetInput{{Ticker: "AAA"}},
			Weights: []float64{1.0},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, w).Code)
}

func TestPortfoliosRequireAuth(t *testing.T) {
	s := testServer(t, func(cfg *config.Config) {
		cfg.JWT = config.JWTConfig{SecretKey: "test-secret", Duration: time.Hour}
	})

	w := doJSON(t, s, http.MethodGet, "/api/v1/portfolios", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPortfoliosWithValidToken(t *testing.T) {
	s := testServer(t, func(cfg *config.Config) {
		cfg.JWT = config.JWTConfig{SecretKey: "test-secret", Duration: time.Hour}
	})

	token, _, err := s.jwtManager.GenerateToken("user-1", "tester")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/portfolios", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	// storage is nil in tests; authentication passed, storage reported down
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, expiresAt, err := m.GenerateToken("user-1", "tester")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tester", claims.Username)
}

func TestJWTRejectsBadSignature(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, _, err := m.GenerateToken("user-1", "tester")
	require.NoError(t, err)

	other := NewJWTManager("different-secret", time.Hour)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestRequestIDPropagated(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, "fixed-id", w.Header().Get("X-Request-ID"))
}

func TestRateLimit(t *testing.T) {
	s := testServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 1}
	})

	first := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestStatsZeroPriceRendersNulls(t *testing.T) {
	s := testServer(t, nil)
	// a zero price makes the derived statistics NaN; the response must still
	// be a complete JSON document with nulls, not an aborted render
	w := doJSON(t, s, http.MethodPost, "/api/v1/analytics/stats", gin.H{
		"portfolio": PortfolioInput{
			Assets: []AssetInput{
				{Ticker: "AAA", Prices: []float64{100, 0, 50, 60}},
				{Ticker: "BBB", Prices: []float64{200, 202, 201, 205}},
			},
			Weights: []float64{0.5, 0.5},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Body.Bytes())

	resp := decode(t, w)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Nil(t, data["expected_return"])
	assert.Nil(t, data["volatility"])
}

func TestFrontierZeroPriceRendersNulls(t *testing.T) {
	s := testServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/api/v1/optimize/frontier", OptimizeRequest{
		Assets: []AssetInput{
			{Ticker: "AAA", Prices: []float64{100, 0, 50, 60}},
			{Ticker: "BBB", Prices: []float64{200, 202, 201, 205}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	points := data["points"].([]interface{})
	require.NotEmpty(t, points)
	first := points[0].(map[string]interface{})
	assert.Nil(t, first["volatility"])
	assert.Nil(t, first["expected_return"])
}

func TestMaxSharpeZeroPriceInfeasible(t *testing.T) {
	s := testServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/api/v1/optimize/sharpe", OptimizeRequest{
		Assets: []AssetInput{
			{Ticker: "AAA", Prices: []float64{100, 0, 50, 60}},
			{Ticker: "BBB", Prices: []float64{200, 202, 201, 205}},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "NO_FEASIBLE_SOLUTION", resp.Code)
}

func TestTangencyZeroPriceRejected(t *testing.T) {
	s := testServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/api/v1/optimize/tangency", TangencyRequest{
		Assets: []AssetInput{
			{Ticker: "AAA", Prices: []float64{100, 0, 50, 60}},
			{Ticker: "BBB", Prices: []float64{200, 202, 201, 205}},
		},
	})
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)

	resp := decode(t, w)
	assert.False(t, resp.Success)
}

func TestSaveComparisonRequiresAuth(t *testing.T) {
	s := testServer(t, func(cfg *config.Config) {
		cfg.JWT = config.JWTConfig{SecretKey: "test-secret", Duration: time.Hour}
	})

	w := doJSON(t, s, http.MethodPost, "/api/v1/comparisons", CompareRequest{
		Portfolios: []PortfolioInput{samplePortfolio()},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSaveComparisonWithoutStorage(t *testing.T) {
	s := testServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/api/v1/comparisons", CompareRequest{
		Portfolios: []PortfolioInput{samplePortfolio()},
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListPortfoliosByNameWithoutStorage(t *testing.T) {
	s := testServer(t, nil)
	w := doJSON(t, s, http.MethodGet, "/api/v1/portfolios?name=growth", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
