package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quantfolio/internal/config"
	"quantfolio/internal/logger"
	"quantfolio/internal/market"
	"quantfolio/internal/monitoring"
	"quantfolio/internal/storage"
)

// Server represents the API server
type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	log        *logger.Logger

	db         *storage.DB
	provider   market.Provider
	jwtManager *JWTManager
	metrics    *monitoring.Metrics

	analytics *AnalyticsHandler
	portfolio *PortfolioHandler
	market    *MarketHandler
}

// Deps are the externally constructed dependencies of the server. Database
// and provider may be nil; the matching endpoints then report unavailable.
type Deps struct {
	DB       *storage.DB
	Provider market.Provider
	Metrics  *monitoring.Metrics
	Log      *logger.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	metrics := deps.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	s := &Server{
		config:     cfg,
		router:     router,
		log:        deps.Log.WithComponent("api"),
		db:         deps.DB,
		provider:   deps.Provider,
		jwtManager: NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Duration),
		metrics:    metrics,
	}

	s.analytics = NewAnalyticsHandler(metrics, s.log, cfg.Analytics.RiskFreeRate, cfg.Analytics.GridStep)
	s.portfolio = NewPortfolioHandler(deps.DB, s.log, cfg.Analytics.RiskFreeRate)
	s.market = NewMarketHandler(deps.Provider, metrics, s.log)

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(corsMiddleware())
	s.router.Use(rateLimitMiddleware(s.config.RateLimit))
	s.router.Use(s.metrics.MetricsMiddleware())

	if s.config.Monitoring.PrometheusEnabled {
		s.router.GET(s.config.Monitoring.PrometheusPath, gin.WrapH(monitoring.PrometheusHandler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		optimize := v1.Group("/optimize")
		{
			optimize.POST("/sharpe", s.analytics.MaxSharpe)
			optimize.POST("/minvar", s.analytics.MinVariance)
			optimize.POST("/frontier", s.analytics.Frontier)
			optimize.POST("/tangency", s.analytics.Tangency)
		}

		v1.POST("/analytics/stats", s.analytics.Stats)
		v1.POST("/portfolios/compare", s.analytics.Compare)

		market := v1.Group("/market")
		{
			market.GET("/candles/:symbol", s.market.Candles)
		}

		// Persistence endpoints require authentication
		portfolios := v1.Group("/portfolios")
		if s.config.JWT.SecretKey != "" {
			portfolios.Use(s.jwtManager.AuthMiddleware())
		}
		{
			portfolios.POST("", s.portfolio.Save)
			portfolios.GET("", s.portfolio.List)
			portfolios.GET("/:id", s.portfolio.Get)
			portfolios.DELETE("/:id", s.portfolio.Delete)
		}

		comparisons := v1.Group("/comparisons")
		if s.config.JWT.SecretKey != "" {
			comparisons.Use(s.jwtManager.AuthMiddleware())
		}
		comparisons.POST("", s.portfolio.SaveComparison)
	}

	s.router.GET("/health", s.health)
}

func (s *Server) health(c *gin.Context) {
	dbHealth := "ok"
	if s.db != nil {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			dbHealth = "error"
		}
	} else {
		dbHealth = "unavailable"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.config.App.Version,
		"time":    time.Now().UTC(),
		"services": gin.H{
			"database": dbHealth,
		},
	})
}

// Router exposes the gin engine, used by tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	s.log.WithField("addr", s.httpServer.Addr).Info("starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down API server")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
