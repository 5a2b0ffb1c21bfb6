package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quantfolio/internal/logger"
	"quantfolio/internal/market"
	"quantfolio/internal/monitoring"
)

// MarketHandler serves market data requests
type MarketHandler struct {
	provider market.Provider
	metrics  *monitoring.Metrics
	log      *logger.Logger
}

// NewMarketHandler creates a new market data handler
func NewMarketHandler(provider market.Provider, metrics *monitoring.Metrics, log *logger.Logger) *MarketHandler {
	return &MarketHandler{provider: provider, metrics: metrics, log: log}
}

// Candles fetches daily candles for a symbol over a date window
func (h *MarketHandler) Candles(c *gin.Context) {
	if h.provider == nil {
		c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "market data provider is not configured",
		})
		return
	}

	symbol := c.Param("symbol")
	from, err := parseDateParam(c.Query("from"), time.Now().AddDate(-1, 0, 0))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid from date"})
		return
	}
	to, err := parseDateParam(c.Query("to"), time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid to date"})
		return
	}

	candles, err := h.provider.Candles(c.Request.Context(), symbol, from, to)
	if err != nil {
		h.metrics.RecordMarketDataFetch(symbol, "failed")
		h.log.WithError(err).WithField("symbol", symbol).Warn("candle fetch failed")
		respondError(c, err)
		return
	}
	h.metrics.RecordMarketDataFetch(symbol, "ok")

	c.JSON(http.StatusOK, Response{Success: true, Data: CandlesResponse{
		Symbol:  symbol,
		Candles: candles,
	}})
}

func parseDateParam(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	return time.Parse("2006-01-02", value)
}
