package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"quantfolio/internal/analytics"
	"quantfolio/internal/logger"
	"quantfolio/internal/market"
	"quantfolio/internal/monitoring"
	"quantfolio/internal/storage"
)

// Scheduler refreshes the price histories of stored portfolios on a cron
// schedule. Assets that were persisted without history are backfilled into
// full assets once candles are available.
type Scheduler struct {
	cron     *cron.Cron
	db       *storage.DB
	provider market.Provider
	metrics  *monitoring.Metrics
	log      *logger.Logger
	lookback int
}

// Config configures the refresh scheduler.
type Config struct {
	RefreshSpec string
	Lookback    int
}

// New creates a scheduler. The cron spec uses a seconds field.
func New(db *storage.DB, provider market.Provider, metrics *monitoring.Metrics, log *logger.Logger, cfg Config) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		db:       db,
		provider: provider,
		metrics:  metrics,
		log:      log.WithComponent("scheduler"),
		lookback: cfg.Lookback,
	}
	if s.lookback <= 0 {
		s.lookback = analytics.TradingDays
	}

	if _, err := s.cron.AddFunc(cfg.RefreshSpec, s.runRefresh); err != nil {
		return nil, fmt.Errorf("failed to add refresh job: %w", err)
	}
	return s, nil
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.log.Info("starting price refresh scheduler")
	s.cron.Start()
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("price refresh scheduler stopped")
}

func (s *Scheduler) runRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := s.RefreshAll(ctx); err != nil {
		s.metrics.RecordRefreshRun("failed")
		s.log.WithError(err).Error("price refresh failed")
		return
	}
	s.metrics.RecordRefreshRun("completed")
}

// RefreshAll refetches price histories for every stored portfolio and saves
// the updated snapshots. Symbols that fail to fetch keep their previous data.
func (s *Scheduler) RefreshAll(ctx context.Context) error {
	stored, err := s.db.ListPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}

	to := time.Now()
	// calendar-day window wide enough to cover the trading-day lookback
	from := to.AddDate(0, 0, -s.lookback*7/5-7)

	for _, sp := range stored {
		if err := s.refreshPortfolio(ctx, sp, from, to); err != nil {
			s.log.WithError(err).WithField("portfolio", sp.Name).Warn("portfolio refresh failed")
		}
	}
	return nil
}

func (s *Scheduler) refreshPortfolio(ctx context.Context, sp *storage.StoredPortfolio, from, to time.Time) error {
	p, err := sp.Rebuild()
	if err != nil {
		return fmt.Errorf("failed to rebuild portfolio: %w", err)
	}

	symbols := p.Tickers()
	series, failures := market.PriceHistory(ctx, s.provider, symbols, from, to)
	for symbol, ferr := range failures {
		s.metrics.RecordMarketDataFetch(symbol, "failed")
		s.log.WithError(ferr).WithField("symbol", symbol).Warn("symbol refresh failed")
	}

	updated := 0
	for i, a := range p.Assets() {
		fresh, ok := series[a.Ticker()]
		if !ok || fresh.Len() < 2 {
			continue
		}
		s.metrics.RecordMarketDataFetch(a.Ticker(), "ok")
		if err := p.ReplaceAsset(i, analytics.NewAsset(a.Ticker(), fresh)); err != nil {
			return fmt.Errorf("failed to replace asset %s: %w", a.Ticker(), err)
		}
		updated++
	}

	if updated == 0 {
		return nil
	}

	if _, err := s.db.SavePortfolio(ctx, sp.Name, p); err != nil {
		return fmt.Errorf("failed to save refreshed portfolio: %w", err)
	}
	s.log.WithFields(map[string]interface{}{
		"portfolio": sp.Name,
		"updated":   updated,
		"assets":    len(symbols),
	}).Info("portfolio prices refreshed")
	return nil
}
