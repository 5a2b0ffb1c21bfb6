package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quantfolio/internal/logger"
	"quantfolio/internal/monitoring"
)

// CachedProvider wraps a Provider with a redis candle cache. Cache failures
// degrade to a direct fetch; the provider stays the source of truth.
type CachedProvider struct {
	inner   Provider
	client  *redis.Client
	ttl     time.Duration
	metrics *monitoring.Metrics
	log     *logger.Logger
}

// CacheConfig configures the candle cache.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// NewCachedProvider creates a caching provider around inner. The redis
// connection is verified once at startup; a failed ping disables caching and
// returns the inner provider behavior unchanged.
func NewCachedProvider(inner Provider, cfg CacheConfig, metrics *monitoring.Metrics, log *logger.Logger) *CachedProvider {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis unavailable, candle caching disabled")
		client = nil
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &CachedProvider{
		inner:   inner,
		client:  client,
		ttl:     ttl,
		metrics: metrics,
		log:     log,
	}
}

// Candles returns cached candles when available, fetching and caching
// otherwise.
func (p *CachedProvider) Candles(ctx context.Context, symbol string, from, to time.Time) ([]Candle, error) {
	key := cacheKey(symbol, from, to)

	if p.client == nil {
		p.metrics.RecordCacheLookup("bypass")
	} else {
		raw, err := p.client.Get(ctx, key).Bytes()
		if err == nil {
			var candles []Candle
			if err := json.Unmarshal(raw, &candles); err == nil {
				p.metrics.RecordCacheLookup("hit")
				return candles, nil
			}
			p.log.WithField("key", key).Warn("corrupt cache entry, refetching")
		} else if err != redis.Nil {
			p.log.WithError(err).Warn("cache read failed, fetching directly")
		}
		p.metrics.RecordCacheLookup("miss")
	}

	candles, err := p.inner.Candles(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	if p.client != nil {
		if raw, err := json.Marshal(candles); err == nil {
			if err := p.client.Set(ctx, key, raw, p.ttl).Err(); err != nil {
				p.log.WithError(err).Warn("cache write failed")
			}
		}
	}
	return candles, nil
}

func cacheKey(symbol string, from, to time.Time) string {
	return fmt.Sprintf("candles:%s:%s:%s", symbol, from.Format("20060102"), to.Format("20060102"))
}
