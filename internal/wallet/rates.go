package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/model"
)

// RateSource fetches a live exchange rate. Client and Simulated satisfy it.
type RateSource interface {
	ExchangeRate(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

type RateConfig struct {
	Base     string
	Quote    string
	TTL      time.Duration
	Fallback decimal.Decimal
	// RetryAfter is how long Current keeps serving the stale rate after a
	// failed fetch before it tries the source again. Scheduled refreshes
	// ignore it.
	RetryAfter time.Duration
}

// RateCache keeps the last good rate for one currency pair. When a refresh
// fails it keeps serving the previous value marked stale; before the first
// successful fetch it serves the configured fallback.
type RateCache struct {
	source RateSource
	cfg    RateConfig
	logger *slog.Logger

	mu        sync.RWMutex
	cached    model.Rate
	lastFetch time.Time
	retryAt   time.Time
	listeners []func(model.Rate)
}

func NewRateCache(source RateSource, cfg RateConfig, logger *slog.Logger) *RateCache {
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.RetryAfter == 0 {
		cfg.RetryAfter = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateCache{
		source: source,
		cfg:    cfg,
		logger: logger.With("component", "rates"),
		cached: model.Rate{
			Base:  cfg.Base,
			Quote: cfg.Quote,
			Value: cfg.Fallback,
			Stale: true,
		},
	}
}

// Current returns the cached rate, refreshing it first once the TTL has
// passed. After a failed fetch the stale value is served without touching
// the source until RetryAfter has elapsed.
func (c *RateCache) Current(ctx context.Context) model.Rate {
	c.mu.RLock()
	fresh := time.Since(c.lastFetch) < c.cfg.TTL && !c.cached.Stale
	backingOff := time.Now().Before(c.retryAt)
	if fresh || backingOff {
		r := c.cached
		c.mu.RUnlock()
		return r
	}
	c.mu.RUnlock()

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("rate refresh failed, serving cached rate", "error", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cached
}

// OnRefresh registers fn to be called with every successfully fetched rate.
func (c *RateCache) OnRefresh(fn func(model.Rate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Refresh fetches a new rate unconditionally.
func (c *RateCache) Refresh(ctx context.Context) error {
	value, err := c.source.ExchangeRate(ctx, c.cfg.Base, c.cfg.Quote)
	if err == nil && !value.IsPositive() {
		err = fmt.Errorf("non-positive rate %s", value)
	}

	c.mu.Lock()
	if err != nil {
		c.cached.Stale = true
		c.retryAt = time.Now().Add(c.cfg.RetryAfter)
		c.mu.Unlock()
		return fmt.Errorf("refresh %s/%s rate: %w", c.cfg.Base, c.cfg.Quote, err)
	}

	c.lastFetch = time.Now()
	c.retryAt = time.Time{}
	c.cached = model.Rate{
		Base:      c.cfg.Base,
		Quote:     c.cfg.Quote,
		Value:     value,
		FetchedAt: c.lastFetch.UTC(),
	}
	rate := c.cached
	listeners := append([]func(model.Rate){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(rate)
	}
	return nil
}

// Schedule registers a periodic refresh on a cron scheduler.
func (c *RateCache) Schedule(cr *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := cr.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("scheduled rate refresh failed", "error", err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule rate refresh: %w", err)
	}
	return id, nil
}
