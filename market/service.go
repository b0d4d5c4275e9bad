// Package market wraps the exchange gateway with an in-process TTL cache and
// exposes a Snapshot shape consumed by the indicator service and the
// decision pipeline. Klines are read only when a symbol's snapshot is
// refetched, so the indicator values derived from them are cached for the
// same TTL as the price; there is no separate, uncached kline read.
package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nofx/exchange"
	"nofx/market/indicator"
)

// Snapshot is the per-symbol view handed to the risk manager, account
// service, and decision providers.
type Snapshot struct {
	Symbol      string
	Price       float64
	PriceChgPct float64
	Volume      float64
	High24h     float64
	Low24h      float64
	RSI14       float64
	EMA12       float64
	EMA26       float64
	MACD        indicator.MACDResult
	SMA20       float64
	CapturedAt  time.Time
}

type cacheEntry struct {
	mu        sync.Mutex
	value     Snapshot
	expiresAt time.Time
}

// Service wraps a Gateway with a TTL cache keyed by symbol. Each symbol's
// entry is guarded by its own lock so one slow refetch never blocks reads
// of unrelated symbols.
type Service struct {
	gw  exchange.Gateway
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewService builds a market data service over gw, caching each symbol's
// snapshot for ttl.
func NewService(gw exchange.Gateway, ttl time.Duration) *Service {
	return &Service{
		gw:      gw,
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
	}
}

func (s *Service) entryFor(symbol string) *cacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[symbol]
	if !ok {
		e = &cacheEntry{}
		s.entries[symbol] = e
	}
	return e
}

// Snapshot returns the cached snapshot for symbol, refetching from the
// gateway (ticker, 24h stats, and a kline window for indicators) if the
// cached value has expired.
func (s *Service) Snapshot(ctx context.Context, symbol string, klineInterval string) (Snapshot, error) {
	e := s.entryFor(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Now().Before(e.expiresAt) {
		return e.value, nil
	}

	snap, err := s.fetch(ctx, symbol, klineInterval)
	if err != nil {
		return Snapshot{}, err
	}

	e.value = snap
	e.expiresAt = time.Now().Add(s.ttl)
	return snap, nil
}

func (s *Service) fetch(ctx context.Context, symbol, klineInterval string) (Snapshot, error) {
	stats, err := s.gw.Ticker24h(ctx, symbol)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch 24h stats for %s: %w", symbol, err)
	}

	klines, err := s.gw.Klines(ctx, symbol, klineInterval, 100)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch klines for %s: %w", symbol, err)
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	price, _ := stats.LastPrice.Float64()
	chgPct, _ := stats.PriceChgPct.Float64()
	volume, _ := stats.Volume.Float64()
	high, _ := stats.HighPrice.Float64()
	low, _ := stats.LowPrice.Float64()

	return Snapshot{
		Symbol:      symbol,
		Price:       price,
		PriceChgPct: chgPct,
		Volume:      volume,
		High24h:     high,
		Low24h:      low,
		RSI14:       indicator.RSI(closes, 14),
		EMA12:       indicator.EMA(closes, 12),
		EMA26:       indicator.EMA(closes, 26),
		MACD:        indicator.MACD(closes, 12, 26, 9),
		SMA20:       indicator.SMA(closes, 20),
		CapturedAt:  time.Now(),
	}, nil
}

// Invalidate drops the cached entry for symbol, forcing the next Snapshot
// call to refetch.
func (s *Service) Invalidate(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, symbol)
}
