package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"go.uber.org/zap"
)

type balanceEntry struct {
	balance  float64
	cachedAt time.Time
}

// BalanceCache is a read-through TTL cache that shields balance readers
// from a slow or unreliable upstream ledger. On fetch failure it degrades
// to the last known value when one exists (stale-but-available); the core
// never writes balances, only observes them.
type BalanceCache struct {
	mu      sync.Mutex
	entries map[string]balanceEntry
	ttl     time.Duration
	metrics port.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewBalanceCache creates a balance cache with the given freshness window
func NewBalanceCache(ttl time.Duration, metrics port.Metrics, log *zap.Logger) *BalanceCache {
	return &BalanceCache{
		entries: make(map[string]balanceEntry),
		ttl:     ttl,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// GetBalance returns the cached balance for identity when it is still
// fresh, otherwise invokes fetch. A failed fetch falls back to a stale
// entry without surfacing the error; with no entry at all the failure
// propagates. Single-flight per identity is intentionally not provided.
func (c *BalanceCache) GetBalance(ctx context.Context, identity string, fetch func(ctx context.Context) (float64, error)) (float64, error) {
	c.mu.Lock()
	entry, exists := c.entries[identity]
	fresh := exists && c.now().Sub(entry.cachedAt) < c.ttl
	c.mu.Unlock()

	if fresh {
		c.metrics.BalanceCacheLookup(true)
		return entry.balance, nil
	}
	c.metrics.BalanceCacheLookup(false)

	balance, err := fetch(ctx)
	if err != nil {
		if exists {
			c.log.Warn("Balance fetch failed, serving stale entry",
				zap.String("identity", identity),
				zap.Time("cached_at", entry.cachedAt),
				zap.Error(err))
			return entry.balance, nil
		}
		return 0, fmt.Errorf("balance fetch for %s: %w", identity, err)
	}

	c.mu.Lock()
	c.entries[identity] = balanceEntry{balance: balance, cachedAt: c.now()}
	c.mu.Unlock()

	return balance, nil
}

// Invalidate removes one identity so the next query forces a refresh.
// Must be called after any transaction that could alter that balance.
func (c *BalanceCache) Invalidate(identity string) {
	c.mu.Lock()
	delete(c.entries, identity)
	c.mu.Unlock()
}

// InvalidateAll removes every entry
func (c *BalanceCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]balanceEntry)
	c.mu.Unlock()
}

// Size returns the number of cached entries
func (c *BalanceCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
