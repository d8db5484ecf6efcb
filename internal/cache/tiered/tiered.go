// Package tiered orchestrates the two cache tiers: a process-local
// bounded LRU and a shared Redis store. Reads go local → shared → miss;
// shared hits are backfilled into the local tier. Successful fetches are
// written to both tiers under the primary key and, with a longer TTL,
// under the fallback key that the error path consults.
package tiered

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/cache/localstore"
	"github.com/gridwatch/energy-data-cache/internal/core/observability"
)

// Tier identifies where a read was answered from.
type Tier string

const (
	TierLocal  Tier = "HIT-LOCAL"
	TierShared Tier = "HIT-SHARED"
	TierMiss   Tier = "MISS"
	TierStale  Tier = "HIT-STALE"
)

// SharedStore is the external key/value tier. Implemented by redisstore.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Entry is the shared-tier envelope. Payload is immutable once stored;
// an update is always a full replacement.
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"storedAt"`
	TTLSecs  int64           `json:"ttlSeconds"`
}

type Cache struct {
	logger      *slog.Logger
	local       *localstore.Store
	shared      SharedStore
	opTimeout   time.Duration
	fallbackTTL time.Duration

	// tracks detached shared-tier writes so shutdown and tests can drain
	writes sync.WaitGroup
}

func New(logger *slog.Logger, local *localstore.Store, shared SharedStore, opTimeout, fallbackTTL time.Duration) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		logger:      logger,
		local:       local,
		shared:      shared,
		opTimeout:   opTimeout,
		fallbackTTL: fallbackTTL,
	}
}

// Get consults the local tier, then the shared tier. A shared hit is
// backfilled into the local tier with its remaining TTL. Shared-tier
// errors degrade to a miss; they never fail the request.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, Tier) {
	if body, ok := c.local.Get(key); ok {
		return body, TierLocal
	}

	if c.shared == nil {
		return nil, TierMiss
	}

	opCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	raw, ok, err := c.shared.Get(opCtx, key)
	if err != nil {
		c.logger.Warn("shared cache read failed, continuing local-only", "key", key, "err", err)
		return nil, TierMiss
	}
	if !ok {
		observability.IncCacheMiss("shared")
		return nil, TierMiss
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("shared cache entry corrupt, treating as miss", "key", key, "err", err)
		observability.IncCacheMiss("shared")
		return nil, TierMiss
	}

	observability.IncCacheHit("shared")
	if remaining := time.Duration(e.TTLSecs)*time.Second - time.Since(e.StoredAt); remaining > 0 {
		c.local.Set(key, e.Payload, remaining)
	}
	return e.Payload, TierShared
}

// Put writes the payload to the local tier synchronously, then to the
// shared tier (primary key plus fallback key) in a detached goroutine.
// Shared failures are logged and never propagate to the response path.
func (c *Cache) Put(key, fallbackKey string, payload []byte, ttl time.Duration) {
	c.local.Set(key, payload, ttl)

	if c.shared == nil {
		return
	}

	entry := Entry{Payload: payload, StoredAt: time.Now().UTC(), TTLSecs: int64(ttl / time.Second)}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("marshal cache entry", "key", key, "err", err)
		return
	}
	fb := Entry{Payload: payload, StoredAt: entry.StoredAt, TTLSecs: int64(c.fallbackTTL / time.Second)}
	fbRaw, err := json.Marshal(fb)
	if err != nil {
		c.logger.Error("marshal fallback entry", "key", fallbackKey, "err", err)
		return
	}

	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		ctx, cancel := c.withTimeout(context.Background())
		defer cancel()
		if err := c.shared.Set(ctx, key, raw, ttl); err != nil {
			c.logger.Warn("shared cache write failed", "key", key, "err", err)
		}
		if fallbackKey == "" {
			return
		}
		if err := c.shared.Set(ctx, fallbackKey, fbRaw, c.fallbackTTL); err != nil {
			c.logger.Warn("fallback cache write failed", "key", fallbackKey, "err", err)
		}
	}()
}

// Fallback reads the last-known-good payload for a fallback key. It is
// only called on the error path, never during primary lookups.
func (c *Cache) Fallback(ctx context.Context, fallbackKey string) ([]byte, bool) {
	if c.shared == nil {
		return nil, false
	}
	opCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	raw, ok, err := c.shared.Get(opCtx, fallbackKey)
	if err != nil {
		c.logger.Warn("fallback cache read failed", "key", fallbackKey, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("fallback entry corrupt", "key", fallbackKey, "err", err)
		return nil, false
	}
	return e.Payload, true
}

// InvalidateLocal drops local entries the predicate accepts.
func (c *Cache) InvalidateLocal(match func(key string) bool) int {
	return c.local.RemoveMatching(match)
}

// Drain blocks until all detached shared-tier writes have finished.
func (c *Cache) Drain() {
	c.writes.Wait()
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opTimeout)
}
