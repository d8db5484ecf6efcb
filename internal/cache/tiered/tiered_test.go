package tiered

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/gridwatch/energy-data-cache/internal/cache/localstore"
	"github.com/gridwatch/energy-data-cache/internal/cache/redisstore"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	local, err := localstore.New(10)
	if err != nil {
		t.Fatalf("localstore: %v", err)
	}
	return New(discard(), local, rc, time.Second, 2*time.Hour), mr
}

func TestPut_WritesBothTiersAndFallback(t *testing.T) {
	c, mr := newCache(t)
	payload := []byte(`{"records":[],"metadata":{"status":"ok"}}`)

	c.Put("energy:emissions:dk1:k", "energy:fallback:emissions:dk1", payload, 5*time.Minute)
	c.Drain()

	if body, tier := c.Get(context.Background(), "energy:emissions:dk1:k"); tier != TierLocal || string(body) != string(payload) {
		t.Fatalf("local read tier=%s body=%s", tier, body)
	}

	if !mr.Exists("energy:emissions:dk1:k") {
		t.Fatalf("primary key missing in shared tier")
	}
	if !mr.Exists("energy:fallback:emissions:dk1") {
		t.Fatalf("fallback key missing in shared tier")
	}

	// fallback TTL is the longer one
	if ttl := mr.TTL("energy:fallback:emissions:dk1"); ttl != 2*time.Hour {
		t.Fatalf("fallback ttl=%v", ttl)
	}
	if ttl := mr.TTL("energy:emissions:dk1:k"); ttl != 5*time.Minute {
		t.Fatalf("primary ttl=%v", ttl)
	}
}

func TestGet_SharedHitBackfillsLocal(t *testing.T) {
	c, _ := newCache(t)
	payload := []byte(`{"records":[]}`)

	c.Put("k", "fb", payload, 5*time.Minute)
	c.Drain()

	// wipe the local tier to simulate a cold instance
	c.InvalidateLocal(func(string) bool { return true })

	body, tier := c.Get(context.Background(), "k")
	if tier != TierShared || string(body) != string(payload) {
		t.Fatalf("tier=%s body=%s", tier, body)
	}

	// next read is answered locally
	if _, tier := c.Get(context.Background(), "k"); tier != TierLocal {
		t.Fatalf("backfill missing, tier=%s", tier)
	}
}

func TestFallback_IsNotServedOnPrimaryPath(t *testing.T) {
	c, _ := newCache(t)
	payload := []byte(`{"records":[]}`)

	c.Put("k", "fb", payload, 5*time.Minute)
	c.Drain()
	c.InvalidateLocal(func(string) bool { return true })

	// the primary key is gone but fb remains
	if _, tier := c.Get(context.Background(), "other-key"); tier != TierMiss {
		t.Fatalf("fallback leaked into primary path, tier=%s", tier)
	}

	body, ok := c.Fallback(context.Background(), "fb")
	if !ok || string(body) != string(payload) {
		t.Fatalf("fallback read=(%s,%v)", body, ok)
	}
}

type brokenShared struct{}

func (brokenShared) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenShared) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestSharedUnavailable_DegradesToLocalOnly(t *testing.T) {
	local, _ := localstore.New(10)
	c := New(discard(), local, brokenShared{}, time.Second, time.Hour)

	payload := []byte(`{"records":[]}`)
	c.Put("k", "fb", payload, time.Minute)
	c.Drain()

	// local tier still works despite shared failures
	body, tier := c.Get(context.Background(), "k")
	if tier != TierLocal || string(body) != string(payload) {
		t.Fatalf("tier=%s body=%s", tier, body)
	}

	// misses stay misses, no error escapes
	if _, tier := c.Get(context.Background(), "absent"); tier != TierMiss {
		t.Fatalf("tier=%s", tier)
	}
	if _, ok := c.Fallback(context.Background(), "fb"); ok {
		t.Fatalf("fallback should miss when shared tier is down")
	}
}

func TestGet_CorruptSharedEntryIsMiss(t *testing.T) {
	c, mr := newCache(t)
	if err := mr.Set("k", "not-json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, tier := c.Get(context.Background(), "k"); tier != TierMiss {
		t.Fatalf("tier=%s", tier)
	}
}
