package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSetGetDel_HappyPath(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "k1", []byte("v1"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := rc.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || string(got) != "v1" {
		t.Fatalf("Get=(%q,%v)", got, ok)
	}

	if _, ok, err := rc.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := rc.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := rc.Get(ctx, "k1"); ok {
		t.Fatalf("k1 still present after Del")
	}
}

func TestGet_ExpiredKeyIsMiss(t *testing.T) {
	rc, mr := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "ttl-key", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, ok, err := rc.Get(ctx, "ttl-key"); err != nil || ok {
		t.Fatalf("expired key should miss: ok=%v err=%v", ok, err)
	}
}

func TestScanDel_RemovesMatchingOnly(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	seed := map[string]string{
		"energy:emissions:dk1:a": "1",
		"energy:emissions:dk1:b": "2",
		"energy:emissions:dk2:a": "3",
		"energy:forecast:dk1:a":  "4",
	}
	for k, v := range seed {
		if err := rc.Set(ctx, k, []byte(v), time.Minute); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}

	n, err := rc.ScanDel(ctx, "energy:emissions:dk1:*")
	if err != nil {
		t.Fatalf("ScanDel: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed=%d want 2", n)
	}
	if _, ok, _ := rc.Get(ctx, "energy:emissions:dk2:a"); !ok {
		t.Fatalf("non-matching key was removed")
	}
	if _, ok, _ := rc.Get(ctx, "energy:forecast:dk1:a"); !ok {
		t.Fatalf("other resource key was removed")
	}
}

func TestContextDeadline_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, _, err := rc.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error on Get with canceled context")
	}
}
