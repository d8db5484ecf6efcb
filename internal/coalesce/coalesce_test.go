package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_FiftyConcurrentCallersOneExecution(t *testing.T) {
	g := New[string](50 * time.Millisecond)

	var executions atomic.Int64
	started := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]string, 50)
	errs := make([]error, 50)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-started
			v, _, err := g.Do(context.Background(), "same-key", func(context.Context) (string, error) {
				executions.Add(1)
				time.Sleep(30 * time.Millisecond) // hold the call open
				return "payload", nil
			})
			results[i], errs[i] = v, err
		}()
	}
	close(started)
	wg.Wait()

	if n := executions.Load(); n != 1 {
		t.Fatalf("executions=%d want 1", n)
	}
	for i := range 50 {
		if errs[i] != nil || results[i] != "payload" {
			t.Fatalf("caller %d: v=%q err=%v", i, results[i], errs[i])
		}
	}
}

func TestDo_DifferentKeysRunIndependently(t *testing.T) {
	g := New[int](0)

	var executions atomic.Int64
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i))
			_, _, _ = g.Do(context.Background(), key, func(context.Context) (int, error) {
				executions.Add(1)
				time.Sleep(10 * time.Millisecond)
				return i, nil
			})
		}()
	}
	wg.Wait()
	if n := executions.Load(); n != 4 {
		t.Fatalf("executions=%d want 4", n)
	}
}

func TestDo_ErrorPropagatesToAllWaiters(t *testing.T) {
	g := New[string](10 * time.Millisecond)
	boom := errors.New("boom")

	var wg sync.WaitGroup
	errsCh := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := g.Do(context.Background(), "k", func(context.Context) (string, error) {
				time.Sleep(20 * time.Millisecond)
				return "", boom
			})
			errsCh <- err
		}()
	}
	wg.Wait()
	close(errsCh)

	for err := range errsCh {
		if !errors.Is(err, boom) {
			t.Fatalf("waiter err=%v want boom", err)
		}
	}
}

func TestDo_GraceWindowSharesSettledResult(t *testing.T) {
	g := New[string](200 * time.Millisecond)

	var executions atomic.Int64
	fn := func(context.Context) (string, error) {
		executions.Add(1)
		return "v", nil
	}

	if _, leader, _ := g.Do(context.Background(), "k", fn); !leader {
		t.Fatalf("first caller should lead")
	}
	// arrives after settle but inside the grace window
	v, leader, err := g.Do(context.Background(), "k", fn)
	if err != nil || v != "v" || leader {
		t.Fatalf("grace share failed: v=%q leader=%v err=%v", v, leader, err)
	}
	if n := executions.Load(); n != 1 {
		t.Fatalf("executions=%d want 1", n)
	}
}

func TestDo_EntryRemovedAfterGrace(t *testing.T) {
	g := New[string](10 * time.Millisecond)

	var executions atomic.Int64
	fn := func(context.Context) (string, error) {
		executions.Add(1)
		return "v", nil
	}

	_, _, _ = g.Do(context.Background(), "k", fn)

	deadline := time.Now().Add(time.Second)
	for g.InFlight() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("call not removed after grace window")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, _, _ = g.Do(context.Background(), "k", fn)
	if n := executions.Load(); n != 2 {
		t.Fatalf("executions=%d want 2 after grace expiry", n)
	}
}

func TestDo_WaiterContextCancellation(t *testing.T) {
	g := New[string](0)

	leaderStarted := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _, _ = g.Do(context.Background(), "k", func(context.Context) (string, error) {
			close(leaderStarted)
			<-release
			return "v", nil
		})
	}()
	<-leaderStarted

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := g.Do(ctx, "k", func(context.Context) (string, error) {
		t.Fatal("follower must not execute fn")
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	close(release)
}
