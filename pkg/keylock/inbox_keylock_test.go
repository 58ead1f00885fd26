package keylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), 7)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most 1 holder, saw %d", maxInside)
	}
	if l.Len() != 0 {
		t.Errorf("expected idle keys to be dropped, %d left", l.Len())
	}
}

func TestLockDistinctKeysDoNotBlock(t *testing.T) {
	l := New()
	unlockA, err := l.Lock(context.Background(), 1)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx, 2)
	if err != nil {
		t.Fatalf("expected key 2 to be free, got %v", err)
	}
	unlockB()
}

func TestLockHonorsContext(t *testing.T) {
	l := New()
	unlock, _ := l.Lock(context.Background(), 1)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestTryLock(t *testing.T) {
	l := New()
	unlock, ok := l.TryLock(3)
	if !ok {
		t.Fatal("expected first TryLock to succeed")
	}
	if _, ok := l.TryLock(3); ok {
		t.Error("expected second TryLock to fail")
	}
	unlock()
	unlock()
	if _, ok := l.TryLock(3); !ok {
		t.Error("expected TryLock after unlock to succeed")
	}
}
