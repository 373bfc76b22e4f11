package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitBoundsConcurrency(t *testing.T) {
	l := New(2)
	var inFlight, maxSeen int32

	run := func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 0, nil
	}

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			Submit(context.Background(), l, run)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if maxSeen > 2 {
		t.Fatalf("expected at most 2 concurrent calls, saw %d", maxSeen)
	}
}

func TestSubmitReleasesSlotOnContextCancel(t *testing.T) {
	l := New(1)
	l.slots <- struct{}{} // hold the only slot so the next Submit must queue

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Submit(ctx, l, func(ctx context.Context) (int, error) {
		t.Fatal("fn should not run: no slot was available and ctx was canceled")
		return 0, nil
	})
	if err == nil {
		t.Fatal("expected context cancellation error")
	}

	<-l.slots // drain the slot we held
	if l.InFlight() != 0 {
		t.Fatalf("expected no slots held, got %d", l.InFlight())
	}
}

func TestIsRateLimitedErr(t *testing.T) {
	cases := map[string]bool{
		"429 Too Many Requests":     true,
		"rate limit exceeded":       true,
		"connection reset by peer":  false,
		"context deadline exceeded": false,
	}
	for msg, want := range cases {
		got := IsRateLimitedErr(errOf(msg))
		if got != want {
			t.Errorf("IsRateLimitedErr(%q) = %v, want %v", msg, got, want)
		}
	}
}

type strErr string

func (e strErr) Error() string { return string(e) }
func errOf(s string) error     { return strErr(s) }
