package testing

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoroutineTest(t *testing.T) {
	var calls atomic.Int32

	gt := NewGoroutineTest(t)
	for i := 0; i < 5; i++ {
		gt.Go(func() error {
			calls.Add(1)
			return nil
		})
	}
	gt.Wait()

	if calls.Load() != 5 {
		t.Errorf("calls = %d, want 5", calls.Load())
	}
}

func TestGoroutineTestContext(t *testing.T) {
	gt := NewGoroutineTestWithTimeout(t, 5*time.Second)
	defer gt.Wait()

	gt.GoWithContext(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
			return ctx.Err()
		}
	})
	gt.Cancel()
}

func TestWithTimeout(t *testing.T) {
	if err := WithTimeout(time.Second, func() error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	block := make(chan struct{})
	defer close(block)
	if err := WithTimeout(10*time.Millisecond, func() error {
		<-block
		return nil
	}); err == nil {
		t.Error("expected timeout error")
	}
}

func TestEventually(t *testing.T) {
	var ready atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		ready.Store(true)
	}()

	if err := Eventually(time.Second, 5*time.Millisecond, ready.Load); err != nil {
		t.Errorf("Eventually: %v", err)
	}
	if err := Eventually(20*time.Millisecond, 5*time.Millisecond, func() bool { return false }); err == nil {
		t.Error("expected error for a condition that never holds")
	}
}
