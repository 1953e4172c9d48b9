package latch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestResolveThenWait(t *testing.T) {
	l := New[int]()
	if err := l.Resolve(42); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v, err := l.Wait()
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if v != 42 {
		t.Fatalf("Wait = %d, want 42", v)
	}
}

func TestRejectThenWait(t *testing.T) {
	l := New[string]()
	sentinel := errors.New("canceled")
	if err := l.Reject(sentinel); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	_, err := l.Wait()
	if !errors.Is(err, sentinel) && err != sentinel {
		t.Fatalf("Wait err = %v, want %v", err, sentinel)
	}
}

func TestDoubleSettleFails(t *testing.T) {
	l := New[int]()
	if err := l.Resolve(1); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	if err := l.Resolve(2); err != ErrAlreadySettled {
		t.Fatalf("second Resolve = %v, want ErrAlreadySettled", err)
	}
	if err := l.Reject(errors.New("x")); err != ErrAlreadySettled {
		t.Fatalf("Reject after settle = %v, want ErrAlreadySettled", err)
	}
}

func TestWaitBlocksUntilSettle(t *testing.T) {
	l := New[int]()
	var wg sync.WaitGroup
	wg.Add(1)
	resultCh := make(chan int, 1)
	go func() {
		defer wg.Done()
		v, err := l.Wait()
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		resultCh <- v
	}()

	time.Sleep(20 * time.Millisecond)
	l.Resolve(7)
	wg.Wait()

	select {
	case v := <-resultCh:
		if v != 7 {
			t.Fatalf("got %d, want 7", v)
		}
	default:
		t.Fatal("waiter never received a value")
	}
}

func TestWaitContextTimesOutWithoutSettling(t *testing.T) {
	l := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.WaitContext(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitContext err = %v, want DeadlineExceeded", err)
	}
	if l.Settled() {
		t.Fatal("latch should remain pending after a context timeout")
	}

	// A later resolve should still reach a fresh waiter.
	go l.Resolve(9)
	v, err := l.Wait()
	if err != nil || v != 9 {
		t.Fatalf("Wait after late resolve = (%d, %v), want (9, nil)", v, err)
	}
}

func TestReplacingAPendingLatchRequiresRejectFirst(t *testing.T) {
	// Mirrors the NavigationTracker invariant: a pending latch must be
	// rejected before it is discarded so in-flight awaiters fail instead of
	// leaking forever.
	pending := New[string]()
	done := make(chan error, 1)
	go func() {
		_, err := pending.Wait()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	canceled := errors.New("canceled")
	pending.Reject(canceled)

	if err := <-done; err != canceled {
		t.Fatalf("awaiter observed %v, want %v", err, canceled)
	}
}
