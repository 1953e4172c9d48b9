package mapper

import (
	"context"
	"testing"
	"time"
)

// TestWaitNoneReturnsImmediately covers the "none" wait condition: the
// command returns before any lifecycle event fires.
func TestWaitNoneReturnsImmediately(t *testing.T) {
	tr := NewNavigationTracker()
	nav := tr.StartNavigation("ctx1", "nav1", "https://example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := tr.Wait(ctx, nav, WaitNone); err != nil {
		t.Fatalf("Wait(none) = %v, want nil", err)
	}
}

// TestWaitInteractiveUnblocksOnDOMContentLoaded: "interactive" resolves on
// DOMContentLoaded without waiting for load.
func TestWaitInteractiveUnblocksOnDOMContentLoaded(t *testing.T) {
	tr := NewNavigationTracker()
	nav := tr.StartNavigation("ctx1", "nav1", "https://example.com")

	done := make(chan error, 1)
	go func() {
		done <- tr.Wait(context.Background(), nav, WaitInteractive)
	}()

	tr.DOMContentLoaded("ctx1", "nav1")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait(interactive) = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait(interactive) never unblocked")
	}
}

// TestWaitCompleteUnblocksOnLoad: "complete" resolves only on load.
func TestWaitCompleteUnblocksOnLoad(t *testing.T) {
	tr := NewNavigationTracker()
	nav := tr.StartNavigation("ctx1", "nav1", "https://example.com")

	done := make(chan error, 1)
	go func() {
		done <- tr.Wait(context.Background(), nav, WaitComplete)
	}()

	tr.Load("ctx1", "nav1")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait(complete) = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait(complete) never unblocked")
	}
}

// TestNewNavigationSupersedesPending covers the invariant that starting a
// second navigation on the same context aborts the first pending one
// rather than leaving it hanging forever.
func TestNewNavigationSupersedesPending(t *testing.T) {
	tr := NewNavigationTracker()
	first := tr.StartNavigation("ctx1", "nav1", "https://example.com/first")

	done := make(chan error, 1)
	go func() {
		done <- tr.Wait(context.Background(), first, WaitComplete)
	}()

	// Give the waiter a chance to start blocking before superseding.
	time.Sleep(10 * time.Millisecond)
	tr.StartNavigation("ctx1", "nav2", "https://example.com/second")

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the superseded navigation's Wait to fail")
		}
	case <-time.After(time.Second):
		t.Fatal("superseded navigation's Wait never unblocked")
	}
}

func TestFailedNavigationPropagatesToWaiters(t *testing.T) {
	tr := NewNavigationTracker()
	nav := tr.StartNavigation("ctx1", "nav1", "https://example.com")

	done := make(chan error, 1)
	go func() {
		done <- tr.Wait(context.Background(), nav, WaitInteractive)
	}()

	time.Sleep(10 * time.Millisecond)
	tr.Failed("ctx1", "nav1", context.DeadlineExceeded)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Wait to return an error after Failed")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait never unblocked after Failed")
	}
}

// TestLifecycleLoaderMismatchIgnored covers the invariant that once a
// loader id is current, lifecycle events tagged with a different loader id
// must not resolve the current navigation's latches.
func TestLifecycleLoaderMismatchIgnored(t *testing.T) {
	tr := NewNavigationTracker()
	tr.SetLoader("ctx1", "L1")

	if tr.LoaderMatches("ctx1", "L2") {
		t.Fatal("lifecycle event for a non-current loader id must be ignored")
	}
	if !tr.LoaderMatches("ctx1", "L1") {
		t.Fatal("lifecycle event for the current loader id must apply")
	}
}

// TestFirstObservedLoaderIsAdopted covers the late-attach edge case: if the
// mapper attached late and never saw init/commit, the first loader id it
// observes becomes the current one.
func TestFirstObservedLoaderIsAdopted(t *testing.T) {
	tr := NewNavigationTracker()

	if !tr.LoaderMatches("ctx1", "L9") {
		t.Fatal("first observed loader id must be adopted, not ignored")
	}
	if tr.LoaderMatches("ctx1", "L10") {
		t.Fatal("a different loader id after adoption must be ignored")
	}
}

// TestUntaggedLifecycleAlwaysMatches covers events CDP delivers without a
// loader id (same-document updates): they always apply.
func TestUntaggedLifecycleAlwaysMatches(t *testing.T) {
	tr := NewNavigationTracker()
	tr.SetLoader("ctx1", "L1")
	if !tr.LoaderMatches("ctx1", "") {
		t.Fatal("an event with no loader id must always match")
	}
}

// TestInitialNavigationIsMarked covers the synthetic about:blank
// navigation: StartInitial flags it so no BiDi events surface for it, and
// it never supersedes an existing navigation.
func TestInitialNavigationIsMarked(t *testing.T) {
	tr := NewNavigationTracker()
	nav := tr.StartInitial("ctx1", "about:blank")
	if !nav.Initial {
		t.Fatal("StartInitial must mark the navigation as initial")
	}

	real := tr.StartNavigation("ctx1", "nav1", "https://example.com")
	if again := tr.StartInitial("ctx1", "about:blank"); again != real {
		t.Fatal("StartInitial must not supersede an existing navigation")
	}
}
