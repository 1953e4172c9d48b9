package mapper

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func flatTopLevel(children map[string]string) func(string) (string, bool) {
	return func(id string) (string, bool) {
		for cur := id; ; {
			parent, ok := children[cur]
			if !ok {
				return cur, true
			}
			cur = parent
		}
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	sm := NewSubscriptionManager(flatTopLevel(nil))
	sm.Subscribe("browsingContext.load", "", "")
	sm.Subscribe("browsingContext.load", "", "")

	channels := sm.ChannelsSubscribedTo("browsingContext.load", "")
	if diff := cmp.Diff([]string{""}, channels); diff != "" {
		t.Fatalf("unexpected channels (-want +got):\n%s", diff)
	}
}

func TestSubscribeModuleExpandsToAtomicEvents(t *testing.T) {
	sm := NewSubscriptionManager(flatTopLevel(nil))
	sm.Subscribe("browsingContext", "", "ch1")

	if !sm.IsSubscribedTo("browsingContext.load", "") {
		t.Fatal("expected module subscription to cover browsingContext.load")
	}
	if !sm.IsSubscribedTo("browsingContext.contextCreated", "") {
		t.Fatal("expected module subscription to cover browsingContext.contextCreated")
	}
}

func TestUnsubscribeUnknownReturnsInvalidArgument(t *testing.T) {
	sm := NewSubscriptionManager(flatTopLevel(nil))
	err := sm.Unsubscribe("browsingContext.load", "", "")
	if err == nil {
		t.Fatal("expected error for unsubscribe with no prior subscription")
	}
}

func TestUnsubscribeAllIsAtomic(t *testing.T) {
	sm := NewSubscriptionManager(flatTopLevel(nil))
	sm.Subscribe("browsingContext.load", "", "")

	err := sm.UnsubscribeAll([]UnsubscribeAllEntry{
		{Event: "browsingContext.load"},
		{Event: "network.beforeRequestSent"}, // never subscribed
	}, "")
	if err == nil {
		t.Fatal("expected UnsubscribeAll to fail wholesale")
	}
	// The valid entry must not have been removed by the failed batch.
	if !sm.IsSubscribedTo("browsingContext.load", "") {
		t.Fatal("UnsubscribeAll must not partially apply on failure")
	}
}

// TestChannelPriorityOrdering: events fan out to
// channels in subscription order (earliest subscriber first).
func TestChannelPriorityOrdering(t *testing.T) {
	sm := NewSubscriptionManager(flatTopLevel(nil))
	sm.Subscribe("browsingContext.load", "", "second")
	sm.Subscribe("browsingContext.load", "", "first-but-registered-second")
	// Re-subscribe the earlier channel from a different call; priority must
	// reflect the original registration order, not call order.
	sm.Subscribe("browsingContext.load", "", "second")

	got := sm.ChannelsSubscribedTo("browsingContext.load", "")
	want := []string{"second", "first-but-registered-second"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected channel order (-want +got):\n%s", diff)
	}
}

// TestGlobalAndPerContextSubscriptionsBothApply covers the case: a
// global subscription and a context-scoped subscription both deliver to
// their respective channels for the same event on the same context.
func TestGlobalAndPerContextSubscriptionsBothApply(t *testing.T) {
	children := map[string]string{"child1": "top1"}
	sm := NewSubscriptionManager(flatTopLevel(children))

	sm.Subscribe("network.beforeRequestSent", "", "global-ch")
	sm.Subscribe("network.beforeRequestSent", "top1", "scoped-ch")

	got := sm.ChannelsSubscribedTo("network.beforeRequestSent", "child1")
	want := []string{"global-ch", "scoped-ch"}
	if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("unexpected channels (-want +got):\n%s", diff)
	}

	// A sibling context with no scoped subscription sees only the global one.
	other := sm.ChannelsSubscribedTo("network.beforeRequestSent", "top2")
	if len(other) != 1 || other[0] != "global-ch" {
		t.Fatalf("expected only the global channel for an unrelated context, got %v", other)
	}
}

// TestNestedContextSubscriptionResolvesToTopLevel: a
// subscription issued against a nested (iframe) context id is keyed under
// its top-level ancestor.
func TestNestedContextSubscriptionResolvesToTopLevel(t *testing.T) {
	children := map[string]string{"iframe1": "top1"}
	sm := NewSubscriptionManager(flatTopLevel(children))

	sm.Subscribe("browsingContext.load", "iframe1", "ch")

	got := sm.ChannelsSubscribedTo("browsingContext.load", "top1")
	if diff := cmp.Diff([]string{"ch"}, got); diff != "" {
		t.Fatalf("unexpected channels (-want +got):\n%s", diff)
	}
}

func TestCDPModuleSubscriptionMatchedByPresenceNotName(t *testing.T) {
	sm := NewSubscriptionManager(flatTopLevel(nil))
	sm.Subscribe("cdp", "", "cdp-ch")

	if !sm.IsSubscribedTo("cdp.Network.requestWillBeSent", "") {
		t.Fatal("expected cdp subscription to cover any cdp.* event")
	}
	got := sm.ChannelsSubscribedToCDP("")
	if diff := cmp.Diff([]string{"cdp-ch"}, got); diff != "" {
		t.Fatalf("unexpected cdp channels (-want +got):\n%s", diff)
	}
}

// TestCDPModuleSubscriptionCoversPassthroughEvents covers the goog:cdp
// passthrough: a whole-module cdp subscription matches any
// goog:cdp.<Event> name by prefix at lookup time, under either module
// spelling.
func TestCDPModuleSubscriptionCoversPassthroughEvents(t *testing.T) {
	sm := NewSubscriptionManager(flatTopLevel(nil))
	sm.Subscribe("cdp", "", "ch1")

	channels := sm.ChannelsSubscribedTo("goog:cdp.Network.requestWillBeSent", "")
	if diff := cmp.Diff([]string{"ch1"}, channels); diff != "" {
		t.Fatalf("unexpected channels (-want +got):\n%s", diff)
	}
	if !sm.IsSubscribedTo("goog:cdp.Page.frameNavigated", "") {
		t.Fatal("cdp module subscription must cover goog:cdp.* events")
	}

	if err := sm.Unsubscribe("goog:cdp", "", "ch1"); err != nil {
		t.Fatalf("Unsubscribe(goog:cdp) = %v, want nil (alias of cdp)", err)
	}
	if sm.IsSubscribedTo("goog:cdp.Page.frameNavigated", "") {
		t.Fatal("unsubscribing the cdp module must drop passthrough coverage")
	}
}

// TestCDPChannelOrderMergesWithExactNames: an exact-name subscription on a
// single passthrough event and a whole-module one sort together by their
// minimum priority.
func TestCDPChannelOrderMergesWithExactNames(t *testing.T) {
	sm := NewSubscriptionManager(flatTopLevel(nil))
	sm.Subscribe("goog:cdp.Network.requestWillBeSent", "", "exact")
	sm.Subscribe("cdp", "", "module")

	channels := sm.ChannelsSubscribedTo("goog:cdp.Network.requestWillBeSent", "")
	if diff := cmp.Diff([]string{"exact", "module"}, channels); diff != "" {
		t.Fatalf("unexpected channel order (-want +got):\n%s", diff)
	}
}
