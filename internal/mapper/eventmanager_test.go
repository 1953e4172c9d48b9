package mapper

import (
	"testing"
	"time"
)

// TestEventsDeliveredInEnqueueOrderDespiteSlowResolver covers the Event
// Manager's core guarantee: an event whose params resolve slowly must
// still be delivered before events enqueued after it, never after.
func TestEventsDeliveredInEnqueueOrderDespiteSlowResolver(t *testing.T) {
	sm := NewSubscriptionManager(flatTopLevel(nil))
	sm.Subscribe("browsingContext.load", "", "")

	var delivered []string
	done := make(chan struct{}, 10)
	em := NewEventManager(sm, func(method string, params any, channel *string) {
		delivered = append(delivered, params.(string))
		done <- struct{}{}
	})
	t.Cleanup(em.Close)

	em.Emit("browsingContext.load", "", func() (any, error) {
		time.Sleep(50 * time.Millisecond) // slow first event
		return "first", nil
	})
	em.Emit("browsingContext.load", "", func() (any, error) {
		return "second", nil // fast second event
	})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("events never delivered")
		}
	}

	if len(delivered) != 2 || delivered[0] != "first" || delivered[1] != "second" {
		t.Fatalf("delivered = %v, want [first second]", delivered)
	}
}

// TestEventsNotSubscribedAreNotDelivered covers that the Event Manager
// consults subscriptions before invoking the sink at all.
func TestEventsNotSubscribedAreNotDelivered(t *testing.T) {
	sm := NewSubscriptionManager(flatTopLevel(nil))

	called := make(chan struct{}, 1)
	em := NewEventManager(sm, func(method string, params any, channel *string) {
		called <- struct{}{}
	})
	t.Cleanup(em.Close)
	em.Emit("browsingContext.load", "", func() (any, error) { return "x", nil })

	select {
	case <-called:
		t.Fatal("sink should not be called for an unsubscribed event")
	case <-time.After(100 * time.Millisecond):
	}
}
