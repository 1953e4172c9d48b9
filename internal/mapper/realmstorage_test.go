package mapper

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestClearSessionDropsOnlyThatSessionsRealms: a detaching worker target
// must take exactly its own realms with it, leaving window realms on
// other sessions untouched.
func TestClearSessionDropsOnlyThatSessionsRealms(t *testing.T) {
	rs := NewRealmStorage()
	rs.Add(&Realm{ID: "realm-1", ContextID: "ctx1", Type: "window", SessionID: "sessA", ExecutionCtxID: 1, IsDefault: true})
	rs.Add(&Realm{ID: "realm-2", Type: "dedicated-worker", SessionID: "sessB", ExecutionCtxID: 2})
	rs.Add(&Realm{ID: "realm-3", Type: "service-worker", SessionID: "sessB", ExecutionCtxID: 3, Sandbox: "x"})

	removed := rs.ClearSession("sessB")
	sort.Strings(removed)
	if diff := cmp.Diff([]string{"realm-2", "realm-3"}, removed); diff != "" {
		t.Fatalf("removed realms mismatch (-want +got):\n%s", diff)
	}

	if _, err := rs.Get("realm-1"); err != nil {
		t.Fatalf("window realm on another session was dropped: %v", err)
	}
	if _, err := rs.Get("realm-2"); err == nil {
		t.Fatal("worker realm survived ClearSession")
	}
}

// TestWorkerRealmTypeMapping: CDP worker target types map onto the BiDi
// realm type vocabulary.
func TestWorkerRealmTypeMapping(t *testing.T) {
	want := map[string]string{
		"worker":         "dedicated-worker",
		"shared_worker":  "shared-worker",
		"service_worker": "service-worker",
		"worklet":        "worklet",
	}
	if diff := cmp.Diff(want, workerRealmTypes); diff != "" {
		t.Fatalf("worker realm type mapping mismatch (-want +got):\n%s", diff)
	}
}
