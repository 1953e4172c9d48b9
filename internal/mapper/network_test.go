package mapper

import "testing"

// TestRequestLifecycleAdvancesStages covers the case: a request
// observed through its full Network.* event sequence ends in
// responseCompleted.
func TestRequestLifecycleAdvancesStages(t *testing.T) {
	s := NewNetworkStorage()
	s.BeforeRequestSent("req1", "ctx1", "https://example.com", "GET")

	if _, ok := s.ResponseStarted("req1"); !ok {
		t.Fatal("expected ResponseStarted to find req1")
	}
	req, ok := s.Completed("req1")
	if !ok {
		t.Fatal("expected Completed to find req1")
	}
	if req.Stage != StageResponseCompleted {
		t.Fatalf("Stage = %v, want responseCompleted", req.Stage)
	}
}

func TestUnknownRequestOperationsReportMissing(t *testing.T) {
	s := NewNetworkStorage()
	if _, ok := s.ResponseStarted("ghost"); ok {
		t.Fatal("expected ResponseStarted on unknown request to report missing")
	}
	if _, err := s.Get("ghost"); err == nil {
		t.Fatal("expected Get on unknown request to fail with no-such-request")
	}
}

// TestDispositionSettlesPauseExactlyOnce covers the invariant that a
// paused (intercepted) request can only be continued/failed/fulfilled
// once.
func TestDispositionSettlesPauseExactlyOnce(t *testing.T) {
	s := NewNetworkStorage()
	s.BeforeRequestSent("req1", "ctx1", "https://example.com", "GET")
	s.Pause("req1", "fetch1", "ctx1", "https://example.com", "GET", PhaseRequest, []string{"intercept-1"})

	fetchID, err := s.Disposition("req1")
	if err != nil {
		t.Fatalf("first Disposition: %v", err)
	}
	if fetchID != "fetch1" {
		t.Fatalf("fetchID = %q, want fetch1", fetchID)
	}

	if _, err := s.Disposition("req1"); err == nil {
		t.Fatal("expected second Disposition on the same pause to fail")
	}
}

// TestInterceptStorageValidatesUnknownID: removeIntercept on
// an id that was never registered (or already removed) must fail rather
// than silently succeed.
func TestInterceptStorageValidatesUnknownID(t *testing.T) {
	s := NewInterceptStorage()
	ic := s.Add([]InterceptPhase{PhaseRequest}, nil, nil)

	if err := s.Remove(ic.ID); err != nil {
		t.Fatalf("Remove of a registered id: %v", err)
	}
	if err := s.Remove(ic.ID); err == nil {
		t.Fatal("expected Remove of an already-removed id to fail")
	}
	if err := s.Remove("intercept-999"); err == nil {
		t.Fatal("expected Remove of an unknown id to fail")
	}
}

// TestMatchingScopesByPhaseContextAndPattern exercises the intercept matching
// algorithm and testable property 5: an intercept only matches requests
// that satisfy every dimension it constrains.
func TestMatchingScopesByPhaseContextAndPattern(t *testing.T) {
	s := NewInterceptStorage()
	ic := s.Add(
		[]InterceptPhase{PhaseRequest},
		[]string{"ctx1"},
		[]URLPattern{{Type: "pattern", Hostname: "example.com"}},
	)

	if ids := s.Matching("ctx1", "https://example.com/a", PhaseRequest); len(ids) != 1 || ids[0] != ic.ID {
		t.Fatalf("expected match, got %v", ids)
	}
	if ids := s.Matching("ctx2", "https://example.com/a", PhaseRequest); len(ids) != 0 {
		t.Fatalf("expected no match for a different context, got %v", ids)
	}
	if ids := s.Matching("ctx1", "https://example.com/a", PhaseResponse); len(ids) != 0 {
		t.Fatalf("expected no match for a different phase, got %v", ids)
	}
	if ids := s.Matching("ctx1", "https://other.com/a", PhaseRequest); len(ids) != 0 {
		t.Fatalf("expected no match for a different hostname, got %v", ids)
	}
}

// TestMatchURLPatternIgnoresFragmentAndNormalizesFields covers testable
// property 5's field-by-field comparison.
func TestMatchURLPatternIgnoresFragmentAndNormalizesFields(t *testing.T) {
	pattern := URLPattern{Type: "pattern", Protocol: "HTTPS", Pathname: "search"}
	if !matchURLPattern(pattern, "https://example.com/search?q=1#frag") {
		t.Fatal("expected match ignoring fragment and normalizing case/leading slash")
	}
	if matchURLPattern(pattern, "http://example.com/search") {
		t.Fatal("expected protocol mismatch to fail")
	}
}

// TestFetchStateCoversRequestResponseAndAuthPhases covers the CDP-level
// Fetch.enable pattern/handleAuthRequests computation.
func TestFetchStateCoversRequestResponseAndAuthPhases(t *testing.T) {
	s := NewInterceptStorage()
	if patterns, handleAuth := s.fetchState(); patterns != nil || handleAuth {
		t.Fatalf("expected no patterns with no intercepts, got %v/%v", patterns, handleAuth)
	}

	s.Add([]InterceptPhase{PhaseAuth}, nil, nil)
	patterns, handleAuth := s.fetchState()
	if !handleAuth {
		t.Fatal("expected an auth-phase intercept to require handleAuthRequests")
	}
	if len(patterns) != 1 || patterns[0].RequestStage != "Request" {
		t.Fatalf("expected only a Request-stage pattern for an auth intercept, got %+v", patterns)
	}
}

// TestRedirectRotatesRequestUnderSameCDPID: CDP reuses
// one requestId across a redirect chain, so Redirect must hand back the old
// BiDi id while installing a fresh, higher-RedirectCount NetworkRequest
// under the same map key.
func TestRedirectRotatesRequestUnderSameCDPID(t *testing.T) {
	s := NewNetworkStorage()
	s.BeforeRequestSent("req1", "ctx1", "https://example.com/a", "GET")

	oldID := s.Redirect("req1", "ctx1", "https://example.com/b", "GET")
	if oldID != "req1" {
		t.Fatalf("oldID = %q, want req1", oldID)
	}
	rotated, err := s.Get("req1")
	if err != nil {
		t.Fatalf("Get after redirect: %v", err)
	}
	if rotated.RedirectCount != 1 {
		t.Fatalf("RedirectCount = %d, want 1", rotated.RedirectCount)
	}
	if rotated.ID != "req1-redirect-1" {
		t.Fatalf("ID = %q, want req1-redirect-1", rotated.ID)
	}
}
