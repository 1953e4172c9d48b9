package mapper

import (
	"fmt"
	"sync"

	"github.com/vibium/mapper/internal/bidierr"
	"github.com/vibium/mapper/internal/latch"
)

// NetworkStage is where a request currently sits in the CDP event
// sequence, used to pick the right BiDi event name to emit and to reject
// continuation commands issued out of order.
type NetworkStage string

const (
	StageBeforeRequestSent NetworkStage = "beforeRequestSent"
	StageResponseStarted   NetworkStage = "responseStarted"
	StageResponseCompleted NetworkStage = "responseCompleted"
	StageFetchError        NetworkStage = "fetchError"
)

// InterceptPhase is the Fetch domain's requestStage: intercepted before
// the request leaves the renderer, or after the response headers arrive.
type InterceptPhase string

const (
	PhaseRequest  InterceptPhase = "Request"
	PhaseResponse InterceptPhase = "Response"
	PhaseAuth     InterceptPhase = "Auth"
)

// NetworkRequest is one in-flight or completed request, correlating the
// Network.* reporting events with any Fetch.* interception CDP fires for
// the same requestId. It is grounded on the same one-shot-channel idiom as
// Navigation, generalized to the extra "paused, waiting for a BiDi
// continuation command" state interception adds.
type NetworkRequest struct {
	ID        string
	ContextID string
	Stage     NetworkStage

	URL    string
	Method string

	// RedirectCount tracks how many times this logical request has been
	// rotated out by an HTTP redirect: each redirect gives
	// rise to a fresh NetworkRequest under the same CDP request id, with
	// RedirectCount one higher than the hop it replaced.
	RedirectCount int

	// Intercepts holds the ids of every registered intercept that matched
	// this request the last time it was paused, emitted verbatim as
	// network.beforeRequestSent/responseStarted/authRequired's
	// "intercepts" field.
	Intercepts []string

	// fetchID is set while Fetch.requestPaused is holding this request;
	// continuation commands (network.continueRequest etc.) target it via
	// Fetch.continueRequest/failRequest/fulfillRequest/continueWithAuth.
	fetchID string
	phase   InterceptPhase

	// paused resolves once a BiDi command issues a disposition for this
	// pause (continue/fail/provideResponse); used so a second disposition
	// command on the same pause fails cleanly instead of racing CDP.
	paused *latch.Latch[struct{}]

	// hasNetworkEvent/hasExtraInfo/hasFetchPaused/emittedBeforeRequestSent
	// implement the the correlation invariant: exactly one
	// network.beforeRequestSent fires once requestWillBeSent has arrived
	// and at least one of requestWillBeSentExtraInfo or a matched
	// Fetch.requestPaused has also arrived, regardless of which order CDP
	// delivers them in.
	hasNetworkEvent          bool
	hasExtraInfo             bool
	hasFetchPaused           bool
	emittedBeforeRequestSent bool
	Blocked                  bool
}

// NetworkStorage is the network interception state machine: it correlates Network.* and Fetch.* CDP events by requestId and
// exposes the paused-request latches (PausedLatches) that
// Session.refreshNetworkInterception waits on before Fetch.disable; the
// intercept patterns themselves live in InterceptStorage.
type NetworkStorage struct {
	mu       sync.Mutex
	requests map[string]*NetworkRequest
}

func NewNetworkStorage() *NetworkStorage {
	return &NetworkStorage{requests: make(map[string]*NetworkRequest)}
}

// BeforeRequestSent records a new request from Network.requestWillBeSent.
func (s *NetworkStorage) BeforeRequestSent(requestID, contextID, url, method string) *NetworkRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		req = &NetworkRequest{ID: requestID, ContextID: contextID, Stage: StageBeforeRequestSent, URL: url, Method: method}
		s.requests[requestID] = req
	}
	req.hasNetworkEvent = true
	req.URL = url
	req.Method = method
	if req.ContextID == "" {
		req.ContextID = contextID
	}
	return req
}

// ExtraInfoArrived records that Network.requestWillBeSentExtraInfo has
// arrived for requestID, which may precede or follow the main
// requestWillBeSent event.
func (s *NetworkStorage) ExtraInfoArrived(requestID string) (*NetworkRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		req = &NetworkRequest{ID: requestID, Stage: StageBeforeRequestSent}
		s.requests[requestID] = req
	}
	req.hasExtraInfo = true
	return req, ok
}

// ShouldEmitBeforeRequestSent reports whether req has just become eligible
// for network.beforeRequestSent (both required sides have arrived) and has
// not already emitted it; it flips emittedBeforeRequestSent so later calls
// for the same request always return false, satisfying the "exactly one"
// invariant regardless of how many more of the correlated CDP events fire.
func (req *NetworkRequest) ShouldEmitBeforeRequestSent() bool {
	if req.emittedBeforeRequestSent {
		return false
	}
	if !req.hasNetworkEvent || !(req.hasExtraInfo || req.hasFetchPaused) {
		return false
	}
	req.emittedBeforeRequestSent = true
	return true
}

// ResponseStarted advances a request on Network.responseReceived.
func (s *NetworkStorage) ResponseStarted(requestID string) (*NetworkRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, false
	}
	req.Stage = StageResponseStarted
	return req, true
}

// Completed advances a request on Network.loadingFinished.
func (s *NetworkStorage) Completed(requestID string) (*NetworkRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, false
	}
	req.Stage = StageResponseCompleted
	return req, true
}

// Failed advances a request on Network.loadingFailed.
func (s *NetworkStorage) Failed(requestID string) (*NetworkRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, false
	}
	req.Stage = StageFetchError
	return req, true
}

// Remove drops a completed/failed request's bookkeeping, called once its
// terminal event has been delivered to BiDi subscribers.
func (s *NetworkStorage) Remove(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, requestID)
}

// Get looks up a request by its BiDi request id, returning no-such-request
// if the mapper has no bookkeeping for it.
func (s *NetworkStorage) Get(requestID string) (*NetworkRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, bidierr.NoSuchRequestErr(requestID)
	}
	return req, nil
}

// Pause attaches a Fetch.requestPaused pause to the request at fetchID,
// creating bookkeeping for it if Fetch fired before (or instead of) the
// matching Network event, which CDP allows. matched is the set of
// registered intercept ids that actually matched this request in this
// phase (InterceptStorage.Matching); Blocked is true only if at least one
// enabled, but only BiDi-matched ones are reported as blocked.
func (s *NetworkStorage) Pause(requestID, fetchID, contextID, url, method string, phase InterceptPhase, matched []string) *NetworkRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		req = &NetworkRequest{ID: requestID, ContextID: contextID, URL: url, Method: method, Stage: StageBeforeRequestSent}
		s.requests[requestID] = req
	}
	req.fetchID = fetchID
	req.phase = phase
	req.paused = latch.New[struct{}]()
	req.hasFetchPaused = true
	req.Intercepts = matched
	req.Blocked = len(matched) > 0
	return req
}

// Redirect rotates req out on an HTTP redirect: CDP never
// changes a request's requestId across a redirect chain, so the old hop is
// reported as completed under its existing BiDi id and a fresh
// NetworkRequest with RedirectCount+1 takes its place under the same map
// key, ready to be re-correlated by the requestWillBeSent that always
// immediately follows a redirectResponse. Returns the old hop's BiDi id.
func (s *NetworkStorage) Redirect(requestID, contextID, url, method string) (oldID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.requests[requestID]
	redirectCount := 0
	oldID = requestID
	if ok {
		redirectCount = prev.RedirectCount + 1
		oldID = prev.ID
		if prev.ContextID != "" {
			contextID = prev.ContextID
		}
	}
	s.requests[requestID] = &NetworkRequest{
		ID:            fmt.Sprintf("%s-redirect-%d", requestID, redirectCount),
		ContextID:     contextID,
		RedirectCount: redirectCount,
		URL:           url,
		Method:        method,
		Stage:         StageBeforeRequestSent,
	}
	return oldID
}

// PausedLatches returns the disposition latches of every request currently
// holding an unsettled Fetch pause. Session.refreshNetworkInterception
// waits on these before issuing Fetch.disable, so a paused request is never
// abandoned mid-phase by an intercept removal.
func (s *NetworkStorage) PausedLatches() []*latch.Latch[struct{}] {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*latch.Latch[struct{}]
	for _, req := range s.requests {
		if req.paused != nil && !req.paused.Settled() {
			out = append(out, req.paused)
		}
	}
	return out
}

// Disposition marks req's current pause as resolved (invariant:
// exactly one continuation command may settle a given pause) and returns
// the CDP fetchID to issue the continuation against, or an error if the
// pause was already settled or there is no pause to settle.
func (s *NetworkStorage) Disposition(requestID string) (fetchID string, err error) {
	s.mu.Lock()
	req, ok := s.requests[requestID]
	s.mu.Unlock()
	if !ok || req.paused == nil {
		return "", bidierr.NoSuchRequestErr(requestID)
	}
	if resolveErr := req.paused.Resolve(struct{}{}); resolveErr != nil {
		return "", bidierr.InvalidArgumentf("request %q is not blocked", requestID)
	}
	return req.fetchID, nil
}

