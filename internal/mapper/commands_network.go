package mapper

import (
	"encoding/json"

	"github.com/vibium/mapper/internal/bidierr"
	"github.com/vibium/mapper/internal/cdp"
)

// networkAddInterceptParams mirrors network.addIntercept's params.
// URLPatterns decodes each entry as a literal or structured network.UrlPattern
//; an id is allocated and the registration kept on
// InterceptStorage so removeIntercept can validate it and every paused
// request can be matched against it individually.
type networkAddInterceptParams struct {
	URLPatterns []URLPattern `json:"urlPatterns,omitempty"`
	Phases      []string     `json:"phases,omitempty"`
	Contexts    []string     `json:"contexts,omitempty"`
}

func (s *Session) cmdNetworkAddIntercept(raw json.RawMessage) (any, error) {
	var p networkAddInterceptParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Phases) == 0 {
		return nil, bidierr.InvalidArgumentf("phases must not be empty")
	}

	phases := make([]InterceptPhase, 0, len(p.Phases))
	for _, ph := range p.Phases {
		internal, err := biDiPhaseToInternal(ph)
		if err != nil {
			return nil, err
		}
		phases = append(phases, internal)
	}
	for _, contextID := range p.Contexts {
		if _, err := s.ctxs.Get(contextID); err != nil {
			return nil, err
		}
	}

	ic := s.intercepts.Add(phases, p.Contexts, p.URLPatterns)
	s.refreshNetworkInterception()
	return map[string]any{"intercept": ic.ID}, nil
}

// refreshNetworkInterception recomputes the Fetch domain's pattern/
// handleAuthRequests state from every currently registered intercept and
// applies it to every attached top-level target. CDP's own pause is necessarily coarser than a single
// intercept's scoping (a per-context or per-pattern Fetch.enable doesn't
// exist), so every target is armed the same way once any intercept exists
// anywhere; the precise per-request, per-intercept match happens
// mapper-side in onRequestPaused/onAuthRequired, which auto-continues
// anything that didn't actually match.
func (s *Session) refreshNetworkInterception() {
	patterns, handleAuth := s.intercepts.fetchState()
	enable := len(patterns) > 0
	if !enable {
		// Before Fetch.disable, let every currently intercepted request
		// pass its next phase; one retry covers pauses that arrive while
		// the first batch is draining.
		for i := 0; i < 2; i++ {
			latches := s.network.PausedLatches()
			if len(latches) == 0 {
				break
			}
			for _, l := range latches {
				_, _ = l.Wait()
			}
		}
	}
	for _, id := range s.ctxs.AllTopLevel() {
		bc, err := s.ctxs.Get(id)
		if err != nil {
			continue
		}
		target, ok := s.targets.Target(bc.TargetID)
		if !ok {
			continue
		}
		_ = target.SetNetworkInterception(enable, patterns, handleAuth)
	}
}

type networkRemoveInterceptParams struct {
	Intercept string `json:"intercept"`
}

func (s *Session) cmdNetworkRemoveIntercept(raw json.RawMessage) (any, error) {
	var p networkRemoveInterceptParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if err := s.intercepts.Remove(p.Intercept); err != nil {
		return nil, err
	}
	s.refreshNetworkInterception()
	return map[string]any{}, nil
}

type networkRequestDispositionParams struct {
	Request string `json:"request"`
}

func (s *Session) resolvePausedRequest(requestID string) (*NetworkRequest, *CdpTarget, error) {
	req, err := s.network.Get(requestID)
	if err != nil {
		return nil, nil, err
	}
	target, ok := s.targets.Target(req.ContextID)
	if !ok {
		return nil, nil, bidierr.NoSuchRequestErr(requestID)
	}
	return req, target, nil
}

func (s *Session) cmdNetworkContinueRequest(raw json.RawMessage) (any, error) {
	var p networkRequestDispositionParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	_, target, err := s.resolvePausedRequest(p.Request)
	if err != nil {
		return nil, err
	}
	fetchID, err := s.network.Disposition(p.Request)
	if err != nil {
		return nil, err
	}
	if err := target.Call("Fetch.continueRequest", cdp.FetchContinueRequestParams{RequestID: fetchID}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Fetch.continueRequest failed")
	}
	return map[string]any{}, nil
}

type networkFailRequestParams struct {
	Request string `json:"request"`
}

func (s *Session) cmdNetworkFailRequest(raw json.RawMessage) (any, error) {
	var p networkFailRequestParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	_, target, err := s.resolvePausedRequest(p.Request)
	if err != nil {
		return nil, err
	}
	fetchID, err := s.network.Disposition(p.Request)
	if err != nil {
		return nil, err
	}
	if err := target.Call("Fetch.failRequest", cdp.FetchFailRequestParams{RequestID: fetchID, ErrorReason: "Failed"}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Fetch.failRequest failed")
	}
	return map[string]any{}, nil
}

type networkProvideResponseParams struct {
	Request      string        `json:"request"`
	StatusCode   int           `json:"statusCode,omitempty"`
	ReasonPhrase string        `json:"reasonPhrase,omitempty"`
	Headers      []cdp.HeaderEntry `json:"headers,omitempty"`
	Body         string        `json:"body,omitempty"`
}

type networkContinueResponseParams struct {
	Request      string            `json:"request"`
	StatusCode   int               `json:"statusCode,omitempty"`
	ReasonPhrase string            `json:"reasonPhrase,omitempty"`
	Headers      []cdp.HeaderEntry `json:"headers,omitempty"`
}

// cmdNetworkContinueResponse always re-enters Fetch.continueRequest rather
// than conditionally skipping it when no modifications are given — one of
// the two behaviors the upstream implementations disagree on.
// Always continuing keeps the state machine simple: CDP's continueRequest
// is itself a no-op when every field is already what it would pick.
func (s *Session) cmdNetworkContinueResponse(raw json.RawMessage) (any, error) {
	var p networkContinueResponseParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	_, target, err := s.resolvePausedRequest(p.Request)
	if err != nil {
		return nil, err
	}
	fetchID, err := s.network.Disposition(p.Request)
	if err != nil {
		return nil, err
	}
	if err := target.Call("Fetch.continueRequest", cdp.FetchContinueRequestParams{RequestID: fetchID}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Fetch.continueRequest failed")
	}
	return map[string]any{}, nil
}

type networkContinueWithAuthParams struct {
	Request string                `json:"request"`
	Action  string                `json:"action"` // "default" | "cancel" | "provideCredentials"
	Credentials *authCredentials `json:"credentials,omitempty"`
}

type authCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Session) cmdNetworkContinueWithAuth(raw json.RawMessage) (any, error) {
	var p networkContinueWithAuthParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	_, target, err := s.resolvePausedRequest(p.Request)
	if err != nil {
		return nil, err
	}
	fetchID, err := s.network.Disposition(p.Request)
	if err != nil {
		return nil, err
	}

	var response cdp.AuthChallengeResponse
	switch p.Action {
	case "provideCredentials":
		response.Response = "ProvideCredentials"
		if p.Credentials != nil {
			response.Username = p.Credentials.Username
			response.Password = p.Credentials.Password
		}
	case "cancel":
		response.Response = "CancelAuth"
	case "default", "":
		response.Response = "Default"
	default:
		return nil, bidierr.InvalidArgumentf("unknown auth action %q", p.Action)
	}
	if err := target.Call("Fetch.continueWithAuth", cdp.FetchContinueWithAuthParams{
		RequestID: fetchID, AuthChallengeResponse: response,
	}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Fetch.continueWithAuth failed")
	}
	return map[string]any{}, nil
}

func (s *Session) cmdNetworkProvideResponse(raw json.RawMessage) (any, error) {
	var p networkProvideResponseParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	_, target, err := s.resolvePausedRequest(p.Request)
	if err != nil {
		return nil, err
	}
	fetchID, err := s.network.Disposition(p.Request)
	if err != nil {
		return nil, err
	}
	statusCode := p.StatusCode
	if statusCode == 0 {
		statusCode = 200
	}
	if err := target.Call("Fetch.fulfillRequest", cdp.FetchFulfillRequestParams{
		RequestID:       fetchID,
		ResponseCode:    statusCode,
		ResponseHeaders: p.Headers,
		Body:            p.Body,
		ResponsePhrase:  p.ReasonPhrase,
	}, nil); err != nil {
		return nil, bidierr.Wrap(bidierr.UnknownError, err, "Fetch.fulfillRequest failed")
	}
	return map[string]any{}, nil
}
