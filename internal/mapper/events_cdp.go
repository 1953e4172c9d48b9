package mapper

import (
	"encoding/json"
	"fmt"

	"github.com/vibium/mapper/internal/cdp"
)

// This file holds the CDP event handlers Session registers in NewSession:
// the half of the reconciliation that flows CDP -> BiDi, as opposed to the
// commands_*.go files which flow BiDi -> CDP.

func (s *Session) onContextCreated(bc *BrowsingContext) {
	s.events.Emit("browsingContext.contextCreated", bc.ID, func() (any, error) {
		return map[string]any{
			"context":    bc.ID,
			"url":        bc.URL,
			"children":   nil,
			"parent":     nullableString(bc.Parent),
			"userContext": bc.UserContext,
		}, nil
	})
}

func (s *Session) onContextDestroyed(contextID string) {
	s.inputs.Forget(contextID)
	s.events.Emit("browsingContext.contextDestroyed", contextID, func() (any, error) {
		return map[string]any{"context": contextID}, nil
	})
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func (s *Session) onExecutionContextCreated(sessionID string, params json.RawMessage) {
	var evt cdp.ExecutionContextCreatedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	contextID, _ := evt.Context.AuxData["frameId"].(string)
	isDefault, _ := evt.Context.AuxData["isDefault"].(bool)
	realmType := "window"
	if kind := s.targets.WorkerKind(sessionID); kind != "" {
		// Execution contexts on a worker target's session are worker
		// realms: no owning browsing context, typed by the worker kind.
		realmType = kind
		contextID = ""
	}
	realmID := fmt.Sprintf("realm-%d", evt.Context.ID)
	realm := &Realm{
		ID:             realmID,
		ContextID:      contextID,
		Origin:         evt.Context.Origin,
		Type:           realmType,
		SessionID:      sessionID,
		ExecutionCtxID: int64(evt.Context.ID),
		IsDefault:      isDefault,
	}
	s.realms.Add(realm)

	s.events.Emit("script.realmCreated", contextID, func() (any, error) {
		payload := map[string]any{
			"realm":  realmID,
			"origin": realm.Origin,
			"type":   realmType,
		}
		if contextID != "" {
			payload["context"] = contextID
		}
		return payload, nil
	})
}

// onWorkerRealmDestroyed is the Target Manager's OnRealmDestroyed hook:
// worker realms are dropped when their target detaches, not through
// Runtime.executionContextDestroyed.
func (s *Session) onWorkerRealmDestroyed(realmID string) {
	s.events.Emit("script.realmDestroyed", "", func() (any, error) {
		return map[string]any{"realm": realmID}, nil
	})
}

func (s *Session) onExecutionContextDestroyed(params json.RawMessage) {
	var evt cdp.ExecutionContextDestroyedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	realmID, ok := s.realms.RemoveByExecutionContext(int64(evt.ExecutionContextID))
	if !ok {
		return
	}
	s.events.Emit("script.realmDestroyed", "", func() (any, error) {
		return map[string]any{"realm": realmID}, nil
	})
}

// onExecutionContextsCleared drops every realm on the session (a renderer
// swap clears them all at once, without individual
// executionContextDestroyed events).
func (s *Session) onExecutionContextsCleared(sessionID string, params json.RawMessage) {
	for _, realmID := range s.realms.ClearSession(sessionID) {
		realmID := realmID
		s.events.Emit("script.realmDestroyed", "", func() (any, error) {
			return map[string]any{"realm": realmID}, nil
		})
	}
}

// onFrameAttached creates a nested browsing context for a same-process
// iframe. OOPIFs arrive as their own targets through the Target Manager
// instead; an attach for a frame id that already exists (a swap back from
// an OOPIF, or a duplicate delivery) is ignored.
func (s *Session) onFrameAttached(sessionID string, params json.RawMessage) {
	var evt cdp.FrameAttachedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	if _, err := s.ctxs.Get(evt.FrameID); err == nil {
		return
	}
	parent, err := s.ctxs.Get(evt.ParentFrameID)
	if err != nil {
		return
	}
	bc, err := s.ctxs.CreateChild(evt.FrameID, evt.ParentFrameID)
	if err != nil {
		return
	}
	// A same-process frame shares its parent's CDP target and session.
	bc.TargetID = parent.TargetID
	bc.SessionID = sessionID
	s.onContextCreated(bc)
}

// onFrameDetached disposes the frame's context subtree. A detach with
// reason "swap" means the frame is moving out of process and will
// immediately re-attach as its own target; the context is still removed
// here and recreated by the Target Manager (OOPIF re-parenting).
func (s *Session) onFrameDetached(params json.RawMessage) {
	var evt cdp.FrameDetachedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	s.removeContextTree(evt.FrameID)
}

func (s *Session) onFrameSubtreeWillBeDetached(params json.RawMessage) {
	var evt cdp.FrameSubtreeWillBeDetachedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	s.removeContextTree(evt.FrameID)
}

func (s *Session) removeContextTree(frameID string) {
	removed := s.ctxs.Remove(frameID)
	for _, id := range removed {
		s.realms.ClearContext(id)
		s.onContextDestroyed(id)
	}
}

func (s *Session) onFrameNavigated(params json.RawMessage) {
	var evt cdp.FrameNavigatedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	contextID := evt.Frame.ID
	bc, err := s.ctxs.Get(contextID)
	if err != nil {
		return
	}
	bc.URL = evt.Frame.URL
	s.realms.ClearContext(contextID)
	if evt.Frame.LoaderID != "" {
		s.nav.SetLoader(contextID, evt.Frame.LoaderID)
	}

	// A cross-document navigation tears down the frame's children; any
	// still alive re-attach through frameAttached/attachedToTarget.
	bc.mu.RLock()
	children := append([]string(nil), bc.Children...)
	bc.mu.RUnlock()
	for _, child := range children {
		s.removeContextTree(child)
	}

	// If frameRequestedNavigation (or a navigate/reload command) already
	// registered this exact navigation, frameNavigated is just its commit
	// signal, not a new navigation; starting a fresh one here would
	// needlessly supersede the navigation the pending command is waiting
	// on.
	if cur := s.nav.Current(contextID); cur != nil && cur.URL == evt.Frame.URL {
		return
	}

	// A fresh context's very first document is the synthetic about:blank
	// navigation: track it so lifecycle latches resolve, but emit no
	// navigation events for it.
	if s.nav.Current(contextID) == nil && evt.Frame.URL == "about:blank" {
		s.nav.StartInitial(contextID, evt.Frame.URL)
		return
	}

	nav := s.nav.StartNavigation(contextID, "", evt.Frame.URL)

	s.events.Emit("browsingContext.navigationStarted", contextID, func() (any, error) {
		return map[string]any{"context": contextID, "navigation": nav.ID, "url": evt.Frame.URL}, nil
	})
}

func (s *Session) onLifecycleEvent(params json.RawMessage) {
	var evt cdp.LifecycleEventEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	switch evt.Name {
	case "init", "commit":
		s.nav.SetLoader(evt.FrameID, evt.LoaderID)
	case "DOMContentLoaded":
		if !s.nav.LoaderMatches(evt.FrameID, evt.LoaderID) {
			return
		}
		s.nav.DOMContentLoaded(evt.FrameID, "")
		s.emitLifecycleEvent("browsingContext.domContentLoaded", evt.FrameID)
	case "load":
		if !s.nav.LoaderMatches(evt.FrameID, evt.LoaderID) {
			return
		}
		s.nav.Load(evt.FrameID, "")
		s.emitLifecycleEvent("browsingContext.load", evt.FrameID)
	}
}

// emitLifecycleEvent fans out a domContentLoaded/load BiDi event tagged
// with the current navigation's id and url, unless the current navigation
// is the synthetic initial about:blank one, which never surfaces.
func (s *Session) emitLifecycleEvent(method, contextID string) {
	nav := s.nav.Current(contextID)
	if nav != nil && nav.Initial {
		return
	}
	navID, url := "", ""
	if nav != nil {
		navID, url = nav.ID, nav.URL
	}
	s.events.Emit(method, contextID, func() (any, error) {
		return map[string]any{
			"context":    contextID,
			"navigation": nullableString(navID),
			"url":        url,
		}, nil
	})
}

func (s *Session) onRequestWillBeSent(params json.RawMessage) {
	var evt cdp.RequestWillBeSentEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	if evt.RedirectResponse != nil {
		// CDP reuses the same requestId across a redirect chain; the hop
		// that just redirected is reported complete under its existing BiDi
		// id, and the requestWillBeSent that always follows a
		// redirectResponse re-correlates against the rotated-in request
		//.
		oldID := s.network.Redirect(evt.RequestID, evt.FrameID, evt.Request.URL, evt.Request.Method)
		s.events.Emit("network.responseCompleted", evt.FrameID, func() (any, error) {
			return map[string]any{"context": evt.FrameID, "request": oldID}, nil
		})
	}
	req := s.network.BeforeRequestSent(evt.RequestID, evt.FrameID, evt.Request.URL, evt.Request.Method)
	s.emitBeforeRequestSentIfReady(req)
}

// onRequestWillBeSentExtraInfo handles the half of the correlation pair
// that can arrive before or after requestWillBeSent itself: only once both sides (or a matched Fetch.requestPaused) have
// been observed does network.beforeRequestSent fire, exactly once.
func (s *Session) onRequestWillBeSentExtraInfo(params json.RawMessage) {
	var evt cdp.RequestWillBeSentExtraInfoEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	req, _ := s.network.ExtraInfoArrived(evt.RequestID)
	s.emitBeforeRequestSentIfReady(req)
}

func (s *Session) emitBeforeRequestSentIfReady(req *NetworkRequest) {
	if !req.ShouldEmitBeforeRequestSent() {
		return
	}
	s.events.Emit("network.beforeRequestSent", req.ContextID, func() (any, error) {
		return map[string]any{
			"context":    req.ContextID,
			"request":    req.ID,
			"url":        req.URL,
			"method":     req.Method,
			"isBlocked":  req.Blocked,
			"intercepts": req.Intercepts,
		}, nil
	})
}

// onResponseReceivedExtraInfo is the response-side counterpart of
// requestWillBeSentExtraInfo; responseStarted/responseCompleted are driven
// off the main Network.responseReceived/loadingFinished events, so this
// handler only needs to exist so the event is consumed rather than falling
// through unhandled.
func (s *Session) onResponseReceivedExtraInfo(params json.RawMessage) {}

func (s *Session) onAuthRequired(params json.RawMessage) {
	var evt cdp.FetchAuthRequiredEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	topLevelID, _ := s.ctxs.TopLevelID(evt.FrameID)
	matched := s.intercepts.Matching(topLevelID, evt.Request.URL, PhaseAuth)
	req := s.network.Pause(evt.RequestID, evt.RequestID, evt.FrameID, evt.Request.URL, evt.Request.Method, PhaseAuth, matched)

	if len(matched) == 0 {
		if target, ok := s.targets.Target(req.ContextID); ok {
			s.autoContinueAuth(target, req)
		}
		return
	}

	s.events.Emit("network.authRequired", req.ContextID, func() (any, error) {
		return map[string]any{
			"context":    req.ContextID,
			"request":    req.ID,
			"url":        req.URL,
			"intercepts": req.Intercepts,
		}, nil
	})
}

// autoContinueAuth answers an auth challenge with the default CDP behavior
// when no registered intercept matched it, since the client was never told
// this request was paused and so will never issue
// network.continueWithAuth for it.
func (s *Session) autoContinueAuth(target *CdpTarget, req *NetworkRequest) {
	fetchID, err := s.network.Disposition(req.ID)
	if err != nil {
		return
	}
	_ = target.Call("Fetch.continueWithAuth", cdp.FetchContinueWithAuthParams{
		RequestID:             fetchID,
		AuthChallengeResponse: cdp.AuthChallengeResponse{Response: "Default"},
	}, nil)
}

func (s *Session) onResponseReceived(params json.RawMessage) {
	var evt cdp.ResponseReceivedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	req, ok := s.network.ResponseStarted(evt.RequestID)
	if !ok {
		return
	}
	s.events.Emit("network.responseStarted", evt.FrameID, func() (any, error) {
		return map[string]any{
			"context":    evt.FrameID,
			"request":    req.ID,
			"status":     evt.Response.Status,
			"isBlocked":  req.Blocked,
			"intercepts": req.Intercepts,
		}, nil
	})
}

func (s *Session) onLoadingFinished(params json.RawMessage) {
	var evt cdp.LoadingFinishedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	req, ok := s.network.Completed(evt.RequestID)
	if !ok {
		return
	}
	s.events.Emit("network.responseCompleted", req.ContextID, func() (any, error) {
		return map[string]any{"context": req.ContextID, "request": req.ID}, nil
	})
	s.network.Remove(evt.RequestID)
}

func (s *Session) onLoadingFailed(params json.RawMessage) {
	var evt cdp.LoadingFailedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	req, ok := s.network.Failed(evt.RequestID)
	if !ok {
		return
	}
	s.events.Emit("network.fetchError", req.ContextID, func() (any, error) {
		return map[string]any{"context": req.ContextID, "request": req.ID, "errorText": evt.ErrorText}, nil
	})
	s.network.Remove(evt.RequestID)
}

func (s *Session) onRequestPaused(params json.RawMessage) {
	var evt cdp.FetchRequestPausedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	phase := PhaseRequest
	if evt.ResponseStatusCode != 0 {
		phase = PhaseResponse
	}
	networkID := evt.NetworkID
	if networkID == "" {
		networkID = evt.RequestID
	}

	topLevelID, _ := s.ctxs.TopLevelID(evt.FrameID)
	matched := s.intercepts.Matching(topLevelID, evt.Request.URL, phase)

	req := s.network.Pause(networkID, evt.RequestID, evt.FrameID, evt.Request.URL, evt.Request.Method, phase, matched)
	if req.URL == "" {
		req.URL = evt.Request.URL
	}
	if req.Method == "" {
		req.Method = evt.Request.Method
	}

	if phase == PhaseResponse {
		s.events.Emit("network.responseStarted", req.ContextID, func() (any, error) {
			return map[string]any{
				"context":    req.ContextID,
				"request":    req.ID,
				"status":     evt.ResponseStatusCode,
				"isBlocked":  req.Blocked,
				"intercepts": req.Intercepts,
			}, nil
		})
	} else {
		s.emitBeforeRequestSentIfReady(req)
	}

	if len(matched) == 0 {
		if target, ok := s.targets.Target(req.ContextID); ok {
			s.autoContinueRequest(target, req)
		}
	}
}

// autoContinueRequest waves a Fetch.requestPaused pause straight through
// when no registered intercept actually matched it: CDP's own Fetch
// pattern is necessarily coarser than BiDi's structured matching
// (refreshNetworkInterception always arms it with a broad "*" glob), so
// the mapper must settle CDP's pause itself rather than wait for a client
// disposition command the client has no reason to send for a request it
// was never told was blocked.
func (s *Session) autoContinueRequest(target *CdpTarget, req *NetworkRequest) {
	fetchID, err := s.network.Disposition(req.ID)
	if err != nil {
		return
	}
	_ = target.Call("Fetch.continueRequest", cdp.FetchContinueRequestParams{RequestID: fetchID}, nil)
}

// onNavigatedWithinDocument handles same-document navigations:
// a fragment change emits fragmentNavigated, a history.pushState/replaceState
// call emits historyUpdated; either then resolves the current navigation's
// domContentLoaded and load latches through NavigationTracker.Load, which is
// what a pending Wait(Interactive|Complete) unblocks on. There is no
// separate within-document latch.
func (s *Session) onNavigatedWithinDocument(params json.RawMessage) {
	var evt cdp.NavigatedWithinDocumentEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	s.ctxs.RecordNavigation(evt.FrameID, evt.URL)
	method := "browsingContext.historyUpdated"
	if evt.NavigationType == "fragment" {
		method = "browsingContext.fragmentNavigated"
	}
	s.events.Emit(method, evt.FrameID, func() (any, error) {
		return map[string]any{"context": evt.FrameID, "url": evt.URL}, nil
	})
	s.nav.Load(evt.FrameID, "")
}

// onFrameRequestedNavigation handles Page.frameRequestedNavigation. When it
// names a different URL than whatever navigation is currently pending on
// this context, it supersedes it:
// NavigationTracker.StartNavigation rejects the old one and the OnAborted
// hook wired in NewSession emits navigationAborted for it before this
// function emits navigationStarted for the new one. When the URL matches
// the pending navigation, this event is just CDP confirming the navigate
// command's own request and must not supersede it.
func (s *Session) onFrameRequestedNavigation(params json.RawMessage) {
	var evt cdp.FrameRequestedNavigationEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	if cur := s.nav.Current(evt.FrameID); cur != nil && cur.URL == evt.URL {
		return
	}
	nav := s.nav.StartNavigation(evt.FrameID, "", evt.URL)
	s.events.Emit("browsingContext.navigationStarted", evt.FrameID, func() (any, error) {
		return map[string]any{"context": evt.FrameID, "navigation": nav.ID, "url": evt.URL}, nil
	})
}

// onNavigationAborted is NavigationTracker's OnAborted callback (wired in
// NewSession): it fires the instant StartNavigation supersedes a pending
// navigation, which is also the signal that lets the superseded navigate/
// reload command resolve successfully instead of as an error.
func (s *Session) onNavigationAborted(contextID, navigationID string) {
	s.events.Emit("browsingContext.navigationAborted", contextID, func() (any, error) {
		return map[string]any{"context": contextID, "navigation": navigationID}, nil
	})
}

func (s *Session) onJavascriptDialogOpeningBySession(sessionID string, params json.RawMessage) {
	bc, ok := s.ctxs.GetBySession(sessionID)
	if !ok {
		return
	}
	s.onJavascriptDialogOpening(bc.ID, params)
}

func (s *Session) onJavascriptDialogOpening(contextID string, params json.RawMessage) {
	var evt cdp.JavascriptDialogOpeningEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	bc, err := s.ctxs.Get(contextID)
	if err != nil {
		return
	}
	bc.mu.Lock()
	bc.PendingPrompt = &PendingPrompt{Type: evt.Type, Message: evt.Message}
	bc.mu.Unlock()

	s.events.Emit("browsingContext.userPromptOpened", contextID, func() (any, error) {
		return map[string]any{"context": contextID, "type": evt.Type, "message": evt.Message}, nil
	})
}

// onAnyCDPEvent forwards raw CDP events to clients subscribed to the cdp
// passthrough module, independent of the typed handlers above. The wire
// event name is goog:cdp.<Event> and the payload carries the originating
// CDP session id so a client can correlate per-target streams.
func (s *Session) onAnyCDPEvent(sessionID, method string, params json.RawMessage) {
	if !s.subs.IsSubscribedTo(cdpEventPrefix+method, "") {
		return
	}
	s.events.Emit(cdpEventPrefix+method, "", func() (any, error) {
		var raw any
		if err := json.Unmarshal(params, &raw); err != nil {
			return nil, err
		}
		return map[string]any{"event": method, "params": raw, "session": sessionID}, nil
	})
}
