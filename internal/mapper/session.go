package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/vibium/mapper/internal/bidierr"
	"github.com/vibium/mapper/internal/cdp"
)

// Session is the Mapper core for one inbound BiDi client connection: it
// owns exactly one CDP client connection to one browser instance and
// reconciles the two protocols, fanning
// a single inbound connection out across many CDP targets rather than
// wrapping a single upstream connection 1:1.
type Session struct {
	cdpClient *cdp.Client

	ctxs           *BrowsingContextStorage
	realms         *RealmStorage
	nav            *NavigationTracker
	network        *NetworkStorage
	intercepts     *InterceptStorage
	inputs         *InputStates
	targets        *TargetManager
	subs           *SubscriptionManager
	events         *EventManager
	preloadScripts *PreloadScriptStorage

	send func(OutboundMessage)

	closed atomic.Bool
}

// NewSession wires together every mapper component against an already
// dialed CDP client. send is called for every outbound message (command
// response or event) this session produces; the transport layer supplies
// it bound to the inbound WebSocket connection.
func NewSession(cdpClient *cdp.Client, send func(OutboundMessage)) *Session {
	ctxs := NewBrowsingContextStorage()
	realms := NewRealmStorage()
	nav := NewNavigationTracker()
	network := NewNetworkStorage()
	subs := NewSubscriptionManager(ctxs.TopLevelID)
	targets := NewTargetManager(cdpClient, ctxs, realms, nav)

	s := &Session{
		cdpClient:      cdpClient,
		ctxs:           ctxs,
		realms:         realms,
		nav:            nav,
		network:        network,
		intercepts:     NewInterceptStorage(),
		inputs:         NewInputStates(),
		targets:        targets,
		subs:           subs,
		send:           send,
		preloadScripts: NewPreloadScriptStorage(),
	}
	nav.OnAborted(s.onNavigationAborted)
	targets.OnTargetAttached(s.installPreloadScriptsOn)
	s.events = NewEventManager(subs, func(method string, params any, channel *string) {
		s.send(EventMessage(method, params, channel))
	})

	targets.OnContextLifecycle(s.onContextCreated, s.onContextDestroyed)
	targets.OnRealmDestroyed(s.onWorkerRealmDestroyed)

	// Every per-target CDP event (Page.*, Network.*, Fetch.*, Runtime.*)
	// arrives tagged with the attached target's own sessionId, never the
	// empty root-session id, since those domains are only ever enabled on
	// attached target sessions (CdpTarget.Unblock). A single wildcard
	// dispatch keyed by method name, rather than per-session registration,
	// is what lets one Session wire every target it attaches to without
	// re-registering handlers each time Target.attachedToTarget fires.
	cdpClient.OnAny(s.dispatchCDPEvent)

	return s
}

// dispatchCDPEvent is the single entry point for every CDP event this
// session's underlying client delivers, across every attached target
// session. It routes by method name to the typed handler above, then falls
// through to the "cdp" passthrough forwarding for anything a client has
// subscribed to directly.
func (s *Session) dispatchCDPEvent(sessionID, method string, params json.RawMessage) {
	switch method {
	case "Runtime.executionContextCreated":
		s.onExecutionContextCreated(sessionID, params)
	case "Runtime.executionContextDestroyed":
		s.onExecutionContextDestroyed(params)
	case "Runtime.executionContextsCleared":
		s.onExecutionContextsCleared(sessionID, params)
	case "Page.frameAttached":
		s.onFrameAttached(sessionID, params)
	case "Page.frameDetached":
		s.onFrameDetached(params)
	case "Page.frameSubtreeWillBeDetached":
		s.onFrameSubtreeWillBeDetached(params)
	case "Page.frameNavigated":
		s.onFrameNavigated(params)
	case "Page.lifecycleEvent":
		s.onLifecycleEvent(params)
	case "Page.navigatedWithinDocument":
		s.onNavigatedWithinDocument(params)
	case "Page.frameRequestedNavigation":
		s.onFrameRequestedNavigation(params)
	case "Page.javascriptDialogOpening":
		s.onJavascriptDialogOpeningBySession(sessionID, params)
	case "Network.requestWillBeSent":
		s.onRequestWillBeSent(params)
	case "Network.requestWillBeSentExtraInfo":
		s.onRequestWillBeSentExtraInfo(params)
	case "Network.responseReceived":
		s.onResponseReceived(params)
	case "Network.responseReceivedExtraInfo":
		s.onResponseReceivedExtraInfo(params)
	case "Network.loadingFinished":
		s.onLoadingFinished(params)
	case "Network.loadingFailed":
		s.onLoadingFailed(params)
	case "Fetch.requestPaused":
		s.onRequestPaused(params)
	case "Fetch.authRequired":
		s.onAuthRequired(params)
	}
	s.onAnyCDPEvent(sessionID, method, params)
}

// Start kicks off browser-level auto-attach; callers invoke it once after
// construction, before processing the client's first command.
func (s *Session) Start(ctx context.Context) error {
	return s.targets.StartAutoAttach(ctx)
}

// HandleCommand dispatches one inbound BiDi command and returns the
// response envelope to send back. It never panics on a malformed command;
// handler lookup/params errors are converted to the normal error envelope.
func (s *Session) HandleCommand(ctx context.Context, cmd InboundCommand) OutboundMessage {
	channel := ""
	if cmd.Channel != nil {
		channel = *cmd.Channel
	}
	result, err := s.dispatch(ctx, cmd.Method, cmd.Params, channel)
	if err != nil {
		return toErrorResponse(cmd.ID, err)
	}
	return SuccessResponse(cmd.ID, result)
}

func (s *Session) dispatch(ctx context.Context, method string, params json.RawMessage, channel string) (any, error) {
	switch method {
	case "session.status":
		return s.cmdSessionStatus()
	case "session.new":
		return s.cmdSessionNew(params)
	case "session.end":
		return s.cmdSessionEnd()
	case "session.subscribe":
		return s.cmdSessionSubscribe(params, channel)
	case "session.unsubscribe":
		return s.cmdSessionUnsubscribe(params, channel)

	case "browsingContext.create":
		return s.cmdBrowsingContextCreate(ctx, params)
	case "browsingContext.navigate":
		return s.cmdBrowsingContextNavigate(ctx, params)
	case "browsingContext.close":
		return s.cmdBrowsingContextClose(params)
	case "browsingContext.getTree":
		return s.cmdBrowsingContextGetTree(params)
	case "browsingContext.reload":
		return s.cmdBrowsingContextReload(ctx, params)
	case "browsingContext.traverseHistory":
		return s.cmdBrowsingContextTraverseHistory(params)
	case "browsingContext.captureScreenshot":
		return s.cmdBrowsingContextCaptureScreenshot(params)
	case "browsingContext.print":
		return s.cmdBrowsingContextPrint(params)
	case "browsingContext.setViewport":
		return s.cmdBrowsingContextSetViewport(params)
	case "browsingContext.handleUserPrompt":
		return s.cmdBrowsingContextHandleUserPrompt(params)
	case "browsingContext.activate":
		return s.cmdBrowsingContextActivate(params)

	case "network.addIntercept":
		return s.cmdNetworkAddIntercept(params)
	case "network.removeIntercept":
		return s.cmdNetworkRemoveIntercept(params)
	case "network.continueRequest":
		return s.cmdNetworkContinueRequest(params)
	case "network.failRequest":
		return s.cmdNetworkFailRequest(params)
	case "network.provideResponse":
		return s.cmdNetworkProvideResponse(params)
	case "network.continueResponse":
		return s.cmdNetworkContinueResponse(params)
	case "network.continueWithAuth":
		return s.cmdNetworkContinueWithAuth(params)

	case "script.evaluate":
		return s.cmdScriptEvaluate(ctx, params)
	case "script.callFunction":
		return s.cmdScriptCallFunction(ctx, params)
	case "script.getRealms":
		return s.cmdScriptGetRealms(params)
	case "script.disown":
		return s.cmdScriptDisown(params)
	case "script.addPreloadScript":
		return s.cmdScriptAddPreloadScript(params)
	case "script.removePreloadScript":
		return s.cmdScriptRemovePreloadScript(params)

	case "input.performActions":
		return s.cmdInputPerformActions(params)
	case "input.releaseActions":
		return s.cmdInputReleaseActions(params)
	case "input.setFiles":
		return s.cmdInputSetFiles(params)

	case "storage.getCookies":
		return s.cmdStorageGetCookies(params)
	case "storage.setCookie":
		return s.cmdStorageSetCookie(params)
	case "storage.deleteCookies":
		return s.cmdStorageDeleteCookies(params)

	default:
		return nil, bidierr.UnsupportedOperationErr(fmt.Sprintf("method %q", method))
	}
}

// Close tears down the session's CDP connection. The transport layer calls
// this once the inbound WebSocket closes.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.events.Close()
	return s.cdpClient.Close()
}
