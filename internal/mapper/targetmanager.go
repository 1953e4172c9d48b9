package mapper

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vibium/mapper/internal/cdp"
)

// browsingContextTargetTypes are the target kinds tracked as browsing
// contexts; worker kinds get a CdpTarget and a worker realm instead, and
// anything else is resumed and detached.
var browsingContextTargetTypes = map[string]bool{
	"page":   true,
	"iframe": true,
	"tab":    true,
}

// workerRealmTypes maps CDP worker target types to the BiDi realm type
// their execution contexts surface as.
var workerRealmTypes = map[string]string{
	"worker":         "dedicated-worker",
	"shared_worker":  "shared-worker",
	"service_worker": "service-worker",
	"worklet":        "worklet",
}

// TargetManager owns the CDP side of attachment: it listens for
// Target.attachedToTarget/detachedFromTarget on the root session, creates
// a CdpTarget + BrowsingContext for every page/iframe target, a CdpTarget
// + worker realm registration for every worker target. An iframe target is
// created as a child of the context named by its openerId when that context
// exists, and as a top-level context otherwise; a context is not moved once
// created. It tracks each target's
// owning BrowsingContext rather than a flat target list.
type TargetManager struct {
	root    *cdp.Session
	client  *cdp.Client
	ctxs    *BrowsingContextStorage
	realms  *RealmStorage
	nav     *NavigationTracker

	mu      sync.Mutex
	targets map[string]*CdpTarget // keyed by CDP target id
	// workerKinds maps a worker target's session id to its BiDi realm
	// type, consulted when that session's execution context arrives.
	workerKinds map[string]string

	// onContextCreated/onContextDestroyed let Session wire browsingContext
	// events without the Target Manager importing the event manager
	// (keeps the dependency direction one way).
	onContextCreated   func(ctx *BrowsingContext)
	onContextDestroyed func(contextID string)

	// onRealmDestroyed lets Session emit script.realmDestroyed when a
	// worker target detaches and its realms are dropped.
	onRealmDestroyed func(realmID string)

	// onTargetAttached installs the current set of preload scripts on a
	// fresh page/iframe target; CdpTarget.Unblock runs it after Page.enable
	// and before the unblocked latch resolves. Set by Session without the
	// Target Manager importing script bookkeeping directly.
	onTargetAttached func(*CdpTarget)
}

func NewTargetManager(client *cdp.Client, ctxs *BrowsingContextStorage, realms *RealmStorage, nav *NavigationTracker) *TargetManager {
	tm := &TargetManager{
		root:        cdp.Root(client),
		client:      client,
		ctxs:        ctxs,
		realms:      realms,
		nav:         nav,
		targets:     make(map[string]*CdpTarget),
		workerKinds: make(map[string]string),
	}
	client.On("", "Target.attachedToTarget", tm.handleAttached)
	client.On("", "Target.detachedFromTarget", tm.handleDetached)
	client.On("", "Target.targetInfoChanged", tm.handleInfoChanged)
	return tm
}

// OnContextLifecycle registers the callbacks Session uses to fan out
// browsingContext.contextCreated/contextDestroyed events.
func (tm *TargetManager) OnContextLifecycle(created func(*BrowsingContext), destroyed func(string)) {
	tm.onContextCreated = created
	tm.onContextDestroyed = destroyed
}

// OnTargetAttached registers the preload-script installer CdpTarget.Unblock
// runs for every fresh page/iframe target.
func (tm *TargetManager) OnTargetAttached(cb func(*CdpTarget)) {
	tm.onTargetAttached = cb
}

// OnRealmDestroyed registers the callback fired for every worker realm
// dropped when its target detaches.
func (tm *TargetManager) OnRealmDestroyed(cb func(realmID string)) {
	tm.onRealmDestroyed = cb
}

// StartAutoAttach enables discovery and auto-attach at the browser level,
// the root of the unblock sequence every session begins with.
func (tm *TargetManager) StartAutoAttach(ctx context.Context) error {
	if err := tm.root.Call("Target.setDiscoverTargets", map[string]any{"discover": true}, nil); err != nil {
		return err
	}
	return tm.root.Call("Target.setAutoAttach", cdp.SetAutoAttachParams{
		AutoAttach:             true,
		WaitForDebuggerOnStart: true,
		Flatten:                true,
	}, nil)
}

func (tm *TargetManager) handleAttached(params json.RawMessage) {
	var evt cdp.AttachedToTargetEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	if kind, ok := workerRealmTypes[evt.TargetInfo.Type]; ok {
		tm.attachWorker(evt, kind)
		return
	}
	if !browsingContextTargetTypes[evt.TargetInfo.Type] {
		tm.resumeAndDetach(evt.SessionID)
		return
	}

	session := cdp.Attached(tm.client, evt.SessionID, evt.TargetInfo.TargetID)
	target := newCdpTarget(session, evt.TargetInfo.TargetID)
	target.installPreloadScripts = tm.onTargetAttached

	tm.mu.Lock()
	tm.targets[evt.TargetInfo.TargetID] = target
	tm.mu.Unlock()

	var bc *BrowsingContext
	var err error
	// Top-level unless this is an OOPIF attaching under a known parent
	// frame id; CDP reports OOPIFs with type "iframe".
	if evt.TargetInfo.Type == "iframe" {
		bc, err = tm.ctxs.CreateChild(evt.TargetInfo.TargetID, evt.TargetInfo.OpenerID)
		if err != nil {
			bc = tm.ctxs.CreateTopLevel(evt.TargetInfo.TargetID, "default", "")
		}
	} else {
		bc = tm.ctxs.CreateTopLevel(evt.TargetInfo.TargetID, "default", "")
	}
	bc.TargetID = evt.TargetInfo.TargetID
	bc.SessionID = evt.SessionID
	bc.URL = evt.TargetInfo.URL
	target.ContextID = bc.ID

	if tm.onContextCreated != nil {
		tm.onContextCreated(bc)
	}

	go func() {
		if err := target.Unblock(context.Background(), true); err != nil {
			tm.nav.Failed(bc.ID, "", err)
		}
	}()
}

// attachWorker tracks a worker target: a CdpTarget with the reduced worker
// unblock sequence, plus a realm-kind registration so the session's
// Runtime.executionContextCreated surfaces as a worker realm rather than a
// window one.
func (tm *TargetManager) attachWorker(evt cdp.AttachedToTargetEvent, kind string) {
	session := cdp.Attached(tm.client, evt.SessionID, evt.TargetInfo.TargetID)
	target := newCdpTarget(session, "")

	tm.mu.Lock()
	tm.targets[evt.TargetInfo.TargetID] = target
	tm.workerKinds[evt.SessionID] = kind
	tm.mu.Unlock()

	go func() { _ = target.UnblockWorker(context.Background()) }()
}

// resumeAndDetach waves through a target kind the mapper does not track:
// the target must still be resumed (auto-attach paused it) and then
// detached so it doesn't hold a session open.
func (tm *TargetManager) resumeAndDetach(sessionID string) {
	session := cdp.Attached(tm.client, sessionID, "")
	_ = session.Call("Runtime.runIfWaitingForDebugger", struct{}{}, nil)
	_ = tm.root.Call("Target.detachFromTarget", map[string]any{"sessionId": sessionID}, nil)
}

func (tm *TargetManager) handleDetached(params json.RawMessage) {
	var evt cdp.DetachedFromTargetEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}

	tm.mu.Lock()
	_, isWorker := tm.workerKinds[evt.SessionID]
	delete(tm.workerKinds, evt.SessionID)
	if evt.TargetID != "" {
		delete(tm.targets, evt.TargetID)
	}
	tm.mu.Unlock()

	if isWorker {
		for _, realmID := range tm.realms.ClearSession(evt.SessionID) {
			if tm.onRealmDestroyed != nil {
				tm.onRealmDestroyed(realmID)
			}
		}
		return
	}
	if evt.TargetID == "" {
		return
	}

	removed := tm.ctxs.Remove(evt.TargetID)
	for _, id := range removed {
		tm.realms.ClearContext(id)
		if tm.onContextDestroyed != nil {
			tm.onContextDestroyed(id)
		}
	}
}

func (tm *TargetManager) handleInfoChanged(params json.RawMessage) {
	var evt cdp.TargetInfoChangedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	bc, err := tm.ctxs.Get(evt.TargetInfo.TargetID)
	if err != nil {
		return
	}
	bc.URL = evt.TargetInfo.URL
}

// Target looks up the CdpTarget for a browsing context's own target id.
func (tm *TargetManager) Target(targetID string) (*CdpTarget, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t, ok := tm.targets[targetID]
	return t, ok
}

// WorkerKind reports the BiDi realm type for a worker target's session id,
// or "" if the session does not belong to a tracked worker.
func (tm *TargetManager) WorkerKind(sessionID string) string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.workerKinds[sessionID]
}
