package mapper

import (
	"context"

	"github.com/vibium/mapper/internal/cdp"
	"github.com/vibium/mapper/internal/latch"
)

// CdpTarget wraps one attached CDP target session and the domain-enabling
// "unblock" sequence every attached target must run before the mapper
// considers it usable: enabling Page/Runtime/Log/Network, opting into
// lifecycle events, installing registered preload scripts, optionally
// cascading auto-attach to child targets, and toggling the Fetch domain
// for network interception.
type CdpTarget struct {
	TargetID  string
	SessionID string
	ContextID string // browsing context this target backs
	session   *cdp.Session

	unblocked *latch.Latch[struct{}]

	// installPreloadScripts installs the session's currently registered
	// preload scripts on this target. Unblock runs it right after
	// Page.enable (the domain Page.addScriptToEvaluateOnNewDocument needs)
	// and before the unblocked latch resolves, so the scripts apply to the
	// target's very first document. Set by the Target Manager from
	// Session's hook; nil for worker targets, which have no Page domain.
	installPreloadScripts func(*CdpTarget)

	// networkInterceptionEnabled tracks whether Fetch.enable has been
	// issued on this target, so Session.refreshNetworkInterception can
	// toggle it off as intercepts are removed without issuing a redundant
	// Fetch.disable.
	networkInterceptionEnabled bool
}

func newCdpTarget(session *cdp.Session, contextID string) *CdpTarget {
	return &CdpTarget{
		TargetID:  session.TargetID,
		SessionID: session.SessionID,
		ContextID: contextID,
		session:   session,
		unblocked: latch.New[struct{}](),
	}
}

// Unblock runs the fixed domain-enable sequence for a freshly attached
// page/iframe target and resolves t.unblocked so queued commands can
// proceed. Page comes up first so preload scripts can be installed before
// anything else runs; lifecycle events need an explicit
// Page.setLifecycleEventsEnabled, since a bare Page.enable does not emit
// them. It is idempotent in effect (each step is itself an idempotent CDP
// enable call) but must only be invoked once per target by the Target
// Manager.
func (t *CdpTarget) Unblock(ctx context.Context, autoAttach bool) error {
	fail := func(err error) error {
		if err == cdp.ErrSessionClosed || cdp.IsSessionNotFound(err) {
			t.unblocked.Resolve(struct{}{}) // the target detached mid-sequence
			return nil
		}
		t.unblocked.Reject(err)
		return err
	}
	if err := t.session.Call("Page.enable", struct{}{}, nil); err != nil {
		return fail(err)
	}
	if t.installPreloadScripts != nil {
		t.installPreloadScripts(t)
	}

	steps := []struct {
		method string
		params any
	}{
		{"Page.setLifecycleEventsEnabled", cdp.SetLifecycleEventsEnabledParams{Enabled: true}},
		{"Runtime.enable", struct{}{}},
		{"Log.enable", struct{}{}},
		{"Network.enable", struct{}{}},
	}
	if autoAttach {
		steps = append(steps, struct {
			method string
			params any
		}{"Target.setAutoAttach", cdp.SetAutoAttachParams{AutoAttach: true, WaitForDebuggerOnStart: true, Flatten: true}})
	}

	for _, step := range steps {
		if err := t.session.Call(step.method, step.params, nil); err != nil {
			return fail(err)
		}
	}
	if err := t.session.Call("Runtime.runIfWaitingForDebugger", struct{}{}, nil); err != nil {
		return fail(err)
	}
	t.unblocked.Resolve(struct{}{})
	return nil
}

// UnblockWorker is the reduced unblock sequence for worker targets
// (dedicated/shared/service workers): they carry no Page or Network
// domains, only a Runtime whose execution context becomes the worker
// realm.
func (t *CdpTarget) UnblockWorker(ctx context.Context) error {
	for _, method := range []string{"Runtime.enable", "Runtime.runIfWaitingForDebugger"} {
		if err := t.session.Call(method, struct{}{}, nil); err != nil {
			t.unblocked.Reject(err)
			return err
		}
	}
	t.unblocked.Resolve(struct{}{})
	return nil
}

// WaitUnblocked blocks until Unblock has completed (successfully or not).
// Commands that need the target's domains already enabled (almost
// everything except Target.* itself) call this before issuing a CDP
// command.
func (t *CdpTarget) WaitUnblocked(ctx context.Context) error {
	_, err := t.unblocked.WaitContext(ctx)
	return err
}

// Call issues a CDP command against this target's session.
func (t *CdpTarget) Call(method string, params any, result any) error {
	return t.session.Call(method, params, result)
}

// SetNetworkInterception enables or disables Fetch-domain request pausing
// for this target, toggled as the set of registered intercepts transitions
// to/from empty. Re-enabling while already enabled still
// reissues Fetch.enable, since a newly added intercept can widen the
// pattern/handleAuthRequests state that must cover every registration.
func (t *CdpTarget) SetNetworkInterception(enable bool, patterns []cdp.RequestPattern, handleAuth bool) error {
	if !enable {
		if !t.networkInterceptionEnabled {
			return nil
		}
		if err := t.session.Call("Fetch.disable", struct{}{}, nil); err != nil {
			return err
		}
		t.networkInterceptionEnabled = false
		return nil
	}
	if err := t.session.Call("Fetch.enable", cdp.FetchEnableParams{Patterns: patterns, HandleAuthRequests: handleAuth}, nil); err != nil {
		return err
	}
	t.networkInterceptionEnabled = true
	return nil
}
