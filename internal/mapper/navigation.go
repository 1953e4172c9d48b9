package mapper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vibium/mapper/internal/bidierr"
	"github.com/vibium/mapper/internal/latch"
)

var navigationIDSeq atomic.Uint64

func nextNavigationID() string {
	return fmt.Sprintf("nav-%d", navigationIDSeq.Add(1))
}

// canceledNavigationError marks a navigation that was superseded by a newer
// one started on the same context, as opposed to one that failed outright.
// Per the BiDi spec: a superseded navigation still resolves the command that
// started it successfully, once browsingContext.navigationAborted has been
// emitted for it; only a genuine failure propagates as a command error.
type canceledNavigationError struct {
	id string
}

func (e *canceledNavigationError) Error() string {
	return fmt.Sprintf("navigation %s superseded", e.id)
}

func isCanceledNavigation(err error) bool {
	_, ok := err.(*canceledNavigationError)
	return ok
}

// WaitCondition is the browsingContext.navigate "wait" parameter: how far
// the command blocks before returning.
type WaitCondition string

const (
	WaitNone        WaitCondition = "none"
	WaitInteractive WaitCondition = "interactive"
	WaitComplete    WaitCondition = "complete"
)

// Navigation is one in-flight (or settled) navigation attempt on a single
// browsing context. Each stage is its own latch.Latch, covering the
// three-stage sequence CDP actually reports for a navigation: started ->
// domContentLoaded -> load, any one of which can instead resolve to
// navigationAborted/Failed.
type Navigation struct {
	ID  string
	URL string

	// Initial marks the synthetic about:blank navigation every fresh
	// context begins with: its lifecycle latches still resolve, but no
	// BiDi navigation events are emitted for it.
	Initial bool

	domContentLoaded *latch.Latch[struct{}]
	load             *latch.Latch[struct{}]
}

func newNavigation(id, url string) *Navigation {
	return &Navigation{
		ID:               id,
		URL:              url,
		domContentLoaded: latch.New[struct{}](),
		load:             latch.New[struct{}](),
	}
}

// contextNav is the per-browsing-context navigation slot. Only one
// navigation can be pending at a time; starting a
// new one while the previous is still pending rejects the old one first
// (mirroring latch's own double-settle guard, one level up).
type contextNav struct {
	mu      sync.Mutex
	current *Navigation
	// loaderID is the CDP loader id of the context's current document,
	// recorded from init/commit lifecycle events. Lifecycle events tagged
	// with a different loader id belong to a superseded document and are
	// ignored).
	loaderID string
}

// NavigationTracker is the navigation state machine,
// keyed per top-level browsing context (frame navigations are tracked the
// same way, keyed by their own context id).
type NavigationTracker struct {
	mu        sync.Mutex
	byCtx     map[string]*contextNav
	onAborted func(contextID, navigationID string)
}

func NewNavigationTracker() *NavigationTracker {
	return &NavigationTracker{byCtx: make(map[string]*contextNav)}
}

// OnAborted registers the callback invoked whenever StartNavigation
// supersedes a still-pending navigation. Session wires this to emit
// browsingContext.navigationAborted from the one place that
// actually decides a navigation was superseded, rather than duplicating the
// decision at every call site that can start a new navigation.
func (t *NavigationTracker) OnAborted(fn func(contextID, navigationID string)) {
	t.mu.Lock()
	t.onAborted = fn
	t.mu.Unlock()
}

func (t *NavigationTracker) slot(contextID string) *contextNav {
	t.mu.Lock()
	defer t.mu.Unlock()
	cn, ok := t.byCtx[contextID]
	if !ok {
		cn = &contextNav{}
		t.byCtx[contextID] = cn
	}
	return cn
}

// StartNavigation records a new pending navigation on contextID, per the
// CDP Page.frameRequestedNavigation / navigate response sequence. Any
// previous still-pending navigation on this context is rejected as
// superseded first and
// the OnAborted callback fires for it once the slot's lock is released, so
// a caller blocked in Wait on the old navigation observes a
// canceledNavigationError rather than a generic failure. navigationID may
// be "" to have one generated.
func (t *NavigationTracker) StartNavigation(contextID, navigationID, url string) *Navigation {
	if navigationID == "" {
		navigationID = nextNavigationID()
	}

	cn := t.slot(contextID)
	cn.mu.Lock()
	superseded := cn.current
	nav := newNavigation(navigationID, url)
	cn.current = nav
	cn.mu.Unlock()

	if superseded != nil && !superseded.load.Settled() {
		cause := &canceledNavigationError{id: superseded.ID}
		superseded.domContentLoaded.Reject(cause)
		superseded.load.Reject(cause)

		t.mu.Lock()
		onAborted := t.onAborted
		t.mu.Unlock()
		if onAborted != nil {
			onAborted(contextID, superseded.ID)
		}
	}
	return nav
}

// StartInitial records the synthetic about:blank navigation a freshly
// attached context begins with. Unlike StartNavigation it never supersedes
// anything (there is nothing to supersede on a fresh context) and callers
// emit no navigationStarted for it.
func (t *NavigationTracker) StartInitial(contextID, url string) *Navigation {
	cn := t.slot(contextID)
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.current != nil {
		return cn.current
	}
	nav := newNavigation(nextNavigationID(), url)
	nav.Initial = true
	cn.current = nav
	return nav
}

// SetLoader records the loader id named by an init or commit lifecycle
// event as the context's current document identity.
func (t *NavigationTracker) SetLoader(contextID, loaderID string) {
	if loaderID == "" {
		return
	}
	cn := t.slot(contextID)
	cn.mu.Lock()
	cn.loaderID = loaderID
	cn.mu.Unlock()
}

// LoaderMatches reports whether a lifecycle event tagged with loaderID
// belongs to the context's current document. An event with no loader id
// always matches; if the mapper attached late and never saw init/commit,
// the first observed loader id is adopted as current).
func (t *NavigationTracker) LoaderMatches(contextID, loaderID string) bool {
	if loaderID == "" {
		return true
	}
	cn := t.slot(contextID)
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.loaderID == "" {
		cn.loaderID = loaderID
		return true
	}
	return cn.loaderID == loaderID
}

// DOMContentLoaded resolves the domContentLoaded stage of the current
// navigation on contextID, if one is pending and matches navigationID (an
// empty navigationID matches unconditionally, for same-document updates
// that CDP does not tag with a navigation id).
func (t *NavigationTracker) DOMContentLoaded(contextID, navigationID string) {
	cn := t.slot(contextID)
	cn.mu.Lock()
	nav := cn.current
	cn.mu.Unlock()
	if nav == nil || (navigationID != "" && nav.ID != navigationID) {
		return
	}
	nav.domContentLoaded.Resolve(struct{}{})
}

// Load resolves the load stage of the current navigation on contextID.
func (t *NavigationTracker) Load(contextID, navigationID string) {
	cn := t.slot(contextID)
	cn.mu.Lock()
	nav := cn.current
	cn.mu.Unlock()
	if nav == nil || (navigationID != "" && nav.ID != navigationID) {
		return
	}
	// A load event implies DOMContentLoaded already fired; resolve it too
	// in case CDP delivered them out of the expected order.
	nav.domContentLoaded.Resolve(struct{}{})
	nav.load.Resolve(struct{}{})
}

// Failed rejects both remaining stages of the current navigation on
// contextID with the given cause (Page.frameRequestedNavigation with a
// terminal disposition, or Page.lifecycleEvent never arriving before the
// frame detaches).
func (t *NavigationTracker) Failed(contextID, navigationID string, cause error) {
	cn := t.slot(contextID)
	cn.mu.Lock()
	nav := cn.current
	cn.mu.Unlock()
	if nav == nil || (navigationID != "" && nav.ID != navigationID) {
		return
	}
	nav.domContentLoaded.Reject(cause)
	nav.load.Reject(cause)
}

// CurrentID returns the id of the currently pending/settled navigation on
// contextID, or "" if none has started yet.
func (t *NavigationTracker) CurrentID(contextID string) string {
	cn := t.slot(contextID)
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.current == nil {
		return ""
	}
	return cn.current.ID
}

// Current returns the currently pending/settled navigation on contextID, or
// nil if none has started yet.
func (t *NavigationTracker) Current(contextID string) *Navigation {
	cn := t.slot(contextID)
	cn.mu.Lock()
	defer cn.mu.Unlock()
	return cn.current
}

// Wait blocks on nav according to cond and returns once that stage settles.
// The returned error is the raw latch rejection cause: a
// *canceledNavigationError if nav was superseded, or whatever cause Failed
// was given otherwise. Callers distinguish the two with
// isCanceledNavigation and apply wrapNavigationErr themselves for the
// latter, since a superseded navigation must resolve its command
// successfully rather than as an error.
func (t *NavigationTracker) Wait(ctx context.Context, nav *Navigation, cond WaitCondition) error {
	switch cond {
	case WaitNone:
		return nil
	case WaitInteractive:
		_, err := nav.domContentLoaded.WaitContext(ctx)
		return err
	case WaitComplete:
		_, err := nav.load.WaitContext(ctx)
		return err
	default:
		return bidierr.InvalidArgumentf("unknown wait condition %q", cond)
	}
}

func wrapNavigationErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := bidierr.As(err); ok {
		return err
	}
	return bidierr.Wrap(bidierr.UnknownError, err, "navigation did not complete")
}
