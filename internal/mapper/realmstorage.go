package mapper

import (
	"sync"

	"github.com/vibium/mapper/internal/bidierr"
)

// Realm is a script execution realm: one CDP Runtime execution context,
// addressed by BiDi's synthetic realm id. It is the script-side analogue
// of BrowsingContext, kept in the same
// mutex-guarded id-keyed registry shape as the other storage components.
type Realm struct {
	ID              string
	ContextID       string // owning browsing context; "" for worker realms
	Origin          string
	Sandbox         string // "" for the default realm
	// Type is the BiDi realm type: "window" for page realms, or one of
	// the worker kinds ("dedicated-worker", "shared-worker",
	// "service-worker", "worklet") for realms created on a worker
	// target's session.
	Type            string
	SessionID       string // CDP session the execution context lives on
	ExecutionCtxID  int64  // CDP Runtime.ExecutionContextId
	IsDefault       bool
}

// RealmStorage tracks live script realms, keyed both by BiDi realm id and
// by (contextID, sandbox) for fast lookup when routing a script.evaluate
// or script.callFunction call to the right execution context.
type RealmStorage struct {
	mu       sync.RWMutex
	byID     map[string]*Realm
	byCtxBox map[string]map[string]*Realm // contextID -> sandbox -> realm
}

func NewRealmStorage() *RealmStorage {
	return &RealmStorage{
		byID:     make(map[string]*Realm),
		byCtxBox: make(map[string]map[string]*Realm),
	}
}

// Add registers a newly created realm (in response to
// Runtime.executionContextCreated).
func (s *RealmStorage) Add(r *Realm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.ID] = r
	box, ok := s.byCtxBox[r.ContextID]
	if !ok {
		box = make(map[string]*Realm)
		s.byCtxBox[r.ContextID] = box
	}
	box[r.Sandbox] = r
}

// Get looks up a realm by BiDi realm id.
func (s *RealmStorage) Get(realmID string) (*Realm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[realmID]
	if !ok {
		return nil, bidierr.New(bidierr.UnknownError, "no such realm %q", realmID)
	}
	return r, nil
}

// FindBySandbox returns the realm for (contextID, sandbox), creating
// nothing — script.getRealms/script.evaluate must fail with no-such-frame
// if the sandbox hasn't been materialized yet by a prior Page.createIsolatedWorld.
func (s *RealmStorage) FindBySandbox(contextID, sandbox string) (*Realm, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	box, ok := s.byCtxBox[contextID]
	if !ok {
		return nil, false
	}
	r, ok := box[sandbox]
	return r, ok
}

// ByContext returns every realm belonging to contextID, default realm
// first, for script.getRealms.
func (s *RealmStorage) ByContext(contextID string) []*Realm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	box := s.byCtxBox[contextID]
	out := make([]*Realm, 0, len(box))
	var def *Realm
	for _, r := range box {
		if r.IsDefault {
			def = r
			continue
		}
		out = append(out, r)
	}
	if def != nil {
		out = append([]*Realm{def}, out...)
	}
	return out
}

// RemoveByExecutionContext drops the first realm found whose CDP execution
// context id is executionCtxID, in response to
// Runtime.executionContextDestroyed; the owning context and session are not
// compared.
// It returns the removed realm's id, if any, so callers can emit
// script.realmDestroyed.
func (s *RealmStorage) RemoveByExecutionContext(executionCtxID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.byID {
		if r.ExecutionCtxID == executionCtxID {
			delete(s.byID, id)
			if box, ok := s.byCtxBox[r.ContextID]; ok {
				delete(box, r.Sandbox)
			}
			return id, true
		}
	}
	return "", false
}

// ClearSession drops every realm living on the given CDP session,
// returning the removed realm ids so callers can emit
// script.realmDestroyed. Used when a worker target detaches, since worker
// realms have no browsing context for ClearContext to key on.
func (s *RealmStorage) ClearSession(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, r := range s.byID {
		if r.SessionID != sessionID {
			continue
		}
		delete(s.byID, id)
		if box, ok := s.byCtxBox[r.ContextID]; ok {
			delete(box, r.Sandbox)
		}
		removed = append(removed, id)
	}
	return removed
}

// ClearContext drops every realm belonging to contextID, in response to
// Runtime.executionContextsCleared (a full navigation/renderer swap), and
// returns the removed realm ids for script.realmDestroyed events.
func (s *RealmStorage) ClearContext(contextID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	box, ok := s.byCtxBox[contextID]
	if !ok {
		return nil
	}
	removed := make([]string, 0, len(box))
	for _, r := range box {
		delete(s.byID, r.ID)
		removed = append(removed, r.ID)
	}
	delete(s.byCtxBox, contextID)
	return removed
}
