package mapper

import (
	"sync"

	"github.com/vibium/mapper/internal/bidierr"
)

// BrowsingContext is one node in the browsing-context tree: either a
// top-level context (tab/window, Parent == "") or a nested context (an
// iframe, Parent != ""), with parent/child links and navigation state
// layered on top of the flat per-target bookkeeping a CDP client normally
// keeps.
type BrowsingContext struct {
	mu sync.RWMutex

	ID       string
	Parent   string // "" for a top-level context
	Children []string
	URL      string

	// UserContext groups top-level contexts created under the same user
	// context (profile). Nested contexts inherit their top-level
	// ancestor's value.
	UserContext string

	// ClientWindow identifies the OS-level window hosting this context's
	// top-level ancestor.
	ClientWindow string

	// TargetID is the CDP target backing this context. For an OOPIF it is
	// the iframe's own target; otherwise it is shared with its top-level
	// ancestor's target for same-process frames (see CdpTarget).
	TargetID string
	// SessionID is the CDP session id attached to TargetID.
	SessionID string

	// History is the traverseHistory backing store: URLs this context has
	// navigated to, oldest first, with HistoryIndex naming the current
	// entry. CDP's own Page.getNavigationHistory/navigateToHistoryEntry
	// would do this authoritatively, but the mapper keeps a lightweight
	// mirror since browsingContext.traverseHistory only resolves a delta to
	// a recorded URL and replays it with Page.navigate.
	History      []string
	HistoryIndex int

	// PendingPrompt holds the most recent Page.javascriptDialogOpening this
	// context has not yet had handleUserPrompt called for.
	PendingPrompt *PendingPrompt
}

// PendingPrompt is an open beforeunload/alert/confirm/prompt dialog CDP is
// blocking on until browsingContext.handleUserPrompt settles it.
type PendingPrompt struct {
	Type    string
	Message string
}

// BrowsingContextStorage is the tree of live browsing contexts: a
// mutex-guarded registry keyed by context id, generalized into a
// parent-aware tree with read/write locking per node.
type BrowsingContextStorage struct {
	mu       sync.RWMutex
	contexts map[string]*BrowsingContext
	// topLevel is the ordered set of top-level context ids, preserving
	// creation order for browsingContext.getTree's default ordering.
	topLevel []string
}

func NewBrowsingContextStorage() *BrowsingContextStorage {
	return &BrowsingContextStorage{contexts: make(map[string]*BrowsingContext)}
}

// CreateTopLevel registers a new top-level context.
func (s *BrowsingContextStorage) CreateTopLevel(id, userContext, clientWindow string) *BrowsingContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	bc := &BrowsingContext{ID: id, UserContext: userContext, ClientWindow: clientWindow, HistoryIndex: -1}
	s.contexts[id] = bc
	s.topLevel = append(s.topLevel, id)
	return bc
}

// CreateChild registers a nested context under parent, which must already
// exist. Returns no-such-frame if it does not.
func (s *BrowsingContextStorage) CreateChild(id, parent string) (*BrowsingContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.contexts[parent]
	if !ok {
		return nil, bidierr.NoSuchFrameErr(parent)
	}
	p.mu.Lock()
	p.Children = append(p.Children, id)
	userContext := p.UserContext
	clientWindow := p.ClientWindow
	p.mu.Unlock()

	bc := &BrowsingContext{ID: id, Parent: parent, UserContext: userContext, ClientWindow: clientWindow, HistoryIndex: -1}
	s.contexts[id] = bc
	return bc, nil
}

// Get returns the context by id, or no-such-frame.
func (s *BrowsingContextStorage) Get(id string) (*BrowsingContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bc, ok := s.contexts[id]
	if !ok {
		return nil, bidierr.NoSuchFrameErr(id)
	}
	return bc, nil
}

// Remove deletes a context and all of its descendants, per the
// "closing a context closes its whole subtree" invariant. Returns the ids
// of everything removed, in post-order (children before parents), which is
// also the correct browsingContext.contextDestroyed emission order.
func (s *BrowsingContextStorage) Remove(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	var walk func(string)
	walk = func(cur string) {
		bc, ok := s.contexts[cur]
		if !ok {
			return
		}
		for _, child := range bc.Children {
			walk(child)
		}
		removed = append(removed, cur)
	}
	walk(id)

	for _, r := range removed {
		if bc, ok := s.contexts[r]; ok {
			if bc.Parent != "" {
				if parent, ok := s.contexts[bc.Parent]; ok {
					parent.mu.Lock()
					parent.Children = removeString(parent.Children, r)
					parent.mu.Unlock()
				}
			}
		}
		delete(s.contexts, r)
	}
	s.topLevel = removeString(s.topLevel, id)
	return removed
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// RecordNavigation appends url as the new current history entry, truncating
// any forward entries a prior traverseHistory had navigated back past (the
// usual browser history-stack semantics: navigating from the middle of the
// stack discards the redo branch).
func (s *BrowsingContextStorage) RecordNavigation(id, url string) {
	s.mu.RLock()
	bc, ok := s.contexts[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.History = append(bc.History[:bc.HistoryIndex+1], url)
	bc.HistoryIndex = len(bc.History) - 1
}

// TopLevelID resolves any context id to the id of its top-level ancestor,
// walking Parent links. It is the function SubscriptionManager uses to key
// subscriptions, and browsingContext.navigate uses to find the owning tab.
func (s *BrowsingContextStorage) TopLevelID(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := id
	for {
		bc, ok := s.contexts[cur]
		if !ok {
			return "", false
		}
		if bc.Parent == "" {
			return cur, true
		}
		cur = bc.Parent
	}
}

// AllTopLevel returns the ids of every top-level context, in creation
// order.
func (s *BrowsingContextStorage) AllTopLevel() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.topLevel))
	copy(out, s.topLevel)
	return out
}

// GetBySession resolves the browsing context whose CDP target session id is
// sessionID, for CDP events (e.g. Page.javascriptDialogOpening) that arrive
// tagged only with a sessionId and no frameId of their own.
func (s *BrowsingContextStorage) GetBySession(sessionID string) (*BrowsingContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, bc := range s.contexts {
		bc.mu.RLock()
		match := bc.SessionID == sessionID
		bc.mu.RUnlock()
		if match {
			return bc, true
		}
	}
	return nil, false
}

// Descendants returns id and everything below it in the tree, in
// pre-order (parent before children) — the order browsingContext.getTree
// presents results in.
func (s *BrowsingContextStorage) Descendants(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	var walk func(string)
	walk = func(cur string) {
		bc, ok := s.contexts[cur]
		if !ok {
			return
		}
		out = append(out, cur)
		for _, child := range bc.Children {
			walk(child)
		}
	}
	walk(id)
	return out
}
