package mapper

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vibium/mapper/internal/bidierr"
)

// PreloadScript is one script.addPreloadScript registration: a
// source string the mapper installs on every matching target via CDP's
// Page.addScriptToEvaluateOnNewDocument before the target is considered
// unblocked, optionally scoped to a sandbox (isolated world) or a specific
// set of contexts.
type PreloadScript struct {
	ID       string
	Source   string
	Sandbox  string
	Contexts []string

	mu       sync.Mutex
	bindings []scriptBinding
}

// scriptBinding is the per-target CDP handle a PreloadScript acquires once
// installed, needed to call Page.removeScriptToEvaluateOnNewDocument.
type scriptBinding struct {
	TargetID   string
	Identifier string
}

var nextPreloadScriptID atomic.Uint64

// PreloadScriptStorage is the per-session registry of live preload
// scripts, grounded on the same id-keyed registry idiom as every other
// storage component in this package (BrowsingContextStorage, RealmStorage).
type PreloadScriptStorage struct {
	mu      sync.Mutex
	scripts map[string]*PreloadScript
}

func NewPreloadScriptStorage() *PreloadScriptStorage {
	return &PreloadScriptStorage{scripts: make(map[string]*PreloadScript)}
}

// Add registers a new preload script and returns it; the caller is
// responsible for actually installing it on CDP targets.
func (s *PreloadScriptStorage) Add(source, sandbox string, contexts []string) *PreloadScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := &PreloadScript{
		ID:       fmt.Sprintf("preload-%d", nextPreloadScriptID.Add(1)),
		Source:   source,
		Sandbox:  sandbox,
		Contexts: contexts,
	}
	s.scripts[ps.ID] = ps
	return ps
}

// BindIdentifier records the CDP-side identifier a preload script received
// on a specific target, needed later to remove it from that target.
func (s *PreloadScriptStorage) BindIdentifier(scriptID, targetID, identifier string) {
	s.mu.Lock()
	ps, ok := s.scripts[scriptID]
	s.mu.Unlock()
	if !ok {
		return
	}
	ps.mu.Lock()
	ps.bindings = append(ps.bindings, scriptBinding{TargetID: targetID, Identifier: identifier})
	ps.mu.Unlock()
}

// All returns every registered preload script, used by CdpTarget.Unblock to
// install the full current set on a freshly attached target.
func (s *PreloadScriptStorage) All() []*PreloadScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*PreloadScript, 0, len(s.scripts))
	for _, ps := range s.scripts {
		out = append(out, ps)
	}
	return out
}

// Remove deregisters a preload script and returns its per-target bindings
// so the caller can issue the matching Page.removeScriptToEvaluateOnNewDocument
// calls.
func (s *PreloadScriptStorage) Remove(scriptID string) ([]scriptBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.scripts[scriptID]
	if !ok {
		return nil, bidierr.InvalidArgumentf("no such preload script %q", scriptID)
	}
	delete(s.scripts, scriptID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.bindings, nil
}
