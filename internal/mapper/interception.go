package mapper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vibium/mapper/internal/bidierr"
	"github.com/vibium/mapper/internal/cdp"
)

// URLPattern is network.UrlPattern: either a literal pattern
// string, parsed once as a URL, or a structured pattern matched field by
// field against a request's URL.
type URLPattern struct {
	Type     string
	Pattern  string
	Protocol string
	Hostname string
	Port     string
	Pathname string
	Search   string
}

func (p *URLPattern) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string `json:"type"`
		Pattern  string `json:"pattern,omitempty"`
		Protocol string `json:"protocol,omitempty"`
		Hostname string `json:"hostname,omitempty"`
		Port     string `json:"port,omitempty"`
		Pathname string `json:"pathname,omitempty"`
		Search   string `json:"search,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = URLPattern{
		Type:     raw.Type,
		Pattern:  raw.Pattern,
		Protocol: raw.Protocol,
		Hostname: raw.Hostname,
		Port:     raw.Port,
		Pathname: raw.Pathname,
		Search:   raw.Search,
	}
	return nil
}

// normalizedURL is a request or pattern URL decomposed into the fields
// matchUrlPattern compares, after the normalization the BiDi spec requires:
// hostname lowercased, pathname given a leading '/', search given a
// leading '?', fragment dropped entirely.
type normalizedURL struct {
	protocol string
	hostname string
	port     string
	pathname string
	search   string
}

func normalizeParsedURL(u *url.URL) normalizedURL {
	pathname := u.EscapedPath()
	if pathname == "" {
		pathname = "/"
	} else if !strings.HasPrefix(pathname, "/") {
		pathname = "/" + pathname
	}
	search := u.RawQuery
	if search != "" && !strings.HasPrefix(search, "?") {
		search = "?" + search
	}
	return normalizedURL{
		protocol: strings.ToLower(u.Scheme),
		hostname: strings.ToLower(u.Hostname()),
		port:     u.Port(),
		pathname: pathname,
		search:   search,
	}
}

// normalize resolves the pattern (literal or structured) into a
// normalizedURL. A literal pattern is parsed as a URL and every one of its
// fields becomes significant for matching; a structured pattern's blank
// fields stay wildcards.
func (p URLPattern) normalize() (normalizedURL, error) {
	if p.Type == "string" {
		u, err := url.Parse(p.Pattern)
		if err != nil {
			return normalizedURL{}, bidierr.InvalidArgumentf("invalid url pattern %q: %v", p.Pattern, err)
		}
		return normalizeParsedURL(u), nil
	}
	n := normalizedURL{
		protocol: strings.ToLower(p.Protocol),
		hostname: strings.ToLower(p.Hostname),
		port:     p.Port,
		pathname: p.Pathname,
		search:   p.Search,
	}
	if n.pathname != "" && !strings.HasPrefix(n.pathname, "/") {
		n.pathname = "/" + n.pathname
	}
	if n.search != "" && !strings.HasPrefix(n.search, "?") {
		n.search = "?" + n.search
	}
	return n, nil
}

// matchURLPattern reports whether target matches pattern per the BiDi spec: an
// unset field of a structured pattern matches anything; every field of a
// literal pattern, and every set field of a structured one, must equal the
// corresponding normalized field on target exactly. The fragment is
// never considered, since target is normalized the same way a pattern's
// parsed literal URL would be.
func matchURLPattern(pattern URLPattern, target string) bool {
	pn, err := pattern.normalize()
	if err != nil {
		return false
	}
	tu, err := url.Parse(target)
	if err != nil {
		return false
	}
	tn := normalizeParsedURL(tu)
	literal := pattern.Type == "string"

	if (literal || pn.protocol != "") && pn.protocol != tn.protocol {
		return false
	}
	if (literal || pn.hostname != "") && pn.hostname != tn.hostname {
		return false
	}
	if (literal || pn.port != "") && pn.port != tn.port {
		return false
	}
	if (literal || pn.pathname != "") && pn.pathname != tn.pathname {
		return false
	}
	if (literal || pn.search != "") && pn.search != tn.search {
		return false
	}
	return true
}

// Intercept is one network.addIntercept registration: a set of
// phases it fires in, optional top-level context scoping, and optional URL
// patterns. An empty Phases/Contexts/Patterns list is a wildcard for that
// dimension.
type Intercept struct {
	ID       string
	Phases   []InterceptPhase
	Contexts []string
	Patterns []URLPattern
}

func (ic *Intercept) appliesToContext(topLevelID string) bool {
	if len(ic.Contexts) == 0 {
		return true
	}
	for _, c := range ic.Contexts {
		if c == topLevelID {
			return true
		}
	}
	return false
}

func (ic *Intercept) appliesToPhase(phase InterceptPhase) bool {
	if len(ic.Phases) == 0 {
		return true
	}
	for _, p := range ic.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

func (ic *Intercept) matchesURL(target string) bool {
	if len(ic.Patterns) == 0 {
		return true
	}
	for _, pat := range ic.Patterns {
		if matchURLPattern(pat, target) {
			return true
		}
	}
	return false
}

// InterceptStorage is the registry of active network.addIntercept
// registrations. It validates intercept ids for
// network.removeIntercept and, for a given request, reports which
// registered intercepts actually match it (the network.beforeRequestSent
// "intercepts" field, and whether Fetch.requestPaused should really hold
// the request or be waved straight through).
type InterceptStorage struct {
	mu     sync.Mutex
	order  []string
	byID   map[string]*Intercept
	nextID atomic.Uint64
}

func NewInterceptStorage() *InterceptStorage {
	return &InterceptStorage{byID: make(map[string]*Intercept)}
}

func (s *InterceptStorage) Add(phases []InterceptPhase, contexts []string, patterns []URLPattern) *Intercept {
	s.mu.Lock()
	defer s.mu.Unlock()
	ic := &Intercept{
		ID:       fmt.Sprintf("intercept-%d", s.nextID.Add(1)),
		Phases:   phases,
		Contexts: contexts,
		Patterns: patterns,
	}
	s.byID[ic.ID] = ic
	s.order = append(s.order, ic.ID)
	return ic
}

func (s *InterceptStorage) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return bidierr.NoSuchInterceptErr(id)
	}
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Matching returns, in registration order, the ids of every intercept that
// matches a request with the given top-level context, url and phase.
func (s *InterceptStorage) Matching(topLevelID, target string, phase InterceptPhase) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, id := range s.order {
		ic := s.byID[id]
		if ic.appliesToPhase(phase) && ic.appliesToContext(topLevelID) && ic.matchesURL(target) {
			ids = append(ids, ic.ID)
		}
	}
	return ids
}

// fetchState computes the CDP-level Fetch.enable pattern list and
// handleAuthRequests flag covering every currently registered intercept
//. CDP can only
// pause on a coarse glob/stage basis; the precise BiDi pattern match in
// Matching decides, per paused request, whether it is really blocked.
func (s *InterceptStorage) fetchState() ([]cdp.RequestPattern, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return nil, false
	}
	needRequest, needResponse, needAuth := false, false, false
	for _, id := range s.order {
		ic := s.byID[id]
		if len(ic.Phases) == 0 {
			needRequest, needResponse = true, true
			continue
		}
		for _, p := range ic.Phases {
			switch p {
			case PhaseRequest:
				needRequest = true
			case PhaseResponse:
				needResponse = true
			case PhaseAuth:
				needRequest, needAuth = true, true
			}
		}
	}
	var patterns []cdp.RequestPattern
	if needRequest {
		patterns = append(patterns, cdp.RequestPattern{URLPattern: "*", RequestStage: string(PhaseRequest)})
	}
	if needResponse {
		patterns = append(patterns, cdp.RequestPattern{URLPattern: "*", RequestStage: string(PhaseResponse)})
	}
	return patterns, needAuth
}

// biDiPhaseToInternal maps network.addIntercept's wire phase names to the
// internal InterceptPhase used to key Fetch's requestStage.
func biDiPhaseToInternal(p string) (InterceptPhase, error) {
	switch p {
	case "beforeRequestSent":
		return PhaseRequest, nil
	case "responseStarted":
		return PhaseResponse, nil
	case "authRequired":
		return PhaseAuth, nil
	default:
		return "", bidierr.InvalidArgumentf("unknown intercept phase %q", p)
	}
}
