package mapper

import (
	"sort"
	"strings"
	"sync"

	"github.com/vibium/mapper/internal/bidierr"
)

// moduleEvents expands a bidi.module name to its atomic event names, per
// the BiDi spec ("module-level events are expanded to the set of atomic
// events on subscribe"). The cdp module is intentionally absent: its event
// names are not statically enumerable, so it is matched by prefix instead
// (see isSubscribedToCDP).
var moduleEvents = map[string][]string{
	"browsingContext": {
		"browsingContext.contextCreated",
		"browsingContext.contextDestroyed",
		"browsingContext.navigationStarted",
		"browsingContext.fragmentNavigated",
		"browsingContext.historyUpdated",
		"browsingContext.domContentLoaded",
		"browsingContext.load",
		"browsingContext.navigationAborted",
		"browsingContext.navigationFailed",
		"browsingContext.userPromptOpened",
		"browsingContext.userPromptClosed",
		"browsingContext.downloadWillBegin",
	},
	"network": {
		"network.beforeRequestSent",
		"network.responseStarted",
		"network.responseCompleted",
		"network.fetchError",
		"network.authRequired",
	},
	"script": {
		"script.message",
		"script.realmCreated",
		"script.realmDestroyed",
	},
	"log": {
		"log.entryAdded",
	},
	"input": {
		"input.fileDialogOpened",
	},
}

// The cdp passthrough module answers to both its bare name and the
// goog:-prefixed vendor form; individual passthrough events are emitted as
// goog:cdp.<Event>.
const (
	cdpModulePrefix = "cdp."
	cdpEventPrefix  = "goog:cdp."
)

// isCDPModule reports whether a subscribe/unsubscribe name addresses the
// cdp passthrough module as a whole.
func isCDPModule(name string) bool {
	return name == "cdp" || name == "goog:cdp"
}

// isCDPEvent reports whether an event name belongs to the cdp passthrough
// module, matched by prefix since cdp event names are not statically
// enumerable.
func isCDPEvent(name string) bool {
	return strings.HasPrefix(name, cdpModulePrefix) || strings.HasPrefix(name, cdpEventPrefix)
}

// subscriptionKey identifies one (channel, context) subscription target; the
// zero value of context means "global" (context == nil in spec terms).
type subscriptionKey struct {
	channel string // "" stands for the null channel
	context string // "" stands for global
}

// SubscriptionManager is the per-channel, per-context routing table for
// event delivery: a registry of maps keyed one level deeper than the
// other storages, channel -> context -> event -> priority.
type SubscriptionManager struct {
	mu sync.Mutex
	// table[key][event] = priority. A lower priority value means an earlier
	// subscription.
	table map[subscriptionKey]map[string]int
	// cdpTable[key] = priority, for the cdp passthrough module, matched by
	// prefix rather than by exact event name.
	cdpTable map[subscriptionKey]int
	nextPriority int

	// topLevel resolves a context id to its top-level ancestor id; all
	// subscriptions are keyed on top-level contexts.
	topLevel func(contextID string) (string, bool)
}

// NewSubscriptionManager builds an empty SubscriptionManager. topLevel is
// used to redirect a subscription on a nested context to its top-level
// ancestor; it should normally be BrowsingContextStorage.TopLevelID.
func NewSubscriptionManager(topLevel func(contextID string) (string, bool)) *SubscriptionManager {
	return &SubscriptionManager{
		table:    make(map[subscriptionKey]map[string]int),
		cdpTable: make(map[subscriptionKey]int),
		topLevel: topLevel,
	}
}

func (m *SubscriptionManager) resolveContext(context string) string {
	if context == "" {
		return ""
	}
	if top, ok := m.topLevel(context); ok {
		return top
	}
	return context
}

// Subscribe records a subscription for one event name (atomic, a module
// name, or "cdp"/"cdp.<Event>") on the given context (empty = global) and
// channel (empty = null channel). Subscribing the same triple twice is a
// no-op that preserves the original priority.
func (m *SubscriptionManager) Subscribe(eventOrModule, context, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := subscriptionKey{channel: channel, context: m.resolveContext(context)}

	if isCDPModule(eventOrModule) {
		if _, ok := m.cdpTable[key]; !ok {
			m.cdpTable[key] = m.allocPriority()
		}
		return
	}

	for _, event := range m.expand(eventOrModule) {
		m.subscribeOne(key, event)
	}
}

func (m *SubscriptionManager) expand(eventOrModule string) []string {
	if events, ok := moduleEvents[eventOrModule]; ok {
		return events
	}
	return []string{eventOrModule}
}

func (m *SubscriptionManager) subscribeOne(key subscriptionKey, event string) {
	events := m.table[key]
	if events == nil {
		events = make(map[string]int)
		m.table[key] = events
	}
	if _, ok := events[event]; ok {
		return // idempotent: keep the original priority
	}
	events[event] = m.allocPriority()
}

func (m *SubscriptionManager) allocPriority() int {
	p := m.nextPriority
	m.nextPriority++
	return p
}

// Unsubscribe removes a subscription for one event/context/channel triple.
// Returns invalid-argument if no such subscription exists.
func (m *SubscriptionManager) Unsubscribe(eventOrModule, context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribeLocked(eventOrModule, context, channel)
}

func (m *SubscriptionManager) unsubscribeLocked(eventOrModule, context, channel string) error {
	key := subscriptionKey{channel: channel, context: m.resolveContext(context)}

	if isCDPModule(eventOrModule) {
		if _, ok := m.cdpTable[key]; !ok {
			return bidierr.InvalidArgumentf("not subscribed to cdp on context %q channel %q", context, channel)
		}
		delete(m.cdpTable, key)
		return nil
	}

	for _, event := range m.expand(eventOrModule) {
		events := m.table[key]
		if events == nil {
			return bidierr.InvalidArgumentf("not subscribed to %q on context %q channel %q", event, context, channel)
		}
		if _, ok := events[event]; !ok {
			return bidierr.InvalidArgumentf("not subscribed to %q on context %q channel %q", event, context, channel)
		}
	}
	for _, event := range m.expand(eventOrModule) {
		delete(m.table[key], event)
	}
	return nil
}

// UnsubscribeAllEntry pairs one event/module name with one context for a
// bulk unsubscribe.
type UnsubscribeAllEntry struct {
	Event   string
	Context string
}

// UnsubscribeAll validates every (event, context) pair against channel
// before making any change.
func (m *SubscriptionManager) UnsubscribeAll(entries []UnsubscribeAllEntry, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		key := subscriptionKey{channel: channel, context: m.resolveContext(e.Context)}
		if isCDPModule(e.Event) {
			if _, ok := m.cdpTable[key]; !ok {
				return bidierr.InvalidArgumentf("not subscribed to cdp on context %q channel %q", e.Context, channel)
			}
			continue
		}
		events := m.table[key]
		for _, ev := range m.expand(e.Event) {
			if events == nil {
				return bidierr.InvalidArgumentf("not subscribed to %q on context %q channel %q", ev, e.Context, channel)
			}
			if _, ok := events[ev]; !ok {
				return bidierr.InvalidArgumentf("not subscribed to %q on context %q channel %q", ev, e.Context, channel)
			}
		}
	}

	for _, e := range entries {
		key := subscriptionKey{channel: channel, context: m.resolveContext(e.Context)}
		if isCDPModule(e.Event) {
			delete(m.cdpTable, key)
			continue
		}
		for _, ev := range m.expand(e.Event) {
			delete(m.table[key], ev)
		}
	}
	return nil
}

// channelPriority is an intermediate result used to sort channels by their
// minimum subscription priority before returning just the channel names.
type channelPriority struct {
	channel  string
	priority int
}

// ChannelsSubscribedTo returns, in ascending priority order, every channel
// subscribed to event on context — checking both the global (context="")
// entry and the context's top-level entry, and both the atomic event name
// and any module prefix that covers it.
func (m *SubscriptionManager) ChannelsSubscribedTo(event, context string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	top := m.resolveContext(context)
	best := make(map[string]int) // channel -> minimum priority seen

	consider := func(ctxKey string) {
		for key, events := range m.table {
			if key.context != ctxKey {
				continue
			}
			if p, ok := events[event]; ok {
				if cur, seen := best[key.channel]; !seen || p < cur {
					best[key.channel] = p
				}
			}
		}
	}
	consider("")
	if top != "" {
		consider(top)
	}

	// A cdp passthrough event is additionally covered by any whole-module
	// cdp subscription, matched by prefix.
	if isCDPEvent(event) {
		for key, p := range m.cdpTable {
			if key.context != "" && key.context != top {
				continue
			}
			if cur, seen := best[key.channel]; !seen || p < cur {
				best[key.channel] = p
			}
		}
	}

	out := make([]channelPriority, 0, len(best))
	for ch, p := range best {
		out = append(out, channelPriority{channel: ch, priority: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].priority < out[j].priority })

	channels := make([]string, len(out))
	for i, cp := range out {
		channels[i] = cp.channel
	}
	return channels
}

// ChannelsSubscribedToCDP returns, in ascending priority order, every
// channel with a whole-module "cdp" subscription covering context —
// checking both the global (context="") entry and the context's top-level
// entry.
func (m *SubscriptionManager) ChannelsSubscribedToCDP(context string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	top := m.resolveContext(context)
	out := make([]channelPriority, 0, len(m.cdpTable))
	for key, p := range m.cdpTable {
		if key.context != "" && key.context != top {
			continue
		}
		out = append(out, channelPriority{channel: key.channel, priority: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].priority < out[j].priority })

	channels := make([]string, len(out))
	for i, cp := range out {
		channels[i] = cp.channel
	}
	return channels
}

// IsSubscribedTo reports whether any channel is subscribed to
// eventOrModule on context (used internally by the event manager before it
// bothers building an event payload at all).
func (m *SubscriptionManager) IsSubscribedTo(eventOrModule, context string) bool {
	if isCDPModule(eventOrModule) || isCDPEvent(eventOrModule) {
		if m.isSubscribedToCDP(context) {
			return true
		}
		// An exact-name subscription on a single passthrough event also
		// counts; fall through to the atomic lookup.
	}
	for _, event := range m.expand(eventOrModule) {
		if len(m.ChannelsSubscribedTo(event, context)) > 0 {
			return true
		}
	}
	return false
}

func (m *SubscriptionManager) isSubscribedToCDP(context string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	top := m.resolveContext(context)
	for key := range m.cdpTable {
		if key.context == "" || key.context == top {
			return true
		}
	}
	return false
}

