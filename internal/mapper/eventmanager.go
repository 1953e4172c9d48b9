package mapper

import "sync"

// queuedEvent is one entry in the Event Manager's emission queue: the
// event's identity plus a resolver that produces its params. The resolver
// is allowed to block (e.g. on a realm or navigation id not yet assigned)
// without blocking events queued after it for different contexts, because
// each queuedEvent is resolved on its own goroutine; only the final
// send to the sink is serialized, preserving emission order.
type queuedEvent struct {
	method  string
	context string
	resolve func() (any, error)
	done    chan resolvedEvent
}

type resolvedEvent struct {
	params any
	err    error
}

// EventManager is the ordered event-delivery queue: BiDi requires that
// events for a given client are delivered in the order the underlying CDP
// events occurred, even though building an event's params can itself
// require further (possibly slow) lookups. It resolves each queued event
// concurrently but flushes them to the sink strictly in enqueue order.
type EventManager struct {
	subs *SubscriptionManager
	sink func(method string, params any, channel *string)

	mu     sync.Mutex
	queue  []*queuedEvent
	notify chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func NewEventManager(subs *SubscriptionManager, sink func(method string, params any, channel *string)) *EventManager {
	em := &EventManager{
		subs:   subs,
		sink:   sink,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go em.flushLoop()
	return em
}

// Close stops the flush loop. Events still queued are dropped; the session
// is shutting down and their client connection is gone.
func (em *EventManager) Close() {
	em.closeOnce.Do(func() { close(em.done) })
}

// Emit enqueues an event. resolve is called exactly once, on its own
// goroutine, to build the event's params; its result is held until every
// event queued ahead of it has been sent.
func (em *EventManager) Emit(method, context string, resolve func() (any, error)) {
	qe := &queuedEvent{method: method, context: context, resolve: resolve, done: make(chan resolvedEvent, 1)}

	em.mu.Lock()
	em.queue = append(em.queue, qe)
	em.mu.Unlock()

	go func() {
		params, err := resolve()
		qe.done <- resolvedEvent{params: params, err: err}
	}()

	select {
	case em.notify <- struct{}{}:
	default:
	}
}

func (em *EventManager) flushLoop() {
	for {
		select {
		case <-em.done:
			return
		case <-em.notify:
		}
		for {
			em.mu.Lock()
			if len(em.queue) == 0 {
				em.mu.Unlock()
				break
			}
			qe := em.queue[0]
			em.mu.Unlock()

			resolved := <-qe.done

			em.mu.Lock()
			em.queue = em.queue[1:]
			em.mu.Unlock()

			if resolved.err != nil {
				continue // a failed resolver simply drops its event
			}
			em.deliver(qe.method, qe.context, resolved.params)
		}
	}
}

func (em *EventManager) deliver(method, context string, params any) {
	channels := em.subs.ChannelsSubscribedTo(method, context)
	for _, ch := range channels {
		var channelPtr *string
		if ch != "" {
			c := ch
			channelPtr = &c
		}
		em.sink(method, params, channelPtr)
	}
}
