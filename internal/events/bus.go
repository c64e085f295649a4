// Package events is the in-process event bus of a Lumi session. The
// controller publishes every transcript and state change on it; hosts,
// recorders, the event log and the gateway subscribe.
package events

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the queue and history size used when none is given.
const DefaultBufferSize = 1024

// EventType represents the type of event.
type EventType string

const (
	// Transcript changes, emitted in mutation order.
	EventTranscriptAppended EventType = "transcript.appended"
	EventTranscriptUpdated  EventType = "transcript.updated"
	EventTranscriptRemoved  EventType = "transcript.removed"

	// Controller state (mode, processing, affordances).
	EventSessionState   EventType = "session.state"
	EventSessionCreated EventType = "session.created"
	EventSessionClosed  EventType = "session.closed"

	// User input as seen by the controller, with the decision taken.
	EventInput EventType = "input.received"

	// Backend request lifecycle.
	EventRequestIssued   EventType = "request.issued"
	EventRequestResolved EventType = "request.resolved"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceController EventSource = "controller"
)

// Event is one bus message. Payload holds the JSON form of a typed payload.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

var eventSeq atomic.Uint64

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, source EventSource, payload map[string]any) Event {
	return Event{
		ID:        fmt.Sprintf("evt-%d-%d", time.Now().UnixNano(), eventSeq.Add(1)),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Payload:   payload,
	}
}

// Subscriber receives events on the bus goroutine. It must not block and
// must not call Close.
type Subscriber func(Event)

type subscription struct {
	id      int
	types   map[EventType]struct{}
	handler Subscriber
}

func (s *subscription) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus queues published events and delivers them from a single goroutine,
// in publish order, to subscribers in registration order.
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscription
	nextID  int
	closed  bool
	queue   chan Event
	history *ring
	dropped atomic.Uint64
	stopped chan struct{}
}

// NewBus creates a bus whose queue and history hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	b := &Bus{
		queue:   make(chan Event, bufferSize),
		history: newRing(bufferSize),
		stopped: make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	defer close(b.stopped)
	for e := range b.queue {
		b.history.add(e)
		b.deliver(e)
	}
}

func (b *Bus) deliver(e Event) {
	b.mu.RLock()
	targets := make([]Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(e.Type) {
			targets = append(targets, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		h(e)
	}
}

// Publish queues e. It never blocks: when the queue is full the event is
// dropped and counted. Events published after Close are discarded.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	select {
	case b.queue <- e:
	default:
		if b.dropped.Add(1) == 1 {
			slog.Warn("event bus full, dropping events", "type", e.Type)
		}
	}
}

// Dropped returns how many events were lost to a full queue.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe registers handler for the given event types, or for every
// event when none are given. It returns the unsubscribe function.
func (b *Bus) Subscribe(handler Subscriber, eventTypes ...EventType) func() {
	sub := &subscription{handler: handler}
	if len(eventTypes) > 0 {
		sub.types = make(map[EventType]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	sub.id = b.nextID
	b.nextID++
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s *subscription) bool { return s.id == sub.id })
	}
}

// SubscribeChan delivers matching events on a buffered channel. Events that
// do not fit are dropped, so consumers should re-read state rather than
// rely on every event. The returned function unsubscribes and closes the
// channel; it is safe to call twice.
func (b *Bus) SubscribeChan(bufSize int, eventTypes ...EventType) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)

	var mu sync.Mutex
	done := false
	unsubscribe := b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		select {
		case ch <- e:
		default:
		}
	}, eventTypes...)

	return ch, func() {
		unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if !done {
			done = true
			close(ch)
		}
	}
}

// History returns up to limit recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	return b.history.last(limit)
}

// Close stops accepting events, delivers those already queued and waits
// for delivery to finish. Later calls only wait.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()
	<-b.stopped
}

// ring keeps the most recent events.
type ring struct {
	mu     sync.RWMutex
	events []Event
	next   int
	count  int
}

func newRing(size int) *ring {
	return &ring{events: make([]Event, size)}
}

func (r *ring) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.next] = e
	r.next = (r.next + 1) % len(r.events)
	if r.count < len(r.events) {
		r.count++
	}
}

func (r *ring) last(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n = min(n, r.count)
	if n <= 0 {
		return nil
	}
	size := len(r.events)
	out := make([]Event, n)
	start := (r.next - n + size) % size
	for i := range out {
		out[i] = r.events[(start+i)%size]
	}
	return out
}
