package events

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func appended(text string) TranscriptAppendedPayload {
	return TranscriptAppendedPayload{MessagePayload{Author: "user", Text: text}}
}

// collector records delivered events.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.events {
		p, _ := GetMessagePayload(e)
		out = append(out, p.Text)
	}
	return out
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestBusFiltersByType(t *testing.T) {
	bus := NewBus(64)

	var only, all collector
	bus.Subscribe(only.handle, EventTranscriptAppended)
	bus.Subscribe(all.handle)

	bus.Publish(NewTypedEvent(SourceController, appended("hello")))
	bus.Publish(NewTypedEvent(SourceController, SessionStatePayload{Mode: "general", Processing: "idle"}))
	bus.Close()

	if only.len() != 1 || only.events[0].Type != EventTranscriptAppended {
		t.Fatalf("filtered subscriber got %d events", only.len())
	}
	if all.len() != 2 {
		t.Fatalf("catch-all subscriber got %d events", all.len())
	}
}

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewBus(256)

	var c collector
	bus.Subscribe(c.handle, EventTranscriptAppended)
	for i := 0; i < 100; i++ {
		bus.Publish(NewTypedEvent(SourceController, appended(fmt.Sprint(i))))
	}
	bus.Close()

	got := c.texts()
	if len(got) != 100 {
		t.Fatalf("received %d events", len(got))
	}
	for i, text := range got {
		if text != fmt.Sprint(i) {
			t.Fatalf("event %d out of order: %q", i, text)
		}
	}
}

func TestBusSubscribersRunInRegistrationOrder(t *testing.T) {
	bus := NewBus(8)

	var order []string
	for _, name := range []string{"recorder", "log", "host"} {
		bus.Subscribe(func(Event) { order = append(order, name) })
	}
	bus.Publish(NewTypedEvent(SourceController, appended("x")))
	bus.Close()

	if fmt.Sprint(order) != "[recorder log host]" {
		t.Fatalf("order = %v", order)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(64)

	var c collector
	unsub := bus.Subscribe(c.handle)
	unsub()
	unsub()

	bus.Publish(NewTypedEvent(SourceController, appended("hello")))
	bus.Close()

	if c.len() != 0 {
		t.Errorf("expected no delivery after unsubscribe, got %d", c.len())
	}
}

func TestBusCloseDrainsQueue(t *testing.T) {
	bus := NewBus(16)

	release := make(chan struct{})
	var c collector
	bus.Subscribe(func(e Event) {
		<-release
		c.handle(e)
	})

	for i := 0; i < 5; i++ {
		bus.Publish(NewTypedEvent(SourceController, appended(fmt.Sprint(i))))
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	bus.Close()

	if c.len() != 5 {
		t.Fatalf("expected queued events to be delivered on close, got %d", c.len())
	}

	bus.Publish(NewTypedEvent(SourceController, appended("late")))
	bus.Close()
	if c.len() != 5 {
		t.Fatal("events published after close should be discarded")
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(2)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
	})

	bus.Publish(NewTypedEvent(SourceController, appended("in flight")))
	<-started
	for i := 0; i < 5; i++ {
		bus.Publish(NewTypedEvent(SourceController, appended(fmt.Sprint(i))))
	}

	if got := bus.Dropped(); got != 3 {
		t.Fatalf("dropped = %d, want 3", got)
	}
	close(block)
	bus.Close()
}

func TestBusHistory(t *testing.T) {
	bus := NewBus(8)
	bus.Publish(NewTypedEvent(SourceController, appended("a")))
	bus.Publish(NewTypedEvent(SourceController, RequestIssuedPayload{RequestID: 1, Operation: "text-command"}))
	bus.Close()

	history := bus.History(10)
	if len(history) != 2 {
		t.Fatalf("expected 2 events in history, got %d", len(history))
	}
	if history[1].Type != EventRequestIssued {
		t.Errorf("expected newest last, got %s", history[1].Type)
	}
}

func TestRing(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 5; i++ {
		r.add(NewEvent(EventTranscriptAppended, SourceController, map[string]any{"i": i}))
	}

	events := r.last(10)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Payload["i"] != 2 || events[2].Payload["i"] != 4 {
		t.Errorf("expected oldest-first window [2..4], got %v..%v", events[0].Payload["i"], events[2].Payload["i"])
	}
	if r.last(0) != nil {
		t.Error("last(0) should be empty")
	}
}

func TestSubscribeChan(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	ch, unsub := bus.SubscribeChan(8, EventTranscriptAppended)
	defer unsub()

	bus.Publish(NewTypedEvent(SourceController, appended("hello")))

	select {
	case e := <-ch:
		if e.Type != EventTranscriptAppended {
			t.Errorf("expected transcript.appended, got %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestSubscribeChanUnsubscribeTwice(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	ch, unsub := bus.SubscribeChan(1)
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
}
