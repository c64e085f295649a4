package sessions

import (
	"testing"
	"time"

	"github.com/dohr-michael/lumi/internal/events"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func publishMessage(bus *events.Bus, sessionID string, msg events.MessagePayload) {
	bus.Publish(events.NewTypedEventWithSession(events.SourceController, events.TranscriptAppendedPayload{MessagePayload: msg}, sessionID))
}

func TestRecorderPersistsMessages(t *testing.T) {
	store := NewFileStore(t.TempDir())
	s, err := store.Create("")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	bus := events.NewBus(64)
	defer bus.Close()

	rec := NewRecorder(store, s.ID)
	rec.Attach(bus)
	defer rec.Detach()

	publishMessage(bus, s.ID, events.MessagePayload{Ref: 1, Author: "system", Text: "Listening…", Order: 1, Placeholder: true})
	publishMessage(bus, s.ID, events.MessagePayload{Ref: 2, Author: "user", Text: "what time is it", Order: 2})
	publishMessage(bus, "sess_other", events.MessagePayload{Ref: 1, Author: "user", Text: "not mine", Order: 1})
	publishMessage(bus, s.ID, events.MessagePayload{Ref: 3, Author: "assistant", Text: "noon", Order: 3})

	var msgs []Message
	waitFor(t, "two persisted messages", func() bool {
		msgs, _ = store.LoadMessages(s.ID)
		return len(msgs) == 2
	})

	if msgs[0].Text != "what time is it" || msgs[1].Text != "noon" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if msgs[0].Order != 2 || msgs[1].Author != "assistant" {
		t.Fatalf("unexpected fields %+v", msgs)
	}
}

func TestRecorderTracksModeAndClose(t *testing.T) {
	store := NewFileStore(t.TempDir())
	s, err := store.Create("")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	bus := events.NewBus(64)
	defer bus.Close()

	rec := NewRecorder(store, s.ID)
	rec.Attach(bus)
	defer rec.Detach()

	bus.Publish(events.NewTypedEventWithSession(events.SourceController,
		events.SessionStatePayload{Mode: "document", Document: "report.pdf", Processing: "idle"}, s.ID))
	bus.Publish(events.NewTypedEventWithSession(events.SourceController,
		events.SessionClosedPayload{SessionID: s.ID}, s.ID))

	waitFor(t, "closed session", func() bool {
		got, err := store.Get(s.ID)
		return err == nil && got.Status == SessionClosed
	})

	got, err := store.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Mode != "document" || got.Document != "report.pdf" {
		t.Errorf("mode = %q/%q", got.Mode, got.Document)
	}
}

func TestRecorderDetach(t *testing.T) {
	store := NewFileStore(t.TempDir())
	s, err := store.Create("")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	bus := events.NewBus(64)
	defer bus.Close()

	rec := NewRecorder(store, s.ID)
	rec.Attach(bus)
	rec.Detach()
	rec.Detach()

	publishMessage(bus, s.ID, events.MessagePayload{Ref: 1, Author: "user", Text: "hello", Order: 1})
	time.Sleep(30 * time.Millisecond)

	msgs, err := store.LoadMessages(s.ID)
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected nothing persisted after Detach, got %d", len(msgs))
	}
}
