package transcript

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type entry struct {
	Author Author
	Text   string
}

func entries(msgs []Message) []entry {
	out := make([]entry, len(msgs))
	for i, m := range msgs {
		out[i] = entry{Author: m.Author, Text: m.Text}
	}
	return out
}

func TestAppendPreservesOrder(t *testing.T) {
	s := NewStore(nil)

	s.Append(AuthorUser, "hello")
	s.Append(AuthorAssistant, "hi there")
	s.Append(AuthorError, "boom")

	want := []entry{
		{AuthorUser, "hello"},
		{AuthorAssistant, "hi there"},
		{AuthorError, "boom"},
	}
	if diff := cmp.Diff(want, entries(s.Messages())); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	msgs := s.Messages()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Order <= msgs[i-1].Order {
			t.Errorf("order not increasing at %d: %d <= %d", i, msgs[i].Order, msgs[i-1].Order)
		}
	}
}

func TestPlaceholderUpdateAndRemove(t *testing.T) {
	s := NewStore(nil)

	s.Append(AuthorUser, "before")
	ref := s.AppendPlaceholder("Listening…")

	if !s.Update(ref, "Thinking…") {
		t.Fatal("Update on live placeholder returned false")
	}
	got, ok := s.Get(ref)
	if !ok || got.Text != "Thinking…" || !got.Placeholder || got.Author != AuthorSystem {
		t.Fatalf("placeholder = %+v, ok=%v", got, ok)
	}

	if !s.Remove(ref) {
		t.Fatal("Remove on live placeholder returned false")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestUpdateRemoveAfterRemovalAreNoops(t *testing.T) {
	var changes []Change
	s := NewStore(func(c Change) { changes = append(changes, c) })

	ref := s.AppendPlaceholder("Listening…")
	s.Remove(ref)

	if s.Update(ref, "Thinking…") {
		t.Error("Update after Remove should report false")
	}
	if s.Remove(ref) {
		t.Error("second Remove should report false")
	}
	if s.Remove(0) {
		t.Error("Remove of zero ref should report false")
	}

	kinds := make([]ChangeKind, len(changes))
	for i, c := range changes {
		kinds[i] = c.Kind
	}
	want := []ChangeKind{ChangeAppended, ChangeRemoved}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestListenerSeesMutationOrder(t *testing.T) {
	var changes []Change
	s := NewStore(func(c Change) { changes = append(changes, c) })

	ref := s.AppendPlaceholder("Listening…")
	s.Update(ref, "Thinking…")
	s.Remove(ref)
	s.Append(AuthorAssistant, "done")

	want := []Change{
		{Kind: ChangeAppended, Message: Message{Ref: ref, Author: AuthorSystem, Text: "Listening…", Order: 1, Placeholder: true}},
		{Kind: ChangeUpdated, Message: Message{Ref: ref, Author: AuthorSystem, Text: "Thinking…", Order: 1, Placeholder: true}},
		{Kind: ChangeRemoved, Message: Message{Ref: ref, Author: AuthorSystem, Text: "Thinking…", Order: 1, Placeholder: true}},
		{Kind: ChangeAppended, Message: Message{Ref: ref + 1, Author: AuthorAssistant, Text: "done", Order: 2}},
	}
	if diff := cmp.Diff(want, changes, cmpopts.IgnoreFields(Message{}, "CreatedAt")); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	s := NewStore(nil)
	s.Append(AuthorUser, "original")

	msgs := s.Messages()
	msgs[0].Text = "mutated"

	if got := s.Messages()[0].Text; got != "original" {
		t.Errorf("store mutated through returned slice: %q", got)
	}
}
