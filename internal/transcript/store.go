package transcript

import (
	"sync"
	"time"
)

// Store is an append-only message log. The only entries that change after
// insertion are placeholders, which may be updated in place and removed.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	nextRef  Ref
	nextSeq  uint64
	listener Listener
	now      func() time.Time
}

// NewStore creates an empty store. listener may be nil.
func NewStore(listener Listener) *Store {
	return &Store{listener: listener, now: time.Now}
}

// Append inserts a message at the end of the log.
func (s *Store) Append(author Author, text string) Ref {
	return s.insert(author, text, false)
}

// AppendPlaceholder inserts a transient System entry that stands in for an
// unresolved request.
func (s *Store) AppendPlaceholder(text string) Ref {
	return s.insert(AuthorSystem, text, true)
}

func (s *Store) insert(author Author, text string, placeholder bool) Ref {
	s.mu.Lock()
	s.nextRef++
	s.nextSeq++
	msg := Message{
		Ref:         s.nextRef,
		Author:      author,
		Text:        text,
		Order:       s.nextSeq,
		Placeholder: placeholder,
		CreatedAt:   s.now(),
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAppended, Message: msg})
	return msg.Ref
}

// Update replaces the text of an existing message. Unknown or already
// removed refs are ignored.
func (s *Store) Update(ref Ref, text string) bool {
	s.mu.Lock()
	i := s.indexOf(ref)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages[i].Text = text
	msg := s.messages[i]
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpdated, Message: msg})
	return true
}

// Remove deletes the message if present.
func (s *Store) Remove(ref Ref) bool {
	s.mu.Lock()
	i := s.indexOf(ref)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	msg := s.messages[i]
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeRemoved, Message: msg})
	return true
}

// Get returns the message for ref, if it is still in the log.
func (s *Store) Get(ref Ref) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(ref)
	if i < 0 {
		return Message{}, false
	}
	return s.messages[i], true
}

// Messages returns a copy of the log in insertion order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages currently in the log.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(ref Ref) int {
	if ref == 0 {
		return -1
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Ref == ref {
			return i
		}
	}
	return -1
}

func (s *Store) notify(c Change) {
	if s.listener != nil {
		s.listener(c)
	}
}
