// Package sessions persists interaction transcripts so past conversations
// can be listed and reviewed.
package sessions

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no session matches an id.
	ErrNotFound = errors.New("session not found")
	// ErrAmbiguous is returned when an id prefix matches several sessions.
	ErrAmbiguous = errors.New("session id is ambiguous")
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// RequestUsage accumulates backend request outcomes for a session.
type RequestUsage struct {
	Total     int           `json:"total" yaml:"total"`
	Failed    int           `json:"failed" yaml:"failed"`
	TotalTime time.Duration `json:"total_time" yaml:"total_time"`
}

// Session holds metadata about an interaction session.
type Session struct {
	ID           string        `json:"id" yaml:"id"`
	Title        string        `json:"title" yaml:"title"`
	CreatedAt    time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" yaml:"updated_at"`
	Status       SessionStatus `json:"status" yaml:"status"`
	Mode         string        `json:"mode,omitempty" yaml:"mode,omitempty"`
	Document     string        `json:"document,omitempty" yaml:"document,omitempty"`
	Backend      string        `json:"backend,omitempty" yaml:"backend,omitempty"`
	MessageCount int           `json:"message_count" yaml:"message_count"`
	Requests     RequestUsage  `json:"requests" yaml:"requests"`
}

// Message is a single transcript entry, serializable to JSONL.
type Message struct {
	Author string    `json:"author" yaml:"author"`
	Text   string    `json:"text" yaml:"text"`
	Order  uint64    `json:"order" yaml:"order"`
	Ts     time.Time `json:"ts" yaml:"ts"`
}

// Store defines the persistence interface for sessions.
type Store interface {
	// Create starts an active session talking to backend.
	Create(backend string) (*Session, error)
	Get(id string) (*Session, error)
	// List returns sessions, most recently updated first.
	List() ([]*Session, error)
	// Update applies fn to the stored metadata and saves it. UpdatedAt is
	// refreshed.
	Update(id string, fn func(*Session)) error
	// Close marks the session closed.
	Close(id string) error
	AppendMessage(sessionID string, msg Message) error
	LoadMessages(sessionID string) ([]Message, error)
}
