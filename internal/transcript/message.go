// Package transcript holds the ordered conversation log shown to the user.
package transcript

import "time"

// Author identifies who produced a transcript entry.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
	AuthorSystem    Author = "system"
	AuthorError     Author = "error"
)

// Ref is a stable handle to a message, usable after later appends.
type Ref uint64

// Message is a single transcript entry.
type Message struct {
	Ref         Ref       `json:"ref"`
	Author      Author    `json:"author"`
	Text        string    `json:"text"`
	Order       uint64    `json:"order"`
	Placeholder bool      `json:"placeholder,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChangeKind describes what happened to a message.
type ChangeKind string

const (
	ChangeAppended ChangeKind = "appended"
	ChangeUpdated  ChangeKind = "updated"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is emitted for every effective transcript mutation.
type Change struct {
	Kind    ChangeKind
	Message Message
}

// Listener receives transcript changes in mutation order.
type Listener func(Change)
