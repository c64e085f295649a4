// Package backend is the HTTP boundary to the remote reasoning backend.
package backend

import (
	"context"
	"errors"
	"io"
)

// Operation names one of the remote operations the shell can invoke.
type Operation string

const (
	OpVoiceCommand   Operation = "voice-command"
	OpTextCommand    Operation = "text-command"
	OpAskDocument    Operation = "ask-document"
	OpUploadDocument Operation = "upload-document"
)

// Dispatcher issues a remote operation. Any returned error is a *Failure.
type Dispatcher interface {
	Dispatch(ctx context.Context, op Operation, payload any) (Response, error)
}

// TextInput is sent as a JSON body.
type TextInput struct {
	UserInput string `json:"user_input"`
}

// FileUpload is sent as a multipart form with a single "file" part.
// Content is read when set; otherwise the file at Path is opened.
type FileUpload struct {
	Name    string
	Path    string
	Content io.Reader
}

// Response is the union of the fields the backend answers with.
type Response struct {
	Status      string `json:"status,omitempty"`
	UserText    string `json:"user_text,omitempty"`
	FullText    string `json:"full_text,omitempty"`
	SummaryText string `json:"summary_text,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Reply returns the text to show for a reply-bearing operation.
func (r Response) Reply() string {
	if r.FullText != "" {
		return r.FullText
	}
	return r.SummaryText
}

// FailureKind classifies why an operation did not succeed.
type FailureKind string

const (
	TransportFailure  FailureKind = "transport"
	ServerFailure     FailureKind = "server"
	ValidationFailure FailureKind = "validation"
)

const (
	// DefaultFailureMessage is shown when the backend gives no explanation.
	DefaultFailureMessage = "Could not reach the backend."
	emptyReplyMessage     = "The backend returned an empty reply."
	malformedReplyMessage = "The backend returned an unreadable reply."
)

// Failure is the normalized error for every unsuccessful dispatch.
type Failure struct {
	Kind    FailureKind
	Op      Operation
	Status  int
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return f.Message
	}
	return DefaultFailureMessage
}

func (f *Failure) Unwrap() error { return f.Err }

// AsFailure converts any error into a *Failure, defaulting to a transport
// failure for errors that did not come from the dispatcher.
func AsFailure(op Operation, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: TransportFailure, Op: op, Message: DefaultFailureMessage, Err: err}
}
