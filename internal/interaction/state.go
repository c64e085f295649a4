package interaction

import (
	"fmt"

	"github.com/dohr-michael/lumi/internal/transcript"
)

// Transcript texts shown by the controller.
const (
	ListeningText  = "Listening…"
	ThinkingText   = "Thinking…"
	VoiceAdvisory  = "Voice input is off while a document is loaded. Type your question about it instead."
	ClearedMessage = "Document closed. Back to general conversation."
)

func uploadingText(name string) string {
	return fmt.Sprintf("Uploading %s…", name)
}

func uploadedText(name string) string {
	return fmt.Sprintf("%s is loaded. Ask me anything about it.", name)
}

// ModeKind discriminates the conversation mode.
type ModeKind int

const (
	General ModeKind = iota
	DocumentQA
)

func (k ModeKind) String() string {
	if k == DocumentQA {
		return "document"
	}
	return "general"
}

func (k ModeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ModeKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "general", "":
		*k = General
	case "document":
		*k = DocumentQA
	default:
		return fmt.Errorf("unknown mode %q", b)
	}
	return nil
}

// Mode is the conversation mode. Document is set only for DocumentQA.
type Mode struct {
	Kind     ModeKind `json:"kind"`
	Document string   `json:"document,omitempty"`
}

// GeneralMode returns the mode with no attached document.
func GeneralMode() Mode { return Mode{Kind: General} }

// DocumentMode returns the mode in which questions target name.
func DocumentMode(name string) Mode { return Mode{Kind: DocumentQA, Document: name} }

// Label is the human-readable mode shown next to the input.
func (m Mode) Label() string {
	if m.Kind == DocumentQA {
		return "Document: " + m.Document
	}
	return "General"
}

// Processing is the request lifecycle state. Anything but Idle blocks new
// user-initiated requests.
type Processing int

const (
	Idle Processing = iota
	Listening
	Thinking
	Busy
)

var processingNames = [...]string{"idle", "listening", "thinking", "busy"}

func (p Processing) String() string {
	if p < 0 || int(p) >= len(processingNames) {
		return fmt.Sprintf("processing(%d)", int(p))
	}
	return processingNames[p]
}

func (p Processing) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Processing) UnmarshalText(b []byte) error {
	for i, name := range processingNames {
		if name == string(b) {
			*p = Processing(i)
			return nil
		}
	}
	return fmt.Errorf("unknown processing state %q", b)
}

// Outcome reports what the controller did with a user action.
type Outcome int

const (
	// Ignored: the action was dropped (busy, blank input, nothing to clear).
	Ignored Outcome = iota
	// Accepted: the action changed state or issued a request.
	Accepted
	// Advised: the action was refused with an explanatory transcript entry.
	Advised
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Advised:
		return "advised"
	default:
		return "ignored"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "accepted":
		*o = Accepted
	case "advised":
		*o = Advised
	case "ignored":
		*o = Ignored
	default:
		return fmt.Errorf("unknown outcome %q", b)
	}
	return nil
}

// Snapshot is a consistent read-only view of the session for renderers.
type Snapshot struct {
	SessionID   string               `json:"session_id,omitempty"`
	Mode        Mode                 `json:"mode"`
	ModeLabel   string               `json:"mode_label"`
	Processing  Processing           `json:"processing"`
	Placeholder transcript.Ref       `json:"placeholder,omitempty"`
	Welcome     bool                 `json:"welcome"`
	Messages    []transcript.Message `json:"messages"`
}

// InputEnabled reports whether the text input affordance should accept input.
func (s Snapshot) InputEnabled() bool { return s.Processing == Idle }

// Highlight reports whether the orb shows its listening/thinking visual.
func (s Snapshot) Highlight() bool {
	return s.Processing == Listening || s.Processing == Thinking
}
