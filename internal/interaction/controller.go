// Package interaction implements the session controller: it owns the
// conversation mode, the processing state and the transcript, and decides
// which backend operation a user action triggers.
package interaction

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dohr-michael/lumi/internal/backend"
	"github.com/dohr-michael/lumi/internal/events"
	"github.com/dohr-michael/lumi/internal/transcript"
)

// DefaultListenWindow matches the backend's voice capture duration.
const DefaultListenWindow = 5 * time.Second

// Options configures a Controller.
type Options struct {
	Dispatcher   backend.Dispatcher
	Bus          *events.Bus // optional
	SessionID    string
	ListenWindow time.Duration
	Clock        Clock
	// Welcome shows the static welcome until the first interaction.
	Welcome bool
}

// Controller is the single owner of the interaction session. All exported
// methods are safe for concurrent use; every transition runs under one
// mutex, including request resolutions and timer callbacks.
type Controller struct {
	dispatcher   backend.Dispatcher
	bus          *events.Bus
	sessionID    string
	listenWindow time.Duration
	clock        Clock

	mu          sync.Mutex
	transcript  *transcript.Store
	mode        Mode
	processing  Processing
	placeholder transcript.Ref
	welcome     bool
	voiceGen    uint64
	requestSeq  uint64
	timer       Timer
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller in General mode, Idle, with an empty transcript.
func New(opts Options) (*Controller, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("interaction: dispatcher is required")
	}
	if opts.ListenWindow <= 0 {
		opts.ListenWindow = DefaultListenWindow
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		dispatcher:   opts.Dispatcher,
		bus:          opts.Bus,
		sessionID:    opts.SessionID,
		listenWindow: opts.ListenWindow,
		clock:        opts.Clock,
		mode:         GeneralMode(),
		processing:   Idle,
		welcome:      opts.Welcome,
		ctx:          ctx,
		cancel:       cancel,
	}
	c.transcript = transcript.NewStore(c.onTranscriptChange)

	if c.sessionID != "" {
		c.publish(events.SessionCreatedPayload{SessionID: c.sessionID})
	}
	c.publishState()
	return c, nil
}

// SessionID returns the identifier the controller tags its events with.
func (c *Controller) SessionID() string { return c.sessionID }

// ActivateOrb starts a voice interaction.
func (c *Controller) ActivateOrb() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.processing != Idle {
		return c.ignore("activate_orb", c.processing.String())
	}

	if c.mode.Kind == DocumentQA {
		c.dismissWelcome()
		c.transcript.Append(transcript.AuthorSystem, VoiceAdvisory)
		c.publishInput("activate_orb", Advised, c.mode.Document)
		c.publishState()
		return Advised
	}

	c.dismissWelcome()
	c.placeholder = c.transcript.AppendPlaceholder(ListeningText)
	c.processing = Listening
	c.voiceGen++
	gen := c.voiceGen

	c.timer = c.clock.AfterFunc(c.listenWindow, func() { c.listenElapsed(gen) })
	c.issue(backend.OpVoiceCommand, nil, func(resp backend.Response, err error) {
		c.resolveVoice(resp, err)
	})

	c.publishInput("activate_orb", Accepted, "")
	c.publishState()
	return Accepted
}

// SubmitText sends text to the backend. The operation is chosen from the
// mode at submission time.
func (c *Controller) SubmitText(text string) Outcome {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if text == "" {
		return c.ignore("submit_text", "blank")
	}
	if c.closed || c.processing != Idle {
		return c.ignore("submit_text", c.processing.String())
	}

	op := backend.OpTextCommand
	if c.mode.Kind == DocumentQA {
		op = backend.OpAskDocument
	}

	c.dismissWelcome()
	c.transcript.Append(transcript.AuthorUser, text)
	c.processing = Busy
	c.issue(op, backend.TextInput{UserInput: text}, c.resolveReply)

	c.publishInput("submit_text", Accepted, string(op))
	c.publishState()
	return Accepted
}

// SelectFile uploads the file at path and, on success, switches to
// DocumentQA for it.
func (c *Controller) SelectFile(path string) Outcome {
	path = strings.TrimSpace(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if path == "" {
		return c.ignore("select_file", "no file")
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return c.ignore("select_file", "unreadable "+path)
	}
	if c.closed || c.processing != Idle {
		return c.ignore("select_file", c.processing.String())
	}

	name := filepath.Base(path)
	c.dismissWelcome()
	c.transcript.Append(transcript.AuthorSystem, uploadingText(name))
	c.processing = Busy
	c.issue(backend.OpUploadDocument, backend.FileUpload{Name: name, Path: path}, func(_ backend.Response, err error) {
		c.resolveUpload(name, err)
	})

	c.publishInput("select_file", Accepted, name)
	c.publishState()
	return Accepted
}

// ClearDocument returns to General mode. It does not cancel an in-flight
// request and does not notify the backend.
func (c *Controller) ClearDocument() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.mode.Kind != DocumentQA {
		return c.ignore("clear_document", c.mode.Kind.String())
	}

	doc := c.mode.Document
	c.mode = GeneralMode()
	c.dismissWelcome()
	c.transcript.Append(transcript.AuthorSystem, ClearedMessage)

	slog.Info("document cleared", "document", doc)
	c.publishInput("clear_document", Accepted, doc)
	c.publishState()
	return Accepted
}

// Snapshot returns a consistent copy of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		SessionID:   c.sessionID,
		Mode:        c.mode,
		ModeLabel:   c.mode.Label(),
		Processing:  c.processing,
		Placeholder: c.placeholder,
		Welcome:     c.welcome,
		Messages:    c.transcript.Messages(),
	}
}

// Close cancels in-flight requests and waits for their resolutions.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	if c.sessionID != "" {
		c.publish(events.SessionClosedPayload{SessionID: c.sessionID})
	}
}

// issue runs op on its own goroutine and applies resolve under the mutex.
// Callers hold c.mu.
func (c *Controller) issue(op backend.Operation, payload any, resolve func(backend.Response, error)) {
	c.requestSeq++
	id := c.requestSeq
	c.publish(events.RequestIssuedPayload{RequestID: id, Operation: string(op)})
	slog.Debug("request issued", "id", id, "op", op, "session", c.sessionID)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		start := c.clock.Now()
		resp, err := c.dispatcher.Dispatch(c.ctx, op, payload)
		elapsed := c.clock.Now().Sub(start)

		c.mu.Lock()
		defer c.mu.Unlock()

		c.publishResolved(id, op, elapsed, err)
		if c.closed {
			// Cancelled by Close: the outcome never reaches the transcript.
			c.processing = Idle
			return
		}
		resolve(resp, err)
		c.processing = Idle
		c.publishState()
	}()
}

func (c *Controller) listenElapsed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.processing != Listening || gen != c.voiceGen {
		return
	}
	c.transcript.Update(c.placeholder, ThinkingText)
	c.processing = Thinking
	c.publishState()
}

func (c *Controller) resolveVoice(resp backend.Response, err error) {
	c.transcript.Remove(c.placeholder)
	c.placeholder = 0

	if err != nil {
		c.appendFailure(backend.OpVoiceCommand, err)
		return
	}
	if resp.UserText != "" {
		c.transcript.Append(transcript.AuthorUser, resp.UserText)
	}
	c.transcript.Append(transcript.AuthorAssistant, resp.Reply())
}

func (c *Controller) resolveReply(resp backend.Response, err error) {
	if err != nil {
		c.appendFailure("", err)
		return
	}
	c.transcript.Append(transcript.AuthorAssistant, resp.Reply())
}

func (c *Controller) resolveUpload(name string, err error) {
	if err != nil {
		c.appendFailure(backend.OpUploadDocument, err)
		return
	}
	c.mode = DocumentMode(name)
	c.transcript.Append(transcript.AuthorAssistant, uploadedText(name))
	slog.Info("document loaded", "document", name, "session", c.sessionID)
}

func (c *Controller) appendFailure(op backend.Operation, err error) {
	f := backend.AsFailure(op, err)
	c.transcript.Append(transcript.AuthorError, f.Error())
}

func (c *Controller) dismissWelcome() {
	c.welcome = false
}

func (c *Controller) ignore(action, reason string) Outcome {
	slog.Debug("input ignored", "action", action, "reason", reason)
	c.publishInput(action, Ignored, reason)
	return Ignored
}

// --- bus plumbing ---

func (c *Controller) onTranscriptChange(ch transcript.Change) {
	msg := events.MessagePayload{
		Ref:         uint64(ch.Message.Ref),
		Author:      string(ch.Message.Author),
		Text:        ch.Message.Text,
		Order:       ch.Message.Order,
		Placeholder: ch.Message.Placeholder,
	}
	switch ch.Kind {
	case transcript.ChangeAppended:
		c.publish(events.TranscriptAppendedPayload{MessagePayload: msg})
	case transcript.ChangeUpdated:
		c.publish(events.TranscriptUpdatedPayload{MessagePayload: msg})
	case transcript.ChangeRemoved:
		c.publish(events.TranscriptRemovedPayload{MessagePayload: msg})
	}
}

func (c *Controller) publishState() {
	c.publish(events.SessionStatePayload{
		Mode:         c.mode.Kind.String(),
		Document:     c.mode.Document,
		Processing:   c.processing.String(),
		InputEnabled: c.processing == Idle,
		Highlight:    c.processing == Listening || c.processing == Thinking,
		Placeholder:  uint64(c.placeholder),
		Welcome:      c.welcome,
	})
}

func (c *Controller) publishInput(action string, outcome Outcome, detail string) {
	c.publish(events.InputPayload{Action: action, Outcome: outcome.String(), Detail: detail})
}

func (c *Controller) publishResolved(id uint64, op backend.Operation, elapsed time.Duration, err error) {
	p := events.RequestResolvedPayload{
		RequestID: id,
		Operation: string(op),
		OK:        err == nil,
		Duration:  elapsed,
	}
	if f := backend.AsFailure(op, err); f != nil {
		p.Kind = string(f.Kind)
		p.Status = f.Status
		p.Error = f.Error()
	}
	c.publish(p)
}

func (c *Controller) publish(p events.EventPayload) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.NewTypedEventWithSession(events.SourceController, p, c.sessionID))
}
