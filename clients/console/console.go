// Package console is the line-mode host for a Lumi session. It reads one
// action per line and prints transcript changes as they happen, which makes
// it usable with pipes and scripts.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/dohr-michael/lumi/internal/events"
	"github.com/dohr-michael/lumi/internal/interaction"
	"github.com/dohr-michael/lumi/internal/transcript"
)

const helpText = "commands: /orb  /upload <path>  /clear  /quit  (anything else is sent as text)"

// Session is the controller surface the console drives.
type Session interface {
	ActivateOrb() interaction.Outcome
	SubmitText(text string) interaction.Outcome
	SelectFile(path string) interaction.Outcome
	ClearDocument() interaction.Outcome
	Snapshot() interaction.Snapshot
}

// Options configures the console host.
type Options struct {
	Session Session
	Bus     *events.Bus
	In      io.Reader
	Out     io.Writer
	Welcome string
}

// Console runs the read-dispatch-print loop.
type Console struct {
	session Session
	bus     *events.Bus
	in      io.Reader
	welcome string

	mu  sync.Mutex // serializes writes to out
	out io.Writer

	// armed is set by an accepted input event and cleared by the next idle
	// state event, which then signals settled. Bus order guarantees the
	// transcript events of that action were printed first.
	stateMu sync.Mutex
	armed   bool
	settled chan struct{}
}

// New creates a console host.
func New(opts Options) (*Console, error) {
	if opts.Session == nil || opts.Bus == nil {
		return nil, errors.New("console: session and bus are required")
	}
	return &Console{
		session: opts.Session,
		bus:     opts.Bus,
		in:      opts.In,
		out:     opts.Out,
		welcome: opts.Welcome,
		settled: make(chan struct{}, 1),
	}, nil
}

// Run reads lines until EOF, /quit or ctx cancellation. After an accepted
// line the next one is read only once the session is idle again.
func (c *Console) Run(ctx context.Context) error {
	unsubscribe := c.bus.Subscribe(c.handle,
		events.EventInput,
		events.EventTranscriptAppended,
		events.EventTranscriptUpdated,
		events.EventSessionState,
	)
	defer unsubscribe()

	if c.welcome != "" && c.session.Snapshot().Welcome {
		c.println(c.welcome)
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			quit, outcome := c.dispatch(line)
			if quit {
				return nil
			}
			if outcome == interaction.Ignored {
				slog.Debug("line ignored", "line", line, "processing", c.session.Snapshot().Processing)
				continue
			}
			c.waitSettled(ctx)
		}
	}
}

// dispatch maps one input line to a controller action.
func (c *Console) dispatch(line string) (quit bool, outcome interaction.Outcome) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return false, c.session.SubmitText(line)
	}

	command, arg, _ := strings.Cut(trimmed, " ")
	switch command {
	case "/quit", "/exit":
		return true, interaction.Ignored
	case "/orb":
		return false, c.session.ActivateOrb()
	case "/upload":
		out := c.session.SelectFile(strings.TrimSpace(arg))
		if out == interaction.Ignored {
			c.println("! cannot upload " + strings.TrimSpace(arg))
		}
		return false, out
	case "/clear":
		out := c.session.ClearDocument()
		if out == interaction.Ignored {
			c.println("! no document loaded")
		}
		return false, out
	case "/help":
		c.println(helpText)
		return false, interaction.Ignored
	default:
		c.println("! unknown command " + command)
		return false, interaction.Ignored
	}
}

// waitSettled blocks until the last accepted action has been fully
// handled and printed.
func (c *Console) waitSettled(ctx context.Context) {
	select {
	case <-c.settled:
	case <-ctx.Done():
	}
}

func (c *Console) handle(evt events.Event) {
	switch evt.Type {
	case events.EventInput:
		if p, ok := events.GetInputPayload(evt); ok && p.Outcome != interaction.Ignored.String() {
			c.stateMu.Lock()
			c.armed = true
			c.stateMu.Unlock()
		}
		return

	case events.EventSessionState:
		p, ok := events.GetSessionStatePayload(evt)
		if !ok || p.Processing != interaction.Idle.String() {
			return
		}
		c.stateMu.Lock()
		fire := c.armed
		c.armed = false
		c.stateMu.Unlock()
		if fire {
			select {
			case c.settled <- struct{}{}:
			default:
			}
		}
		return
	}

	p, ok := events.GetMessagePayload(evt)
	if !ok {
		return
	}
	if evt.Type == events.EventTranscriptUpdated && !p.Placeholder {
		return
	}
	c.println(Format(transcript.Author(p.Author), p.Text))
}

// Format renders one transcript line.
func Format(author transcript.Author, text string) string {
	switch author {
	case transcript.AuthorUser:
		return "you> " + text
	case transcript.AuthorAssistant:
		return "lumi> " + text
	case transcript.AuthorError:
		return "! " + text
	default:
		return "· " + text
	}
}

func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}
