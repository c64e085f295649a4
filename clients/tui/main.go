package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dohr-michael/lumi/clients/tui/molecules"
	"github.com/dohr-michael/lumi/clients/tui/organisms"
	"github.com/dohr-michael/lumi/internal/events"
	"github.com/dohr-michael/lumi/internal/interaction"
)

const (
	inputPlaceholder = "Type a message, F2 to talk, /help for commands"
	busyPlaceholder  = "Lumi is working…"
	helpText         = "/upload [path]  /clear  /orb  /reload  /quit  ·  F2 or ctrl+space: talk"
)

// Session is the controller surface the TUI drives.
type Session interface {
	ActivateOrb() interaction.Outcome
	SubmitText(text string) interaction.Outcome
	SelectFile(path string) interaction.Outcome
	ClearDocument() interaction.Outcome
	Snapshot() interaction.Snapshot
}

// MainModel is the root bubbletea model for the Lumi TUI.
type MainModel struct {
	session  Session
	events   <-chan events.Event
	reload   func() (string, error)
	startDir string
	width    int
	height   int

	snap        interaction.Snapshot
	transcript  organisms.TranscriptPanel
	interaction organisms.InteractionPanel
	info        organisms.InformationPanel
}

// NewMainModel creates the root model and renders the current snapshot.
func NewMainModel(opts Options, ch <-chan events.Event) MainModel {
	th := newTheme()
	info := organisms.NewInformationPanel(th.statusBar, th.orbIdle, th.orbActive)
	info.SetBackend(opts.Backend)

	m := MainModel{
		session:     opts.Session,
		events:      ch,
		reload:      opts.Reload,
		startDir:    opts.StartDir,
		transcript:  organisms.NewTranscriptPanel(80, 20, th.blocks, organisms.NewMarkdown(opts.Markdown), opts.Welcome, th.spinner),
		interaction: organisms.NewInteractionPanel(th.picker, opts.Extensions, inputPlaceholder, busyPlaceholder),
		info:        info,
	}
	m.refresh()
	return m
}

// Init starts the spinner and the event feed.
func (m MainModel) Init() tea.Cmd {
	return tea.Batch(m.transcript.Init(), m.next())
}

// Update processes all incoming messages.
func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		viewportHeight := m.height - 2 // input(1) + statusbar(1)
		if viewportHeight < 1 {
			viewportHeight = 1
		}
		m.transcript.SetSize(m.width, viewportHeight)
		m.interaction.SetWidth(m.width)
		m.interaction.SetPickerHeight(m.height - 8)
		m.info.SetWidth(m.width)
		return m, m.refresh()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SessionChangedMsg:
		return m, tea.Batch(m.refresh(), m.next())

	case RequestDoneMsg:
		status := "ok"
		if !msg.OK {
			status = "failed"
		}
		m.info.SetNotice(fmt.Sprintf("%s %s in %s", msg.Operation, status, msg.Duration.Round(10*time.Millisecond)))
		return m, m.next()

	case SessionEndedMsg:
		return m, tea.Quit

	case molecules.SubmitMsg:
		return m.handleSubmit(msg.Content)

	case organisms.FileChosenMsg:
		if msg.Cancelled {
			m.info.SetNotice("")
			return m, nil
		}
		m.selectFile(msg.Path)
		return m, nil

	case ReloadedMsg:
		if msg.Err != nil {
			m.info.SetNotice("reload failed: " + msg.Err.Error())
			return m, nil
		}
		m.info.SetBackend(msg.Backend)
		m.info.SetNotice("config reloaded")
		return m, nil
	}

	// Spinner ticks, textarea blink and picker directory reads.
	var cmd, icmd tea.Cmd
	m.transcript, cmd = m.transcript.Update(msg)
	m.interaction, icmd = m.interaction.Update(msg)
	return m, tea.Batch(cmd, icmd)
}

func (m MainModel) next() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return WaitForEvent(m.events)
}

func (m MainModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "pgup":
		m.transcript.PageUp()
		return m, nil
	case "pgdown":
		m.transcript.PageDown()
		return m, nil
	case "f2", "ctrl+@":
		if m.interaction.Mode() == organisms.ModeTyping {
			m.activateOrb()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.interaction, cmd = m.interaction.Update(msg)
	return m, cmd
}

func (m *MainModel) activateOrb() {
	if m.session.ActivateOrb() == interaction.Ignored {
		m.info.SetNotice("busy")
	}
}

func (m *MainModel) selectFile(path string) {
	if m.session.SelectFile(path) == interaction.Ignored {
		m.info.SetNotice("cannot upload " + filepath.Base(path))
		return
	}
	m.info.SetNotice("")
}

func (m MainModel) handleSubmit(content string) (tea.Model, tea.Cmd) {
	if strings.HasPrefix(strings.TrimSpace(content), "/") {
		return m.handleSlashCommand(strings.TrimSpace(content))
	}
	if m.session.SubmitText(content) == interaction.Ignored {
		m.info.SetNotice("busy")
	}
	return m, nil
}

func (m MainModel) handleSlashCommand(line string) (tea.Model, tea.Cmd) {
	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return m, tea.Quit

	case "/help":
		m.info.SetNotice(helpText)
		return m, nil

	case "/orb":
		m.activateOrb()
		return m, nil

	case "/upload":
		if arg != "" {
			m.selectFile(expandHome(arg))
			return m, nil
		}
		return m, m.interaction.OpenPicker(m.startDir)

	case "/clear":
		if m.session.ClearDocument() == interaction.Ignored {
			m.info.SetNotice("no document loaded")
		}
		return m, nil

	case "/reload":
		if m.reload == nil {
			m.info.SetNotice("reload is not available")
			return m, nil
		}
		reload := m.reload
		return m, func() tea.Msg {
			url, err := reload()
			return ReloadedMsg{Backend: url, Err: err}
		}

	default:
		m.info.SetNotice("unknown command: " + command)
		return m, nil
	}
}

// refresh pulls a snapshot and pushes it into every panel.
func (m *MainModel) refresh() tea.Cmd {
	m.snap = m.session.Snapshot()
	cmd := m.transcript.Sync(m.snap.Messages, m.snap.Welcome)
	m.info.SetSession(m.snap.SessionID)
	m.info.SetState(m.snap.ModeLabel, m.snap.Processing.String(), m.snap.Highlight())
	m.interaction.SetInputEnabled(m.snap.InputEnabled())
	return cmd
}

// View renders the full TUI layout.
func (m MainModel) View() string {
	return fmt.Sprintf("%s\n%s\n%s", m.transcript.View(), m.interaction.View(), m.info.View())
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
