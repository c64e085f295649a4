// Package molecules provides mid-level TUI components.
package molecules

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxHistory = 100

// SubmitMsg carries a submitted line. Content is the raw text; the session
// trims it.
type SubmitMsg struct {
	Content string
}

// CommandInput is the one-line prompt. Enter submits, Up and Down browse
// previously submitted lines. While disabled it shows busyText and ignores
// keys, keeping whatever was typed.
type CommandInput struct {
	textarea    textarea.Model
	enabled     bool
	placeholder string
	busyText    string
	history     history
}

// NewCommandInput creates an enabled, focused prompt.
func NewCommandInput(placeholder, busyText string) CommandInput {
	ta := textarea.New()
	ta.Placeholder = placeholder
	ta.Prompt = "› "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(1)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.Focus()

	return CommandInput{
		textarea:    ta,
		enabled:     true,
		placeholder: placeholder,
		busyText:    busyText,
		history:     history{pos: -1},
	}
}

// SetWidth sets the prompt width.
func (c *CommandInput) SetWidth(w int) { c.textarea.SetWidth(w) }

// SetEnabled toggles the prompt between the typing and busy states.
func (c *CommandInput) SetEnabled(enabled bool) {
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if enabled {
		c.textarea.Placeholder = c.placeholder
		c.textarea.Focus()
		return
	}
	c.textarea.Placeholder = c.busyText
	c.textarea.Blur()
}

// Enabled reports whether the prompt accepts keys.
func (c *CommandInput) Enabled() bool { return c.enabled }

// Value returns the current text.
func (c *CommandInput) Value() string { return c.textarea.Value() }

// Reset clears the text and leaves history browsing.
func (c *CommandInput) Reset() {
	c.textarea.Reset()
	c.history.rewind()
}

// Update handles keys while enabled.
func (c CommandInput) Update(msg tea.Msg) (CommandInput, tea.Cmd) {
	if !c.enabled {
		return c, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			content := c.textarea.Value()
			if strings.TrimSpace(content) == "" {
				return c, nil
			}
			c.history.push(content)
			c.Reset()
			return c, func() tea.Msg { return SubmitMsg{Content: content} }

		case tea.KeyUp:
			if line, ok := c.history.prev(c.textarea.Value()); ok {
				c.textarea.SetValue(line)
			}
			return c, nil

		case tea.KeyDown:
			if line, ok := c.history.next(); ok {
				c.textarea.SetValue(line)
			}
			return c, nil
		}
	}

	var cmd tea.Cmd
	c.textarea, cmd = c.textarea.Update(msg)
	return c, cmd
}

// View renders the prompt.
func (c CommandInput) View() string {
	return c.textarea.View()
}

// history holds submitted lines, oldest first. pos is -1 when not
// browsing; draft keeps the line being typed before browsing started.
type history struct {
	lines []string
	pos   int
	draft string
}

func (h *history) push(line string) {
	if n := len(h.lines); n > 0 && h.lines[n-1] == line {
		return
	}
	h.lines = append(h.lines, line)
	if len(h.lines) > maxHistory {
		h.lines = h.lines[len(h.lines)-maxHistory:]
	}
}

func (h *history) rewind() {
	h.pos = -1
	h.draft = ""
}

func (h *history) prev(current string) (string, bool) {
	switch {
	case len(h.lines) == 0:
		return "", false
	case h.pos == -1:
		h.draft = current
		h.pos = len(h.lines) - 1
	case h.pos > 0:
		h.pos--
	}
	return h.lines[h.pos], true
}

func (h *history) next() (string, bool) {
	if h.pos == -1 {
		return "", false
	}
	if h.pos < len(h.lines)-1 {
		h.pos++
		return h.lines[h.pos], true
	}
	draft := h.draft
	h.rewind()
	return draft, true
}
