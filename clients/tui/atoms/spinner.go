// Package atoms provides low-level TUI building blocks.
package atoms

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Spinner animates the voice placeholder. It only ticks while started, so
// an idle transcript is not redrawn.
type Spinner struct {
	model   spinner.Model
	running bool
}

// NewSpinner creates a stopped spinner with the points pattern.
func NewSpinner(color lipgloss.AdaptiveColor) Spinner {
	return Spinner{model: spinner.New(
		spinner.WithSpinner(spinner.Points),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(color)),
	)}
}

// Start resumes ticking. It returns nil when already running.
func (s *Spinner) Start() tea.Cmd {
	if s.running {
		return nil
	}
	s.running = true
	return s.model.Tick
}

// Tick returns a tick command, or nil when stopped. It is used to resume a
// spinner started before the program ran.
func (s *Spinner) Tick() tea.Cmd {
	if !s.running {
		return nil
	}
	return s.model.Tick
}

// Stop lets the pending tick lapse.
func (s *Spinner) Stop() { s.running = false }

// Running reports whether the spinner is animating.
func (s *Spinner) Running() bool { return s.running }

// Update advances the frame on the spinner's own ticks.
func (s *Spinner) Update(msg tea.Msg) tea.Cmd {
	if _, ok := msg.(spinner.TickMsg); !ok || !s.running {
		return nil
	}
	var cmd tea.Cmd
	s.model, cmd = s.model.Update(msg)
	return cmd
}

// Line renders the current frame followed by label.
func (s *Spinner) Line(label string, style lipgloss.Style) string {
	return s.model.View() + " " + style.Render(label)
}
