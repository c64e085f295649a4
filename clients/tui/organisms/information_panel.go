package organisms

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/dohr-michael/lumi/clients/tui/atoms"
)

// InformationPanel displays the status bar: orb, mode, processing state,
// session and backend.
type InformationPanel struct {
	sessionID  string
	mode       string
	processing string
	highlight  bool
	backend    string
	notice     string
	width      int
	style      lipgloss.Style
	orbIdle    lipgloss.Style
	orbActive  lipgloss.Style
}

// NewInformationPanel creates a new status bar panel.
func NewInformationPanel(style, orbIdle, orbActive lipgloss.Style) InformationPanel {
	return InformationPanel{style: style, orbIdle: orbIdle, orbActive: orbActive}
}

// SetSession updates the session ID.
func (p *InformationPanel) SetSession(id string) { p.sessionID = id }

// SetState updates the mode label, processing state and orb highlight.
func (p *InformationPanel) SetState(mode, processing string, highlight bool) {
	p.mode, p.processing, p.highlight = mode, processing, highlight
}

// SetBackend updates the backend URL shown.
func (p *InformationPanel) SetBackend(url string) { p.backend = url }

// SetNotice shows a short host message until the next one. Empty clears it.
func (p *InformationPanel) SetNotice(n string) { p.notice = n }

// SetWidth updates the rendering width.
func (p *InformationPanel) SetWidth(w int) { p.width = w }

// SessionID returns the session ID.
func (p *InformationPanel) SessionID() string { return p.sessionID }

// Notice returns the current notice.
func (p *InformationPanel) Notice() string { return p.notice }

// View renders the status bar.
func (p InformationPanel) View() string {
	sid := p.sessionID
	if len(sid) > 13 {
		sid = sid[:13]
	}

	bar := fmt.Sprintf(" %s %s | %s", atoms.Orb(p.highlight, p.orbIdle, p.orbActive), p.mode, p.processing)
	if sid != "" {
		bar += " | " + sid
	}
	if p.backend != "" {
		bar += " | " + p.backend
	}
	if p.notice != "" {
		bar += " | " + p.notice
	}
	return p.style.Width(p.width).Render(bar + " ")
}
