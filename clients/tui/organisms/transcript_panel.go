package organisms

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dohr-michael/lumi/clients/tui/atoms"
	"github.com/dohr-michael/lumi/internal/transcript"
)

// TranscriptPanel mirrors the session transcript into the viewport. Blocks
// are kept per message ref so unchanged messages are not re-rendered.
type TranscriptPanel struct {
	viewport OutputViewport
	spinner  *atoms.Spinner
	md       *Markdown
	styles   BlockStyles
	welcome  string
	blocks   map[transcript.Ref]*MessageBlock
	width    int
	animate  bool
}

// NewTranscriptPanel creates a panel. welcome is shown above the
// transcript until the first interaction.
func NewTranscriptPanel(width, height int, styles BlockStyles, md *Markdown, welcome string, spinColor lipgloss.AdaptiveColor) TranscriptPanel {
	sp := atoms.NewSpinner(spinColor)
	return TranscriptPanel{
		viewport: NewOutputViewport(width, height),
		spinner:  &sp,
		md:       md,
		styles:   styles,
		welcome:  welcome,
		blocks:   make(map[transcript.Ref]*MessageBlock),
		width:    width,
	}
}

// Init resumes the spinner if a placeholder was synced before start.
func (p TranscriptPanel) Init() tea.Cmd {
	return p.spinner.Tick()
}

// Sync rebuilds the viewport from messages. showWelcome controls the
// static welcome header. The returned command starts the spinner when a
// placeholder appears.
func (p *TranscriptPanel) Sync(messages []transcript.Message, showWelcome bool) tea.Cmd {
	seen := make(map[transcript.Ref]bool, len(messages))
	blocks := make([]ContentBlock, 0, len(messages))
	p.animate = false
	for _, msg := range messages {
		seen[msg.Ref] = true
		b, ok := p.blocks[msg.Ref]
		if ok {
			b.Sync(msg, p.width)
		} else {
			b = NewMessageBlock(msg, p.styles, p.md, p.spinner, p.width)
			p.blocks[msg.Ref] = b
		}
		if !b.IsComplete() {
			p.animate = true
		}
		blocks = append(blocks, b)
	}
	for ref := range p.blocks {
		if !seen[ref] {
			delete(p.blocks, ref)
		}
	}

	header := ""
	if showWelcome && p.welcome != "" {
		header = p.styles.Assistant.Render(p.welcome)
	}
	p.viewport.SetContent(header, blocks)

	if p.animate {
		return p.spinner.Start()
	}
	p.spinner.Stop()
	return nil
}

// BlockCount returns the number of rendered messages.
func (p *TranscriptPanel) BlockCount() int { return p.viewport.BlockCount() }

// PageUp scrolls the transcript up.
func (p *TranscriptPanel) PageUp() { p.viewport.PageUp() }

// PageDown scrolls the transcript down.
func (p *TranscriptPanel) PageDown() { p.viewport.PageDown() }

// SetSize updates the panel dimensions. Cached renders are wrapped to the
// old width, so they are dropped on the next Sync.
func (p *TranscriptPanel) SetSize(w, h int) {
	p.width = w
	p.viewport.SetSize(w, h)
}

// Update advances the spinner and re-renders while a placeholder is shown.
func (p TranscriptPanel) Update(msg tea.Msg) (TranscriptPanel, tea.Cmd) {
	cmd := p.spinner.Update(msg)
	if cmd != nil {
		p.viewport.Refresh()
	}
	return p, cmd
}

// View renders the transcript.
func (p TranscriptPanel) View() string {
	return p.viewport.View()
}
