package organisms

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dohr-michael/lumi/clients/tui/atoms"
	"github.com/dohr-michael/lumi/internal/transcript"
)

// BlockStyles are the label styles for each transcript author.
type BlockStyles struct {
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
}

func (s BlockStyles) label(a transcript.Author) string {
	switch a {
	case transcript.AuthorUser:
		return atoms.StyledLabel("You", s.User)
	case transcript.AuthorAssistant:
		return atoms.StyledLabel("Lumi", s.Assistant)
	case transcript.AuthorError:
		return atoms.StyledLabel("Error", s.Error)
	default:
		return atoms.StyledLabel("•", s.System)
	}
}

// MessageBlock renders one transcript message. Completed renders are
// cached until the text or width changes.
type MessageBlock struct {
	msg     transcript.Message
	styles  BlockStyles
	md      *Markdown
	spinner *atoms.Spinner
	width   int
	cached  string
}

// NewMessageBlock creates a block for msg. spinner animates placeholders.
func NewMessageBlock(msg transcript.Message, styles BlockStyles, md *Markdown, spinner *atoms.Spinner, width int) *MessageBlock {
	return &MessageBlock{msg: msg, styles: styles, md: md, spinner: spinner, width: width}
}

// Sync updates the block to msg and drops the cache when it changed.
func (b *MessageBlock) Sync(msg transcript.Message, width int) {
	if b.msg.Text != msg.Text || b.width != width {
		b.cached = ""
	}
	b.msg, b.width = msg, width
}

// IsComplete reports whether the block is final. Placeholders never are.
func (b *MessageBlock) IsComplete() bool {
	return !b.msg.Placeholder
}

// View renders the block with its author label.
func (b *MessageBlock) View() string {
	if b.msg.Placeholder {
		return b.spinner.Line(b.msg.Text, b.styles.Muted)
	}
	if b.cached != "" {
		return b.cached
	}

	text := b.msg.Text
	switch b.msg.Author {
	case transcript.AuthorAssistant:
		text = b.md.Render(text, b.width-6)
	case transcript.AuthorSystem:
		text = b.styles.Muted.Render(text)
	case transcript.AuthorError:
		text = b.styles.Error.UnsetBold().Render(text)
	}
	b.cached = b.styles.label(b.msg.Author) + " " + text
	return b.cached
}
