// Package organisms provides high-level TUI components.
package organisms

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
)

// lumiStyle is glamour's dark style with the document margin removed and
// headings in the assistant color.
func lumiStyle() ansi.StyleConfig {
	cfg := styles.DarkStyleConfig
	margin := uint(0)
	cfg.Document.Margin = &margin
	violet := "#D8A6FF"
	cfg.Heading.Color = &violet
	cfg.H1.Color = &violet
	cfg.H1.BackgroundColor = nil
	return cfg
}

// Markdown renders assistant replies. It keeps one renderer per width.
type Markdown struct {
	enabled  bool
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdown creates a renderer. When disabled, Render returns text as is.
func NewMarkdown(enabled bool) *Markdown {
	return &Markdown{enabled: enabled}
}

// Render renders text at the given wrap width, falling back to the raw
// text on any renderer error.
func (m *Markdown) Render(text string, width int) string {
	if !m.enabled || text == "" {
		return text
	}
	if width < 20 {
		width = 20
	}
	if m.renderer == nil || m.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStyles(lumiStyle()),
			glamour.WithWordWrap(width),
			glamour.WithEmoji(),
		)
		if err != nil {
			return text
		}
		m.renderer, m.width = r, width
	}

	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}
